package tray

import (
	"fmt"
	"sync"

	"github.com/atotto/clipboard"
	"github.com/getlantern/systray"
	"github.com/rs/zerolog"

	"github.com/petems/instant-replay/internal/app"
	"github.com/petems/instant-replay/internal/command"
	"github.com/petems/instant-replay/internal/config"
	"github.com/petems/instant-replay/internal/session"
)

// Controller is the part of the app the menu can reconfigure.
type Controller interface {
	SetBargeInRearm(on bool)
}

type Config struct {
	App     *config.Config
	Latch   *command.Latch
	Session *session.State
	Control Controller
	Logger  zerolog.Logger
	Version string
	Commit  string
}

type UI struct {
	cfg     *config.Config
	latch   *command.Latch
	sess    *session.State
	ctrl    Controller
	version string
	commit  string
	log     zerolog.Logger

	// Menu items
	mBargeIn *systray.MenuItem

	readyOnce sync.Once
	ready     chan struct{}
}

// commandItem is a menu entry that raises a command.
type commandItem struct {
	title   string
	tooltip string
	kind    command.Kind
}

var commandItems = []commandItem{
	{"Record", "Start a capture", command.StartRecord},
	{"Replay Again", "Replay the last capture", command.RepeatReplay},
	{"Slower", "Lower the replay speed", command.SpeedDown},
	{"Faster", "Raise the replay speed", command.SpeedUp},
	{"Toggle Info", "Show or hide session details", command.ToggleInfo},
}

func New(cfg Config) *UI {
	return &UI{
		cfg:     cfg.App,
		latch:   cfg.Latch,
		sess:    cfg.Session,
		ctrl:    cfg.Control,
		version: cfg.Version,
		commit:  cfg.Commit,
		log:     cfg.Logger,
		ready:   make(chan struct{}),
	}
}

// Run blocks on the systray event loop. It MUST be called from the main
// goroutine.
func (u *UI) Run() {
	systray.Run(u.onReady, u.onExit)
}

// Quit ends Run. Safe to call before the tray is ready.
func (u *UI) Quit() {
	systray.Quit()
}

// OnStateChange is an app.StateListener that keeps the title current.
func (u *UI) OnStateChange(prev, next app.State) {
	select {
	case <-u.ready:
		systray.SetTitle(titleForState(next))
	default:
	}
}

func (u *UI) onReady() {
	systray.SetTitle(titleForState(app.Listening))
	systray.SetTooltip("Instant replay")

	// Build menu
	for _, item := range commandItems {
		mi := systray.AddMenuItem(item.title, item.tooltip)
		go u.raiseOnClick(mi, item.kind)
	}
	systray.AddSeparator()

	mCopy := systray.AddMenuItem("Copy Last Heard", "Copy the last recognised phrase")
	u.mBargeIn = systray.AddMenuItemCheckbox("Record Interrupts Replay", "Start a new capture when Record interrupts a replay", u.cfg.BargeInRearm)

	systray.AddSeparator()
	mAbout := systray.AddMenuItem("About", "About Instant Replay")
	mQuit := systray.AddMenuItem("Quit", "Exit application")

	u.readyOnce.Do(func() { close(u.ready) })

	// Event loop
	go u.handleEvents(mCopy, mAbout, mQuit)
}

func (u *UI) raiseOnClick(mi *systray.MenuItem, kind command.Kind) {
	for {
		select {
		case <-mi.ClickedCh:
			u.raise(kind)
		case <-u.latch.Done():
			return
		}
	}
}

func (u *UI) raise(kind command.Kind) {
	u.log.Info().Str("source", "tray").Stringer("command", kind).Msg("Command selected")
	u.latch.Raise(kind)
}

func (u *UI) handleEvents(mCopy, mAbout, mQuit *systray.MenuItem) {
	for {
		select {
		case <-u.mBargeIn.ClickedCh:
			u.toggleBargeIn()
		case <-mCopy.ClickedCh:
			u.copyLastHeard()
		case <-mAbout.ClickedCh:
			u.showAbout()
		case <-mQuit.ClickedCh:
			u.raise(command.Exit)
			return
		case <-u.latch.Done():
			return
		}
	}
}

func (u *UI) toggleBargeIn() {
	u.cfg.BargeInRearm = !u.cfg.BargeInRearm
	if u.cfg.BargeInRearm {
		u.mBargeIn.Check()
	} else {
		u.mBargeIn.Uncheck()
	}
	u.ctrl.SetBargeInRearm(u.cfg.BargeInRearm)
	if err := u.cfg.Save(); err != nil {
		u.log.Error().Err(err).Msg("Failed to save config")
	}
	u.log.Info().Bool("barge_in_rearm", u.cfg.BargeInRearm).Msg("Changed barge-in policy")
}

func (u *UI) copyLastHeard() {
	text := u.sess.LastHeard()
	if text == "" {
		u.log.Info().Msg("Nothing heard yet")
		return
	}
	if err := clipboard.WriteAll(text); err != nil {
		u.log.Error().Err(err).Msg("Failed to write clipboard")
		return
	}
	u.log.Info().Str("text", text).Msg("Copied last heard phrase")
}

func (u *UI) showAbout() {
	// TODO: Show about dialog with native UI
	fmt.Printf("Instant Replay %s (%s)\nVoice-driven instant replay\n", u.version, u.commit)
}

func (u *UI) onExit() {
	// Closing the tray by any route ends the session
	u.latch.Raise(command.Exit)
}

// titleForState returns the tray title with a camera emoji and status indicator
func titleForState(s app.State) string {
	return fmt.Sprintf("🎥 %s", emojiForState(s))
}

// emojiForState returns the appropriate status emoji
func emojiForState(s app.State) string {
	switch s {
	case app.Capturing:
		return "🔴" // Red - recording
	case app.Replaying:
		return "🔁" // Replay in progress
	case app.Exited:
		return "⚪️" // White - stopped
	default:
		return "🟢" // Green - listening
	}
}
