package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/petems/instant-replay/internal/command"
	"github.com/petems/instant-replay/internal/frame"
	"github.com/petems/instant-replay/internal/playback"
	"github.com/petems/instant-replay/internal/session"
	"github.com/rs/zerolog"
)

type State int32

const (
	Listening State = iota
	Capturing
	Replaying
	Exited
)

func (s State) String() string {
	switch s {
	case Listening:
		return "listening"
	case Capturing:
		return "capturing"
	case Replaying:
		return "replaying"
	case Exited:
		return "exited"
	default:
		return "unknown"
	}
}

// FrameSource yields frames at the device's native rate.
type FrameSource interface {
	Read(ctx context.Context) (frame.Frame, error)
	FPS() float64
	Close() error
}

// Renderer draws a frame with overlay text on the display surface.
type Renderer interface {
	Render(f frame.Frame, overlay string) error
	Close() error
}

// CuePlayer plays the audible confirmation. Play must not block.
type CuePlayer interface {
	Play()
}

// Flusher is implemented by frame sources that queue frames internally.
// Flush drops queued frames so a capture starts with fresh ones.
type Flusher interface {
	Flush()
}

// StateListener is called on every state transition, from the controller
// goroutine.
type StateListener func(prev, next State)

const (
	defaultMaxReadFailures = 30
	noticeDuration         = 2 * time.Second
)

type Config struct {
	Source   FrameSource
	Renderer Renderer
	Cue      CuePlayer // Optional - can be nil
	Latch    *command.Latch
	Session  *session.State
	Engine   *playback.Engine
	Logger   zerolog.Logger

	CaptureDuration time.Duration
	// MaxFrames caps a capture buffer; zero leaves it uncapped
	MaxFrames int
	// MaxReadFailures consecutive read errors end the stream
	MaxReadFailures int
	// BargeInRearm makes a START_RECORD that interrupts a replay start the
	// next capture without being spoken again
	BargeInRearm bool
	// ListeningHint is shown while waiting for a command
	ListeningHint string
	// AutoLoop starts a new capture after every replay that runs to the end
	AutoLoop bool

	// Now defaults to time.Now
	Now func() time.Time
}

// App is the capture/replay controller. Run drives it from a single
// goroutine; other goroutines only raise commands on the latch.
type App struct {
	source   FrameSource
	renderer Renderer
	cue      CuePlayer
	latch    *command.Latch
	sess     *session.State
	engine   *playback.Engine
	log      zerolog.Logger
	now      func() time.Time

	duration    time.Duration
	maxFrames   int
	maxFailures int
	hint        string
	autoLoop    bool

	state        atomic.Int32
	bargeInRearm atomic.Bool

	// owned by the Run goroutine
	current     *frame.Buffer
	deadline    time.Time
	last        *frame.Snapshot
	replaying   frame.Snapshot
	rearmed     bool
	failures    int
	notice      string
	noticeUntil time.Time

	mu         sync.Mutex
	listeners  []StateListener
	lastReplay playback.Result

	releaseOnce sync.Once
}

func New(cfg Config) *App {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	maxFailures := cfg.MaxReadFailures
	if maxFailures <= 0 {
		maxFailures = defaultMaxReadFailures
	}
	engine := cfg.Engine
	if engine == nil {
		engine = playback.New(playback.DefaultMinTick, cfg.Logger)
	}
	hint := cfg.ListeningHint
	if hint == "" {
		hint = "Waiting for command"
	}

	a := &App{
		source:      cfg.Source,
		renderer:    cfg.Renderer,
		cue:         cfg.Cue,
		latch:       cfg.Latch,
		sess:        cfg.Session,
		engine:      engine,
		log:         cfg.Logger,
		now:         now,
		duration:    cfg.CaptureDuration,
		maxFrames:   cfg.MaxFrames,
		maxFailures: maxFailures,
		hint:        hint,
		autoLoop:    cfg.AutoLoop,
	}
	a.state.Store(int32(Listening))
	a.bargeInRearm.Store(cfg.BargeInRearm)
	return a
}

// State returns the current controller state. Safe from any goroutine.
func (a *App) State() State {
	return State(a.state.Load())
}

func (a *App) AddListener(l StateListener) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.listeners = append(a.listeners, l)
}

// SetBargeInRearm changes the barge-in policy for later interruptions.
func (a *App) SetBargeInRearm(on bool) {
	a.bargeInRearm.Store(on)
}

// LastReplay reports the result of the most recent replay.
func (a *App) LastReplay() playback.Result {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lastReplay
}

// Run drives the state machine until EXIT, context cancellation or the end
// of the frame source. The frame source and renderer are released on every
// return path.
func (a *App) Run(ctx context.Context) error {
	defer a.release()

	a.log.Info().
		Dur("capture_duration", a.duration).
		Float64("fps", a.source.FPS()).
		Bool("barge_in_rearm", a.bargeInRearm.Load()).
		Bool("auto_loop", a.autoLoop).
		Msg("Controller started")

	for {
		if ctx.Err() != nil {
			a.latch.Raise(command.Exit)
		}

		pending := a.DrainPendingCommands()
		a.applyGlobal(pending)
		if pending.Has(command.Exit) {
			a.log.Info().Str("state", a.State().String()).Msg("Exit requested")
			a.transition(Exited)
			return nil
		}

		var err error
		switch a.State() {
		case Listening:
			err = a.stepListening(ctx, pending)
		case Capturing:
			err = a.stepCapturing(ctx)
		case Replaying:
			a.replay(ctx, pending)
		}

		if errors.Is(err, frame.ErrEndOfStream) {
			a.log.Warn().Err(err).Msg("Frame source ended, shutting down")
			a.transition(Exited)
			return nil
		}
		if err != nil {
			a.transition(Exited)
			return err
		}
	}
}

// DrainPendingCommands returns the commands latched since the previous call,
// including a START_RECORD re-armed by a barge-in or auto loop. It consumes
// the re-arm, so it must only be called from the goroutine running Run (or
// before Run starts).
func (a *App) DrainPendingCommands() command.Set {
	pending := a.latch.Drain()
	if a.rearmed {
		pending = pending.With(command.StartRecord)
		a.rearmed = false
	}
	if !pending.Empty() {
		a.log.Debug().Str("commands", pending.String()).Str("state", a.State().String()).Msg("Commands drained")
	}
	return pending
}

// applyGlobal handles the commands that never change state.
func (a *App) applyGlobal(pending command.Set) {
	if pending.Has(command.SpeedUp) {
		a.log.Info().Float64("speed", a.sess.SpeedUp()).Msg("Speed up")
	}
	if pending.Has(command.SpeedDown) {
		a.log.Info().Float64("speed", a.sess.SpeedDown()).Msg("Speed down")
	}
	if pending.Has(command.ToggleInfo) {
		a.log.Info().Bool("show_info", a.sess.ToggleInfo()).Msg("Toggled info")
	}
}

func (a *App) stepListening(ctx context.Context, pending command.Set) error {
	if pending.Has(command.StartRecord) {
		a.startCapture()
		return nil
	}
	if pending.Has(command.RepeatReplay) {
		if a.last != nil {
			a.log.Info().Str("capture_id", a.last.ID()).Msg("Repeating last capture")
			a.playCue()
			a.replaying = *a.last
			a.transition(Replaying)
			return nil
		}
		a.log.Info().Msg("Repeat requested but nothing captured yet")
		a.setNotice("Nothing to replay yet")
	}

	f, ok, err := a.readFrame(ctx)
	if err != nil || !ok {
		return err
	}
	a.render(f, a.listeningOverlay())
	return nil
}

func (a *App) startCapture() {
	if f, ok := a.source.(Flusher); ok {
		f.Flush()
	}
	a.current = frame.NewBuffer(a.maxFrames)
	a.deadline = a.now().Add(a.duration)
	a.notice = ""
	a.playCue()
	a.log.Info().
		Str("capture_id", a.current.ID()).
		Dur("duration", a.duration).
		Msg("Starting capture")
	a.transition(Capturing)
}

func (a *App) stepCapturing(ctx context.Context) error {
	if !a.now().Before(a.deadline) {
		a.finishCapture()
		return nil
	}

	f, ok, err := a.readFrame(ctx)
	if errors.Is(err, frame.ErrEndOfStream) {
		a.finishCapture()
		return nil
	}
	if err != nil || !ok {
		return err
	}

	at := f.Timestamp
	if at.IsZero() {
		at = a.now()
	}
	if !at.Before(a.deadline) {
		a.finishCapture()
		return nil
	}

	if err := a.current.Append(f); err != nil {
		a.log.Warn().Err(err).Str("capture_id", a.current.ID()).Msg("Capture buffer full")
		a.finishCapture()
		return nil
	}

	remaining := a.deadline.Sub(at)
	a.render(f, a.withInfo(fmt.Sprintf("RECORDING... (%.1fs)", remaining.Seconds())))
	return nil
}

func (a *App) finishCapture() {
	snap := a.current.Snapshot()
	a.current = nil

	if snap.IsEmpty() {
		a.log.Warn().Str("capture_id", snap.ID()).Msg("Capture buffer is empty")
		a.transition(Listening)
		return
	}

	a.last = &snap
	n := a.sess.IncrementCaptures()
	a.log.Info().
		Str("capture_id", snap.ID()).
		Int("frames", snap.Len()).
		Int("capture", n).
		Dur("span", snap.Span()).
		Msg("Capture complete")

	a.replaying = snap
	a.transition(Replaying)
}

// replay plays the current snapshot. A START_RECORD already drained on
// entry is a barge-in before the first frame.
func (a *App) replay(ctx context.Context, pending command.Set) {
	snap := a.replaying
	total := snap.Len()

	var res playback.Result
	if pending.Has(command.StartRecord) {
		a.bargeIn()
		res = playback.Result{Outcome: playback.StoppedEarly}
	} else {
		res = a.engine.Play(ctx, playback.Request{
			Frames:   snap,
			Interval: a.frameInterval(),
			Speed:    a.sess.Speed,
			Render: func(i int, f frame.Frame) error {
				return a.renderer.Render(f, a.replayOverlay(i, total))
			},
			Stop: a.replayInterrupted,
		})
	}

	a.mu.Lock()
	a.lastReplay = res
	a.mu.Unlock()

	a.log.Info().
		Str("capture_id", snap.ID()).
		Str("outcome", res.Outcome.String()).
		Int("frames", res.Frames).
		Dur("elapsed", res.Elapsed).
		Msg("Replay ended")

	if a.latch.ExitRequested() || ctx.Err() != nil {
		a.transition(Exited)
		return
	}
	if a.autoLoop && res.Outcome == playback.Completed {
		a.rearmed = true
	}
	a.transition(Listening)
}

// replayInterrupted is polled once per replayed frame. Exit stays latched
// for Run to observe.
func (a *App) replayInterrupted() bool {
	pending := a.DrainPendingCommands()
	a.applyGlobal(pending)

	if pending.Has(command.Exit) {
		return true
	}
	if pending.Has(command.StartRecord) {
		a.bargeIn()
		return true
	}
	return false
}

func (a *App) bargeIn() {
	rearm := a.bargeInRearm.Load()
	a.log.Info().Bool("rearm", rearm).Msg("Barge-in during replay")
	a.rearmed = rearm
}

// readFrame returns ok=false for a transient failure. Sustained failure is
// reported as frame.ErrEndOfStream.
func (a *App) readFrame(ctx context.Context) (frame.Frame, bool, error) {
	f, err := a.source.Read(ctx)
	if err == nil {
		a.failures = 0
		return f, true, nil
	}
	if errors.Is(err, frame.ErrEndOfStream) {
		return frame.Frame{}, false, err
	}
	if ctx.Err() != nil {
		return frame.Frame{}, false, nil
	}

	a.failures++
	if a.failures >= a.maxFailures {
		return frame.Frame{}, false, fmt.Errorf("%d consecutive read failures, last: %v: %w", a.failures, err, frame.ErrEndOfStream)
	}
	a.log.Debug().Err(err).Int("failures", a.failures).Msg("Dropped frame")
	return frame.Frame{}, false, nil
}

func (a *App) frameInterval() time.Duration {
	fps := a.source.FPS()
	if fps <= 0 {
		fps = 30
	}
	return time.Duration(float64(time.Second) / fps)
}

func (a *App) render(f frame.Frame, overlay string) {
	if err := a.renderer.Render(f, overlay); err != nil {
		a.log.Warn().Err(err).Msg("Render failed")
	}
}

func (a *App) playCue() {
	if a.cue != nil {
		a.cue.Play()
	}
}

func (a *App) setNotice(text string) {
	a.notice = text
	a.noticeUntil = a.now().Add(noticeDuration)
}

func (a *App) transition(next State) {
	prev := State(a.state.Swap(int32(next)))
	if prev == next {
		return
	}
	a.log.Info().Str("from", prev.String()).Str("to", next.String()).Msg("State transition")

	a.mu.Lock()
	listeners := append([]StateListener(nil), a.listeners...)
	a.mu.Unlock()
	for _, l := range listeners {
		l(prev, next)
	}
}

// release closes the devices and makes sure every command source sees EXIT.
func (a *App) release() {
	a.releaseOnce.Do(func() {
		a.latch.Raise(command.Exit)
		if err := a.source.Close(); err != nil {
			a.log.Error().Err(err).Msg("Failed to close frame source")
		}
		if err := a.renderer.Close(); err != nil {
			a.log.Error().Err(err).Msg("Failed to close display")
		}
		a.log.Info().Int("captures", a.sess.Captures()).Msg("Controller stopped")
	})
}
