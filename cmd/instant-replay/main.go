package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	"github.com/petems/instant-replay/internal/app"
	"github.com/petems/instant-replay/internal/audio"
	"github.com/petems/instant-replay/internal/command"
	"github.com/petems/instant-replay/internal/config"
	"github.com/petems/instant-replay/internal/console"
	"github.com/petems/instant-replay/internal/cue"
	"github.com/petems/instant-replay/internal/display"
	"github.com/petems/instant-replay/internal/hotkey"
	"github.com/petems/instant-replay/internal/listener"
	"github.com/petems/instant-replay/internal/logging"
	"github.com/petems/instant-replay/internal/permissions"
	"github.com/petems/instant-replay/internal/playback"
	"github.com/petems/instant-replay/internal/session"
	"github.com/petems/instant-replay/internal/tray"
	"github.com/petems/instant-replay/internal/video"
	"github.com/petems/instant-replay/internal/whisper"
)

var (
	// Version is set via ldflags at build time
	Version = "dev"
	// Commit is set via ldflags at build time
	Commit = "unknown"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		log := logging.New()
		log.Error().Err(err).Msg("Instant Replay stopped")
		os.Exit(1)
	}
}

type options struct {
	configPath  string
	listDevices bool
	version     bool
}

func parseFlags(args []string) (options, error) {
	var opts options
	flags := pflag.NewFlagSet("instant-replay", pflag.ContinueOnError)
	flags.StringVarP(&opts.configPath, "config", "c", "", "config file (default: per-user config directory)")
	flags.BoolVar(&opts.listDevices, "list-devices", false, "print cameras and microphones, then exit")
	flags.BoolVarP(&opts.version, "version", "v", false, "print version, then exit")
	if err := flags.Parse(args); err != nil {
		return options{}, err
	}
	return opts, nil
}

// run owns every device it opens, so deferred releases happen before main
// decides the exit code.
func run(args []string) error {
	opts, err := parseFlags(args)
	if errors.Is(err, pflag.ErrHelp) {
		return nil
	}
	if err != nil {
		return err
	}
	if opts.version {
		fmt.Printf("instant-replay %s (%s)\n", Version, Commit)
		return nil
	}
	if opts.listDevices {
		return listDevices(os.Stdout)
	}

	// Load config from XDG/Library/AppData unless a path was given
	var cfg *config.Config
	if opts.configPath != "" {
		cfg, err = config.LoadFrom(opts.configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Initialize logger with configured level
	log := logging.NewWithLevel(cfg.LogLevel)
	log.Info().Str("version", Version).Str("config", cfg.Path()).Msg("Instant Replay starting...")

	vocab, err := cfg.Vocabulary()
	if err != nil {
		return fmt.Errorf("invalid trigger vocabulary: %w", err)
	}
	norm, err := command.NewNormalizer(vocab)
	if err != nil {
		return fmt.Errorf("invalid trigger vocabulary: %w", err)
	}

	// macOS requires explicit camera approval before capture works
	if err := permissions.EnsureCamera(); err != nil {
		return fmt.Errorf("required permissions not granted: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	camera, err := video.Open(video.Config{
		DeviceIndex: cfg.CaptureDeviceIndex,
		FallbackFPS: cfg.CaptureFPS,
		Logger:      log,
	})
	if err != nil {
		return fmt.Errorf("could not open camera %d: %w", cfg.CaptureDeviceIndex, err)
	}

	width, height := camera.Size()
	window, err := display.Open(display.Config{
		Width:  width,
		Height: height,
		FPS:    camera.FPS(),
		Logger: log,
	})
	if err != nil {
		camera.Close()
		return fmt.Errorf("could not open display window: %w", err)
	}

	latch := command.NewLatch()
	sess := session.New(cfg.InitialSpeed, cfg.SpeedLimits())
	dispatcher := listener.NewDispatcher(norm, latch, sess, log)

	player, err := cue.Load(cfg.ConfirmationCue, log)
	if err != nil {
		log.Warn().Err(err).Msg("Confirmation cue unavailable, continuing without it")
		player = cue.Nop()
	}
	defer player.Close()

	voice, closeVoice := startVoice(ctx, cfg, dispatcher, latch, log)

	go func() {
		if err := console.Run(ctx, os.Stdin, dispatcher, latch, log); err != nil {
			log.Debug().Err(err).Msg("Typed commands unavailable")
		}
	}()

	if hk := registerQuitHotkey(cfg.QuitHotkey, latch, log); hk != nil {
		defer hk.Close()
	}

	// Closing the window ends the session
	go func() {
		select {
		case <-window.Closed():
			latch.Raise(command.Exit)
		case <-latch.Done():
		}
	}()

	application := app.New(app.Config{
		Source:          camera,
		Renderer:        window,
		Cue:             player,
		Latch:           latch,
		Session:         sess,
		Engine:          playback.New(cfg.MinTick(), log),
		Logger:          log,
		CaptureDuration: cfg.CaptureDuration(),
		MaxFrames:       cfg.CaptureMaxFrames,
		MaxReadFailures: cfg.MaxReadFailures,
		BargeInRearm:    cfg.BargeInRearm,
		AutoLoop:        cfg.AutoLoop,
		ListeningHint:   listeningHint(vocab, voice != nil),
	})

	var runErr error
	if cfg.ShowTray {
		ui := tray.New(tray.Config{
			App:     cfg,
			Latch:   latch,
			Session: sess,
			Control: application,
			Logger:  log,
			Version: Version,
			Commit:  Commit,
		})
		application.AddListener(ui.OnStateChange)

		errc := make(chan error, 1)
		go func() {
			errc <- application.Run(ctx)
			ui.Quit()
		}()

		// Start tray UI - MUST run on main thread
		ui.Run()
		latch.Raise(command.Exit)
		runErr = <-errc
	} else {
		runErr = application.Run(ctx)
	}

	if voice != nil {
		voice.Stop()
		if err := voice.Wait(); err != nil {
			log.Warn().Err(err).Msg("Voice listener stopped with error")
		}
		closeVoice()
	}

	if runErr != nil {
		return fmt.Errorf("session ended with error: %w", runErr)
	}
	log.Info().Int("captures", sess.Captures()).Msg("Goodbye")
	return nil
}

// listDevices prints what --list-devices reports. Either half may be
// unavailable without failing the other.
func listDevices(w io.Writer) error {
	cams, camErr := video.ListDevices()

	var mics []audio.AudioDevice
	capture, micErr := audio.New(config.AudioConfig{}, zerolog.Nop())
	if micErr == nil {
		mics, micErr = capture.ListDevices()
		capture.Close()
	}

	writeDevices(w, cams, camErr, mics, micErr)
	if camErr != nil && micErr != nil {
		return fmt.Errorf("no devices could be listed: %w", errors.Join(camErr, micErr))
	}
	return nil
}

func writeDevices(w io.Writer, cams []video.Device, camErr error, mics []audio.AudioDevice, micErr error) {
	fmt.Fprintln(w, "Cameras (capture_device_index):")
	switch {
	case camErr != nil:
		fmt.Fprintf(w, "  unavailable: %v\n", camErr)
	case len(cams) == 0:
		fmt.Fprintln(w, "  none found")
	}
	for _, c := range cams {
		name := c.Name
		if name == "" {
			name = c.Path
		}
		fmt.Fprintf(w, "  %d\t%s\n", c.Index, name)
	}

	fmt.Fprintln(w, "Microphones (audio.device_id):")
	switch {
	case micErr != nil:
		fmt.Fprintf(w, "  unavailable: %v\n", micErr)
	case len(mics) == 0:
		fmt.Fprintln(w, "  none found")
	}
	for _, m := range mics {
		marker := " "
		if m.Default {
			marker = "*"
		}
		fmt.Fprintf(w, "%s %q\t%d ch\n", marker, m.ID, m.Channels)
	}
}

// startVoice wires microphone → whisper → dispatcher. Any failure leaves
// the app running on typed, tray and hotkey commands only. The returned
// func releases the model and PortAudio after the listener has stopped.
func startVoice(ctx context.Context, cfg *config.Config, d *listener.Dispatcher, latch *command.Latch, log zerolog.Logger) (*listener.Listener, func()) {
	if err := permissions.EnsureMicrophone(); err != nil {
		log.Warn().Err(err).Msg("Voice commands disabled")
		return nil, nil
	}

	capture, err := audio.New(cfg.Audio, log)
	if err != nil {
		log.Warn().Err(err).Msg("Voice commands disabled: audio unavailable")
		return nil, nil
	}

	transcriber, err := whisper.New(cfg.Whisper, log)
	if err != nil {
		capture.Close()
		log.Warn().Err(err).Msg("Voice commands disabled: speech model unavailable")
		return nil, nil
	}

	opts := whisper.SessionOpts{
		Language: cfg.Whisper.Language,
		Threads:  cfg.Whisper.Threads,
	}
	l := listener.New(listener.Config{
		Audio: capture,
		NewSession: func() (listener.Session, error) {
			return transcriber.StartSession(opts)
		},
		Dispatcher: d,
		Latch:      latch,
		DeviceID:   cfg.Audio.DeviceID,
		SampleRate: audio.SampleRate,
		Logger:     log,
	})
	if err := l.Start(ctx); err != nil {
		transcriber.Close()
		capture.Close()
		log.Warn().Err(err).Msg("Voice commands disabled")
		return nil, nil
	}

	return l, func() {
		transcriber.Close()
		capture.Close()
	}
}

func registerQuitHotkey(accel string, latch *command.Latch, log zerolog.Logger) hotkey.Manager {
	if accel == "" {
		return nil
	}
	hk, err := hotkey.New()
	if err != nil {
		log.Warn().Err(err).Msg("Quit hotkey unavailable")
		return nil
	}
	if err := hk.Register(accel, func(pressed bool) {
		if pressed {
			latch.Raise(command.Exit)
		}
	}); err != nil {
		hk.Close()
		log.Warn().Err(err).Str("hotkey", accel).Msg("Failed to register quit hotkey")
		return nil
	}
	log.Info().Str("hotkey", accel).Msg("Quit hotkey registered")
	return hk
}

// listeningHint names the first record phrase so the prompt matches the
// configured language.
func listeningHint(vocab command.Vocabulary, voice bool) string {
	verb := "Type"
	if voice {
		verb = "Say"
	}
	if phrases := vocab[command.StartRecord]; len(phrases) > 0 {
		return fmt.Sprintf("%s %q to capture", verb, phrases[0])
	}
	return "Waiting for command"
}
