package listener

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/petems/instant-replay/internal/command"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

const defaultSampleRate = 16000

// AudioSource streams mono samples until the context passed to Start is
// done. Stop waits for the stream to wind down.
type AudioSource interface {
	Start(ctx context.Context, deviceID string, sampleRate int, out chan<- []float32) error
	Stop() error
}

// Session turns fed audio into final transcripts. Close flushes pending
// audio and closes Finals.
type Session interface {
	Feed(samples []float32) error
	Finals() <-chan string
	Close() error
}

// SessionFactory opens a recognition session.
type SessionFactory func() (Session, error)

type Config struct {
	Audio      AudioSource
	NewSession SessionFactory
	Dispatcher *Dispatcher
	Latch      *command.Latch
	DeviceID   string
	SampleRate int
	Logger     zerolog.Logger
}

// Listener is the voice command source. It runs until Stop, until its
// context ends, or until EXIT is raised on the latch.
type Listener struct {
	cfg Config
	log zerolog.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	group   *errgroup.Group
	started bool
}

func New(cfg Config) *Listener {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = defaultSampleRate
	}
	return &Listener{cfg: cfg, log: cfg.Logger}
}

// Start opens the microphone and recognizer and returns once both are
// running. Failures here leave nothing running.
func (l *Listener) Start(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.started {
		return errors.New("listener already started")
	}

	sess, err := l.cfg.NewSession()
	if err != nil {
		return fmt.Errorf("failed to start recognition session: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(ctx)

	// The microphone stops with the group, including when feed fails.
	samples := make(chan []float32, 32)
	if err := l.cfg.Audio.Start(gctx, l.cfg.DeviceID, l.cfg.SampleRate, samples); err != nil {
		cancel()
		sess.Close()
		return fmt.Errorf("failed to start microphone: %w", err)
	}

	g.Go(func() error { return l.feed(gctx, sess, samples) })
	g.Go(func() error { return l.collect(sess) })
	g.Go(func() error {
		select {
		case <-l.cfg.Latch.Done():
			cancel()
		case <-gctx.Done():
		}
		return nil
	})

	l.cancel = cancel
	l.group = g
	l.started = true
	l.log.Info().Msg("Listening for voice commands")
	return nil
}

// feed moves audio into the session. On shutdown it stops the microphone
// and closes the session, which ends collect.
func (l *Listener) feed(ctx context.Context, sess Session, samples <-chan []float32) error {
	defer func() {
		if err := l.cfg.Audio.Stop(); err != nil {
			l.log.Warn().Err(err).Msg("Failed to stop microphone")
		}
		if err := sess.Close(); err != nil {
			l.log.Warn().Err(err).Msg("Failed to close recognition session")
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case chunk := <-samples:
			if err := sess.Feed(chunk); err != nil {
				return fmt.Errorf("feed audio: %w", err)
			}
		}
	}
}

func (l *Listener) collect(sess Session) error {
	for text := range sess.Finals() {
		l.cfg.Dispatcher.Dispatch("voice", text)
	}
	return nil
}

// Stop asks the listener to shut down. Wait blocks until it has.
func (l *Listener) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cancel != nil {
		l.cancel()
	}
}

func (l *Listener) Wait() error {
	l.mu.Lock()
	g, cancel := l.group, l.cancel
	l.mu.Unlock()
	if g == nil {
		return nil
	}
	err := g.Wait()
	cancel()
	l.log.Debug().Msg("Voice listener stopped")
	return err
}
