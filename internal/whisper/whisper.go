// Package whisper turns microphone audio into text with whisper.cpp.
package whisper

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	whisper "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"
	"github.com/rs/zerolog"

	"github.com/petems/instant-replay/internal/audio"
	"github.com/petems/instant-replay/internal/config"
)

// ErrModelMissing is returned when the model file is absent and
// auto-download is off.
var ErrModelMissing = errors.New("whisper model not found")

// chunkSamples is how much audio is gathered before each inference pass.
// Commands are short, so one and a half seconds keeps latency low.
const chunkSamples = audio.SampleRate * 3 / 2

// Transcriber interface for speech-to-text
type Transcriber interface {
	StartSession(opts SessionOpts) (Session, error)
	Close() error
}

// Session represents an active transcription session
type Session interface {
	Feed(samples []float32) error
	Finals() <-chan string
	Close() error
}

// SessionOpts configures a transcription session
type SessionOpts struct {
	Language string
	Threads  int
}

type whisperTranscriber struct {
	log       zerolog.Logger
	model     whisper.Model
	modelPath string
	mu        sync.Mutex
}

// New loads the configured model, downloading it first when allowed.
func New(cfg config.WhisperConfig, log zerolog.Logger) (Transcriber, error) {
	modelPath, err := resolveModel(cfg, config.ModelsPath(), func(model, dest string) error {
		return downloadModel(log, model, dest)
	})
	if err != nil {
		return nil, err
	}

	// Load model using official bindings
	model, err := whisper.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load model: %w", err)
	}

	log.Info().Str("model", cfg.Model).Str("path", modelPath).Msg("Speech model loaded")
	return &whisperTranscriber{
		log:       log,
		model:     model,
		modelPath: modelPath,
	}, nil
}

// resolveModel returns the on-disk path for cfg.Model, fetching it with
// download when it is missing and auto-download is on.
func resolveModel(cfg config.WhisperConfig, dir string, download func(model, dest string) error) (string, error) {
	modelPath := filepath.Join(dir, cfg.Model+".bin")
	if _, err := os.Stat(modelPath); err == nil {
		return modelPath, nil
	} else if !os.IsNotExist(err) {
		return "", fmt.Errorf("failed to stat model: %w", err)
	}

	if !cfg.AutoDownload {
		return "", fmt.Errorf("%w: %s", ErrModelMissing, modelPath)
	}
	if err := download(cfg.Model, modelPath); err != nil {
		return "", fmt.Errorf("failed to download model: %w", err)
	}
	return modelPath, nil
}

func (w *whisperTranscriber) StartSession(opts SessionOpts) (Session, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.model == nil {
		return nil, errors.New("transcriber closed")
	}

	return &whisperSession{
		log:     w.log,
		model:   w.model,
		opts:    opts,
		finals:  make(chan string, 10),
		samples: make([]float32, 0, chunkSamples*2),
		done:    make(chan struct{}),
	}, nil
}

func (w *whisperTranscriber) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.model != nil {
		w.model.Close()
		w.model = nil
	}
	return nil
}

// ===== SESSION =====

type whisperSession struct {
	log   zerolog.Logger
	model whisper.Model
	opts  SessionOpts

	mu         sync.Mutex
	samples    []float32
	processing bool
	closed     bool

	finals chan string
	done   chan struct{}
	wg     sync.WaitGroup
}

func (s *whisperSession) Feed(samples []float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errors.New("session closed")
	}

	s.samples = append(s.samples, samples...)

	// Process when we have enough audio
	if len(s.samples) >= chunkSamples && !s.processing {
		chunk := s.take()
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			if err := s.process(chunk); err != nil {
				s.log.Warn().Err(err).Msg("Transcription failed")
			}
		}()
	}

	return nil
}

// take moves the buffered samples out. Callers hold mu.
func (s *whisperSession) take() []float32 {
	chunk := make([]float32, len(s.samples))
	copy(chunk, s.samples)
	s.samples = s.samples[:0]
	s.processing = true
	return chunk
}

func (s *whisperSession) process(samples []float32) error {
	defer func() {
		s.mu.Lock()
		s.processing = false
		s.mu.Unlock()
	}()

	wctx, err := s.model.NewContext()
	if err != nil {
		return fmt.Errorf("failed to create context: %w", err)
	}

	if s.opts.Threads > 0 {
		wctx.SetThreads(uint(s.opts.Threads))
	}
	if s.opts.Language != "auto" && s.opts.Language != "" {
		if err := wctx.SetLanguage(s.opts.Language); err != nil {
			return fmt.Errorf("failed to set language %q: %w", s.opts.Language, err)
		}
	}
	wctx.SetTranslate(false)

	if err := wctx.Process(samples, nil, nil); err != nil {
		return fmt.Errorf("whisper process failed: %w", err)
	}

	var parts []string
	for {
		segment, err := wctx.NextSegment()
		if err != nil {
			break // EOF
		}
		if text := strings.TrimSpace(segment.Text); text != "" {
			parts = append(parts, text)
		}
	}
	if len(parts) == 0 {
		return nil
	}

	select {
	case s.finals <- strings.Join(parts, " "):
	case <-s.done:
	default:
		s.log.Debug().Msg("Dropping transcript, consumer is behind")
	}
	return nil
}

func (s *whisperSession) Finals() <-chan string {
	return s.finals
}

// Close waits for in-flight inference, transcribes any remaining audio and
// closes Finals.
func (s *whisperSession) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.wg.Wait()

	s.mu.Lock()
	var rest []float32
	if len(s.samples) > 0 {
		rest = s.take()
	}
	s.mu.Unlock()

	if rest != nil {
		if err := s.process(rest); err != nil {
			s.log.Warn().Err(err).Msg("Transcription of trailing audio failed")
		}
	}

	close(s.done)
	close(s.finals)
	return nil
}
