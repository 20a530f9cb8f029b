package cue

import (
	"fmt"
	"os"
	"sync"
	"sync/atomic"

	"github.com/gordonklaus/portaudio"
	"github.com/rs/zerolog"
)

const framesPerBuffer = 256

// Player plays a cue without blocking the caller.
type Player interface {
	Play()
	Close() error
}

type nopPlayer struct{}

func (nopPlayer) Play()        {}
func (nopPlayer) Close() error { return nil }

// Nop is a Player that does nothing, used when no cue is configured.
func Nop() Player { return nopPlayer{} }

type portAudioPlayer struct {
	clip    Clip
	log     zerolog.Logger
	playing atomic.Bool
	wg      sync.WaitGroup
}

// Load decodes the WAV file at path and prepares it for playback on the
// default output device. An empty path yields Nop.
func Load(path string, log zerolog.Logger) (Player, error) {
	if path == "" {
		return Nop(), nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open cue: %w", err)
	}
	defer f.Close()

	clip, err := DecodeWAV(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode cue %s: %w", path, err)
	}

	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize PortAudio: %w", err)
	}

	log.Debug().
		Str("path", path).
		Int("sample_rate", clip.SampleRate).
		Int("channels", clip.Channels).
		Float64("seconds", clip.Duration()).
		Msg("Confirmation cue loaded")
	return &portAudioPlayer{clip: clip, log: log}, nil
}

// Play starts playback in the background. A Play while the cue is still
// sounding is dropped.
func (p *portAudioPlayer) Play() {
	if !p.playing.CompareAndSwap(false, true) {
		return
	}
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer p.playing.Store(false)
		if err := p.play(); err != nil {
			p.log.Warn().Err(err).Msg("Failed to play confirmation cue")
		}
	}()
}

func (p *portAudioPlayer) play() error {
	channels := p.clip.Channels
	buffer := make([]float32, framesPerBuffer*channels)
	stream, err := portaudio.OpenDefaultStream(0, channels, float64(p.clip.SampleRate), framesPerBuffer, buffer)
	if err != nil {
		return fmt.Errorf("open output stream: %w", err)
	}
	defer stream.Close()

	if err := stream.Start(); err != nil {
		return fmt.Errorf("start output stream: %w", err)
	}
	defer stream.Stop()

	for off := 0; off < len(p.clip.Samples); off += len(buffer) {
		n := copy(buffer, p.clip.Samples[off:])
		// Zero the tail of the last buffer
		for i := n; i < len(buffer); i++ {
			buffer[i] = 0
		}
		if err := stream.Write(); err != nil {
			return fmt.Errorf("write output stream: %w", err)
		}
	}
	return nil
}

// Close waits for a playing cue to finish.
func (p *portAudioPlayer) Close() error {
	p.wg.Wait()
	return portaudio.Terminate()
}
