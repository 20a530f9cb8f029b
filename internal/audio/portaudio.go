package audio

import (
	"context"
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"
	"github.com/petems/instant-replay/internal/config"
	"github.com/rs/zerolog"
)

const framesPerBuffer = 512

type portAudioCapture struct {
	log zerolog.Logger

	mu     sync.Mutex
	stream *portaudio.Stream
	done   chan struct{}
}

// New initializes PortAudio and returns a microphone capture
func New(cfg config.AudioConfig, log zerolog.Logger) (Capture, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize PortAudio: %w", err)
	}
	return &portAudioCapture{log: log}, nil
}

func findInputDevice(deviceID string) (*portaudio.DeviceInfo, error) {
	if deviceID == "" {
		device, err := portaudio.DefaultInputDevice()
		if err != nil {
			return nil, fmt.Errorf("failed to get default input device: %w", err)
		}
		return device, nil
	}

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate devices: %w", err)
	}
	for _, d := range devices {
		if d.Name == deviceID && d.MaxInputChannels > 0 {
			return d, nil
		}
	}
	return nil, fmt.Errorf("device not found: %s", deviceID)
}

func (p *portAudioCapture) Start(ctx context.Context, deviceID string, sampleRate int, out chan<- []float32) error {
	device, err := findInputDevice(deviceID)
	if err != nil {
		return err
	}

	channels := captureChannels(device.MaxInputChannels)
	if channels == 0 {
		return fmt.Errorf("device %s has no input channels", device.Name)
	}

	buffer := make([]float32, framesPerBuffer*channels)
	stream, err := portaudio.OpenStream(portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   device,
			Channels: channels,
			Latency:  device.DefaultLowInputLatency,
		},
		SampleRate:      float64(sampleRate),
		FramesPerBuffer: framesPerBuffer,
	}, buffer)
	if err != nil {
		return fmt.Errorf("failed to open audio stream: %w", err)
	}

	if err := stream.Start(); err != nil {
		stream.Close()
		return fmt.Errorf("failed to start audio stream: %w", err)
	}

	done := make(chan struct{})
	p.mu.Lock()
	p.stream = stream
	p.done = done
	p.mu.Unlock()

	p.log.Info().
		Str("device", device.Name).
		Int("channels", channels).
		Int("sample_rate", sampleRate).
		Msg("Microphone opened")

	// Read loop
	go func() {
		defer close(done)
		defer stream.Close()
		for {
			select {
			case <-ctx.Done():
				stream.Stop()
				return
			default:
			}

			if err := stream.Read(); err != nil {
				// Overflows are transient; anything else ends the stream.
				if err == portaudio.InputOverflowed {
					continue
				}
				p.log.Error().Err(err).Msg("Audio read failed")
				return
			}

			samples := downmixInterleaved(buffer, channels, framesPerBuffer)
			select {
			case out <- samples:
			case <-ctx.Done():
				stream.Stop()
				return
			default:
				// Drop if channel full (backpressure)
			}
		}
	}()

	return nil
}

// captureChannels returns how many channels to open on a device. Some USB
// microphones only expose stereo, so up to two are captured and downmixed.
// Zero means the device cannot record.
func captureChannels(reported int) int {
	switch {
	case reported < 1:
		return 0
	case reported > 2:
		return 2
	default:
		return reported
	}
}

// downmixInterleaved averages interleaved channels into a new mono slice.
func downmixInterleaved(in []float32, channels, frames int) []float32 {
	out := make([]float32, frames)
	if channels <= 1 {
		copy(out, in[:frames])
		return out
	}
	for i := 0; i < frames; i++ {
		var sum float32
		base := i * channels
		for c := 0; c < channels; c++ {
			sum += in[base+c]
		}
		out[i] = sum / float32(channels)
	}
	return out
}

// Stop waits for the read loop to exit after its context is cancelled.
func (p *portAudioCapture) Stop() error {
	p.mu.Lock()
	done := p.done
	p.mu.Unlock()
	if done != nil {
		<-done
	}
	return nil
}

func (p *portAudioCapture) ListDevices() ([]AudioDevice, error) {
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}

	result := make([]AudioDevice, 0, len(devices))
	defaultDevice, _ := portaudio.DefaultInputDevice()

	for _, d := range devices {
		if d.MaxInputChannels > 0 {
			result = append(result, AudioDevice{
				ID:       d.Name,
				Name:     d.Name,
				Channels: d.MaxInputChannels,
				Default:  d == defaultDevice,
			})
		}
	}

	return result, nil
}

func (p *portAudioCapture) Close() error {
	return portaudio.Terminate()
}
