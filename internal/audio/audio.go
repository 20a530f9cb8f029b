package audio

import "context"

// SampleRate is the rate the recognizer expects.
const SampleRate = 16000

// Capture defines the interface for microphone capture
type Capture interface {
	// Start opens the device and streams mono chunks to out until ctx is
	// done. It returns once the stream is running.
	Start(ctx context.Context, deviceID string, sampleRate int, out chan<- []float32) error
	Stop() error
	ListDevices() ([]AudioDevice, error)
	Close() error
}

// AudioDevice represents an audio input device
type AudioDevice struct {
	ID       string
	Name     string
	Channels int
	Default  bool
}
