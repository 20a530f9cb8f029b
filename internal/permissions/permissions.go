// Package permissions checks the OS privacy grants the app depends on.
package permissions

import "errors"

var (
	// ErrCameraDenied means the camera cannot be opened; the app cannot run.
	ErrCameraDenied = errors.New("camera permission not granted")
	// ErrMicrophoneDenied means voice commands are unavailable.
	ErrMicrophoneDenied = errors.New("microphone permission not granted")
)
