package frame

import (
	"errors"
	"time"
)

// Frame is one snapshot of capture device output. Data is never written
// after the frame leaves its source.
type Frame struct {
	// Seq is the monotonic sequence number assigned by the source
	Seq uint64
	// Timestamp is when the frame was acquired
	Timestamp time.Time
	Width     int
	Height    int
	// Data holds packed RGB pixels, Width*Height*3 bytes
	Data []byte
}

// Clone returns a deep copy of f.
func (f Frame) Clone() Frame {
	out := f
	if f.Data != nil {
		out.Data = make([]byte, len(f.Data))
		copy(out.Data, f.Data)
	}
	return out
}

// ErrEndOfStream is returned by a frame source that will produce no more
// frames.
var ErrEndOfStream = errors.New("frame source exhausted")
