package frame

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrCapacityExceeded is returned by Append when a capped buffer is full.
	ErrCapacityExceeded = errors.New("capture buffer capacity exceeded")
	// ErrSealed is returned by Append after the buffer has been snapshotted.
	ErrSealed = errors.New("capture buffer is sealed")
)

// Buffer holds the frames of one capture session. It is append-only until
// Snapshot is taken, after which it is sealed and further appends fail.
type Buffer struct {
	id       string
	capacity int

	mu     sync.Mutex
	frames []Frame
	sealed bool
}

// NewBuffer creates an empty buffer. A capacity of zero means uncapped; a
// positive capacity is also used as the allocation hint.
func NewBuffer(capacity int) *Buffer {
	if capacity < 0 {
		capacity = 0
	}
	return &Buffer{
		id:       uuid.New().String(),
		capacity: capacity,
		frames:   make([]Frame, 0, capacity),
	}
}

// ID identifies the capture session in logs.
func (b *Buffer) ID() string { return b.id }

func (b *Buffer) Append(f Frame) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.sealed {
		return ErrSealed
	}
	if b.capacity > 0 && len(b.frames) >= b.capacity {
		return ErrCapacityExceeded
	}
	b.frames = append(b.frames, f)
	return nil
}

func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.frames)
}

func (b *Buffer) IsEmpty() bool {
	return b.Len() == 0
}

// Snapshot seals the buffer and returns a read-only view of its frames.
func (b *Buffer) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sealed = true
	return Snapshot{id: b.id, frames: b.frames[:len(b.frames):len(b.frames)]}
}

// Snapshot is an immutable view over a sealed Buffer. It is safe to read
// from any goroutine without locking because nothing writes to it.
type Snapshot struct {
	id     string
	frames []Frame
}

func (s Snapshot) ID() string    { return s.id }
func (s Snapshot) Len() int      { return len(s.frames) }
func (s Snapshot) IsEmpty() bool { return len(s.frames) == 0 }

// At returns the i-th frame in capture order.
func (s Snapshot) At(i int) Frame { return s.frames[i] }

// Span is the acquisition time between the first and last frame.
func (s Snapshot) Span() time.Duration {
	if len(s.frames) < 2 {
		return 0
	}
	return s.frames[len(s.frames)-1].Timestamp.Sub(s.frames[0].Timestamp)
}
