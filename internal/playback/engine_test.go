package playback

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/petems/instant-replay/internal/frame"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func snapshotOf(n int) frame.Snapshot {
	b := frame.NewBuffer(0)
	start := time.Now()
	for i := 0; i < n; i++ {
		_ = b.Append(frame.Frame{Seq: uint64(i), Timestamp: start.Add(time.Duration(i) * 10 * time.Millisecond)})
	}
	return b.Snapshot()
}

func TestPlayCompletesInOrder(t *testing.T) {
	e := New(time.Millisecond, zerolog.Nop())
	var seen []uint64

	res := e.Play(context.Background(), Request{
		Frames:   snapshotOf(5),
		Interval: 2 * time.Millisecond,
		Render: func(i int, f frame.Frame) error {
			seen = append(seen, f.Seq)
			return nil
		},
	})

	assert.Equal(t, Completed, res.Outcome)
	assert.Equal(t, 5, res.Frames)
	assert.Equal(t, []uint64{0, 1, 2, 3, 4}, seen)
}

func TestPlayDurationConvergesDespiteSlowRender(t *testing.T) {
	const (
		frames   = 20
		interval = 10 * time.Millisecond
		speed    = 1.5
	)
	expected := time.Duration(float64(frames) * float64(interval) * speed)

	for _, renderCost := range []time.Duration{0, 4 * time.Millisecond, 9 * time.Millisecond} {
		t.Run(renderCost.String(), func(t *testing.T) {
			e := New(time.Millisecond, zerolog.Nop())
			res := e.Play(context.Background(), Request{
				Frames:   snapshotOf(frames),
				Interval: interval,
				Speed:    func() float64 { return speed },
				Render: func(int, frame.Frame) error {
					time.Sleep(renderCost)
					return nil
				},
			})

			require.Equal(t, Completed, res.Outcome)
			assert.Equal(t, expected, res.Expected)
			assert.GreaterOrEqual(t, res.Elapsed, expected-5*time.Millisecond)
			assert.Less(t, res.Elapsed, expected+60*time.Millisecond)
		})
	}
}

func TestPlayStopsEarly(t *testing.T) {
	e := New(time.Millisecond, zerolog.Nop())
	var rendered atomic.Int32

	res := e.Play(context.Background(), Request{
		Frames:   snapshotOf(50),
		Interval: time.Millisecond,
		Render: func(int, frame.Frame) error {
			rendered.Add(1)
			return nil
		},
		Stop: func() bool { return rendered.Load() >= 3 },
	})

	assert.Equal(t, StoppedEarly, res.Outcome)
	assert.Equal(t, 3, res.Frames)
}

func TestPlayHonoursContext(t *testing.T) {
	e := New(time.Millisecond, zerolog.Nop())
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	res := e.Play(ctx, Request{
		Frames:   snapshotOf(100),
		Interval: 10 * time.Millisecond,
	})

	assert.Equal(t, StoppedEarly, res.Outcome)
	assert.Less(t, res.Frames, 100)
}

func TestSpeedReadEachFrame(t *testing.T) {
	e := New(time.Millisecond, zerolog.Nop())
	var calls atomic.Int32
	speed := func() float64 {
		if calls.Add(1) > 2 {
			return 2
		}
		return 1
	}

	res := e.Play(context.Background(), Request{
		Frames:   snapshotOf(4),
		Interval: 5 * time.Millisecond,
		Speed:    speed,
	})

	assert.Equal(t, int32(4), calls.Load())
	assert.Equal(t, 5*time.Millisecond*2+10*time.Millisecond*2, res.Expected)
}

func TestPlayEmptySnapshot(t *testing.T) {
	e := New(0, zerolog.Nop())
	res := e.Play(context.Background(), Request{Frames: snapshotOf(0), Interval: time.Millisecond})
	assert.Equal(t, Completed, res.Outcome)
	assert.Zero(t, res.Frames)
}
