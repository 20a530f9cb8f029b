// Package playback replays a sealed capture buffer at a time-accurate,
// adjustable rate.
package playback

import (
	"context"
	"time"

	"github.com/petems/instant-replay/internal/frame"
	"github.com/rs/zerolog"
)

// Outcome tells the caller why Play returned.
type Outcome int

const (
	Completed Outcome = iota
	StoppedEarly
)

func (o Outcome) String() string {
	switch o {
	case Completed:
		return "completed"
	case StoppedEarly:
		return "stopped_early"
	default:
		return "unknown"
	}
}

// DefaultMinTick is the smallest wait between two frames.
const DefaultMinTick = time.Millisecond

// Request describes one replay.
type Request struct {
	Frames frame.Snapshot
	// Interval is the native frame interval of the source (1 / fps)
	Interval time.Duration
	// Speed is read once per frame; nil means 1.0
	Speed func() float64
	// Render is asked to present frame i. Errors are logged and skipped.
	Render func(i int, f frame.Frame) error
	// Stop is checked before every frame; returning true ends the replay
	Stop func() bool
}

// Result reports what Play did.
type Result struct {
	Outcome  Outcome
	Frames   int // frames rendered
	Elapsed  time.Duration
	Expected time.Duration // sum of adjusted intervals for rendered frames
}

// Engine paces frames against an absolute deadline so that rendering cost
// and timer overshoot do not accumulate across a replay.
type Engine struct {
	minTick time.Duration
	log     zerolog.Logger
}

func New(minTick time.Duration, log zerolog.Logger) *Engine {
	if minTick <= 0 {
		minTick = DefaultMinTick
	}
	return &Engine{minTick: minTick, log: log}
}

// cursor is the transient replay position.
type cursor struct {
	index    int
	deadline time.Time
}

// Play blocks until the buffer is exhausted, Stop returns true or ctx is
// cancelled.
func (e *Engine) Play(ctx context.Context, req Request) Result {
	start := time.Now()
	res := Result{Outcome: Completed}

	timer := time.NewTimer(time.Hour)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	cur := cursor{deadline: start}
	for ; cur.index < req.Frames.Len(); cur.index++ {
		if ctx.Err() != nil || (req.Stop != nil && req.Stop()) {
			res.Outcome = StoppedEarly
			break
		}

		adjusted := adjustedInterval(req.Interval, req.Speed)
		res.Expected += adjusted

		if req.Render != nil {
			if err := req.Render(cur.index, req.Frames.At(cur.index)); err != nil {
				e.log.Warn().Err(err).Int("frame", cur.index).Msg("Render failed")
			}
		}
		res.Frames++

		now := time.Now()
		cur.deadline = cur.deadline.Add(adjusted)
		// After a stall longer than one interval, re-anchor rather than
		// rushing through the backlog.
		if now.Sub(cur.deadline) > adjusted {
			cur.deadline = now
		}
		wait := cur.deadline.Sub(now)
		if wait < e.minTick {
			wait = e.minTick
		}

		timer.Reset(wait)
		select {
		case <-ctx.Done():
			res.Outcome = StoppedEarly
			res.Elapsed = time.Since(start)
			return res
		case <-timer.C:
		}
	}

	res.Elapsed = time.Since(start)
	e.log.Debug().
		Str("outcome", res.Outcome.String()).
		Int("frames", res.Frames).
		Dur("elapsed", res.Elapsed).
		Dur("expected", res.Expected).
		Msg("Replay finished")
	return res
}

func adjustedInterval(native time.Duration, speed func() float64) time.Duration {
	s := 1.0
	if speed != nil {
		if v := speed(); v > 0 {
			s = v
		}
	}
	return time.Duration(float64(native) * s)
}
