package app

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/petems/instant-replay/internal/command"
	"github.com/petems/instant-replay/internal/frame"
	"github.com/petems/instant-replay/internal/playback"
	"github.com/petems/instant-replay/internal/session"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Mock implementations for testing

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	return c.now
}

// fakeSource produces frames at fps on the fake clock. A negative remaining
// count means unlimited.
type fakeSource struct {
	clock *fakeClock
	fps   float64

	mu        sync.Mutex
	remaining int
	failAll   bool
	reads     int
	flushes   int
	seq       uint64
	closed    bool
}

func (s *fakeSource) Read(ctx context.Context) (frame.Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reads++
	if s.failAll {
		return frame.Frame{}, errors.New("read failed")
	}
	if s.remaining == 0 {
		return frame.Frame{}, frame.ErrEndOfStream
	}
	if s.remaining > 0 {
		s.remaining--
	}
	s.seq++
	at := s.clock.Advance(time.Duration(float64(time.Second) / s.fps))
	return frame.Frame{Seq: s.seq, Timestamp: at, Width: 1, Height: 1, Data: []byte{0, 0, 0}}, nil
}

func (s *fakeSource) FPS() float64 { return s.fps }

func (s *fakeSource) Flush() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flushes++
}

func (s *fakeSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *fakeSource) Reads() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reads
}

type fakeRenderer struct {
	mu       sync.Mutex
	overlays []string
	closed   bool
	// onRender is called after each render with the overlay text
	onRender func(overlay string)
}

func (r *fakeRenderer) Render(f frame.Frame, overlay string) error {
	r.mu.Lock()
	r.overlays = append(r.overlays, overlay)
	hook := r.onRender
	r.mu.Unlock()
	if hook != nil {
		hook(overlay)
	}
	return nil
}

func (r *fakeRenderer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func (r *fakeRenderer) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.overlays)
}

type countingCue struct {
	mu    sync.Mutex
	plays int
}

func (c *countingCue) Play() {
	c.mu.Lock()
	c.plays++
	c.mu.Unlock()
}

type harness struct {
	app      *App
	clock    *fakeClock
	source   *fakeSource
	renderer *fakeRenderer
	latch    *command.Latch
	sess     *session.State
	cue      *countingCue

	mu     sync.Mutex
	states []State
}

func newHarness(t *testing.T, fps float64, frames int, rearm bool) *harness {
	t.Helper()
	clock := newFakeClock()
	h := &harness{
		clock:    clock,
		source:   &fakeSource{clock: clock, fps: fps, remaining: frames},
		renderer: &fakeRenderer{},
		latch:    command.NewLatch(),
		sess:     session.New(1, session.SpeedLimits{Step: 1.25}),
		cue:      &countingCue{},
	}
	h.app = New(Config{
		Source:          h.source,
		Renderer:        h.renderer,
		Cue:             h.cue,
		Latch:           h.latch,
		Session:         h.sess,
		Engine:          playback.New(time.Millisecond, zerolog.Nop()),
		Logger:          zerolog.Nop(),
		CaptureDuration: 500 * time.Millisecond,
		BargeInRearm:    rearm,
		Now:             clock.Now,
	})
	h.app.AddListener(func(prev, next State) {
		h.mu.Lock()
		h.states = append(h.states, next)
		h.mu.Unlock()
	})
	return h
}

func (h *harness) on(state State, fn func()) {
	h.app.AddListener(func(prev, next State) {
		if next == state {
			fn()
		}
	})
}

func (h *harness) run(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, h.app.Run(ctx))
	require.NoError(t, ctx.Err(), "controller did not stop on its own")
}

func (h *harness) Sequence() []State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]State(nil), h.states...)
}

func TestInitialStateIsListening(t *testing.T) {
	h := newHarness(t, 100, -1, true)
	assert.Equal(t, Listening, h.app.State())
}

func TestCaptureThenReplaySequence(t *testing.T) {
	h := newHarness(t, 100, -1, true)
	h.latch.Raise(command.StartRecord)

	var replaying bool
	h.on(Replaying, func() { replaying = true })
	h.on(Listening, func() {
		if replaying {
			h.latch.Raise(command.Exit)
		}
	})

	h.run(t)

	assert.Equal(t, []State{Capturing, Replaying, Listening, Exited}, h.Sequence())
	assert.Equal(t, 1, h.sess.Captures())
	assert.Equal(t, playback.Completed, h.app.LastReplay().Outcome)
	assert.Equal(t, 1, h.cue.plays)
}

func TestCaptureLengthMatchesDurationTimesRate(t *testing.T) {
	for _, tc := range []struct {
		fps      float64
		duration time.Duration
	}{
		{30, time.Second},
		{25, 2 * time.Second},
		{60, 500 * time.Millisecond},
		{29.97, 1500 * time.Millisecond},
	} {
		h := newHarness(t, tc.fps, -1, true)
		h.app.duration = tc.duration
		h.latch.Raise(command.StartRecord)
		h.on(Replaying, func() { h.latch.Raise(command.Exit) })

		h.run(t)

		require.NotNil(t, h.app.last)
		want := tc.duration.Seconds() * tc.fps
		got := float64(h.app.last.Len())
		assert.InDelta(t, want, got, 1, "fps=%v duration=%v", tc.fps, tc.duration)
	}
}

func TestEmptyCaptureSkipsReplay(t *testing.T) {
	h := newHarness(t, 100, 0, true)
	h.latch.Raise(command.StartRecord)

	h.run(t)

	assert.Equal(t, []State{Capturing, Listening, Exited}, h.Sequence())
	assert.NotContains(t, h.Sequence(), Replaying)
	assert.Zero(t, h.sess.Captures())
}

func TestRepeatWithoutCaptureIsIgnored(t *testing.T) {
	h := newHarness(t, 100, 20, true)
	h.latch.Raise(command.RepeatReplay)

	h.run(t)

	// Frames run out while listening; replay is never entered.
	assert.Equal(t, []State{Exited}, h.Sequence())
	assert.Contains(t, h.renderer.overlays[0], "Nothing to replay yet")
}

func TestRepeatReplaysLastCapture(t *testing.T) {
	h := newHarness(t, 100, -1, true)
	h.latch.Raise(command.StartRecord)

	replays := 0
	h.on(Replaying, func() { replays++ })
	h.on(Listening, func() {
		if replays == 1 {
			h.latch.Raise(command.RepeatReplay)
		} else {
			h.latch.Raise(command.Exit)
		}
	})

	h.run(t)

	assert.Equal(t, []State{Capturing, Replaying, Listening, Replaying, Listening, Exited}, h.Sequence())
	assert.Equal(t, 1, h.sess.Captures(), "repeat must not count as a new capture")
}

func TestBargeInStopsReplayAndRearms(t *testing.T) {
	h := newHarness(t, 100, -1, true)
	h.latch.Raise(command.StartRecord)

	captures := 0
	h.on(Capturing, func() {
		captures++
		if captures == 2 {
			h.latch.Raise(command.Exit)
		}
	})
	h.on(Replaying, func() { h.latch.Raise(command.StartRecord) })

	h.run(t)

	assert.Equal(t, playback.StoppedEarly, h.app.LastReplay().Outcome)
	assert.Equal(t, []State{Capturing, Replaying, Listening, Capturing, Exited}, h.Sequence())
}

func TestBargeInWithoutRearmReturnsToListening(t *testing.T) {
	h := newHarness(t, 100, 200, false)
	h.latch.Raise(command.StartRecord)
	h.on(Replaying, func() { h.latch.Raise(command.StartRecord) })

	h.run(t)

	assert.Equal(t, playback.StoppedEarly, h.app.LastReplay().Outcome)
	// The interrupting command is consumed; frames then run out while listening.
	assert.Equal(t, []State{Capturing, Replaying, Listening, Exited}, h.Sequence())
}

func TestExitFromEveryState(t *testing.T) {
	for _, state := range []State{Listening, Capturing, Replaying} {
		t.Run(state.String(), func(t *testing.T) {
			h := newHarness(t, 100, -1, true)
			var readsAtExit, rendersAtExit int

			if state == Listening {
				h.latch.Raise(command.Exit)
			} else {
				h.latch.Raise(command.StartRecord)
				h.on(state, func() { h.latch.Raise(command.Exit) })
			}
			h.on(Exited, func() {
				readsAtExit = h.source.Reads()
				rendersAtExit = h.renderer.Count()
			})

			h.run(t)

			assert.Equal(t, Exited, h.app.State())
			assert.Equal(t, readsAtExit, h.source.Reads())
			assert.Equal(t, rendersAtExit, h.renderer.Count())
			assert.True(t, h.source.closed)
			assert.True(t, h.renderer.closed)
		})
	}
}

func TestExitOnReplayEntryExitsBeforePlayback(t *testing.T) {
	h := newHarness(t, 100, -1, true)
	h.latch.Raise(command.StartRecord)
	h.on(Replaying, func() { h.latch.Raise(command.Exit) })

	h.run(t)

	assert.Equal(t, []State{Capturing, Replaying, Exited}, h.Sequence())
	assert.Zero(t, h.app.LastReplay().Frames)
}

// replayHook raises kind once the nth replay frame has been rendered.
func replayHook(h *harness, n int, kind command.Kind) {
	rendered := 0
	h.renderer.onRender = func(overlay string) {
		if strings.HasPrefix(overlay, "REPLAY") {
			rendered++
			if rendered == n {
				h.latch.Raise(kind)
			}
		}
	}
}

func TestExitDuringReplayStopsEarly(t *testing.T) {
	h := newHarness(t, 100, -1, true)
	h.latch.Raise(command.StartRecord)
	replayHook(h, 3, command.Exit)

	h.run(t)

	res := h.app.LastReplay()
	assert.Equal(t, playback.StoppedEarly, res.Outcome)
	assert.Equal(t, 3, res.Frames)
	assert.Equal(t, []State{Capturing, Replaying, Exited}, h.Sequence(),
		"exit during replay must not pass through listening")
}

func TestBargeInOnReplayEntrySkipsPlayback(t *testing.T) {
	h := newHarness(t, 100, 200, false)
	h.latch.Raise(command.StartRecord)
	h.on(Replaying, func() { h.latch.Raise(command.StartRecord) })

	h.run(t)

	res := h.app.LastReplay()
	assert.Equal(t, playback.StoppedEarly, res.Outcome)
	assert.Zero(t, res.Frames, "no replay frame may be shown after the barge-in")
	assert.Equal(t, []State{Capturing, Replaying, Listening, Exited}, h.Sequence())
}

func TestBargeInMidReplayRearms(t *testing.T) {
	h := newHarness(t, 100, -1, true)
	h.latch.Raise(command.StartRecord)
	replayHook(h, 5, command.StartRecord)

	captures := 0
	h.on(Capturing, func() {
		captures++
		if captures == 2 {
			h.latch.Raise(command.Exit)
		}
	})

	h.run(t)

	res := h.app.LastReplay()
	assert.Equal(t, playback.StoppedEarly, res.Outcome)
	assert.Equal(t, 5, res.Frames)
	assert.Equal(t, []State{Capturing, Replaying, Listening, Capturing, Exited}, h.Sequence())
}

func TestAutoLoopRepeatsUntilSourceEnds(t *testing.T) {
	h := newHarness(t, 100, 120, false)
	h.app.autoLoop = true
	h.latch.Raise(command.StartRecord)

	h.run(t)

	// 50 reads per capture: two full captures, a partial one of 20 frames,
	// then an empty capture when the source is exhausted.
	assert.Equal(t, 3, h.sess.Captures())
	assert.Equal(t, []State{
		Capturing, Replaying, Listening,
		Capturing, Replaying, Listening,
		Capturing, Replaying, Listening,
		Capturing, Listening, Exited,
	}, h.Sequence())
	assert.Equal(t, playback.Completed, h.app.LastReplay().Outcome)
}

func TestAutoLoopDoesNotRearmAfterBargeIn(t *testing.T) {
	h := newHarness(t, 100, 200, false)
	h.app.autoLoop = true
	h.latch.Raise(command.StartRecord)
	replayHook(h, 2, command.StartRecord)

	h.run(t)

	assert.Equal(t, 1, h.sess.Captures())
	assert.Equal(t, []State{Capturing, Replaying, Listening, Exited}, h.Sequence())
}

func TestCaptureFlushesQueuedFrames(t *testing.T) {
	h := newHarness(t, 100, -1, true)
	h.latch.Raise(command.StartRecord)
	h.on(Replaying, func() { h.latch.Raise(command.Exit) })

	h.run(t)

	assert.Equal(t, 1, h.source.flushes)
}

func TestSpeedAndInfoDoNotChangeState(t *testing.T) {
	h := newHarness(t, 100, 10, true)
	h.latch.Raise(command.SpeedDown)
	h.latch.Raise(command.ToggleInfo)

	h.run(t)

	assert.InDelta(t, 1.25, h.sess.Speed(), 1e-9)
	assert.True(t, h.sess.Snapshot().ShowInfo)
	assert.Equal(t, []State{Exited}, h.Sequence())
	assert.Contains(t, h.renderer.overlays[0], "Captures: 0")
}

func TestSustainedReadFailureEndsSession(t *testing.T) {
	h := newHarness(t, 100, -1, true)
	h.source.failAll = true
	h.app.maxFailures = 5

	h.run(t)

	assert.Equal(t, 5, h.source.Reads())
	assert.Equal(t, []State{Exited}, h.Sequence())
	assert.True(t, h.latch.ExitRequested(), "exit is latched for the command sources")
}

func TestContextCancelReleasesDevices(t *testing.T) {
	h := newHarness(t, 100, -1, true)
	ctx, cancel := context.WithCancel(context.Background())
	h.on(Capturing, cancel)
	h.latch.Raise(command.StartRecord)

	require.NoError(t, h.app.Run(ctx))

	assert.Equal(t, Exited, h.app.State())
	assert.True(t, h.source.closed)
	assert.True(t, h.renderer.closed)
}

func TestCapacityCapEndsCaptureEarly(t *testing.T) {
	h := newHarness(t, 100, -1, true)
	h.app.maxFrames = 7
	h.latch.Raise(command.StartRecord)
	h.on(Replaying, func() { h.latch.Raise(command.Exit) })

	h.run(t)

	require.NotNil(t, h.app.last)
	assert.Equal(t, 7, h.app.last.Len())
}

func TestDrainPendingCommandsCollapses(t *testing.T) {
	h := newHarness(t, 100, -1, true)
	h.latch.Raise(command.SpeedUp)
	h.latch.Raise(command.SpeedUp)
	h.latch.Raise(command.ToggleInfo)

	assert.Equal(t, command.SetOf(command.SpeedUp, command.ToggleInfo), h.app.DrainPendingCommands())
	assert.True(t, h.app.DrainPendingCommands().Empty())
}
