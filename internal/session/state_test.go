package session

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSpeedUpThenDownIsInverse(t *testing.T) {
	for _, start := range []float64{0.5, 1, 1.7, 3} {
		s := New(start, SpeedLimits{Step: 1.25})
		s.SpeedUp()
		s.SpeedDown()
		assert.InDelta(t, start, s.Speed(), 1e-9)

		s.SpeedDown()
		s.SpeedDown()
		s.SpeedUp()
		s.SpeedUp()
		assert.InDelta(t, start, s.Speed(), 1e-9)
	}
}

func TestSpeedDirection(t *testing.T) {
	s := New(1, SpeedLimits{Step: 1.25})
	assert.InDelta(t, 1.25, s.SpeedDown(), 1e-9, "slower means a larger factor")
	assert.InDelta(t, 1.0, s.SpeedUp(), 1e-9)
	assert.InDelta(t, 0.8, s.SpeedUp(), 1e-9)
}

func TestSpeedClamped(t *testing.T) {
	s := New(1, SpeedLimits{Step: 2, Min: 0.5, Max: 4})
	for i := 0; i < 10; i++ {
		s.SpeedDown()
	}
	assert.Equal(t, 4.0, s.Speed())
	for i := 0; i < 10; i++ {
		s.SpeedUp()
	}
	assert.Equal(t, 0.5, s.Speed())
}

func TestDefaults(t *testing.T) {
	s := New(0, SpeedLimits{})
	assert.Equal(t, 1.0, s.Speed())
	assert.InDelta(t, 1.25, s.SpeedDown(), 1e-9)
}

func TestCountersAndFlags(t *testing.T) {
	s := New(1, SpeedLimits{Step: 1.25})
	assert.Equal(t, 1, s.IncrementCaptures())
	assert.Equal(t, 2, s.IncrementCaptures())
	assert.True(t, s.ToggleInfo())
	assert.False(t, s.ToggleInfo())

	s.SetLastHeard("record")
	snap := s.Snapshot()
	assert.Equal(t, Snapshot{Captures: 2, Speed: 1, LastHeard: "record", ShowInfo: false}, snap)
}

func TestConcurrentAccess(t *testing.T) {
	s := New(1, SpeedLimits{Step: 1.25})
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			s.SetLastHeard("hello")
		}()
		go func() {
			defer wg.Done()
			_ = s.Snapshot()
		}()
	}
	wg.Wait()
	assert.Equal(t, "hello", s.LastHeard())
}
