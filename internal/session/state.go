// Package session holds the mutable record of the current replay session.
package session

import (
	"math"
	"sync"
)

// DefaultSpeedStep is the factor applied by one speed command.
const DefaultSpeedStep = 1.25

// SpeedLimits bounds the replay speed factor.
type SpeedLimits struct {
	Step float64 // multiplicative step, > 1
	Min  float64
	Max  float64
}

// Snapshot is a consistent copy of State for display.
type Snapshot struct {
	Captures  int
	Speed     float64
	LastHeard string
	ShowInfo  bool
}

// State is written by the controller, except LastHeard which belongs to the
// command sources. Readers take a Snapshot.
type State struct {
	limits SpeedLimits

	mu        sync.RWMutex
	captures  int
	speed     float64
	lastHeard string
	showInfo  bool
}

// New returns a State at the given initial speed.
func New(initialSpeed float64, limits SpeedLimits) *State {
	if limits.Step <= 1 {
		limits.Step = DefaultSpeedStep
	}
	if initialSpeed <= 0 {
		initialSpeed = 1
	}
	return &State{limits: limits, speed: initialSpeed}
}

// IncrementCaptures bumps the capture counter and returns the new value.
func (s *State) IncrementCaptures() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.captures++
	return s.captures
}

func (s *State) Captures() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.captures
}

// Speed is the replay interval multiplier; larger is slower.
func (s *State) Speed() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.speed
}

// SpeedUp shortens the replay interval by one step.
func (s *State) SpeedUp() float64 {
	return s.scaleSpeed(1 / s.limits.Step)
}

// SpeedDown lengthens the replay interval by one step.
func (s *State) SpeedDown() float64 {
	return s.scaleSpeed(s.limits.Step)
}

func (s *State) scaleSpeed(mult float64) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := s.speed * mult
	if s.limits.Min > 0 {
		next = math.Max(next, s.limits.Min)
	}
	if s.limits.Max > 0 {
		next = math.Min(next, s.limits.Max)
	}
	s.speed = next
	return s.speed
}

// ToggleInfo flips the info overlay flag and returns the new value.
func (s *State) ToggleInfo() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.showInfo = !s.showInfo
	return s.showInfo
}

func (s *State) SetLastHeard(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastHeard = text
}

func (s *State) LastHeard() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastHeard
}

func (s *State) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{
		Captures:  s.captures,
		Speed:     s.speed,
		LastHeard: s.lastHeard,
		ShowInfo:  s.showInfo,
	}
}
