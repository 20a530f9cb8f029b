package tray

import (
	"testing"

	"github.com/petems/instant-replay/internal/app"
	"github.com/petems/instant-replay/internal/command"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestTitleForState(t *testing.T) {
	tests := []struct {
		state app.State
		want  string
	}{
		{app.Listening, "🎥 🟢"},
		{app.Capturing, "🎥 🔴"},
		{app.Replaying, "🎥 🔁"},
		{app.Exited, "🎥 ⚪️"},
	}

	for _, tt := range tests {
		t.Run(tt.state.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, titleForState(tt.state))
		})
	}
}

// TestCommandItemsCoverNonExitKinds checks that every command except Exit
// has a menu entry; Exit is the Quit item.
func TestCommandItemsCoverNonExitKinds(t *testing.T) {
	var covered command.Set
	for _, item := range commandItems {
		assert.False(t, covered.Has(item.kind), "duplicate menu entry for %s", item.kind)
		covered = covered.With(item.kind)
	}
	for _, k := range command.Kinds {
		if k == command.Exit {
			assert.False(t, covered.Has(k))
			continue
		}
		assert.True(t, covered.Has(k), "no menu entry for %s", k)
	}
}

func TestRaiseSetsLatch(t *testing.T) {
	latch := command.NewLatch()
	u := New(Config{Latch: latch, Logger: zerolog.Nop()})

	u.raise(command.SpeedUp)
	u.raise(command.SpeedUp)
	assert.Equal(t, command.SetOf(command.SpeedUp), latch.Drain())
}

func TestOnStateChangeBeforeReady(t *testing.T) {
	u := New(Config{Latch: command.NewLatch(), Logger: zerolog.Nop()})
	// Must not touch systray before onReady
	u.OnStateChange(app.Listening, app.Capturing)
}
