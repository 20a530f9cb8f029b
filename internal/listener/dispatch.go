// Package listener feeds recognised speech and typed text into the command
// latch.
package listener

import (
	"regexp"
	"strings"

	"github.com/petems/instant-replay/internal/command"
	"github.com/petems/instant-replay/internal/session"
	"github.com/rs/zerolog"
)

// annotation matches recognizer markers such as [BLANK_AUDIO] or (music).
var annotation = regexp.MustCompile(`\[[^\]]*\]|\([^)]*\)`)

// Dispatcher normalizes text from any command source and raises the
// matching command. It is safe for concurrent use.
type Dispatcher struct {
	norm  *command.Normalizer
	latch *command.Latch
	sess  *session.State
	log   zerolog.Logger
}

func NewDispatcher(norm *command.Normalizer, latch *command.Latch, sess *session.State, log zerolog.Logger) *Dispatcher {
	return &Dispatcher{norm: norm, latch: latch, sess: sess, log: log}
}

// Dispatch records text as the last heard phrase and raises the command it
// names, if any. Text that is empty once recognizer annotations are removed
// is dropped without touching the session.
func (d *Dispatcher) Dispatch(source, text string) (command.Kind, bool) {
	text = strings.TrimSpace(annotation.ReplaceAllString(text, " "))
	if text == "" {
		return 0, false
	}

	d.sess.SetLastHeard(text)

	kind, ok := d.norm.Match(text)
	if !ok {
		d.log.Debug().Str("source", source).Str("text", text).Msg("No command in phrase")
		return 0, false
	}

	d.log.Info().
		Str("source", source).
		Str("text", text).
		Stringer("command", kind).
		Msg("Command recognised")
	d.latch.Raise(kind)
	return kind, true
}
