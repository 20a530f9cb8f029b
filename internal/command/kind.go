// Package command defines the closed set of user commands, the latch used to
// hand them from command sources to the controller, and the table-driven
// normaliser that turns recognised text into commands.
package command

import (
	"fmt"
	"strings"
)

// Kind is one of the closed set of commands. Declaration order is match
// priority: when an utterance contains phrases of two kinds, the lower value
// wins.
type Kind uint8

const (
	Exit Kind = iota
	StartRecord
	RepeatReplay
	ToggleInfo
	SpeedDown
	SpeedUp

	numKinds
)

// Kinds lists every command kind in priority order.
var Kinds = []Kind{Exit, StartRecord, RepeatReplay, ToggleInfo, SpeedDown, SpeedUp}

var kindNames = [...]string{
	Exit:         "exit",
	StartRecord:  "start_record",
	RepeatReplay: "repeat_replay",
	ToggleInfo:   "toggle_info",
	SpeedDown:    "speed_down",
	SpeedUp:      "speed_up",
}

func (k Kind) String() string {
	if k < numKinds {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// ParseKind maps a configuration key such as "start_record" to its Kind.
func ParseKind(name string) (Kind, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for k, n := range kindNames {
		if n == name {
			return Kind(k), nil
		}
	}
	return 0, fmt.Errorf("unknown command kind %q", name)
}

// Set is a collection of kinds, at most one occurrence each.
type Set uint32

func (s Set) Has(k Kind) bool { return s&(1<<k) != 0 }

func (s Set) With(k Kind) Set { return s | 1<<k }

func (s Set) Without(k Kind) Set { return s &^ (1 << k) }

func (s Set) Empty() bool { return s == 0 }

// Kinds returns the members of s in priority order.
func (s Set) Kinds() []Kind {
	var out []Kind
	for _, k := range Kinds {
		if s.Has(k) {
			out = append(out, k)
		}
	}
	return out
}

func (s Set) String() string {
	names := make([]string, 0, len(Kinds))
	for _, k := range s.Kinds() {
		names = append(names, k.String())
	}
	return "[" + strings.Join(names, " ") + "]"
}

// SetOf builds a Set from the given kinds.
func SetOf(kinds ...Kind) Set {
	var s Set
	for _, k := range kinds {
		s = s.With(k)
	}
	return s
}
