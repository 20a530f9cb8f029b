// Package hotkey registers global keyboard shortcuts.
package hotkey

import (
	"fmt"
	"strings"
)

// Manager defines the interface for global hotkey management
type Manager interface {
	Register(accel string, callback func(pressed bool)) error
	Unregister(accel string) error
	Close() error
}

// Modifier is a set of modifier keys.
type Modifier uint8

const (
	ModShift Modifier = 1 << iota
	ModCtrl
	ModAlt
	ModSuper
)

// Accelerator is a parsed shortcut such as "Ctrl+Shift+Q".
type Accelerator struct {
	Mods Modifier
	Key  string // key name as written, e.g. "Escape", "Q", "F5"
}

var modifierNames = map[string]Modifier{
	"shift":   ModShift,
	"ctrl":    ModCtrl,
	"control": ModCtrl,
	"alt":     ModAlt,
	"option":  ModAlt,
	"super":   ModSuper,
	"cmd":     ModSuper,
	"command": ModSuper,
	"meta":    ModSuper,
}

// ParseAccelerator splits accel on "+". The last part is the key; every
// other part must be a modifier name. Matching is case-insensitive.
func ParseAccelerator(accel string) (Accelerator, error) {
	parts := strings.Split(accel, "+")
	var a Accelerator
	for i, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			return Accelerator{}, fmt.Errorf("invalid accelerator %q", accel)
		}
		if i == len(parts)-1 {
			a.Key = p
			break
		}
		mod, ok := modifierNames[strings.ToLower(p)]
		if !ok {
			return Accelerator{}, fmt.Errorf("unknown modifier %q in %q", p, accel)
		}
		a.Mods |= mod
	}
	return a, nil
}
