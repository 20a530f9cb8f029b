//go:build darwin

package hotkey

/*
#cgo LDFLAGS: -framework Carbon
#include <Carbon/Carbon.h>

// Forward declaration for Go callback
extern void goHotkeyCallback(int pressed);

static EventHotKeyRef hotKeyRef = NULL;
static int handlerInstalled = 0;

// Event handler for hotkeys
static OSStatus hotkeyHandler(EventHandlerCallRef nextHandler, EventRef theEvent, void* userData) {
    UInt32 eventKind = GetEventKind(theEvent);
    int pressed = (eventKind == kEventHotKeyPressed) ? 1 : 0;

    goHotkeyCallback(pressed);

    return noErr;
}

// Register hotkey with Carbon
static int registerHotkey(UInt32 keyCode, UInt32 modifiers) {
    if (!handlerInstalled) {
        EventTypeSpec eventTypes[2];
        eventTypes[0].eventClass = kEventClassKeyboard;
        eventTypes[0].eventKind = kEventHotKeyPressed;
        eventTypes[1].eventClass = kEventClassKeyboard;
        eventTypes[1].eventKind = kEventHotKeyReleased;

        EventHandlerUPP handlerUPP = NewEventHandlerUPP(hotkeyHandler);
        InstallApplicationEventHandler(handlerUPP, 2, eventTypes, NULL, NULL);
        handlerInstalled = 1;
    }

    EventHotKeyID hotKeyID;
    hotKeyID.signature = 'irpl';
    hotKeyID.id = 1;

    OSStatus status = RegisterEventHotKey(keyCode, modifiers, hotKeyID, GetApplicationEventTarget(), 0, &hotKeyRef);

    return (status == noErr) ? 1 : 0;
}

static void unregisterHotkey() {
    if (hotKeyRef != NULL) {
        UnregisterEventHotKey(hotKeyRef);
        hotKeyRef = NULL;
    }
}
*/
import "C"

import (
	"fmt"
	"strings"
	"sync"
)

// Carbon virtual key codes for the keys a quit shortcut is likely to use.
var darwinKeyCodes = map[string]uint32{
	"escape": 53, "space": 49, "return": 36, "tab": 48, "delete": 51,
	"a": 0, "s": 1, "d": 2, "f": 3, "h": 4, "g": 5, "z": 6, "x": 7,
	"c": 8, "v": 9, "b": 11, "q": 12, "w": 13, "e": 14, "r": 15,
	"y": 16, "t": 17, "o": 31, "u": 32, "i": 34, "p": 35, "l": 37,
	"j": 38, "k": 40, "n": 45, "m": 46,
	"f1": 122, "f2": 120, "f3": 99, "f4": 118, "f5": 96, "f6": 97,
	"f7": 98, "f8": 100, "f9": 101, "f10": 109, "f11": 103, "f12": 111,
}

// carbonModifiers maps to shiftKey, controlKey, optionKey and cmdKey.
func carbonModifiers(m Modifier) uint32 {
	var mask uint32
	if m&ModShift != 0 {
		mask |= 0x200
	}
	if m&ModCtrl != 0 {
		mask |= 0x1000
	}
	if m&ModAlt != 0 {
		mask |= 0x800
	}
	if m&ModSuper != 0 {
		mask |= 0x100
	}
	return mask
}

type darwinManager struct {
	mu       sync.Mutex
	accel    string
	callback func(bool)
}

var globalManager *darwinManager

// New creates a new macOS hotkey manager using Carbon. Carbon delivers one
// shortcut per manager.
func New() (Manager, error) {
	mgr := &darwinManager{}
	return mgr, nil
}

//export goHotkeyCallback
func goHotkeyCallback(pressed C.int) {
	m := globalManager
	if m == nil {
		return
	}
	m.mu.Lock()
	cb := m.callback
	m.mu.Unlock()
	if cb != nil {
		cb(pressed == 1)
	}
}

func (m *darwinManager) Register(accel string, callback func(pressed bool)) error {
	a, err := ParseAccelerator(accel)
	if err != nil {
		return err
	}
	keyCode, ok := darwinKeyCodes[strings.ToLower(a.Key)]
	if !ok {
		return fmt.Errorf("unknown key %q", a.Key)
	}

	m.mu.Lock()
	if m.accel != "" {
		m.mu.Unlock()
		return fmt.Errorf("hotkey %q already registered", m.accel)
	}
	m.accel = accel
	m.callback = callback
	m.mu.Unlock()
	globalManager = m

	if C.registerHotkey(C.UInt32(keyCode), C.UInt32(carbonModifiers(a.Mods))) == 0 {
		m.mu.Lock()
		m.accel = ""
		m.callback = nil
		m.mu.Unlock()
		return fmt.Errorf("failed to register hotkey %q", accel)
	}

	return nil
}

func (m *darwinManager) Unregister(accel string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.accel != accel {
		return fmt.Errorf("hotkey %q not registered", accel)
	}
	C.unregisterHotkey()
	m.accel = ""
	m.callback = nil
	return nil
}

func (m *darwinManager) Close() error {
	m.mu.Lock()
	if m.accel != "" {
		C.unregisterHotkey()
		m.accel = ""
	}
	m.mu.Unlock()
	globalManager = nil
	return nil
}
