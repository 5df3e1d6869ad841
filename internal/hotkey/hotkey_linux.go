//go:build linux

package hotkey

/*
#cgo pkg-config: x11 xtst
#include <X11/Xlib.h>
#include <X11/keysym.h>
#include <X11/extensions/XTest.h>
#include <stdlib.h>

Display* displayPtr = NULL;

static int ensureDisplay() {
    if (displayPtr == NULL) {
        displayPtr = XOpenDisplay(NULL);
    }
    return displayPtr != NULL;
}

// keycodeFor returns 0 when the keysym name is unknown.
int keycodeFor(const char* name) {
    if (!ensureDisplay()) return 0;
    KeySym sym = XStringToKeysym(name);
    if (sym == NoSymbol) return 0;
    return XKeysymToKeycode(displayPtr, sym);
}

// grabKey also grabs the CapsLock and NumLock variants so the shortcut fires
// regardless of lock state.
int grabKey(int keycode, int modifiers) {
    if (!ensureDisplay()) return 0;

    Window root = DefaultRootWindow(displayPtr);
    unsigned int extras[] = {0, LockMask, Mod2Mask, LockMask | Mod2Mask};
    for (int i = 0; i < 4; i++) {
        XGrabKey(displayPtr, keycode, modifiers | extras[i], root, False, GrabModeAsync, GrabModeAsync);
    }
    XSelectInput(displayPtr, root, KeyPressMask | KeyReleaseMask);
    XSync(displayPtr, False);

    return 1;
}

void ungrabKey(int keycode, int modifiers) {
    if (displayPtr == NULL) return;

    Window root = DefaultRootWindow(displayPtr);
    unsigned int extras[] = {0, LockMask, Mod2Mask, LockMask | Mod2Mask};
    for (int i = 0; i < 4; i++) {
        XUngrabKey(displayPtr, keycode, modifiers | extras[i], root);
    }
    XSync(displayPtr, False);
}

int checkEvent(int* keycode, int* pressed) {
    if (displayPtr == NULL) return 0;

    XEvent event;
    if (XPending(displayPtr) > 0) {
        XNextEvent(displayPtr, &event);
        if (event.type == KeyPress || event.type == KeyRelease) {
            *keycode = event.xkey.keycode;
            *pressed = (event.type == KeyPress) ? 1 : 0;
            return 1;
        }
    }
    return 0;
}
*/
import "C"

import (
	"fmt"
	"strings"
	"sync"
	"time"
	"unsafe"
)

type grab struct {
	keycode   int
	modifiers int
	callback  func(bool)
}

type linuxManager struct {
	mu    sync.Mutex
	grabs map[string]grab // by canonical accelerator
	stop  chan struct{}
	once  sync.Once
}

// New creates a new Linux hotkey manager using X11
func New() (Manager, error) {
	mgr := &linuxManager{
		grabs: make(map[string]grab),
		stop:  make(chan struct{}),
	}

	go mgr.eventLoop()

	return mgr, nil
}

// x11Modifiers maps modifiers to X11 masks.
func x11Modifiers(m Modifier) int {
	var mask int
	if m&ModShift != 0 {
		mask |= 1 // ShiftMask
	}
	if m&ModCtrl != 0 {
		mask |= 4 // ControlMask
	}
	if m&ModAlt != 0 {
		mask |= 8 // Mod1Mask
	}
	if m&ModSuper != 0 {
		mask |= 64 // Mod4Mask
	}
	return mask
}

// x11KeysymName maps a canonical key to an X keysym name.
func x11KeysymName(key string) string {
	switch {
	case key == "Space":
		return "space"
	case len(key) == 1 && key[0] >= 'A' && key[0] <= 'Z':
		return strings.ToLower(key)
	default:
		return key
	}
}

func (m *linuxManager) Register(accel string, callback func(pressed bool)) error {
	a, err := Parse(accel)
	if err != nil {
		return err
	}

	name := C.CString(x11KeysymName(a.Key))
	defer C.free(unsafe.Pointer(name))

	keycode := int(C.keycodeFor(name))
	if keycode == 0 {
		return fmt.Errorf("no keycode for %s (is an X display available?)", a)
	}
	modifiers := x11Modifiers(a.Modifiers)

	if C.grabKey(C.int(keycode), C.int(modifiers)) == 0 {
		return fmt.Errorf("failed to grab key %s", a)
	}

	m.mu.Lock()
	m.grabs[a.String()] = grab{keycode: keycode, modifiers: modifiers, callback: callback}
	m.mu.Unlock()
	return nil
}

func (m *linuxManager) eventLoop() {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			var keycode, pressed C.int
			if C.checkEvent(&keycode, &pressed) != 0 {
				if cb := m.callbackFor(int(keycode)); cb != nil {
					cb(pressed == 1)
				}
			}
		}
	}
}

func (m *linuxManager) callbackFor(keycode int) func(bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, g := range m.grabs {
		if g.keycode == keycode {
			return g.callback
		}
	}
	return nil
}

func (m *linuxManager) Unregister(accel string) error {
	a, err := Parse(accel)
	if err != nil {
		return err
	}

	m.mu.Lock()
	g, ok := m.grabs[a.String()]
	delete(m.grabs, a.String())
	m.mu.Unlock()

	if ok {
		C.ungrabKey(C.int(g.keycode), C.int(g.modifiers))
	}
	return nil
}

func (m *linuxManager) Close() error {
	m.once.Do(func() { close(m.stop) })
	return nil
}
