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

// Modifier is a bit set of modifier keys.
type Modifier uint8

const (
	ModShift Modifier = 1 << iota
	ModCtrl
	ModAlt
	ModSuper
)

// Accelerator is a parsed shortcut such as "Ctrl+Shift+R".
type Accelerator struct {
	Modifiers Modifier
	// Key is the canonical key name: an upper-case letter, a digit, "Space",
	// or "F1".."F12".
	Key string
}

func (a Accelerator) String() string {
	var parts []string
	for _, m := range []struct {
		mod  Modifier
		name string
	}{{ModCtrl, "Ctrl"}, {ModAlt, "Alt"}, {ModShift, "Shift"}, {ModSuper, "Super"}} {
		if a.Modifiers&m.mod != 0 {
			parts = append(parts, m.name)
		}
	}
	return strings.Join(append(parts, a.Key), "+")
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

// Parse reads accelerator strings like "Alt+Space". Modifier names are case
// insensitive. Exactly one non-modifier key is required.
func Parse(accel string) (Accelerator, error) {
	var a Accelerator
	for _, raw := range strings.Split(accel, "+") {
		part := strings.TrimSpace(raw)
		if part == "" {
			return Accelerator{}, fmt.Errorf("invalid accelerator %q: empty key", accel)
		}
		if mod, ok := modifierNames[strings.ToLower(part)]; ok {
			a.Modifiers |= mod
			continue
		}
		if a.Key != "" {
			return Accelerator{}, fmt.Errorf("invalid accelerator %q: more than one key", accel)
		}
		key, err := canonicalKey(part)
		if err != nil {
			return Accelerator{}, fmt.Errorf("invalid accelerator %q: %w", accel, err)
		}
		a.Key = key
	}
	if a.Key == "" {
		return Accelerator{}, fmt.Errorf("invalid accelerator %q: no key", accel)
	}
	return a, nil
}

func canonicalKey(k string) (string, error) {
	switch {
	case strings.EqualFold(k, "space"):
		return "Space", nil
	case len(k) == 1 && (k[0] >= 'a' && k[0] <= 'z' || k[0] >= 'A' && k[0] <= 'Z'):
		return strings.ToUpper(k), nil
	case len(k) == 1 && k[0] >= '0' && k[0] <= '9':
		return k, nil
	case len(k) >= 2 && (k[0] == 'f' || k[0] == 'F'):
		var n int
		if _, err := fmt.Sscanf(k[1:], "%d", &n); err == nil && n >= 1 && n <= 12 && fmt.Sprint(n) == k[1:] {
			return fmt.Sprintf("F%d", n), nil
		}
	}
	return "", fmt.Errorf("unsupported key %q", k)
}
