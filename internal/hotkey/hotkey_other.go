//go:build !linux && !darwin

package hotkey

import (
	"fmt"
	"runtime"
)

// New reports that global hotkeys are unavailable on this platform. The
// recorder still works through the tray and the control API.
func New() (Manager, error) {
	return nil, fmt.Errorf("global hotkeys are not supported on %s", runtime.GOOS)
}
