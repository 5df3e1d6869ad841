//go:build !darwin

package permissions

// CheckMicrophone always reports Authorized; other platforms gate access at
// the audio server instead.
func CheckMicrophone() Status {
	return Authorized
}

// EnsurePermissions is a no-op on non-macOS platforms.
func EnsurePermissions() error {
	return nil
}
