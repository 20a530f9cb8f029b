//go:build !darwin

package permissions

// EnsureCamera is a no-op on non-macOS platforms.
func EnsureCamera() error {
	return nil
}

// EnsureMicrophone is a no-op on non-macOS platforms.
func EnsureMicrophone() error {
	return nil
}
