//go:build !windows

package loader

// isLockViolation is Windows-only; elsewhere locks surface as permission errors.
func isLockViolation(error) bool { return false }
