//go:build !linux && !darwin

package crypto

// Memory pinning is best-effort; platforms without mlock get no-ops.

func LockMemory(b []byte) error   { return nil }
func UnlockMemory(b []byte) error { return nil }
