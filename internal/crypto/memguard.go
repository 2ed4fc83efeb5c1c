//go:build linux || darwin

package crypto

import "golang.org/x/sys/unix"

// LockMemory pins key material into RAM so it cannot be swapped to disk.
func LockMemory(b []byte) error { return unix.Mlock(b) }

// UnlockMemory releases a LockMemory pin. Callers zero the bytes first.
func UnlockMemory(b []byte) error { return unix.Munlock(b) }
