//go:build linux || darwin

package platform

import "golang.org/x/sys/unix"

// DisableCoreDumps prevents the OS from writing process memory (and with
// it, session keys) to disk on a crash.
func DisableCoreDumps() error {
	var rlim unix.Rlimit
	rlim.Cur = 0
	rlim.Max = 0
	return unix.Setrlimit(unix.RLIMIT_CORE, &rlim)
}
