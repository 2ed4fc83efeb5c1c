package session

import "time"

// Policy tunes session key lifetime. Zero values disable the behavior.
type Policy struct {
	// LockTimeout is the idle window after which the key is treated as
	// cleared and the next access fails with ErrNoSessionKey.
	LockTimeout time.Duration
}

func DefaultPolicy() Policy {
	return Policy{LockTimeout: 5 * time.Minute}
}
