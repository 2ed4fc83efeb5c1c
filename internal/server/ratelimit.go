package server

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// limitScope names one abuse surface the server throttles independently.
// Each scope keys its buckets differently: client IP, lowercased login
// identifier, challenge id, reset token, or user|record pair.
type limitScope int

const (
	limitLoginIP limitScope = iota
	limitLoginID
	limitTotpIP
	limitTotpChallenge
	limitForgotIP
	limitForgotID
	limitResetIP
	limitResetToken
	limitUnlockRecord
)

// limitRule is the budget for one scope: events per window, with burst
// equal to events. Buckets idle longer than idle are forgotten, which also
// bounds memory against key-spraying.
type limitRule struct {
	events int
	window time.Duration
	idle   time.Duration
}

var limitRules = map[limitScope]limitRule{
	limitLoginIP:       {events: 10, window: time.Minute, idle: time.Hour},
	limitLoginID:       {events: 5, window: time.Minute, idle: time.Hour},
	limitTotpIP:        {events: 10, window: time.Minute, idle: 10 * time.Minute},
	limitTotpChallenge: {events: 3, window: time.Minute, idle: 10 * time.Minute},
	limitForgotIP:      {events: 5, window: 15 * time.Minute, idle: 30 * time.Minute},
	limitForgotID:      {events: 3, window: 15 * time.Minute, idle: 30 * time.Minute},
	limitResetIP:       {events: 10, window: 15 * time.Minute, idle: 30 * time.Minute},
	limitResetToken:    {events: 5, window: 15 * time.Minute, idle: 30 * time.Minute},
	limitUnlockRecord:  {events: 5, window: time.Minute, idle: 10 * time.Minute},
}

// rateGate holds the per-key token buckets for every scope.
type rateGate struct {
	mu      sync.Mutex
	buckets map[limitScope]map[string]*limitBucket
}

type limitBucket struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

func newRateGate() *rateGate {
	g := &rateGate{buckets: make(map[limitScope]map[string]*limitBucket, len(limitRules))}
	for scope := range limitRules {
		g.buckets[scope] = map[string]*limitBucket{}
	}
	return g
}

// allow consumes one token from key's bucket under scope, creating the
// bucket on first sight and dropping this scope's idle buckets as it goes.
func (g *rateGate) allow(scope limitScope, key string) bool {
	rule := limitRules[scope]
	now := time.Now()

	g.mu.Lock()
	defer g.mu.Unlock()

	keyed := g.buckets[scope]
	b := keyed[key]
	if b == nil {
		perSecond := rate.Limit(float64(rule.events) / rule.window.Seconds())
		b = &limitBucket{lim: rate.NewLimiter(perSecond, rule.events)}
		keyed[key] = b
	}
	b.lastSeen = now

	for k, v := range keyed {
		if now.Sub(v.lastSeen) > rule.idle {
			delete(keyed, k)
		}
	}
	return b.lim.Allow()
}

// clientIP prefers the first X-Forwarded-For hop, falling back to the
// socket address.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if first = strings.TrimSpace(first); first != "" {
			return first
		}
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil && host != "" {
		return host
	}
	return r.RemoteAddr
}
