package dht

import (
	"crypto/sha1"
	"net"
	"time"
)

// tokenSecretLen is the size of each rotating secret.
const tokenSecretLen = 20

// DefaultTokenRotationInterval is how often the token manager rotates its
// current secret, per spec.md's T default.
const DefaultTokenRotationInterval = 5 * time.Minute

// TokenServer issues and validates the opaque write-capability tokens
// handed out by get_peers/get and required by announce_peer/put. Rotation
// is driven by Tick, not an internal timer, per the single-threaded
// scheduling model.
type TokenServer struct {
	interval       time.Duration
	current        [tokenSecretLen]byte
	previous       [tokenSecretLen]byte
	lastRotated    time.Time
	randSource     func([]byte)
}

// NewTokenServer returns a server with a freshly randomized secret,
// rotating every interval (DefaultTokenRotationInterval if zero).
func NewTokenServer(interval time.Duration, now time.Time, randSource func([]byte)) *TokenServer {
	if interval <= 0 {
		interval = DefaultTokenRotationInterval
	}
	ts := &TokenServer{interval: interval, lastRotated: now, randSource: randSource}
	randSource(ts.current[:])
	randSource(ts.previous[:])
	return ts
}

// Tick rotates the current secret into previous, and generates a fresh
// current, if interval has elapsed since the last rotation.
func (ts *TokenServer) Tick(now time.Time) {
	if now.Sub(ts.lastRotated) < ts.interval {
		return
	}
	ts.previous = ts.current
	ts.randSource(ts.current[:])
	ts.lastRotated = now
}

func tokenFor(secret [tokenSecretLen]byte, ip net.IP) string {
	h := sha1.New()
	h.Write(secret[:])
	h.Write(ip)
	return string(h.Sum(nil))
}

// CreateToken returns the write token for the given source IP, derived
// from the current secret.
func (ts *TokenServer) CreateToken(ip net.IP) string {
	return tokenFor(ts.current, ip)
}

// ValidToken reports whether token was issued for ip under the current or
// immediately previous secret.
func (ts *TokenServer) ValidToken(token string, ip net.IP) bool {
	if token == tokenFor(ts.current, ip) {
		return true
	}
	return token == tokenFor(ts.previous, ip)
}
