package tokenpool

import (
	"errors"
	"sync"
	"time"
)

// ErrNoCredential signals that no credential is currently eligible. Callers
// must fail fast or queue, never busy-loop on it.
var ErrNoCredential = errors.New("no credential available")

// Outcome describes how a borrowed credential fared
type Outcome int

const (
	OutcomeOK Outcome = iota
	OutcomeRateLimited
	OutcomeAuthFailure
)

// Credential is an opaque API token with rotation bookkeeping. It is owned
// exclusively by the caller between Acquire and Release.
type Credential struct {
	Token string

	lastUsed      time.Time
	cooldownUntil time.Time
	revoked       bool
	inUse         bool
}

// Pool hands out the least-recently-used valid credential from a fixed set.
// All access is mutex-guarded; a credential is never held by two callers at
// once.
type Pool struct {
	mu    sync.Mutex
	creds []*Credential
	now   func() time.Time
}

// NewPool creates a credential pool from raw tokens
func NewPool(tokens []string) *Pool {
	p := &Pool{now: time.Now}
	for _, t := range tokens {
		p.creds = append(p.creds, &Credential{Token: t})
	}
	return p
}

// Acquire returns the credential with the oldest last-used timestamp among
// those that are valid, not cooling down and not already borrowed. It
// returns ErrNoCredential when none is eligible.
func (p *Pool) Acquire() (*Credential, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	var oldest *Credential
	for _, c := range p.creds {
		if c.revoked || c.inUse || now.Before(c.cooldownUntil) {
			continue
		}
		if oldest == nil || c.lastUsed.Before(oldest.lastUsed) {
			oldest = c
		}
	}
	if oldest == nil {
		return nil, ErrNoCredential
	}

	oldest.inUse = true
	oldest.lastUsed = now
	return oldest, nil
}

// Release returns a credential to the pool. A rate-limited outcome parks
// the credential until resetAt; an auth failure revokes it permanently.
func (p *Pool) Release(c *Credential, outcome Outcome, resetAt time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()

	c.inUse = false
	switch outcome {
	case OutcomeRateLimited:
		cooldown := resetAt
		if cooldown.IsZero() {
			cooldown = p.now().Add(time.Minute)
		}
		c.cooldownUntil = cooldown
	case OutcomeAuthFailure:
		c.revoked = true
	}
}

// Size returns the total number of credentials in the pool
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.creds)
}

// RevokedCount returns how many credentials have been permanently removed
// from rotation
func (p *Pool) RevokedCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, c := range p.creds {
		if c.revoked {
			n++
		}
	}
	return n
}
