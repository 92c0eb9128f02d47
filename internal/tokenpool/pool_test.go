package tokenpool

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireReturnsLeastRecentlyUsed(t *testing.T) {
	p := NewPool([]string{"a", "b"})

	first, err := p.Acquire()
	require.NoError(t, err)
	p.Release(first, OutcomeOK, time.Time{})

	second, err := p.Acquire()
	require.NoError(t, err)
	assert.NotEqual(t, first.Token, second.Token, "pool should rotate to the colder credential")
}

func TestAcquireNeverDoubleIssues(t *testing.T) {
	p := NewPool([]string{"a"})

	c, err := p.Acquire()
	require.NoError(t, err)

	_, err = p.Acquire()
	assert.ErrorIs(t, err, ErrNoCredential)

	p.Release(c, OutcomeOK, time.Time{})
	_, err = p.Acquire()
	assert.NoError(t, err)
}

func TestRateLimitedCredentialCoolsDown(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	p := NewPool([]string{"a"})
	p.now = func() time.Time { return now }

	c, err := p.Acquire()
	require.NoError(t, err)
	p.Release(c, OutcomeRateLimited, now.Add(30*time.Minute))

	_, err = p.Acquire()
	assert.ErrorIs(t, err, ErrNoCredential)

	now = now.Add(31 * time.Minute)
	got, err := p.Acquire()
	require.NoError(t, err)
	assert.Equal(t, "a", got.Token)
}

func TestAuthFailureRevokesPermanently(t *testing.T) {
	p := NewPool([]string{"a", "b"})

	c, err := p.Acquire()
	require.NoError(t, err)
	p.Release(c, OutcomeAuthFailure, time.Time{})

	assert.Equal(t, 1, p.RevokedCount())

	// The revoked credential must never come back, only the other one.
	for i := 0; i < 3; i++ {
		got, err := p.Acquire()
		require.NoError(t, err)
		assert.NotEqual(t, c.Token, got.Token)
		p.Release(got, OutcomeOK, time.Time{})
	}
}

func TestConcurrentAcquireIsExclusive(t *testing.T) {
	p := NewPool([]string{"a", "b", "c"})

	var mu sync.Mutex
	held := make(map[string]bool)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c, err := p.Acquire()
			if err != nil {
				return
			}
			mu.Lock()
			if held[c.Token] {
				t.Errorf("credential %s issued twice concurrently", c.Token)
			}
			held[c.Token] = true
			mu.Unlock()

			mu.Lock()
			held[c.Token] = false
			mu.Unlock()
			p.Release(c, OutcomeOK, time.Time{})
		}()
	}
	wg.Wait()
}
