package oauthkit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestExpiryDeadline(t *testing.T) {
	now := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	at := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)

	assert.True(t, Never.Deadline(now).IsZero())
	assert.Equal(t, now.Add(time.Hour), ExpireIn(time.Hour).Deadline(now))
	assert.Equal(t, at, ExpireAt(at).Deadline(now))

	// Deadlines are normalized to UTC.
	est := time.FixedZone("EST", -5*3600)
	local := ExpireAt(at.In(est)).Deadline(now)
	assert.Equal(t, time.UTC, local.Location())
	assert.True(t, local.Equal(at))
}

func TestRemainingTTL(t *testing.T) {
	now := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)

	ttl, ok := RemainingTTL(time.Time{}, now)
	assert.False(t, ok, "no deadline means no TTL")
	assert.Zero(t, ttl)

	ttl, ok = RemainingTTL(now.Add(time.Hour), now)
	assert.True(t, ok)
	assert.Equal(t, int64(3600), ttl)

	// Sub-second remainders round down.
	ttl, ok = RemainingTTL(now.Add(90*time.Second+500*time.Millisecond), now)
	assert.True(t, ok)
	assert.Equal(t, int64(90), ttl)

	// At or past the deadline the entity reads as absent.
	_, ok = RemainingTTL(now, now)
	assert.False(t, ok)
	_, ok = RemainingTTL(now.Add(-time.Second), now)
	assert.False(t, ok)
}
