package oauthkit

import "time"

// Expiry describes when an entity should stop being visible: a duration
// from now, an absolute instant, or never. The zero Expiry means never.
type Expiry struct {
	in time.Duration
	at time.Time
}

// Never is the expiry of entities that live until explicitly deleted.
var Never = Expiry{}

// ExpireIn expires the entity d after the reference instant.
func ExpireIn(d time.Duration) Expiry {
	return Expiry{in: d}
}

// ExpireAt expires the entity at the given instant.
func ExpireAt(t time.Time) Expiry {
	return Expiry{at: t}
}

// Deadline resolves the expiry against the reference instant. The zero
// return means never. All deadlines are normalized to UTC so comparisons
// are unambiguous.
func (e Expiry) Deadline(now time.Time) time.Time {
	switch {
	case !e.at.IsZero():
		return e.at.UTC()
	case e.in > 0:
		return now.UTC().Add(e.in)
	default:
		return time.Time{}
	}
}

// RemainingTTL returns the non-negative whole seconds left before the
// deadline. The second return is false when the deadline is "never" or has
// already passed (an expired-but-unreaped entity reads as absent).
func RemainingTTL(deadline, now time.Time) (int64, bool) {
	if deadline.IsZero() {
		return 0, false
	}
	left := deadline.Sub(now.UTC())
	if left <= 0 {
		return 0, false
	}
	return int64(left / time.Second), true
}
