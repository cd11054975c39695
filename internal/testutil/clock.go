// Package testutil provides shared test helpers.
package testutil

import (
	"sync"
	"time"
)

// MockClock is a controllable time source for tests. Its Now method has the
// signature expected by the SetClock hooks on the server and stores.
type MockClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewMockClock creates a clock frozen at the given instant.
func NewMockClock(start time.Time) *MockClock {
	return &MockClock{now: start.UTC()}
}

// Now returns the current mock time.
func (c *MockClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *MockClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Set jumps the clock to the given instant.
func (c *MockClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t.UTC()
}
