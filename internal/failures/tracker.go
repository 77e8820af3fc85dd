// Package failures counts consecutive send failures per account.
package failures

import (
	"context"
	"sync"
)

// Tracker counts consecutive failures. Fail returns the new count; Reset
// clears it after a successful send.
type Tracker interface {
	Fail(ctx context.Context, accountID string) (int, error)
	Reset(ctx context.Context, accountID string) error
}

// MemoryTracker keeps counts in process. Counts are lost on restart.
type MemoryTracker struct {
	mu     sync.Mutex
	counts map[string]int
}

func NewMemoryTracker() *MemoryTracker {
	return &MemoryTracker{counts: map[string]int{}}
}

func (t *MemoryTracker) Fail(_ context.Context, accountID string) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.counts[accountID]++
	return t.counts[accountID], nil
}

func (t *MemoryTracker) Reset(_ context.Context, accountID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.counts, accountID)
	return nil
}

var _ Tracker = (*MemoryTracker)(nil)
