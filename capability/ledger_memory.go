package capability

import (
	"context"
	"sync"
	"time"
)

var _ Ledger = (*InMemoryLedger)(nil)

// InMemoryLedger is a single process ledger for tests and development.
type InMemoryLedger struct {
	consumed map[string]time.Time
	mu       sync.Mutex
}

func NewInMemoryLedger() *InMemoryLedger {
	return &InMemoryLedger{
		consumed: make(map[string]time.Time),
	}
}

func (l *InMemoryLedger) Consume(_ context.Context, id string, until time.Time) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, exists := l.consumed[id]; exists {
		return false, nil
	}
	l.consumed[id] = until
	return true, nil
}

// Cleanup removes entries whose capability has expired anyway.
func (l *InMemoryLedger) Cleanup() {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := NowTimeFunc()
	for id, until := range l.consumed {
		if now.After(until) {
			delete(l.consumed, id)
		}
	}
}

// StartCleanup runs Cleanup every interval until ctx is done.
func (l *InMemoryLedger) StartCleanup(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				l.Cleanup()
			}
		}
	}()
}

// Len is the number of tracked entries.
func (l *InMemoryLedger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.consumed)
}
