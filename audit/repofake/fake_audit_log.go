package repofake

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/qrmenu/menu-relay/audit"
)

var _ audit.Log = (*FakeAuditLog)(nil)

type FakeAuditLog struct {
	records   []audit.Record
	appendErr error
	lock      sync.RWMutex
}

func NewFakeAuditLog() *FakeAuditLog {
	return &FakeAuditLog{}
}

// SetAppendError makes Append fail with err.
func (l *FakeAuditLog) SetAppendError(err error) {
	l.lock.Lock()
	defer l.lock.Unlock()
	l.appendErr = err
}

func (l *FakeAuditLog) Append(_ context.Context, r audit.Record) error {
	l.lock.Lock()
	defer l.lock.Unlock()
	if l.appendErr != nil {
		return l.appendErr
	}
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	l.records = append(l.records, r)
	return nil
}

func (l *FakeAuditLog) ListRecent(_ context.Context, identityID string, limit int) ([]audit.Record, error) {
	l.lock.RLock()
	defer l.lock.RUnlock()
	if limit <= 0 {
		limit = audit.DefaultListLimit
	}
	out := make([]audit.Record, 0)
	for i := len(l.records) - 1; i >= 0 && len(out) < limit; i-- {
		if identityID == "" || l.records[i].IdentityID == identityID {
			out = append(out, l.records[i])
		}
	}
	return out, nil
}

// Len is the number of stored records.
func (l *FakeAuditLog) Len() int {
	l.lock.RLock()
	defer l.lock.RUnlock()
	return len(l.records)
}
