package repofake

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	apperrors "github.com/qrmenu/menu-relay/internal/errors"
	"github.com/qrmenu/menu-relay/payment"
)

var _ payment.Store = (*FakeIntentStore)(nil)

type FakeIntentStore struct {
	intents map[string]*payment.Intent
	lock    sync.RWMutex
}

func NewFakeIntentStore() *FakeIntentStore {
	return &FakeIntentStore{
		intents: make(map[string]*payment.Intent),
	}
}

func (s *FakeIntentStore) Create(_ context.Context, in payment.Intent) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	if in.Status == "" {
		in.Status = payment.StatusPending
	}
	s.intents[in.OrderID] = &in
	return nil
}

func (s *FakeIntentStore) Get(_ context.Context, orderID string) (*payment.Intent, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()
	in, ok := s.intents[orderID]
	if !ok {
		return nil, errors.Wrapf(apperrors.ErrNotFound, "order %s", orderID)
	}
	copied := *in
	return &copied, nil
}

func (s *FakeIntentStore) GetByTransaction(_ context.Context, transactionUUID string) (*payment.Intent, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()
	for _, in := range s.intents {
		if in.TransactionUUID == transactionUUID {
			copied := *in
			return &copied, nil
		}
	}
	return nil, errors.Wrapf(apperrors.ErrNotFound, "transaction %s", transactionUUID)
}

func (s *FakeIntentStore) MarkInitiated(_ context.Context, orderID, transactionUUID string, at time.Time) (*payment.Intent, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	in, ok := s.intents[orderID]
	if !ok {
		return nil, errors.Wrapf(apperrors.ErrNotFound, "order %s", orderID)
	}
	if in.Status == payment.StatusConfirmed {
		return nil, payment.ErrAlreadyConfirmed
	}
	in.Status = payment.StatusInitiated
	in.TransactionUUID = transactionUUID
	in.UpdatedAt = at
	copied := *in
	return &copied, nil
}

func (s *FakeIntentStore) Settle(_ context.Context, orderID, transactionUUID string, outcome payment.Status, at time.Time) (*payment.Intent, bool, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	in, ok := s.intents[orderID]
	if !ok {
		return nil, false, errors.Wrapf(apperrors.ErrNotFound, "order %s", orderID)
	}
	changed, err := payment.ApplyOutcome(in, transactionUUID, outcome, at)
	if err != nil {
		return nil, false, err
	}
	copied := *in
	return &copied, changed, nil
}
