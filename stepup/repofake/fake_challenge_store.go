package repofake

import (
	"context"
	"sync"
	"time"

	"github.com/qrmenu/menu-relay/stepup"
)

var _ stepup.Store = (*FakeChallengeStore)(nil)

type fakeChallenge struct {
	stepup.Challenge
	retainUntil time.Time
}

// FakeChallengeStore keeps challenges in memory. It is for tests and single
// instance development only.
type FakeChallengeStore struct {
	challenges map[string]fakeChallenge
	lock       sync.Mutex
}

func NewFakeChallengeStore() *FakeChallengeStore {
	return &FakeChallengeStore{
		challenges: make(map[string]fakeChallenge),
	}
}

func (s *FakeChallengeStore) Put(_ context.Context, c stepup.Challenge, retainUntil time.Time) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.challenges[c.IdentityID] = fakeChallenge{Challenge: c, retainUntil: retainUntil}
	return nil
}

func (s *FakeChallengeStore) Attempt(_ context.Context, identityID, codeHash string, now time.Time, maxAttempts int) (stepup.Outcome, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	c, ok := s.challenges[identityID]
	if !ok || now.After(c.retainUntil) {
		delete(s.challenges, identityID)
		return stepup.OutcomeNotFound, nil
	}
	if c.Locked {
		return stepup.OutcomeLocked, nil
	}
	if !now.Before(c.ExpiresAt) {
		delete(s.challenges, identityID)
		return stepup.OutcomeExpired, nil
	}

	c.Attempts++
	if c.CodeHash == codeHash {
		delete(s.challenges, identityID)
		return stepup.OutcomeMatched, nil
	}
	if c.Attempts >= maxAttempts {
		c.Locked = true
		s.challenges[identityID] = c
		return stepup.OutcomeLocked, nil
	}
	s.challenges[identityID] = c
	return stepup.OutcomeMismatch, nil
}

// Get returns a copy of the stored challenge.
func (s *FakeChallengeStore) Get(identityID string) (stepup.Challenge, bool) {
	s.lock.Lock()
	defer s.lock.Unlock()
	c, ok := s.challenges[identityID]
	return c.Challenge, ok
}
