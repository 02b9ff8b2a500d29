package repofake

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/qrmenu/menu-relay/identity"
	apperrors "github.com/qrmenu/menu-relay/internal/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"
)

var _ identity.Resolver = (*FakeAuthority)(nil)

type fakeAccount struct {
	identity     identity.Identity
	passwordHash string
}

// FakeAuthority is an in-memory authentication backend. Passwords are kept as
// bcrypt hashes; dispatched codes are remembered so tests can read them back.
type FakeAuthority struct {
	accounts    map[string]*fakeAccount // id -> account
	tokens      map[string]string       // session token -> id
	codes       map[string]string       // id -> last dispatched code
	unavailable bool
	dispatchErr error
	logCodes    bool
	lock        sync.RWMutex
}

func NewFakeAuthority() *FakeAuthority {
	return &FakeAuthority{
		accounts: make(map[string]*fakeAccount),
		tokens:   make(map[string]string),
		codes:    make(map[string]string),
	}
}

// AddAccount stores id with password and returns a fresh session token for it.
func (a *FakeAuthority) AddAccount(id identity.Identity, password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		return "", err
	}

	a.lock.Lock()
	defer a.lock.Unlock()
	if id.ID == "" {
		id.ID = uuid.New().String()
	}
	a.accounts[id.ID] = &fakeAccount{identity: id, passwordHash: string(hash)}
	token := uuid.New().String()
	a.tokens[token] = id.ID
	return token, nil
}

// RevokeToken forgets a session token.
func (a *FakeAuthority) RevokeToken(token string) {
	a.lock.Lock()
	defer a.lock.Unlock()
	delete(a.tokens, token)
}

// SetUnavailable makes every call fail with ErrAuthorityUnavailable.
func (a *FakeAuthority) SetUnavailable(unavailable bool) {
	a.lock.Lock()
	defer a.lock.Unlock()
	a.unavailable = unavailable
}

// SetDispatchError makes DispatchCode fail with err.
func (a *FakeAuthority) SetDispatchError(err error) {
	a.lock.Lock()
	defer a.lock.Unlock()
	a.dispatchErr = err
}

// SetLogCodes writes dispatched codes to the log. Development only.
func (a *FakeAuthority) SetLogCodes(logCodes bool) {
	a.lock.Lock()
	defer a.lock.Unlock()
	a.logCodes = logCodes
}

// LastCode returns the last code dispatched to identityID.
func (a *FakeAuthority) LastCode(identityID string) (string, bool) {
	a.lock.RLock()
	defer a.lock.RUnlock()
	code, ok := a.codes[identityID]
	return code, ok
}

func (a *FakeAuthority) ResolveToken(_ context.Context, token string) (*identity.Identity, error) {
	a.lock.RLock()
	defer a.lock.RUnlock()
	if a.unavailable {
		return nil, apperrors.ErrAuthorityUnavailable
	}
	id, ok := a.tokens[token]
	if !ok {
		return nil, apperrors.ErrUnauthenticated
	}
	account, ok := a.accounts[id]
	if !ok {
		return nil, apperrors.ErrUnauthenticated
	}
	copied := account.identity
	return &copied, nil
}

func (a *FakeAuthority) CheckPassword(_ context.Context, id *identity.Identity, password string) (bool, error) {
	a.lock.RLock()
	defer a.lock.RUnlock()
	if a.unavailable {
		return false, apperrors.ErrAuthorityUnavailable
	}
	account, ok := a.accounts[id.ID]
	if !ok {
		return false, nil
	}
	return bcrypt.CompareHashAndPassword([]byte(account.passwordHash), []byte(password)) == nil, nil
}

func (a *FakeAuthority) DispatchCode(_ context.Context, id *identity.Identity, code string, expiresIn time.Duration) error {
	a.lock.Lock()
	defer a.lock.Unlock()
	if a.unavailable {
		return apperrors.ErrAuthorityUnavailable
	}
	if a.dispatchErr != nil {
		return a.dispatchErr
	}
	a.codes[id.ID] = code
	if a.logCodes {
		log.Info().Str("identity_id", id.ID).Str("code", code).Dur("expires_in", expiresIn).Msg("dev authority: code dispatched")
	}
	return nil
}
