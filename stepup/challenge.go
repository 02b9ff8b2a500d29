package stepup

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Challenge is the pending step-up state for one identity. The code itself is
// never stored; CodeHash holds its SHA-256.
type Challenge struct {
	IdentityID string
	CodeHash   string
	IssuedAt   time.Time
	ExpiresAt  time.Time
	Attempts   int
	Locked     bool
}

// Outcome is the result of a single verification attempt against the store.
type Outcome int

const (
	OutcomeNotFound Outcome = iota
	OutcomeExpired
	OutcomeLocked
	OutcomeMismatch
	OutcomeMatched
)

func (o Outcome) String() string {
	switch o {
	case OutcomeNotFound:
		return "not_found"
	case OutcomeExpired:
		return "expired"
	case OutcomeLocked:
		return "locked"
	case OutcomeMismatch:
		return "mismatch"
	case OutcomeMatched:
		return "matched"
	}
	return "unknown"
}

// Store persists challenges keyed by identity id. Both operations must be atomic.
//
// Put replaces any existing challenge for the identity and keeps the record no
// longer than retainUntil.
//
// Attempt performs the whole check-and-mutate step: it discards expired
// challenges, increments the attempt counter, consumes the challenge on a match
// and locks it once maxAttempts is reached without one.
type Store interface {
	Put(ctx context.Context, c Challenge, retainUntil time.Time) error
	Attempt(ctx context.Context, identityID, codeHash string, now time.Time, maxAttempts int) (Outcome, error)
}

// HashCode returns the stored representation of a one-time code.
func HashCode(code string) string {
	sum := sha256.Sum256([]byte(code))
	return hex.EncodeToString(sum[:])
}
