package errors

import (
	"errors"
	"fmt"
)

// Error taxonomy shared by every component. Components wrap these with
// context; the HTTP layer maps them to status codes with Is.
var (
	// Caller errors
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrUnauthorized    = errors.New("unauthorized")
	ErrInvalidInput    = errors.New("invalid input")

	// Step-up challenge errors
	ErrChallengeNotFound = errors.New("challenge not found")
	ErrChallengeExpired  = errors.New("challenge expired")
	ErrChallengeLocked   = errors.New("challenge locked")

	// Capability errors
	ErrCapabilityAlreadyUsed = errors.New("capability already used")

	// Collaborator errors
	ErrAuthorityUnavailable = errors.New("authority unavailable")
	ErrVaultUnavailable     = errors.New("vault unavailable")
	ErrGatewayUnavailable   = errors.New("gateway unavailable")

	// General errors
	ErrNotFound = errors.New("not found")
	ErrInternal = errors.New("internal error")
)

// Wrapf wraps an error with context using fmt.Errorf
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}
