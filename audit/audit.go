package audit

import (
	"context"
	"time"
)

// ActionType names what was done to the credentials.
type ActionType string

const (
	ActionCredentialView    ActionType = "credential_view"
	ActionCredentialEnable  ActionType = "credential_enabled"
	ActionCredentialDisable ActionType = "credential_disabled"
)

// Record is one append-only audit entry.
type Record struct {
	ID         string     `json:"id"`
	IdentityID string     `json:"identity_id"`
	Action     ActionType `json:"action"`
	Timestamp  time.Time  `json:"timestamp"`
	IPAddress  string     `json:"ip_address,omitempty"`
	UserAgent  string     `json:"user_agent,omitempty"`
}

// Log stores audit records. There is no update or delete.
type Log interface {
	Append(ctx context.Context, r Record) error
	ListRecent(ctx context.Context, identityID string, limit int) ([]Record, error)
}

// DefaultListLimit caps ListRecent when the caller passes zero.
const DefaultListLimit = 50
