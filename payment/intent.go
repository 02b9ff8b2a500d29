package payment

import (
	"context"
	"time"

	"github.com/pkg/errors"
	apperrors "github.com/qrmenu/menu-relay/internal/errors"
)

// Status is the lifecycle state of a payment intent.
type Status string

const (
	StatusPending   Status = "pending"
	StatusInitiated Status = "initiated"
	StatusConfirmed Status = "confirmed"
	StatusFailed    Status = "failed"
)

// IsTerminal reports whether the status is a gateway outcome.
func (s Status) IsTerminal() bool {
	return s == StatusConfirmed || s == StatusFailed
}

var (
	// ErrAlreadyConfirmed is returned when initiating an order that is already paid.
	ErrAlreadyConfirmed = errors.Wrap(apperrors.ErrInvalidInput, "order already paid")
	// ErrTransactionMismatch is returned when a callback names a transaction the order never started.
	ErrTransactionMismatch = errors.Wrap(apperrors.ErrInvalidInput, "transaction does not match order")
)

// Amounts is what a payment is made of.
type Amounts struct {
	TotalAmount    Money `json:"totalAmount"`
	TaxAmount      Money `json:"taxAmount"`
	ServiceCharge  Money `json:"serviceCharge"`
	DeliveryCharge Money `json:"deliveryCharge"`
}

// Validate checks that no component is negative.
func (a Amounts) Validate() error {
	if a.TotalAmount < 0 || a.TaxAmount < 0 || a.ServiceCharge < 0 || a.DeliveryCharge < 0 {
		return errors.Wrap(apperrors.ErrInvalidInput, "amounts must be non-negative")
	}
	return nil
}

// Intent is the authoritative payment record for an order.
type Intent struct {
	Amounts

	OrderID         string    `json:"orderId"`
	Status          Status    `json:"status"`
	TransactionUUID string    `json:"transactionUuid,omitempty"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// Store persists intents. MarkInitiated and Settle are single conditional
// updates; Settle reports whether it changed anything.
type Store interface {
	Create(ctx context.Context, in Intent) error
	Get(ctx context.Context, orderID string) (*Intent, error)
	GetByTransaction(ctx context.Context, transactionUUID string) (*Intent, error)
	MarkInitiated(ctx context.Context, orderID, transactionUUID string, at time.Time) (*Intent, error)
	Settle(ctx context.Context, orderID, transactionUUID string, outcome Status, at time.Time) (*Intent, bool, error)
}

// ApplyOutcome moves in to outcome for transactionUUID following the intent
// lifecycle. It reports whether in changed.
func ApplyOutcome(in *Intent, transactionUUID string, outcome Status, at time.Time) (bool, error) {
	if in.TransactionUUID == "" || in.TransactionUUID != transactionUUID {
		return false, ErrTransactionMismatch
	}
	if in.Status == StatusConfirmed || in.Status == outcome {
		return false, nil
	}
	switch outcome {
	case StatusConfirmed:
	case StatusFailed:
		if in.Status != StatusPending && in.Status != StatusInitiated {
			return false, nil
		}
	default:
		return false, errors.Wrapf(apperrors.ErrInvalidInput, "unsupported outcome %q", outcome)
	}
	in.Status = outcome
	in.UpdatedAt = at
	return true, nil
}
