package payment

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	apperrors "github.com/qrmenu/menu-relay/internal/errors"
	"github.com/rs/zerolog/log"
)

// RedirectMarker is the field the gateway uses for the form target. It is
// lifted out of the signed fields into Descriptor.TargetURL.
const RedirectMarker = "payment_url"

// GatewayRequest is what the relay asks the gateway to sign.
type GatewayRequest struct {
	OrderID         string
	TransactionUUID string
	Amounts         Amounts
}

// Gateway returns the signed form fields for a payment and checks the signature
// of the gateway's callback. Implementations wrap apperrors.ErrGatewayUnavailable
// on failure and ErrInvalidSignature when a callback does not verify.
type Gateway interface {
	Initiate(ctx context.Context, req GatewayRequest) (map[string]string, error)
	Verify(ctx context.Context, cb *Callback) error
}

// Descriptor tells the browser where to post and what to post.
type Descriptor struct {
	TargetURL       string            `json:"target_url"`
	SignedFields    map[string]string `json:"signed_fields"`
	TransactionUUID string            `json:"transaction_uuid"`
}

// Relay starts gateway payments for pending orders.
type Relay struct {
	store   Store
	gateway Gateway
	nowTime func() time.Time
	newUUID func() string
}

// RelayOption defines a function type to modify the Relay instance.
type RelayOption func(*Relay)

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) RelayOption {
	return func(r *Relay) {
		r.nowTime = nowFunc
	}
}

// WithUUIDFunc sets the transaction id generator (primarily for testing)
func WithUUIDFunc(f func() string) RelayOption {
	return func(r *Relay) {
		r.newUUID = f
	}
}

func NewRelay(store Store, gateway Gateway, opts ...RelayOption) (*Relay, error) {
	if store == nil {
		return nil, errors.New("[NewRelay] intent store is required")
	}
	if gateway == nil {
		return nil, errors.New("[NewRelay] gateway is required")
	}
	r := &Relay{
		store:   store,
		gateway: gateway,
		nowTime: time.Now,
		newUUID: func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Initiate checks the client's amounts against the recorded intent, asks the
// gateway for a signed form and marks the intent initiated. Nothing is written
// unless the gateway call succeeds.
func (r *Relay) Initiate(ctx context.Context, orderID string, amounts Amounts) (*Descriptor, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return nil, errors.Wrap(apperrors.ErrInvalidInput, "[Relay.Initiate] order id is required")
	}
	if err := amounts.Validate(); err != nil {
		return nil, errors.Wrap(err, "[Relay.Initiate]")
	}

	intent, err := r.store.Get(ctx, orderID)
	if err != nil {
		return nil, errors.Wrap(err, "[Relay.Initiate] load intent")
	}
	if intent.Status == StatusConfirmed {
		return nil, errors.Wrap(ErrAlreadyConfirmed, "[Relay.Initiate]")
	}
	if amounts != intent.Amounts {
		log.Warn().
			Str("order_id", orderID).
			Str("client_total", amounts.TotalAmount.String()).
			Str("recorded_total", intent.TotalAmount.String()).
			Msg("payment amount mismatch")
		return nil, errors.Wrap(apperrors.ErrInvalidInput, "[Relay.Initiate] amounts do not match the order")
	}

	txUUID := r.newUUID()
	fields, err := r.gateway.Initiate(ctx, GatewayRequest{OrderID: orderID, TransactionUUID: txUUID, Amounts: intent.Amounts})
	if err != nil {
		return nil, errors.Wrap(err, "[Relay.Initiate] gateway")
	}

	target := fields[RedirectMarker]
	if target == "" {
		return nil, errors.Wrap(apperrors.ErrGatewayUnavailable, "[Relay.Initiate] gateway returned no redirect target")
	}
	signed := make(map[string]string, len(fields))
	for k, v := range fields {
		if k != RedirectMarker {
			signed[k] = v
		}
	}
	if gw := signed["transaction_uuid"]; gw != "" {
		txUUID = gw
	}

	if _, err := r.store.MarkInitiated(ctx, orderID, txUUID, r.nowTime()); err != nil {
		return nil, errors.Wrap(err, "[Relay.Initiate] mark initiated")
	}

	log.Info().Str("order_id", orderID).Str("transaction_uuid", txUUID).Msg("payment initiated")
	return &Descriptor{TargetURL: target, SignedFields: signed, TransactionUUID: txUUID}, nil
}
