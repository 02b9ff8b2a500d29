package payment

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"
	apperrors "github.com/qrmenu/menu-relay/internal/errors"
	"github.com/rs/zerolog/log"
)

// Result is the intent after reconciliation and whether this call changed it.
type Result struct {
	Intent  *Intent
	Changed bool
}

// ErrAmountMismatch is returned when a completion reports a total other than the order's.
var ErrAmountMismatch = errors.Wrap(apperrors.ErrInvalidInput, "callback amount does not match order")

// Reconciler applies gateway outcomes to intents. Confirmed intents never move again.
type Reconciler struct {
	store   Store
	gateway Gateway
	nowTime func() time.Time
}

func NewReconciler(store Store, gateway Gateway) (*Reconciler, error) {
	if store == nil {
		return nil, errors.New("[NewReconciler] intent store is required")
	}
	if gateway == nil {
		return nil, errors.New("[NewReconciler] gateway is required")
	}
	return &Reconciler{store: store, gateway: gateway, nowTime: time.Now}, nil
}

// ReconcileCallback settles an order from the gateway's signed callback. The
// signature is checked first; a completion must also carry the order's total.
func (r *Reconciler) ReconcileCallback(ctx context.Context, orderID string, cb *Callback) (*Result, error) {
	if cb == nil || cb.TransactionUUID() == "" {
		return nil, errors.Wrap(apperrors.ErrInvalidInput, "[Reconciler.ReconcileCallback] transaction uuid is required")
	}
	if err := r.gateway.Verify(ctx, cb); err != nil {
		log.Warn().Err(err).
			Str("order_id", orderID).
			Str("transaction_uuid", cb.TransactionUUID()).
			Msg("payment callback rejected")
		return nil, errors.Wrap(err, "[Reconciler.ReconcileCallback] verify")
	}

	outcome := cb.Outcome()
	if outcome == StatusConfirmed {
		intent, err := r.lookup(ctx, orderID, cb.TransactionUUID())
		if err != nil {
			return nil, errors.Wrap(err, "[Reconciler.ReconcileCallback]")
		}
		total, err := cb.TotalAmount()
		if err != nil {
			return nil, errors.Wrap(err, "[Reconciler.ReconcileCallback] total_amount")
		}
		if total != intent.TotalAmount {
			log.Warn().
				Str("order_id", intent.OrderID).
				Str("transaction_uuid", cb.TransactionUUID()).
				Str("callback_total", total.String()).
				Str("recorded_total", intent.TotalAmount.String()).
				Msg("payment callback amount mismatch")
			return nil, errors.Wrap(ErrAmountMismatch, "[Reconciler.ReconcileCallback]")
		}
		orderID = intent.OrderID
	}

	return r.Reconcile(ctx, orderID, cb.TransactionUUID(), outcome)
}

func (r *Reconciler) lookup(ctx context.Context, orderID, transactionUUID string) (*Intent, error) {
	if orderID = strings.TrimSpace(orderID); orderID != "" {
		return r.store.Get(ctx, orderID)
	}
	return r.store.GetByTransaction(ctx, transactionUUID)
}

// Reconcile records outcome for the order's transaction. When orderID is empty
// the order is looked up by transaction. Callers outside the process must go
// through ReconcileCallback to confirm.
func (r *Reconciler) Reconcile(ctx context.Context, orderID, transactionUUID string, outcome Status) (*Result, error) {
	transactionUUID = strings.TrimSpace(transactionUUID)
	if transactionUUID == "" {
		return nil, errors.Wrap(apperrors.ErrInvalidInput, "[Reconciler.Reconcile] transaction uuid is required")
	}
	if !outcome.IsTerminal() {
		return nil, errors.Wrapf(apperrors.ErrInvalidInput, "[Reconciler.Reconcile] unsupported outcome %q", outcome)
	}

	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		intent, err := r.store.GetByTransaction(ctx, transactionUUID)
		if err != nil {
			return nil, errors.Wrap(err, "[Reconciler.Reconcile] find order")
		}
		orderID = intent.OrderID
	}

	intent, changed, err := r.store.Settle(ctx, orderID, transactionUUID, outcome, r.nowTime())
	if err != nil {
		return nil, errors.Wrap(err, "[Reconciler.Reconcile]")
	}

	ev := log.Info()
	if !changed {
		ev = log.Debug()
	}
	ev.Str("order_id", orderID).
		Str("transaction_uuid", transactionUUID).
		Str("outcome", string(outcome)).
		Str("status", string(intent.Status)).
		Bool("changed", changed).
		Msg("payment reconciled")
	return &Result{Intent: intent, Changed: changed}, nil
}

// Status returns the current intent for an order.
func (r *Reconciler) Status(ctx context.Context, orderID string) (*Intent, error) {
	if strings.TrimSpace(orderID) == "" {
		return nil, errors.Wrap(apperrors.ErrInvalidInput, "[Reconciler.Status] order id is required")
	}
	intent, err := r.store.Get(ctx, orderID)
	if err != nil {
		return nil, errors.Wrap(err, "[Reconciler.Status]")
	}
	return intent, nil
}
