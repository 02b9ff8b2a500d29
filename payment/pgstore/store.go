package pgstore

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pkg/errors"
	apperrors "github.com/qrmenu/menu-relay/internal/errors"
	"github.com/qrmenu/menu-relay/payment"
)

var _ payment.Store = (*Store)(nil)

// DB is the subset of pgxpool.Pool the store needs.
type DB interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const schema = `
CREATE TABLE IF NOT EXISTS payment_intents (
	order_id         TEXT PRIMARY KEY,
	total_amount     BIGINT      NOT NULL CHECK (total_amount >= 0),
	tax_amount       BIGINT      NOT NULL DEFAULT 0 CHECK (tax_amount >= 0),
	service_charge   BIGINT      NOT NULL DEFAULT 0 CHECK (service_charge >= 0),
	delivery_charge  BIGINT      NOT NULL DEFAULT 0 CHECK (delivery_charge >= 0),
	status           TEXT        NOT NULL DEFAULT 'pending',
	transaction_uuid TEXT        NOT NULL DEFAULT '',
	updated_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS payment_intents_transaction ON payment_intents (transaction_uuid);
`

const columns = `order_id, total_amount, tax_amount, service_charge, delivery_charge, status, transaction_uuid, updated_at`

// Store keeps payment intents in Postgres. Every transition is a single
// conditional UPDATE so concurrent callbacks cannot interleave.
type Store struct {
	db DB
}

func New(db DB) *Store {
	return &Store{db: db}
}

// Migrate creates the intents table if it does not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schema); err != nil {
		return errors.Wrap(err, "[pgstore.Migrate]")
	}
	return nil
}

func scanIntent(row pgx.Row) (*payment.Intent, error) {
	var (
		in     payment.Intent
		status string
		total  int64
		tax    int64
		svc    int64
		deliv  int64
	)
	if err := row.Scan(&in.OrderID, &total, &tax, &svc, &deliv, &status, &in.TransactionUUID, &in.UpdatedAt); err != nil {
		return nil, err
	}
	in.Amounts = payment.Amounts{
		TotalAmount:    payment.Money(total),
		TaxAmount:      payment.Money(tax),
		ServiceCharge:  payment.Money(svc),
		DeliveryCharge: payment.Money(deliv),
	}
	in.Status = payment.Status(status)
	return &in, nil
}

func (s *Store) Create(ctx context.Context, in payment.Intent) error {
	if in.Status == "" {
		in.Status = payment.StatusPending
	}
	if in.UpdatedAt.IsZero() {
		in.UpdatedAt = time.Now()
	}
	_, err := s.db.Exec(ctx,
		`INSERT INTO payment_intents (`+columns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		in.OrderID, int64(in.TotalAmount), int64(in.TaxAmount), int64(in.ServiceCharge), int64(in.DeliveryCharge),
		string(in.Status), in.TransactionUUID, in.UpdatedAt,
	)
	if err != nil {
		return errors.Wrap(err, "[pgstore.Create]")
	}
	return nil
}

func (s *Store) Get(ctx context.Context, orderID string) (*payment.Intent, error) {
	in, err := scanIntent(s.db.QueryRow(ctx, `SELECT `+columns+` FROM payment_intents WHERE order_id = $1`, orderID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errors.Wrapf(apperrors.ErrNotFound, "order %s", orderID)
	}
	if err != nil {
		return nil, errors.Wrap(err, "[pgstore.Get]")
	}
	return in, nil
}

func (s *Store) GetByTransaction(ctx context.Context, transactionUUID string) (*payment.Intent, error) {
	in, err := scanIntent(s.db.QueryRow(ctx,
		`SELECT `+columns+` FROM payment_intents WHERE transaction_uuid = $1 AND transaction_uuid <> ''`, transactionUUID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errors.Wrapf(apperrors.ErrNotFound, "transaction %s", transactionUUID)
	}
	if err != nil {
		return nil, errors.Wrap(err, "[pgstore.GetByTransaction]")
	}
	return in, nil
}

func (s *Store) MarkInitiated(ctx context.Context, orderID, transactionUUID string, at time.Time) (*payment.Intent, error) {
	in, err := scanIntent(s.db.QueryRow(ctx,
		`UPDATE payment_intents
		    SET status = 'initiated', transaction_uuid = $2, updated_at = $3
		  WHERE order_id = $1 AND status <> 'confirmed'
		RETURNING `+columns,
		orderID, transactionUUID, at,
	))
	if err == nil {
		return in, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, errors.Wrap(err, "[pgstore.MarkInitiated]")
	}
	if _, err := s.Get(ctx, orderID); err != nil {
		return nil, err
	}
	return nil, payment.ErrAlreadyConfirmed
}

// Settle applies the outcome with one UPDATE guarded by the allowed source
// states. When no row matches it reads the intent to tell a no-op from a mismatch.
func (s *Store) Settle(ctx context.Context, orderID, transactionUUID string, outcome payment.Status, at time.Time) (*payment.Intent, bool, error) {
	var from []string
	switch outcome {
	case payment.StatusConfirmed:
		from = []string{string(payment.StatusPending), string(payment.StatusInitiated), string(payment.StatusFailed)}
	case payment.StatusFailed:
		from = []string{string(payment.StatusPending), string(payment.StatusInitiated)}
	default:
		return nil, false, errors.Wrapf(apperrors.ErrInvalidInput, "[pgstore.Settle] unsupported outcome %q", outcome)
	}

	in, err := scanIntent(s.db.QueryRow(ctx,
		`UPDATE payment_intents
		    SET status = $3, updated_at = $4
		  WHERE order_id = $1 AND transaction_uuid = $2 AND status = ANY($5)
		RETURNING `+columns,
		orderID, transactionUUID, string(outcome), at, from,
	))
	if err == nil {
		return in, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, errors.Wrap(err, "[pgstore.Settle]")
	}

	current, err := s.Get(ctx, orderID)
	if err != nil {
		return nil, false, err
	}
	if current.TransactionUUID == "" || current.TransactionUUID != transactionUUID {
		return nil, false, payment.ErrTransactionMismatch
	}
	return current, false, nil
}
