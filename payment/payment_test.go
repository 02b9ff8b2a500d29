package payment_test

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/pkg/errors"
	apperrors "github.com/qrmenu/menu-relay/internal/errors"
	"github.com/qrmenu/menu-relay/payment"
	"github.com/qrmenu/menu-relay/payment/repofake"
	"github.com/stretchr/testify/require"
)

const targetURL = "https://rc-epay.esewa.com.np/api/epay/main/v2/form"

// fakeGateway accepts a callback whose signature is "signed:" followed by its signed message.
type fakeGateway struct {
	initiate  func(ctx context.Context, req payment.GatewayRequest) (map[string]string, error)
	verifyErr error
}

func (g *fakeGateway) Initiate(ctx context.Context, req payment.GatewayRequest) (map[string]string, error) {
	return g.initiate(ctx, req)
}

func (g *fakeGateway) Verify(_ context.Context, cb *payment.Callback) error {
	if g.verifyErr != nil {
		return g.verifyErr
	}
	msg, err := cb.SignedMessage()
	if err != nil {
		return err
	}
	if cb.Signature() != "signed:"+msg {
		return payment.ErrInvalidSignature
	}
	return nil
}

func sign(fields map[string]string) *payment.Callback {
	cb := &payment.Callback{Fields: withSignature(fields, "unsigned")}
	if msg, err := cb.SignedMessage(); err == nil {
		cb.Fields["signature"] = "signed:" + msg
	}
	return cb
}

func withSignature(fields map[string]string, sig string) map[string]string {
	out := make(map[string]string, len(fields)+1)
	for k, v := range fields {
		out[k] = v
	}
	out["signature"] = sig
	return out
}

type testFixture struct {
	store      *repofake.FakeIntentStore
	gateway    *fakeGateway
	relay      *payment.Relay
	reconciler *payment.Reconciler
	calls      int
	gatewayErr error
	nextUUID   int
}

func setupTestFixture(t *testing.T) *testFixture {
	t.Helper()
	f := &testFixture{store: repofake.NewFakeIntentStore()}

	f.gateway = &fakeGateway{}
	f.gateway.initiate = func(ctx context.Context, req payment.GatewayRequest) (map[string]string, error) {
		f.calls++
		if f.gatewayErr != nil {
			return nil, f.gatewayErr
		}
		return map[string]string{
			"total_amount":       req.Amounts.TotalAmount.String(),
			"transaction_uuid":   req.TransactionUUID,
			"product_code":       "EPAYTEST",
			"signed_field_names": "total_amount,transaction_uuid,product_code",
			"signature":          "opaque",
			"payment_url":        targetURL,
		}, nil
	}

	var err error
	f.relay, err = payment.NewRelay(f.store, f.gateway, payment.WithUUIDFunc(func() string {
		f.nextUUID++
		return fmt.Sprintf("tx-%d", f.nextUUID)
	}))
	require.NoError(t, err)
	f.reconciler, err = payment.NewReconciler(f.store, f.gateway)
	require.NoError(t, err)
	return f
}

func (f *testFixture) createIntent(t *testing.T, orderID string, a payment.Amounts) {
	t.Helper()
	require.NoError(t, f.store.Create(context.Background(), payment.Intent{OrderID: orderID, Amounts: a}))
}

func TestMoney(t *testing.T) {
	tests := []struct {
		in   string
		want payment.Money
		err  bool
	}{
		{in: "500", want: 50000},
		{in: "500.5", want: 50050},
		{in: "500.05", want: 50005},
		{in: "0", want: 0},
		{in: "-1.25", want: -125},
		{in: "1.234", err: true},
		{in: "abc", err: true},
		{in: "", err: true},
		{in: "92233720368547758.07", want: math.MaxInt64},
		{in: "92233720368547758.08", err: true},
		{in: "92233720368547759", err: true},
		{in: "--5", err: true},
	}
	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			got, err := payment.ParseMoney(tc.in)
			if tc.err {
				require.ErrorIs(t, err, apperrors.ErrInvalidInput)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
		})
	}

	t.Run("json", func(t *testing.T) {
		var a payment.Amounts
		require.NoError(t, json.Unmarshal([]byte(`{"totalAmount":500,"taxAmount":"50.5","serviceCharge":0,"deliveryCharge":20}`), &a))
		require.Equal(t, payment.Money(50000), a.TotalAmount)
		require.Equal(t, payment.Money(5050), a.TaxAmount)

		b, err := json.Marshal(a)
		require.NoError(t, err)
		require.JSONEq(t, `{"totalAmount":500,"taxAmount":50.5,"serviceCharge":0,"deliveryCharge":20}`, string(b))
	})
}

func TestInitiate(t *testing.T) {
	ctx := context.Background()
	amounts := payment.Amounts{TotalAmount: 60000, TaxAmount: 5000, ServiceCharge: 1000, DeliveryCharge: 2000}

	t.Run("returns descriptor and marks initiated", func(t *testing.T) {
		f := setupTestFixture(t)
		f.createIntent(t, "O1", amounts)

		d, err := f.relay.Initiate(ctx, "O1", amounts)
		require.NoError(t, err)
		require.Equal(t, targetURL, d.TargetURL)
		require.NotContains(t, d.SignedFields, payment.RedirectMarker)
		require.Equal(t, "opaque", d.SignedFields["signature"])
		require.Equal(t, "tx-1", d.TransactionUUID)

		in, err := f.store.Get(ctx, "O1")
		require.NoError(t, err)
		require.Equal(t, payment.StatusInitiated, in.Status)
		require.Equal(t, "tx-1", in.TransactionUUID)
	})

	t.Run("tampered total is rejected without mutation", func(t *testing.T) {
		f := setupTestFixture(t)
		f.createIntent(t, "O2", payment.Amounts{TotalAmount: 60000, TaxAmount: 5000, ServiceCharge: 1000, DeliveryCharge: 2000})

		_, err := f.relay.Initiate(ctx, "O2", payment.Amounts{TotalAmount: 50000, TaxAmount: 5000, ServiceCharge: 1000, DeliveryCharge: 2000})
		require.ErrorIs(t, err, apperrors.ErrInvalidInput)
		require.Equal(t, 0, f.calls)

		in, err := f.store.Get(ctx, "O2")
		require.NoError(t, err)
		require.Equal(t, payment.StatusPending, in.Status)
		require.Empty(t, in.TransactionUUID)
	})

	t.Run("negative amounts", func(t *testing.T) {
		f := setupTestFixture(t)
		f.createIntent(t, "O3", amounts)
		bad := amounts
		bad.TaxAmount = -1
		_, err := f.relay.Initiate(ctx, "O3", bad)
		require.ErrorIs(t, err, apperrors.ErrInvalidInput)
	})

	t.Run("unknown order", func(t *testing.T) {
		f := setupTestFixture(t)
		_, err := f.relay.Initiate(ctx, "nope", amounts)
		require.ErrorIs(t, err, apperrors.ErrNotFound)
	})

	t.Run("missing order id", func(t *testing.T) {
		f := setupTestFixture(t)
		_, err := f.relay.Initiate(ctx, " ", amounts)
		require.ErrorIs(t, err, apperrors.ErrInvalidInput)
	})

	t.Run("gateway failure leaves the intent untouched", func(t *testing.T) {
		f := setupTestFixture(t)
		f.createIntent(t, "O4", amounts)
		f.gatewayErr = errors.Wrap(apperrors.ErrGatewayUnavailable, "timeout")

		_, err := f.relay.Initiate(ctx, "O4", amounts)
		require.ErrorIs(t, err, apperrors.ErrGatewayUnavailable)

		in, err := f.store.Get(ctx, "O4")
		require.NoError(t, err)
		require.Equal(t, payment.StatusPending, in.Status)
	})

	t.Run("confirmed order cannot be re-initiated", func(t *testing.T) {
		f := setupTestFixture(t)
		f.createIntent(t, "O5", amounts)
		d, err := f.relay.Initiate(ctx, "O5", amounts)
		require.NoError(t, err)
		_, err = f.reconciler.Reconcile(ctx, "O5", d.TransactionUUID, payment.StatusConfirmed)
		require.NoError(t, err)

		_, err = f.relay.Initiate(ctx, "O5", amounts)
		require.ErrorIs(t, err, payment.ErrAlreadyConfirmed)
		require.Equal(t, 1, f.calls)
	})

	t.Run("failed order can be retried with a fresh transaction", func(t *testing.T) {
		f := setupTestFixture(t)
		f.createIntent(t, "O6", amounts)
		d1, err := f.relay.Initiate(ctx, "O6", amounts)
		require.NoError(t, err)
		_, err = f.reconciler.Reconcile(ctx, "O6", d1.TransactionUUID, payment.StatusFailed)
		require.NoError(t, err)

		d2, err := f.relay.Initiate(ctx, "O6", amounts)
		require.NoError(t, err)
		require.NotEqual(t, d1.TransactionUUID, d2.TransactionUUID)

		in, err := f.store.Get(ctx, "O6")
		require.NoError(t, err)
		require.Equal(t, payment.StatusInitiated, in.Status)
	})
}

func TestReconcile(t *testing.T) {
	ctx := context.Background()
	amounts := payment.Amounts{TotalAmount: 60000}

	setup := func(t *testing.T) (*testFixture, string) {
		f := setupTestFixture(t)
		f.createIntent(t, "O1", amounts)
		d, err := f.relay.Initiate(ctx, "O1", amounts)
		require.NoError(t, err)
		return f, d.TransactionUUID
	}

	t.Run("confirm is idempotent and never regresses", func(t *testing.T) {
		f, tx := setup(t)

		res, err := f.reconciler.Reconcile(ctx, "O1", tx, payment.StatusConfirmed)
		require.NoError(t, err)
		require.True(t, res.Changed)
		require.Equal(t, payment.StatusConfirmed, res.Intent.Status)

		res, err = f.reconciler.Reconcile(ctx, "O1", tx, payment.StatusConfirmed)
		require.NoError(t, err)
		require.False(t, res.Changed)

		res, err = f.reconciler.Reconcile(ctx, "O1", tx, payment.StatusFailed)
		require.NoError(t, err)
		require.False(t, res.Changed)
		require.Equal(t, payment.StatusConfirmed, res.Intent.Status)
	})

	t.Run("failure then late success", func(t *testing.T) {
		f, tx := setup(t)
		res, err := f.reconciler.Reconcile(ctx, "O1", tx, payment.StatusFailed)
		require.NoError(t, err)
		require.True(t, res.Changed)

		res, err = f.reconciler.Reconcile(ctx, "O1", tx, payment.StatusFailed)
		require.NoError(t, err)
		require.False(t, res.Changed)

		res, err = f.reconciler.Reconcile(ctx, "O1", tx, payment.StatusConfirmed)
		require.NoError(t, err)
		require.True(t, res.Changed)
		require.Equal(t, payment.StatusConfirmed, res.Intent.Status)
	})

	t.Run("order found by transaction", func(t *testing.T) {
		f, tx := setup(t)
		res, err := f.reconciler.Reconcile(ctx, "", tx, payment.StatusConfirmed)
		require.NoError(t, err)
		require.Equal(t, "O1", res.Intent.OrderID)
	})

	t.Run("unknown transaction for order", func(t *testing.T) {
		f, _ := setup(t)
		_, err := f.reconciler.Reconcile(ctx, "O1", "tx-forged", payment.StatusConfirmed)
		require.ErrorIs(t, err, payment.ErrTransactionMismatch)

		in, err := f.reconciler.Status(ctx, "O1")
		require.NoError(t, err)
		require.Equal(t, payment.StatusInitiated, in.Status)
	})

	t.Run("bad input", func(t *testing.T) {
		f, tx := setup(t)
		_, err := f.reconciler.Reconcile(ctx, "O1", "", payment.StatusConfirmed)
		require.ErrorIs(t, err, apperrors.ErrInvalidInput)
		_, err = f.reconciler.Reconcile(ctx, "O1", tx, payment.StatusInitiated)
		require.ErrorIs(t, err, apperrors.ErrInvalidInput)
		_, err = f.reconciler.Status(ctx, "")
		require.ErrorIs(t, err, apperrors.ErrInvalidInput)
	})

	t.Run("unknown order", func(t *testing.T) {
		f, _ := setup(t)
		_, err := f.reconciler.Reconcile(ctx, "", "tx-none", payment.StatusConfirmed)
		require.ErrorIs(t, err, apperrors.ErrNotFound)
	})
}

func TestDecodeCallback(t *testing.T) {
	data := base64.StdEncoding.EncodeToString([]byte(`{"transaction_code":"000AWEO","status":"COMPLETE","total_amount":1000.0,"transaction_uuid":"tx-1","product_code":"EPAYTEST","signed_field_names":"transaction_code,status,total_amount,transaction_uuid,product_code,signed_field_names","signature":"c2ln"}`))
	cb, err := payment.DecodeCallback(data)
	require.NoError(t, err)
	require.Equal(t, "tx-1", cb.TransactionUUID())
	require.Equal(t, payment.StatusConfirmed, cb.Outcome())

	total, err := cb.TotalAmount()
	require.NoError(t, err)
	require.Equal(t, payment.Money(100000), total)

	msg, err := cb.SignedMessage()
	require.NoError(t, err)
	require.Equal(t, "transaction_code=000AWEO,status=COMPLETE,total_amount=1000.0,transaction_uuid=tx-1,product_code=EPAYTEST,"+
		"signed_field_names=transaction_code,status,total_amount,transaction_uuid,product_code,signed_field_names", msg)

	_, err = payment.DecodeCallback("%%%")
	require.ErrorIs(t, err, apperrors.ErrInvalidInput)
	_, err = payment.DecodeCallback(base64.StdEncoding.EncodeToString([]byte(`{"nested":{}}`)))
	require.ErrorIs(t, err, apperrors.ErrInvalidInput)

	t.Run("signed message coverage", func(t *testing.T) {
		tests := []struct {
			name   string
			fields map[string]string
		}{
			{name: "status not signed", fields: map[string]string{"status": "COMPLETE", "total_amount": "1", "transaction_uuid": "t", "signed_field_names": "total_amount,transaction_uuid", "signature": "s"}},
			{name: "signed field absent", fields: map[string]string{"total_amount": "1", "transaction_uuid": "t", "signed_field_names": "status,total_amount,transaction_uuid", "signature": "s"}},
			{name: "no signature", fields: map[string]string{"status": "COMPLETE", "total_amount": "1", "transaction_uuid": "t", "signed_field_names": "status,total_amount,transaction_uuid"}},
			{name: "no field list", fields: map[string]string{"status": "COMPLETE", "signature": "s"}},
		}
		for _, tc := range tests {
			t.Run(tc.name, func(t *testing.T) {
				_, err := (&payment.Callback{Fields: tc.fields}).SignedMessage()
				require.ErrorIs(t, err, payment.ErrInvalidSignature)
				require.ErrorIs(t, err, apperrors.ErrUnauthorized)
			})
		}
	})
}

func TestReconcileCallback(t *testing.T) {
	ctx := context.Background()
	amounts := payment.Amounts{TotalAmount: 60000}

	setup := func(t *testing.T) (*testFixture, string) {
		f := setupTestFixture(t)
		f.createIntent(t, "O1", amounts)
		d, err := f.relay.Initiate(ctx, "O1", amounts)
		require.NoError(t, err)
		return f, d.TransactionUUID
	}
	completion := func(tx, total string) map[string]string {
		return map[string]string{
			"transaction_code":   "000AWEO",
			"status":             "COMPLETE",
			"total_amount":       total,
			"transaction_uuid":   tx,
			"product_code":       "EPAYTEST",
			"signed_field_names": "transaction_code,status,total_amount,transaction_uuid,product_code,signed_field_names",
		}
	}
	requireStatus := func(t *testing.T, f *testFixture, want payment.Status) {
		t.Helper()
		in, err := f.store.Get(ctx, "O1")
		require.NoError(t, err)
		require.Equal(t, want, in.Status)
	}

	t.Run("signed completion confirms", func(t *testing.T) {
		f, tx := setup(t)
		res, err := f.reconciler.ReconcileCallback(ctx, "", sign(completion(tx, "600.0")))
		require.NoError(t, err)
		require.True(t, res.Changed)
		require.Equal(t, "O1", res.Intent.OrderID)
		require.Equal(t, payment.StatusConfirmed, res.Intent.Status)
	})

	t.Run("thousands separator", func(t *testing.T) {
		f := setupTestFixture(t)
		f.createIntent(t, "O2", payment.Amounts{TotalAmount: 150000})
		d, err := f.relay.Initiate(ctx, "O2", payment.Amounts{TotalAmount: 150000})
		require.NoError(t, err)
		res, err := f.reconciler.ReconcileCallback(ctx, "O2", sign(completion(d.TransactionUUID, "1,500.0")))
		require.NoError(t, err)
		require.Equal(t, payment.StatusConfirmed, res.Intent.Status)
	})

	t.Run("forged signature", func(t *testing.T) {
		f, tx := setup(t)
		cb := &payment.Callback{Fields: withSignature(completion(tx, "600.0"), "forged")}
		_, err := f.reconciler.ReconcileCallback(ctx, "O1", cb)
		require.ErrorIs(t, err, payment.ErrInvalidSignature)
		require.ErrorIs(t, err, apperrors.ErrUnauthorized)
		requireStatus(t, f, payment.StatusInitiated)
	})

	t.Run("tampered after signing", func(t *testing.T) {
		f, tx := setup(t)
		fields := completion(tx, "600.0")
		fields["status"] = "CANCELED"
		cb := sign(fields)
		cb.Fields["status"] = "COMPLETE"
		_, err := f.reconciler.ReconcileCallback(ctx, "O1", cb)
		require.ErrorIs(t, err, payment.ErrInvalidSignature)
		requireStatus(t, f, payment.StatusInitiated)
	})

	t.Run("initiation signature replayed", func(t *testing.T) {
		f, tx := setup(t)
		cb := &payment.Callback{Fields: map[string]string{
			"status":             "COMPLETE",
			"total_amount":       "600.0",
			"transaction_uuid":   tx,
			"product_code":       "EPAYTEST",
			"signed_field_names": "total_amount,transaction_uuid,product_code",
			"signature":          "signed:total_amount=600.0,transaction_uuid=" + tx + ",product_code=EPAYTEST",
		}}
		_, err := f.reconciler.ReconcileCallback(ctx, "O1", cb)
		require.ErrorIs(t, err, payment.ErrInvalidSignature)
		requireStatus(t, f, payment.StatusInitiated)
	})

	t.Run("wrong amount", func(t *testing.T) {
		f, tx := setup(t)
		_, err := f.reconciler.ReconcileCallback(ctx, "O1", sign(completion(tx, "1.0")))
		require.ErrorIs(t, err, payment.ErrAmountMismatch)
		require.ErrorIs(t, err, apperrors.ErrInvalidInput)
		requireStatus(t, f, payment.StatusInitiated)
	})

	t.Run("signed failure", func(t *testing.T) {
		f, tx := setup(t)
		fields := completion(tx, "600.0")
		fields["status"] = "CANCELED"
		res, err := f.reconciler.ReconcileCallback(ctx, "O1", sign(fields))
		require.NoError(t, err)
		require.Equal(t, payment.StatusFailed, res.Intent.Status)
	})

	t.Run("verifier unavailable", func(t *testing.T) {
		f, tx := setup(t)
		f.gateway.verifyErr = errors.Wrap(apperrors.ErrGatewayUnavailable, "down")
		_, err := f.reconciler.ReconcileCallback(ctx, "O1", sign(completion(tx, "600.0")))
		require.ErrorIs(t, err, apperrors.ErrGatewayUnavailable)
		requireStatus(t, f, payment.StatusInitiated)
	})

	t.Run("missing transaction", func(t *testing.T) {
		f, _ := setup(t)
		_, err := f.reconciler.ReconcileCallback(ctx, "O1", &payment.Callback{Fields: map[string]string{}})
		require.ErrorIs(t, err, apperrors.ErrInvalidInput)
		_, err = f.reconciler.ReconcileCallback(ctx, "O1", nil)
		require.ErrorIs(t, err, apperrors.ErrInvalidInput)
	})
}

func TestApplyOutcome(t *testing.T) {
	at := time.Now()
	in := &payment.Intent{OrderID: "O1", Status: payment.StatusPending}
	_, err := payment.ApplyOutcome(in, "tx-1", payment.StatusConfirmed, at)
	require.ErrorIs(t, err, payment.ErrTransactionMismatch)

	in.TransactionUUID = "tx-1"
	changed, err := payment.ApplyOutcome(in, "tx-1", payment.StatusConfirmed, at)
	require.NoError(t, err)
	require.True(t, changed)
	require.Equal(t, at, in.UpdatedAt)
}
