package gateway

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"

	"github.com/pkg/errors"
	apperrors "github.com/qrmenu/menu-relay/internal/errors"
	"github.com/qrmenu/menu-relay/payment"
	"github.com/qrmenu/menu-relay/vault"
)

const (
	TestFormURL       = "https://rc-epay.esewa.com.np/api/epay/main/v2/form"
	ProductionFormURL = "https://epay.esewa.com.np/api/epay/main/v2/form"

	signedFieldNames = "total_amount,transaction_uuid,product_code"
)

var _ payment.Gateway = (*Signer)(nil)

// Signer builds eSewa v2 forms in process from the merchant credentials held
// in a vault. It stands in for the signing service when none is configured.
type Signer struct {
	vault      vault.Vault
	scope      string
	successURL string
	failureURL string
}

func NewSigner(v vault.Vault, scope, successURL, failureURL string) (*Signer, error) {
	if v == nil {
		return nil, errors.New("[gateway.NewSigner] vault is required")
	}
	return &Signer{vault: v, scope: scope, successURL: successURL, failureURL: failureURL}, nil
}

func (s *Signer) Initiate(ctx context.Context, req payment.GatewayRequest) (map[string]string, error) {
	a := req.Amounts
	base := a.TotalAmount - a.TaxAmount - a.ServiceCharge - a.DeliveryCharge
	if base < 0 {
		return nil, errors.Wrap(apperrors.ErrInvalidInput, "[Signer.Initiate] charges exceed total")
	}

	creds, err := s.credentials(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "[Signer.Initiate]")
	}

	total := a.TotalAmount.String()
	message := fmt.Sprintf("total_amount=%s,transaction_uuid=%s,product_code=%s", total, req.TransactionUUID, creds.ProductCode)

	formURL := TestFormURL
	if creds.Environment == vault.EnvironmentProduction {
		formURL = ProductionFormURL
	}

	return map[string]string{
		"amount":                  base.String(),
		"tax_amount":              a.TaxAmount.String(),
		"product_service_charge":  a.ServiceCharge.String(),
		"product_delivery_charge": a.DeliveryCharge.String(),
		"total_amount":            total,
		"transaction_uuid":        req.TransactionUUID,
		"product_code":            creds.ProductCode,
		"success_url":             withOrder(s.successURL, req.OrderID),
		"failure_url":             withOrder(s.failureURL, req.OrderID),
		"signed_field_names":      signedFieldNames,
		"signature":               Sign(creds.SecretKey, message),
		payment.RedirectMarker:    formURL,
	}, nil
}

// Verify checks the callback signature against the merchant secret. The
// product code, when present, must be the merchant's.
func (s *Signer) Verify(ctx context.Context, cb *payment.Callback) error {
	message, err := cb.SignedMessage()
	if err != nil {
		return errors.Wrap(err, "[Signer.Verify]")
	}
	creds, err := s.credentials(ctx)
	if err != nil {
		return errors.Wrap(err, "[Signer.Verify]")
	}
	if pc := cb.ProductCode(); pc != "" && pc != creds.ProductCode {
		return errors.Wrap(payment.ErrInvalidSignature, "[Signer.Verify] product code")
	}
	if !hmac.Equal([]byte(Sign(creds.SecretKey, message)), []byte(cb.Signature())) {
		return errors.Wrap(payment.ErrInvalidSignature, "[Signer.Verify]")
	}
	return nil
}

func (s *Signer) credentials(ctx context.Context) (*vault.Bundle, error) {
	creds, err := s.vault.Decrypt(ctx, s.scope)
	if err != nil {
		return nil, errors.Wrap(apperrors.ErrGatewayUnavailable, fmt.Sprintf("credentials: %v", err))
	}
	if !creds.Active {
		return nil, errors.Wrap(apperrors.ErrGatewayUnavailable, "merchant credentials are disabled")
	}
	return creds, nil
}

// Sign returns the base64 HMAC-SHA256 of message under secret.
func Sign(secret, message string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(message))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
