package gateway

import (
	"context"
	"encoding/json"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
	apperrors "github.com/qrmenu/menu-relay/internal/errors"
	"github.com/qrmenu/menu-relay/payment"
)

const (
	initiatePath = "/api/payments/esewa/initiate"
	verifyPath   = "/api/payments/esewa/verify"
)

var _ payment.Gateway = (*Client)(nil)

// Client asks the payment signing service for an eSewa form. The relay never
// sees the merchant secret; signature and signed_field_names are passed through.
type Client struct {
	baseURL    string
	successURL string
	failureURL string
	http       *resty.Client
}

func New(baseURL, successURL, failureURL string, timeout time.Duration) (*Client, error) {
	if baseURL == "" {
		return nil, errors.New("[gateway.New] base url is required")
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		successURL: successURL,
		failureURL: failureURL,
		http:       resty.New().SetTimeout(timeout),
	}, nil
}

type initiateRequest struct {
	OrderID               string `json:"orderId"`
	TransactionUUID       string `json:"transaction_uuid"`
	Amount                string `json:"amount"`
	TaxAmount             string `json:"tax_amount"`
	ProductServiceCharge  string `json:"product_service_charge"`
	ProductDeliveryCharge string `json:"product_delivery_charge"`
	TotalAmount           string `json:"total_amount"`
	SuccessURL            string `json:"success_url,omitempty"`
	FailureURL            string `json:"failure_url,omitempty"`
}

// Initiate returns every field of the gateway's answer as a string.
func (c *Client) Initiate(ctx context.Context, req payment.GatewayRequest) (map[string]string, error) {
	a := req.Amounts
	base := a.TotalAmount - a.TaxAmount - a.ServiceCharge - a.DeliveryCharge
	if base < 0 {
		return nil, errors.Wrap(apperrors.ErrInvalidInput, "[gateway.Initiate] charges exceed total")
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(initiateRequest{
			OrderID:               req.OrderID,
			TransactionUUID:       req.TransactionUUID,
			Amount:                base.String(),
			TaxAmount:             a.TaxAmount.String(),
			ProductServiceCharge:  a.ServiceCharge.String(),
			ProductDeliveryCharge: a.DeliveryCharge.String(),
			TotalAmount:           a.TotalAmount.String(),
			SuccessURL:            withOrder(c.successURL, req.OrderID),
			FailureURL:            withOrder(c.failureURL, req.OrderID),
		}).
		Post(c.baseURL + initiatePath)
	if err != nil {
		return nil, errors.Wrap(apperrors.ErrGatewayUnavailable, err.Error())
	}
	if resp.IsError() {
		return nil, errors.Wrapf(apperrors.ErrGatewayUnavailable, "[gateway.Initiate] status %d", resp.StatusCode())
	}

	fields, err := payment.DecodeFields(resp.Body())
	if err != nil {
		return nil, errors.Wrap(apperrors.ErrGatewayUnavailable, err.Error())
	}
	return fields, nil
}

func withOrder(u, orderID string) string {
	if u == "" {
		return ""
	}
	sep := "?"
	if strings.Contains(u, "?") {
		sep = "&"
	}
	return u + sep + "orderId=" + url.QueryEscape(orderID)
}

type verifyRequest struct {
	Fields map[string]string `json:"fields"`
}

type verifyResponse struct {
	Valid bool `json:"valid"`
}

// Verify asks the signing service to check a callback signature. The field
// coverage is checked locally first.
func (c *Client) Verify(ctx context.Context, cb *payment.Callback) error {
	if _, err := cb.SignedMessage(); err != nil {
		return errors.Wrap(err, "[gateway.Verify]")
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(verifyRequest{Fields: cb.Fields}).
		Post(c.baseURL + verifyPath)
	if err != nil {
		return errors.Wrap(apperrors.ErrGatewayUnavailable, err.Error())
	}
	if resp.IsError() {
		return errors.Wrapf(apperrors.ErrGatewayUnavailable, "[gateway.Verify] status %d", resp.StatusCode())
	}
	var out verifyResponse
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return errors.Wrap(apperrors.ErrGatewayUnavailable, err.Error())
	}
	if !out.Valid {
		return errors.Wrap(payment.ErrInvalidSignature, "[gateway.Verify]")
	}
	return nil
}
