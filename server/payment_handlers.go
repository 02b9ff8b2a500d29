package server

import (
	"net/http"
	"strings"

	apperrors "github.com/qrmenu/menu-relay/internal/errors"
	"github.com/qrmenu/menu-relay/payment"
)

type initiatePaymentRequest struct {
	OrderID string `json:"orderId"`
	payment.Amounts
}

type cancelPaymentRequest struct {
	OrderID         string `json:"orderId"`
	TransactionUUID string `json:"transactionUuid"`
}

type paymentStatusResponse struct {
	OrderID         string         `json:"orderId"`
	Status          payment.Status `json:"status"`
	TransactionUUID string         `json:"transactionUuid,omitempty"`
	Changed         *bool          `json:"changed,omitempty"`
}

func (s *Server) InitiatePaymentHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req initiatePaymentRequest
		if err := decodeJSON(w, r, &req); err != nil {
			respondError(w, r, err)
			return
		}

		descriptor, err := s.services.Relay.Initiate(r.Context(), req.OrderID, req.Amounts)
		if err != nil {
			respondError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, descriptor)
	}
}

// PaymentCallbackHandler reconciles a gateway outcome, from the query string
// or a form body. Only the gateway's signed "data" payload can confirm a
// payment; explicit orderId/transactionUuid/status values may only report a
// failure.
func (s *Server) PaymentCallbackHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		if err := r.ParseForm(); err != nil {
			respondError(w, r, apperrors.Wrapf(apperrors.ErrInvalidInput, "parse callback: %v", err))
			return
		}
		orderID := r.Form.Get("orderId")

		var (
			result *payment.Result
			err    error
		)
		if data := r.Form.Get("data"); data != "" {
			var cb *payment.Callback
			if cb, err = payment.DecodeCallback(data); err != nil {
				respondError(w, r, err)
				return
			}
			result, err = s.services.Reconciler.ReconcileCallback(r.Context(), orderID, cb)
		} else {
			if err = requireFailureStatus(r.Form.Get("status")); err != nil {
				respondError(w, r, err)
				return
			}
			result, err = s.services.Reconciler.Reconcile(r.Context(), orderID, r.Form.Get("transactionUuid"), payment.StatusFailed)
		}
		if err != nil {
			respondError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, paymentStatusResponse{
			OrderID:         result.Intent.OrderID,
			Status:          result.Intent.Status,
			TransactionUUID: result.Intent.TransactionUUID,
			Changed:         &result.Changed,
		})
	}
}

func (s *Server) PaymentStatusHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		intent, err := s.services.Reconciler.Status(r.Context(), r.URL.Query().Get("orderId"))
		if err != nil {
			respondError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, paymentStatusResponse{
			OrderID:         intent.OrderID,
			Status:          intent.Status,
			TransactionUUID: intent.TransactionUUID,
		})
	}
}

// CancelPaymentHandler records an abandoned checkout as failed. The order can
// be initiated again afterwards.
func (s *Server) CancelPaymentHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req cancelPaymentRequest
		if err := decodeJSON(w, r, &req); err != nil {
			respondError(w, r, err)
			return
		}
		if strings.TrimSpace(req.OrderID) == "" {
			respondError(w, r, apperrors.Wrapf(apperrors.ErrInvalidInput, "order id is required"))
			return
		}

		result, err := s.services.Reconciler.Reconcile(r.Context(), req.OrderID, req.TransactionUUID, payment.StatusFailed)
		if err != nil {
			respondError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, paymentStatusResponse{
			OrderID:         result.Intent.OrderID,
			Status:          result.Intent.Status,
			TransactionUUID: result.Intent.TransactionUUID,
			Changed:         &result.Changed,
		})
	}
}

func requireFailureStatus(status string) error {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "failed", "failure", "canceled", "cancelled":
		return nil
	case "confirmed", "complete", "success":
		return apperrors.Wrapf(apperrors.ErrInvalidInput, "confirmation requires a signed gateway payload")
	default:
		return apperrors.Wrapf(apperrors.ErrInvalidInput, "unsupported status %q", status)
	}
}
