package server

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/qrmenu/menu-relay/audit"
	"github.com/qrmenu/menu-relay/disclosure"
	"github.com/qrmenu/menu-relay/identity"
	apperrors "github.com/qrmenu/menu-relay/internal/errors"
	"github.com/qrmenu/menu-relay/vault"
)

type beginChallengeRequest struct {
	Password string `json:"password"`
}

type beginChallengeResponse struct {
	Message   string `json:"message"`
	Email     string `json:"email"`
	ExpiresIn int    `json:"expires_in"`
}

type verifyChallengeRequest struct {
	OTP string `json:"otp"`
}

type verifyChallengeResponse struct {
	Capability string `json:"capability"`
	ExpiresIn  int    `json:"expires_in"`
}

type discloseRequest struct {
	Capability string `json:"capability"`
}

type switchCredentialsRequest struct {
	Password string `json:"password"`
}

type switchCredentialsResponse struct {
	Message string        `json:"message"`
	Status  *vault.Status `json:"status"`
}

type auditLogsResponse struct {
	Logs []audit.Record `json:"logs"`
}

// requestIdentity returns the identity RequireAuth placed on the request.
func requestIdentity(w http.ResponseWriter, r *http.Request) (*identity.Identity, bool) {
	id, ok := IdentityFromContext(r.Context())
	if !ok {
		writeJSONError(w, http.StatusUnauthorized)
	}
	return id, ok
}

func (s *Server) BeginChallengeHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := requestIdentity(w, r)
		if !ok {
			return
		}
		var req beginChallengeRequest
		if err := decodeJSON(w, r, &req); err != nil {
			respondError(w, r, err)
			return
		}

		pending, err := s.services.StepUp.BeginChallenge(r.Context(), id, req.Password)
		if err != nil {
			respondError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, beginChallengeResponse{
			Message:   "OTP sent",
			Email:     vault.MaskEmail(id.Email),
			ExpiresIn: int(pending.ExpiresIn.Seconds()),
		})
	}
}

func (s *Server) VerifyChallengeHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := requestIdentity(w, r)
		if !ok {
			return
		}
		var req verifyChallengeRequest
		if err := decodeJSON(w, r, &req); err != nil {
			respondError(w, r, err)
			return
		}

		completion, err := s.services.StepUp.VerifyChallenge(r.Context(), id, req.OTP)
		if err != nil {
			respondError(w, r, err)
			return
		}

		expiresIn := int(time.Until(completion.ExpiresAt).Seconds())
		if expiresIn < 0 {
			expiresIn = 0
		}
		writeJSON(w, http.StatusOK, verifyChallengeResponse{
			Capability: completion.Capability,
			ExpiresIn:  expiresIn,
		})
	}
}

func (s *Server) DiscloseHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := requestIdentity(w, r)
		if !ok {
			return
		}
		var req discloseRequest
		if err := decodeJSON(w, r, &req); err != nil {
			respondError(w, r, err)
			return
		}

		bundle, err := s.services.Gate.Disclose(r.Context(), id, req.Capability, requestMeta(r))
		if err != nil {
			respondError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, bundle)
	}
}

func (s *Server) AuditLogsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := requestIdentity(w, r)
		if !ok {
			return
		}

		limit := audit.DefaultListLimit
		if raw := r.URL.Query().Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n <= 0 {
				respondError(w, r, apperrors.Wrapf(apperrors.ErrInvalidInput, "invalid limit %q", raw))
				return
			}
			limit = min(n, audit.DefaultListLimit)
		}

		records, err := s.services.Gate.History(r.Context(), id, limit)
		if err != nil {
			respondError(w, r, err)
			return
		}
		if records == nil {
			records = []audit.Record{}
		}
		writeJSON(w, http.StatusOK, auditLogsResponse{Logs: records})
	}
}

// CredentialStatusHandler reports whether credentials are stored. Nothing is decrypted.
func (s *Server) CredentialStatusHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := requestIdentity(w, r)
		if !ok {
			return
		}
		st, err := s.services.Settings.Status(r.Context(), id)
		if err != nil {
			respondError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, st)
	}
}

func (s *Server) EnableCredentialsHandler() http.HandlerFunc {
	return s.switchCredentialsHandler(true, "Credentials enabled")
}

func (s *Server) DisableCredentialsHandler() http.HandlerFunc {
	return s.switchCredentialsHandler(false, "Credentials disabled")
}

func (s *Server) switchCredentialsHandler(active bool, message string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := requestIdentity(w, r)
		if !ok {
			return
		}
		var req switchCredentialsRequest
		if err := decodeJSON(w, r, &req); err != nil {
			respondError(w, r, err)
			return
		}

		st, err := s.services.Settings.SetActive(r.Context(), id, req.Password, active, requestMeta(r))
		if err != nil {
			respondError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, switchCredentialsResponse{Message: message, Status: st})
	}
}

// requestMeta takes the first X-Forwarded-For hop when present.
func requestMeta(r *http.Request) disclosure.RequestMeta {
	ip := ""
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		ip = strings.TrimSpace(strings.Split(fwd, ",")[0])
	}
	if ip == "" {
		host, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			host = r.RemoteAddr
		}
		ip = host
	}
	return disclosure.RequestMeta{IPAddress: ip, UserAgent: r.UserAgent()}
}
