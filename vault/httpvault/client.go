package httpvault

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
	apperrors "github.com/qrmenu/menu-relay/internal/errors"
	"github.com/qrmenu/menu-relay/vault"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const (
	decryptPath = "/api/vault/credentials/decrypt"
	statusPath  = "/api/vault/credentials/status"
	activePath  = "/api/vault/credentials/active"
)

var _ vault.Backend = (*Client)(nil)

// Client asks a remote secrets service to decrypt the stored gateway credentials.
type Client struct {
	baseURL string
	http    *resty.Client
	nowTime func() time.Time
}

func New(baseURL string, timeout time.Duration, credentials *clientcredentials.Config) (*Client, error) {
	if baseURL == "" {
		return nil, errors.New("[httpvault.New] base url is required")
	}

	rc := resty.New()
	if credentials != nil {
		ctx := context.WithValue(context.Background(), oauth2.HTTPClient, &http.Client{Timeout: timeout})
		rc = resty.NewWithClient(credentials.Client(ctx))
	}
	rc.SetTimeout(timeout)

	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    rc,
		nowTime: time.Now,
	}, nil
}

type decryptRequest struct {
	IdentityID string `json:"identity_id"`
}

type decryptResponse struct {
	ProductCode string `json:"product_code"`
	SecretKey   string `json:"secret_key"`
	AccountName string `json:"account_name"`
	DisplayName string `json:"display_name"`
	Environment string `json:"environment"`
	IsActive    *bool  `json:"is_active"`
}

func (c *Client) Decrypt(ctx context.Context, identityID string) (*vault.Bundle, error) {
	var out decryptResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(decryptRequest{IdentityID: identityID}).
		SetResult(&out).
		Post(c.baseURL + decryptPath)
	if err != nil {
		return nil, errors.Wrap(apperrors.ErrVaultUnavailable, err.Error())
	}

	switch {
	case resp.StatusCode() == http.StatusNotFound:
		return nil, errors.Wrap(apperrors.ErrNotFound, "[httpvault.Decrypt] no credentials configured")
	case resp.IsError():
		return nil, errors.Wrapf(apperrors.ErrVaultUnavailable, "[httpvault.Decrypt] status %d", resp.StatusCode())
	}
	if out.SecretKey == "" {
		return nil, errors.Wrap(apperrors.ErrVaultUnavailable, "[httpvault.Decrypt] empty bundle")
	}

	name := out.AccountName
	if name == "" {
		name = out.DisplayName
	}
	return &vault.Bundle{
		ProductCode: out.ProductCode,
		SecretKey:   out.SecretKey,
		AccountName: name,
		Environment: vault.Environment(out.Environment),
		Active:      out.IsActive == nil || *out.IsActive,
		DisclosedAt: c.nowTime(),
	}, nil
}

type activeRequest struct {
	IdentityID string `json:"identity_id"`
	IsActive   bool   `json:"is_active"`
}

// Status reads the credential metadata. An identity without credentials gets a
// zero Status rather than an error.
func (c *Client) Status(ctx context.Context, identityID string) (*vault.Status, error) {
	var out vault.Status
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("identity_id", identityID).
		SetResult(&out).
		Get(c.baseURL + statusPath)
	if err != nil {
		return nil, errors.Wrap(apperrors.ErrVaultUnavailable, err.Error())
	}
	switch {
	case resp.StatusCode() == http.StatusNotFound:
		return &vault.Status{}, nil
	case resp.IsError():
		return nil, errors.Wrapf(apperrors.ErrVaultUnavailable, "[httpvault.Status] status %d", resp.StatusCode())
	}
	return &out, nil
}

func (c *Client) SetActive(ctx context.Context, identityID string, active bool) (*vault.Status, error) {
	var out vault.Status
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(activeRequest{IdentityID: identityID, IsActive: active}).
		SetResult(&out).
		Post(c.baseURL + activePath)
	if err != nil {
		return nil, errors.Wrap(apperrors.ErrVaultUnavailable, err.Error())
	}
	switch {
	case resp.StatusCode() == http.StatusNotFound:
		return nil, errors.Wrap(apperrors.ErrNotFound, "[httpvault.SetActive] no credentials configured")
	case resp.IsError():
		return nil, errors.Wrapf(apperrors.ErrVaultUnavailable, "[httpvault.SetActive] status %d", resp.StatusCode())
	}
	return &out, nil
}
