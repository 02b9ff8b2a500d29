package httpauthority

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
	"github.com/qrmenu/menu-relay/identity"
	apperrors "github.com/qrmenu/menu-relay/internal/errors"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const (
	identityPath = "/api/auth/me"
	passwordPath = "/api/auth/verify-password"
	dispatchPath = "/api/auth/otp/dispatch"
)

var _ identity.Resolver = (*Client)(nil)

// Client talks to the restaurant's authentication backend. Session tokens are
// forwarded as received; password checks and code dispatch are made with the
// relay's own client credentials when configured.
type Client struct {
	baseURL string
	public  *resty.Client
	service *resty.Client
}

// Option defines a function type to modify the Client instance.
type Option func(*options)

type options struct {
	timeout     time.Duration
	credentials *clientcredentials.Config
	httpClient  *http.Client
}

func WithTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

// WithClientCredentials authenticates service calls with an OAuth2 client credentials grant.
func WithClientCredentials(cfg clientcredentials.Config) Option {
	return func(o *options) { o.credentials = &cfg }
}

// WithHTTPClient sets the underlying transport (primarily for testing)
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.httpClient = c }
}

func New(baseURL string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, errors.New("[httpauthority.New] base url is required")
	}
	o := options{timeout: 10 * time.Second}
	for _, opt := range opts {
		opt(&o)
	}

	base := o.httpClient
	if base == nil {
		base = &http.Client{}
	}
	public := resty.NewWithClient(base).SetTimeout(o.timeout)

	service := public
	if o.credentials != nil {
		ctx := context.WithValue(context.Background(), oauth2.HTTPClient, base)
		service = resty.NewWithClient(o.credentials.Client(ctx)).SetTimeout(o.timeout)
	}

	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		public:  public,
		service: service,
	}, nil
}

type identityResponse struct {
	ID                  string `json:"id"`
	Email               string `json:"email"`
	Role                string `json:"role"`
	IsAdminOrSuperAdmin bool   `json:"is_admin_or_super_admin"`
}

// ResolveToken asks the authority who token belongs to.
func (c *Client) ResolveToken(ctx context.Context, token string) (*identity.Identity, error) {
	var out identityResponse
	resp, err := c.public.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetResult(&out).
		Get(c.baseURL + identityPath)
	if err != nil {
		return nil, errors.Wrap(apperrors.ErrAuthorityUnavailable, err.Error())
	}

	switch {
	case resp.StatusCode() == http.StatusUnauthorized, resp.StatusCode() == http.StatusForbidden:
		return nil, errors.Wrap(apperrors.ErrUnauthenticated, "[httpauthority.ResolveToken] token rejected")
	case resp.IsError():
		return nil, errors.Wrapf(apperrors.ErrAuthorityUnavailable, "[httpauthority.ResolveToken] status %d", resp.StatusCode())
	}

	if out.ID == "" {
		return nil, errors.Wrap(apperrors.ErrUnauthenticated, "[httpauthority.ResolveToken] empty identity")
	}
	return &identity.Identity{
		ID:           out.ID,
		Email:        out.Email,
		Role:         identity.RoleType(out.Role),
		AdminOrAbove: out.IsAdminOrSuperAdmin,
	}, nil
}

type passwordRequest struct {
	UserID   string `json:"user_id"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type passwordResponse struct {
	Valid bool `json:"valid"`
}

// CheckPassword returns false for a wrong password. Unknown identities are also
// reported as a plain false.
func (c *Client) CheckPassword(ctx context.Context, id *identity.Identity, password string) (bool, error) {
	var out passwordResponse
	resp, err := c.service.R().
		SetContext(ctx).
		SetBody(passwordRequest{UserID: id.ID, Email: id.Email, Password: password}).
		SetResult(&out).
		Post(c.baseURL + passwordPath)
	if err != nil {
		return false, errors.Wrap(apperrors.ErrAuthorityUnavailable, err.Error())
	}

	switch {
	case resp.StatusCode() == http.StatusUnauthorized, resp.StatusCode() == http.StatusNotFound:
		return false, nil
	case resp.IsError():
		return false, errors.Wrapf(apperrors.ErrAuthorityUnavailable, "[httpauthority.CheckPassword] status %d", resp.StatusCode())
	}
	return out.Valid, nil
}

type dispatchRequest struct {
	UserID    string `json:"user_id"`
	Email     string `json:"email"`
	Code      string `json:"code"`
	ExpiresIn int    `json:"expires_in"`
}

// DispatchCode asks the authority to deliver code to the identity's registered channel.
func (c *Client) DispatchCode(ctx context.Context, id *identity.Identity, code string, expiresIn time.Duration) error {
	resp, err := c.service.R().
		SetContext(ctx).
		SetBody(dispatchRequest{UserID: id.ID, Email: id.Email, Code: code, ExpiresIn: int(expiresIn.Seconds())}).
		Post(c.baseURL + dispatchPath)
	if err != nil {
		return errors.Wrap(apperrors.ErrAuthorityUnavailable, err.Error())
	}
	if resp.IsError() {
		return errors.Wrapf(apperrors.ErrAuthorityUnavailable, "[httpauthority.DispatchCode] status %d", resp.StatusCode())
	}
	return nil
}
