package config

// OAuthConfig holds the client credentials used when calling the authority and
// vault, and the OIDC issuer used to validate session tokens locally.
type OAuthConfig interface {
	GetClientID() string
	GetClientSecret() string
	GetTokenURL() string
	GetOIDCIssuer() string
	GetOIDCAudience() string
}

type OAuth struct{}

var _ OAuthConfig = OAuth{}

func (OAuth) GetClientID() string {
	return GetEnv("OAUTH_CLIENT_ID", "")
}

func (OAuth) GetClientSecret() string {
	return GetEnv("OAUTH_CLIENT_SECRET", "")
}

func (OAuth) GetTokenURL() string {
	return GetEnv("OAUTH_TOKEN_URL", "")
}

func (OAuth) GetOIDCIssuer() string {
	return GetEnv("OIDC_ISSUER", "")
}

func (OAuth) GetOIDCAudience() string {
	return GetEnv("OIDC_AUDIENCE", "")
}
