package config

type Config interface {
	EnvConfig
	CorsConfig
	SecurityConfig
	StoreConfig
	ExternalConfig
	OAuthConfig
}

type EnvConfig interface {
	GetPort() string
	GetAppName() string
	GetEnv() string
	GetLogLevel() string
}

type CorsConfig interface {
	GetAllowedOrigins() AllowedOrigins
	GetAllowedMethods() string
	GetAllowedHeaders() string
}

type mainConfig struct {
	EnvVars
	Cors
	Security
	Stores
	External
	OAuth
}

func New() Config {
	return mainConfig{}
}
