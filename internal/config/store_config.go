package config

type StoreConfig interface {
	GetRedisAddr() string
	GetRedisPassword() string
	GetRedisDB() int
	GetPostgresDSN() string
}

type Stores struct{}

var _ StoreConfig = Stores{}

// GetRedisAddr returns an empty string when Redis is not configured; in-memory stores are used instead.
func (Stores) GetRedisAddr() string {
	return GetEnv("REDIS_ADDR", "")
}

func (Stores) GetRedisPassword() string {
	return GetEnv("REDIS_PASSWORD", "")
}

func (Stores) GetRedisDB() int {
	return GetEnvInt("REDIS_DB", 0)
}

func (Stores) GetPostgresDSN() string {
	return GetEnv("POSTGRES_DSN", "")
}
