package config

import "time"

// SecurityConfig holds the step-up challenge and capability settings.
type SecurityConfig interface {
	GetChallengeCodeLength() int
	GetChallengeTTL() time.Duration
	GetChallengeMaxAttempts() int
	GetCapabilityTTL() time.Duration
	GetCapabilitySigningKey() string
}

type Security struct{}

var _ SecurityConfig = Security{}

func (Security) GetChallengeCodeLength() int {
	return GetEnvInt("STEPUP_CODE_LENGTH", 6)
}

func (Security) GetChallengeTTL() time.Duration {
	return GetEnvDuration("STEPUP_CODE_TTL", 5*time.Minute)
}

func (Security) GetChallengeMaxAttempts() int {
	return GetEnvInt("STEPUP_MAX_ATTEMPTS", 5)
}

func (Security) GetCapabilityTTL() time.Duration {
	return GetEnvDuration("CAPABILITY_TTL", 2*time.Minute)
}

// GetCapabilitySigningKey has no default. An empty key is only accepted in DEV,
// where an ephemeral key is generated at startup.
func (Security) GetCapabilitySigningKey() string {
	return GetEnv("CAPABILITY_SIGNING_KEY", "")
}
