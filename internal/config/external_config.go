package config

import "time"

// ExternalConfig locates the collaborators the relay calls out to.
type ExternalConfig interface {
	GetAuthorityURL() string
	GetVaultURL() string
	GetVaultSealKey() string
	GetGatewayURL() string
	GetGatewaySuccessURL() string
	GetGatewayFailureURL() string
	GetRequestTimeout() time.Duration
	GetMerchantProductCode() string
	GetMerchantSecretKey() string
}

type External struct{}

var _ ExternalConfig = External{}

func (External) GetAuthorityURL() string {
	return GetEnv("AUTHORITY_URL", "")
}

func (External) GetVaultURL() string {
	return GetEnv("VAULT_URL", "")
}

// GetVaultSealKey is a base64 32-byte key for the in-process sealed vault.
func (External) GetVaultSealKey() string {
	return GetEnv("VAULT_SEAL_KEY", "")
}

func (External) GetGatewayURL() string {
	return GetEnv("GATEWAY_URL", "")
}

func (External) GetGatewaySuccessURL() string {
	return GetEnv("GATEWAY_SUCCESS_URL", "http://localhost:3000/payment/success")
}

func (External) GetGatewayFailureURL() string {
	return GetEnv("GATEWAY_FAILURE_URL", "http://localhost:3000/payment/failure")
}

func (External) GetRequestTimeout() time.Duration {
	return GetEnvDuration("EXTERNAL_TIMEOUT", 10*time.Second)
}

// GetMerchantProductCode and GetMerchantSecretKey seed the sealed vault at
// startup when no external vault is configured.
func (External) GetMerchantProductCode() string {
	return GetEnv("MERCHANT_PRODUCT_CODE", "EPAYTEST")
}

func (External) GetMerchantSecretKey() string {
	return GetEnv("MERCHANT_SECRET_KEY", "")
}
