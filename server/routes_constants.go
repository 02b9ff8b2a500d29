package server

// Route path constants
const (
	RouteHealth = "/healthz"

	// Credential disclosure (admin only)
	RouteCredentialsView      = "/api/admin/credentials/view"
	RouteCredentialsVerifyOTP = "/api/admin/credentials/verify-otp"
	RouteCredentialsDisclose  = "/api/admin/credentials/disclose"
	RouteCredentialsAuditLogs = "/api/admin/credentials/audit-logs"
	RouteCredentialsStatus    = "/api/admin/credentials/status"
	RouteCredentialsEnable    = "/api/admin/credentials/enable"
	RouteCredentialsDisable   = "/api/admin/credentials/disable"

	// Payments
	RoutePaymentInitiate = "/api/payments/esewa/initiate"
	RoutePaymentCallback = "/api/payments/esewa/callback"
	RoutePaymentStatus   = "/api/payments/esewa/status"
	RoutePaymentCancel   = "/api/payments/esewa/cancel"
)
