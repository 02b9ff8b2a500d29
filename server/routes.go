package server

func (s *Server) initRoutes() {
	s.RegisterRouteHandler("GET "+RouteHealth, ChainMiddleware(s.HealthHandler(), s.APIMiddleware()...))

	// Step-up and disclosure. Every route needs a session token of an admin.
	admin := s.APIMiddleware(s.NoStoreMiddleware, s.RequireAuth(), s.RequireAdmin())
	s.RegisterRouteHandler("POST "+RouteCredentialsView, ChainMiddleware(s.BeginChallengeHandler(), admin...))
	s.RegisterRouteHandler("POST "+RouteCredentialsVerifyOTP, ChainMiddleware(s.VerifyChallengeHandler(), admin...))
	s.RegisterRouteHandler("POST "+RouteCredentialsDisclose, ChainMiddleware(s.DiscloseHandler(), admin...))
	s.RegisterRouteHandler("GET "+RouteCredentialsAuditLogs, ChainMiddleware(s.AuditLogsHandler(), admin...))
	s.RegisterRouteHandler("GET "+RouteCredentialsStatus, ChainMiddleware(s.CredentialStatusHandler(), admin...))
	s.RegisterRouteHandler("POST "+RouteCredentialsEnable, ChainMiddleware(s.EnableCredentialsHandler(), admin...))
	s.RegisterRouteHandler("POST "+RouteCredentialsDisable, ChainMiddleware(s.DisableCredentialsHandler(), admin...))

	// Payments are made by anonymous diners; the gateway calls back without a token.
	s.RegisterRouteHandler("POST "+RoutePaymentInitiate, ChainMiddleware(s.InitiatePaymentHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("GET "+RoutePaymentCallback, ChainMiddleware(s.PaymentCallbackHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("POST "+RoutePaymentCallback, ChainMiddleware(s.PaymentCallbackHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("GET "+RoutePaymentStatus, ChainMiddleware(s.PaymentStatusHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("POST "+RoutePaymentCancel, ChainMiddleware(s.CancelPaymentHandler(), s.APIMiddleware()...))

	s.RegisterRouteHandler("OPTIONS /api/", ChainMiddleware(s.PreflightHandler(), s.APIMiddleware()...))
}
