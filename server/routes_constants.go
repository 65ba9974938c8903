package server

// Route path constants
// All application routes are defined here to ensure consistency and prevent typos
const (
	// Session broker routes (browser-facing)
	RouteSSOLogin  = "/sso/login"
	RouteSSOLogout = "/sso/logout"

	// API Routes - token lifecycle
	RouteAPILogin   = "/api/auth/login"
	RouteAPIRefresh = "/api/auth/refresh"
	RouteAPIVerify  = "/api/auth/verify"
	RouteAPIRevoke  = "/api/auth/revoke"

	// Admin Routes
	RouteAdminRevokeAll = "/api/admin/revoke-all"
	RouteAdminUsers     = "/api/admin/users"
	RouteAdminUserByID  = "/api/admin/users/{id}"
)
