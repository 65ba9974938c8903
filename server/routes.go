package server

import (
	"github.com/jrsteele09/go-token-authority/users"
)

func (s *Server) initRoutes() {
	// Session broker (browser-facing)
	s.RegisterRouteHandler("GET "+RouteSSOLogin, ChainMiddleware(s.LoginPageHandler(), s.HTMLMiddleware()...))
	s.RegisterRouteHandler("POST "+RouteSSOLogin, ChainMiddleware(s.LoginSubmissionHandler(), s.HTMLMiddleware()...))
	s.RegisterRouteHandler("GET "+RouteSSOLogout, ChainMiddleware(s.LogoutHandler(), s.HTMLMiddleware()...))

	// Token lifecycle API
	s.RegisterRouteHandler("POST "+RouteAPILogin, ChainMiddleware(s.LoginAPIHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("POST "+RouteAPIRefresh, ChainMiddleware(s.RefreshHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("POST "+RouteAPIVerify, ChainMiddleware(s.VerifyHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("POST "+RouteAPIRevoke, ChainMiddleware(s.RevokeHandler(), s.APIMiddleware()...))

	// Admin API (requires a verified session carrying the admin role)
	adminGate := users.AnyOf{users.RoleAdmin}
	s.RegisterRouteHandler("POST "+RouteAdminRevokeAll,
		ChainMiddleware(s.AdminRevokeAllHandler(), s.APIMiddleware(s.RequireAuth(), s.RequireRoles(adminGate))...))
	s.RegisterRouteHandler("POST "+RouteAdminUsers,
		ChainMiddleware(s.AdminCreateUserHandler(), s.APIMiddleware(s.RequireAuth(), s.RequireRoles(adminGate))...))
	s.RegisterRouteHandler("GET "+RouteAdminUsers,
		ChainMiddleware(s.AdminListUsersHandler(), s.APIMiddleware(s.RequireAuth(), s.RequireRoles(adminGate))...))
	s.RegisterRouteHandler("PATCH "+RouteAdminUserByID,
		ChainMiddleware(s.AdminSetUserActiveHandler(), s.APIMiddleware(s.RequireAuth(), s.RequireRoles(adminGate))...))
}
