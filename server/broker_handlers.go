package server

import (
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/rs/zerolog/log"
)

// ErrUntrustedRedirectTarget is returned when a post-login redirect target
// points at an origin outside the configured allow list.
var ErrUntrustedRedirectTarget = errors.New("untrusted redirect target")

// LoginPageData contains data for rendering the login page
type LoginPageData struct {
	AppName  string
	Target   string
	Error    string
	Username string // Preserve username on error
}

// LoginPageHandler displays the login page (GET /sso/login)
func (s *Server) LoginPageHandler() http.HandlerFunc {
	loginTmpl, err := ParseTemplate("login.html")
	if err != nil {
		panic("Failed to parse login template: " + err.Error())
	}

	return func(w http.ResponseWriter, r *http.Request) {
		data := LoginPageData{
			AppName:  s.config.GetAppName(),
			Target:   r.URL.Query().Get("target"),
			Error:    r.URL.Query().Get("error"),
			Username: r.URL.Query().Get("username"),
		}

		w.Header().Set("Content-Type", contentTypeHTML)
		if err := loginTmpl.Execute(w, data); err != nil {
			log.Err(err).Msg("Failed to render login template")
			http.Error(w, "Failed to render login page", http.StatusInternalServerError)
		}
	}
}

// LoginSubmissionHandler processes the login form (POST /sso/login).
// On success it sets the session cookies and redirects to the remembered
// target if the target is trusted. Credential failures re-render the form
// with a generic message so nothing about the account leaks.
func (s *Server) LoginSubmissionHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, "Invalid form data", http.StatusBadRequest)
			return
		}

		username := r.FormValue("username")
		password := r.FormValue("password")
		target := r.FormValue("target")

		redirectTarget, err := s.resolveRedirectTarget(target)
		if err != nil {
			http.Error(w, "Untrusted redirect target", http.StatusBadRequest)
			return
		}

		pair, err := s.auth.Login(r.Context(), username, password, "browser")
		if err != nil {
			redirectToLoginError(w, r, target, username)
			return
		}

		accessMaxAge := pair.ExpiresIn
		refreshMaxAge := int(s.config.GetRefreshTokenExpiry().Seconds())
		s.setSessionCookies(w, r, pair.AccessToken, pair.RefreshToken, accessMaxAge, refreshMaxAge)

		http.Redirect(w, r, redirectTarget, http.StatusSeeOther)
	}
}

// LogoutHandler ends the browser session (GET /sso/logout): the cookies
// are cleared, the access token's jti is tombstoned, and the refresh
// chain is retired.
func (s *Server) LogoutHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var accessToken, refreshToken string
		if cookie, err := r.Cookie(s.config.GetAccessCookieName()); err == nil {
			accessToken = cookie.Value
		}
		if cookie, err := r.Cookie(s.config.GetRefreshCookieName()); err == nil {
			refreshToken = cookie.Value
		}

		if err := s.auth.Logout(r.Context(), accessToken, refreshToken); err != nil {
			log.Err(err).Msg("logout revocation failed")
		}

		s.clearSessionCookies(w, r)
		http.Redirect(w, r, RouteSSOLogin, http.StatusSeeOther)
	}
}

// resolveRedirectTarget validates a post-login target. Relative paths are
// always trusted; absolute URLs must match an allow-listed origin. An
// empty target falls back to the site root.
func (s *Server) resolveRedirectTarget(target string) (string, error) {
	if target == "" {
		return "/", nil
	}

	// Protocol-relative URLs ("//evil.com") parse as relative but leave
	// the site, so they are treated as absolute.
	if strings.HasPrefix(target, "/") && !strings.HasPrefix(target, "//") {
		return target, nil
	}

	parsed, err := url.Parse(target)
	if err != nil || parsed.Host == "" {
		return "", ErrUntrustedRedirectTarget
	}

	origin := parsed.Scheme + "://" + parsed.Host
	if !s.config.GetAllowedRedirectOrigins().IsAllowedOrigin(origin) {
		return "", ErrUntrustedRedirectTarget
	}
	return target, nil
}

func redirectToLoginError(w http.ResponseWriter, r *http.Request, target, username string) {
	query := url.Values{}
	query.Set("error", "Login failed. Please check your credentials and try again.")
	if target != "" {
		query.Set("target", target)
	}
	if username != "" {
		query.Set("username", username)
	}
	http.Redirect(w, r, RouteSSOLogin+"?"+query.Encode(), http.StatusSeeOther)
}
