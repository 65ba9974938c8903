package server

import "net/http"

// The broker keeps two HttpOnly cookies: the access token on the site
// root and the refresh token scoped down to the broker's own path, so it
// is only ever sent back for login and logout.
const refreshCookiePath = "/sso"

func (s *Server) setSessionCookies(w http.ResponseWriter, r *http.Request, accessToken, refreshToken string, accessMaxAge, refreshMaxAge int) {
	isSecure := getScheme(r) == "https"

	http.SetCookie(w, &http.Cookie{
		Name:     s.config.GetAccessCookieName(),
		Value:    accessToken,
		Path:     "/",
		HttpOnly: true,
		Secure:   isSecure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   accessMaxAge,
	})
	http.SetCookie(w, &http.Cookie{
		Name:     s.config.GetRefreshCookieName(),
		Value:    refreshToken,
		Path:     refreshCookiePath,
		HttpOnly: true,
		Secure:   isSecure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   refreshMaxAge,
	})
}

func (s *Server) clearSessionCookies(w http.ResponseWriter, r *http.Request) {
	isSecure := getScheme(r) == "https"

	http.SetCookie(w, &http.Cookie{
		Name:     s.config.GetAccessCookieName(),
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   isSecure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
	})
	http.SetCookie(w, &http.Cookie{
		Name:     s.config.GetRefreshCookieName(),
		Value:    "",
		Path:     refreshCookiePath,
		HttpOnly: true,
		Secure:   isSecure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
	})
}
