package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jrsteele09/go-token-authority/auth"
	"github.com/jrsteele09/go-token-authority/internal/config"
	"github.com/jrsteele09/go-token-authority/registry"
	"github.com/jrsteele09/go-token-authority/server"
	"github.com/jrsteele09/go-token-authority/token"
	"github.com/jrsteele09/go-token-authority/token/refresh"
	"github.com/jrsteele09/go-token-authority/users"
	fakeuserrepo "github.com/jrsteele09/go-token-authority/users/repofake"
)

const (
	testAdminPassword = "Adm1n!Passw0rd"
	testUserPassword  = "Str0ng!Password"
)

type serverFixture struct {
	server  *server.Server
	service *auth.AuthService
	user    *users.User
}

func newServerFixture(t *testing.T) *serverFixture {
	t.Helper()

	t.Setenv("BOOTSTRAP_ADMIN_PASSWORD", testAdminPassword)
	t.Setenv("ALLOWED_REDIRECT_ORIGINS", "https://app.example.com")

	reg := registry.NewInMemoryRegistry()
	userRepo := fakeuserrepo.NewFakeUserRepo()

	issuer, err := token.NewIssuer(token.NewHMACSigner("server-test-secret"), userRepo, reg)
	require.NoError(t, err)
	rotator := refresh.NewManager(reg, issuer, userRepo)

	service, err := auth.NewAuthService(auth.Repos{Users: userRepo, Registry: reg}, issuer, rotator)
	require.NoError(t, err)

	srv, err := server.New(config.New(), auth.Repos{Users: userRepo, Registry: reg}, service)
	require.NoError(t, err)

	user, err := service.CreateUser(context.Background(), "alice", testUserPassword, []users.RoleType{users.RoleUser})
	require.NoError(t, err)

	return &serverFixture{server: srv, service: service, user: user}
}

func (f *serverFixture) postJSON(t *testing.T, path string, payload any, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	f.server.ServeHTTP(rec, req)
	return rec
}

func (f *serverFixture) login(t *testing.T, username, password string) *token.TokenPair {
	t.Helper()
	rec := f.postJSON(t, server.RouteAPILogin, map[string]string{"username": username, "password": password}, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var pair token.TokenPair
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &pair))
	return &pair
}

func bearer(accessToken string) http.Header {
	return http.Header{"Authorization": []string{"Bearer " + accessToken}}
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body["error"]
}

func TestLoginAndVerifyOverHTTP(t *testing.T) {
	f := newServerFixture(t)

	pair := f.login(t, "alice", testUserPassword)
	require.NotEmpty(t, pair.AccessToken)
	require.NotEmpty(t, pair.RefreshToken)

	rec := f.postJSON(t, server.RouteAPIVerify, nil, bearer(pair.AccessToken))
	require.Equal(t, http.StatusOK, rec.Code)

	var identity struct {
		SubjectID string   `json:"subject_id"`
		Roles     []string `json:"roles"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &identity))
	require.Equal(t, f.user.ID, identity.SubjectID)
	require.Contains(t, identity.Roles, "user")
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	f := newServerFixture(t)

	rec := f.postJSON(t, server.RouteAPILogin, map[string]string{"username": "alice", "password": "wrong"}, nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, "invalid_credential", decodeError(t, rec))
}

func TestVerifyAcceptsCookiePresentation(t *testing.T) {
	f := newServerFixture(t)
	pair := f.login(t, "alice", testUserPassword)

	req := httptest.NewRequest(http.MethodPost, server.RouteAPIVerify, nil)
	req.AddCookie(&http.Cookie{Name: "authority_token", Value: pair.AccessToken})
	rec := httptest.NewRecorder()
	f.server.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
}

func TestRefreshRotatesAndDetectsReuse(t *testing.T) {
	f := newServerFixture(t)
	pair := f.login(t, "alice", testUserPassword)

	rec := f.postJSON(t, server.RouteAPIRefresh, map[string]string{"refresh_token": pair.RefreshToken}, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var rotated token.TokenPair
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rotated))
	require.NotEqual(t, pair.RefreshToken, rotated.RefreshToken)

	rec = f.postJSON(t, server.RouteAPIRefresh, map[string]string{"refresh_token": pair.RefreshToken}, nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, "refresh_token_reused", decodeError(t, rec))
}

func TestRevokeEndpointTombstonesAccessToken(t *testing.T) {
	f := newServerFixture(t)
	pair := f.login(t, "alice", testUserPassword)

	rec := f.postJSON(t, server.RouteAPIRevoke, map[string]string{"access_token": pair.AccessToken}, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	// Idempotent
	rec = f.postJSON(t, server.RouteAPIRevoke, map[string]string{"access_token": pair.AccessToken}, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.postJSON(t, server.RouteAPIVerify, nil, bearer(pair.AccessToken))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, "revoked", decodeError(t, rec))
}

func TestAdminEndpointsRequireAdminRole(t *testing.T) {
	f := newServerFixture(t)
	userPair := f.login(t, "alice", testUserPassword)

	rec := f.postJSON(t, server.RouteAdminRevokeAll, map[string]string{"subject_id": f.user.ID}, bearer(userPair.AccessToken))
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.postJSON(t, server.RouteAdminRevokeAll, map[string]string{"subject_id": f.user.ID}, nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAdminRevokeAllEndsEverySession(t *testing.T) {
	f := newServerFixture(t)
	adminPair := f.login(t, "admin", testAdminPassword)
	userPair := f.login(t, "alice", testUserPassword)

	rec := f.postJSON(t, server.RouteAdminRevokeAll, map[string]string{"subject_id": f.user.ID}, bearer(adminPair.AccessToken))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.postJSON(t, server.RouteAPIRefresh, map[string]string{"refresh_token": userPair.RefreshToken}, nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAdminCreateAndDisableUser(t *testing.T) {
	f := newServerFixture(t)
	adminPair := f.login(t, "admin", testAdminPassword)

	rec := f.postJSON(t, server.RouteAdminUsers,
		map[string]any{"username": "bob", "password": "B0b!Passw0rd", "roles": []string{"user"}},
		bearer(adminPair.AccessToken))
	require.Equal(t, http.StatusCreated, rec.Code)

	var created users.User
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	require.NotEmpty(t, created.ID)

	bobPair := f.login(t, "bob", "B0b!Passw0rd")

	body := bytes.NewReader([]byte(`{"active": false}`))
	req := httptest.NewRequest(http.MethodPatch, "/api/admin/users/"+created.ID, body)
	req.Header.Set("Authorization", "Bearer "+adminPair.AccessToken)
	patchRec := httptest.NewRecorder()
	f.server.ServeHTTP(patchRec, req)
	require.Equal(t, http.StatusOK, patchRec.Code)

	rec = f.postJSON(t, server.RouteAPIVerify, nil, bearer(bobPair.AccessToken))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, "principal_disabled", decodeError(t, rec))
}

func TestLoginPageRendersWithTarget(t *testing.T) {
	f := newServerFixture(t)

	req := httptest.NewRequest(http.MethodGet, server.RouteSSOLogin+"?target=/dashboard", nil)
	rec := httptest.NewRecorder()
	f.server.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `name="target" value="/dashboard"`)
}

func brokerLogin(t *testing.T, f *serverFixture, username, password, target string) *httptest.ResponseRecorder {
	t.Helper()
	form := fmt.Sprintf("username=%s&password=%s&target=%s", username, password, target)
	req := httptest.NewRequest(http.MethodPost, server.RouteSSOLogin, strings.NewReader(form))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	f.server.ServeHTTP(rec, req)
	return rec
}

func TestBrokerLoginSetsCookiesAndRedirects(t *testing.T) {
	f := newServerFixture(t)

	rec := brokerLogin(t, f, "alice", testUserPassword, "/dashboard")
	require.Equal(t, http.StatusSeeOther, rec.Code)
	require.Equal(t, "/dashboard", rec.Header().Get("Location"))

	cookies := rec.Result().Cookies()
	var accessCookie, refreshCookie *http.Cookie
	for _, c := range cookies {
		switch c.Name {
		case "authority_token":
			accessCookie = c
		case "authority_refresh":
			refreshCookie = c
		}
	}
	require.NotNil(t, accessCookie)
	require.True(t, accessCookie.HttpOnly)
	require.Equal(t, "/", accessCookie.Path)

	require.NotNil(t, refreshCookie)
	require.True(t, refreshCookie.HttpOnly)
	require.Equal(t, "/sso", refreshCookie.Path)
}

func TestBrokerLoginAllowsListedOrigin(t *testing.T) {
	f := newServerFixture(t)

	rec := brokerLogin(t, f, "alice", testUserPassword, "https%3A%2F%2Fapp.example.com%2Fhome")
	require.Equal(t, http.StatusSeeOther, rec.Code)
	require.Equal(t, "https://app.example.com/home", rec.Header().Get("Location"))
}

func TestBrokerLoginRejectsUntrustedTarget(t *testing.T) {
	f := newServerFixture(t)

	for _, target := range []string{
		"https%3A%2F%2Fevil.example.net%2Fphish",
		"%2F%2Fevil.example.net",
	} {
		rec := brokerLogin(t, f, "alice", testUserPassword, target)
		require.Equal(t, http.StatusBadRequest, rec.Code)
	}
}

func TestBrokerLoginFailureRedirectsWithGenericError(t *testing.T) {
	f := newServerFixture(t)

	rec := brokerLogin(t, f, "alice", "wrong-password", "/dashboard")
	require.Equal(t, http.StatusSeeOther, rec.Code)
	location := rec.Header().Get("Location")
	require.Contains(t, location, server.RouteSSOLogin)
	require.Contains(t, location, "error=")
	require.NotContains(t, location, "wrong-password")
}

func TestBrokerLogoutClearsSessionAndRevokes(t *testing.T) {
	f := newServerFixture(t)

	loginRec := brokerLogin(t, f, "alice", testUserPassword, "/")
	require.Equal(t, http.StatusSeeOther, loginRec.Code)

	var accessToken, refreshToken string
	for _, c := range loginRec.Result().Cookies() {
		switch c.Name {
		case "authority_token":
			accessToken = c.Value
		case "authority_refresh":
			refreshToken = c.Value
		}
	}
	require.NotEmpty(t, accessToken)
	require.NotEmpty(t, refreshToken)

	req := httptest.NewRequest(http.MethodGet, server.RouteSSOLogout, nil)
	req.AddCookie(&http.Cookie{Name: "authority_token", Value: accessToken})
	req.AddCookie(&http.Cookie{Name: "authority_refresh", Value: refreshToken})
	rec := httptest.NewRecorder()
	f.server.ServeHTTP(rec, req)
	require.Equal(t, http.StatusSeeOther, rec.Code)

	for _, c := range rec.Result().Cookies() {
		require.Empty(t, c.Value)
	}

	verifyRec := f.postJSON(t, server.RouteAPIVerify, nil, bearer(accessToken))
	require.Equal(t, http.StatusUnauthorized, verifyRec.Code)
	require.Equal(t, "revoked", decodeError(t, verifyRec))

	refreshRec := f.postJSON(t, server.RouteAPIRefresh, map[string]string{"refresh_token": refreshToken}, nil)
	require.Equal(t, http.StatusUnauthorized, refreshRec.Code)
}
