package server

import (
	"encoding/json"
	"net/http"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/jrsteele09/go-token-authority/auth"
	"github.com/jrsteele09/go-token-authority/token"
	"github.com/jrsteele09/go-token-authority/token/refresh"
)

const (
	contentTypeHTML = "text/html; charset=utf-8"
	contentTypeJSON = "application/json; charset=utf-8"
)

type loginRequest struct {
	Username    string `json:"username"`
	Password    string `json:"password"`
	DeviceLabel string `json:"device_label,omitempty"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type verifyResponse struct {
	SubjectID string   `json:"subject_id"`
	Roles     []string `json:"roles"`
}

type revokeRequest struct {
	AccessToken  string `json:"access_token,omitempty"`
	JTI          string `json:"jti,omitempty"`
	RefreshToken string `json:"refresh_token,omitempty"`
}

// LoginAPIHandler exchanges a credential pair for a token pair
// (POST /api/auth/login)
func (s *Server) LoginAPIHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req loginRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSONError(w, "invalid_request", "Failed to parse request body", http.StatusBadRequest)
			return
		}

		pair, err := s.auth.Login(r.Context(), req.Username, req.Password, req.DeviceLabel)
		if err != nil {
			writeServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, pair)
	}
}

// RefreshHandler rotates a refresh token (POST /api/auth/refresh)
func (s *Server) RefreshHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req refreshRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSONError(w, "invalid_request", "Failed to parse request body", http.StatusBadRequest)
			return
		}
		if req.RefreshToken == "" {
			writeJSONError(w, "invalid_request", "refresh_token is required", http.StatusBadRequest)
			return
		}

		pair, err := s.auth.Refresh(r.Context(), req.RefreshToken)
		if err != nil {
			writeServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, pair)
	}
}

// VerifyHandler checks an access token presented as a bearer header or a
// broker cookie (POST /api/auth/verify)
func (s *Server) VerifyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rawToken := s.extractAccessToken(r)
		if rawToken == "" {
			writeJSONError(w, "unauthorized", "Missing access token", http.StatusUnauthorized)
			return
		}

		identity, err := s.auth.VerifySession(r.Context(), rawToken)
		if err != nil {
			writeServiceError(w, err)
			return
		}

		roles := make([]string, 0, len(identity.Roles))
		for _, role := range identity.Roles {
			roles = append(roles, string(role))
		}
		writeJSON(w, http.StatusOK, verifyResponse{SubjectID: identity.SubjectID, Roles: roles})
	}
}

// RevokeHandler revokes an access token (by raw token or bare jti) or a
// single refresh token (POST /api/auth/revoke). Revocation is idempotent
// and never discloses whether the token was known.
func (s *Server) RevokeHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req revokeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSONError(w, "invalid_request", "Failed to parse request body", http.StatusBadRequest)
			return
		}
		if req.AccessToken == "" && req.JTI == "" && req.RefreshToken == "" {
			writeJSONError(w, "invalid_request", "access_token, jti or refresh_token is required", http.StatusBadRequest)
			return
		}

		if req.AccessToken != "" {
			if err := s.auth.RevokeAccessToken(r.Context(), req.AccessToken); err != nil && !errors.Is(err, token.ErrMalformed) {
				writeServiceError(w, err)
				return
			}
		}
		if req.JTI != "" {
			if err := s.auth.RevokeAccessTokenID(r.Context(), req.JTI); err != nil {
				writeServiceError(w, err)
				return
			}
		}
		if req.RefreshToken != "" {
			if err := s.auth.RevokeRefreshToken(r.Context(), req.RefreshToken); err != nil {
				writeServiceError(w, err)
				return
			}
		}

		writeJSON(w, http.StatusOK, map[string]string{"status": "revoked"})
	}
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeJSONError(w http.ResponseWriter, errorCode, description string, statusCode int) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":             errorCode,
		"error_description": description,
	})
}

// verificationFailure maps a verification error to its wire kind and
// status.
func verificationFailure(err error) (string, int) {
	switch {
	case errors.Is(err, token.ErrMalformed):
		return "malformed", http.StatusUnauthorized
	case errors.Is(err, token.ErrExpired):
		return "expired", http.StatusUnauthorized
	case errors.Is(err, token.ErrRevoked):
		return "revoked", http.StatusUnauthorized
	case errors.Is(err, token.ErrPrincipalDisabled):
		return "principal_disabled", http.StatusUnauthorized
	default:
		return "server_error", http.StatusInternalServerError
	}
}

// writeServiceError translates service errors into JSON error responses.
// Credential and verification failures map to 401, malformed input to
// 400, issuance failures to 500.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, auth.ErrInvalidCredential):
		writeJSONError(w, "invalid_credential", "Invalid username or password", http.StatusUnauthorized)
	case errors.Is(err, token.ErrMalformed),
		errors.Is(err, token.ErrExpired),
		errors.Is(err, token.ErrRevoked),
		errors.Is(err, token.ErrPrincipalDisabled):
		code, status := verificationFailure(err)
		writeJSONError(w, code, "Verification failed", status)
	case errors.Is(err, refresh.ErrInvalid):
		writeJSONError(w, "invalid_refresh_token", "Refresh token not recognised", http.StatusUnauthorized)
	case errors.Is(err, refresh.ErrExpired):
		writeJSONError(w, "refresh_token_expired", "Refresh token expired", http.StatusUnauthorized)
	case errors.Is(err, refresh.ErrReused):
		writeJSONError(w, "refresh_token_reused", "Refresh token already used", http.StatusUnauthorized)
	case errors.Is(err, token.ErrIssuanceFailed):
		log.Err(err).Msg("token issuance failed")
		writeJSONError(w, "issuance_failed", "Could not issue tokens", http.StatusInternalServerError)
	default:
		log.Err(err).Msg("unexpected service error")
		writeJSONError(w, "server_error", "Internal server error", http.StatusInternalServerError)
	}
}
