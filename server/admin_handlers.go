package server

import (
	"encoding/json"
	"net/http"

	"github.com/jrsteele09/go-token-authority/internal/utils"
	"github.com/jrsteele09/go-token-authority/users"
)

type revokeAllRequest struct {
	SubjectID string `json:"subject_id"`
}

type createUserRequest struct {
	Username string   `json:"username"`
	Password string   `json:"password"`
	Roles    []string `json:"roles,omitempty"`
}

type patchUserRequest struct {
	Active *bool `json:"active,omitempty"`
}

// AdminRevokeAllHandler force-logs-out every session of a principal
// (POST /api/admin/revoke-all)
func (s *Server) AdminRevokeAllHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req revokeAllRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSONError(w, "invalid_request", "Failed to parse request body", http.StatusBadRequest)
			return
		}
		if req.SubjectID == "" {
			writeJSONError(w, "invalid_request", "subject_id is required", http.StatusBadRequest)
			return
		}

		if err := s.auth.RevokeAllForSubject(r.Context(), req.SubjectID); err != nil {
			writeServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, map[string]string{"status": "revoked"})
	}
}

// AdminCreateUserHandler registers a new principal (POST /api/admin/users)
func (s *Server) AdminCreateUserHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createUserRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSONError(w, "invalid_request", "Failed to parse request body", http.StatusBadRequest)
			return
		}
		if req.Username == "" || req.Password == "" {
			writeJSONError(w, "invalid_request", "username and password are required", http.StatusBadRequest)
			return
		}

		roles := users.RolesFromStrings(req.Roles)
		if len(roles) == 0 {
			roles = []users.RoleType{users.RoleUser}
		}

		user, err := s.auth.CreateUser(r.Context(), req.Username, req.Password, roles)
		if err != nil {
			writeJSONError(w, "invalid_request", err.Error(), http.StatusBadRequest)
			return
		}

		writeJSON(w, http.StatusCreated, user)
	}
}

// AdminListUsersHandler lists principals (GET /api/admin/users)
func (s *Server) AdminListUsersHandler() http.HandlerFunc {
	const pageSize = 100
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := s.repos.Users.List(r.Context(), 0, pageSize)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, list)
	}
}

// AdminSetUserActiveHandler enables or disables a principal
// (PATCH /api/admin/users/{id}). Disabling is a soft operation: issued
// tokens are not touched here and fail lazily at verification.
func (s *Server) AdminSetUserActiveHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := r.PathValue("id")
		if userID == "" {
			writeJSONError(w, "invalid_request", "user id is required", http.StatusBadRequest)
			return
		}

		var req patchUserRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSONError(w, "invalid_request", "Failed to parse request body", http.StatusBadRequest)
			return
		}
		if req.Active == nil {
			writeJSONError(w, "invalid_request", "active is required", http.StatusBadRequest)
			return
		}

		if err := s.auth.SetUserActive(r.Context(), userID, utils.Value(req.Active)); err != nil {
			writeJSONError(w, "not_found", "Unknown principal", http.StatusNotFound)
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{"id": userID, "active": utils.Value(req.Active)})
	}
}
