package users_test

import (
	"testing"

	"github.com/jrsteele09/go-token-authority/users"
	"github.com/stretchr/testify/require"
)

func TestHashAndCheckPassword(t *testing.T) {
	hash, err := users.HashPassword("Sup3rSecret")
	require.NoError(t, err)
	require.NotEqual(t, "Sup3rSecret", hash)

	require.True(t, users.CheckPasswordHash("Sup3rSecret", hash))
	require.False(t, users.CheckPasswordHash("sup3rsecret", hash))
	require.False(t, users.CheckPasswordHash("", hash))
}

func TestValidatePasswordStrength(t *testing.T) {
	tests := []struct {
		name     string
		password string
		wantErr  bool
	}{
		{"valid", "Passw0rd", false},
		{"too short", "Pw1", true},
		{"no uppercase", "passw0rd", true},
		{"no lowercase", "PASSW0RD", true},
		{"no number", "Password", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := users.ValidatePasswordStrength(tt.password)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestUserRoles(t *testing.T) {
	u := &users.User{Roles: []users.RoleType{users.RoleUser, users.RoleAdmin}}

	require.True(t, u.HasRole(users.RoleUser))
	require.True(t, u.IsAdmin())
	require.False(t, u.HasRole(users.RoleService))
	require.Equal(t, []string{"user", "admin"}, u.RoleStrings())
	require.Equal(t, u.Roles, users.RolesFromStrings(u.RoleStrings()))
}

func TestGates(t *testing.T) {
	adminOnly := users.AnyOf{users.RoleAdmin}
	require.True(t, adminOnly.Allow([]users.RoleType{users.RoleUser, users.RoleAdmin}))
	require.False(t, adminOnly.Allow([]users.RoleType{users.RoleUser}))
	require.False(t, adminOnly.Allow(nil))

	both := users.AllOf{users.RoleUser, users.RoleService}
	require.True(t, both.Allow([]users.RoleType{users.RoleService, users.RoleUser}))
	require.False(t, both.Allow([]users.RoleType{users.RoleUser}))
}
