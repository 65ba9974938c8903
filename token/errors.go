package token

import "errors"

// Verification and issuance failure kinds. Callers branch with errors.Is;
// none of these carry detail that would help credential enumeration.
var (
	ErrMalformed         = errors.New("token malformed")
	ErrExpired           = errors.New("token expired")
	ErrRevoked           = errors.New("token revoked")
	ErrPrincipalDisabled = errors.New("principal disabled")

	// ErrIssuanceFailed means the signing key or the registry was
	// unavailable. No access token is handed out without its paired
	// refresh record, so the whole issuance fails. If this persists the
	// service should halt rather than issue tokens it cannot later verify.
	ErrIssuanceFailed = errors.New("token issuance failed")
)
