package auth

import "errors"

// ErrInvalidCredential covers every login failure: unknown identifier,
// wrong secret, disabled principal. Deliberately indistinguishable so the
// response cannot be used to enumerate identifiers.
var ErrInvalidCredential = errors.New("invalid credential")
