// Package token mints and verifies the authority's dual-token contract: a
// short-lived signed access token whose claims are never mutated after
// issuance, paired with a long-lived opaque refresh token recorded in the
// revocation registry.
package token

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/jrsteele09/go-token-authority/registry"
	"github.com/jrsteele09/go-token-authority/users"
)

// Identity is the result of a successful verification: the subject and the
// roles that were embedded at issuance.
type Identity struct {
	SubjectID string           `json:"subject_id"`
	Roles     []users.RoleType `json:"roles"`
}

// TokenPair is what a successful login or rotation hands back.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	AccessJTI    string `json:"access_jti"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"` // Access-token lifetime in seconds
	RefreshToken string `json:"refresh_token"`
}

// Issuer mints signed access tokens and their paired refresh records, and
// verifies presented access tokens against signature, expiry, the
// revocation registry, and the principal's active flag.
type Issuer struct {
	signer             Signer
	issuerName         string
	userRepo           users.UserRepo
	reg                registry.Registry
	accessTokenExpiry  time.Duration
	refreshTokenExpiry time.Duration
	refreshTokenLength int
	nowFunc            func() time.Time
}

type IssuerOption func(*Issuer)

func WithTokenExpiry(accessTokenExpiry, refreshTokenExpiry time.Duration) IssuerOption {
	return func(i *Issuer) {
		i.accessTokenExpiry = accessTokenExpiry
		i.refreshTokenExpiry = refreshTokenExpiry
	}
}

func WithIssuerName(name string) IssuerOption {
	return func(i *Issuer) {
		i.issuerName = name
	}
}

func WithRefreshTokenLength(bytes int) IssuerOption {
	return func(i *Issuer) {
		i.refreshTokenLength = bytes
	}
}

func WithNowFunc(now func() time.Time) IssuerOption {
	return func(i *Issuer) {
		i.nowFunc = now
	}
}

// NewIssuer constructs an Issuer. A nil signer is refused outright: without
// a signing key the process cannot issue any tokens and must not start.
func NewIssuer(signer Signer, userRepo users.UserRepo, reg registry.Registry, options ...IssuerOption) (*Issuer, error) {
	if signer == nil {
		return nil, errors.New("[NewIssuer] signer is required")
	}
	if userRepo == nil {
		return nil, errors.New("[NewIssuer] user repo is required")
	}
	if reg == nil {
		return nil, errors.New("[NewIssuer] registry is required")
	}

	i := &Issuer{
		signer:   signer,
		userRepo: userRepo,
		reg:      reg,
	}

	for _, opt := range options {
		opt(i)
	}

	if i.accessTokenExpiry == 0 {
		i.accessTokenExpiry = 15 * time.Minute
	}
	if i.refreshTokenExpiry == 0 {
		i.refreshTokenExpiry = 7 * 24 * time.Hour
	}
	if i.refreshTokenLength == 0 {
		i.refreshTokenLength = 32 // 32 bytes = 256 bits
	}
	if i.nowFunc == nil {
		i.nowFunc = time.Now
	}
	return i, nil
}

// AccessTokenTTL returns the configured access-token lifetime.
func (i *Issuer) AccessTokenTTL() time.Duration {
	return i.accessTokenExpiry
}

// Issue mints a signed access token and persists its paired refresh record.
// chainID is empty for a fresh login (a new chain is started) and carried
// over on rotation; parentToken is the refresh token just consumed, empty
// for a fresh login. The refresh record write and the token hand-out are
// one unit: if the registry write fails the caller gets ErrIssuanceFailed
// and no tokens.
func (i *Issuer) Issue(ctx context.Context, user *users.User, deviceLabel, chainID, parentToken string) (*TokenPair, error) {
	now := i.nowFunc()
	jti := uuid.New().String()

	claims := jwt.MapClaims{
		"iss":   i.issuerName,
		"sub":   user.ID,
		"roles": user.RoleStrings(),
		"jti":   jti,
		"iat":   now.Unix(),
		"exp":   now.Add(i.accessTokenExpiry).Unix(),
	}

	signedToken, err := i.signer.Sign(claims)
	if err != nil {
		return nil, errors.Wrap(ErrIssuanceFailed, err.Error())
	}

	refreshBytes := make([]byte, i.refreshTokenLength)
	if _, err := rand.Read(refreshBytes); err != nil {
		return nil, errors.Wrap(ErrIssuanceFailed, err.Error())
	}
	refreshToken := hex.EncodeToString(refreshBytes)

	if chainID == "" {
		chainID = uuid.New().String()
	}

	if err := i.reg.CreateRefreshToken(ctx, &registry.RefreshTokenRecord{
		Token:       refreshToken,
		SubjectID:   user.ID,
		ChainID:     chainID,
		ParentToken: parentToken,
		DeviceLabel: deviceLabel,
		IssuedAt:    now,
		ExpiresAt:   now.Add(i.refreshTokenExpiry),
	}); err != nil {
		// The signed token is discarded, never handed out.
		return nil, errors.Wrap(ErrIssuanceFailed, err.Error())
	}

	return &TokenPair{
		AccessToken:  signedToken,
		AccessJTI:    jti,
		TokenType:    "bearer",
		ExpiresIn:    int(i.accessTokenExpiry.Seconds()),
		RefreshToken: refreshToken,
	}, nil
}

// Verify checks a presented access token. The checks run in order and
// short-circuit on the first failure: signature (ErrMalformed), expiry
// (ErrExpired), registry membership (ErrRevoked), principal active
// (ErrPrincipalDisabled). It performs no writes and is safe to call from
// any number of goroutines.
func (i *Issuer) Verify(ctx context.Context, rawToken string) (*Identity, error) {
	parsed, err := jwt.Parse(rawToken, i.signer.GetVerificationKey, jwt.WithTimeFunc(i.nowFunc))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpired
		}
		return nil, ErrMalformed
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrMalformed
	}

	sub, _ := claims["sub"].(string)
	jti, _ := claims["jti"].(string)
	if sub == "" || jti == "" {
		return nil, ErrMalformed
	}

	revoked, err := i.reg.IsAccessTokenRevoked(ctx, jti)
	if err != nil {
		return nil, errors.Wrap(err, "[Issuer.Verify] registry lookup")
	}
	if revoked {
		return nil, ErrRevoked
	}

	user, err := i.userRepo.GetByID(ctx, sub)
	if err != nil || !user.Active {
		return nil, ErrPrincipalDisabled
	}

	return &Identity{
		SubjectID: sub,
		Roles:     users.RolesFromStrings(claimRoles(claims)),
	}, nil
}

// RevokeAccessToken tombstones the jti of a raw access token. An already
// expired token needs no tombstone; its natural expiry has done the work.
func (i *Issuer) RevokeAccessToken(ctx context.Context, rawToken string) error {
	parsed, err := jwt.Parse(rawToken, i.signer.GetVerificationKey, jwt.WithTimeFunc(i.nowFunc))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil
		}
		return ErrMalformed
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return ErrMalformed
	}

	jti, _ := claims["jti"].(string)
	if jti == "" {
		return ErrMalformed
	}

	exp, ok := claims["exp"].(float64)
	if !ok {
		return ErrMalformed
	}

	return i.reg.RecordRevokedAccessToken(ctx, jti, time.Unix(int64(exp), 0))
}

// RevokeAccessTokenID tombstones a bare jti. Without the token itself the
// true expiry is unknown, so the tombstone is kept for a full access-token
// lifetime, the longest any token carrying this jti could still live.
func (i *Issuer) RevokeAccessTokenID(ctx context.Context, jti string) error {
	return i.reg.RecordRevokedAccessToken(ctx, jti, i.nowFunc().Add(i.accessTokenExpiry))
}

func claimRoles(claims jwt.MapClaims) []string {
	values, ok := claims["roles"].([]interface{})
	if !ok {
		return nil
	}
	roles := make([]string, 0, len(values))
	for _, v := range values {
		if s, ok := v.(string); ok {
			roles = append(roles, s)
		}
	}
	return roles
}
