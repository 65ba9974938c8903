package config

import "time"

type TokenConfig interface {
	GetIssuerName() string
	GetAccessTokenExpiry() time.Duration
	GetRefreshTokenExpiry() time.Duration
	GetRefreshTokenLength() int
}

type Tokens struct{}

var _ TokenConfig = Tokens{}

func (Tokens) GetIssuerName() string {
	return GetEnv("ISSUER_NAME", "go-token-authority")
}

func (Tokens) GetAccessTokenExpiry() time.Duration {
	return durationEnv("ACCESS_TOKEN_EXPIRY", 15*time.Minute)
}

func (Tokens) GetRefreshTokenExpiry() time.Duration {
	return durationEnv("REFRESH_TOKEN_EXPIRY", 7*24*time.Hour)
}

func (Tokens) GetRefreshTokenLength() int {
	return 32 // 32 bytes = 256 bits
}

func durationEnv(envVar string, defaultValue time.Duration) time.Duration {
	value := GetEnv(envVar, "")
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return d
}
