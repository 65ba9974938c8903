package config

import (
	"fmt"
	"os"
)

const (
	portEnvVar    = "PORT"
	appNameVar    = "APP_NAME"
	baseURLVar    = "BASE_URL"
	databaseVar   = "DATABASE_DSN"
	redisURLVar   = "REDIS_URL"
	signingSecret = "SIGNING_SECRET"
)

type EnvVars struct{}

var _ EnvConfig = EnvVars{}

func (EnvVars) GetPort() string {
	port := GetEnv(portEnvVar, "8080")
	if port != "" || port[0] != ':' {
		port = fmt.Sprintf(":%s", port)
	}
	return port
}

func (EnvVars) GetAppName() string {
	return GetEnv(appNameVar, "Go Token Authority")
}

// GetBaseURL returns the externally visible base URL for the authority
// (e.g., "https://auth.example.com"). It is embedded as the issuer claim
// and used to build broker redirect URLs.
func (EnvVars) GetBaseURL() string {
	return GetEnv(baseURLVar, "http://localhost:8080")
}

// GetDatabaseDSN returns the postgres connection string. Empty means the
// server runs on in-memory stores, which is fine for development.
func (EnvVars) GetDatabaseDSN() string {
	return GetEnv(databaseVar, "")
}

// GetRedisURL returns the redis connection URL used to cache revocation
// lookups. Empty disables the cache.
func (EnvVars) GetRedisURL() string {
	return GetEnv(redisURLVar, "")
}

// GetSigningSecret returns the HMAC signing secret. Empty means the server
// generates an ephemeral RSA key pair on startup.
func (EnvVars) GetSigningSecret() string {
	return GetEnv(signingSecret, "")
}

func (EnvVars) GetBootstrapAdminUsername() string {
	return GetEnv("BOOTSTRAP_ADMIN_USERNAME", "admin")
}

func (EnvVars) GetBootstrapAdminPassword() string {
	return GetEnv("BOOTSTRAP_ADMIN_PASSWORD", "")
}

func (EnvVars) GetEnv() string {
	env := os.Getenv("ENV")
	if env == "" {
		return "DEV"
	}
	return env
}

func GetEnv(envVar, defaultValue string) string {
	value := os.Getenv(envVar)
	if value == "" {
		return defaultValue
	}
	return value
}
