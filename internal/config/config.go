package config

type Config interface {
	EnvConfig
	TokenConfig
	BrokerConfig
}

type EnvConfig interface {
	GetPort() string
	GetAppName() string
	GetBaseURL() string
	GetDatabaseDSN() string
	GetRedisURL() string
	GetSigningSecret() string
	GetBootstrapAdminUsername() string
	GetBootstrapAdminPassword() string
	GetEnv() string
}

type mainConfig struct {
	EnvVars
	Tokens
	Broker
}

func New() Config {
	return mainConfig{}
}
