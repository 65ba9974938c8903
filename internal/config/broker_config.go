package config

import "strings"

type BrokerConfig interface {
	GetAllowedRedirectOrigins() AllowedOrigins
	GetAccessCookieName() string
	GetRefreshCookieName() string
	GetSweepSchedule() string
}

type Broker struct{}

var _ BrokerConfig = Broker{}

type AllowedOrigins map[string]struct{}
type nullValue = struct{}

func (a AllowedOrigins) IsAllowedOrigin(origin string) bool {
	_, ok := a[origin]
	return ok
}

func (a AllowedOrigins) String() string {
	var origins []string
	for k := range a {
		origins = append(origins, k)
	}
	return strings.Join(origins, ", ")
}

// GetAllowedRedirectOrigins returns the origins post-login redirects may
// target. Configured as a comma-separated ALLOWED_REDIRECT_ORIGINS list;
// relative targets are always permitted and never consult this set.
func (Broker) GetAllowedRedirectOrigins() AllowedOrigins {
	origins := AllowedOrigins{}
	for _, origin := range strings.Split(GetEnv("ALLOWED_REDIRECT_ORIGINS", ""), ",") {
		origin = strings.TrimSpace(strings.TrimSuffix(origin, "/"))
		if origin == "" {
			continue
		}
		origins[origin] = nullValue{}
	}
	return origins
}

func (Broker) GetAccessCookieName() string {
	return GetEnv("ACCESS_COOKIE_NAME", "authority_token")
}

func (Broker) GetRefreshCookieName() string {
	return GetEnv("REFRESH_COOKIE_NAME", "authority_refresh")
}

// GetSweepSchedule returns the cron expression for the expired-record
// sweeper.
func (Broker) GetSweepSchedule() string {
	return GetEnv("SWEEP_SCHEDULE", "@every 1h")
}
