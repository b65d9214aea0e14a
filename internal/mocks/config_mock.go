package mocks

import (
	"time"

	"github.com/SimpnicServerTeam/scs-openid-bridge/internal/config"
)

// CreateTestConfig returns a config with one enabled provider "idp1" that filters on ok.org.
func CreateTestConfig() *config.Config {
	return &config.Config{
		JWTSecret:       "test-jwt-secret-for-handler-tests",
		StateCookieName: "test-state-cookie",
		Session: config.SessionConfig{
			TokenDuration: time.Hour,
			Issuer:        "scs-openid-bridge",
			Audience:      "scs-client-app",
		},
		Auth: config.AuthConfig{
			CallTimeout:   2 * time.Second,
			AdminUsername: "admin",
			StateExpiry:   5 * time.Minute,
		},
		UserStore: "memory",
		Providers: config.StaticProviderSource{
			Properties: map[string]map[string]string{
				"idp1": {
					config.PropAllowedEmailDomains:      "ok.org",
					config.PropShouldFilterEmailDomains: "true",
					config.PropUserAutoEnabled:          "true",
					config.PropClientID:                 "test-client-id",
				},
			},
			Enabled: []string{"idp1"},
		},
	}
}
