package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/rs/zerolog/log"
)

var knownWeakSecrets = []string{
	"change-me", "dev-secret-change-me", "secret", "admin", "password",
}

type Config struct {
	Port                  int    `env:"PORT" envDefault:"8080"`
	DatabaseURL           string `env:"DATABASE_URL,required"`
	RedisURL              string `env:"REDIS_URL,required"`
	LogLevel              string `env:"LOG_LEVEL" envDefault:"info"`
	PushGatewayHost       string `env:"PUSH_GATEWAY_HOST" envDefault:"https://exp.host"`
	PushGatewayAPIPath    string `env:"PUSH_GATEWAY_API_PATH" envDefault:"/--/api/v2"`
	PushGatewayToken      string `env:"PUSH_GATEWAY_TOKEN"`
	APNsKeyPath           string `env:"APNS_KEY_PATH"`
	APNsKeyID             string `env:"APNS_KEY_ID"`
	APNsTeamID            string `env:"APNS_TEAM_ID"`
	APNsVoIPTopic         string `env:"APNS_VOIP_TOPIC"`
	APNsProduction        bool   `env:"APNS_PRODUCTION" envDefault:"true"`
	TelephonyAPIURL       string `env:"TELEPHONY_API_URL"`
	TelephonyAPIKey       string `env:"TELEPHONY_API_KEY"`
	TelephonyAgentID      string `env:"TELEPHONY_AGENT_ID"`
	TelephonyFromNumber   string `env:"TELEPHONY_FROM_NUMBER"`
	DefaultPhoneRegion    string `env:"DEFAULT_PHONE_REGION" envDefault:"US"`
	CallbackSigningSecret string `env:"CALLBACK_SIGNING_SECRET"`
	DispatchSchedule      string `env:"DISPATCH_SCHEDULE" envDefault:"@every 1m"`
	ReaperSchedule        string `env:"REAPER_SCHEDULE" envDefault:"@every 5m"`
	DispatchWindowSeconds int    `env:"DISPATCH_WINDOW_SECONDS" envDefault:"120"`
	DispatchConcurrency   int    `env:"DISPATCH_CONCURRENCY" envDefault:"8"`
}

func (c *Config) DispatchWindow() time.Duration {
	return time.Duration(c.DispatchWindowSeconds) * time.Second
}

// VoIPConfigured reports whether an APNs key is set for VoIP pushes.
func (c *Config) VoIPConfigured() bool {
	return c.APNsKeyPath != ""
}

func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

func (c *Config) Validate(isProduction bool) error {
	if c.DispatchWindowSeconds <= 0 {
		return fmt.Errorf("DISPATCH_WINDOW_SECONDS must be positive")
	}
	if c.DispatchConcurrency <= 0 {
		return fmt.Errorf("DISPATCH_CONCURRENCY must be positive")
	}

	if c.VoIPConfigured() && (c.APNsKeyID == "" || c.APNsTeamID == "" || c.APNsVoIPTopic == "") {
		return fmt.Errorf("APNS_KEY_ID, APNS_TEAM_ID and APNS_VOIP_TOPIC are required when APNS_KEY_PATH is set")
	}
	if !c.VoIPConfigured() {
		log.Warn().Msg("APNS_KEY_PATH is empty: iOS VoIP tokens are delivered as standard pushes")
	}

	if isProduction {
		if err := validateSecret("CALLBACK_SIGNING_SECRET", c.CallbackSigningSecret); err != nil {
			return err
		}
		if c.PushGatewayToken == "" {
			log.Warn().Msg("PUSH_GATEWAY_TOKEN is empty in production: push gateway requests are unauthenticated")
		}
		if c.TelephonyAPIURL == "" {
			log.Warn().Msg("TELEPHONY_API_URL is empty in production: telephone schedules will fail to dispatch")
		}
		if strings.HasPrefix(c.RedisURL, "redis://") {
			log.Warn().Msg("REDIS_URL uses redis:// (not TLS) in production: consider using rediss://")
		}
	}

	return nil
}

func validateSecret(name, value string) error {
	if len(value) < 32 {
		return fmt.Errorf("%s must be at least 32 characters in production (generate with: openssl rand -base64 32)", name)
	}
	for _, weak := range knownWeakSecrets {
		if value == weak {
			return fmt.Errorf("%s is a known weak default; set a strong secret in production", name)
		}
	}
	return nil
}

func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}
