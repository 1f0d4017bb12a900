package config

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config carries every tunable of the client, loaded from the environment.
type Config struct {
	Environment string     `env:"INERTIA_ENV" envDefault:"dev"`
	LogLevel    slog.Level `env:"LOG_LEVEL" envDefault:"INFO"`

	APIBaseURL  string `env:"INERTIA_API_BASE_URL" envDefault:"https://inertia.live/api/v5"`
	RealtimeURL string `env:"INERTIA_REALTIME_URL" envDefault:"wss://inertia.live/socket"`

	TokenDBPath string `env:"INERTIA_TOKEN_DB" envDefault:"inertia.db"`
	ProfileName string `env:"INERTIA_PROFILE" envDefault:"default"`

	OAuthClientID    string `env:"INERTIA_OAUTH_CLIENT_ID"`
	OAuthAuthURL     string `env:"INERTIA_OAUTH_AUTH_URL" envDefault:"https://inertia.live/oauth/authorize"`
	OAuthTokenURL    string `env:"INERTIA_OAUTH_TOKEN_URL" envDefault:"https://inertia.live/oauth/token"`
	OAuthRedirectURL string `env:"INERTIA_OAUTH_REDIRECT_URL" envDefault:"http://localhost:8080/callback"`

	RelayAddr        string `env:"INERTIA_RELAY_ADDR" envDefault:":8080"`
	RelayStateSecret string `env:"INERTIA_RELAY_STATE_SECRET"`
	RelayDeepLink    string `env:"INERTIA_RELAY_DEEP_LINK" envDefault:"inertia://login"`

	MinDisplacementMeters float64       `env:"INERTIA_LOCATION_MIN_DISPLACEMENT_M" envDefault:"50"`
	MinPublishInterval    time.Duration `env:"INERTIA_LOCATION_MIN_INTERVAL" envDefault:"15s"`

	TeamStaleness    time.Duration `env:"INERTIA_TEAM_STALENESS" envDefault:"30s"`
	QuestStaleness   time.Duration `env:"INERTIA_QUEST_STALENESS" envDefault:"60s"`
	PowerupStaleness time.Duration `env:"INERTIA_POWERUP_STALENESS" envDefault:"5m"`

	ReconnectMinBackoff time.Duration `env:"INERTIA_RECONNECT_MIN_BACKOFF" envDefault:"1s"`
	ReconnectMaxBackoff time.Duration `env:"INERTIA_RECONNECT_MAX_BACKOFF" envDefault:"30s"`

	OTELEnabled               bool          `env:"OTEL_ENABLED" envDefault:"false"`
	OTELExporterOTLPEndpoint  string        `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"localhost:4317"`
	OTELExporterOTLPInsecure  bool          `env:"OTEL_EXPORTER_OTLP_INSECURE" envDefault:"true"`
	OTELServiceName           string        `env:"OTEL_SERVICE_NAME" envDefault:"inertia-client"`
	OTELMetricsExportInterval time.Duration `env:"OTEL_METRICS_EXPORT_INTERVAL" envDefault:"30s"`
}

// Load parses the environment and validates the result. The outcome is
// recorded as a config.load metric event either way.
func Load(ctx context.Context) (*Config, error) {
	cfg, err := parse()
	recordConfigLoadEvent(ctx, envName(cfg), outcome(err), classifyConfigLoadError(err))
	return cfg, err
}

func parse() (*Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.APIBaseURL == "" {
		return fmt.Errorf("INERTIA_API_BASE_URL is required")
	}
	if c.RealtimeURL == "" {
		return fmt.Errorf("INERTIA_REALTIME_URL is required")
	}
	if !strings.HasPrefix(c.RealtimeURL, "ws://") && !strings.HasPrefix(c.RealtimeURL, "wss://") {
		return fmt.Errorf("INERTIA_REALTIME_URL must be a ws:// or wss:// URL")
	}
	if c.MinDisplacementMeters < 0 {
		return fmt.Errorf("INERTIA_LOCATION_MIN_DISPLACEMENT_M must not be negative")
	}
	if c.MinPublishInterval <= 0 {
		return fmt.Errorf("INERTIA_LOCATION_MIN_INTERVAL must be positive")
	}
	if c.ReconnectMinBackoff <= 0 || c.ReconnectMaxBackoff < c.ReconnectMinBackoff {
		return fmt.Errorf("reconnect backoff window is invalid")
	}
	return nil
}

func envName(c *Config) string {
	if c == nil {
		return ""
	}
	return c.Environment
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
