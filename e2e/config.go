package e2e

import (
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	// E2E_TARGET_URL points the suite at an already running server
	// (ws://host:port/ws). Empty means run against an in-process one.
	TargetURL string `envconfig:"E2E_TARGET_URL"`
	// E2E_DEBUG_EVENTS dumps every received event payload
	DebugEvents bool `envconfig:"E2E_DEBUG_EVENTS" default:"false"`
	// E2E_COLOURS enables colorized output for better log readability
	Colours bool `envconfig:"E2E_COLOURS" default:"true"`
}

func LoadConfig() (Config, error) {
	var cfg Config
	err := envconfig.Process("", &cfg)
	return cfg, err
}
