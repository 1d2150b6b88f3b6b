package config

import (
	"time"

	"github.com/perchworks/perch/internal/client/api"
)

// Config holds runtime settings for the perchbot CLI.
//
// Fields:
//   - BaseURL: root of the perch API.
//   - Project: project handle the bot posts to.
//   - Email / Password: bot account credentials. Password may be left
//     empty to be prompted for interactively.
//   - PollInterval / PollTimeout: bounds on the attachment confirm loop.
type Config struct {
	BaseURL      string
	Project      string
	Email        string
	Password     string
	PollInterval time.Duration
	PollTimeout  time.Duration
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.BaseURL = api.DefaultBaseURL
	c.PollInterval = 2 * time.Second
	c.PollTimeout = 2 * time.Minute
}

// LoadConfig constructs a Config, applies defaults, then overlays values
// from the environment (including an optional .env file) and command-line
// flags. Later sources take precedence over earlier ones.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseEnv(cfg)
	parseFlags(cfg)
	return cfg
}
