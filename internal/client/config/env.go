package config

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/perchworks/perch/internal/flagx"
)

// parseEnv overlays Config with values from the environment. Bot
// deployments keep credentials in env rather than flags so they don't
// leak into process listings.
//
// An explicit .env file can be given with -f/--env-file; otherwise a
// ./.env file is loaded best-effort. Recognized variables:
//
//	PERCH_BASE_URL, PERCH_PROJECT, PERCH_EMAIL, PERCH_PASSWORD
func parseEnv(cfg *Config) {
	if envFile := flagx.EnvFileFlags(); envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			panic(err)
		}
	} else {
		_ = godotenv.Load()
	}

	if v := os.Getenv("PERCH_BASE_URL"); v != "" {
		cfg.BaseURL = v
	}
	if v := os.Getenv("PERCH_PROJECT"); v != "" {
		cfg.Project = v
	}
	if v := os.Getenv("PERCH_EMAIL"); v != "" {
		cfg.Email = v
	}
	if v := os.Getenv("PERCH_PASSWORD"); v != "" {
		cfg.Password = v
	}
}
