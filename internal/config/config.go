package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Port         string
	DBDriver     string
	DBDSN        string
	SourceURL    string
	FetchTimeout time.Duration
	CronSpec     string
	AutoMigrate  bool
}

// FromEnv builds a Config from environment variables, with sane defaults.
func FromEnv() Config {
	cfg := Config{
		Port:         getenv("FXCACHE_PORT", "8000"),
		DBDriver:     getenv("FXCACHE_DB_DRIVER", "sqlite"),
		DBDSN:        getenv("FXCACHE_DB_DSN", "fxcache.db"),
		SourceURL:    getenv("FXCACHE_SOURCE_URL", ""),
		FetchTimeout: 10 * time.Second,
		CronSpec:     getenv("FXCACHE_CRON", ""),
	}

	if raw := os.Getenv("FXCACHE_FETCH_TIMEOUT_SECONDS"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			cfg.FetchTimeout = time.Duration(v) * time.Second
		}
	}

	autoMig := os.Getenv("FXCACHE_AUTO_MIGRATE")
	cfg.AutoMigrate = autoMig == "1" || autoMig == "true" || autoMig == "yes"

	return cfg
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
