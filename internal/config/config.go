package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/rs/zerolog/log"
)

const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"

	envPrefix = "DOLGI_"
)

type Config struct {
	Telegram Telegram `koanf:"telegram"`
	Database Database `koanf:"database"`
	Ledger   Ledger   `koanf:"ledger"`
	Jobs     Jobs     `koanf:"jobs"`
	Log      Log      `koanf:"log"`
}

type Telegram struct {
	Token       string  `koanf:"token"`
	Debug       bool    `koanf:"debug"`
	RateLimit   float64 `koanf:"rate_limit"` // outgoing messages per second
	PollTimeout int     `koanf:"poll_timeout"`
}

type Database struct {
	Driver  string `koanf:"driver"`
	URL     string `koanf:"url"`
	Migrate bool   `koanf:"migrate"`
}

type Ledger struct {
	StaleAfter time.Duration `koanf:"stale_after"`
}

type Jobs struct {
	SweepInterval   time.Duration `koanf:"sweep_interval"`
	SummaryInterval time.Duration `koanf:"summary_interval"`
}

type Log struct {
	Level  string `koanf:"level"`
	Pretty bool   `koanf:"pretty"`
}

var defaults = map[string]any{
	"telegram.rate_limit":   25.0,
	"telegram.poll_timeout": 60,
	"database.driver":       DriverPostgres,
	"database.migrate":      true,
	"ledger.stale_after":    "23h",
	"jobs.sweep_interval":   "1h",
	"jobs.summary_interval": "168h",
	"log.level":             "info",
}

// legacyEnv keeps deployments configured with the old variable names working.
var legacyEnv = map[string]string{
	"BOT_TOKEN":    "telegram.token",
	"DATABASE_URL": "database.url",
}

var defaultPaths = []string{"./dolgi.toml", "$HOME/.config/dolgi/dolgi.toml"}

// Load merges defaults, the TOML file at path (or the first default location
// that exists) and DOLGI_* environment variables, in that order.
// DOLGI_TELEGRAM__TOKEN sets telegram.token.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults, "."), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), toml.Parser()); err != nil {
			return nil, fmt.Errorf("load config %s: %w", path, err)
		}
	} else {
		for _, p := range defaultPaths {
			p = os.ExpandEnv(p)
			if _, err := os.Stat(p); err != nil {
				continue
			}
			if err := k.Load(file.Provider(p), toml.Parser()); err != nil {
				return nil, fmt.Errorf("load config %s: %w", p, err)
			}
			break
		}
	}

	legacy := map[string]any{}
	for name, key := range legacyEnv {
		if v := os.Getenv(name); v != "" {
			legacy[key] = v
		}
	}
	if err := k.Load(confmap.Provider(legacy, "."), nil); err != nil {
		return nil, fmt.Errorf("load legacy env: %w", err)
	}

	err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		s = strings.ToLower(strings.TrimPrefix(s, envPrefix))
		return strings.ReplaceAll(s, "__", ".")
	}), nil)
	if err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}

func Validate(cfg *Config) error {
	var errs []error
	if cfg.Telegram.Token == "" {
		errs = append(errs, errors.New("telegram.token is required"))
	}
	if cfg.Telegram.RateLimit <= 0 {
		errs = append(errs, errors.New("telegram.rate_limit must be positive"))
	}
	switch cfg.Database.Driver {
	case DriverPostgres:
		if cfg.Database.URL == "" {
			errs = append(errs, errors.New("database.url is required for the postgres driver"))
		}
	case DriverMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown database.driver %q", cfg.Database.Driver))
	}
	if cfg.Ledger.StaleAfter <= 0 {
		errs = append(errs, errors.New("ledger.stale_after must be positive"))
	}
	if cfg.Jobs.SweepInterval <= 0 || cfg.Jobs.SummaryInterval <= 0 {
		errs = append(errs, errors.New("jobs intervals must be positive"))
	}
	return errors.Join(errs...)
}

func MustLoad(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		log.Fatal().Err(err).Msg("config")
	}
	if err := Validate(cfg); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}
	return cfg
}
