package app

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

// Config holds runtime wiring options for building the app.
type Config struct {
	Home       string // state directory, e.g. $HOME/.trustkit
	GatewayURL string // sync gateway base URL

	MaxLifetime   time.Duration // handshakes older than this are timed out
	SweepInterval time.Duration // how often the timeout sweep runs
	BootstrapTTL  time.Duration // dedup window for session bootstraps
	Unattended    bool          // allow auto-accepting inbound requests

	Logger *slog.Logger // optional; defaults to a stderr text handler
	HTTP   *http.Client // optional; defaults to http.DefaultClient
}

// fileConfig is the on-disk YAML shape. Durations are strings in
// time.ParseDuration syntax.
type fileConfig struct {
	Home          string `yaml:"home"`
	GatewayURL    string `yaml:"gateway_url"`
	MaxLifetime   string `yaml:"max_lifetime"`
	SweepInterval string `yaml:"sweep_interval"`
	BootstrapTTL  string `yaml:"bootstrap_ttl"`
	Unattended    bool   `yaml:"unattended"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() Config {
	return Config{
		MaxLifetime:   10 * time.Minute,
		SweepInterval: 45 * time.Second,
		BootstrapTTL:  time.Minute,
	}
}

// LoadConfig reads the YAML file at path on top of the defaults. A missing
// file is not an error; the defaults are returned.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	b, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return cfg, err
	}

	var fc fileConfig
	if err := yaml.Unmarshal(b, &fc); err != nil {
		return cfg, fmt.Errorf("parsing %s: %w", path, err)
	}

	if fc.Home != "" {
		cfg.Home = fc.Home
	}
	if fc.GatewayURL != "" {
		cfg.GatewayURL = fc.GatewayURL
	}
	cfg.Unattended = fc.Unattended

	for _, d := range []struct {
		raw string
		dst *time.Duration
	}{
		{fc.MaxLifetime, &cfg.MaxLifetime},
		{fc.SweepInterval, &cfg.SweepInterval},
		{fc.BootstrapTTL, &cfg.BootstrapTTL},
	} {
		if d.raw == "" {
			continue
		}
		parsed, err := time.ParseDuration(d.raw)
		if err != nil {
			return cfg, fmt.Errorf("parsing %s: %w", path, err)
		}
		*d.dst = parsed
	}
	return cfg, nil
}

func defaultLogger() *slog.Logger {
	h := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})
	return slog.New(h)
}
