// Package config loads a repository's startup settings from
// .weft/config.yaml: the pristine store path, the default channel to
// operate on, and whether telemetry is enabled. Grounded on the
// teacher's viper-over-yaml idiom (internal/labelmutex/policy.go), cut
// down to the handful of settings a single-repository VCS needs —
// the teacher's own config package additionally tracks multi-repo
// deploy/sync/routing policy that has no analog here.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// Config is a repository's startup settings.
type Config struct {
	// StorePath is where the pristine store's bbolt file lives,
	// relative to the repository root unless absolute.
	StorePath string `mapstructure:"store_path"`
	// DefaultChannel is the channel name commands operate on when
	// none is given explicitly.
	DefaultChannel string `mapstructure:"default_channel"`
	// TelemetryEnabled opts into the OTel tracer/meter providers
	// internal/telemetry installs (off by default: spec §9 "tracing
	// must be entirely free when not opted into").
	TelemetryEnabled bool `mapstructure:"telemetry_enabled"`
}

// Default returns the settings a freshly initialized repository uses
// before any config.yaml exists.
func Default() Config {
	return Config{
		StorePath:      filepath.Join(".weft", "store"),
		DefaultChannel: "main",
	}
}

// Load reads dir/.weft/config.yaml, if present, overlaying it onto
// Default(). A missing file is not an error — every repository is
// usable with defaults alone.
func Load(dir string) (Config, error) {
	cfg := Default()

	path := filepath.Join(dir, ".weft", "config.yaml")
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}
