// Package config loads readwatch settings: built-in defaults, then an
// optional TOML file, then READWATCH_* environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix prefixes every environment override, e.g.
// READWATCH_TIMING_READING_THROTTLE=200ms sets timing.reading_throttle.
const EnvPrefix = "READWATCH_"

// Config is the full application configuration.
type Config struct {
	Timing Timing       `koanf:"timing"`
	Layout LayoutConfig `koanf:"layout"`
	Store  StoreConfig  `koanf:"store"`
	UI     UIConfig     `koanf:"ui"`
	Log    LogConfig    `koanf:"log"`
}

// Timing holds the observer throttles and margins.
// A zero MediaThrottle means "pick by platform".
type Timing struct {
	ReadingThrottle     time.Duration `koanf:"reading_throttle"`
	MediaThrottle       time.Duration `koanf:"media_throttle"`
	LoadingMarginMobile int           `koanf:"loading_margin_mobile"`
	LoadingMargin       int           `koanf:"loading_margin"`
}

// LayoutConfig controls device-class resolution.
type LayoutConfig struct {
	MobileMaxWidth int    `koanf:"mobile_max_width"` // columns; narrower terminals use the mobile layout
	Force          string `koanf:"force"`            // "", "mobile" or "desktop"
}

// StoreConfig locates the SQLite database.
type StoreConfig struct {
	Path string `koanf:"path"`
}

// UIConfig holds host list settings.
type UIConfig struct {
	RowHeight    int           `koanf:"row_height"` // px per terminal row
	MessageLimit int           `koanf:"message_limit"`
	FeedInterval time.Duration `koanf:"feed_interval"` // 0 disables simulated traffic
}

// LogConfig controls the text log.
type LogConfig struct {
	Level  string `koanf:"level"`
	Events bool   `koanf:"events"` // write the JSONL event log
}

// DataDir returns ~/.readwatch, falling back to ./.readwatch.
func DataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".readwatch"
	}
	return filepath.Join(home, ".readwatch")
}

// DefaultPath returns the default config file location.
func DefaultPath() string {
	return filepath.Join(DataDir(), "config.toml")
}

func defaults() map[string]interface{} {
	return map[string]interface{}{
		"timing.reading_throttle":      "150ms",
		"timing.media_throttle":        "0s",
		"timing.loading_margin_mobile": 300,
		"timing.loading_margin":        500,
		"layout.mobile_max_width":      80,
		"layout.force":                 "",
		"store.path":                   filepath.Join(DataDir(), "readwatch.db"),
		"ui.row_height":                20,
		"ui.message_limit":             500,
		"ui.feed_interval":             "0s",
		"log.level":                    "info",
		"log.events":                   true,
	}
}

// Load reads configuration. An explicit path must exist; with an empty
// path the default location is used if present.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), toml.Parser()); err != nil {
			return nil, fmt.Errorf("load config %s: %w", path, err)
		}
	} else if _, err := os.Stat(DefaultPath()); err == nil {
		if err := k.Load(file.Provider(DefaultPath()), toml.Parser()); err != nil {
			return nil, fmt.Errorf("load config %s: %w", DefaultPath(), err)
		}
	}

	// Only the first underscore separates section from key.
	err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "_", ".", 1)
	}), nil)
	if err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the tracker cannot run with.
func (c *Config) Validate() error {
	if c.Timing.ReadingThrottle <= 0 {
		return fmt.Errorf("timing.reading_throttle must be positive, got %s", c.Timing.ReadingThrottle)
	}
	if c.Timing.MediaThrottle < 0 {
		return fmt.Errorf("timing.media_throttle must not be negative, got %s", c.Timing.MediaThrottle)
	}
	if c.Timing.LoadingMargin < 0 || c.Timing.LoadingMarginMobile < 0 {
		return fmt.Errorf("timing loading margins must not be negative")
	}
	switch c.Layout.Force {
	case "", "mobile", "desktop":
	default:
		return fmt.Errorf("layout.force must be mobile or desktop, got %q", c.Layout.Force)
	}
	if c.UI.RowHeight <= 0 {
		return fmt.Errorf("ui.row_height must be positive, got %d", c.UI.RowHeight)
	}
	return nil
}
