// Package config carries the global CLI flags to subcommands.
package config

import (
	"io"

	"github.com/rs/zerolog"

	"github.com/rustyeddy/barsim/config"
	"github.com/rustyeddy/barsim/internal/logging"
)

// RootConfig holds the persistent flags. Empty values leave the config
// file (or the defaults) untouched.
type RootConfig struct {
	ConfigPath string
	DBPath     string
	LogLevel   string
	LogFormat  string
	NoColor    bool
}

// Load reads ConfigPath, or the defaults when it is empty, and applies the
// flag overrides.
func (rc *RootConfig) Load() (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if rc.ConfigPath == "" {
		cfg = config.Default()
	} else if cfg, err = config.LoadFromFile(rc.ConfigPath); err != nil {
		return nil, err
	}

	if rc.DBPath != "" {
		cfg.Journal.DBPath = rc.DBPath
	}
	if rc.LogLevel != "" {
		cfg.Log.Level = rc.LogLevel
	}
	if rc.LogFormat != "" {
		cfg.Log.Format = rc.LogFormat
	}
	return cfg, nil
}

// Logger builds the process logger from the resolved config.
func (rc *RootConfig) Logger(cfg *config.Config, w io.Writer) (zerolog.Logger, error) {
	if rc.NoColor && cfg.Log.Format == logging.FormatConsole {
		w = plain{w}
	}
	return logging.New(cfg.Log.Level, cfg.Log.Format, w)
}

// plain hides the *os.File underneath so the console writer drops colors.
type plain struct{ io.Writer }
