// Package config handles harness settings taken from the environment.
//
// All settings are read from ISOTEST_* environment variables through Viper,
// so that a plain `go test` run can be tuned without touching test code.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

const (
	// EnvPrefix is the prefix of every recognised environment variable.
	EnvPrefix = "ISOTEST"

	DefaultLogLevel  = "warn"
	DefaultLogFormat = "auto"

	minTimeoutScale = 1.0
	maxTimeoutScale = 10.0
)

// Config holds the resolved settings.
type Config struct {
	LogLevel       string
	LogFormat      string
	TimeoutScale   float64
	TranscriptDir  string
	IncludeIgnored bool
}

// Load reads configuration from the environment.
func Load() (*Config, error) {
	return load(viper.New())
}

func load(v *viper.Viper) (*Config, error) {
	v.SetDefault("log.level", DefaultLogLevel)
	v.SetDefault("log.format", DefaultLogFormat)
	v.SetDefault("timeout.scale", 1.0)
	v.SetDefault("transcript.dir", "")
	v.SetDefault("include.ignored", false)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{
		LogLevel:       strings.ToLower(strings.TrimSpace(v.GetString("log.level"))),
		LogFormat:      strings.ToLower(strings.TrimSpace(v.GetString("log.format"))),
		TranscriptDir:  strings.TrimSpace(v.GetString("transcript.dir")),
		IncludeIgnored: v.GetBool("include.ignored"),
	}

	scale := v.GetFloat64("timeout.scale")
	if scale <= 0 {
		return nil, fmt.Errorf("invalid %s_TIMEOUT_SCALE %q: must be a positive number", EnvPrefix, v.GetString("timeout.scale"))
	}
	cfg.TimeoutScale = min(max(scale, minTimeoutScale), maxTimeoutScale)

	switch cfg.LogFormat {
	case "auto", "text", "json":
	default:
		return nil, fmt.Errorf("invalid %s_LOG_FORMAT %q: want auto, text or json", EnvPrefix, cfg.LogFormat)
	}

	return cfg, nil
}
