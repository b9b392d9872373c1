package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()

	require.NoError(t, err)
	require.Equal(t, DefaultLogLevel, cfg.LogLevel)
	require.Equal(t, DefaultLogFormat, cfg.LogFormat)
	require.Equal(t, 1.0, cfg.TimeoutScale)
	require.Empty(t, cfg.TranscriptDir)
	require.False(t, cfg.IncludeIgnored)
}

func TestLoad_FromEnv(t *testing.T) {
	t.Setenv("ISOTEST_LOG_LEVEL", " DEBUG ")
	t.Setenv("ISOTEST_LOG_FORMAT", "json")
	t.Setenv("ISOTEST_TIMEOUT_SCALE", "2.5")
	t.Setenv("ISOTEST_TRANSCRIPT_DIR", "/tmp/transcripts")
	t.Setenv("ISOTEST_INCLUDE_IGNORED", "true")

	cfg, err := Load()

	require.NoError(t, err)
	require.Equal(t, "debug", cfg.LogLevel)
	require.Equal(t, "json", cfg.LogFormat)
	require.Equal(t, 2.5, cfg.TimeoutScale)
	require.Equal(t, "/tmp/transcripts", cfg.TranscriptDir)
	require.True(t, cfg.IncludeIgnored)
}

func TestLoad_TimeoutScaleClamped(t *testing.T) {
	t.Setenv("ISOTEST_TIMEOUT_SCALE", "0.25")
	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, 1.0, cfg.TimeoutScale)

	t.Setenv("ISOTEST_TIMEOUT_SCALE", "50")
	cfg, err = Load()
	require.NoError(t, err)
	require.Equal(t, 10.0, cfg.TimeoutScale)
}

func TestLoad_Invalid(t *testing.T) {
	t.Run("scale", func(t *testing.T) {
		t.Setenv("ISOTEST_TIMEOUT_SCALE", "fast")
		_, err := Load()
		require.ErrorContains(t, err, "ISOTEST_TIMEOUT_SCALE")
	})

	t.Run("format", func(t *testing.T) {
		t.Setenv("ISOTEST_LOG_FORMAT", "xml")
		_, err := Load()
		require.ErrorContains(t, err, "ISOTEST_LOG_FORMAT")
	})
}
