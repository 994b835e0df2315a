package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("YOUTUBE_API_KEY", "test-key")
	t.Setenv("HARMONY_CONFIG", "")
}

func TestLoad_Defaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()

	require.NoError(t, err)
	require.Equal(t, "0.0.0.0", cfg.Host)
	require.Equal(t, "9000", cfg.Port)
	require.Equal(t, "0.0.0.0:9000", cfg.Addr())
	require.Equal(t, "opus", cfg.AudioFormat)
	require.Equal(t, "harmony", cfg.TempPrefix)
	require.Equal(t, 600, cfg.MaxDurationSec)
	require.Equal(t, 100, cfg.DefaultVolume)
	require.Equal(t, 15*time.Second, cfg.ResolveTimeout())
	require.Equal(t, 2*time.Minute, cfg.FetchTimeout())
	require.Equal(t, 5*time.Second, cfg.DeliverTimeout())
	require.Equal(t, time.Hour, cfg.SweepMinAge())
	require.False(t, cfg.AuthEnabled)
	require.False(t, cfg.ConsoleEnabled)
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	setRequired(t)
	t.Setenv("PORT", "8080")
	t.Setenv("DEFAULT_VOLUME", "40")
	t.Setenv("CONSOLE_ENABLED", "TRUE")
	t.Setenv("TEMP_DIR", "/var/tmp")

	cfg, err := Load()

	require.NoError(t, err)
	require.Equal(t, "8080", cfg.Port)
	require.Equal(t, 40, cfg.DefaultVolume)
	require.True(t, cfg.ConsoleEnabled)
	require.Equal(t, "/var/tmp", cfg.TempDir)
}

func TestLoad_ConfigFileBeneathEnvironment(t *testing.T) {
	path := filepath.Join(t.TempDir(), "harmony.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
youtube_api_key = "from-file"
port = 7000
default_volume = 25
log_format = "json"
`), 0o644))
	t.Setenv("HARMONY_CONFIG", path)
	t.Setenv("YOUTUBE_API_KEY", "")
	t.Setenv("PORT", "7100")

	cfg, err := Load()

	require.NoError(t, err)
	require.Equal(t, "from-file", cfg.YouTubeAPIKey)
	require.Equal(t, "7100", cfg.Port)
	require.Equal(t, 25, cfg.DefaultVolume)
	require.Equal(t, "json", cfg.LogFormat)
}

func TestLoad_ConfigFileInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "harmony.toml")
	require.NoError(t, os.WriteFile(path, []byte("port = = 1"), 0o644))
	t.Setenv("HARMONY_CONFIG", path)

	_, err := Load()

	require.ErrorContains(t, err, "parse config file")
}

func TestConfig_Validate(t *testing.T) {
	valid := func() Config {
		return Config{
			Port:               "9000",
			YouTubeAPIKey:      "key",
			AudioFormat:        "opus",
			MaxDurationSec:     600,
			ResolveTimeoutMs:   1000,
			FetchTimeoutMs:     1000,
			DeliverTimeoutMs:   1000,
			SweepMinAgeSec:     60,
			AuditRetentionDays: 30,
			DefaultVolume:      50,
			SweepSchedule:      "*/10 * * * *",
			AuditPruneSchedule: "@daily",
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "bad port", mutate: func(c *Config) { c.Port = "http" }, wantErr: "PORT"},
		{name: "port out of range", mutate: func(c *Config) { c.Port = "70000" }, wantErr: "PORT"},
		{name: "volume too high", mutate: func(c *Config) { c.DefaultVolume = 101 }, wantErr: "DEFAULT_VOLUME"},
		{name: "zero timeout", mutate: func(c *Config) { c.FetchTimeoutMs = 0 }, wantErr: "FETCH_TIMEOUT_MS"},
		{name: "mp3 format", mutate: func(c *Config) { c.AudioFormat = "mp3" }},
		{name: "format with other extension", mutate: func(c *Config) { c.AudioFormat = "vorbis" }, wantErr: "AUDIO_FORMAT"},
		{name: "empty format", mutate: func(c *Config) { c.AudioFormat = "" }, wantErr: "AUDIO_FORMAT"},
		{name: "missing api key", mutate: func(c *Config) { c.YouTubeAPIKey = " " }, wantErr: "YOUTUBE_API_KEY"},
		{name: "short jwt secret", mutate: func(c *Config) {
			c.AuthEnabled = true
			c.JWTSecret = "short"
		}, wantErr: "JWT_SECRET"},
		{name: "short secret without auth", mutate: func(c *Config) { c.JWTSecret = "short" }},
		{name: "bad sweep schedule", mutate: func(c *Config) { c.SweepSchedule = "every minute" }, wantErr: "SWEEP_SCHEDULE"},
		{name: "bad prune schedule", mutate: func(c *Config) { c.AuditPruneSchedule = "@sometimes" }, wantErr: "AUDIT_PRUNE_SCHEDULE"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)

			err := cfg.Validate()

			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.ErrorContains(t, err, tt.wantErr)
		})
	}
}
