package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
)

// audioFormats are the yt-dlp audio formats whose output extension equals the format name.
var audioFormats = map[string]bool{"opus": true, "mp3": true, "m4a": true, "aac": true, "flac": true, "wav": true}

// Config holds the server configuration.
type Config struct {
	Host         string
	Port         string
	SQLiteDBPath string
	LogLevel     string
	LogFormat    string

	YouTubeAPIKey  string
	YouTubeAPIURL  string
	YtDlpPath      string
	AudioFormat    string
	TempDir        string
	TempPrefix     string
	MaxDurationSec int

	ResolveTimeoutMs int
	FetchTimeoutMs   int
	DeliverTimeoutMs int
	DefaultVolume    int

	// Bearer tokens on /v1/* are only required when AuthEnabled is set.
	AuthEnabled             bool
	JWTSecret               string
	JWTAccessTokenExpirySec int

	// Orphaned temp files older than SweepMinAgeSec are removed on SweepSchedule.
	SweepSchedule  string
	SweepMinAgeSec int

	AuditRetentionDays int
	AuditPruneSchedule string

	ConsoleEnabled bool
}

// ResolveTimeout is the budget for search plus metadata lookup.
func (c Config) ResolveTimeout() time.Duration {
	return time.Duration(c.ResolveTimeoutMs) * time.Millisecond
}

// FetchTimeout is the budget for one download.
func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.FetchTimeoutMs) * time.Millisecond
}

// DeliverTimeout bounds a write to the player.
func (c Config) DeliverTimeout() time.Duration {
	return time.Duration(c.DeliverTimeoutMs) * time.Millisecond
}

// SweepMinAge is how old an unregistered temp file must be before the sweeper removes it.
func (c Config) SweepMinAge() time.Duration {
	return time.Duration(c.SweepMinAgeSec) * time.Second
}

// Addr is the listen address.
func (c Config) Addr() string {
	return c.Host + ":" + c.Port
}

// Load reads configuration from the environment with defaults.
//
// A .env file in the working directory is loaded first without overriding variables that
// are already set. When HARMONY_CONFIG names a TOML file its keys (the variable names in
// lower case) fill in whatever the environment leaves unset.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	src := source{}
	if path := os.Getenv("HARMONY_CONFIG"); path != "" {
		file, err := loadFile(path)
		if err != nil {
			return Config{}, err
		}
		src.file = file
	}

	cfg := Config{
		Host:         src.envString("HOST", "0.0.0.0"),
		Port:         src.envString("PORT", "9000"),
		SQLiteDBPath: src.envString("SQLITE_DB_PATH", "./data/harmony.db"),
		LogLevel:     src.envString("LOG_LEVEL", "info"),
		LogFormat:    src.envString("LOG_FORMAT", "text"),

		YouTubeAPIKey:  src.envString("YOUTUBE_API_KEY", ""),
		YouTubeAPIURL:  src.envString("YOUTUBE_API_URL", "https://www.googleapis.com/youtube/v3"),
		YtDlpPath:      src.envString("YTDLP_PATH", ""),
		AudioFormat:    src.envString("AUDIO_FORMAT", "opus"),
		TempDir:        src.envString("TEMP_DIR", os.TempDir()),
		TempPrefix:     src.envString("TEMP_PREFIX", "harmony"),
		MaxDurationSec: src.envInt("MAX_DURATION_SEC", 600),

		ResolveTimeoutMs: src.envInt("RESOLVE_TIMEOUT_MS", 15000),
		FetchTimeoutMs:   src.envInt("FETCH_TIMEOUT_MS", 120000),
		DeliverTimeoutMs: src.envInt("DELIVER_TIMEOUT_MS", 5000),
		DefaultVolume:    src.envInt("DEFAULT_VOLUME", 100),

		AuthEnabled:             src.envBool("AUTH_ENABLED", false),
		JWTSecret:               src.envString("JWT_SECRET", ""),
		JWTAccessTokenExpirySec: src.envInt("JWT_ACCESS_TOKEN_EXPIRY", 3600),

		SweepSchedule:  src.envString("SWEEP_SCHEDULE", "*/10 * * * *"),
		SweepMinAgeSec: src.envInt("SWEEP_MIN_AGE_SEC", 3600),

		AuditRetentionDays: src.envInt("AUDIT_RETENTION_DAYS", 30),
		AuditPruneSchedule: src.envString("AUDIT_PRUNE_SCHEDULE", "@daily"),

		ConsoleEnabled: src.envBool("CONSOLE_ENABLED", false),
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks values that would otherwise fail at first use.
func (c Config) Validate() error {
	var errs []error

	if port, err := strconv.Atoi(c.Port); err != nil || port < 1 || port > 65535 {
		errs = append(errs, fmt.Errorf("PORT must be a number between 1 and 65535, got %q", c.Port))
	}
	if c.DefaultVolume < 0 || c.DefaultVolume > 100 {
		errs = append(errs, fmt.Errorf("DEFAULT_VOLUME must be between 0 and 100, got %d", c.DefaultVolume))
	}
	for name, value := range map[string]int{
		"MAX_DURATION_SEC":     c.MaxDurationSec,
		"RESOLVE_TIMEOUT_MS":   c.ResolveTimeoutMs,
		"FETCH_TIMEOUT_MS":     c.FetchTimeoutMs,
		"DELIVER_TIMEOUT_MS":   c.DeliverTimeoutMs,
		"SWEEP_MIN_AGE_SEC":    c.SweepMinAgeSec,
		"AUDIT_RETENTION_DAYS": c.AuditRetentionDays,
	} {
		if value <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %d", name, value))
		}
	}
	if !audioFormats[c.AudioFormat] {
		errs = append(errs, fmt.Errorf("AUDIO_FORMAT must be one of opus, mp3, m4a, aac, flac, wav, got %q", c.AudioFormat))
	}
	if strings.TrimSpace(c.YouTubeAPIKey) == "" {
		errs = append(errs, errors.New("YOUTUBE_API_KEY is required"))
	}
	if c.AuthEnabled && len(strings.TrimSpace(c.JWTSecret)) < 32 {
		errs = append(errs, errors.New("JWT_SECRET must be at least 32 characters when AUTH_ENABLED is set"))
	}
	if _, err := cron.ParseStandard(c.SweepSchedule); err != nil {
		errs = append(errs, fmt.Errorf("SWEEP_SCHEDULE: %w", err))
	}
	if _, err := cron.ParseStandard(c.AuditPruneSchedule); err != nil {
		errs = append(errs, fmt.Errorf("AUDIT_PRUNE_SCHEDULE: %w", err))
	}

	return errors.Join(errs...)
}

func loadFile(path string) (map[string]any, error) {
	values := map[string]any{}
	if _, err := toml.DecodeFile(path, &values); err != nil {
		return nil, fmt.Errorf("parse config file %s: %w", path, err)
	}
	return values, nil
}

// source looks a key up in the environment, then in the config file.
type source struct {
	file map[string]any
}

func (s source) lookup(key string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	if val, ok := s.file[strings.ToLower(key)]; ok {
		return fmt.Sprint(val)
	}
	return ""
}

func (s source) envString(key, fallback string) string {
	val := s.lookup(key)
	if val == "" {
		return fallback
	}
	return val
}

func (s source) envInt(key string, fallback int) int {
	val := s.lookup(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func (s source) envBool(key string, fallback bool) bool {
	val := s.lookup(key)
	if val == "" {
		return fallback
	}
	return strings.EqualFold(val, "true")
}
