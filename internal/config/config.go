// Package config provides configuration loading and validation for the
// audit pipeline server. It uses koanf to merge environment variables
// with optional file overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config holds all configuration values for the audit pipeline server.
type Config struct {
	// Server settings
	Port int    `koanf:"port"`
	Env  string `koanf:"env"`

	// Database. Empty selects the in-memory store (dev/test).
	DatabaseURL string `koanf:"database_url"`

	// Redis. Empty selects the in-process geo cache.
	RedisAddr string `koanf:"redis_addr"`

	// Geolocation
	GeoProvider        string `koanf:"geo_provider"`     // "http" or "maxmind"
	GeoHTTPEndpoint    string `koanf:"geo_http_endpoint"`
	GeoMMDBPath        string `koanf:"geo_mmdb_path"`
	GeoDailyQuota      int    `koanf:"geo_daily_quota"`
	GeoCacheTTLHours   int    `koanf:"geo_cache_ttl_hours"`
	GeoTimeoutSeconds  int    `koanf:"geo_timeout_seconds"`

	// Detection
	BruteForceWindowMinutes  int    `koanf:"brute_force_window_minutes"`
	BruteForceThreshold      int    `koanf:"brute_force_threshold"`
	GeoHistoryDays           int    `koanf:"geo_history_days"`
	RapidChangeWindowMinutes int    `koanf:"rapid_change_window_minutes"`
	RapidChangeThreshold     int    `koanf:"rapid_change_threshold"`
	NightStartHour           int    `koanf:"night_start_hour"`
	NightEndHour             int    `koanf:"night_end_hour"`
	NightTimezone            string `koanf:"night_timezone"`
	BulkWindowMinutes        int    `koanf:"bulk_window_minutes"`
	BulkThreshold            int    `koanf:"bulk_threshold"`

	// Alerting
	DedupWindowMinutes int    `koanf:"dedup_window_minutes"`
	MaxSourceEntries   int    `koanf:"max_source_entries"`
	AlertWebhookURL    string `koanf:"alert_webhook_url"`

	// Dispatcher
	Workers int `koanf:"workers"`

	// Retention
	RetentionDays int `koanf:"retention_days"`

	// Archive (S3-compatible object storage). Optional as a group.
	ArchiveBucketName      string `koanf:"archive_bucket_name"`
	ArchiveAccessKeyID     string `koanf:"archive_access_key_id"`
	ArchiveSecretAccessKey string `koanf:"archive_secret_access_key"`
	ArchiveEndpoint        string `koanf:"archive_endpoint"`

	// Tracing
	TracingEnabled      bool    `koanf:"tracing_enabled"`
	TracingExporter     string  `koanf:"tracing_exporter"`
	TracingEndpoint     string  `koanf:"tracing_endpoint"`
	TracingSamplingRate float64 `koanf:"tracing_sampling_rate"`
	TracingInsecure     bool    `koanf:"tracing_insecure"`
}

// Configuration validation errors.
var (
	ErrInvalidPort                 = errors.New("PORT must be a valid integer")
	ErrInvalidGeoProvider          = errors.New("GEO_PROVIDER must be http or maxmind")
	ErrMissingGeoMMDBPath          = errors.New("GEO_MMDB_PATH is required for the maxmind provider")
	ErrMissingArchiveBucketName    = errors.New("ARCHIVE_BUCKET_NAME is required")
	ErrMissingArchiveAccessKeyID   = errors.New("ARCHIVE_ACCESS_KEY_ID is required")
	ErrMissingArchiveSecret        = errors.New("ARCHIVE_SECRET_ACCESS_KEY is required")
	ErrMissingArchiveEndpoint      = errors.New("ARCHIVE_ENDPOINT is required")
	ErrInvalidSamplingRate         = errors.New("TRACING_SAMPLING_RATE must be between 0 and 1")
	ErrInvalidNightWindow          = errors.New("NIGHT_START_HOUR and NIGHT_END_HOUR must be in [0, 23]")
	ErrNonPositiveThreshold        = errors.New("detector thresholds must be positive")
)

// Default values for non-secret configuration.
const (
	DefaultPort                     = 8080
	DefaultEnv                      = "development"
	DefaultGeoProvider              = "http"
	DefaultGeoDailyQuota            = 900
	DefaultGeoCacheTTLHours         = 24
	DefaultGeoTimeoutSeconds        = 2
	DefaultBruteForceWindowMinutes  = 15
	DefaultBruteForceThreshold      = 5
	DefaultGeoHistoryDays           = 30
	DefaultRapidChangeWindowMinutes = 60
	DefaultRapidChangeThreshold     = 3
	DefaultNightStartHour           = 0
	DefaultNightEndHour             = 5
	DefaultNightTimezone            = "America/Bogota"
	DefaultBulkWindowMinutes        = 10
	DefaultBulkThreshold            = 10
	DefaultDedupWindowMinutes       = 60
	DefaultMaxSourceEntries         = 50
	DefaultWorkers                  = 5
	DefaultRetentionDays            = 90
	DefaultTracingSamplingRate      = 0.1
)

// Load reads configuration from environment variables and an optional config file.
// Environment variables take precedence over file values.
// Returns the loaded config and a slice of validation errors (empty if valid).
// If a config file path is provided and the file cannot be loaded, an error is returned.
func Load(configFilePath string) (*Config, []error) {
	k := koanf.New(".")
	var loadErrs []error

	// Load from YAML file first if provided (lower precedence)
	if configFilePath != "" {
		if err := k.Load(file.Provider(configFilePath), yaml.Parser()); err != nil {
			return nil, []error{fmt.Errorf("failed to load config file %s: %w", configFilePath, err)}
		}
	}

	intField := func(envKey, koanfKey string, def int) int {
		v, err := getEnvIntOrDefault(envKey, k.Int(koanfKey), def)
		if err != nil {
			loadErrs = append(loadErrs, err)
		}
		return v
	}

	port, portErr := getEnvIntOrDefaultMulti([]string{"VIGIL_PORT", "PORT"}, k.Int("port"), DefaultPort)
	if portErr != nil {
		loadErrs = append(loadErrs, portErr)
	}

	samplingRate, samplingErr := getEnvFloatOrDefault("TRACING_SAMPLING_RATE", k.Float64("tracing_sampling_rate"), DefaultTracingSamplingRate)
	if samplingErr != nil {
		loadErrs = append(loadErrs, samplingErr)
	}

	cfg := &Config{
		Port:        port,
		Env:         getEnvOrDefaultMulti([]string{"VIGIL_ENV", "ENV", "GO_ENV"}, k.String("env"), DefaultEnv),
		DatabaseURL: getEnvOrKoanf("DATABASE_URL", k, "database_url"),
		RedisAddr:   getEnvOrKoanf("REDIS_ADDR", k, "redis_addr"),

		GeoProvider:       getEnvOrDefault("GEO_PROVIDER", k.String("geo_provider"), DefaultGeoProvider),
		GeoHTTPEndpoint:   getEnvOrKoanf("GEO_HTTP_ENDPOINT", k, "geo_http_endpoint"),
		GeoMMDBPath:       getEnvOrKoanf("GEO_MMDB_PATH", k, "geo_mmdb_path"),
		GeoDailyQuota:     intField("GEO_DAILY_QUOTA", "geo_daily_quota", DefaultGeoDailyQuota),
		GeoCacheTTLHours:  intField("GEO_CACHE_TTL_HOURS", "geo_cache_ttl_hours", DefaultGeoCacheTTLHours),
		GeoTimeoutSeconds: intField("GEO_TIMEOUT_SECONDS", "geo_timeout_seconds", DefaultGeoTimeoutSeconds),

		BruteForceWindowMinutes:  intField("BRUTE_FORCE_WINDOW_MINUTES", "brute_force_window_minutes", DefaultBruteForceWindowMinutes),
		BruteForceThreshold:      intField("BRUTE_FORCE_THRESHOLD", "brute_force_threshold", DefaultBruteForceThreshold),
		GeoHistoryDays:           intField("GEO_HISTORY_DAYS", "geo_history_days", DefaultGeoHistoryDays),
		RapidChangeWindowMinutes: intField("RAPID_CHANGE_WINDOW_MINUTES", "rapid_change_window_minutes", DefaultRapidChangeWindowMinutes),
		RapidChangeThreshold:     intField("RAPID_CHANGE_THRESHOLD", "rapid_change_threshold", DefaultRapidChangeThreshold),
		NightStartHour:           intFieldAllowZero("NIGHT_START_HOUR", k, "night_start_hour", DefaultNightStartHour, &loadErrs),
		NightEndHour:             intField("NIGHT_END_HOUR", "night_end_hour", DefaultNightEndHour),
		NightTimezone:            getEnvOrDefault("NIGHT_TIMEZONE", k.String("night_timezone"), DefaultNightTimezone),
		BulkWindowMinutes:        intField("BULK_WINDOW_MINUTES", "bulk_window_minutes", DefaultBulkWindowMinutes),
		BulkThreshold:            intField("BULK_THRESHOLD", "bulk_threshold", DefaultBulkThreshold),

		DedupWindowMinutes: intField("DEDUP_WINDOW_MINUTES", "dedup_window_minutes", DefaultDedupWindowMinutes),
		MaxSourceEntries:   intField("MAX_SOURCE_ENTRIES", "max_source_entries", DefaultMaxSourceEntries),
		AlertWebhookURL:    getEnvOrKoanf("ALERT_WEBHOOK_URL", k, "alert_webhook_url"),

		Workers:       intField("WORKERS", "workers", DefaultWorkers),
		RetentionDays: intField("RETENTION_DAYS", "retention_days", DefaultRetentionDays),

		ArchiveBucketName:      getEnvOrKoanf("ARCHIVE_BUCKET_NAME", k, "archive_bucket_name"),
		ArchiveAccessKeyID:     getEnvOrKoanf("ARCHIVE_ACCESS_KEY_ID", k, "archive_access_key_id"),
		ArchiveSecretAccessKey: getEnvOrKoanf("ARCHIVE_SECRET_ACCESS_KEY", k, "archive_secret_access_key"),
		ArchiveEndpoint:        getEnvOrKoanf("ARCHIVE_ENDPOINT", k, "archive_endpoint"),

		TracingEnabled:      getEnvBool("TRACING_ENABLED", k, "tracing_enabled"),
		TracingExporter:     getEnvOrDefault("TRACING_EXPORTER", k.String("tracing_exporter"), "otlp-http"),
		TracingEndpoint:     getEnvOrKoanf("TRACING_ENDPOINT", k, "tracing_endpoint"),
		TracingSamplingRate: samplingRate,
		TracingInsecure:     getEnvBool("TRACING_INSECURE", k, "tracing_insecure"),
	}

	errs := cfg.Validate()
	errs = append(loadErrs, errs...)

	return cfg, errs
}

// getEnvOrKoanf returns the environment variable value if set, otherwise the koanf value.
func getEnvOrKoanf(envKey string, k *koanf.Koanf, koanfKey string) string {
	if val := os.Getenv(envKey); val != "" {
		return val
	}
	return k.String(koanfKey)
}

// getEnvOrDefault returns the environment variable value if set, otherwise the koanf value, or default.
func getEnvOrDefault(envKey string, koanfVal string, defaultVal string) string {
	if val := os.Getenv(envKey); val != "" {
		return val
	}
	if koanfVal != "" {
		return koanfVal
	}
	return defaultVal
}

// getEnvOrDefaultMulti tries multiple environment variable keys in order.
// Returns the first non-empty value found, otherwise the koanf value, or default.
func getEnvOrDefaultMulti(envKeys []string, koanfVal string, defaultVal string) string {
	for _, key := range envKeys {
		if val := os.Getenv(key); val != "" {
			return val
		}
	}
	if koanfVal != "" {
		return koanfVal
	}
	return defaultVal
}

// getEnvBool returns the environment variable as a bool if set, otherwise the koanf value.
func getEnvBool(envKey string, k *koanf.Koanf, koanfKey string) bool {
	if val := os.Getenv(envKey); val != "" {
		switch strings.ToLower(val) {
		case "true", "1", "yes", "on":
			return true
		case "false", "0", "no", "off":
			return false
		}
	}
	return k.Bool(koanfKey)
}

// getEnvIntOrDefault returns the environment variable as int if set, otherwise the koanf value, or default.
// Returns an error if the environment variable is set but cannot be parsed as an integer.
// A zero value in a YAML file falls back to the default.
func getEnvIntOrDefault(envKey string, koanfVal int, defaultVal int) (int, error) {
	if val := os.Getenv(envKey); val != "" {
		i, err := strconv.Atoi(val)
		if err != nil {
			return 0, fmt.Errorf("%s must be a valid integer: %w", envKey, ErrInvalidPort)
		}
		return i, nil
	}
	if koanfVal != 0 {
		return koanfVal, nil
	}
	return defaultVal, nil
}

// intFieldAllowZero is the zero-tolerant variant for fields where 0 is a
// meaningful configured value (the nocturnal start hour is midnight by
// default).
func intFieldAllowZero(envKey string, k *koanf.Koanf, koanfKey string, defaultVal int, loadErrs *[]error) int {
	if val := os.Getenv(envKey); val != "" {
		i, err := strconv.Atoi(val)
		if err != nil {
			*loadErrs = append(*loadErrs, fmt.Errorf("%s must be a valid integer: %w", envKey, ErrInvalidPort))
			return defaultVal
		}
		return i
	}
	if k.Exists(koanfKey) {
		return k.Int(koanfKey)
	}
	return defaultVal
}

// getEnvIntOrDefaultMulti tries multiple environment variable keys in order.
// Returns the first valid integer value found, otherwise the koanf value, or default.
// Returns an error if any environment variable is set but cannot be parsed as an integer.
func getEnvIntOrDefaultMulti(envKeys []string, koanfVal int, defaultVal int) (int, error) {
	for _, key := range envKeys {
		if val := os.Getenv(key); val != "" {
			i, err := strconv.Atoi(val)
			if err != nil {
				return 0, fmt.Errorf("%s must be a valid integer: %w", key, ErrInvalidPort)
			}
			return i, nil
		}
	}
	if koanfVal != 0 {
		return koanfVal, nil
	}
	return defaultVal, nil
}

// getEnvFloatOrDefault returns the environment variable as float64 if set, otherwise the koanf value, or default.
// Returns an error if the environment variable is set but cannot be parsed as a float.
func getEnvFloatOrDefault(envKey string, koanfVal float64, defaultVal float64) (float64, error) {
	if val := os.Getenv(envKey); val != "" {
		f, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return 0, fmt.Errorf("%s must be a valid float: %w", envKey, err)
		}
		return f, nil
	}
	if koanfVal != 0 {
		return koanfVal, nil
	}
	return defaultVal, nil
}

// Validate checks that the configuration is internally consistent.
// Returns a slice of validation errors (empty if valid).
func (c *Config) Validate() []error {
	var errs []error

	switch c.GeoProvider {
	case "http":
	case "maxmind":
		if c.GeoMMDBPath == "" {
			errs = append(errs, ErrMissingGeoMMDBPath)
		}
	default:
		errs = append(errs, ErrInvalidGeoProvider)
	}

	if c.BruteForceThreshold <= 0 || c.RapidChangeThreshold <= 0 || c.BulkThreshold <= 0 {
		errs = append(errs, ErrNonPositiveThreshold)
	}

	if c.NightStartHour < 0 || c.NightStartHour > 23 || c.NightEndHour < 0 || c.NightEndHour > 23 {
		errs = append(errs, ErrInvalidNightWindow)
	}

	// Archive configuration is optional. Only validate fields if any archive value is set.
	if c.ArchiveBucketName != "" || c.ArchiveAccessKeyID != "" || c.ArchiveSecretAccessKey != "" || c.ArchiveEndpoint != "" {
		if c.ArchiveBucketName == "" {
			errs = append(errs, ErrMissingArchiveBucketName)
		}
		if c.ArchiveAccessKeyID == "" {
			errs = append(errs, ErrMissingArchiveAccessKeyID)
		}
		if c.ArchiveSecretAccessKey == "" {
			errs = append(errs, ErrMissingArchiveSecret)
		}
		if c.ArchiveEndpoint == "" {
			errs = append(errs, ErrMissingArchiveEndpoint)
		}
	}

	if c.TracingSamplingRate < 0 || c.TracingSamplingRate > 1 {
		errs = append(errs, ErrInvalidSamplingRate)
	}

	return errs
}

// LogSummary returns a summary of the configuration suitable for logging.
// All secrets are masked to prevent accidental exposure.
func (c *Config) LogSummary() map[string]string {
	return map[string]string{
		"port":                  fmt.Sprintf("%d", c.Port),
		"env":                   c.Env,
		"database_url":          maskDatabaseURL(c.DatabaseURL),
		"redis_addr":            c.RedisAddr,
		"geo_provider":          c.GeoProvider,
		"geo_http_endpoint":     c.GeoHTTPEndpoint,
		"geo_mmdb_path":         c.GeoMMDBPath,
		"geo_daily_quota":       fmt.Sprintf("%d", c.GeoDailyQuota),
		"geo_cache_ttl_hours":   fmt.Sprintf("%d", c.GeoCacheTTLHours),
		"workers":               fmt.Sprintf("%d", c.Workers),
		"retention_days":        fmt.Sprintf("%d", c.RetentionDays),
		"dedup_window_minutes":  fmt.Sprintf("%d", c.DedupWindowMinutes),
		"alert_webhook_url":     maskURL(c.AlertWebhookURL),
		"archive_bucket_name":   c.ArchiveBucketName,
		"archive_access_key_id": maskSecret(c.ArchiveAccessKeyID),
		"archive_secret":        maskSecret(c.ArchiveSecretAccessKey),
		"archive_endpoint":      c.ArchiveEndpoint,
		"tracing_enabled":       fmt.Sprintf("%t", c.TracingEnabled),
		"tracing_exporter":      c.TracingExporter,
		"tracing_endpoint":      c.TracingEndpoint,
	}
}

// maskSecret masks a secret value, showing only the first 4 characters followed by ****
// If the secret is shorter than 8 characters, it's fully masked.
func maskSecret(s string) string {
	if s == "" {
		return "<not set>"
	}
	if len(s) < 8 {
		return "****"
	}
	return s[:4] + "****"
}

// maskURL hides everything after the host, since webhook URLs often
// embed tokens in the path.
func maskURL(s string) string {
	if s == "" {
		return "<not set>"
	}
	schemeEnd := strings.Index(s, "://")
	if schemeEnd == -1 {
		return maskSecret(s)
	}
	rest := s[schemeEnd+3:]
	if slash := strings.Index(rest, "/"); slash != -1 {
		return s[:schemeEnd+3] + rest[:slash] + "/****"
	}
	return s
}

// maskDatabaseURL masks the password in a database URL.
// Supports both postgres:// and postgresql:// schemes.
func maskDatabaseURL(s string) string {
	if s == "" {
		return "<not set>"
	}

	schemeEnd := strings.Index(s, "://")
	if schemeEnd == -1 {
		return maskSecret(s)
	}

	rest := s[schemeEnd+3:]
	atIndex := strings.Index(rest, "@")
	if atIndex == -1 {
		return s // No credentials in URL
	}

	colonIndex := strings.Index(rest[:atIndex], ":")
	if colonIndex == -1 {
		return s // No password (only username)
	}

	scheme := s[:schemeEnd+3]
	user := rest[:colonIndex]
	hostAndPath := rest[atIndex:]

	return scheme + user + ":****" + hostAndPath
}
