package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"bossweek/internal/log"
)

type Config struct {
	// HTTP Server
	Port           string
	TrustedProxies []string
	CORSOrigins    []string
	MaxImportBytes int64

	// Ledger
	DBPath         string
	ProjectionPath string
	WeekAnchor     time.Weekday

	LogLevel string

	// Rollover
	RolloverInterval time.Duration
	ExportOnRollover bool

	// AMQP; an empty URL runs refreshes in process
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Profile lookup
	NexonAPIKey          string
	NexonAPIBase         string
	LookupTimeout        time.Duration
	LookupConcurrency    int
	RefreshRatePerMinute int
	WorkerRetryPause     time.Duration

	// Google Sheets report export; an empty spreadsheet id disables it
	GoogleSpreadsheetID      string
	ReportSheetName          string
	GoogleServiceAccountFile string
	GoogleServiceAccountJSON string
	GoogleOAuthClientFile    string
	GoogleOAuthClientJSON    string
	GoogleOAuthTokenFile     string
	GoogleOAuthTokenJSON     string
	OAuthRedirectPort        int
}

func Load() *Config {
	cfg := &Config{
		Port:           getEnv("PORT", "8080"),
		TrustedProxies: getEnvList("TRUSTED_PROXIES"),
		CORSOrigins:    getEnvList("CORS_ORIGINS"),
		MaxImportBytes: int64(getEnvInt("IMPORT_MAX_BYTES", 8<<20)),

		DBPath:         getEnv("DB_PATH", "./data/bossweek.db"),
		ProjectionPath: getEnv("PROJECTION_PATH", "./data/stats.parquet"),
		WeekAnchor:     time.Thursday,

		LogLevel: getEnv("LOG_LEVEL", "info"),

		RolloverInterval: getEnvDuration("ROLLOVER_INTERVAL", 10*time.Minute),
		ExportOnRollover: getEnvBool("EXPORT_ON_ROLLOVER", true),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "bossweek"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "profile_refresh"),

		NexonAPIKey:          getEnv("NEXON_API_KEY", ""),
		NexonAPIBase:         getEnv("NEXON_API_BASE", "https://open.api.nexon.com/maplestory/v1"),
		LookupTimeout:        getEnvDuration("LOOKUP_TIMEOUT", 5*time.Second),
		LookupConcurrency:    getEnvInt("LOOKUP_CONCURRENCY", 4),
		RefreshRatePerMinute: getEnvInt("REFRESH_RATE_PER_MINUTE", 6),
		WorkerRetryPause:     getEnvDuration("WORKER_RETRY_PAUSE", 5*time.Second),

		GoogleSpreadsheetID:      getEnv("GOOGLE_SPREADSHEET_ID", ""),
		ReportSheetName:          getEnv("REPORT_SHEET_NAME", "Weekly"),
		GoogleServiceAccountFile: getEnv("GOOGLE_SERVICE_ACCOUNT_FILE", ""),
		GoogleServiceAccountJSON: getEnv("GOOGLE_SERVICE_ACCOUNT_JSON", ""),
		GoogleOAuthClientFile:    getEnv("GOOGLE_OAUTH_CLIENT_FILE", ""),
		GoogleOAuthClientJSON:    getEnv("GOOGLE_OAUTH_CLIENT_JSON", ""),
		GoogleOAuthTokenFile:     getEnv("GOOGLE_OAUTH_TOKEN_FILE", ""),
		GoogleOAuthTokenJSON:     getEnv("GOOGLE_OAUTH_TOKEN_JSON", ""),
		OAuthRedirectPort:        getEnvInt("OAUTH_REDIRECT_PORT", 8085),
	}

	if d, err := ParseWeekday(getEnv("WEEK_ANCHOR", "thursday")); err == nil {
		cfg.WeekAnchor = d
	} else {
		cfg.WeekAnchor = -1
	}

	return cfg
}

// LookupEnabled reports whether profile lookups can run in this process.
func (c *Config) LookupEnabled() bool { return c.NexonAPIKey != "" }

func (c *Config) AMQPEnabled() bool { return c.AMQPURL != "" }

func (c *Config) SheetsEnabled() bool { return c.GoogleSpreadsheetID != "" }

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	// Validate port
	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	for _, cidr := range c.TrustedProxies {
		if _, _, err := net.ParseCIDR(cidr); err != nil {
			errors = append(errors, fmt.Sprintf("invalid trusted proxy '%s': must be a CIDR", cidr))
		}
	}

	for _, origin := range c.CORSOrigins {
		if origin == "*" {
			continue
		}
		if u, err := url.Parse(origin); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errors = append(errors, fmt.Sprintf("invalid CORS origin '%s': must be '*' or an http(s) origin", origin))
		}
	}

	if c.DBPath == "" {
		errors = append(errors, "database path cannot be empty")
	} else {
		dir := filepath.Dir(c.DBPath)
		if dir != "." && dir != "" {
			if _, err := os.Stat(dir); os.IsNotExist(err) {
				if err := os.MkdirAll(dir, 0755); err != nil {
					errors = append(errors, fmt.Sprintf("cannot create database directory '%s': %v", dir, err))
				}
			}
		}
	}

	if c.WeekAnchor < time.Sunday || c.WeekAnchor > time.Saturday {
		errors = append(errors, "invalid week anchor: must be a weekday name such as 'thursday'")
	}

	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		errors = append(errors, fmt.Sprintf("invalid log level '%s': must be debug, info, warn or error", c.LogLevel))
	}

	if c.RolloverInterval < time.Second {
		errors = append(errors, fmt.Sprintf("invalid rollover interval %v: must be at least 1 second", c.RolloverInterval))
	} else if c.RolloverInterval > 24*time.Hour {
		errors = append(errors, fmt.Sprintf("invalid rollover interval %v: must be at most 24 hours", c.RolloverInterval))
	}

	// Validate AMQP URL if provided
	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL: %v", err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errors = append(errors, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	if parsed, err := url.Parse(c.NexonAPIBase); err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		errors = append(errors, fmt.Sprintf("invalid Nexon API base '%s': must be an http(s) URL", c.NexonAPIBase))
	}
	if c.LookupTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("invalid lookup timeout %v: must be positive", c.LookupTimeout))
	}
	if c.LookupConcurrency < 1 || c.LookupConcurrency > 64 {
		errors = append(errors, fmt.Sprintf("invalid lookup concurrency %d: must be between 1 and 64", c.LookupConcurrency))
	}
	if c.RefreshRatePerMinute < 1 {
		errors = append(errors, fmt.Sprintf("invalid refresh rate %d: must be at least 1 per minute", c.RefreshRatePerMinute))
	}

	// Sheets export needs one credential source
	if c.GoogleSpreadsheetID != "" {
		hasServiceAccount := c.GoogleServiceAccountFile != "" || c.GoogleServiceAccountJSON != ""
		hasClient := c.GoogleOAuthClientFile != "" || c.GoogleOAuthClientJSON != ""
		hasToken := c.GoogleOAuthTokenFile != "" || c.GoogleOAuthTokenJSON != ""
		switch {
		case hasServiceAccount:
		case hasClient && hasToken:
		case hasClient:
			errors = append(errors, "either GOOGLE_OAUTH_TOKEN_FILE or GOOGLE_OAUTH_TOKEN_JSON must be provided with an OAuth client")
		default:
			errors = append(errors, "Google credentials are required when GOOGLE_SPREADSHEET_ID is set: a service account or an OAuth client and token")
		}

		for _, f := range []struct{ label, path string }{
			{"service account", c.GoogleServiceAccountFile},
			{"OAuth client", c.GoogleOAuthClientFile},
		} {
			if f.path == "" {
				continue
			}
			if _, err := os.Stat(f.path); os.IsNotExist(err) {
				errors = append(errors, fmt.Sprintf("Google %s file does not exist: %s", f.label, f.path))
			}
		}
	}

	// Return combined errors
	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

// ParseWeekday accepts English weekday names and their three letter forms.
func ParseWeekday(s string) (time.Weekday, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for d := time.Sunday; d <= time.Saturday; d++ {
		name := strings.ToLower(d.String())
		if s == name || s == name[:3] {
			return d, nil
		}
	}
	return 0, fmt.Errorf("unknown weekday %q", s)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// getEnvList splits a comma separated value, dropping empty items.
func getEnvList(key string) []string {
	var out []string
	for _, item := range strings.Split(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
