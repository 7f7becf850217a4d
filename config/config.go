package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const devSecret = "dev-secret-key"

// Config holds all application configuration
type Config struct {
	Server    ServerConfig
	JWT       JWTConfig
	Backend   BackendConfig
	Reports   ReportsConfig
	CORS      CORSConfig
	RateLimit RateLimitConfig
	Logging   LoggingConfig
}

type ServerConfig struct {
	Port        string
	Host        string
	Environment string
}

type JWTConfig struct {
	Secret                 string
	Expiration             time.Duration
	RefreshTokenExpiration time.Duration
}

// Remote backend drivers.
const (
	DriverPostgres  = "postgres"
	DriverFirestore = "firestore"
)

// BackendConfig selects the remote store. URL is a postgres DSN or a Firestore
// project id; Key is the database password or the credentials file.
type BackendConfig struct {
	Driver    string
	URL       string
	Key       string
	LocalPath string
}

type ReportsConfig struct {
	StatusPolicy string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type RateLimitConfig struct {
	Requests int
	Window   time.Duration
}

type LoggingConfig struct {
	Level  string
	Format string
}

// Load reads an optional .env file, then configuration from environment variables
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Server: ServerConfig{
			Port:        getEnv("PORT", "8080"),
			Host:        getEnv("HOST", "0.0.0.0"),
			Environment: getEnv("ENVIRONMENT", "development"),
		},
		JWT: JWTConfig{
			Secret:                 getEnv("JWT_SECRET", devSecret),
			Expiration:             parseDuration(getEnv("JWT_EXPIRATION", "8h"), 8*time.Hour),
			RefreshTokenExpiration: parseDuration(getEnv("REFRESH_TOKEN_EXPIRATION", "7d"), 7*24*time.Hour),
		},
		Backend: BackendConfig{
			Driver:    strings.ToLower(getEnv("BACKEND_DRIVER", DriverPostgres)),
			URL:       getEnv("BACKEND_URL", ""),
			Key:       getEnv("BACKEND_KEY", ""),
			LocalPath: getEnv("LOCAL_STORE_PATH", "./data/sero-est.db"),
		},
		Reports: ReportsConfig{
			StatusPolicy: strings.ToLower(getEnv("REPORT_STATUS_POLICY", "permissive")),
		},
		CORS: CORSConfig{
			AllowedOrigins: parseStringSlice(getEnv("ALLOWED_ORIGINS", "http://localhost:5173")),
		},
		RateLimit: RateLimitConfig{
			Requests: parseInt(getEnv("RATE_LIMIT_REQUESTS", "100"), 100),
			Window:   parseDuration(getEnv("RATE_LIMIT_WINDOW", "60"), 60*time.Second),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "text"),
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseInt(s string, defaultValue int) int {
	if i, err := strconv.Atoi(s); err == nil {
		return i
	}
	return defaultValue
}

// parseDuration accepts Go durations ("30m"), days ("7d") and bare seconds ("60").
func parseDuration(s string, defaultValue time.Duration) time.Duration {
	if d, err := time.ParseDuration(s); err == nil {
		return d
	}
	if days, ok := strings.CutSuffix(s, "d"); ok {
		if i, err := strconv.Atoi(days); err == nil {
			return time.Duration(i) * 24 * time.Hour
		}
	}
	if i, err := strconv.Atoi(s); err == nil {
		return time.Duration(i) * time.Second
	}
	return defaultValue
}

func parseStringSlice(s string) []string {
	result := []string{}
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			result = append(result, part)
		}
	}
	return result
}

func (c *Config) IsProduction() bool {
	return c.Server.Environment == "production"
}

func (c *Config) IsDevelopment() bool {
	return c.Server.Environment == "development"
}

// placeholder reports values left over from an env template.
func placeholder(v string) bool {
	v = strings.ToLower(strings.TrimSpace(v))
	return v == "" ||
		strings.HasPrefix(v, "your_") ||
		strings.HasPrefix(v, "your-") ||
		strings.Contains(v, "changeme") ||
		strings.Contains(v, "placeholder")
}

// RemoteConfigured reports whether a remote backend should be used: both the
// URL and the key must be present and not template placeholders.
func (c *Config) RemoteConfigured() bool {
	return !placeholder(c.Backend.URL) && !placeholder(c.Backend.Key)
}

// Validate reports settings the service cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.JWT.Secret == devSecret && c.IsProduction() {
		errs = append(errs, errors.New("JWT_SECRET must be set in production"))
	}
	if c.Backend.Driver != DriverPostgres && c.Backend.Driver != DriverFirestore {
		errs = append(errs, fmt.Errorf("BACKEND_DRIVER must be %s or %s, got %q", DriverPostgres, DriverFirestore, c.Backend.Driver))
	}
	if c.Backend.LocalPath == "" {
		errs = append(errs, errors.New("LOCAL_STORE_PATH must be set"))
	}
	if p := c.Reports.StatusPolicy; p != "permissive" && p != "forward" {
		errs = append(errs, fmt.Errorf("REPORT_STATUS_POLICY must be permissive or forward, got %q", p))
	}
	if c.RateLimit.Requests <= 0 || c.RateLimit.Window <= 0 {
		errs = append(errs, errors.New("RATE_LIMIT_REQUESTS and RATE_LIMIT_WINDOW must be positive"))
	}
	if c.Backend.Driver == DriverFirestore && c.RemoteConfigured() {
		if _, err := os.Stat(c.Backend.Key); os.IsNotExist(err) {
			errs = append(errs, fmt.Errorf("firestore credentials file not found: %s", c.Backend.Key))
		}
	}
	return errors.Join(errs...)
}
