package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

// Load reads the .env file named by FACTLEDGER_ENV (or .env by default),
// then its .secret sidecar if present. Values already in the environment
// win. All config is flat env vars read via os.Getenv after loading.
func Load() error {
	envFile := os.Getenv("FACTLEDGER_ENV")
	if envFile == "" {
		envFile = ".env"
	}

	// Missing files are fine; the environment alone is a valid config.
	_ = godotenv.Load(envFile)
	_ = godotenv.Load(envFile + ".secret")

	if b := LedgerBackend(); b != BackendPostgres && b != BackendMemory {
		return fmt.Errorf("LEDGER_BACKEND must be %q or %q, got %q", BackendPostgres, BackendMemory, b)
	}
	return nil
}

func ServerPort() int {
	port, err := strconv.Atoi(os.Getenv("SERVER_PORT"))
	if err != nil {
		return 8080
	}
	return port
}

func ServerAddr() string {
	return fmt.Sprintf(":%d", ServerPort())
}

func DatabaseURL() string {
	return os.Getenv("DATABASE_URL")
}

// LedgerBackend is "postgres" unless LEDGER_BACKEND says otherwise.
func LedgerBackend() string {
	b := strings.ToLower(strings.TrimSpace(os.Getenv("LEDGER_BACKEND")))
	if b == "" {
		return BackendPostgres
	}
	return b
}

func AutoMigrate() bool {
	v, err := strconv.ParseBool(os.Getenv("AUTO_MIGRATE"))
	return err == nil && v
}

// RateLimitRPS returns requests per second limit.
// Defaults to 100 if not set.
func RateLimitRPS() float64 {
	rps, err := strconv.ParseFloat(os.Getenv("RATE_LIMIT_RPS"), 64)
	if err != nil || rps <= 0 {
		return 100
	}
	return rps
}

// RateLimitBurst returns the burst size for rate limiting.
// Defaults to 20 if not set.
func RateLimitBurst() int {
	burst, err := strconv.Atoi(os.Getenv("RATE_LIMIT_BURST"))
	if err != nil || burst <= 0 {
		return 20
	}
	return burst
}

func WebSearchTimeout() time.Duration {
	d, err := time.ParseDuration(os.Getenv("WEB_SEARCH_TIMEOUT"))
	if err != nil || d <= 0 {
		return 8 * time.Second
	}
	return d
}

// WebSearchRPS caps outbound search requests. Defaults to 1.
func WebSearchRPS() float64 {
	rps, err := strconv.ParseFloat(os.Getenv("WEB_SEARCH_RPS"), 64)
	if err != nil || rps <= 0 {
		return 1
	}
	return rps
}

// WebSearchLang picks the Wikipedia edition. Defaults to "pt".
func WebSearchLang() string {
	lang := os.Getenv("WEB_SEARCH_LANG")
	if lang == "" {
		return "pt"
	}
	return lang
}

// PermissionsFile is an optional YAML permission table. Empty means the
// built-in defaults.
func PermissionsFile() string {
	return os.Getenv("PERMISSIONS_FILE")
}

// DefaultReviewer is recorded as the reviewer when a request carries no
// X-Reviewer header.
func DefaultReviewer() string {
	r := os.Getenv("DEFAULT_REVIEWER")
	if r == "" {
		return "user"
	}
	return r
}

// LogLevel returns the log level (debug, info, warn, error).
// Defaults to "info" if not set.
func LogLevel() string {
	level := os.Getenv("LOG_LEVEL")
	if level == "" {
		return "info"
	}
	return level
}

// NewLogger builds a production JSON logger at LOG_LEVEL.
func NewLogger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(LogLevel())
	if err != nil {
		return nil, fmt.Errorf("parse LOG_LEVEL: %w", err)
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(level)
	return cfg.Build()
}
