package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestDefaults(t *testing.T) {
	for _, k := range []string{
		"SERVER_PORT", "LEDGER_BACKEND", "AUTO_MIGRATE", "RATE_LIMIT_RPS", "RATE_LIMIT_BURST",
		"WEB_SEARCH_TIMEOUT", "WEB_SEARCH_RPS", "WEB_SEARCH_LANG", "DEFAULT_REVIEWER", "LOG_LEVEL",
	} {
		t.Setenv(k, "")
	}

	assert.Equal(t, ":8080", ServerAddr())
	assert.Equal(t, BackendPostgres, LedgerBackend())
	assert.False(t, AutoMigrate())
	assert.Equal(t, 100.0, RateLimitRPS())
	assert.Equal(t, 20, RateLimitBurst())
	assert.Equal(t, 8*time.Second, WebSearchTimeout())
	assert.Equal(t, 1.0, WebSearchRPS())
	assert.Equal(t, "pt", WebSearchLang())
	assert.Equal(t, "user", DefaultReviewer())
	assert.Equal(t, "info", LogLevel())
}

func TestLoadReadsEnvFile(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, "test.env")
	require.NoError(t, os.WriteFile(envFile, []byte("LEDGER_BACKEND=memory\nWEB_SEARCH_TIMEOUT=250ms\n"), 0o600))
	require.NoError(t, os.WriteFile(envFile+".secret", []byte("DATABASE_URL=postgres://secret@localhost/ledger\n"), 0o600))

	t.Setenv("FACTLEDGER_ENV", envFile)
	// t.Setenv registers restoration; godotenv only fills unset keys.
	t.Setenv("LEDGER_BACKEND", "")
	t.Setenv("WEB_SEARCH_TIMEOUT", "")
	t.Setenv("DATABASE_URL", "")
	require.NoError(t, os.Unsetenv("LEDGER_BACKEND"))
	require.NoError(t, os.Unsetenv("WEB_SEARCH_TIMEOUT"))
	require.NoError(t, os.Unsetenv("DATABASE_URL"))

	require.NoError(t, Load())
	assert.Equal(t, BackendMemory, LedgerBackend())
	assert.Equal(t, 250*time.Millisecond, WebSearchTimeout())
	assert.Equal(t, "postgres://secret@localhost/ledger", DatabaseURL())
}

func TestLoadRejectsUnknownBackend(t *testing.T) {
	t.Setenv("FACTLEDGER_ENV", filepath.Join(t.TempDir(), "absent.env"))
	t.Setenv("LEDGER_BACKEND", "sqlite")
	assert.ErrorContains(t, Load(), "LEDGER_BACKEND")
}

func TestNewLogger(t *testing.T) {
	t.Setenv("LOG_LEVEL", "debug")
	logger, err := NewLogger()
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(zapcore.DebugLevel))

	t.Setenv("LOG_LEVEL", "loud")
	_, err = NewLogger()
	assert.Error(t, err)
}
