package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsValidate(t *testing.T) {
	cfg := Defaults()
	assert.NoError(t, cfg.Validate())
}

func TestValidateCollectsAllProblems(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "replay"
	cfg.Server.Port = 0
	cfg.Redis.Addr = ""
	cfg.Payout.BatchSize = 0

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown mode "replay"`)
	assert.Contains(t, err.Error(), "server: port must be 1-65535")
	assert.Contains(t, err.Error(), "redis: addr must not be empty")
	assert.Contains(t, err.Error(), "payout: batch_size must be >= 1")
}

func TestValidateDSNSkipsComponentChecks(t *testing.T) {
	cfg := Defaults()
	cfg.Postgres.DSN = "postgres://u:p@db:5432/auctiond"
	cfg.Postgres.Host = ""
	cfg.Postgres.Database = ""
	assert.NoError(t, cfg.Validate())
}

func TestValidateArchiveRequiresBucketWhenEnabled(t *testing.T) {
	cfg := Defaults()
	cfg.Archive.Enabled = true
	cfg.Archive.Bucket = ""
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "archive: bucket must not be empty")
}

func TestConnStringPrefersDSN(t *testing.T) {
	p := PostgresConfig{DSN: "postgres://u:p@db:5432/x", Host: "ignored"}
	assert.Equal(t, "postgres://u:p@db:5432/x", p.ConnString())
}

func TestConnStringAssemblesFromParts(t *testing.T) {
	p := PostgresConfig{
		Host: "db", Port: 5433, Database: "auctiond",
		User: "svc", Password: "secret", SSLMode: "require",
	}
	assert.Equal(t, "postgres://svc:secret@db:5433/auctiond?sslmode=require", p.ConnString())
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	body := `
mode = "dispatch"
log_level = "debug"

[auction]
registration_fee = 250
submit_rate_window = "2s"

[server]
port = 9090
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "dispatch", cfg.Mode)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, uint64(250), cfg.Auction.RegistrationFee)
	assert.Equal(t, 2*time.Second, cfg.Auction.SubmitRateWindow.Duration)
	assert.Equal(t, 9090, cfg.Server.Port)

	// Untouched sections keep their defaults.
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, 100, cfg.Payout.BatchSize)
}

func TestEnvOverridesWinOverFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`log_level = "info"`), 0o600))

	t.Setenv("AUCTIOND_LOG_LEVEL", "warn")
	t.Setenv("AUCTIOND_POSTGRES_PASSWORD", "from-env")
	t.Setenv("AUCTIOND_SERVER_CORS_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("AUCTIOND_PAYOUT_POLL_INTERVAL", "750ms")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, "from-env", cfg.Postgres.Password)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.CORSOrigins)
	assert.Equal(t, 750*time.Millisecond, cfg.Payout.PollInterval.Duration)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	assert.Error(t, err)
}
