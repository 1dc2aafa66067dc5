package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnv blanks every bound variable so the host environment cannot leak in.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, env := range envNames {
		t.Setenv(env, "")
		require.NoError(t, os.Unsetenv(env))
	}
}

func load(t *testing.T, args ...string) (Config, error) {
	t.Helper()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(fs)
	require.NoError(t, fs.Parse(args))
	v, err := NewViper(fs)
	require.NoError(t, err)
	return Load(v)
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := load(t)
	require.NoError(t, err)

	assert.Equal(t, DefaultStateDir, cfg.StateDir)
	assert.Equal(t, filepath.Join(DefaultStateDir, DefaultDBFileName), cfg.DatabaseDSN)
	assert.Equal(t, "file:"+filepath.Join(DefaultStateDir, DefaultWhatsAppDBName)+"?_foreign_keys=on", cfg.WhatsApp.DBDSN)
	assert.Equal(t, DefaultAPIAddr, cfg.APIAddr)
	assert.Equal(t, BackendWhatsApp, cfg.Backend)
	assert.Equal(t, DefaultMaxAttempts, cfg.MaxAttempts)
	assert.False(t, cfg.RequireConfirmation)
	assert.Equal(t, DefaultIdleTimeout, cfg.IdleTimeout)
	assert.Equal(t, DefaultWriteTimeout, cfg.WriteTimeout)
	assert.Equal(t, DefaultLogLevel, cfg.LogLevel)
	assert.Equal(t, DefaultTwilioRateLimit, cfg.Twilio.RateLimit)
}

func TestLoadFromEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("VISITDESK_STATE_DIR", "/tmp/vd")
	t.Setenv("DATABASE_URL", "postgres://u:p@localhost/vd")
	t.Setenv("VISITDESK_MAX_ATTEMPTS", "5")
	t.Setenv("VISITDESK_IDLE_TIMEOUT", "10m")
	t.Setenv("VISITDESK_REQUIRE_CONFIRMATION", "true")
	t.Setenv("OPENAI_API_KEY", "sk-test")

	cfg, err := load(t)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/vd", cfg.StateDir)
	assert.Equal(t, "postgres://u:p@localhost/vd", cfg.DatabaseDSN)
	assert.Equal(t, WhatsAppSQLiteDSN("/tmp/vd"), cfg.WhatsApp.DBDSN)
	assert.Equal(t, 5, cfg.MaxAttempts)
	assert.Equal(t, 10*time.Minute, cfg.IdleTimeout)
	assert.True(t, cfg.RequireConfirmation)
	assert.Equal(t, "sk-test", cfg.OpenAIKey)
}

func TestFlagsOverrideEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("VISITDESK_MAX_ATTEMPTS", "5")
	t.Setenv("API_ADDR", ":9000")

	cfg, err := load(t, "--max-attempts=2", "--idle-timeout=0s")
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.MaxAttempts)
	assert.Equal(t, ":9000", cfg.APIAddr)
	assert.Equal(t, time.Duration(0), cfg.IdleTimeout)
}

func TestTwilioBackendRequiresCredentials(t *testing.T) {
	clearEnv(t)
	_, err := load(t, "--backend=twilio")
	require.Error(t, err)

	t.Setenv("TWILIO_ACCOUNT_SID", "AC123")
	t.Setenv("TWILIO_AUTH_TOKEN", "token")
	t.Setenv("TWILIO_FROM_NUMBER", "+15550000000")
	cfg, err := load(t, "--backend=Twilio")
	require.NoError(t, err)
	assert.Equal(t, BackendTwilio, cfg.Backend)
	assert.Equal(t, "AC123", cfg.Twilio.AccountSID)
}

func TestValidate(t *testing.T) {
	base := Config{Backend: BackendWhatsApp, MaxAttempts: 3}
	require.NoError(t, base.Validate())

	bad := base
	bad.Backend = "telegram"
	assert.Error(t, bad.Validate())

	bad = base
	bad.MaxAttempts = -1
	assert.Error(t, bad.Validate())

	bad = base
	bad.IdleTimeout = -time.Second
	assert.Error(t, bad.Validate())

	bad = base
	bad.APIJWTSecret = "short"
	assert.Error(t, bad.Validate())
}

func TestLoadJWTSecret(t *testing.T) {
	clearEnv(t)
	cfg, err := load(t)
	require.NoError(t, err)
	assert.Empty(t, cfg.APIJWTSecret)

	secret := "0123456789abcdef0123456789abcdef"
	t.Setenv("API_JWT_SECRET", secret)
	cfg, err = load(t)
	require.NoError(t, err)
	assert.Equal(t, secret, cfg.APIJWTSecret)

	t.Setenv("API_JWT_SECRET", "short")
	_, err = load(t)
	assert.Error(t, err)
}

func TestLoadDotEnvDoesNotOverride(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("API_ADDR=:7000\nLOG_LEVEL=debug\n"), 0o600))
	t.Setenv("LOG_LEVEL", "warn")

	LoadDotEnv(nil, path)

	assert.Equal(t, ":7000", os.Getenv("API_ADDR"))
	assert.Equal(t, "warn", os.Getenv("LOG_LEVEL"))
}

func TestLoadDotEnvMissingFile(t *testing.T) {
	LoadDotEnv(nil, filepath.Join(t.TempDir(), "missing.env"))
}
