package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/goliatone/go-auth-verify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testSigningKey     = "session-signing-key-0123456789abcdef"
	testLinkSigningKey = "link-signing-key-0123456789abcdefgh"
)

func setKeys(t *testing.T) {
	t.Setenv("AUTHD_AUTH_SIGNING_KEY", testSigningKey)
	t.Setenv("AUTHD_AUTH_LINK_SIGNING_KEY", testLinkSigningKey)
}

func TestLoadDefaults(t *testing.T) {
	setKeys(t)

	cfg, err := Load(nil)
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.App.LogLevel)
	assert.Equal(t, ":8080", cfg.Server.Address)
	assert.Equal(t, "/auth", cfg.Server.BasePath)
	assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.True(t, cfg.Database.Migrate)
	assert.Equal(t, 60, cfg.GetTokenExpiration())
	assert.Equal(t, 30, cfg.GetLinkExpiration())
	assert.Equal(t, "authd", cfg.GetIssuer())
	assert.Equal(t, "Bearer", cfg.GetAuthScheme())
	assert.Equal(t, auth.DefaultVerifyRoute, cfg.GetVerifyRoute())
	assert.Equal(t, auth.PasswordAlgorithmBcrypt, cfg.GetPasswordAlgorithm())
	assert.Equal(t, testSigningKey, cfg.GetSigningKey())
	assert.Equal(t, testLinkSigningKey, cfg.GetLinkSigningKey())
	assert.False(t, cfg.SMTP.Enabled())
}

func TestLoadPrecedence(t *testing.T) {
	setKeys(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "authd.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[app]
log_level = "warn"

[server]
address = ":9000"
shutdown_timeout = "3s"

[auth]
token_expiration = 15
issuer = "from-file"
audience = ["web", "cli"]
password_algorithm = "argon2id"
`), 0o600))

	t.Run("file over defaults", func(t *testing.T) {
		cfg, err := Load([]string{"--config", path})
		require.NoError(t, err)

		assert.Equal(t, "warn", cfg.App.LogLevel)
		assert.Equal(t, ":9000", cfg.Server.Address)
		assert.Equal(t, 3*time.Second, cfg.Server.ShutdownTimeout)
		assert.Equal(t, 15, cfg.GetTokenExpiration())
		assert.Equal(t, []string{"web", "cli"}, cfg.GetAudience())
		assert.Equal(t, auth.PasswordAlgorithmArgon2id, cfg.GetPasswordAlgorithm())
	})

	t.Run("env over file", func(t *testing.T) {
		t.Setenv("AUTHD_AUTH_ISSUER", "from-env")
		t.Setenv("AUTHD_SERVER_ADDRESS", ":9100")

		cfg, err := Load([]string{"--config", path})
		require.NoError(t, err)
		assert.Equal(t, "from-env", cfg.GetIssuer())
		assert.Equal(t, ":9100", cfg.Server.Address)
	})

	t.Run("flags over env", func(t *testing.T) {
		t.Setenv("AUTHD_SERVER_ADDRESS", ":9100")

		cfg, err := Load([]string{"--config", path, "--addr", ":9200", "--log-level", "DEBUG", "--migrate=false"})
		require.NoError(t, err)
		assert.Equal(t, ":9200", cfg.Server.Address)
		assert.Equal(t, "debug", cfg.App.LogLevel)
		assert.False(t, cfg.Database.Migrate)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := Load([]string{"--config", filepath.Join(dir, "nope.toml")})
		assert.Error(t, err)
	})
}

func TestLoadValidation(t *testing.T) {
	t.Setenv("AUTHD_AUTH_SIGNING_KEY", "short")
	t.Setenv("AUTHD_AUTH_LINK_SIGNING_KEY", "")
	t.Setenv("AUTHD_AUTH_PASSWORD_ALGORITHM", "md5")
	t.Setenv("AUTHD_SMTP_HOST", "smtp.example.com")

	_, err := Load([]string{"--db-driver", "oracle", "--log-level", "loud"})
	require.Error(t, err)
	assert.True(t, auth.HasTextCode(err, auth.TextCodeValidationFailed))

	fields := auth.ValidationFields(err)
	assert.Contains(t, fields, "app.log_level")
	assert.Contains(t, fields, "database.driver")
	assert.Contains(t, fields, "auth.signing_key")
	assert.Contains(t, fields, "auth.link_signing_key")
	assert.Contains(t, fields, "auth.password_algorithm")
	assert.Contains(t, fields, "smtp.from")
}

func TestLoadRejectsUnknownFlag(t *testing.T) {
	setKeys(t)
	_, err := Load([]string{"--nope"})
	assert.Error(t, err)
}

func TestRedacted(t *testing.T) {
	setKeys(t)
	t.Setenv("AUTHD_SMTP_PASSWORD", "hunter2")

	cfg, err := Load(nil)
	require.NoError(t, err)

	red := cfg.Redacted()
	assert.Equal(t, redactedSecret, red.Auth.SigningKey)
	assert.Equal(t, redactedSecret, red.Auth.LinkSigningKey)
	assert.Equal(t, redactedSecret, red.SMTP.Password)
	assert.Equal(t, testSigningKey, cfg.Auth.SigningKey, "original must stay intact")
}
