package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSessionKey = "0123456789abcdef0123456789abcdef"

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "shipping.db", cfg.Database.Path)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, []string{"openid", "email", "profile"}, cfg.Auth.Scopes)
	assert.Equal(t, "http://localhost:8080/api/oauth/callback", cfg.Auth.RedirectURL)
}

func TestLoadFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := `
server:
  port: "9090"
database:
  path: /var/lib/shipcalc/data.db
log:
  level: debug
auth:
  dev_tenant: local-farm
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))

	t.Setenv("SHIPCALC_LOG_LEVEL", "warn")
	t.Setenv("SHIPCALC_AUTH_SESSION_KEY", testSessionKey)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, "/var/lib/shipcalc/data.db", cfg.Database.Path)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, "local-farm", cfg.Auth.DevTenant)
	assert.Equal(t, testSessionKey, cfg.Auth.SessionKey)
	assert.NoError(t, cfg.Validate())
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := &Config{
		Server:   ServerConfig{Port: "8080"},
		Database: DatabaseConfig{Path: "x.db"},
		Auth:     AuthConfig{SessionKey: "short"},
	}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "auth.session_key")
	assert.Contains(t, err.Error(), "auth.dev_tenant")

	cfg.Auth = AuthConfig{
		SessionKey: testSessionKey,
		ClientID:   "client",
		AuthURL:    "https://idp.example.jp/authorize",
		TokenURL:   "https://idp.example.jp/token",
	}
	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "auth.userinfo_url")

	cfg.Auth.UserInfoURL = "https://idp.example.jp/userinfo"
	assert.NoError(t, cfg.Validate())
}
