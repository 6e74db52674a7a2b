// Package config loads server settings from an optional YAML file and SHIPCALC_*
// environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g. SHIPCALC_SERVER_PORT
const EnvPrefix = "SHIPCALC"

// Config is the full server configuration
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Log      LogConfig      `mapstructure:"log"`
	Auth     AuthConfig     `mapstructure:"auth"`
}

type ServerConfig struct {
	Port string `mapstructure:"port"`
	// Secure marks session cookies HTTPS-only
	Secure bool `mapstructure:"secure"`
}

type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

// AuthConfig holds the OAuth2 provider endpoints and session secrets
type AuthConfig struct {
	ClientID      string   `mapstructure:"client_id"`
	ClientSecret  string   `mapstructure:"client_secret"`
	AuthURL       string   `mapstructure:"auth_url"`
	TokenURL      string   `mapstructure:"token_url"`
	UserInfoURL   string   `mapstructure:"userinfo_url"`
	RedirectURL   string   `mapstructure:"redirect_url"`
	Scopes        []string `mapstructure:"scopes"`
	SessionKey    string   `mapstructure:"session_key"`
	EncryptionKey string   `mapstructure:"encryption_key"` // base64, 32 bytes decoded
	// DevTenant signs every request in as this tenant subject; local use only
	DevTenant string `mapstructure:"dev_tenant"`
}

// OAuthEnabled reports whether enough is configured to run the login flow
func (a AuthConfig) OAuthEnabled() bool {
	return a.ClientID != "" && a.AuthURL != "" && a.TokenURL != ""
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.secure", false)
	v.SetDefault("database.path", "shipping.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("auth.scopes", []string{"openid", "email", "profile"})

	// Registered so AutomaticEnv can see keys without a file
	for _, key := range []string{
		"auth.client_id", "auth.client_secret", "auth.auth_url", "auth.token_url",
		"auth.userinfo_url", "auth.redirect_url", "auth.session_key",
		"auth.encryption_key", "auth.dev_tenant",
	} {
		v.SetDefault(key, "")
	}
}

// Load reads configPath when it is non-empty, then applies environment overrides
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config failed: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config failed: %w", err)
	}

	if cfg.Auth.RedirectURL == "" {
		cfg.Auth.RedirectURL = "http://localhost:" + cfg.Server.Port + "/api/oauth/callback"
	}
	return &cfg, nil
}

// Validate checks the settings the server cannot start without
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port == "" {
		errs = append(errs, errors.New("server.port is required"))
	}
	if c.Database.Path == "" {
		errs = append(errs, errors.New("database.path is required"))
	}
	if len(c.Auth.SessionKey) < 32 {
		errs = append(errs, errors.New("auth.session_key must be at least 32 characters"))
	}
	if c.Auth.OAuthEnabled() && c.Auth.UserInfoURL == "" {
		errs = append(errs, errors.New("auth.userinfo_url is required when oauth is configured"))
	}
	if !c.Auth.OAuthEnabled() && c.Auth.DevTenant == "" {
		errs = append(errs, errors.New("either oauth (auth.client_id, auth.auth_url, auth.token_url) or auth.dev_tenant must be set"))
	}
	return errors.Join(errs...)
}
