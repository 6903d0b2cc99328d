package droplink

import (
	"testing"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, DefaultBaseURL, cfg.BaseURL)
	assert.Equal(t, DefaultShareURL, cfg.ShareURL)
	assert.Equal(t, 30*time.Second, cfg.Timeout)
	assert.NotNil(t, cfg.Logger)
	assert.NotNil(t, cfg.Files)
	assert.Empty(t, cfg.Username)
	assert.Empty(t, cfg.Password)
}

func TestConfigValidate(t *testing.T) {
	valid := func() *Config {
		cfg := DefaultConfig()
		cfg.Username = "mia@example.com"
		cfg.Password = "sekrit"
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"complete", func(c *Config) {}, ""},
		{"missing username", func(c *Config) { c.Username = "" }, "Username"},
		{"missing password", func(c *Config) { c.Password = "" }, "Password"},
		{"missing base URL", func(c *Config) { c.BaseURL = "" }, "BaseURL"},
		{"non-http base URL", func(c *Config) { c.BaseURL = "ftp://files.example.com" }, "BaseURL"},
		{"garbled share URL", func(c *Config) { c.ShareURL = "http://bad url" }, "ShareURL"},
		{"negative timeout", func(c *Config) { c.Timeout = -time.Second }, "Timeout"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestConfigFromEnv(t *testing.T) {
	t.Run("all set", func(t *testing.T) {
		t.Setenv("DROPLINK_USERNAME", "mia@example.com")
		t.Setenv("DROPLINK_PASSWORD", "sekrit")
		t.Setenv("DROPLINK_BASE_URL", "https://staging.droplink.test")
		t.Setenv("DROPLINK_SHARE_URL", "https://share.droplink.test")

		cfg := ConfigFromEnv()
		assert.Equal(t, "mia@example.com", cfg.Username)
		assert.Equal(t, "sekrit", cfg.Password)
		assert.Equal(t, "https://staging.droplink.test", cfg.BaseURL)
		assert.Equal(t, "https://share.droplink.test", cfg.ShareURL)
	})

	t.Run("unset falls back to defaults", func(t *testing.T) {
		t.Setenv("DROPLINK_USERNAME", "")
		t.Setenv("DROPLINK_PASSWORD", "")
		t.Setenv("DROPLINK_BASE_URL", "")
		t.Setenv("DROPLINK_SHARE_URL", "")

		cfg := ConfigFromEnv()
		assert.Empty(t, cfg.Username)
		assert.Equal(t, DefaultBaseURL, cfg.BaseURL)
		assert.Equal(t, DefaultShareURL, cfg.ShareURL)
	})
}

func TestNewAppliesDefaults(t *testing.T) {
	cfg := &Config{
		Username: "mia@example.com",
		Password: "sekrit",
	}
	client, err := New(cfg)
	require.NoError(t, err)

	assert.Equal(t, DefaultBaseURL, client.baseURL)
	assert.Equal(t, DefaultShareURL, client.shareURL)
	assert.NotNil(t, client.logger)
	assert.NotNil(t, client.files)
	assert.NotNil(t, client.Items())

	// The caller's config stays untouched.
	assert.Empty(t, cfg.BaseURL)
	assert.Nil(t, cfg.Logger)
}

func TestNewTrimsTrailingSlashes(t *testing.T) {
	client, err := New(&Config{
		Username: "mia@example.com",
		Password: "sekrit",
		BaseURL:  "https://staging.droplink.test/",
		ShareURL: "https://share.droplink.test/",
	})
	require.NoError(t, err)

	assert.Equal(t, "https://staging.droplink.test", client.baseURL)
	assert.Equal(t, "https://share.droplink.test/abc", client.shareEndpoint("abc"))
}

func TestNewRejectsIncompleteConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  *Config
	}{
		{"nil config", nil},
		{"no credentials", &Config{}},
		{"no password", &Config{Username: "mia@example.com"}},
		{"bad base URL", &Config{Username: "u", Password: "p", BaseURL: "ftp://x"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), "invalid client config")
		})
	}
}

func TestNewAcceptsCustomLogger(t *testing.T) {
	logger := hclog.New(&hclog.LoggerOptions{Name: "test", Level: hclog.Off})
	client, err := New(&Config{
		Username: "mia@example.com",
		Password: "sekrit",
		Logger:   logger,
	})
	require.NoError(t, err)
	assert.NotNil(t, client.logger)
}
