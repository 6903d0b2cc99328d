package droplink

import (
	"fmt"
	"net/http"
	"net/url"
	"os"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/hashicorp/go-hclog"
	"github.com/icholy/digest"
	"github.com/spf13/afero"
)

const (
	// DefaultBaseURL is the authenticated REST endpoint.
	DefaultBaseURL = "https://my.droplink.app"

	// DefaultShareURL is the public short-link host that serves item
	// metadata without credentials.
	DefaultShareURL = "https://drp.li"

	defaultTimeout = 30 * time.Second
)

// Config holds the settings for a Client.
type Config struct {
	// Username and Password are the account credentials. Every call except
	// Find authenticates with them via HTTP digest.
	Username string
	Password string

	// BaseURL overrides the authenticated API endpoint. Defaults to
	// DefaultBaseURL.
	BaseURL string

	// ShareURL overrides the public share host used by Find. Defaults to
	// DefaultShareURL.
	ShareURL string

	// Timeout bounds each HTTP request. Defaults to 30 seconds. The
	// per-call context can always cut it shorter.
	Timeout time.Duration

	// Logger receives request-level debug logging. Defaults to a no-op
	// logger.
	Logger hclog.Logger

	// Files is the filesystem upload payloads are read from. Defaults to
	// the host filesystem.
	Files afero.Fs

	// Transport overrides the underlying HTTP transport. Digest
	// authentication is layered on top of it. Mainly useful in tests.
	Transport http.RoundTripper
}

// DefaultConfig returns a Config with every field that has a default filled
// in. Credentials must still be supplied by the caller.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:  DefaultBaseURL,
		ShareURL: DefaultShareURL,
		Timeout:  defaultTimeout,
		Logger:   hclog.NewNullLogger(),
		Files:    afero.NewOsFs(),
	}
}

// ConfigFromEnv builds a Config from DROPLINK_USERNAME, DROPLINK_PASSWORD,
// DROPLINK_BASE_URL, and DROPLINK_SHARE_URL, falling back to defaults for
// anything unset.
func ConfigFromEnv() *Config {
	cfg := DefaultConfig()
	if v := os.Getenv("DROPLINK_USERNAME"); v != "" {
		cfg.Username = v
	}
	if v := os.Getenv("DROPLINK_PASSWORD"); v != "" {
		cfg.Password = v
	}
	if v := os.Getenv("DROPLINK_BASE_URL"); v != "" {
		cfg.BaseURL = v
	}
	if v := os.Getenv("DROPLINK_SHARE_URL"); v != "" {
		cfg.ShareURL = v
	}
	return cfg
}

// Validate checks that the config is complete enough to build a Client.
func (c *Config) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Username, validation.Required),
		validation.Field(&c.Password, validation.Required),
		validation.Field(&c.BaseURL, validation.Required, validation.By(httpURL)),
		validation.Field(&c.ShareURL, validation.Required, validation.By(httpURL)),
		validation.Field(&c.Timeout, validation.Min(time.Duration(0))),
	)
}

func httpURL(value interface{}) error {
	s, _ := value.(string)
	if s == "" {
		return nil
	}
	u, err := url.Parse(s)
	if err != nil {
		return fmt.Errorf("must be a valid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("must use http or https, got %q", u.Scheme)
	}
	return nil
}

// newHTTPClients builds the two HTTP clients a Client runs on: one that
// answers digest challenges with the account credentials, and one that never
// sends credentials at all (Find).
func (c *Config) newHTTPClients() (authed, anon *http.Client) {
	transport := c.Transport
	if transport == nil {
		transport = &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		}
	}

	authed = &http.Client{
		Timeout: c.Timeout,
		Transport: &digest.Transport{
			Username:  c.Username,
			Password:  c.Password,
			Transport: transport,
		},
	}
	anon = &http.Client{
		Timeout:   c.Timeout,
		Transport: transport,
	}
	return authed, anon
}
