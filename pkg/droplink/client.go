package droplink

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/hashicorp/go-hclog"
	"github.com/spf13/afero"
)

// Version is the SDK version reported in the User-Agent header.
const Version = "0.3.1"

const userAgent = "droplink-go/" + Version

// Client is the entry point to the Droplink API. A Client is safe for
// concurrent use.
type Client struct {
	baseURL  string
	shareURL string

	// authed answers digest challenges with the account credentials; anon
	// never carries credentials and backs the public share-link lookups.
	authed *http.Client
	anon   *http.Client

	files  afero.Fs
	logger hclog.Logger

	items *ItemService
}

// New builds a Client from cfg. Defaults are applied to a copy, so the
// caller's Config is never mutated. A nil cfg is treated as DefaultConfig(),
// which fails validation for lack of credentials.
func New(cfg *Config) (*Client, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	c := *cfg
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.ShareURL == "" {
		c.ShareURL = DefaultShareURL
	}
	if c.Timeout == 0 {
		c.Timeout = defaultTimeout
	}
	if c.Logger == nil {
		c.Logger = hclog.NewNullLogger()
	}
	if c.Files == nil {
		c.Files = afero.NewOsFs()
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid client config: %w", err)
	}

	authed, anon := c.newHTTPClients()
	client := &Client{
		baseURL:  strings.TrimRight(c.BaseURL, "/"),
		shareURL: strings.TrimRight(c.ShareURL, "/"),
		authed:   authed,
		anon:     anon,
		files:    c.Files,
		logger:   c.Logger.Named("droplink"),
	}
	client.items = &ItemService{client: client}
	return client, nil
}

// Items returns the resource operations for items.
func (c *Client) Items() *ItemService {
	return c.items
}

// endpoint joins a path onto the API base URL.
func (c *Client) endpoint(path string) string {
	return c.baseURL + path
}

// shareEndpoint builds the public share-link URL for an item id.
func (c *Client) shareEndpoint(id string) string {
	return c.shareURL + "/" + url.PathEscape(id)
}

// newRequest builds a request with the standard headers. rawURL must be
// absolute. A non-nil query is merged into any query already on the URL.
func (c *Client) newRequest(ctx context.Context, method, rawURL string, query url.Values, body io.Reader) (*http.Request, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid request URL %q: %w", rawURL, err)
	}
	if len(query) > 0 {
		q := u.Query()
		for key, values := range query {
			for _, v := range values {
				q.Add(key, v)
			}
		}
		u.RawQuery = q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	return req, nil
}

// doJSON sends a request whose body, when non-nil, is marshaled as JSON.
func (c *Client) doJSON(ctx context.Context, hc *http.Client, method, rawURL string, query url.Values, body interface{}) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := c.newRequest(ctx, method, rawURL, query, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.do(hc, req)
}

// do executes the request. Transport-level faults come back as wrapped
// errors; status handling is the response mapper's job.
func (c *Client) do(hc *http.Client, req *http.Request) (*http.Response, error) {
	resp, err := hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", req.Method, req.URL, err)
	}
	c.logger.Debug("request complete",
		"method", req.Method,
		"url", req.URL.String(),
		"status", resp.StatusCode)
	return resp, nil
}
