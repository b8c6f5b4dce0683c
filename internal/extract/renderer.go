package extract

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Renderer turns a URL into the HTML of the loaded page. Implementations
// return FetchError or RenderError.
type Renderer interface {
	Render(ctx context.Context, url string) (string, error)
	Close() error
}

type HTTPConfig struct {
	Timeout   time.Duration
	MaxBytes  int64
	UserAgent string
}

func (c *HTTPConfig) defaults() {
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.MaxBytes <= 0 {
		c.MaxBytes = 10 * 1024 * 1024
	}
	if c.UserAgent == "" {
		c.UserAgent = "ragdocs/1.0"
	}
}

// HTTPRenderer fetches the raw HTML with a plain GET. Scripts are not
// executed, so it suits static documentation sites.
type HTTPRenderer struct {
	client *http.Client
	cfg    HTTPConfig
}

func NewHTTPRenderer(cfg HTTPConfig) *HTTPRenderer {
	cfg.defaults()
	return &HTTPRenderer{
		client: &http.Client{
			Timeout: cfg.Timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 5 {
					return fmt.Errorf("too many redirects (%d)", len(via))
				}
				return nil
			},
		},
		cfg: cfg,
	}
}

func (r *HTTPRenderer) Render(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", FetchError(url, err)
	}
	req.Header.Set("User-Agent", r.cfg.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := r.client.Do(req)
	if err != nil {
		return "", FetchError(url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", FetchError(url, fmt.Errorf("http %d", resp.StatusCode))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, r.cfg.MaxBytes))
	if err != nil {
		return "", FetchError(url, fmt.Errorf("read body: %w", err))
	}
	return string(body), nil
}

func (r *HTTPRenderer) Close() error {
	r.client.CloseIdleConnections()
	return nil
}
