// Package browser renders pages in headless Chrome through go-rod so that
// script-generated links and content are visible to the extractor.
package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/stealth"

	"ragdocs/internal/extract"
)

type Config struct {
	// RemoteURL is the DevTools WebSocket URL of an external Chrome.
	// Empty launches a local headless Chrome on first use.
	RemoteURL string

	// Timeout bounds navigation plus load for one page. Default: 30s.
	Timeout time.Duration

	// Settle is how long the DOM must stay unchanged before it is read. Default: 500ms.
	Settle time.Duration

	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.Settle <= 0 {
		c.Settle = 500 * time.Millisecond
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Renderer owns one browser process (or connection) and opens a fresh
// stealth tab per page.
type Renderer struct {
	cfg     Config
	mu      sync.Mutex
	browser *rod.Browser
	lnch    *launcher.Launcher
	closed  bool
}

func New(cfg Config) *Renderer {
	cfg.defaults()
	return &Renderer{cfg: cfg}
}

func (r *Renderer) Render(ctx context.Context, url string) (string, error) {
	b, err := r.ensureBrowser()
	if err != nil {
		return "", extract.RenderError(url, err)
	}

	page, err := stealth.Page(b)
	if err != nil {
		r.reset()
		return "", extract.RenderError(url, fmt.Errorf("create tab: %w", err))
	}
	defer page.Close()

	navCtx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	if err := page.Context(navCtx).Navigate(url); err != nil {
		return "", classify(url, err)
	}
	if err := page.Context(navCtx).WaitLoad(); err != nil {
		return "", classify(url, err)
	}
	if err := page.Context(navCtx).WaitDOMStable(r.cfg.Settle, 0); err != nil {
		r.cfg.Logger.WarnContext(ctx, "browser: dom did not settle", "url", url, "error", err)
	}

	res, err := page.Context(navCtx).Eval(`() => document.documentElement.outerHTML`)
	if err != nil {
		return "", classify(url, err)
	}
	return res.Value.Str(), nil
}

// classify maps navigation failures and timeouts to FetchError and
// everything else to RenderError.
func classify(url string, err error) error {
	var navErr *rod.NavigationError
	if errors.As(err, &navErr) || extract.IsTimeout(err) {
		return extract.FetchError(url, err)
	}
	return extract.RenderError(url, err)
}

func (r *Renderer) ensureBrowser() (*rod.Browser, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, errors.New("browser: renderer is closed")
	}
	if r.browser != nil {
		return r.browser, nil
	}

	wsURL := r.cfg.RemoteURL
	if wsURL == "" {
		l := launcher.New().
			Headless(true).
			Set("disable-blink-features", "AutomationControlled")
		u, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("browser: launch: %w", err)
		}
		wsURL = u
		r.lnch = l
		r.cfg.Logger.Info("browser: launched local chrome", "url", wsURL)
	} else {
		r.cfg.Logger.Info("browser: connecting to remote", "url", wsURL)
	}

	b := rod.New().ControlURL(wsURL)
	if err := b.Connect(); err != nil {
		return nil, fmt.Errorf("browser: connect: %w", err)
	}
	r.browser = b
	return b, nil
}

// reset drops a browser that stopped answering so the next Render relaunches it.
func (r *Renderer) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cleanup()
}

func (r *Renderer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return r.cleanup()
}

func (r *Renderer) cleanup() error {
	var err error
	if r.browser != nil {
		err = r.browser.Close()
		r.browser = nil
	}
	if r.lnch != nil {
		r.lnch.Kill()
		r.lnch = nil
	}
	return err
}
