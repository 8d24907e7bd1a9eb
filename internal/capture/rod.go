package capture

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"

	"snapdiff/internal/imagebuf"
)

const navigationTimeout = 30 * time.Second

// BrowserConfig configures a Chrome instance driven through Rod.
type BrowserConfig struct {
	// RemoteURL is the DevTools WebSocket URL of a running Chrome. Empty
	// launches a local one.
	RemoteURL string
	Headless  bool
	// Stealth opens pages with the go-rod/stealth evasions applied.
	Stealth bool
	// Width and Height set the emulated viewport; zero keeps the default.
	Width  int
	Height int
	// FullPage captures the whole scrollable page instead of the viewport.
	FullPage bool
	Logger   *slog.Logger
}

// Browser owns a Chrome connection and opens pages to capture.
type Browser struct {
	cfg     BrowserConfig
	mu      sync.Mutex
	browser *rod.Browser
	lnch    *launcher.Launcher
}

// LaunchBrowser starts (or connects to) Chrome.
func LaunchBrowser(ctx context.Context, cfg BrowserConfig) (*Browser, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	b := &Browser{cfg: cfg}

	wsURL := cfg.RemoteURL
	if wsURL == "" {
		l := launcher.New().Headless(cfg.Headless)
		u, err := l.Launch()
		if err != nil {
			return nil, Fail("launch", err)
		}
		wsURL = u
		b.lnch = l
		cfg.Logger.Info("browser launched", "url", wsURL, "headless", cfg.Headless)
	} else {
		cfg.Logger.Info("browser connecting to remote", "url", wsURL)
	}

	rb := rod.New().ControlURL(wsURL).Context(ctx)
	if err := rb.Connect(); err != nil {
		b.cleanup()
		return nil, Fail("connect", err)
	}
	b.browser = rb
	return b, nil
}

// Open creates a tab, applies the viewport and navigates to pageURL.
func (b *Browser) Open(ctx context.Context, pageURL string) (*Page, error) {
	b.mu.Lock()
	rb := b.browser
	b.mu.Unlock()
	if rb == nil {
		return nil, Fail("open", fmt.Errorf("browser closed"))
	}

	var page *rod.Page
	var err error
	if b.cfg.Stealth {
		page, err = stealth.Page(rb)
	} else {
		page, err = rb.Page(proto.TargetCreateTarget{URL: ""})
	}
	if err != nil {
		return nil, Fail("open", err)
	}

	if b.cfg.Width > 0 && b.cfg.Height > 0 {
		err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
			Width:             b.cfg.Width,
			Height:            b.cfg.Height,
			DeviceScaleFactor: 1,
		})
		if err != nil {
			page.Close()
			return nil, Fail("viewport", err)
		}
	}

	navCtx, cancel := context.WithTimeout(ctx, navigationTimeout)
	defer cancel()
	if err := page.Context(navCtx).Navigate(pageURL); err != nil {
		page.Close()
		return nil, Fail("navigate", fmt.Errorf("%s: %w", pageURL, err))
	}
	if err := page.Context(navCtx).WaitLoad(); err != nil {
		b.cfg.Logger.Warn("wait load timeout", "url", pageURL, "error", err)
	}
	return NewPage(page, b.cfg.FullPage), nil
}

// Close shuts the browser down.
func (b *Browser) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cleanup()
}

func (b *Browser) cleanup() error {
	var err error
	if b.browser != nil {
		err = b.browser.Close()
		b.browser = nil
	}
	if b.lnch != nil {
		b.lnch.Cleanup()
		b.lnch = nil
	}
	return err
}

// Page captures a Rod page.
type Page struct {
	page     *rod.Page
	fullPage bool
}

// NewPage wraps an already navigated page.
func NewPage(p *rod.Page, fullPage bool) *Page {
	return &Page{page: p, fullPage: fullPage}
}

func (p *Page) Capture(ctx context.Context) (*imagebuf.Buffer, error) {
	data, err := p.page.Context(ctx).Screenshot(p.fullPage, &proto.PageCaptureScreenshot{
		Format: proto.PageCaptureScreenshotFormatPng,
	})
	if err != nil {
		return nil, Fail("screenshot", err)
	}
	buf, err := imagebuf.Decode(data)
	if err != nil {
		return nil, Fail("screenshot", err)
	}
	return buf, nil
}

func (p *Page) Capabilities() Capability {
	c := CapViewportSize
	if p.fullPage {
		c |= CapFullPage
	}
	return c
}

// ViewportSize reports the page's inner window size in CSS pixels.
func (p *Page) ViewportSize(ctx context.Context) (int, int, error) {
	res, err := p.page.Context(ctx).Eval(`() => ({w: window.innerWidth, h: window.innerHeight})`)
	if err != nil {
		return 0, 0, err
	}
	return res.Value.Get("w").Int(), res.Value.Get("h").Int(), nil
}

// Close closes the tab.
func (p *Page) Close() error {
	if p.page != nil {
		return p.page.Close()
	}
	return nil
}
