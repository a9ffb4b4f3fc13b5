// Package browser implements navigator.Launcher and navigator.Page on top of
// a Chrome instance driven by Rod.
package browser

import (
	"context"
	"fmt"
	"regexp"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/sirupsen/logrus"

	"github.com/schedscope/schedscope/internal/utils"
	"github.com/schedscope/schedscope/pkg/navigator"
)

const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

type Config struct {
	// RemoteURL is the WebSocket URL of an external Chrome instance.
	// Empty launches a local Chrome.
	RemoteURL string
	Headless  bool
	// BlockResources lists resource types to block (images, fonts, media, stylesheets).
	BlockResources []string
	UserAgent      string
	// LoadTimeout bounds waiting for the load event after navigation.
	LoadTimeout time.Duration

	Logger logrus.FieldLogger
}

// Launcher owns one Chrome process. Each page lives in its own incognito
// context, so concurrent fetches never share cookies or storage.
type Launcher struct {
	cfg Config
	log logrus.FieldLogger

	mu      sync.Mutex
	browser *rod.Browser
	lnch    *launcher.Launcher
}

var _ navigator.Launcher = (*Launcher)(nil)

func New(cfg Config) *Launcher {
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.LoadTimeout <= 0 {
		cfg.LoadTimeout = 60 * time.Second
	}
	return &Launcher{cfg: cfg, log: utils.OrDiscard(cfg.Logger)}
}

// connect starts or attaches to Chrome on first use.
func (l *Launcher) connect() (*rod.Browser, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.browser != nil {
		return l.browser, nil
	}

	wsURL := l.cfg.RemoteURL
	if wsURL != "" {
		l.log.Infof("Connecting to remote browser at %s", wsURL)
	} else {
		lnch := launcher.New().
			Headless(l.cfg.Headless).
			Set("disable-blink-features", "AutomationControlled").
			Set("window-size", "1920,1080")
		u, err := lnch.Launch()
		if err != nil {
			return nil, fmt.Errorf("browser: launch: %w", err)
		}
		wsURL = u
		l.lnch = lnch
		l.log.Debugf("Launched local chrome at %s", wsURL)
	}

	b := rod.New().ControlURL(wsURL)
	if err := b.Connect(); err != nil {
		l.cleanupLocked()
		return nil, fmt.Errorf("browser: connect: %w", err)
	}
	l.browser = b
	return b, nil
}

// NewPage opens a stealth page in a fresh incognito context.
func (l *Launcher) NewPage(ctx context.Context) (navigator.Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b, err := l.connect()
	if err != nil {
		return nil, err
	}

	inc, err := b.Incognito()
	if err != nil {
		return nil, fmt.Errorf("browser: incognito context: %w", err)
	}
	page, err := stealth.Page(inc)
	if err != nil {
		inc.Close()
		return nil, fmt.Errorf("browser: create page: %w", err)
	}

	p := &Page{page: page, session: inc, cfg: l.cfg, log: l.log}
	if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: l.cfg.UserAgent}); err != nil {
		l.log.Warnf("Setting user agent failed: %v", err)
	}
	if len(l.cfg.BlockResources) > 0 {
		p.router = applyResourceBlocking(page, l.cfg.BlockResources)
	}
	return p, nil
}

// Close shuts Chrome down.
func (l *Launcher) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cleanupLocked()
}

func (l *Launcher) cleanupLocked() error {
	var err error
	if l.browser != nil {
		err = l.browser.Close()
		l.browser = nil
	}
	if l.lnch != nil {
		l.lnch.Cleanup()
		l.lnch = nil
	}
	return err
}

// Page is a navigator.Page backed by a Rod page.
type Page struct {
	page    *rod.Page
	session *rod.Browser
	router  *rod.HijackRouter
	cfg     Config
	log     logrus.FieldLogger
}

var _ navigator.Page = (*Page)(nil)

func (p *Page) Open(ctx context.Context, url string) error {
	if err := p.page.Context(ctx).Navigate(url); err != nil {
		return fmt.Errorf("browser: navigate %s: %w", url, err)
	}
	loadCtx, cancel := context.WithTimeout(ctx, p.cfg.LoadTimeout)
	defer cancel()
	if err := p.page.Context(loadCtx).WaitLoad(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		p.log.Warnf("Waiting for load of %s: %v", url, err)
	}
	return nil
}

func (p *Page) WaitFor(ctx context.Context, selector string) error {
	if _, err := p.page.Context(ctx).Element(selector); err != nil {
		return fmt.Errorf("browser: wait for %q: %w", selector, err)
	}
	return nil
}

func (p *Page) Has(ctx context.Context, selector string) (bool, error) {
	has, _, err := p.page.Context(ctx).Has(selector)
	return has, err
}

const clickJS = `() => { this.scrollIntoView(); this.click(); }`

func (p *Page) Click(ctx context.Context, selector string) error {
	has, el, err := p.page.Context(ctx).Has(selector)
	if err != nil {
		return err
	}
	if !has {
		return navigator.ErrNoElement
	}
	if _, err := el.Context(ctx).Eval(clickJS); err != nil {
		return fmt.Errorf("browser: click %q: %w", selector, err)
	}
	return nil
}

func (p *Page) ClickText(ctx context.Context, selector, text string) error {
	has, el, err := p.page.Context(ctx).HasR(selector, regexp.QuoteMeta(text))
	if err != nil {
		return err
	}
	if !has {
		return navigator.ErrNoElement
	}
	if _, err := el.Context(ctx).Eval(clickJS); err != nil {
		return fmt.Errorf("browser: click %q: %w", text, err)
	}
	return nil
}

const selectJS = `(option) => {
	const opts = Array.from(this.options);
	let i = opts.findIndex(o => o.value === option);
	if (i < 0) i = opts.findIndex(o => o.text.includes(option));
	if (i < 0) return false;
	this.selectedIndex = i;
	this.dispatchEvent(new Event('change', {bubbles: true}));
	return true;
}`

func (p *Page) Select(ctx context.Context, selector, option string) error {
	has, el, err := p.page.Context(ctx).Has(selector)
	if err != nil {
		return err
	}
	if !has {
		return navigator.ErrNoElement
	}
	res, err := el.Context(ctx).Eval(selectJS, option)
	if err != nil {
		return fmt.Errorf("browser: select %q in %q: %w", option, selector, err)
	}
	if !res.Value.Bool() {
		return navigator.ErrNoElement
	}
	return nil
}

func (p *Page) Content(ctx context.Context) (string, error) {
	return p.page.Context(ctx).HTML()
}

func (p *Page) URL(ctx context.Context) (string, error) {
	info, err := p.page.Context(ctx).Info()
	if err != nil {
		return "", err
	}
	return info.URL, nil
}

// Close releases the page and its incognito context.
func (p *Page) Close() error {
	if p.router != nil {
		_ = p.router.Stop()
	}
	err := p.page.Close()
	if cerr := p.session.Close(); err == nil {
		err = cerr
	}
	return err
}
