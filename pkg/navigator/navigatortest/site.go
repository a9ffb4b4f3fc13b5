// Package navigatortest provides an in-memory site and browser implementing
// navigator.Page and navigator.Launcher over canned markup.
package navigatortest

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"

	"github.com/schedscope/schedscope/pkg/navigator"
)

// Site is a set of screens connected by transitions. A screen is a static
// HTML document, optionally reachable by URL. Clicking an element moves the
// page to the screen registered for that action, if any.
type Site struct {
	mu          sync.Mutex
	screens     map[string]string
	urls        map[string]string
	screenURL   map[string]string
	transitions map[string]string

	// Gate, when set, blocks NewPage until it is closed or ctx is done.
	Gate chan struct{}

	sessions int
	closed   int
	actions  []string
}

func NewSite() *Site {
	return &Site{
		screens:     make(map[string]string),
		urls:        make(map[string]string),
		screenURL:   make(map[string]string),
		transitions: make(map[string]string),
	}
}

// Screen registers a document. A non-empty url makes it reachable by Open.
func (s *Site) Screen(name, url, html string) *Site {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.screens[name] = html
	if url != "" {
		s.urls[url] = name
		s.screenURL[name] = url
	}
	return s
}

// OnClick moves from screen `from` to `to` when an element matching selector is clicked.
func (s *Site) OnClick(from, selector, to string) *Site {
	return s.on(from, "click:"+selector, to)
}

// OnText moves from `from` to `to` when an element is clicked by its text.
func (s *Site) OnText(from, text, to string) *Site {
	return s.on(from, "text:"+text, to)
}

func (s *Site) on(from, action, to string) *Site {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transitions[from+"\x00"+action] = to
	return s
}

// Sessions is the number of pages handed out.
func (s *Site) Sessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessions
}

// Closed is the number of pages closed.
func (s *Site) Closed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Actions lists every page action in order, e.g. "open:https://..." or "text:Аспирантура".
func (s *Site) Actions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.actions...)
}

// Count returns how many recorded actions equal action.
func (s *Site) Count(action string) int {
	n := 0
	for _, a := range s.Actions() {
		if a == action {
			n++
		}
	}
	return n
}

func (s *Site) record(action string) {
	s.mu.Lock()
	s.actions = append(s.actions, action)
	s.mu.Unlock()
}

// Launcher returns a launcher handing out pages of this site.
func (s *Site) Launcher() navigator.Launcher { return launcher{s} }

type launcher struct{ site *Site }

func (l launcher) NewPage(ctx context.Context) (navigator.Page, error) {
	if gate := l.site.Gate; gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	l.site.mu.Lock()
	l.site.sessions++
	l.site.mu.Unlock()
	return &Page{site: l.site}, nil
}

// Page is a navigator.Page over a Site.
type Page struct {
	site   *Site
	screen string
	url    string
	closed bool
}

var _ navigator.Page = (*Page)(nil)

func (p *Page) doc() (*goquery.Document, error) {
	p.site.mu.Lock()
	html, found := p.site.screens[p.screen]
	p.site.mu.Unlock()
	if !found {
		return nil, fmt.Errorf("blank page")
	}
	return goquery.NewDocumentFromReader(strings.NewReader(html))
}

func (p *Page) move(action string) {
	p.site.record(action)
	p.site.mu.Lock()
	defer p.site.mu.Unlock()
	if to, found := p.site.transitions[p.screen+"\x00"+action]; found {
		p.screen = to
		if u, found := p.site.screenURL[to]; found {
			p.url = u
		}
	}
}

func (p *Page) Open(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.site.record("open:" + url)
	p.site.mu.Lock()
	defer p.site.mu.Unlock()
	name, found := p.site.urls[url]
	if !found {
		return fmt.Errorf("open %s: 404 not found", url)
	}
	p.screen, p.url = name, url
	return nil
}

// WaitFor returns at once when selector is present. Screens never change
// on their own, so otherwise it blocks until ctx is done.
func (p *Page) WaitFor(ctx context.Context, selector string) error {
	has, err := p.Has(ctx, selector)
	if err != nil {
		return err
	}
	if has {
		return nil
	}
	<-ctx.Done()
	return ctx.Err()
}

func (p *Page) Has(ctx context.Context, selector string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	doc, err := p.doc()
	if err != nil {
		return false, nil
	}
	return doc.Find(selector).Length() > 0, nil
}

func (p *Page) Click(ctx context.Context, selector string) error {
	if has, err := p.Has(ctx, selector); err != nil {
		return err
	} else if !has {
		return navigator.ErrNoElement
	}
	p.move("click:" + selector)
	return nil
}

func (p *Page) ClickText(ctx context.Context, selector, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	doc, err := p.doc()
	if err != nil {
		return navigator.ErrNoElement
	}
	found := doc.Find(selector).FilterFunction(func(_ int, s *goquery.Selection) bool {
		return strings.Contains(s.Text(), text)
	}).Length() > 0
	if !found {
		return navigator.ErrNoElement
	}
	p.move("text:" + text)
	return nil
}

func (p *Page) Select(ctx context.Context, selector, option string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	doc, err := p.doc()
	if err != nil {
		return navigator.ErrNoElement
	}
	opts := doc.Find(selector).First().Find("option")
	match := opts.FilterFunction(func(_ int, s *goquery.Selection) bool {
		v, _ := s.Attr("value")
		return v == option
	})
	if match.Length() == 0 {
		match = opts.FilterFunction(func(_ int, s *goquery.Selection) bool {
			return strings.Contains(s.Text(), option)
		})
	}
	if match.Length() == 0 {
		return navigator.ErrNoElement
	}
	p.site.record("select:" + selector + "=" + option)
	return nil
}

func (p *Page) Content(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	p.site.mu.Lock()
	defer p.site.mu.Unlock()
	return p.site.screens[p.screen], nil
}

func (p *Page) URL(ctx context.Context) (string, error) {
	return p.url, nil
}

func (p *Page) Close() error {
	if p.closed {
		return nil
	}
	p.closed = true
	p.site.mu.Lock()
	p.site.closed++
	p.site.mu.Unlock()
	return nil
}
