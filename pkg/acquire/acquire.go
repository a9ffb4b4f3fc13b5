// Package acquire composes cache, navigation, extraction and normalization
// into one schedule fetch.
package acquire

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/schedscope/schedscope/internal/utils"
	"github.com/schedscope/schedscope/pkg/cache"
	"github.com/schedscope/schedscope/pkg/extract"
	"github.com/schedscope/schedscope/pkg/navigator"
	"github.com/schedscope/schedscope/pkg/normalize"
	"github.com/schedscope/schedscope/pkg/schedule"
)

// minDays is the number of distinct dates a complete week has.
const minDays = 7

// Result is the canonical dataset of one fetch.
type Result struct {
	Query   schedule.Query
	Records []schedule.Record
	Window  *schedule.WeekWindow
	// Category, Variant and Week describe the navigation branch that
	// succeeded. They are empty for cache hits.
	Category  string
	Variant   string
	Week      string
	FromCache bool
	Warnings  []schedule.Warning
}

func (r *Result) clone() *Result {
	c := *r
	c.Records = append([]schedule.Record(nil), r.Records...)
	c.Warnings = append([]schedule.Warning(nil), r.Warnings...)
	if r.Window != nil {
		w := *r.Window
		c.Window = &w
	}
	return &c
}

type Fetcher struct {
	launcher  navigator.Launcher
	nav       *navigator.Navigator
	extractor *extract.Extractor
	cache     *cache.Store
	noCache   bool
	log       logrus.FieldLogger

	flight singleflight.Group
	mu     sync.Mutex
	calls  map[cache.Key]*call
}

// call is the shared context of one coalesced fetch. It is canceled when the
// last waiting caller leaves.
type call struct {
	ctx     context.Context
	cancel  context.CancelFunc
	waiters int
}

type Option func(*Fetcher)

// WithCache enables the raw page cache.
func WithCache(s *cache.Store) Option {
	return func(f *Fetcher) { f.cache = s }
}

// WithoutCache bypasses cache reads and writes even when a store is set.
func WithoutCache(disabled bool) Option {
	return func(f *Fetcher) { f.noCache = disabled }
}

func WithExtractor(e *extract.Extractor) Option {
	return func(f *Fetcher) { f.extractor = e }
}

func WithLogger(l logrus.FieldLogger) Option {
	return func(f *Fetcher) { f.log = l }
}

func New(l navigator.Launcher, nav *navigator.Navigator, opts ...Option) *Fetcher {
	f := &Fetcher{launcher: l, nav: nav, calls: make(map[cache.Key]*call)}
	for _, o := range opts {
		o(f)
	}
	f.log = utils.OrDiscard(f.log)
	if f.extractor == nil {
		f.extractor = extract.New(extract.DefaultSelectors, f.log)
	}
	return f
}

// ErrInvalidQuery is wrapped by validation errors that are not navigation
// errors.
var ErrInvalidQuery = errors.New("invalid query")

// Validate rejects queries that cannot be fetched, before any cache or
// network access.
func Validate(q schedule.Query) error {
	q = q.Normalized()
	if q.Group == "" {
		return fmt.Errorf("%w: group name is required", ErrInvalidQuery)
	}
	if q.Date != "" {
		if _, err := schedule.ParseDate(q.Date); err != nil {
			return &navigator.Error{Kind: navigator.BadDateFormat, State: navigator.Start, Err: err}
		}
	}
	if q.Week < 0 {
		return fmt.Errorf("%w: week number %d out of range", ErrInvalidQuery, q.Week)
	}
	return nil
}

// Fetch returns the canonical records for q. Concurrent calls for the same
// query share one fetch; each caller receives its own copy of the result.
// A caller that gives up only stops waiting. The shared fetch is canceled
// once no caller waits for it.
func (f *Fetcher) Fetch(ctx context.Context, q schedule.Query) (*Result, error) {
	q = q.Normalized()
	if err := Validate(q); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	key := cache.ComputeKey(q)

	c := f.join(ctx, key)
	defer f.leave(key, c)

	ch := f.flight.DoChan(string(key), func() (interface{}, error) {
		return f.fetch(c.ctx, q, key)
	})
	select {
	case r := <-ch:
		if r.Err != nil {
			return nil, r.Err
		}
		return r.Val.(*Result).clone(), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// join registers a waiter for key. The shared context keeps the values of
// the first caller but none of its cancellation.
func (f *Fetcher) join(ctx context.Context, key cache.Key) *call {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.calls[key]
	if !ok {
		shared, cancel := context.WithCancel(context.WithoutCancel(ctx))
		c = &call{ctx: shared, cancel: cancel}
		f.calls[key] = c
	}
	c.waiters++
	return c
}

// leave drops a waiter. The last one out cancels the shared fetch and makes
// the next caller start a fresh one.
func (f *Fetcher) leave(key cache.Key, c *call) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c.waiters--
	if c.waiters > 0 {
		return
	}
	f.flight.Forget(string(key))
	c.cancel()
	delete(f.calls, key)
}

func (f *Fetcher) fetch(ctx context.Context, q schedule.Query, key cache.Key) (*Result, error) {
	log := f.log.WithFields(logrus.Fields{
		"fetch": uuid.NewString(),
		"query": q.String(),
	})
	useCache := f.cache != nil && !f.noCache

	var warnings []schedule.Warning
	if useCache {
		content, err := f.cache.Get(key)
		switch {
		case err == nil:
			log.Info("Cache hit")
			res, err := f.build(q, content, log)
			if err != nil {
				return nil, err
			}
			res.FromCache = true
			return res, nil
		case errors.Is(err, cache.ErrMiss):
			log.Debug("Cache miss")
		default:
			log.Warnf("Reading cache failed, fetching instead: %v", err)
			warnings = append(warnings, schedule.Warning{Kind: schedule.CacheWarning, Message: err.Error()})
		}
	}

	rendered, err := f.navigate(ctx, q, log)
	if err != nil {
		return nil, err
	}

	if useCache && ctx.Err() == nil {
		if err := f.cache.Put(key, q, rendered.HTML); err != nil {
			log.Warnf("Could not cache page: %v", err)
			warnings = append(warnings, schedule.Warning{Kind: schedule.CacheWarning, Message: err.Error()})
		}
	}

	res, err := f.build(q, rendered.HTML, log)
	if err != nil {
		return nil, err
	}
	res.Category = rendered.Category
	res.Variant = rendered.Variant
	res.Week = rendered.Week
	res.Warnings = append(warnings, res.Warnings...)
	return res, nil
}

// navigate runs the navigator on an exclusive page, released on return.
func (f *Fetcher) navigate(ctx context.Context, q schedule.Query, log logrus.FieldLogger) (*navigator.Rendered, error) {
	page, err := f.launcher.NewPage(ctx)
	if err != nil {
		return nil, fmt.Errorf("open browser page: %w", err)
	}
	defer func() {
		if err := page.Close(); err != nil {
			log.Debugf("Closing page: %v", err)
		}
	}()

	rendered, err := f.nav.Navigate(ctx, page, q)
	if err != nil {
		log.Errorf("Navigation failed: %v", err)
		return nil, err
	}
	return rendered, nil
}

// build extracts and normalizes content.
func (f *Fetcher) build(q schedule.Query, content string, log logrus.FieldLogger) (*Result, error) {
	ex, err := f.extractor.Parse(content)
	if err != nil {
		return nil, fmt.Errorf("extract schedule: %w", err)
	}
	res := &Result{
		Query:    q,
		Records:  normalize.Lessons(ex.Lessons, ex.Window),
		Window:   ex.Window,
		Warnings: ex.Warnings,
	}
	if n := schedule.DistinctDates(res.Records); n < minDays {
		msg := fmt.Sprintf("schedule covers %d distinct dates, expected %d", n, minDays)
		log.Warn(msg)
		res.Warnings = append(res.Warnings, schedule.Warning{Kind: schedule.ValidationWarning, Message: msg})
	}
	log.Infof("Got %d records", len(res.Records))
	return res, nil
}
