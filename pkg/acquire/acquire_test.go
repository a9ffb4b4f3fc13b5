package acquire

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/schedscope/schedscope/pkg/cache"
	"github.com/schedscope/schedscope/pkg/navigator"
	"github.com/schedscope/schedscope/pkg/navigator/navigatortest"
	"github.com/schedscope/schedscope/pkg/schedule"
)

const (
	baseURL = "https://schedule.test/education/studies/schedule/"
	group   = "М8О-101БВ-24"
)

var (
	bachelor   = "Базовое высшее образование"
	specialist = "Специализированное высшее образование"
)

// fullWeek lists five of the seven days of 10.02.2025 - 16.02.2025.
var fullWeek = navigatortest.WeekBody("10.02.2025 - 16.02.2025",
	navigatortest.Day("Пн, 10 февраля",
		navigatortest.Lesson{Subject: "Физика", Type: "ПЗ", Time: "10:45 - 12:15", Teacher: "Петров  Пётр Петрович", Room: "гук б-416"},
		navigatortest.Lesson{Subject: "Математика", Type: "ЛК", Time: "0900-1030", Teacher: "Иванов Иван Иванович", Room: "3-301"},
	),
	navigatortest.Day("Вт, 11 февраля"),
	navigatortest.Day("Ср, 12 февраля", navigatortest.Lesson{Subject: "Химия", Type: "ЛР", Time: "13:00-14:30"}),
	navigatortest.Day("Чт, 13 февраля", navigatortest.Lesson{Subject: "История", Type: "ЛК", Time: "09:00-10:30"}),
	navigatortest.Day("Пт, 14 февраля", navigatortest.Lesson{Subject: "Английский", Type: "ПЗ", Time: "14:45-16:15"}),
)

func site(categories ...navigatortest.Category) *navigatortest.Site {
	if len(categories) == 0 {
		categories = []navigatortest.Category{{Name: bachelor, Groups: []string{group}}}
	}
	return navigatortest.Fixture{
		BaseURL:    baseURL,
		Categories: categories,
		Weeks: []navigatortest.Week{
			{Range: "03.02.2025 - 09.02.2025", Body: navigatortest.WeekBody("03.02.2025 - 09.02.2025")},
			{Range: "10.02.2025 - 16.02.2025", Body: fullWeek},
		},
	}.Site()
}

func newFetcher(t *testing.T, s *navigatortest.Site, opts ...Option) *Fetcher {
	t.Helper()
	nav := navigator.New(navigator.Config{
		BaseURL:      baseURL,
		WaitTimeout:  50 * time.Millisecond,
		FormTimeout:  50 * time.Millisecond,
		PollInterval: 5 * time.Millisecond,
	}, nil)
	return New(s.Launcher(), nav, opts...)
}

func openCache(t *testing.T) *cache.Store {
	t.Helper()
	store, err := cache.Open(t.TempDir())
	if err != nil {
		t.Fatalf("cache.Open: %v", err)
	}
	return store
}

var query = schedule.Query{Group: group, Date: "12.02.2025"}

func TestFetchCanonicalRecords(t *testing.T) {
	s := site()
	res, err := newFetcher(t, s).Fetch(context.Background(), query)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}

	if res.Category != bachelor || res.Variant != group || res.Week != "10.02.2025 - 16.02.2025" {
		t.Errorf("branch = %q/%q/%q", res.Category, res.Variant, res.Week)
	}
	if n := schedule.DistinctDates(res.Records); n != 7 {
		t.Errorf("distinct dates = %d, want 7", n)
	}
	for _, w := range res.Warnings {
		if w.Kind == schedule.ValidationWarning {
			t.Errorf("unexpected validation warning: %s", w.Message)
		}
	}

	want := []schedule.Record{
		{DateLabel: "Пн, 10 февраля", WeekdayName: "Пн", TimeRange: "09:00-10:30", Subject: "Математика", LessonType: "ЛК", Teacher: "Иванов И.И.", Room: "3-301"},
		{DateLabel: "Пн, 10 февраля", WeekdayName: "Пн", TimeRange: "10:45-12:15", Subject: "Физика", LessonType: "ПЗ", Teacher: "Петров П.П.", Room: "ГУК Б-416"},
		{DateLabel: "Вт, 11 февраля", WeekdayName: "Вт", Subject: schedule.NoClasses, Teacher: schedule.NotSpecified, Room: schedule.NotSpecified},
	}
	if diff := cmp.Diff(want, res.Records[:3]); diff != "" {
		t.Errorf("records mismatch (-want +got):\n%s", diff)
	}
	last := res.Records[len(res.Records)-1]
	if last.DateLabel != "Sun, 16 February" || !last.IsPlaceholder() {
		t.Errorf("last record = %+v, want synthesized Sunday", last)
	}
	if s.Closed() != 1 {
		t.Errorf("pages closed = %d, want 1", s.Closed())
	}
}

func TestFetchIsIdempotentWithinTTL(t *testing.T) {
	s := site()
	f := newFetcher(t, s, WithCache(openCache(t)))

	first, err := f.Fetch(context.Background(), query)
	if err != nil {
		t.Fatalf("first Fetch: %v", err)
	}
	second, err := f.Fetch(context.Background(), schedule.Query{Group: " " + group + " ", Date: query.Date})
	if err != nil {
		t.Fatalf("second Fetch: %v", err)
	}

	if first.FromCache || !second.FromCache {
		t.Errorf("FromCache = %v/%v, want false/true", first.FromCache, second.FromCache)
	}
	if s.Sessions() != 1 {
		t.Errorf("navigations = %d, want 1", s.Sessions())
	}
	if diff := cmp.Diff(first.Records, second.Records); diff != "" {
		t.Errorf("cached result differs (-first +second):\n%s", diff)
	}
}

func TestFetchWithoutCache(t *testing.T) {
	s := site()
	store := openCache(t)
	f := newFetcher(t, s, WithCache(store), WithoutCache(true))

	for i := 0; i < 2; i++ {
		if _, err := f.Fetch(context.Background(), query); err != nil {
			t.Fatalf("Fetch: %v", err)
		}
	}
	if s.Sessions() != 2 {
		t.Errorf("navigations = %d, want 2", s.Sessions())
	}
	if _, err := store.Get(cache.ComputeKey(query)); !errors.Is(err, cache.ErrMiss) {
		t.Errorf("cache written although disabled: %v", err)
	}
}

func TestFetchCoalescesIdenticalQueries(t *testing.T) {
	s := site()
	s.Gate = make(chan struct{})
	f := newFetcher(t, s)

	const callers = 5
	var wg sync.WaitGroup
	results := make([]*Result, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = f.Fetch(context.Background(), query)
		}(i)
	}
	time.Sleep(100 * time.Millisecond)
	close(s.Gate)
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("caller %d: %v", i, err)
		}
	}
	if s.Sessions() != 1 {
		t.Errorf("navigations = %d, want 1", s.Sessions())
	}
	// Callers own their copies.
	results[0].Records[0].Subject = "changed"
	if results[1].Records[0].Subject == "changed" {
		t.Error("results share record storage")
	}
}

func TestFetchCoalescedSurvivesCallerCancel(t *testing.T) {
	s := site()
	s.Gate = make(chan struct{})
	store := openCache(t)
	f := newFetcher(t, s, WithCache(store))

	ctxA, cancelA := context.WithCancel(context.Background())
	errA := make(chan error, 1)
	go func() {
		_, err := f.Fetch(ctxA, query)
		errA <- err
	}()
	time.Sleep(50 * time.Millisecond)

	type outcome struct {
		res *Result
		err error
	}
	outB := make(chan outcome, 1)
	go func() {
		res, err := f.Fetch(context.Background(), query)
		outB <- outcome{res, err}
	}()
	time.Sleep(50 * time.Millisecond)

	cancelA()
	if err := <-errA; !errors.Is(err, context.Canceled) {
		t.Fatalf("canceled caller: err = %v, want context.Canceled", err)
	}

	close(s.Gate)
	b := <-outB
	if b.err != nil {
		t.Fatalf("waiting caller: %v", b.err)
	}
	if len(b.res.Records) == 0 {
		t.Error("waiting caller got no records")
	}
	if s.Sessions() != 1 {
		t.Errorf("navigations = %d, want 1", s.Sessions())
	}
	if _, err := store.Get(cache.ComputeKey(query)); err != nil {
		t.Errorf("shared fetch was not cached: %v", err)
	}
}

func TestFetchLastCallerCancelStopsFetch(t *testing.T) {
	s := site()
	s.Gate = make(chan struct{})
	store := openCache(t)
	f := newFetcher(t, s, WithCache(store))

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() {
		_, err := f.Fetch(ctx, query)
		errc <- err
	}()
	time.Sleep(50 * time.Millisecond)
	cancel()
	if err := <-errc; !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	// Let the abandoned fetch observe the cancellation.
	time.Sleep(50 * time.Millisecond)
	if s.Sessions() != 0 {
		t.Errorf("navigations = %d, want 0", s.Sessions())
	}
	if _, err := store.Get(cache.ComputeKey(query)); !errors.Is(err, cache.ErrMiss) {
		t.Errorf("abandoned fetch was cached: %v", err)
	}

	// A later caller starts a fresh fetch instead of joining the canceled one.
	close(s.Gate)
	if _, err := f.Fetch(context.Background(), query); err != nil {
		t.Fatalf("next Fetch: %v", err)
	}
	if s.Sessions() != 1 {
		t.Errorf("navigations = %d, want 1", s.Sessions())
	}
}

func TestFetchFallbackCategory(t *testing.T) {
	s := site(
		navigatortest.Category{Name: bachelor, Groups: []string{"М8О-102БВ-24"}},
		navigatortest.Category{Name: specialist, Groups: []string{group}},
	)
	res, err := newFetcher(t, s).Fetch(context.Background(), query)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if res.Category != specialist {
		t.Errorf("Category = %q, want %q", res.Category, specialist)
	}
}

func TestFetchTerminalFailures(t *testing.T) {
	tests := []struct {
		name     string
		query    schedule.Query
		kind     navigator.Kind
		sessions int
	}{
		{"bad date", schedule.Query{Group: group, Date: "13/02/2025"}, navigator.BadDateFormat, 0},
		{"unknown group", schedule.Query{Group: "М8О-999БВ-24", Date: "12.02.2025"}, navigator.GroupNotFound, 1},
		{"no such week", schedule.Query{Group: group, Date: "12.03.2025"}, navigator.WeekNotFound, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := site()
			store := openCache(t)
			res, err := newFetcher(t, s, WithCache(store)).Fetch(context.Background(), tt.query)
			if res != nil {
				t.Errorf("got a result on failure: %+v", res)
			}
			if !navigator.IsKind(err, tt.kind) {
				t.Fatalf("err = %v, want kind %s", err, tt.kind)
			}
			if s.Sessions() != tt.sessions {
				t.Errorf("navigations = %d, want %d", s.Sessions(), tt.sessions)
			}
			if _, err := store.Get(cache.ComputeKey(tt.query)); !errors.Is(err, cache.ErrMiss) {
				t.Errorf("failure was cached: %v", err)
			}
		})
	}
}

func TestFetchCanceledWritesNoCache(t *testing.T) {
	s := site()
	store := openCache(t)
	f := newFetcher(t, s, WithCache(store))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := f.Fetch(ctx, query); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if _, err := store.Get(cache.ComputeKey(query)); !errors.Is(err, cache.ErrMiss) {
		t.Errorf("canceled fetch was cached: %v", err)
	}
	if s.Sessions() != s.Closed() {
		t.Errorf("pages opened %d, closed %d", s.Sessions(), s.Closed())
	}
}

func TestFetchCacheFailureIsNotFatal(t *testing.T) {
	s := site()
	dir := filepath.Join(t.TempDir(), "cache")
	store, err := cache.Open(dir)
	if err != nil {
		t.Fatalf("cache.Open: %v", err)
	}
	// Replace the directory with a file so every cache operation fails.
	if err := os.Remove(dir); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(dir, []byte("not a directory"), 0o644); err != nil {
		t.Fatal(err)
	}

	res, err := newFetcher(t, s, WithCache(store)).Fetch(context.Background(), query)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(res.Records) == 0 {
		t.Fatal("no records")
	}
	var cacheWarnings int
	for _, w := range res.Warnings {
		if w.Kind == schedule.CacheWarning {
			cacheWarnings++
		}
	}
	if cacheWarnings == 0 {
		t.Error("expected a cache warning")
	}
}

func TestFetchIncompleteWeekWarns(t *testing.T) {
	// Without a parsable title there is no window to fill gaps from.
	s := navigatortest.Fixture{
		BaseURL:    baseURL,
		Categories: []navigatortest.Category{{Name: bachelor, Groups: []string{group}}},
		Weeks: []navigatortest.Week{
			{Range: "10.02.2025 - 16.02.2025", Body: navigatortest.WeekBody("Расписание", navigatortest.Day("Пн, 10 февраля"))},
		},
	}.Site()

	res, err := newFetcher(t, s).Fetch(context.Background(), schedule.Query{Group: group, Week: 1})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	var validation bool
	for _, w := range res.Warnings {
		validation = validation || w.Kind == schedule.ValidationWarning
	}
	if !validation {
		t.Errorf("warnings = %+v, want a validation warning", res.Warnings)
	}
	if len(res.Records) != 1 {
		t.Errorf("records = %d, want 1", len(res.Records))
	}
}

func TestFetchMany(t *testing.T) {
	s := site(navigatortest.Category{Name: bachelor, Groups: []string{group, "М8О-102БВ-24"}})
	f := newFetcher(t, s)

	queries := []schedule.Query{
		{Group: group, Week: 2},
		{Group: "М8О-999БВ-24", Week: 2},
		{Group: "М8О-102БВ-24", Week: 2},
	}
	var mu sync.Mutex
	done := 0
	out := f.FetchMany(context.Background(), queries, 2, func(Outcome) {
		mu.Lock()
		done++
		mu.Unlock()
	})

	if len(out) != 3 || done != 3 {
		t.Fatalf("outcomes = %d, callbacks = %d", len(out), done)
	}
	for i, o := range out {
		if o.Query != queries[i] {
			t.Errorf("outcome %d is for %v", i, o.Query)
		}
	}
	if out[0].Err != nil || out[2].Err != nil {
		t.Errorf("unexpected errors: %v, %v", out[0].Err, out[2].Err)
	}
	if !navigator.IsKind(out[1].Err, navigator.GroupNotFound) {
		t.Errorf("err = %v, want GroupNotFound", out[1].Err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		q       schedule.Query
		invalid bool
		kind    navigator.Kind
	}{
		{name: "ok", q: schedule.Query{Group: group, Date: "12.02.2025"}},
		{name: "blank group", q: schedule.Query{Group: "  "}, invalid: true},
		{name: "negative week", q: schedule.Query{Group: group, Week: -1}, invalid: true},
		{name: "bad date", q: schedule.Query{Group: group, Date: "12/02/2025"}, kind: navigator.BadDateFormat},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.q)
			if got := errors.Is(err, ErrInvalidQuery); got != tt.invalid {
				t.Errorf("Validate() = %v, invalid query %t, want %t", err, got, tt.invalid)
			}
			if tt.kind != 0 && !navigator.IsKind(err, tt.kind) {
				t.Errorf("Validate() = %v, want kind %s", err, tt.kind)
			}
			if !tt.invalid && tt.kind == 0 && err != nil {
				t.Errorf("Validate() = %v, want nil", err)
			}
		})
	}
}
