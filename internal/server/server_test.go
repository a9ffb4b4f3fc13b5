package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/schedscope/schedscope/pkg/acquire"
	"github.com/schedscope/schedscope/pkg/catalog"
	"github.com/schedscope/schedscope/pkg/navigator"
	"github.com/schedscope/schedscope/pkg/schedule"
	"github.com/schedscope/schedscope/pkg/storage"
)

type fakeFetcher struct {
	mu      sync.Mutex
	queries []schedule.Query
	res     *acquire.Result
	err     error
}

func (f *fakeFetcher) Fetch(_ context.Context, q schedule.Query) (*acquire.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, q)
	if f.err != nil {
		return nil, f.err
	}
	res := *f.res
	res.Query = q
	return &res, nil
}

type fakeCatalog struct {
	institutes []catalog.Institute
	groups     map[string][]catalog.Group
	gotCourse  int
}

func (c *fakeCatalog) Institutes(context.Context) ([]catalog.Institute, error) {
	return c.institutes, nil
}

func (c *fakeCatalog) Groups(_ context.Context, institute string, course int) ([]catalog.Group, error) {
	c.gotCourse = course
	return c.groups[institute], nil
}

var records = []schedule.Record{
	{DateLabel: "Пн, 10 февраля", WeekdayName: "Пн", TimeRange: "09:00 – 10:30", Subject: "Математика", LessonType: "ЛК", Teacher: "Иванов Иван Иванович", Room: "3-301"},
	{DateLabel: "Вт, 11 февраля", WeekdayName: "Вт", Subject: schedule.NoClasses, Teacher: schedule.NotSpecified, Room: schedule.NotSpecified},
}

func newTestServer(t *testing.T, s *Server) *httptest.Server {
	t.Helper()
	h, err := s.Router()
	if err != nil {
		t.Fatalf("Router: %v", err)
	}
	ts := httptest.NewServer(h)
	t.Cleanup(ts.Close)
	return ts
}

func get(t *testing.T, ts *httptest.Server, path string) (int, string) {
	t.Helper()
	resp, err := http.Get(ts.URL + path)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp.StatusCode, string(body)
}

func TestScheduleEndpoint(t *testing.T) {
	f := &fakeFetcher{res: &acquire.Result{
		Records:  records,
		Category: "Базовое высшее образование",
		Warnings: []schedule.Warning{{Kind: schedule.ValidationWarning, Message: "only 2 of 7 days"}},
	}}
	ts := newTestServer(t, New(&fakeCatalog{}, f, nil, "", "", nil))

	group := "М8О-101БВ-24"
	status, body := get(t, ts, "/api/schedule/"+url.PathEscape(group)+"?date=12.02.2025")
	if status != http.StatusOK {
		t.Fatalf("status = %d, body %s", status, body)
	}

	var got scheduleResponse
	if err := json.Unmarshal([]byte(body), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if diff := cmp.Diff(records, got.Records); diff != "" {
		t.Errorf("records mismatch (-want +got):\n%s", diff)
	}
	if got.Group != group || got.Category != "Базовое высшее образование" {
		t.Errorf("got group %q category %q", got.Group, got.Category)
	}
	if len(got.Warnings) != 1 || got.Warnings[0].Kind != schedule.ValidationWarning {
		t.Errorf("warnings = %+v", got.Warnings)
	}

	want := []schedule.Query{{Group: group, Date: "12.02.2025"}}
	if diff := cmp.Diff(want, f.queries); diff != "" {
		t.Errorf("queries mismatch (-want +got):\n%s", diff)
	}
}

func TestScheduleWeekParam(t *testing.T) {
	f := &fakeFetcher{res: &acquire.Result{}}
	ts := newTestServer(t, New(&fakeCatalog{}, f, nil, "", "", nil))

	status, body := get(t, ts, "/api/schedule/grp?week=3")
	if status != http.StatusOK {
		t.Fatalf("status = %d, body %s", status, body)
	}
	if !strings.Contains(body, `"records":[]`) {
		t.Errorf("empty records should encode as a list, got %s", body)
	}
	if len(f.queries) != 1 || f.queries[0].Week != 3 {
		t.Errorf("queries = %+v", f.queries)
	}

	status, _ = get(t, ts, "/api/schedule/grp?week=abc")
	if status != http.StatusBadRequest {
		t.Errorf("week=abc status = %d, want 400", status)
	}
	if len(f.queries) != 1 {
		t.Errorf("invalid week should not reach the fetcher")
	}
}

func TestScheduleErrorStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"group not found", &navigator.Error{Kind: navigator.GroupNotFound, State: navigator.EducationTypeSelected}, http.StatusNotFound},
		{"week not found", &navigator.Error{Kind: navigator.WeekNotFound, State: navigator.GroupSelected}, http.StatusNotFound},
		{"bad date", &navigator.Error{Kind: navigator.BadDateFormat, State: navigator.Start}, http.StatusBadRequest},
		{"invalid query", fmt.Errorf("%w: group name is required", acquire.ErrInvalidQuery), http.StatusBadRequest},
		{"timeout", &navigator.Error{Kind: navigator.Timeout, State: navigator.WeekSelected}, http.StatusGatewayTimeout},
		{"other", errors.New("browser crashed"), http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t, New(&fakeCatalog{}, &fakeFetcher{err: tt.err}, nil, "", "", nil))
			status, body := get(t, ts, "/api/schedule/grp")
			if status != tt.want {
				t.Errorf("status = %d, want %d", status, tt.want)
			}
			if !strings.Contains(body, `"error"`) {
				t.Errorf("body %s has no error field", body)
			}
		})
	}
}

func TestCatalogEndpoints(t *testing.T) {
	cat := &fakeCatalog{
		institutes: []catalog.Institute{{ID: "Институт №8", Name: "Институт №8"}},
		groups: map[string][]catalog.Group{
			"Институт №8": {{ID: "М8О-101БВ-24", Name: "М8О-101БВ-24", Course: 1}},
		},
	}
	ts := newTestServer(t, New(cat, &fakeFetcher{}, nil, "", "", nil))

	status, body := get(t, ts, "/api/institutes")
	if status != http.StatusOK || !strings.Contains(body, "Институт №8") {
		t.Errorf("institutes: %d %s", status, body)
	}

	status, body = get(t, ts, "/api/groups/"+url.PathEscape("Институт №8")+"?course=1")
	if status != http.StatusOK {
		t.Fatalf("groups: %d %s", status, body)
	}
	var groups []catalog.Group
	if err := json.Unmarshal([]byte(body), &groups); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if diff := cmp.Diff(cat.groups["Институт №8"], groups); diff != "" {
		t.Errorf("groups mismatch (-want +got):\n%s", diff)
	}
	if cat.gotCourse != 1 {
		t.Errorf("course = %d, want 1", cat.gotCourse)
	}

	if status, _ := get(t, ts, "/api/groups/unknown"); status != http.StatusNotFound {
		t.Errorf("unknown institute status = %d, want 404", status)
	}
	if status, _ := get(t, ts, "/api/groups/x?course=zero"); status != http.StatusBadRequest {
		t.Errorf("bad course status = %d, want 400", status)
	}
}

func TestBasicAuth(t *testing.T) {
	ts := newTestServer(t, New(&fakeCatalog{}, &fakeFetcher{}, nil, "admin", "secret", nil))

	if status, _ := get(t, ts, "/api/institutes"); status != http.StatusUnauthorized {
		t.Errorf("no credentials: status = %d, want 401", status)
	}

	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/api/institutes", nil)
	req.SetBasicAuth("admin", "secret")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("with credentials: status = %d, want 200", resp.StatusCode)
	}
}

func TestIndexAndStats(t *testing.T) {
	ts := newTestServer(t, New(&fakeCatalog{}, &fakeFetcher{}, nil, "", "", nil))
	status, body := get(t, ts, "/")
	if status != http.StatusOK || !strings.Contains(body, "/api/schedule/") {
		t.Errorf("index: %d", status)
	}
	if status, _ := get(t, ts, "/api/stats"); status != http.StatusNotFound {
		t.Errorf("stats without db: status = %d, want 404", status)
	}

	db, err := storage.Open(filepath.Join(t.TempDir(), "schedule.db"))
	if err != nil {
		t.Fatalf("storage.Open: %v", err)
	}
	defer db.Close()
	ts = newTestServer(t, New(&fakeCatalog{}, &fakeFetcher{}, db, "", "", nil))
	status, body = get(t, ts, "/api/stats")
	if status != http.StatusOK {
		t.Fatalf("stats: %d %s", status, body)
	}
	var stats storage.Stats
	if err := json.Unmarshal([]byte(body), &stats); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if stats != (storage.Stats{}) {
		t.Errorf("stats of empty db = %+v", stats)
	}
}
