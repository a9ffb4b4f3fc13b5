package cmd

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/schedscope/schedscope/pkg/acquire"
	"github.com/schedscope/schedscope/pkg/schedule"
	"github.com/schedscope/schedscope/pkg/storage"
)

func TestBuildQueries(t *testing.T) {
	tests := []struct {
		name    string
		groups  []string
		date    string
		week    int
		want    []schedule.Query
		wantErr bool
	}{
		{
			name:   "dedupe and trim",
			groups: []string{" М8О-101БВ-24", "М8О-102БВ-24", "М8О-101БВ-24 ", ""},
			date:   "12.02.2025",
			want: []schedule.Query{
				{Group: "М8О-101БВ-24", Date: "12.02.2025"},
				{Group: "М8О-102БВ-24", Date: "12.02.2025"},
			},
		},
		{
			name:   "week",
			groups: []string{"М8О-101БВ-24"},
			week:   3,
			want:   []schedule.Query{{Group: "М8О-101БВ-24", Week: 3}},
		},
		{name: "no group", groups: []string{" "}, wantErr: true},
		{name: "date and week", groups: []string{"g"}, date: "12.02.2025", week: 2, wantErr: true},
		{name: "week out of range", groups: []string{"g"}, week: 53, wantErr: true},
		{name: "bad date", groups: []string{"g"}, date: "2025-02-12", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := buildQueries(tt.groups, tt.date, tt.week)
			if (err != nil) != tt.wantErr {
				t.Fatalf("buildQueries() error = %v, wantErr %v", err, tt.wantErr)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("buildQueries() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestStorageWeek(t *testing.T) {
	window := &schedule.WeekWindow{
		Start: time.Date(2025, 2, 10, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2025, 2, 16, 0, 0, 0, 0, time.UTC),
	}
	now := time.Date(2024, 12, 30, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name       string
		res        *acquire.Result
		week, year int
		want       storage.Week
	}{
		{"from window", &acquire.Result{Window: window}, 0, 0, storage.Week{Number: 7, Year: 2025, Window: window}},
		{"window wins over picker ordinal", &acquire.Result{Window: window}, 3, 2024, storage.Week{Number: 7, Year: 2025, Window: window}},
		{"no window", &acquire.Result{}, 0, 0, storage.Week{Number: 1, Year: 2025}},
		{"no window uses flags", &acquire.Result{}, 3, 2024, storage.Week{Number: 3, Year: 2024}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := storageWeek(tt.res, tt.week, tt.year, now)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("storageWeek() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestPerGroupPath(t *testing.T) {
	got := perGroupPath("out/schedule.csv", "М8О-101БВ-24")
	if want := "out/schedule_М8О-101БВ-24.csv"; got != want {
		t.Errorf("perGroupPath() = %q, want %q", got, want)
	}
	if got := perGroupPath("schedule", "a/b c"); got != "schedule_a_b_c" {
		t.Errorf("perGroupPath() = %q", got)
	}
}

func TestRender(t *testing.T) {
	records := []schedule.Record{{
		DateLabel: "Пн, 10 февраля", WeekdayName: "Пн", TimeRange: "09:00 – 10:30",
		Subject: "Математика", LessonType: "ЛК", Teacher: "Иванов И.И.", Room: "3-301",
	}}

	var buf bytes.Buffer
	if err := render(&buf, records, "lines", "ws", ";"); err != nil {
		t.Fatal(err)
	}
	if got := buf.String(); got != "Пн;Математика\n" {
		t.Errorf("lines output = %q", got)
	}

	buf.Reset()
	if err := render(&buf, records, "csv", "", ""); err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(buf.String(), "date_label,") {
		t.Errorf("csv output = %q", buf.String())
	}
}
