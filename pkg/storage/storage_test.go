package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/schedscope/schedscope/pkg/schedule"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "schedule.sqlite"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

var records = []schedule.Record{
	{DateLabel: "Пн, 10 февраля", WeekdayName: "Пн", TimeRange: "09:00-10:30", Subject: "Математика", LessonType: "ЛК", Teacher: "Иванов И.И.", Room: "3-301"},
	{DateLabel: "Пн, 10 февраля", WeekdayName: "Пн", TimeRange: "10:45-12:15", Subject: "Физика", LessonType: "ПЗ", Teacher: "Иванов И.И.", Room: schedule.NotSpecified},
	{DateLabel: "Вт, 11 февраля", WeekdayName: "Вт", Subject: schedule.NoClasses, Teacher: schedule.NotSpecified, Room: schedule.NotSpecified},
	{DateLabel: "Ср, 12 февраля", WeekdayName: "Ср", TimeRange: "13:00-14:30", Subject: "Химия", LessonType: "ЛР", Teacher: "Сидорова А.В.", Room: "3-301"},
}

func TestSaveAndGetSchedule(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	window := &schedule.WeekWindow{
		Start: time.Date(2025, 2, 10, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2025, 2, 16, 0, 0, 0, 0, time.UTC),
	}

	if err := db.SaveSchedule(ctx, "М8О-101БВ-24", Week{Number: 7, Year: 2025, Window: window}, records); err != nil {
		t.Fatalf("SaveSchedule: %v", err)
	}

	got, err := db.GetSchedule(ctx, "М8О-101БВ-24", 7, 2025)
	if err != nil {
		t.Fatalf("GetSchedule: %v", err)
	}
	if diff := cmp.Diff(records, got); diff != "" {
		t.Errorf("read-back mismatch (-want +got):\n%s", diff)
	}

	none, err := db.GetSchedule(ctx, "М8О-101БВ-24", 8, 2025)
	if err != nil {
		t.Fatalf("GetSchedule: %v", err)
	}
	if len(none) != 0 {
		t.Errorf("unexpected records for another week: %v", none)
	}
}

func TestSaveScheduleIsIdempotent(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	week := Week{Number: 7, Year: 2025}

	for i := 0; i < 2; i++ {
		if err := db.SaveSchedule(ctx, "М8О-101БВ-24", week, records); err != nil {
			t.Fatalf("SaveSchedule #%d: %v", i+1, err)
		}
	}
	if err := db.SaveSchedule(ctx, "М8О-102БВ-24", week, records[:1]); err != nil {
		t.Fatalf("SaveSchedule: %v", err)
	}

	stats, err := db.GetStats(ctx)
	if err != nil {
		t.Fatalf("GetStats: %v", err)
	}
	want := Stats{Groups: 2, Weeks: 1, Teachers: 2, Rooms: 1, Lessons: 5}
	if stats != want {
		t.Errorf("stats = %+v, want %+v", stats, want)
	}

	groups, err := db.ListGroups(ctx)
	if err != nil {
		t.Fatalf("ListGroups: %v", err)
	}
	if len(groups) != 2 {
		t.Fatalf("groups = %d, want 2", len(groups))
	}
	if g := groups[0]; g.Name != "М8О-101БВ-24" || g.Weeks != 1 || g.Lessons != 4 {
		t.Errorf("first group = %+v", g)
	}
	if groups[0].LastSaved.IsZero() {
		t.Error("LastSaved not set")
	}
}

func TestSaveScheduleRejectsInvalidWeek(t *testing.T) {
	db := openTestDB(t)
	if err := db.SaveSchedule(context.Background(), "М8О-101БВ-24", Week{Number: 0, Year: 2025}, records); err == nil {
		t.Error("expected an error for week 0")
	}
	if err := db.SaveSchedule(context.Background(), "", Week{Number: 1, Year: 2025}, records); err == nil {
		t.Error("expected an error for an empty group")
	}
}
