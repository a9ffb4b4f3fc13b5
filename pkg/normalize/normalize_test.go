package normalize

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/schedscope/schedscope/pkg/schedule"
)

func TestTime(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"0900-1030", "09:00-10:30"},
		{"09:00 - 10:30", "09:00-10:30"},
		{"09:00-10:30", "09:00-10:30"},
		{"9.00-10.30", "9:00-10:30"},
		{"9:00-10:30 (ауд.)", "9:00-10:30"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := Time(tt.in); got != tt.want {
			t.Errorf("Time(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestTeacher(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Ivanov Ivan Ivanovich", "Ivanov I.I."},
		{"  Иванов   Иван  Иванович ", "Иванов И.И."},
		{"SingleToken", "SingleToken"},
		{"Petrov  P.", "Petrov P."},
		{"", schedule.NotSpecified},
		{"   ", schedule.NotSpecified},
	}
	for _, tt := range tests {
		if got := Teacher(tt.in); got != tt.want {
			t.Errorf("Teacher(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestRoom(t *testing.T) {
	if got := Room("  a-101 "); got != "A-101" {
		t.Fatalf("got %q", got)
	}
	if got := Room("гук  б-320"); got != "ГУК Б-320" {
		t.Fatalf("got %q", got)
	}
	if got := Room(""); got != schedule.NotSpecified {
		t.Fatalf("got %q", got)
	}
}

func lesson(label, tm, subject string) schedule.Lesson {
	return schedule.Lesson{
		DateLabel: label,
		Weekday:   schedule.WeekdayName(label),
		Time:      schedule.Some(tm),
		Subject:   subject,
		Type:      "ЛК",
		Teacher:   schedule.Some("Ivanov Ivan Ivanovich"),
		Room:      schedule.Some("a-101"),
	}
}

func TestLessonsDedupAndOrder(t *testing.T) {
	window := &schedule.WeekWindow{
		Start: time.Date(2025, 2, 10, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2025, 2, 16, 0, 0, 0, 0, time.UTC),
	}
	in := []schedule.Lesson{
		lesson("Вт, 11 февраля", "13:00-14:30", "Physics"),
		lesson("Пн, 10 февраля", "10:45-12:15", "Math"),
		lesson("Not specified", "09:00-10:30", "Orphan"),
		lesson("Пн, 10 февраля", "0900-1030", "Math"),
		lesson("Пн, 10 февраля", "09:00-10:30", "Math"),
		{DateLabel: "Ср, 12 февраля", Weekday: "Ср", NoClasses: true},
	}

	got := Lessons(in, window)
	want := []schedule.Record{
		{DateLabel: "Пн, 10 февраля", WeekdayName: "Пн", TimeRange: "09:00-10:30", Subject: "Math", LessonType: "ЛК", Teacher: "Ivanov I.I.", Room: "A-101"},
		{DateLabel: "Пн, 10 февраля", WeekdayName: "Пн", TimeRange: "10:45-12:15", Subject: "Math", LessonType: "ЛК", Teacher: "Ivanov I.I.", Room: "A-101"},
		{DateLabel: "Вт, 11 февраля", WeekdayName: "Вт", TimeRange: "13:00-14:30", Subject: "Physics", LessonType: "ЛК", Teacher: "Ivanov I.I.", Room: "A-101"},
		{DateLabel: "Ср, 12 февраля", WeekdayName: "Ср", TimeRange: "", Subject: schedule.NoClasses, Teacher: schedule.NotSpecified, Room: schedule.NotSpecified},
		{DateLabel: "Not specified", WeekdayName: "Not specified", TimeRange: "09:00-10:30", Subject: "Orphan", LessonType: "ЛК", Teacher: "Ivanov I.I.", Room: "A-101"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("unexpected records (-want +got):\n%s", diff)
	}
}

func TestLessonsEmptyTimeSortsFirst(t *testing.T) {
	in := []schedule.Lesson{
		lesson("10.02.2025", "09:00-10:30", "B"),
		{DateLabel: "10.02.2025", Subject: "A", Time: schedule.None()},
	}
	got := Lessons(in, nil)
	if got[0].Subject != "A" || got[1].Subject != "B" {
		t.Fatalf("expected empty time range first, got %#v", got)
	}
}

func TestLessonsWithoutWindowKeepYearlessOrder(t *testing.T) {
	in := []schedule.Lesson{
		lesson("Вт, 11 февраля", "09:00-10:30", "Physics"),
		lesson("Пн, 10 февраля", "09:00-10:30", "Math"),
		lesson("09.02.2025", "09:00-10:30", "History"),
	}
	got := Lessons(in, nil)
	var subjects []string
	for _, r := range got {
		subjects = append(subjects, r.Subject)
	}
	want := []string{"History", "Physics", "Math"}
	if diff := cmp.Diff(want, subjects); diff != "" {
		t.Errorf("order mismatch (-want +got):\n%s", diff)
	}
}
