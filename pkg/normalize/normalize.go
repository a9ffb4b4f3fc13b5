// Package normalize canonicalizes extracted lessons: time ranges, teacher
// names and room labels, then removes duplicates and orders them.
package normalize

import (
	"regexp"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/schedscope/schedscope/pkg/schedule"
)

var (
	timeJunkRegex  = regexp.MustCompile(`[^\d:-]`)
	timeGroupRegex = regexp.MustCompile(`(\d{1,2})(:?)(\d{2})`)
	spaceRegex     = regexp.MustCompile(`\s+`)
)

// Time cleans a time range to "HH:MM-HH:MM". Everything but digits, colons and
// hyphens is dropped, then a colon is inserted into each HHMM group lacking
// one. Empty input yields "".
func Time(text string) string {
	if text == "" {
		return ""
	}
	text = timeJunkRegex.ReplaceAllString(text, "")
	text = timeGroupRegex.ReplaceAllString(text, "${1}:${3}")
	return strings.TrimSpace(text)
}

// Teacher collapses whitespace and shortens full names to "Surname I.O.".
// Empty input yields the "Not specified" sentinel.
func Teacher(text string) string {
	return teacher(schedule.Some(text)).OrElse(schedule.NotSpecified)
}

// Room collapses whitespace and uppercases. Empty input yields the
// "Not specified" sentinel.
func Room(text string) string {
	return room(schedule.Some(text)).OrElse(schedule.NotSpecified)
}

func collapse(s string) string {
	return strings.TrimSpace(spaceRegex.ReplaceAllString(s, " "))
}

func timeRange(o schedule.Optional) schedule.Optional {
	if !o.Valid {
		return o
	}
	t := Time(o.Value)
	if t == "" {
		return schedule.None()
	}
	return schedule.Some(t)
}

func teacher(o schedule.Optional) schedule.Optional {
	if !o.Valid {
		return o
	}
	name := collapse(o.Value)
	if name == "" {
		return schedule.None()
	}
	parts := strings.Fields(name)
	if len(parts) >= 3 {
		return schedule.Some(parts[0] + " " + initial(parts[1]) + "." + initial(parts[2]) + ".")
	}
	return schedule.Some(name)
}

func initial(s string) string {
	r, _ := utf8.DecodeRuneInString(s)
	return string(r)
}

func room(o schedule.Optional) schedule.Optional {
	if !o.Valid {
		return o
	}
	r := strings.ToUpper(collapse(o.Value))
	if r == "" {
		return schedule.None()
	}
	return schedule.Some(r)
}

// Lesson returns l with its time, teacher and room canonicalized.
func Lesson(l schedule.Lesson) schedule.Lesson {
	l.Time = timeRange(l.Time)
	l.Teacher = teacher(l.Teacher)
	l.Room = room(l.Room)
	return l
}

// Lessons normalizes every lesson, drops exact duplicates (first occurrence
// wins) and orders the result by date then time range. Lessons whose date
// could not be determined keep their encounter order after all dated ones.
// Without a window only labels that carry their own year get a date.
func Lessons(lessons []schedule.Lesson, window *schedule.WeekWindow) []schedule.Record {
	fallbackYear := 0
	if window != nil {
		fallbackYear = window.Start.Year()
	}

	type keyed struct {
		record  schedule.Record
		date    time.Time
		hasDate bool
	}

	seen := make(map[schedule.Record]struct{}, len(lessons))
	items := make([]keyed, 0, len(lessons))
	for _, l := range lessons {
		l = Lesson(l)
		r := l.Record()
		if _, dup := seen[r]; dup {
			continue
		}
		seen[r] = struct{}{}

		k := keyed{record: r, date: l.Date, hasDate: l.HasDate}
		if !k.hasDate {
			k.date, k.hasDate = schedule.ParseDateLabel(l.DateLabel, window, fallbackYear)
		}
		items = append(items, k)
	}

	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if a.hasDate != b.hasDate {
			return a.hasDate
		}
		if !a.hasDate {
			return false
		}
		if !a.date.Equal(b.date) {
			return a.date.Before(b.date)
		}
		return a.record.TimeRange < b.record.TimeRange
	})

	out := make([]schedule.Record, len(items))
	for i, it := range items {
		out[i] = it.record
	}
	return out
}
