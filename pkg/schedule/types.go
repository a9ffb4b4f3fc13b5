package schedule

import (
	"strings"
	"time"
)

const (
	NoClasses    = "No classes"
	NotSpecified = "Not specified"
)

// Query identifies one schedule request: a group plus either a target date
// (DD.MM.YYYY) or a 1-based week number in the site's week picker.
type Query struct {
	Group string `json:"group"`
	Date  string `json:"date,omitempty"`
	Week  int    `json:"week,omitempty"`
}

// Normalized returns the query with surrounding whitespace removed.
// Two queries address the same cache entry iff their normalized forms are equal.
func (q Query) Normalized() Query {
	return Query{
		Group: strings.TrimSpace(q.Group),
		Date:  strings.TrimSpace(q.Date),
		Week:  q.Week,
	}
}

func (q Query) String() string {
	q = q.Normalized()
	if q.Date != "" {
		return q.Group + "@" + q.Date
	}
	if q.Week > 0 {
		return q.Group + "#" + itoa(q.Week)
	}
	return q.Group
}

// Optional is a value that may be absent. Sentinel strings are only produced
// when converting to a Record.
type Optional struct {
	Value string
	Valid bool
}

func Some(v string) Optional { return Optional{Value: v, Valid: true} }

func None() Optional { return Optional{} }

// OrElse returns the value if present, otherwise def.
func (o Optional) OrElse(def string) string {
	if !o.Valid {
		return def
	}
	return o.Value
}

// WeekWindow is an inclusive calendar range for one fetched week.
type WeekWindow struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Contains reports whether the calendar day of t lies inside the window.
func (w WeekWindow) Contains(t time.Time) bool {
	d := truncateDay(t)
	return !d.Before(truncateDay(w.Start)) && !d.After(truncateDay(w.End))
}

// Days lists every calendar date of the window in order.
func (w WeekWindow) Days() []time.Time {
	var out []time.Time
	end := truncateDay(w.End)
	for d := truncateDay(w.Start); !d.After(end); d = d.AddDate(0, 0, 1) {
		out = append(out, d)
	}
	return out
}

func (w WeekWindow) String() string {
	return w.Start.Format(DateLayout) + " - " + w.End.Format(DateLayout)
}

// Lesson is the internal form of one lesson entry. Extracted lessons carry raw
// text; normalized lessons carry canonical values.
type Lesson struct {
	DateLabel string
	Weekday   string
	Time      Optional
	Subject   string
	Type      string
	Teacher   Optional
	Room      Optional

	// NoClasses marks a placeholder for a day without lessons.
	NoClasses bool

	// Date is the calendar date behind DateLabel when it could be determined.
	Date    time.Time
	HasDate bool
}

// Record converts the lesson to its seven-column boundary form.
func (l Lesson) Record() Record {
	subject := l.Subject
	if l.NoClasses {
		subject = NoClasses
	}
	return Record{
		DateLabel:   l.DateLabel,
		WeekdayName: l.Weekday,
		TimeRange:   l.Time.OrElse(""),
		Subject:     subject,
		LessonType:  l.Type,
		Teacher:     l.Teacher.OrElse(NotSpecified),
		Room:        l.Room.OrElse(NotSpecified),
	}
}

// Record is the canonical unit of output.
type Record struct {
	DateLabel   string `json:"date_label"`
	WeekdayName string `json:"weekday_name"`
	TimeRange   string `json:"time_range"`
	Subject     string `json:"subject"`
	LessonType  string `json:"lesson_type"`
	Teacher     string `json:"teacher"`
	Room        string `json:"room"`
}

// Columns are the tabular export headers, in order.
var Columns = []string{"date_label", "weekday_name", "time_range", "subject", "lesson_type", "teacher", "room"}

// Row returns the record's fields in Columns order.
func (r Record) Row() []string {
	return []string{r.DateLabel, r.WeekdayName, r.TimeRange, r.Subject, r.LessonType, r.Teacher, r.Room}
}

// IsPlaceholder reports whether the record stands for a day without lessons.
func (r Record) IsPlaceholder() bool {
	return r.Subject == NoClasses
}

// WarningKind classifies non-fatal conditions surfaced alongside a result.
type WarningKind string

const (
	ExtractionWarning WarningKind = "extraction"
	ValidationWarning WarningKind = "validation"
	CacheWarning      WarningKind = "cache"
)

type Warning struct {
	Kind    WarningKind `json:"kind"`
	Message string      `json:"message"`
}

// WeekdayName derives the weekday from a date label: the part before the
// first comma, or the whole label when there is none.
func WeekdayName(label string) string {
	if i := strings.Index(label, ","); i >= 0 {
		return strings.TrimSpace(label[:i])
	}
	return label
}

// DistinctDates counts distinct date labels in records.
func DistinctDates(records []Record) int {
	seen := make(map[string]struct{}, len(records))
	for _, r := range records {
		seen[r.DateLabel] = struct{}{}
	}
	return len(seen)
}
