// Package extract turns a rendered week page (or an equivalent JSON document)
// into raw lesson entries, one placeholder per day without classes.
package extract

import (
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"

	"github.com/schedscope/schedscope/internal/utils"
	"github.com/schedscope/schedscope/pkg/schedule"
)

const fullWeek = 7

// Selectors locate the parts of a week page.
type Selectors struct {
	Title   string
	Day     string
	DayDate string
	Lesson  string
	Subject string
	Badge   string
	Detail  string
}

// DefaultSelectors match the mai.ru week page markup.
var DefaultSelectors = Selectors{
	Title:   "h1.schedule-title",
	Day:     "ul.step li.step-item",
	DayDate: "span.step-title",
	Lesson:  "div.step-content > div.mb-4",
	Subject: "p.fw-semi-bold",
	Badge:   "span.badge",
	Detail:  "ul.list-inline li.list-inline-item",
}

// Result is the raw, un-normalized output of one extraction.
type Result struct {
	Window   *schedule.WeekWindow
	Lessons  []schedule.Lesson
	Days     int // day containers found in the source
	Warnings []schedule.Warning
}

type Extractor struct {
	sel Selectors
	log logrus.FieldLogger
}

func New(sel Selectors, log logrus.FieldLogger) *Extractor {
	if sel == (Selectors{}) {
		sel = DefaultSelectors
	}
	return &Extractor{sel: sel, log: utils.OrDiscard(log)}
}

// Parse sniffs the content and dispatches to FromJSON or FromHTML.
func (e *Extractor) Parse(content string) (*Result, error) {
	trimmed := strings.TrimSpace(content)
	if strings.HasPrefix(trimmed, "{") && gjson.Valid(trimmed) {
		return e.FromJSON(trimmed)
	}
	return e.FromHTML(content)
}

// FromHTML extracts lessons from a rendered week page.
func (e *Extractor) FromHTML(content string) (*Result, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	res := &Result{}
	title := strings.TrimSpace(doc.Find(e.sel.Title).First().Text())
	if w, ok := schedule.ParseRange(title); ok {
		res.Window = &w
		e.log.Debugf("Week window: %s", w)
	} else {
		e.log.Warnf("Could not determine week window from title %q", title)
	}

	days := doc.Find(e.sel.Day)
	res.Days = days.Length()
	e.log.Debugf("Found %d day containers", res.Days)

	days.Each(func(i int, day *goquery.Selection) {
		label := strings.TrimSpace(day.Find(e.sel.DayDate).First().Text())
		if label == "" {
			label = schedule.NotSpecified
		}

		lessons := day.Find(e.sel.Lesson)
		if lessons.Length() == 0 {
			res.Lessons = append(res.Lessons, e.placeholder(label, res.Window))
			return
		}

		parsed := 0
		lessons.Each(func(j int, ls *goquery.Selection) {
			l, err := e.lessonFromHTML(label, ls)
			if err != nil {
				e.warn(res, "day %q lesson %d: %v", label, j+1, err)
				return
			}
			e.stampDate(&l, res.Window)
			res.Lessons = append(res.Lessons, l)
			parsed++
		})
		// A day whose lessons all failed still occupies its slot.
		if parsed == 0 {
			res.Lessons = append(res.Lessons, e.placeholder(label, res.Window))
		}
	})

	e.fillGaps(res)
	return res, nil
}

func (e *Extractor) lessonFromHTML(label string, ls *goquery.Selection) (schedule.Lesson, error) {
	subject := ls.Find(e.sel.Subject).First()
	if subject.Length() == 0 {
		return schedule.Lesson{}, fmt.Errorf("no subject element")
	}
	var details []string
	ls.Find(e.sel.Detail).Each(func(_ int, s *goquery.Selection) {
		details = append(details, strings.TrimSpace(s.Text()))
	})
	return schedule.Lesson{
		DateLabel: label,
		Weekday:   schedule.WeekdayName(label),
		Subject:   strings.TrimSpace(subject.Text()),
		Type:      strings.TrimSpace(ls.Find(e.sel.Badge).First().Text()),
		Time:      detail(details, 0),
		Teacher:   detail(details, 1),
		Room:      detail(details, 2),
	}, nil
}

// FromJSON extracts lessons from a document shaped like
// {"title": "...", "days": [{"date", "day_name", "lessons": [{"time", "subject", "type", "teacher", "room"}]}]}.
func (e *Extractor) FromJSON(content string) (*Result, error) {
	if !gjson.Valid(content) {
		return nil, fmt.Errorf("parse json: invalid document")
	}
	res := &Result{}
	if w, ok := schedule.ParseRange(gjson.Get(content, "title").String()); ok {
		res.Window = &w
	}

	days := gjson.Get(content, "days").Array()
	res.Days = len(days)
	for i, day := range days {
		if !day.IsObject() {
			e.warn(res, "day %d: not an object", i+1)
			continue
		}
		label := strings.TrimSpace(day.Get("date").String())
		if label == "" {
			label = schedule.NotSpecified
		}
		weekday := strings.TrimSpace(day.Get("day_name").String())
		if weekday == "" {
			weekday = schedule.WeekdayName(label)
		}

		lessons := day.Get("lessons").Array()
		if len(lessons) == 0 {
			p := e.placeholder(label, res.Window)
			p.Weekday = weekday
			res.Lessons = append(res.Lessons, p)
			continue
		}
		parsed := 0
		for j, ls := range lessons {
			subject := ls.Get("subject")
			if !ls.IsObject() || !subject.Exists() {
				e.warn(res, "day %q lesson %d: no subject", label, j+1)
				continue
			}
			parsed++
			l := schedule.Lesson{
				DateLabel: label,
				Weekday:   weekday,
				Subject:   strings.TrimSpace(subject.String()),
				Type:      strings.TrimSpace(ls.Get("type").String()),
				Time:      field(ls, "time"),
				Teacher:   field(ls, "teacher"),
				Room:      field(ls, "room"),
			}
			e.stampDate(&l, res.Window)
			res.Lessons = append(res.Lessons, l)
		}
		if parsed == 0 {
			p := e.placeholder(label, res.Window)
			p.Weekday = weekday
			res.Lessons = append(res.Lessons, p)
		}
	}

	e.fillGaps(res)
	return res, nil
}

func (e *Extractor) placeholder(label string, window *schedule.WeekWindow) schedule.Lesson {
	l := schedule.Lesson{
		DateLabel: label,
		Weekday:   schedule.WeekdayName(label),
		NoClasses: true,
	}
	e.stampDate(&l, window)
	return l
}

func (e *Extractor) stampDate(l *schedule.Lesson, window *schedule.WeekWindow) {
	if window == nil {
		return
	}
	if d, ok := schedule.ParseDateLabel(l.DateLabel, window, window.Start.Year()); ok {
		l.Date, l.HasDate = d, true
	}
}

// fillGaps adds a placeholder for every window date that no found day covers.
// Pages that already list a full week of distinct days are left alone, so
// labels that do not parse as dates never double the week.
func (e *Extractor) fillGaps(res *Result) {
	if res.Window == nil {
		return
	}

	covered := make(map[time.Time]bool)
	labels := make(map[string]bool)
	for _, l := range res.Lessons {
		labels[l.DateLabel] = true
		if l.HasDate {
			covered[l.Date] = true
		}
	}
	if len(labels) >= fullWeek {
		return
	}

	for _, d := range res.Window.Days() {
		label := schedule.Label(d)
		if covered[d] || labels[label] {
			continue
		}
		e.log.Debugf("Synthesizing empty day %s", label)
		res.Lessons = append(res.Lessons, schedule.Lesson{
			DateLabel: label,
			Weekday:   d.Format("Mon"),
			NoClasses: true,
			Date:      d,
			HasDate:   true,
		})
	}
}

func (e *Extractor) warn(res *Result, format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	e.log.Warnf("Failed to parse lesson: %s", msg)
	res.Warnings = append(res.Warnings, schedule.Warning{Kind: schedule.ExtractionWarning, Message: msg})
}

func detail(details []string, i int) schedule.Optional {
	if i >= len(details) || details[i] == "" {
		return schedule.None()
	}
	return schedule.Some(details[i])
}

func field(r gjson.Result, name string) schedule.Optional {
	v := r.Get(name)
	if !v.Exists() || v.Type == gjson.Null {
		return schedule.None()
	}
	s := strings.TrimSpace(v.String())
	if s == "" {
		return schedule.None()
	}
	return schedule.Some(s)
}
