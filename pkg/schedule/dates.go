package schedule

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// DateLayout is the site's DD.MM.YYYY date format.
const DateLayout = "02.01.2006"

var (
	rangeRegex     = regexp.MustCompile(`(\d{1,2}\.\d{1,2}\.\d{4})\s*-\s*(\d{1,2}\.\d{1,2}\.\d{4})`)
	numericRegex   = regexp.MustCompile(`^(\d{1,2})\.(\d{1,2})(?:\.(\d{4}))?$`)
	dayMonthRegex  = regexp.MustCompile(`(\d{1,2})\s+(\p{L}+)`)
	strictDateExpr = regexp.MustCompile(`^\d{2}\.\d{2}\.\d{4}$`)
)

// months maps lowercase month names (English, Russian nominative and
// genitive, and common abbreviations) to their number.
var months = map[string]time.Month{}

func init() {
	names := map[time.Month][]string{
		time.January:   {"january", "jan", "январь", "января", "янв"},
		time.February:  {"february", "feb", "февраль", "февраля", "фев"},
		time.March:     {"march", "mar", "март", "марта", "мар"},
		time.April:     {"april", "apr", "апрель", "апреля", "апр"},
		time.May:       {"may", "май", "мая"},
		time.June:      {"june", "jun", "июнь", "июня", "июн"},
		time.July:      {"july", "jul", "июль", "июля", "июл"},
		time.August:    {"august", "aug", "август", "августа", "авг"},
		time.September: {"september", "sep", "sept", "сентябрь", "сентября", "сен"},
		time.October:   {"october", "oct", "октябрь", "октября", "окт"},
		time.November:  {"november", "nov", "ноябрь", "ноября", "ноя"},
		time.December:  {"december", "dec", "декабрь", "декабря", "дек"},
	}
	for m, list := range names {
		for _, n := range list {
			months[n] = m
		}
	}
}

// ParseDate parses a strict DD.MM.YYYY date.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if !strictDateExpr.MatchString(s) {
		return time.Time{}, fmt.Errorf("date %q is not in DD.MM.YYYY format", s)
	}
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("date %q is not in DD.MM.YYYY format: %w", s, err)
	}
	return t, nil
}

// ParseRange parses "DD.MM.YYYY - DD.MM.YYYY" (surrounding text is ignored).
func ParseRange(s string) (WeekWindow, bool) {
	m := rangeRegex.FindStringSubmatch(s)
	if m == nil {
		return WeekWindow{}, false
	}
	start, err := time.Parse("2.1.2006", m[1])
	if err != nil {
		return WeekWindow{}, false
	}
	end, err := time.Parse("2.1.2006", m[2])
	if err != nil || end.Before(start) {
		return WeekWindow{}, false
	}
	return WeekWindow{Start: start, End: end}, true
}

// ParseDateLabel makes a best-effort attempt at turning a rendered day label
// ("Пн, 10 февраля", "Mon, 10 February", "10.02.2025") into a date. When the
// label carries no year, the year is taken from window so that the date falls
// inside it; without a window the fallback year is used. A yearless label
// with neither a window nor a fallback year (0) is left unparsed.
func ParseDateLabel(label string, window *WeekWindow, fallbackYear int) (time.Time, bool) {
	label = strings.TrimSpace(label)
	if label == "" {
		return time.Time{}, false
	}
	rest := label
	if i := strings.Index(rest, ","); i >= 0 {
		rest = strings.TrimSpace(rest[i+1:])
	}

	var day int
	var month time.Month
	year := 0

	if m := numericRegex.FindStringSubmatch(rest); m != nil {
		day, _ = strconv.Atoi(m[1])
		mm, _ := strconv.Atoi(m[2])
		month = time.Month(mm)
		if m[3] != "" {
			year, _ = strconv.Atoi(m[3])
		}
	} else if m := dayMonthRegex.FindStringSubmatch(rest); m != nil {
		day, _ = strconv.Atoi(m[1])
		mon, ok := months[strings.ToLower(m[2])]
		if !ok {
			return time.Time{}, false
		}
		month = mon
	} else {
		return time.Time{}, false
	}
	if month < time.January || month > time.December || day < 1 || day > 31 {
		return time.Time{}, false
	}

	if year != 0 {
		return validDate(year, month, day)
	}
	if window != nil {
		for _, y := range []int{window.Start.Year(), window.End.Year()} {
			if t, ok := validDate(y, month, day); ok && window.Contains(t) {
				return t, true
			}
		}
		return validDate(window.Start.Year(), month, day)
	}
	if fallbackYear == 0 {
		return time.Time{}, false
	}
	return validDate(fallbackYear, month, day)
}

func validDate(year int, month time.Month, day int) (time.Time, bool) {
	t := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	if t.Day() != day || t.Month() != month {
		return time.Time{}, false
	}
	return t, true
}

// Label renders a synthesized day label such as "Mon, 10 February".
func Label(t time.Time) string {
	return t.Format("Mon, 02 January")
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// SameDay reports whether a and b fall on the same calendar day.
func SameDay(a, b time.Time) bool {
	return truncateDay(a).Equal(truncateDay(b))
}

func itoa(i int) string {
	return strconv.Itoa(i)
}
