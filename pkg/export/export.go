// Package export writes lesson records as CSV, a terminal table or
// delimited lines.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/schedscope/schedscope/pkg/schedule"
)

// WriteCSV writes a header row followed by one row per record.
func WriteCSV(w io.Writer, records []schedule.Record) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(schedule.Columns); err != nil {
		return err
	}
	for _, r := range records {
		if err := cw.Write(r.Row()); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteTable renders records as a rounded table.
func WriteTable(w io.Writer, records []schedule.Record) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	header := make(table.Row, 0, len(schedule.Columns))
	for _, c := range schedule.Columns {
		header = append(header, c)
	}
	t.AppendHeader(header)

	prev := ""
	for _, r := range records {
		if prev != "" && r.DateLabel != prev {
			t.AppendSeparator()
		}
		prev = r.DateLabel
		row := make(table.Row, 0, len(schedule.Columns))
		for _, v := range r.Row() {
			row = append(row, v)
		}
		t.AppendRow(row)
	}

	t.SetStyle(table.StyleRounded)
	t.Render()
}

// DefaultFlags prints date, time, subject, teacher and room.
const DefaultFlags = "dtspr"

// WriteLines prints one line per record with the fields selected by flags,
// joined by delimiter:
//
//	d date label, w weekday, t time range, s subject, y lesson type,
//	p teacher, r room
func WriteLines(w io.Writer, records []schedule.Record, flags, delimiter string) error {
	for _, r := range records {
		line, err := createLine(r, flags, delimiter)
		if err != nil {
			return err
		}
		if len(line) > 0 {
			if _, err := fmt.Fprintln(w, line); err != nil {
				return err
			}
		}
	}
	return nil
}

func createLine(r schedule.Record, flags, delimiter string) (string, error) {
	var line string
	for _, f := range flags {
		switch f {
		case 'd':
			line += r.DateLabel + delimiter
		case 'w':
			line += r.WeekdayName + delimiter
		case 't':
			line += r.TimeRange + delimiter
		case 's':
			line += r.Subject + delimiter
		case 'y':
			line += r.LessonType + delimiter
		case 'p':
			line += r.Teacher + delimiter
		case 'r':
			line += r.Room + delimiter
		default:
			return "", fmt.Errorf("invalid print flag %q", f)
		}
	}
	return strings.TrimSuffix(line, delimiter), nil
}
