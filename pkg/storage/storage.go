// Package storage persists fetched schedules in SQLite.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/schedscope/schedscope/internal/utils"
	"github.com/schedscope/schedscope/pkg/schedule"
)

// DefaultLockTimeout bounds waiting for another writer of the same database.
const DefaultLockTimeout = 30 * time.Second

type DB struct {
	sql  *sql.DB
	path string
}

func Open(path string) (*DB, error) {
	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	// Ensure schema exists for convenience.
	if _, err := db.Exec(`
CREATE TABLE IF NOT EXISTS groups (
  id   INTEGER PRIMARY KEY,
  name TEXT NOT NULL UNIQUE
);
CREATE TABLE IF NOT EXISTS weeks (
  id          INTEGER PRIMARY KEY,
  week_number INTEGER NOT NULL,
  year        INTEGER NOT NULL,
  start_date  TEXT,
  end_date    TEXT,
  UNIQUE(week_number, year)
);
CREATE TABLE IF NOT EXISTS teachers (
  id        INTEGER PRIMARY KEY,
  full_name TEXT NOT NULL UNIQUE
);
CREATE TABLE IF NOT EXISTS rooms (
  id   INTEGER PRIMARY KEY,
  name TEXT NOT NULL UNIQUE
);
CREATE TABLE IF NOT EXISTS lessons (
  id            INTEGER PRIMARY KEY,
  group_id      INTEGER NOT NULL REFERENCES groups(id),
  week_id       INTEGER NOT NULL REFERENCES weeks(id),
  day_index     INTEGER NOT NULL,
  day_of_week   TEXT NOT NULL,
  date_label    TEXT NOT NULL,
  lesson_number INTEGER NOT NULL,
  time_range    TEXT NOT NULL DEFAULT '',
  subject       TEXT NOT NULL,
  lesson_type   TEXT NOT NULL DEFAULT '',
  teacher_id    INTEGER REFERENCES teachers(id),
  room_id       INTEGER REFERENCES rooms(id),
  saved_at      DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_lessons_group_week ON lessons(group_id, week_id);
    `); err != nil {
		return nil, err
	}
	return &DB{sql: db, path: path}, nil
}

func (d *DB) Close() error {
	if d == nil || d.sql == nil {
		return nil
	}
	return d.sql.Close()
}

// lock takes the cross-process write lock of the database file.
func (d *DB) lock(ctx context.Context) (func(), error) {
	if d.path == "" || d.path == ":memory:" {
		return func() {}, nil
	}
	fl, err := utils.NewFileLock(d.path)
	if err != nil {
		return nil, err
	}
	lctx, cancel := context.WithTimeout(ctx, DefaultLockTimeout)
	defer cancel()
	if err := fl.Lock(lctx); err != nil {
		return nil, err
	}
	return func() { _ = fl.Unlock() }, nil
}

// SaveSchedule stores the records of one group and week. Group, week,
// teacher and room rows are upserted; the lessons of that group and week are
// replaced, so saving the same schedule twice leaves one copy.
func (d *DB) SaveSchedule(ctx context.Context, group string, week Week, records []schedule.Record) (err error) {
	if group == "" {
		return errors.New("group name is required")
	}
	if week.Number < 1 || week.Year < 1 {
		return fmt.Errorf("invalid week %d of %d", week.Number, week.Year)
	}

	unlock, err := d.lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	tx, err := d.sql.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	groupID, err := upsertName(ctx, tx, "groups", "name", group)
	if err != nil {
		return err
	}

	var start, end interface{}
	if week.Window != nil {
		start = week.Window.Start.Format(schedule.DateLayout)
		end = week.Window.End.Format(schedule.DateLayout)
	}
	if _, err = tx.ExecContext(ctx, `INSERT INTO weeks(week_number, year, start_date, end_date) VALUES(?,?,?,?)
ON CONFLICT(week_number, year) DO UPDATE SET
  start_date = COALESCE(excluded.start_date, weeks.start_date),
  end_date = COALESCE(excluded.end_date, weeks.end_date)`, week.Number, week.Year, start, end); err != nil {
		return err
	}
	var weekID int64
	if err = tx.QueryRowContext(ctx, "SELECT id FROM weeks WHERE week_number = ? AND year = ?", week.Number, week.Year).Scan(&weekID); err != nil {
		return err
	}

	if _, err = tx.ExecContext(ctx, "DELETE FROM lessons WHERE group_id = ? AND week_id = ?", groupID, weekID); err != nil {
		return err
	}

	dayIndex, lessonNumber := 0, 0
	prevLabel := ""
	for i, r := range records {
		if i == 0 || r.DateLabel != prevLabel {
			dayIndex++
			lessonNumber = 0
			prevLabel = r.DateLabel
		}
		lessonNumber++

		var teacherID, roomID sql.NullInt64
		if teacherID, err = optionalName(ctx, tx, "teachers", "full_name", r.Teacher); err != nil {
			return err
		}
		if roomID, err = optionalName(ctx, tx, "rooms", "name", r.Room); err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx, `INSERT INTO lessons(group_id, week_id, day_index, day_of_week, date_label, lesson_number, time_range, subject, lesson_type, teacher_id, room_id)
VALUES(?,?,?,?,?,?,?,?,?,?,?)`, groupID, weekID, dayIndex, r.WeekdayName, r.DateLabel, lessonNumber, r.TimeRange, r.Subject, r.LessonType, teacherID, roomID)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

// GetSchedule reads back the records of a group and week, ordered by day and
// lesson number. Missing teachers and rooms come back as "Not specified".
func (d *DB) GetSchedule(ctx context.Context, group string, number, year int) ([]schedule.Record, error) {
	q := `
SELECT l.date_label, l.day_of_week, l.time_range, l.subject, l.lesson_type,
       COALESCE(t.full_name, ?), COALESCE(r.name, ?)
FROM lessons l
JOIN groups g ON l.group_id = g.id
JOIN weeks w ON l.week_id = w.id
LEFT JOIN teachers t ON l.teacher_id = t.id
LEFT JOIN rooms r ON l.room_id = r.id
WHERE g.name = ? AND w.week_number = ? AND w.year = ?
ORDER BY l.day_index, l.lesson_number`
	rows, err := d.sql.QueryContext(ctx, q, schedule.NotSpecified, schedule.NotSpecified, group, number, year)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []schedule.Record
	for rows.Next() {
		var r schedule.Record
		if err := rows.Scan(&r.DateLabel, &r.WeekdayName, &r.TimeRange, &r.Subject, &r.LessonType, &r.Teacher, &r.Room); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// upsertName returns the id of the row of table whose column equals value,
// inserting it first if needed. table and column are never user input.
func upsertName(ctx context.Context, tx *sql.Tx, table, column, value string) (int64, error) {
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("INSERT INTO %s(%s) VALUES(?) ON CONFLICT(%s) DO NOTHING", table, column, column), value); err != nil {
		return 0, err
	}
	var id int64
	if err := tx.QueryRowContext(ctx, fmt.Sprintf("SELECT id FROM %s WHERE %s = ?", table, column), value).Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

// optionalName is upsertName for teacher and room values, where the
// sentinel and the empty string mean no row.
func optionalName(ctx context.Context, tx *sql.Tx, table, column, value string) (sql.NullInt64, error) {
	if value == "" || value == schedule.NotSpecified {
		return sql.NullInt64{}, nil
	}
	id, err := upsertName(ctx, tx, table, column, value)
	if err != nil {
		return sql.NullInt64{}, err
	}
	return sql.NullInt64{Int64: id, Valid: true}, nil
}
