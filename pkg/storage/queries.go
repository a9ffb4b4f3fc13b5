package storage

import (
	"context"
	"database/sql"
	"time"
)

// ListGroups returns every stored group with its week and lesson counts.
func (d *DB) ListGroups(ctx context.Context) ([]GroupSummary, error) {
	rows, err := d.sql.QueryContext(ctx, `
		SELECT
			g.name,
			COUNT(DISTINCT l.week_id),
			COUNT(l.id),
			MAX(l.saved_at)
		FROM
			groups g
			LEFT JOIN lessons l ON l.group_id = g.id
		GROUP BY
			g.id
		ORDER BY
			g.name;
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []GroupSummary
	for rows.Next() {
		var s GroupSummary
		var saved sql.NullString
		if err := rows.Scan(&s.Name, &s.Weeks, &s.Lessons, &saved); err != nil {
			return nil, err
		}
		if saved.Valid {
			s.LastSaved = parseTimestamp(saved.String)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (d *DB) GetStats(ctx context.Context) (Stats, error) {
	var s Stats
	err := d.sql.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM groups),
			(SELECT COUNT(*) FROM weeks),
			(SELECT COUNT(*) FROM teachers),
			(SELECT COUNT(*) FROM rooms),
			(SELECT COUNT(*) FROM lessons);
	`).Scan(&s.Groups, &s.Weeks, &s.Teachers, &s.Rooms, &s.Lessons)
	return s, err
}

// parseTimestamp parses SQLite CURRENT_TIMESTAMP values.
// Try "2006-01-02 15:04:05" then RFC3339
func parseTimestamp(s string) time.Time {
	if t, err := time.Parse("2006-01-02 15:04:05", s); err == nil {
		return t
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t
	}
	return time.Time{}
}
