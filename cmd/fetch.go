package cmd

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/schedscope/schedscope/internal/utils"
	"github.com/schedscope/schedscope/pkg/acquire"
	"github.com/schedscope/schedscope/pkg/export"
	"github.com/schedscope/schedscope/pkg/schedule"
	"github.com/schedscope/schedscope/pkg/storage"
)

// fetchCmd implements: schedscope fetch
//
//	--group string      Group name, repeatable or comma-separated
//	--date string       Any date of the wanted week (DD.MM.YYYY)
//	--week int          Week ordinal in the picker (1-52)
//	--output string     table, csv or lines
//	--db                Save results to the database
var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Fetch the weekly schedule of one or more groups",
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) > 0 {
			return fmt.Errorf("unknown command: '%s'. See 'schedscope fetch --help'", args[0])
		}

		groups, _ := cmd.Flags().GetStringSlice("group")
		date, _ := cmd.Flags().GetString("date")
		week, _ := cmd.Flags().GetInt("week")
		year, _ := cmd.Flags().GetInt("year")
		noCache, _ := cmd.Flags().GetBool("no-cache")
		output, _ := cmd.Flags().GetString("output")
		flags, _ := cmd.Flags().GetString("flags")
		delimiter, _ := cmd.Flags().GetString("delimiter")
		file, _ := cmd.Flags().GetString("file")
		saveDB, _ := cmd.Flags().GetBool("db")
		concurrency, _ := cmd.Flags().GetInt("concurrency")

		queries, err := buildQueries(groups, date, week)
		if err != nil {
			return err
		}
		switch output {
		case "table", "csv", "lines":
		default:
			return fmt.Errorf("unknown output format %q (available: table, csv, lines)", output)
		}

		var db *storage.DB
		if saveDB {
			dbPath, _ := cmd.Flags().GetString("dbpath")
			if dbPath == "" {
				dbPath = viper.GetString("db.path")
			}
			if db, err = storage.Open(dbPath); err != nil {
				return err
			}
			defer db.Close()
		}

		fetcher, launcher, err := newFetcher(noCache)
		if err != nil {
			return err
		}
		defer launcher.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		outcomes := fetcher.FetchMany(ctx, queries, concurrency, func(o acquire.Outcome) {
			if o.Err != nil {
				utils.Log.WithField("group", o.Query.Group).Errorf("Fetch failed: %v", o.Err)
				return
			}
			utils.Log.WithField("group", o.Query.Group).Infof("Fetched %d records (cached: %t)", len(o.Result.Records), o.Result.FromCache)
		})

		failed := 0
		for _, o := range outcomes {
			if o.Err != nil {
				failed++
				continue
			}
			for _, w := range o.Result.Warnings {
				utils.Log.WithField("group", o.Query.Group).Warnf("%s: %s", w.Kind, w.Message)
			}

			var buf bytes.Buffer
			if err := render(&buf, o.Result.Records, output, flags, delimiter); err != nil {
				return err
			}
			if err := emit(buf.Bytes(), file, o.Query.Group, len(queries) > 1); err != nil {
				return err
			}

			if db != nil {
				if err := save(ctx, db, o.Result, week, year); err != nil {
					utils.Log.WithField("group", o.Query.Group).Errorf("Saving to database failed: %v", err)
					failed++
				}
			}
		}

		if failed > 0 {
			return fmt.Errorf("%d of %d fetches failed", failed, len(queries))
		}
		return nil
	},
}

// buildQueries turns the group flags into queries. Groups may be repeated or
// comma-separated; duplicates are dropped.
func buildQueries(groups []string, date string, week int) ([]schedule.Query, error) {
	if date != "" && week != 0 {
		return nil, fmt.Errorf("--date and --week are mutually exclusive")
	}
	if week < 0 || week > 52 {
		return nil, fmt.Errorf("--week must be between 1 and 52")
	}
	if date != "" {
		if _, err := schedule.ParseDate(date); err != nil {
			return nil, err
		}
	}

	seen := make(map[string]bool)
	var queries []schedule.Query
	for _, g := range groups {
		g = strings.TrimSpace(g)
		if g == "" || seen[g] {
			continue
		}
		seen[g] = true
		queries = append(queries, schedule.Query{Group: g, Date: date, Week: week})
	}
	if len(queries) == 0 {
		return nil, fmt.Errorf("at least one --group is required")
	}
	return queries, nil
}

func render(w io.Writer, records []schedule.Record, output, flags, delimiter string) error {
	switch output {
	case "csv":
		return export.WriteCSV(w, records)
	case "lines":
		return export.WriteLines(w, records, flags, delimiter)
	default:
		export.WriteTable(w, records)
		return nil
	}
}

// emit writes one group's output to stdout or to file. With several groups
// each gets its own file, named after the group.
func emit(data []byte, file, group string, multi bool) error {
	if file == "" {
		if multi {
			fmt.Printf("%s\n", group)
		}
		_, err := os.Stdout.Write(data)
		return err
	}
	if multi {
		file = perGroupPath(file, group)
	}
	if err := os.WriteFile(file, data, 0o644); err != nil {
		return err
	}
	utils.Log.Infof("Wrote %s", file)
	return nil
}

func perGroupPath(file, group string) string {
	ext := filepath.Ext(file)
	safe := strings.NewReplacer("/", "_", "\\", "_", " ", "_").Replace(group)
	return strings.TrimSuffix(file, ext) + "_" + safe + ext
}

// storageWeek decides under which week number and year a result is stored.
// A known week window always wins: the key is the ISO week of its first day,
// since the week ordinal only indexes the picker. Without a window the flags
// are used, falling back to the current ISO week.
func storageWeek(res *acquire.Result, week, year int, now time.Time) storage.Week {
	if res.Window != nil {
		y, n := res.Window.Start.ISOWeek()
		return storage.Week{Number: n, Year: y, Window: res.Window}
	}
	w := storage.Week{Number: week, Year: year}
	nowYear, nowWeek := now.ISOWeek()
	if w.Number == 0 {
		w.Number = nowWeek
	}
	if w.Year == 0 {
		w.Year = nowYear
	}
	return w
}

func save(ctx context.Context, db *storage.DB, res *acquire.Result, week, year int) error {
	w := storageWeek(res, week, year, time.Now())
	if err := db.SaveSchedule(ctx, res.Query.Group, w, res.Records); err != nil {
		return err
	}
	utils.Log.WithField("group", res.Query.Group).Infof("Saved week %d/%d to database", w.Number, w.Year)
	return nil
}

func init() {
	rootCmd.AddCommand(fetchCmd)
	fetchCmd.Flags().StringSliceP("group", "g", nil, "Group name (repeatable or comma-separated)")
	fetchCmd.Flags().StringP("date", "d", "", "Any date of the wanted week (DD.MM.YYYY)")
	fetchCmd.Flags().IntP("week", "w", 0, "Week ordinal in the week picker (1-52)")
	fetchCmd.Flags().Int("year", 0, "Year to store the week under when the page shows no week dates")
	fetchCmd.Flags().Bool("no-cache", false, "Bypass the page cache")
	fetchCmd.Flags().StringP("output", "o", "table", "Output format: table, csv, lines")
	fetchCmd.Flags().String("flags", export.DefaultFlags, "Columns for lines output: d (date), w (weekday), t (time), s (subject), y (type), p (teacher), r (room)")
	fetchCmd.Flags().String("delimiter", " ", "Delimiter for lines output")
	fetchCmd.Flags().StringP("file", "f", "", "Write output to file instead of stdout")
	fetchCmd.Flags().Bool("db", false, "Save results to the database")
	fetchCmd.Flags().String("dbpath", "", "Path to SQLite DB file (default: db.path from config)")
	fetchCmd.Flags().IntP("concurrency", "c", 2, "Number of groups fetched in parallel")
}
