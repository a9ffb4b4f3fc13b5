package cmd

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/schedscope/schedscope/pkg/export"
	"github.com/schedscope/schedscope/pkg/storage"
)

var dbPath string

// dbCmd represents the db command
var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "Interact with the schedscope database",
}

func resolveDBPath() string {
	if dbPath != "" {
		return dbPath
	}
	return viper.GetString("db.path")
}

func openExistingDB() (*storage.DB, error) {
	path := resolveDBPath()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("database file not found: %s", path)
	}
	return storage.Open(path)
}

// shellCmd represents the shell command
var shellCmd = &cobra.Command{
	Use:   "shell",
	Short: "Start an interactive shell to the database",
	RunE: func(cmd *cobra.Command, args []string) error {
		path := resolveDBPath()
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return fmt.Errorf("database file not found: %s", path)
		}

		// Check if sqlite3 is in PATH
		sqlitePath, err := exec.LookPath("sqlite3")
		if err != nil {
			return fmt.Errorf("sqlite3 command not found in your PATH. Please install it to use the db shell")
		}

		// Print schema first
		fmt.Println("--> Database schema:")
		schemaCmd := exec.Command(sqlitePath, path, ".schema")
		schemaCmd.Stdout = os.Stdout
		schemaCmd.Stderr = os.Stderr
		if err := schemaCmd.Run(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: couldn't retrieve schema: %v\n", err)
		}
		fmt.Println("\n--> Starting interactive shell... (Ctrl+D to exit)")

		c := exec.Command(sqlitePath, path)
		c.Stdin = os.Stdin
		c.Stdout = os.Stdout
		c.Stderr = os.Stderr

		return c.Run()
	},
}

// statsCmd represents the stats command
var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Prints statistics about the groups and lessons in the database.",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openExistingDB()
		if err != nil {
			return err
		}
		defer db.Close()

		ctx := context.Background()
		stats, err := db.GetStats(ctx)
		if err != nil {
			return err
		}
		if stats.Lessons == 0 {
			fmt.Println("No data in the database to generate stats.")
			return nil
		}

		groups, err := db.ListGroups(ctx)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.AlignRight)
		fmt.Fprintln(w, "GROUP\tWEEKS\tLESSONS\tLAST SAVED\t")
		for _, g := range groups {
			fmt.Fprintf(w, "%s\t%d\t%d\t%s\t\n", g.Name, g.Weeks, g.Lessons, g.LastSaved.Format("2006-01-02 15:04"))
		}
		fmt.Fprintln(w, " \t \t \t \t")
		fmt.Fprintf(w, "TOTAL\t%d\t%d\t \t\n", stats.Weeks, stats.Lessons)
		w.Flush()

		fmt.Printf("\n%d groups, %d teachers, %d rooms\n", stats.Groups, stats.Teachers, stats.Rooms)
		return nil
	},
}

// showCmd represents the show command
var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Print a stored week of a group",
	RunE: func(cmd *cobra.Command, args []string) error {
		group, _ := cmd.Flags().GetString("group")
		week, _ := cmd.Flags().GetInt("week")
		year, _ := cmd.Flags().GetInt("year")
		output, _ := cmd.Flags().GetString("output")
		if group == "" || week < 1 || year < 1 {
			return fmt.Errorf("--group, --week and --year are required")
		}

		db, err := openExistingDB()
		if err != nil {
			return err
		}
		defer db.Close()

		records, err := db.GetSchedule(context.Background(), group, week, year)
		if err != nil {
			return err
		}
		if len(records) == 0 {
			return fmt.Errorf("no lessons stored for %s, week %d/%d", group, week, year)
		}
		return render(os.Stdout, records, output, export.DefaultFlags, " ")
	},
}

func init() {
	rootCmd.AddCommand(dbCmd)
	dbCmd.AddCommand(shellCmd)
	dbCmd.AddCommand(statsCmd)
	dbCmd.AddCommand(showCmd)
	dbCmd.PersistentFlags().StringVar(&dbPath, "dbpath", "", "Path to SQLite DB file (default: db.path from config)")

	showCmd.Flags().StringP("group", "g", "", "Group name")
	showCmd.Flags().IntP("week", "w", 0, "Stored week number")
	showCmd.Flags().Int("year", 0, "Stored year")
	showCmd.Flags().StringP("output", "o", "table", "Output format: table, csv, lines")
}
