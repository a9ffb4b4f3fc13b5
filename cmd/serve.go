package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/schedscope/schedscope/internal/server"
	"github.com/schedscope/schedscope/internal/utils"
	"github.com/schedscope/schedscope/pkg/storage"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the schedscope web interface and JSON API",
	RunE: func(cmd *cobra.Command, args []string) error {
		user, _ := cmd.Flags().GetString("username")
		pass, _ := cmd.Flags().GetString("password")
		addr, _ := cmd.Flags().GetString("bind")
		withDB, _ := cmd.Flags().GetBool("db")

		fetcher, launcher, err := newFetcher(false)
		if err != nil {
			return err
		}
		defer launcher.Close()

		var db *storage.DB
		if withDB {
			if db, err = storage.Open(viper.GetString("db.path")); err != nil {
				return err
			}
			defer db.Close()
		}

		srv := server.New(newCatalog(), fetcher, db, user, pass, utils.Log)
		return srv.Start(addr)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringP("bind", "b", ":9999", "Address to bind the server to")
	serveCmd.Flags().StringP("username", "u", "", "Username for basic auth (optional)")
	serveCmd.Flags().StringP("password", "p", "", "Password for basic auth (optional)")
	serveCmd.Flags().Bool("db", false, "Expose database statistics at /api/stats")
}
