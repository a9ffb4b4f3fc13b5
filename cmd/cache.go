package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/schedscope/schedscope/internal/utils"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the page cache",
}

var cacheCleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Remove cache entries older than the configured TTL",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openCache()
		if err != nil {
			return err
		}
		removed, err := store.CleanupExpired()
		if err != nil {
			return err
		}
		utils.Log.Debugf("Cache dir %s, ttl %s", store.Dir(), store.TTL())
		fmt.Printf("Removed %d expired entries\n", removed)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(cacheCmd)
	cacheCmd.AddCommand(cacheCleanCmd)
}
