package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/schedscope/schedscope/internal/utils"
	"github.com/schedscope/schedscope/pkg/cache"
	"github.com/schedscope/schedscope/pkg/catalog"
	"github.com/schedscope/schedscope/pkg/navigator"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "schedscope",
	Short: "Fetch university group timetables from the command line.",
	Long: `schedscope drives the schedule website in a headless browser, extracts the
weekly timetable of a group and prints it as a table, CSV or delimited lines.

Pages are cached on disk, and results can be stored in a SQLite database.`,
	CompletionOptions: cobra.CompletionOptions{
		DisableDefaultCmd: true,
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.schedscope.yaml)")

	// Global flags
	rootCmd.PersistentFlags().StringP("loglevel", "l", "info", "Set log level. Available: debug, info, warn, error, fatal")
	rootCmd.PersistentFlags().Bool("debug", false, "Shortcut for --loglevel debug")
}

func setDefaults() {
	viper.SetDefault("site.base_url", navigator.DefaultBaseURL)
	viper.SetDefault("site.institute", navigator.DefaultInstitute)
	viper.SetDefault("site.course", navigator.DefaultCourse)
	viper.SetDefault("site.categories", navigator.DefaultCategories)
	viper.SetDefault("site.group_variants", navigator.DefaultVariantRules)
	viper.SetDefault("site.groups_url", catalog.DefaultGroupsURL)
	viper.SetDefault("browser.headless", true)
	viper.SetDefault("browser.remote_url", "")
	viper.SetDefault("browser.block_resources", []string{"images", "fonts", "media"})
	viper.SetDefault("browser.wait_timeout", navigator.DefaultWaitTimeout)
	viper.SetDefault("browser.form_timeout", navigator.DefaultFormTimeout)
	viper.SetDefault("browser.settle_delay", navigator.DefaultSettleDelay)
	viper.SetDefault("cache.dir", cache.DefaultDir)
	viper.SetDefault("cache.ttl", cache.DefaultTTL)
	viper.SetDefault("db.path", "schedscope.sqlite")
	viper.SetDefault("http.rate", 2.0)
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	setDefaults()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := homedir.Dir()
		if err != nil {
			fmt.Println(err)
			os.Exit(1)
		}
		viper.AddConfigPath(home)
		viper.SetConfigName(".schedscope")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("schedscope")
	viper.AutomaticEnv()

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// Config file not found; create it with defaults.
			home, _ := homedir.Dir()
			configPath := filepath.Join(home, ".schedscope.yaml")
			if err := viper.SafeWriteConfigAs(configPath); err != nil {
				fmt.Printf("Error creating config file: %s\n", err)
			}
		}
	}

	// Init log library
	levelString, _ := rootCmd.PersistentFlags().GetString("loglevel")
	if debug, _ := rootCmd.PersistentFlags().GetBool("debug"); debug {
		levelString = "debug"
	}
	utils.SetLogLevel(levelString)
}
