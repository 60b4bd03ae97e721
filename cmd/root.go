// Package cmd provides the signdeck command-line interface.
//
// Configuration is layered, highest priority first:
//  1. Command-line flags (--config, --broker, etc.)
//  2. SIGNDECK_-prefixed environment variables (SIGNDECK_SERVER_PORT, ...)
//  3. The configuration file (.signdeck.yml in the current directory, or
//     the path given via --config / SIGNDECK_CONFIG_FILE)
package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "signdeck",
	Short: "Admin console for a digital billboard fleet",
	Long: `signdeck manages a digital billboard fleet: logo assets published to a
GitHub-backed CDN, the display manifest the devices rotate through, and
device commands (update, reset, refresh) sent over MQTT.

Quick start:
  signdeck token set               Store the GitHub token
  signdeck upload logo.png         Publish a logo to the CDN
  signdeck logos list              Show the manifest contents
  signdeck device send lobby-1 refresh
  signdeck serve                   Start the admin API server`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is .signdeck.yml)")
	rootCmd.PersistentFlags().StringP("log-level", "l", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "text", "log format (text, json)")
	viper.BindPFlag("log-level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("log-format", rootCmd.PersistentFlags().Lookup("log-format"))
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else if envConfigFile := os.Getenv("SIGNDECK_CONFIG_FILE"); envConfigFile != "" {
		viper.SetConfigFile(envConfigFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".signdeck")
	}

	viper.SetEnvPrefix("SIGNDECK")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// A missing config file is fine: flags and env can carry everything.
	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}
