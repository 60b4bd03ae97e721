package cmd

import (
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/vantagesign/signdeck/internal/config"
	"github.com/vantagesign/signdeck/internal/logging"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect the effective configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration as YAML",
	Long: `Print the effective configuration after merging the config file,
SIGNDECK_ environment variables and defaults. Secrets are redacted.`,
	RunE: runConfigShow,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	if cfg.MQTT.Password != "" {
		cfg.MQTT.Password = logging.Redact(cfg.MQTT.Password)
	}
	return yaml.NewEncoder(os.Stdout).Encode(cfg)
}
