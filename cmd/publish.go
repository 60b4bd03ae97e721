package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vantagesign/signdeck/internal/config"
)

var publishCmd = &cobra.Command{
	Use:   "publish",
	Short: "Republish the manifest and trigger a CDN rebuild",
	Long: `Republish the manifest and trigger the CDN rebuild workflow. Useful
after editing the repository by hand, when the manifest itself is
already correct but the site needs regenerating.`,
	RunE: runPublish,
}

func init() {
	rootCmd.AddCommand(publishCmd)
}

func runPublish(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	publisher, err := newPublisher(ctx, cfg, newLogger())
	if err != nil {
		return err
	}

	m, err := publisher.PublishManifest(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("✓ manifest republished (%d logos)\n", len(m.Logos))
	return nil
}
