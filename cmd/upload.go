package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/vantagesign/signdeck/internal/config"
)

var uploadCmd = &cobra.Command{
	Use:   "upload <file>...",
	Short: "Publish logo files to the CDN",
	Long: `Publish one or more logo files to the CDN and register them in the
manifest. Re-uploading a file whose name slugs to an existing logo ID
replaces that logo.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runUpload,
}

var uploadName string

func init() {
	rootCmd.AddCommand(uploadCmd)
	uploadCmd.Flags().StringVar(&uploadName, "name", "", "override the logo name (single file only)")
}

func runUpload(cmd *cobra.Command, args []string) error {
	if uploadName != "" && len(args) > 1 {
		return fmt.Errorf("--name only applies to a single file")
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log := newLogger()
	ctx := cmd.Context()

	publisher, err := newPublisher(ctx, cfg, log)
	if err != nil {
		return err
	}

	for _, file := range args {
		content, err := os.ReadFile(file)
		if err != nil {
			return err
		}
		name := filepath.Base(file)
		if uploadName != "" {
			name = uploadName
		}

		logo, err := publisher.UploadLogo(ctx, name, content)
		if err != nil {
			return fmt.Errorf("upload %s: %w", file, err)
		}
		fmt.Printf("✓ %s -> %s\n", file, logo.URL)
	}
	return nil
}
