package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/vantagesign/signdeck/internal/config"
)

var logosCmd = &cobra.Command{
	Use:   "logos",
	Short: "Manage the logos registered in the manifest",
}

var logosListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the logos in the manifest",
	RunE:  runLogosList,
}

var logosRemoveCmd = &cobra.Command{
	Use:     "rm <id>",
	Aliases: []string{"remove"},
	Short:   "Remove a logo from the CDN and the manifest",
	Args:    cobra.ExactArgs(1),
	RunE:    runLogosRemove,
}

func init() {
	rootCmd.AddCommand(logosCmd)
	logosCmd.AddCommand(logosListCmd)
	logosCmd.AddCommand(logosRemoveCmd)
}

func runLogosList(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	publisher, err := newPublisher(ctx, cfg, newLogger())
	if err != nil {
		return err
	}

	m, _, err := publisher.FetchManifest(ctx)
	if err != nil {
		return err
	}
	if len(m.Logos) == 0 {
		fmt.Println("No logos in the manifest.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ORDER\tID\tNAME\tUPLOADED\tURL")
	for _, logo := range m.Logos {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n",
			logo.Order, logo.ID, logo.Name,
			logo.UploadedAt.Format("2006-01-02 15:04"), logo.URL)
	}
	return w.Flush()
}

func runLogosRemove(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	publisher, err := newPublisher(ctx, cfg, newLogger())
	if err != nil {
		return err
	}

	if err := publisher.RemoveLogo(ctx, args[0]); err != nil {
		return err
	}
	fmt.Printf("✓ removed %s\n", args[0])
	return nil
}
