package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/vantagesign/signdeck/internal/config"
	"github.com/vantagesign/signdeck/internal/store"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show the command history",
	RunE:  runHistory,
}

var historyLimit int

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 50, "maximum rows to show")
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	db, err := store.Open(cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()

	log := &store.CommandLog{DB: db}
	cmds, err := log.List(cmd.Context(), historyLimit)
	if err != nil {
		return err
	}
	if len(cmds) == 0 {
		fmt.Println("No command history yet.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "WHEN\tDEVICE\tCOMMAND\tSTATE\tDETAIL")
	for _, c := range cmds {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			c.CreatedAt.Local().Format(time.DateTime), c.Device, c.Type, c.State, c.Detail)
	}
	return w.Flush()
}
