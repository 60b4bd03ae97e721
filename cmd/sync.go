package cmd

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/vantagesign/signdeck/internal/cdn"
	"github.com/vantagesign/signdeck/internal/config"
	"github.com/vantagesign/signdeck/internal/errors"
)

var syncCmd = &cobra.Command{
	Use:   "sync [dir]",
	Short: "Sync a local directory of logo files to the CDN",
	Long: `Sync a local directory of logo files to the CDN. Every file matching
the configured patterns is uploaded. With --watch the command keeps
running and re-uploads files as they change.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSync,
}

var syncWatch bool

func init() {
	rootCmd.AddCommand(syncCmd)
	syncCmd.Flags().BoolVarP(&syncWatch, "watch", "w", false, "keep watching for changes")
	syncCmd.Flags().StringSlice("pattern", nil, "file patterns to sync (default *.png, *.jpg, ...)")
	viper.BindPFlag("sync.patterns", syncCmd.Flags().Lookup("pattern"))
}

func runSync(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	dir := cfg.Sync.Dir
	if len(args) == 1 {
		dir = args[0]
	}
	if dir == "" {
		return errors.NewValidation("no_sync_dir",
			"no directory given (pass one, or set sync.dir in the config)")
	}

	log := newLogger()
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	publisher, err := newPublisher(ctx, cfg, log)
	if err != nil {
		return err
	}
	syncer := cdn.NewSyncer(publisher, cfg.Sync.Patterns, cfg.Sync.Debounce, log)

	if syncWatch {
		fmt.Printf("Watching %s (Ctrl-C to stop)...\n", dir)
		if err := syncer.Watch(ctx, dir); err != nil && ctx.Err() == nil {
			return err
		}
		return nil
	}

	uploaded, err := syncer.SyncOnce(ctx, dir)
	if err != nil {
		return err
	}
	fmt.Printf("✓ %d logo(s) published from %s\n", uploaded, dir)
	return nil
}
