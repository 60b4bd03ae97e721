package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/vantagesign/signdeck/internal/config"
	"github.com/vantagesign/signdeck/internal/fleet"
	"github.com/vantagesign/signdeck/internal/mqtt"
	"github.com/vantagesign/signdeck/internal/server"
	"github.com/vantagesign/signdeck/internal/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the admin API server",
	Long: `Start the admin API server: the HTTP/WebSocket surface a console
frontend talks to. Connects to the MQTT broker, tracks device status,
and persists command history.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().IntP("port", "p", 8410, "Port to serve on")
	serveCmd.Flags().String("host", "localhost", "Host to bind to")
	serveCmd.Flags().String("broker", "", "MQTT broker URL (tcp://host:1883)")
	serveCmd.Flags().String("db", "", "SQLite store path")

	viper.BindPFlag("server.port", serveCmd.Flags().Lookup("port"))
	viper.BindPFlag("server.host", serveCmd.Flags().Lookup("host"))
	viper.BindPFlag("mqtt.broker_url", serveCmd.Flags().Lookup("broker"))
	viper.BindPFlag("store.path", serveCmd.Flags().Lookup("db"))
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log := newLogger()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	publisher, err := newPublisher(ctx, cfg, log)
	if err != nil {
		return err
	}

	db, err := store.Open(cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()
	commandLog := &store.CommandLog{DB: db, Limit: cfg.Store.HistoryLimit}
	prefs := &store.SettingsStore{DB: db}

	session, err := mqtt.Dial(cfg.MQTT, log)
	if err != nil {
		return fmt.Errorf("connect to broker: %w", err)
	}
	defer session.Close()

	tracker := fleet.NewTracker(session, mqtt.Topics{Prefix: cfg.MQTT.TopicPrefix},
		commandLog, log, fleet.Options{
			CommandTimeout: cfg.Fleet.CommandTimeout,
			OfflineAfter:   cfg.Fleet.OfflineAfter,
		})
	if err := tracker.Attach(); err != nil {
		return fmt.Errorf("subscribe to fleet status: %w", err)
	}
	go tracker.Run(ctx)

	srv := server.New(cfg.Server, publisher, tracker, commandLog, prefs, log)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Fprintln(os.Stderr, "Shutting down...")
		cancel()
	}()

	fmt.Printf("signdeck admin API at http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	return srv.Start(ctx)
}
