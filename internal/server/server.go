// Package server exposes the admin API any console frontend sits on:
// manifest and logo operations, device commands, command history, and a
// WebSocket feed of fleet events.
package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/vantagesign/signdeck/internal/config"
	"github.com/vantagesign/signdeck/internal/fleet"
	"github.com/vantagesign/signdeck/internal/logging"
	"github.com/vantagesign/signdeck/internal/manifest"
)

// PublisherAPI is the CDN surface the server exposes. *cdn.Publisher
// satisfies it.
type PublisherAPI interface {
	FetchManifest(ctx context.Context) (*manifest.Manifest, string, error)
	UploadLogo(ctx context.Context, name string, content []byte) (manifest.Logo, error)
	RemoveLogo(ctx context.Context, id string) error
	UpdateSettings(ctx context.Context, mutate func(*manifest.Settings) error) (*manifest.Manifest, error)
}

// FleetAPI is the device surface. *fleet.Tracker satisfies it.
type FleetAPI interface {
	Dispatch(ctx context.Context, deviceID string, cmdType fleet.CommandType) ([]*fleet.Command, error)
	Devices() []fleet.Device
	Commands() []fleet.Command
	Subscribe() (<-chan fleet.Event, func())
}

// HistoryAPI lists persisted command history. *store.CommandLog
// satisfies it.
type HistoryAPI interface {
	List(ctx context.Context, limit int) ([]fleet.Command, error)
}

// PreferencesAPI is the console preference key/value store the frontend
// keeps its UI state in. *store.SettingsStore satisfies it.
type PreferencesAPI interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	All(ctx context.Context) (map[string]string, error)
}

// Server is the admin API server.
type Server struct {
	cfg       config.ServerConfig
	publisher PublisherAPI
	fleet     FleetAPI
	history   HistoryAPI
	prefs     PreferencesAPI
	log       logging.Logger

	httpServer *http.Server
	hub        *hub

	shutdownOnce sync.Once
	shutdownErr  error
}

// New wires up the server. history and prefs may be nil when the store
// is disabled.
func New(cfg config.ServerConfig, publisher PublisherAPI, fleetAPI FleetAPI, history HistoryAPI, prefs PreferencesAPI, log logging.Logger) *Server {
	s := &Server{
		cfg:       cfg,
		publisher: publisher,
		fleet:     fleetAPI,
		history:   history,
		prefs:     prefs,
		log:       log.WithComponent("server"),
	}
	s.hub = newHub(s.log)

	mux := http.NewServeMux()
	s.routes(mux)

	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:           s.middleware(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", s.handleHealth)

	mux.HandleFunc("GET /api/manifest", s.handleGetManifest)
	mux.HandleFunc("POST /api/logos", s.handleUploadLogo)
	mux.HandleFunc("DELETE /api/logos/{id}", s.handleRemoveLogo)
	mux.HandleFunc("PUT /api/settings", s.handleUpdateSettings)

	mux.HandleFunc("GET /api/devices", s.handleListDevices)
	mux.HandleFunc("POST /api/devices/{id}/commands", s.handleDispatch)
	mux.HandleFunc("GET /api/commands", s.handleListCommands)
	mux.HandleFunc("GET /api/history", s.handleHistory)

	mux.HandleFunc("GET /api/preferences", s.handleListPreferences)
	mux.HandleFunc("GET /api/preferences/{key}", s.handleGetPreference)
	mux.HandleFunc("PUT /api/preferences/{key}", s.handleSetPreference)
	mux.HandleFunc("DELETE /api/preferences/{key}", s.handleDeletePreference)

	mux.HandleFunc("GET /ws", s.handleWebSocket)
}

// Start runs the server until ctx is cancelled, pumping fleet events to
// WebSocket clients the whole time.
func (s *Server) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.httpServer.Addr, err)
	}

	events, cancelEvents := s.fleet.Subscribe()
	defer cancelEvents()
	go s.hub.pump(ctx, events)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.Shutdown(shutdownCtx)
	}()

	s.log.Info(ctx, "admin API listening", "addr", listener.Addr().String())
	if err := s.httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown stops the server gracefully. Safe to call concurrently; the
// first call wins and later calls return its result.
func (s *Server) Shutdown(ctx context.Context) error {
	s.shutdownOnce.Do(func() {
		s.hub.closeAll()
		s.shutdownErr = s.httpServer.Shutdown(ctx)
	})
	return s.shutdownErr
}
