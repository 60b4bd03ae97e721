package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vantagesign/signdeck/internal/config"
	"github.com/vantagesign/signdeck/internal/errors"
	"github.com/vantagesign/signdeck/internal/fleet"
	"github.com/vantagesign/signdeck/internal/logging"
	"github.com/vantagesign/signdeck/internal/manifest"
)

type fakePublisher struct {
	manifest *manifest.Manifest
	uploaded []string
	removed  []string
}

func newFakePublisher() *fakePublisher {
	return &fakePublisher{manifest: manifest.New()}
}

func (f *fakePublisher) FetchManifest(context.Context) (*manifest.Manifest, string, error) {
	return f.manifest, "sha-1", nil
}

func (f *fakePublisher) UploadLogo(_ context.Context, name string, content []byte) (manifest.Logo, error) {
	if len(content) == 0 {
		return manifest.Logo{}, errors.NewValidation("empty_logo", "logo file is empty")
	}
	id := manifest.SlugID(name)
	f.uploaded = append(f.uploaded, id)
	return manifest.Logo{ID: id, Name: name}, nil
}

func (f *fakePublisher) RemoveLogo(_ context.Context, id string) error {
	if _, ok := f.manifest.Find(id); !ok {
		return fmt.Errorf("logo %q: %w", id, errors.ErrNotFound)
	}
	f.removed = append(f.removed, id)
	return nil
}

func (f *fakePublisher) UpdateSettings(_ context.Context, mutate func(*manifest.Settings) error) (*manifest.Manifest, error) {
	if err := mutate(&f.manifest.Settings); err != nil {
		return nil, err
	}
	return f.manifest, nil
}

type fakeFleet struct {
	mu       sync.Mutex
	devices  []fleet.Device
	commands []fleet.Command
	events   chan fleet.Event
	dispatch func(deviceID string, cmdType fleet.CommandType) ([]*fleet.Command, error)
}

func newFakeFleet() *fakeFleet {
	return &fakeFleet{events: make(chan fleet.Event, 16)}
}

func (f *fakeFleet) Dispatch(_ context.Context, deviceID string, cmdType fleet.CommandType) ([]*fleet.Command, error) {
	if f.dispatch != nil {
		return f.dispatch(deviceID, cmdType)
	}
	cmd := &fleet.Command{ID: "cmd-1", Device: deviceID, Type: cmdType, State: fleet.StateSent}
	f.mu.Lock()
	f.commands = append(f.commands, *cmd)
	f.mu.Unlock()
	return []*fleet.Command{cmd}, nil
}

func (f *fakeFleet) Devices() []fleet.Device { return f.devices }

func (f *fakeFleet) Commands() []fleet.Command {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]fleet.Command(nil), f.commands...)
}

func (f *fakeFleet) Subscribe() (<-chan fleet.Event, func()) {
	return f.events, func() {}
}

type fakeHistory struct {
	commands []fleet.Command
}

func (f *fakeHistory) List(_ context.Context, limit int) ([]fleet.Command, error) {
	if limit > len(f.commands) {
		limit = len(f.commands)
	}
	return f.commands[:limit], nil
}

type fakePrefs struct {
	mu     sync.Mutex
	values map[string]string
}

func newFakePrefs() *fakePrefs {
	return &fakePrefs{values: make(map[string]string)}
}

func (f *fakePrefs) Get(_ context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.values[key]
	if !ok {
		return "", fmt.Errorf("setting %q: %w", key, errors.ErrNotFound)
	}
	return v, nil
}

func (f *fakePrefs) Set(_ context.Context, key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.values[key] = value
	return nil
}

func (f *fakePrefs) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.values, key)
	return nil
}

func (f *fakePrefs) All(_ context.Context) (map[string]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]string, len(f.values))
	for k, v := range f.values {
		out[k] = v
	}
	return out, nil
}

func newTestServer(t *testing.T, history HistoryAPI) (*Server, *fakePublisher, *fakeFleet, *httptest.Server) {
	t.Helper()
	pub := newFakePublisher()
	fl := newFakeFleet()
	srv := New(config.ServerConfig{Host: "localhost", Port: 8410}, pub, fl, history, newFakePrefs(), logging.Discard())

	ts := httptest.NewServer(srv.httpServer.Handler)
	t.Cleanup(ts.Close)
	return srv, pub, fl, ts
}

func getJSON(t *testing.T, url string, out any) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp
}

func TestHealthz(t *testing.T) {
	_, _, _, ts := newTestServer(t, nil)

	var body map[string]string
	resp := getJSON(t, ts.URL+"/healthz", &body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])
}

func TestGetManifest(t *testing.T) {
	_, pub, _, ts := newTestServer(t, nil)
	require.NoError(t, pub.manifest.Add(manifest.Logo{ID: "acme", UploadedAt: time.Now()}))

	var body struct {
		Manifest manifest.Manifest `json:"manifest"`
		SHA      string            `json:"sha"`
	}
	resp := getJSON(t, ts.URL+"/api/manifest", &body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "sha-1", body.SHA)
	require.Len(t, body.Manifest.Logos, 1)
}

func TestUploadLogo(t *testing.T) {
	_, pub, _, ts := newTestServer(t, nil)

	resp, err := http.Post(ts.URL+"/api/logos?name=Acme+Corp.png", "image/png",
		bytes.NewReader([]byte("png-bytes")))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, []string{"acme-corp"}, pub.uploaded)
}

func TestUploadLogoMissingName(t *testing.T) {
	_, _, _, ts := newTestServer(t, nil)

	resp, err := http.Post(ts.URL+"/api/logos", "image/png", bytes.NewReader([]byte("x")))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRemoveLogoNotFound(t *testing.T) {
	_, _, _, ts := newTestServer(t, nil)

	req, _ := http.NewRequest(http.MethodDelete, ts.URL+"/api/logos/ghost", nil)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestUpdateSettings(t *testing.T) {
	_, pub, _, ts := newTestServer(t, nil)

	req, _ := http.NewRequest(http.MethodPut, ts.URL+"/api/settings",
		strings.NewReader(`{"rotation_seconds": 25, "theme": "light"}`))
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 25, pub.manifest.Settings.RotationSeconds)
	assert.Equal(t, "light", pub.manifest.Settings.Theme)
	// Unpatched fields keep their values.
	assert.Equal(t, manifest.DefaultSettings().Brightness, pub.manifest.Settings.Brightness)
}

func TestUpdateSettingsRejectsBadValues(t *testing.T) {
	_, _, _, ts := newTestServer(t, nil)

	req, _ := http.NewRequest(http.MethodPut, ts.URL+"/api/settings",
		strings.NewReader(`{"brightness": 150}`))
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestDispatchCommand(t *testing.T) {
	_, _, fl, ts := newTestServer(t, nil)

	resp, err := http.Post(ts.URL+"/api/devices/lobby-1/commands", "application/json",
		strings.NewReader(`{"type": "refresh"}`))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	require.Len(t, fl.Commands(), 1)
	assert.Equal(t, fleet.CommandRefresh, fl.Commands()[0].Type)
}

func TestDispatchUnknownCommandType(t *testing.T) {
	_, _, _, ts := newTestServer(t, nil)

	resp, err := http.Post(ts.URL+"/api/devices/lobby-1/commands", "application/json",
		strings.NewReader(`{"type": "explode"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestDispatchOfflineBroadcast(t *testing.T) {
	_, _, fl, ts := newTestServer(t, nil)
	fl.dispatch = func(string, fleet.CommandType) ([]*fleet.Command, error) {
		return nil, fmt.Errorf("broadcast: %w", errors.ErrOffline)
	}

	resp, err := http.Post(ts.URL+"/api/devices/broadcast/commands", "application/json",
		strings.NewReader(`{"type": "update"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestHistory(t *testing.T) {
	history := &fakeHistory{commands: []fleet.Command{
		{ID: "a", Device: "lobby-1", State: fleet.StateCompleted},
		{ID: "b", Device: "roof", State: fleet.StateTimeout},
	}}
	_, _, _, ts := newTestServer(t, history)

	var body struct {
		Commands []fleet.Command `json:"commands"`
	}
	resp := getJSON(t, ts.URL+"/api/history?limit=1", &body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, body.Commands, 1)
}

func TestHistoryDisabled(t *testing.T) {
	_, _, _, ts := newTestServer(t, nil)

	resp := getJSON(t, ts.URL+"/api/history", nil)
	assert.Equal(t, http.StatusNotImplemented, resp.StatusCode)
}

func TestPreferencesRoundTrip(t *testing.T) {
	_, _, _, ts := newTestServer(t, nil)

	req, _ := http.NewRequest(http.MethodPut, ts.URL+"/api/preferences/default-device",
		strings.NewReader("lobby-1"))
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	var body struct {
		Preferences map[string]string `json:"preferences"`
	}
	resp = getJSON(t, ts.URL+"/api/preferences", &body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "lobby-1", body.Preferences["default-device"])

	req, _ = http.NewRequest(http.MethodDelete, ts.URL+"/api/preferences/default-device", nil)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestShutdownConcurrent(t *testing.T) {
	srv := New(config.ServerConfig{Host: "127.0.0.1", Port: 0},
		newFakePublisher(), newFakeFleet(), nil, nil, logging.Discard())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = srv.Start(ctx) }()
	time.Sleep(100 * time.Millisecond)

	var wg sync.WaitGroup
	results := make(chan error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			results <- srv.Shutdown(shutdownCtx)
		}()
	}
	wg.Wait()
	close(results)

	for err := range results {
		assert.NoError(t, err)
	}
}
