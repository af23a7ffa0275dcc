package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/wricardo/codequest/game/config"
	"github.com/wricardo/codequest/game/gateway"
	"github.com/wricardo/codequest/game/service"
	"github.com/wricardo/codequest/transport/mcp"
)

func testSettings(t *testing.T) config.Settings {
	t.Helper()
	return config.Settings{
		TickHz:     30,
		Autosave:   -1,
		SessionTTL: time.Hour,
		Store:      config.StoreMemory,
		DataDir:    t.TempDir(),
	}
}

func TestConstants(t *testing.T) {
	if Version == "" {
		t.Error("Version should not be empty")
	}
	if AppName != "CodeQuest Server" {
		t.Errorf("Unexpected app name %s", AppName)
	}
}

func TestNewCommand(t *testing.T) {
	cmd := newCommand()

	if cmd.Version != Version {
		t.Errorf("Expected version %s, got %s", Version, cmd.Version)
	}

	names := map[string]bool{}
	for _, sub := range cmd.Commands {
		names[sub.Name] = true
	}
	for _, want := range []string{"server", "stdio-mcp", sandboxWorkerCommand} {
		if !names[want] {
			t.Errorf("Expected %s subcommand", want)
		}
	}

	flags := map[string]bool{}
	for _, f := range cmd.Flags {
		for _, n := range f.Names() {
			flags[n] = true
		}
	}
	for _, want := range []string{"host", "port", "config-dir", "debug", "ngrok"} {
		if !flags[want] {
			t.Errorf("Expected --%s flag", want)
		}
	}
}

func TestSetupLogging(t *testing.T) {
	defer log.SetLevel(log.InfoLevel)

	setupLogging(true)
	if log.GetLevel() != log.DebugLevel {
		t.Errorf("Expected debug level, got %s", log.GetLevel())
	}
	setupLogging(false)
	if log.GetLevel() != log.InfoLevel {
		t.Errorf("Expected info level, got %s", log.GetLevel())
	}
}

func TestOpenStore(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name     string
		settings config.Settings
		backend  bool
		wantErr  bool
	}{
		{"memory", config.Settings{Store: config.StoreMemory}, true, false},
		{"file", config.Settings{Store: config.StoreFile, DataDir: filepath.Join(dir, "saves")}, true, false},
		{"sqlite", config.Settings{Store: config.StoreSQLite, DBPath: filepath.Join(dir, "codequest.db")}, true, false},
		{"http", config.Settings{Store: config.StoreHTTP, BackendURL: "http://localhost:9"}, false, false},
		{"unknown", config.Settings{Store: "tape"}, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, err := openStore(tt.settings)
			if (err != nil) != tt.wantErr {
				t.Fatalf("openStore() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}

			backend, ok := store.(gateway.Backend)
			if ok != tt.backend {
				t.Errorf("Expected Backend = %v for %s", tt.backend, tt.name)
			}
			if ok {
				backend.Close()
			}
		})
	}
}

func TestNewSandboxRunner(t *testing.T) {
	settings := testSettings(t)

	runner, err := newSandboxRunner(settings)
	if err != nil {
		t.Fatalf("newSandboxRunner failed: %v", err)
	}
	if runner.Isolated() {
		t.Error("Expected an in-process runner when isolation is off")
	}

	settings.SandboxIsolated = true
	runner, err = newSandboxRunner(settings)
	if err != nil {
		t.Fatalf("newSandboxRunner failed: %v", err)
	}
	if !runner.Isolated() {
		t.Error("Expected a worker-backed runner")
	}
}

func TestNewApp(t *testing.T) {
	a, err := newApp("configs", testSettings(t))
	if err != nil {
		t.Fatalf("Failed to initialize app: %v", err)
	}
	defer a.close()

	configs, err := a.service.ListConfigs(context.Background())
	if err != nil {
		t.Fatalf("ListConfigs failed: %v", err)
	}
	if len(configs) == 0 {
		t.Error("Expected the bundled worlds to load")
	}
}

func TestNewApp_InvalidConfigDir(t *testing.T) {
	if _, err := newApp("/non/existent/path", testSettings(t)); err == nil {
		t.Error("Expected error for non-existent config directory")
	}
}

func TestAppHandler(t *testing.T) {
	a, err := newApp("configs", testSettings(t))
	if err != nil {
		t.Fatalf("Failed to initialize app: %v", err)
	}
	defer a.close()

	srv := httptest.NewUnstartedServer(nil)
	srv.Config.Handler = a.handler("http://"+srv.Listener.Addr().String(), "")
	srv.Start()
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected 200 from /healthz, got %d", resp.StatusCode)
	}

	resp, err = http.Get(srv.URL + "/backend/players")
	if err != nil {
		t.Fatalf("GET /backend/players: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected the memory store to be served under /backend, got %d", resp.StatusCode)
	}

	if !externalServerUp(srv.URL) {
		t.Error("Expected the test server to look like a running API server")
	}
}

func TestMCPHandler(t *testing.T) {
	handler := mcpHandler(mcp.NewClient("http://localhost:8080"))

	t.Run("method not allowed", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler(rec, httptest.NewRequest(http.MethodGet, "/mcp", nil))
		if rec.Code != http.StatusMethodNotAllowed {
			t.Errorf("Expected 405, got %d", rec.Code)
		}
	})

	t.Run("initialize", func(t *testing.T) {
		body := `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2024-11-05","capabilities":{},"clientInfo":{"name":"test","version":"1.0"}}}`
		rec := httptest.NewRecorder()
		handler(rec, httptest.NewRequest(http.MethodPost, "/mcp", strings.NewReader(body)))

		if rec.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d", rec.Code)
		}
		if !strings.Contains(rec.Body.String(), "CodeQuest") {
			t.Errorf("Expected server info in response, got %s", rec.Body.String())
		}
	})
}

func TestBackgroundStopsOnCancel(t *testing.T) {
	a, err := newApp("configs", testSettings(t))
	if err != nil {
		t.Fatalf("Failed to initialize app: %v", err)
	}
	defer a.close()

	ctx, cancel := context.WithCancel(context.Background())
	g, gctx := errgroup.WithContext(ctx)
	a.background(gctx, g)

	if _, err := a.service.CreateSession(context.Background(), service.CreateSessionRequest{PlayerID: "ana"}); err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	time.Sleep(50 * time.Millisecond)
	cancel()

	done := make(chan error, 1)
	go func() { done <- g.Wait() }()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Expected clean stop, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Background routines did not stop")
	}
}
