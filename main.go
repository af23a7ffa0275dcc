// Command codequest starts the CodeQuest game server.
//
// It supports two modes:
//  1. "server" (default) runs the HTTP server exposing the REST API, the
//     WebSocket push, the /backend persistence API and an /mcp endpoint
//  2. "stdio-mcp" runs an MCP stdio server and spins up an internal HTTP API
//     if none is available
//
// Process settings (tick rate, store, sandbox limits) come from CODEQUEST_*
// environment variables, optionally loaded from a .env file.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/mark3labs/mcp-go/server"
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v3"
	"golang.ngrok.com/ngrok"
	ngrokConfig "golang.ngrok.com/ngrok/config"
	"golang.org/x/sync/errgroup"

	"github.com/wricardo/codequest/api"
	"github.com/wricardo/codequest/game/config"
	"github.com/wricardo/codequest/game/gateway"
	"github.com/wricardo/codequest/game/sandbox"
	"github.com/wricardo/codequest/game/service"
	"github.com/wricardo/codequest/game/session"
	"github.com/wricardo/codequest/game/sim"
	"github.com/wricardo/codequest/transport/mcp"
	"github.com/wricardo/codequest/transport/websocket"
)

// Version information
const (
	Version = "1.0.0"
	AppName = "CodeQuest Server"
)

const (
	cleanupInterval      = 5 * time.Minute
	sandboxWorkerCommand = "sandbox-worker"
)

func main() {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			log.WithError(err).Warn("Error loading .env file")
		}
	} else {
		log.Info("Loaded environment variables from .env file")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newCommand().Run(ctx, os.Args); err != nil {
		log.WithError(err).Fatal("Exiting")
	}
}

// newCommand builds the command tree. Flags declared on the root are
// visible to every subcommand.
func newCommand() *cli.Command {
	return &cli.Command{
		Name:    "codequest",
		Usage:   AppName,
		Version: Version,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "host", Value: "localhost", Usage: "HTTP server host", Sources: cli.EnvVars("HOST")},
			&cli.IntFlag{Name: "port", Value: 8080, Usage: "HTTP server port", Sources: cli.EnvVars("PORT")},
			&cli.StringFlag{Name: "config-dir", Value: "configs", Usage: "Directory containing world configurations", Sources: cli.EnvVars("CONFIG_DIR")},
			&cli.StringFlag{Name: "static-dir", Usage: "Serve a browser client from this directory", Sources: cli.EnvVars("STATIC_DIR")},
			&cli.BoolFlag{Name: "debug", Usage: "Enable debug logging"},
			&cli.BoolFlag{Name: "ngrok", Usage: "Enable ngrok tunnel", Sources: cli.EnvVars("NGROK_ENABLED")},
			&cli.StringFlag{Name: "ngrok-auth", Usage: "Ngrok auth token", Sources: cli.EnvVars("NGROK_AUTHTOKEN", "NGROK_AUTH_TOKEN")},
			&cli.StringFlag{Name: "ngrok-domain", Usage: "Custom ngrok domain (optional)", Sources: cli.EnvVars("NGROK_DOMAIN")},
		},
		Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
			setupLogging(cmd.Bool("debug"))
			return ctx, nil
		},
		Action: runHTTPServer,
		Commands: []*cli.Command{
			{
				Name:    "server",
				Aliases: []string{"http"},
				Usage:   "Run HTTP server with API, WebSocket, and MCP endpoint (default)",
				Action:  runHTTPServer,
			},
			{
				Name:    "stdio-mcp",
				Aliases: []string{"mcp-stdio", "mcp"},
				Usage:   "Run MCP stdio server, with an internal HTTP server when none is running",
				Action:  runStdioMCP,
			},
			{
				Name:   sandboxWorkerCommand,
				Usage:  "Evaluate one challenge request from stdin (started by the server)",
				Hidden: true,
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return sandbox.ServeWorker(ctx, os.Stdin, os.Stdout)
				},
			},
		},
	}
}

func setupLogging(debug bool) {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	// stdout belongs to the MCP stdio transport.
	log.SetOutput(os.Stderr)
	if debug {
		log.SetLevel(log.DebugLevel)
	} else {
		log.SetLevel(log.InfoLevel)
	}
}

// app is the wired set of services one process runs.
type app struct {
	settings config.Settings
	configs  *config.Manager
	store    gateway.Gateway
	sessions *session.Manager
	service  service.GameService
	hub      *websocket.Hub
}

// newApp wires configuration, persistence, sessions and the hub.
func newApp(configDir string, settings config.Settings) (*app, error) {
	configs, err := config.NewManager(configDir)
	if err != nil {
		return nil, fmt.Errorf("failed to create config manager: %w", err)
	}

	store, err := openStore(settings)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s store: %w", settings.Store, err)
	}

	runner, err := newSandboxRunner(settings)
	if err != nil {
		return nil, err
	}

	sessions := session.NewManager(store, runner, session.Options{
		Sim: sim.Options{
			TickRate:      settings.TickHz,
			AutosaveEvery: settings.Autosave,
		},
		Admin: func(w *config.World, player string) bool {
			return w.IsAdmin(player) || settings.IsAdmin(player)
		},
	})
	gameService := service.NewGameService(sessions, configs)

	hub := websocket.NewHub(func(sessionID string, in sim.Input) {
		if err := gameService.SetInput(context.Background(), sessionID, in); err != nil {
			log.WithError(err).WithField("session", sessionID).Debug("Dropping input")
		}
	})

	return &app{
		settings: settings,
		configs:  configs,
		store:    store,
		sessions: sessions,
		service:  gameService,
		hub:      hub,
	}, nil
}

// newSandboxRunner runs challenge code in this binary's sandbox-worker
// subcommand unless isolation is turned off.
func newSandboxRunner(settings config.Settings) (*sandbox.Runner, error) {
	if !settings.SandboxIsolated {
		return sandbox.NewRunner(settings.SandboxLimits()), nil
	}
	exe, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("failed to locate the sandbox worker: %w", err)
	}
	return sandbox.NewRunner(settings.SandboxLimits(), sandbox.WithWorker(exe, sandboxWorkerCommand)), nil
}

// openStore selects the persistence backend named by the settings.
func openStore(settings config.Settings) (gateway.Gateway, error) {
	switch settings.Store {
	case config.StoreMemory:
		return gateway.NewMemoryStore(), nil
	case config.StoreFile:
		return gateway.NewFileStore(settings.DataDir)
	case config.StoreSQLite:
		return gateway.OpenSQLite(settings.DBPath)
	case config.StoreHTTP:
		return gateway.NewHTTPGateway(settings.BackendURL, settings.BackendToken, nil), nil
	default:
		return nil, fmt.Errorf("%w: unknown store %q", config.ErrInvalidConfig, settings.Store)
	}
}

// handler combines the API server with the /mcp endpoint. The MCP client
// calls back into the API at baseURL.
func (a *app) handler(baseURL, staticDir string) http.Handler {
	opts := []api.Option{}
	// A remote store already has its own backend API.
	if backend, ok := a.store.(gateway.Backend); ok && a.settings.Store != config.StoreHTTP {
		opts = append(opts, api.WithBackend(backend, a.settings.BackendToken))
	}
	if staticDir != "" {
		opts = append(opts, api.WithStatic(staticDir))
	}
	apiServer := api.NewServer(a.service, a.hub, opts...)

	mainRouter := http.NewServeMux()
	mainRouter.Handle("/", apiServer)
	mainRouter.HandleFunc("/mcp", mcpHandler(mcp.NewClient(baseURL)))
	return mainRouter
}

// mcpHandler feeds JSON-RPC request bodies to the MCP server.
func mcpHandler(client *mcp.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, "Failed to read request", http.StatusBadRequest)
			return
		}
		defer r.Body.Close()

		response := client.GetMCPServer().HandleMessage(r.Context(), body)

		responseData, err := json.Marshal(response)
		if err != nil {
			http.Error(w, "Failed to marshal response", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(responseData)
	}
}

// background starts the hub, the simulation loop and session expiry.
func (a *app) background(ctx context.Context, g *errgroup.Group) {
	g.Go(func() error {
		return ignoreCanceled(a.hub.Run(ctx))
	})

	g.Go(func() error {
		interval := time.Second / time.Duration(a.settings.TickHz)
		return ignoreCanceled(a.sessions.Run(ctx, interval, func(s *session.Session) {
			if a.hub.Watching(s.ID) {
				view := s.View()
				a.hub.BroadcastToSession(s.ID, &view)
			}
		}))
	})

	g.Go(func() error {
		ticker := time.NewTicker(cleanupInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				if removed := a.sessions.CleanupExpiredSessions(ctx, a.settings.SessionTTL); removed > 0 {
					log.WithField("removed", removed).Info("Cleaned up expired sessions")
				}
			}
		}
	})
}

// close saves and closes every session, then the store.
func (a *app) close() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := a.sessions.CloseAll(ctx); err != nil {
		log.WithError(err).Warn("Failed to save sessions on shutdown")
	}
	if backend, ok := a.store.(gateway.Backend); ok {
		if err := backend.Close(); err != nil {
			log.WithError(err).Warn("Failed to close store")
		}
	}
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func loadApp(cmd *cli.Command) (*app, error) {
	settings, err := config.LoadSettings()
	if err != nil {
		return nil, err
	}
	return newApp(cmd.String("config-dir"), settings)
}

// runHTTPServer serves the API until the context is canceled. With ngrok
// enabled the same handler is also served through a public tunnel.
func runHTTPServer(ctx context.Context, cmd *cli.Command) error {
	a, err := loadApp(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	addr := fmt.Sprintf("%s:%d", cmd.String("host"), cmd.Int("port"))
	handler := a.handler("http://"+addr, cmd.String("static-dir"))

	httpServer := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	log.WithFields(log.Fields{"version": Version, "store": a.settings.Store, "tick_hz": a.settings.TickHz}).Infof("Starting %s", AppName)

	g, ctx := errgroup.WithContext(ctx)
	a.background(ctx, g)

	g.Go(func() error {
		log.Infof("HTTP server listening on %s", addr)
		log.Infof("REST API: http://%s/api", addr)
		log.Infof("WebSocket: ws://%s/ws?session=<session_id>", addr)
		log.Infof("MCP endpoint: http://%s/mcp", addr)

		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		log.Info("Shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	if cmd.Bool("ngrok") {
		g.Go(func() error {
			return serveNgrok(ctx, cmd, handler)
		})
	}

	err = g.Wait()
	log.Info("Server stopped")
	return err
}

// serveNgrok exposes handler through an ngrok tunnel. A missing token or a
// failed tunnel is logged and leaves the local server running.
func serveNgrok(ctx context.Context, cmd *cli.Command, handler http.Handler) error {
	authToken := cmd.String("ngrok-auth")
	if authToken == "" {
		log.Warn("Ngrok enabled but no auth token provided (use --ngrok-auth or NGROK_AUTHTOKEN)")
		return nil
	}

	var tunnel ngrokConfig.Tunnel
	if domain := cmd.String("ngrok-domain"); domain != "" {
		tunnel = ngrokConfig.HTTPEndpoint(ngrokConfig.WithDomain(domain))
		log.WithField("domain", domain).Info("Using custom ngrok domain")
	} else {
		tunnel = ngrokConfig.HTTPEndpoint()
	}

	log.Info("Starting ngrok tunnel...")
	tun, err := ngrok.Listen(ctx, tunnel, ngrok.WithAuthtoken(authToken))
	if err != nil {
		log.WithError(err).Error("Failed to start ngrok tunnel")
		return nil
	}

	ngrokURL := tun.URL()
	log.Infof("Ngrok tunnel established: %s", ngrokURL)
	log.Infof("  REST API (ngrok): %s/api", ngrokURL)
	log.Infof("  MCP endpoint (ngrok): %s/mcp", ngrokURL)

	go func() {
		<-ctx.Done()
		if err := tun.Close(); err != nil {
			log.WithError(err).Warn("Failed to close ngrok tunnel")
		}
	}()

	if err := http.Serve(tun, handler); err != nil && ctx.Err() == nil {
		log.WithError(err).Error("Ngrok server error")
	}
	log.Info("Ngrok tunnel closed")
	return nil
}

// externalServerUp reports whether an API server already answers at baseURL.
func externalServerUp(baseURL string) bool {
	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get(baseURL + "/healthz")
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// runStdioMCP runs an MCP stdio server. It reuses an API server at the
// configured host and port when one answers; otherwise it starts an internal
// one on a random loopback port.
func runStdioMCP(ctx context.Context, cmd *cli.Command) error {
	baseURL := fmt.Sprintf("http://%s:%d", cmd.String("host"), cmd.Int("port"))
	log.WithField("url", baseURL).Info("Checking for external API server")

	g, gctx := errgroup.WithContext(ctx)

	if externalServerUp(baseURL) {
		log.Info("External API server found, using it for MCP")
	} else {
		log.Info("No external API server found, starting internal HTTP server")

		a, err := loadApp(cmd)
		if err != nil {
			return err
		}
		defer a.close()

		listener, err := net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			return fmt.Errorf("failed to get available port: %w", err)
		}
		baseURL = "http://" + listener.Addr().String()
		log.WithField("url", baseURL).Info("Internal HTTP server started for MCP stdio")

		httpServer := &http.Server{Handler: a.handler(baseURL, "")}
		a.background(gctx, g)
		g.Go(func() error {
			if err := httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			return httpServer.Close()
		})
	}

	mcpClient := mcp.NewClient(baseURL)
	log.Info("MCP stdio server ready")
	g.Go(func() error {
		// ServeStdio returns when stdin closes; that ends the process too.
		err := server.ServeStdio(mcpClient.GetMCPServer())
		if err != nil {
			return fmt.Errorf("MCP stdio server error: %w", err)
		}
		return context.Canceled
	})

	return ignoreCanceled(g.Wait())
}
