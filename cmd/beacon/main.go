package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/btouchard/beacon/internal/auth"
	"github.com/btouchard/beacon/internal/config"
	"github.com/btouchard/beacon/internal/hub"
	beaconmcp "github.com/btouchard/beacon/internal/mcp"
	"github.com/btouchard/beacon/internal/server"
	"github.com/btouchard/beacon/internal/store"
	"github.com/btouchard/beacon/internal/task"
	"github.com/btouchard/beacon/internal/tunnel"
)

var version = "dev"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		cmdServe(os.Args[2:])
	case "check":
		cmdCheck(os.Args[2:])
	case "token":
		cmdToken()
	case "version":
		fmt.Printf("beacon %s\n", version)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, "Usage: beacon <command> [flags]\n\n")
	fmt.Fprintf(os.Stderr, "Commands:\n")
	fmt.Fprintf(os.Stderr, "  serve     Start the Beacon server\n")
	fmt.Fprintf(os.Stderr, "  check     Validate configuration\n")
	fmt.Fprintf(os.Stderr, "  token     Generate an API token and its config hash\n")
	fmt.Fprintf(os.Stderr, "  version   Print version\n")
}

func cmdServe(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config file")
	_ = fs.Parse(args) // ExitOnError handles errors

	cfg, err := loadConfig(*configPath)
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	setupLogging(cfg)

	slog.Info("starting beacon",
		"version", version,
		"host", cfg.Server.Host,
		"port", cfg.Server.Port)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}

func cmdCheck(args []string) {
	fs := flag.NewFlagSet("check", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config file")
	_ = fs.Parse(args) // ExitOnError handles errors

	_, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("configuration is valid")
}

// cmdToken prints a fresh token for the client, and the hash the server
// expects under auth.api_tokens in the config file.
func cmdToken() {
	raw, hash, err := auth.GenerateToken()
	if err != nil {
		fmt.Fprintf(os.Stderr, "token generation failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("token:      %s\n", raw)
	fmt.Printf("token_hash: %s\n", hash)
	fmt.Println("\nAdd the hash to beacon.yaml; give the raw token to the client. The raw token is not stored.")
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFromFile(path)
	}
	return config.Load()
}

func setupLogging(cfg *config.Config) {
	var level slog.Level
	switch cfg.Server.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	handlers := []slog.Handler{
		slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}),
	}

	if cfg.Server.LogFile != "" {
		f, err := os.OpenFile(cfg.Server.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0640)
		if err != nil {
			slog.Warn("failed to open log file, using stdout only", "path", cfg.Server.LogFile, "error", err)
		} else {
			handlers = append(handlers, slog.NewJSONHandler(f, &slog.HandlerOptions{Level: level}))
		}
	}

	logger := slog.New(slog.NewMultiHandler(handlers...))
	slog.SetDefault(logger)
}

func run(ctx context.Context, cfg *config.Config) error {
	// --- SQLite Store ---
	dbPath := config.ExpandHome(cfg.Database.Path)
	db, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() { _ = db.Close() }()

	slog.Info("database opened", "path", dbPath)

	// --- Hub + Service ---
	h := hub.New(cfg.Hub.SubscriberBuffer)
	defer h.Close()

	recorder := store.NewRecorder(db)
	svc := task.NewService(db, h, recorder)

	// --- Event retention ---
	if cfg.Database.RetentionDays > 0 {
		go cleanupLoop(ctx, db, cfg.Database.RetentionDays)
	}

	// --- Auth ---
	tokens := make([]auth.Token, 0, len(cfg.Auth.APITokens))
	for _, t := range cfg.Auth.APITokens {
		tokens = append(tokens, auth.Token{Name: t.Name, Hash: t.TokenHash})
	}
	verifier := auth.NewVerifier(tokens)

	// --- MCP Server ---
	mcpServer := beaconmcp.NewServer(&beaconmcp.Deps{
		Service: svc,
		Store:   db,
		Version: version,
	})

	// --- HTTP Router ---
	handler := server.New(&server.Deps{
		Service:  svc,
		Store:    db,
		Hub:      h,
		Verifier: verifier,
		MCP:      mcpserver.NewStreamableHTTPServer(mcpServer),
	})

	// --- HTTP Server ---
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:        addr,
		Handler:     handler,
		ReadTimeout: 30 * time.Second,
		// No WriteTimeout: /events streams for the life of the client.
		IdleTimeout: 2 * time.Minute,
	}

	// --- Optional ngrok tunnel ---
	var listener net.Listener
	if cfg.Tunnel.Enabled {
		tun := tunnel.NewNgrok(cfg.Tunnel.AuthToken, cfg.Tunnel.Domain)
		publicURL, err := tun.Start(ctx, addr)
		if err != nil {
			return fmt.Errorf("tunnel: %w", err)
		}
		defer func() { _ = tun.Close() }()

		slog.Info("serving through tunnel", "public_url", publicURL)
		listener = tun.Listener()
	} else {
		listener, err = net.Listen("tcp", addr)
		if err != nil {
			return fmt.Errorf("listen on %s: %w", addr, err)
		}
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("beacon is ready", "addr", addr)
		if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return srv.Shutdown(shutdownCtx)
}

// cleanupLoop prunes old audit events once a day.
func cleanupLoop(ctx context.Context, db store.Store, retentionDays int) {
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cutoff := time.Now().AddDate(0, 0, -retentionDays)
			if err := db.Cleanup(cutoff); err != nil {
				slog.Warn("event cleanup failed", "error", err)
			} else {
				slog.Debug("event cleanup done", "cutoff", cutoff)
			}
		}
	}
}
