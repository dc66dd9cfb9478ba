package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/teamboard/teamboard/internal/server"
	"github.com/teamboard/teamboard/internal/state"
	"github.com/teamboard/teamboard/internal/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the sync server",
	Long: `Start the authoritative sync server.

The server opens (or creates) the SQLite database, loads the full state into
memory, and serves:
  ws://host:port/ws                  WebSocket sync endpoint
  http://host:port/health            liveness and client count
  http://host:port/projects          read-only project list
  http://host:port/projects/ID/todos read-only todo list

Clients must authenticate with the shared password before receiving state.
The read-only HTTP endpoints expect the same password as a bearer token.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if port, _ := cmd.Flags().GetInt("port"); cmd.Flags().Changed("port") {
			cfg.Server.Port = port
		}
		if pw, _ := cmd.Flags().GetString("password"); pw != "" {
			cfg.Server.Password = pw
		}
		if db, _ := cmd.Flags().GetString("db"); db != "" {
			cfg.DB.Path = db
		}

		logger := log.New(serverLogWriter(cfg.Log.File), "[server] ", log.LstdFlags)

		st, err := store.Open(cfg.DB.Path)
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer st.Close()

		var backend store.Store = st
		if cfg.DB.RetryAttempts > 1 {
			backend = store.NewRetrying(st, cfg.DB.RetryAttempts, cfg.DB.RetryDelay)
		}

		cache := state.New()
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if err := cache.LoadAll(ctx, backend); err != nil {
			return fmt.Errorf("failed to load state: %w", err)
		}

		srv := server.NewServer(&server.Config{
			Port:     cfg.Server.Port,
			Password: cfg.Server.Password,
			Logger:   logger,
		}, backend, cache)

		if err := srv.Start(); err != nil {
			return fmt.Errorf("failed to start server: %w", err)
		}

		fmt.Printf("Sync server listening on %s\n", srv.Addr())
		fmt.Printf("WebSocket endpoint: ws://%s/ws\n", srv.Addr())
		fmt.Println("\nPress Ctrl+C to stop...")

		// Periodic resync guards against the cache drifting from the
		// database, e.g. after out-of-band edits.
		if cfg.Sync.ResyncInterval > 0 {
			go resyncLoop(ctx, srv, cfg.Sync.ResyncInterval, logger)
		}

		<-ctx.Done()

		fmt.Println("\nShutting down...")
		if err := srv.Stop(); err != nil {
			return fmt.Errorf("shutdown error: %w", err)
		}
		return nil
	},
}

// serverLogWriter returns a rotating file writer when a log file is
// configured, stderr otherwise.
func serverLogWriter(file string) io.Writer {
	if file == "" {
		return os.Stderr
	}
	return &lumberjack.Logger{
		Filename:   file,
		MaxSize:    10, // megabytes
		MaxBackups: 3,
		MaxAge:     28, // days
		Compress:   true,
	}
}

// resyncLoop reloads the cache through the server so each reload is
// serialized with command execution.
func resyncLoop(ctx context.Context, srv *server.Server, interval time.Duration, logger *log.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := srv.Resync(ctx); err != nil {
				logger.Printf("Periodic resync failed: %v", err)
			}
		}
	}
}

func init() {
	serveCmd.Flags().IntP("port", "p", 8080, "Port to listen on")
	serveCmd.Flags().String("password", "", "Shared client password (overrides config)")
	serveCmd.Flags().String("db", "", "SQLite database path (overrides config)")
	rootCmd.AddCommand(serveCmd)
}
