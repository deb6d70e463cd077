/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the payroll settlement server. Handles
  configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Parse command and flags (cobra)
  2. Load TOML config over defaults
  3. Initialize SQLite store
  4. Create API handler with the domain services
  5. Start server with graceful shutdown

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (configurable timeout)
  3. Close database connection
  4. Exit

EXAMPLES:
  # Run with defaults (payroll.db, port 8080)
  ./server serve

  # Run with a config file
  ./server serve --config /etc/payroll/server.toml

  # Override the database path
  ./server serve --db=":memory:"

SEE ALSO:
  - config/config.go: File format and defaults
  - api/server.go: Router configuration
*/
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/warp/payroll-engine/api"
	"github.com/warp/payroll-engine/config"
	"github.com/warp/payroll-engine/store/sqlite"
)

func main() {
	var (
		configPath string
		dbPath     string
		port       int
	)

	root := &cobra.Command{
		Use:          "server",
		Short:        "Session approval and payroll settlement engine",
		SilenceUsage: true,
	}

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if dbPath != "" {
				cfg.Store.Path = dbPath
			}
			if port != 0 {
				cfg.Server.Port = port
			}
			return run(cfg)
		},
	}
	serve.Flags().StringVar(&configPath, "config", "", "TOML config file path")
	serve.Flags().StringVar(&dbPath, "db", "", "SQLite database path (overrides config)")
	serve.Flags().IntVar(&port, "port", 0, "HTTP server port (overrides config)")
	root.AddCommand(serve)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cfg config.Config) error {
	st, err := sqlite.New(cfg.Store.Path)
	if err != nil {
		return err
	}
	defer st.Close()

	handler := api.NewHandler(st)
	router := api.NewRouter(handler, api.RouterOptions{
		Metrics:     cfg.Metrics.Enabled,
		CORSOrigins: cfg.Server.CORSOrigins,
	})

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Server starting on http://%s", cfg.Addr())
		log.Printf("API available at http://%s/api", cfg.Addr())
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	timeout, err := time.ParseDuration(cfg.Server.ShutdownTimeout)
	if err != nil || timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return err
	}

	log.Println("Server stopped")
	return nil
}
