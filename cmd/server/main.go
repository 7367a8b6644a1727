/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the crew performance engine server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (.env, environment, flags)
  2. Build the zap logger
  3. Initialize SQLite store
  4. Pick the rule source: rule file (hot reloaded) or stored document
  5. Create API handler, router and attendance sweeper
  6. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -port    HTTP server port (overrides PORT)
  -db      SQLite database path (overrides DB_PATH)
           Use ":memory:" for in-memory database
  -rules   Rule file path (overrides RULES_FILE)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the sweeper and the rule watcher
  2. Stop accepting new connections
  3. Wait for active requests to complete (30s timeout)
  4. Close database connection

EXAMPLES:
  # Run with file database
  ./server -db="./data/crew.db"

  # Rules from a YAML file, reloaded on change
  ./server -rules="./rules.yaml"

SEE ALSO:
  - config/config.go: environment variables
  - api/server.go: Router configuration
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/warp/crew-engine/api"
	"github.com/warp/crew-engine/config"
	"github.com/warp/crew-engine/factory"
	"github.com/warp/crew-engine/logger"
	"github.com/warp/crew-engine/store/sqlite"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	// Flags
	port := flag.Int("port", cfg.Port, "HTTP server port")
	dbPath := flag.String("db", cfg.DBPath, "SQLite database path")
	rulesFile := flag.String("rules", cfg.RulesFile, "Rule file (YAML or JSON); empty keeps rules in the database")
	flag.Parse()

	log := logger.New(cfg.LogLevel, cfg.LogFormat)
	defer log.Sync()

	if err := run(cfg, *port, *dbPath, *rulesFile, log); err != nil {
		log.Fatal("server failed", zap.Error(err))
	}
}

func run(cfg config.Config, port int, dbPath, rulesFile string, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize store
	store, err := sqlite.New(dbPath)
	if err != nil {
		return fmt.Errorf("initialize database: %w", err)
	}
	defer store.Close()

	holidays, err := cfg.HolidayCalendar()
	if err != nil {
		return err
	}
	opts := api.Options{
		WorkStart: cfg.WorkStartClock(),
		Location:  cfg.Location(),
		Calendar:  holidays,
		Matcher:   cfg.LeaderboardMatcher(),
		Logger:    log,
	}

	if rulesFile != "" {
		source, err := factory.NewFileRuleSource(rulesFile, log.Named("rules"))
		if err != nil {
			return fmt.Errorf("load rule file: %w", err)
		}
		go func() {
			if err := source.Watch(ctx); err != nil {
				log.Warn("rule watcher stopped", zap.Error(err))
			}
		}()
		opts.Rules = source
	}

	handler := api.NewHandler(store, opts)
	router := api.NewRouter(handler, cfg.CORSOrigins...)

	sweeper := api.NewAttendanceSweeper(handler)
	sweeper.Interval = cfg.SweepInterval
	sweeper.Enabled = cfg.SweepEnabled
	sweeper.Start()
	defer sweeper.Stop()

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("server starting",
			zap.Int("port", port),
			zap.String("db", dbPath),
			zap.String("timezone", cfg.Timezone),
			zap.String("matcher", cfg.Matcher),
			zap.Bool("rule_file", rulesFile != ""))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return err
		}
	case <-ctx.Done():
	}

	log.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("forced shutdown: %w", err)
	}
	log.Info("server stopped")
	return nil
}
