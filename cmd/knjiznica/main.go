package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/erazemk/knjiznica/internal/api"
	"github.com/erazemk/knjiznica/internal/db"
	"github.com/erazemk/knjiznica/internal/ledger"
	"github.com/erazemk/knjiznica/internal/notify"
	"github.com/erazemk/knjiznica/internal/store"
)

const usage = `Usage: knjiznica [flags] [serve|sweep]

Commands:
  serve                   run the HTTP server (default)
  sweep                   mark overdue loans, send due-soon reminders and exit

Flags:
  -d, -db <path>          SQLite database path (default: knjiznica.sqlite3)
  -a, -addr <host:port>   listen address (default: :8080)
  -u, -user <email>       admin email on first run (default: admin@knjiznica.local)
  -l, -log <path>         log file path (default: no file, stdout/stderr only)
  -origin <url>           allowed WebSocket origin (default: same host only)
  -h, -help               show this help and exit
`

type config struct {
	dbPath    string
	addr      string
	adminUser string
	logPath   string
	origin    string
	command   string
}

func parseFlags(args []string) (*config, error) {
	fs := flag.NewFlagSet("knjiznica", flag.ContinueOnError)
	fs.Usage = func() { fmt.Fprint(os.Stdout, usage) }

	cfg := &config{}
	fs.StringVar(&cfg.dbPath, "db", "knjiznica.sqlite3", "")
	fs.StringVar(&cfg.dbPath, "d", "knjiznica.sqlite3", "")
	fs.StringVar(&cfg.addr, "addr", ":8080", "")
	fs.StringVar(&cfg.addr, "a", ":8080", "")
	fs.StringVar(&cfg.adminUser, "user", "admin@knjiznica.local", "")
	fs.StringVar(&cfg.adminUser, "u", "admin@knjiznica.local", "")
	fs.StringVar(&cfg.logPath, "log", "", "")
	fs.StringVar(&cfg.logPath, "l", "", "")
	fs.StringVar(&cfg.origin, "origin", "", "")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	cfg.command = "serve"
	switch fs.NArg() {
	case 0:
	case 1:
		cfg.command = fs.Arg(0)
	default:
		return nil, fmt.Errorf("unexpected argument: %s", fs.Arg(1))
	}
	if cfg.command != "serve" && cfg.command != "sweep" {
		return nil, fmt.Errorf("unknown command: %s", cfg.command)
	}
	return cfg, nil
}

func main() {
	cfg, err := parseFlags(os.Args[1:])
	if err == flag.ErrHelp {
		os.Exit(0)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n\n%s", err, usage)
		os.Exit(1)
	}

	// Set up structured logging: INFO/WARN → stdout, ERROR → stderr.
	// Optionally also write to a log file.
	closeLog, err := setupLogger(cfg.logPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if closeLog != nil {
		defer closeLog()
	}

	database, err := openDatabase(cfg)
	if err != nil {
		slog.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer database.Close()

	switch cfg.command {
	case "sweep":
		err = sweep(context.Background(), database)
	default:
		err = serve(cfg, database)
	}
	if err != nil {
		slog.Error(cfg.command+" failed", "error", err)
		database.Close()
		os.Exit(1)
	}
}

// openDatabase opens the database, creating it with an admin account on
// first run, and applies migrations.
func openDatabase(cfg *config) (*sql.DB, error) {
	if _, err := os.Stat(cfg.dbPath); os.IsNotExist(err) {
		database, password, err := initDatabase(cfg.dbPath, cfg.adminUser)
		if err != nil {
			return nil, fmt.Errorf("initializing database: %w", err)
		}
		database.Close()

		printInitResult(cfg.dbPath, cfg.adminUser, password)
		fmt.Println()
	}

	database, err := db.Open(cfg.dbPath)
	if err != nil {
		return nil, err
	}

	// Ensure schema exists (idempotent).
	if err := db.Migrate(database); err != nil {
		database.Close()
		return nil, err
	}

	slog.Info("database ready", "path", cfg.dbPath)
	return database, nil
}

func serve(cfg *config, database *sql.DB) error {
	// Load JWT secret from database (auto-generated on first run).
	jwtSecret, err := store.GetJWTSecret(context.Background(), database)
	if err != nil {
		return fmt.Errorf("getting JWT secret: %w", err)
	}

	last, err := store.LastSweep(context.Background(), database)
	if err != nil {
		return err
	}
	if last.IsZero() || time.Since(last) > 24*time.Hour {
		slog.Warn("overdue sweep has not run in the last day, schedule `knjiznica sweep`", "last_sweep", last)
	}

	hub := notify.NewHub(cfg.origin)
	dispatcher := notify.NewDispatcher(database, hub, notify.DefaultQueueSize)
	dispatchCtx, stopDispatch := context.WithCancel(context.Background())
	dispatched := make(chan struct{})
	go func() {
		dispatcher.Run(dispatchCtx)
		close(dispatched)
	}()

	l := ledger.New(database, dispatcher)

	server := &http.Server{
		Addr:              cfg.addr,
		Handler:           api.LoggingMiddleware(api.NewRouter(database, jwtSecret, l, hub)),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// Graceful shutdown on SIGINT/SIGTERM.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-quit
		slog.Info("shutdown signal received", "signal", sig.String())

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		// Hijacked WebSocket connections are not tracked by Shutdown.
		hub.Close()
		if err := server.Shutdown(ctx); err != nil {
			slog.Error("server forced to shutdown", "error", err)
		}
	}()

	slog.Info("server started", "addr", cfg.addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		stopDispatch()
		<-dispatched
		return fmt.Errorf("listening: %w", err)
	}

	stopDispatch()
	<-dispatched
	if n := dispatcher.Dropped(); n > 0 {
		slog.Warn("notifications dropped during run", "count", n)
	}
	slog.Info("server stopped, closing database")
	return nil
}

// sweep runs the periodic circulation jobs once and is meant to be run from
// cron. Notifications are stored for the next time users connect. Expired
// token revocations are purged too.
func sweep(ctx context.Context, database *sql.DB) error {
	// A sweep publishes one event per loan in a burst, so it gets a deeper queue.
	dispatcher := notify.NewDispatcher(database, nil, 64*notify.DefaultQueueSize)
	dispatchCtx, stopDispatch := context.WithCancel(context.Background())
	dispatched := make(chan struct{})
	go func() {
		dispatcher.Run(dispatchCtx)
		close(dispatched)
	}()
	defer func() {
		stopDispatch()
		<-dispatched
	}()

	l := ledger.New(database, dispatcher)

	overdue, err := l.SweepOverdue(ctx)
	if err != nil {
		return fmt.Errorf("marking overdue loans: %w", err)
	}
	reminded, err := l.RemindDueSoon(ctx)
	if err != nil {
		return fmt.Errorf("sending due reminders: %w", err)
	}

	now := l.Now()
	purged, err := store.PurgeRevokedTokens(ctx, database, now)
	if err != nil {
		return err
	}
	if err := store.RecordSweep(ctx, database, now); err != nil {
		return err
	}

	slog.Info("sweep finished", "overdue", overdue, "reminded", reminded, "revocations_purged", purged)
	return nil
}
