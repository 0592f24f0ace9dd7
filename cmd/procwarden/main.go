// procwarden keeps one instance of each configured daemon running for the
// lifetime of a session, relays their output to a local log viewer, and
// records every supervisor decision and child error to a diagnostic history.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/setevik/procwarden/internal/config"
	"github.com/setevik/procwarden/internal/diag"
	"github.com/setevik/procwarden/internal/launcher"
	"github.com/setevik/procwarden/internal/logbuf"
	"github.com/setevik/procwarden/internal/probe"
	"github.com/setevik/procwarden/internal/record"
	"github.com/setevik/procwarden/internal/store"
	"github.com/setevik/procwarden/internal/supervisor"
	"github.com/setevik/procwarden/internal/uisink"
)

var version = "dev"

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "run":
			runDaemon(os.Args[2:])
			return
		case "status":
			runStatus(os.Args[2:])
			return
		case "history":
			runHistory(os.Args[2:])
			return
		case "version":
			fmt.Println("procwarden", version)
			return
		}
	}

	// Default: run daemon.
	runDaemon(os.Args[1:])
}

func runDaemon(args []string) {
	fs := pflag.NewFlagSet("procwarden", pflag.ExitOnError)
	configPath := fs.StringP("config", "c", "", "path to config file")
	mode := fs.StringP("mode", "m", "", "build mode override (dev or prod)")
	showVersion := fs.Bool("version", false, "print version and exit")
	fs.Parse(args)

	if *showVersion {
		fmt.Println("procwarden", version)
		os.Exit(0)
	}

	cfg := loadConfig(*configPath)
	if *mode != "" {
		cfg.Supervisor.Mode = *mode
		if err := cfg.Validate(); err != nil {
			fmt.Fprintf(os.Stderr, "invalid --mode: %v\n", err)
			os.Exit(1)
		}
	}

	level, err := cfg.LogLevel()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}
	setupLogging(level)

	slog.Info("procwarden starting",
		"version", version,
		"mode", cfg.Supervisor.Mode,
		"base_dir", cfg.BaseDir(),
		"processes", len(cfg.Processes),
	)

	if err := run(cfg); err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	dataDir, err := dataDirectory()
	if err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	db, err := store.Open(cfg.DBPath(dataDir))
	if err != nil {
		return fmt.Errorf("opening diagnostic database: %w", err)
	}
	defer db.Close()

	slog.Info("diagnostic database opened", "path", cfg.DBPath(dataDir))

	if cfg.DB.Retention.Duration > 0 {
		purged, err := db.Purge(cfg.DB.Retention.Duration)
		if err != nil {
			slog.Warn("failed to purge old records", "error", err)
		} else if purged > 0 {
			slog.Info("purged old records", "count", purged, "retention", cfg.DB.Retention.Duration)
		}
	}

	session := record.NewSessionID()
	level, _ := cfg.LogLevel()
	setupLogging(level, "session", session)
	sink, err := diag.Open(cfg.LogFile(dataDir), session, db)
	if err != nil {
		return fmt.Errorf("opening diagnostic log: %w", err)
	}
	defer sink.Close()
	defer sink.Recover("main")

	// Pipeline: children -> buffer -> batcher -> hub -> viewers.
	buf := logbuf.NewBuffer()
	hub := uisink.NewHub(buf)
	batcher := logbuf.NewBatcher(buf, hub, cfg.Supervisor.FlushInterval.Duration, sink)
	go func() {
		defer sink.Recover("log batcher")
		batcher.Run(ctx)
	}()

	ln, err := net.Listen("tcp", cfg.UI.Listen)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", cfg.UI.Listen, err)
	}
	srv := &http.Server{
		Handler:           uisink.NewRouter(hub),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		defer sink.Recover("log viewer server")
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("log viewer server stopped", "error", err)
		}
	}()
	slog.Info("log viewer listening", "addr", ln.Addr().String())

	sup := supervisor.New(supervisor.Options{
		Specs:   cfg.Specs(),
		Prober:  probe.New(),
		Launch:  supervisor.FromLauncher(launcher.New(cfg.WorkDir(), buf, sink)),
		BaseDir: cfg.BaseDir(),
		GOOS:    runtime.GOOS,
		Logs:    buf,
		Diag:    sink,
	})
	for _, o := range sup.Run(ctx) {
		slog.Info("process handled", "process", o.Name, "outcome", o.Kind, "pid", o.PID)
	}

	sdNotify("READY=1")

	var watchdogTicker *time.Ticker
	if wdInterval := watchdogInterval(); wdInterval > 0 {
		// Ping at half the watchdog interval.
		watchdogTicker = time.NewTicker(wdInterval / 2)
		defer watchdogTicker.Stop()
		slog.Info("systemd watchdog enabled", "interval", wdInterval)
	}

	for {
		var watchdogCh <-chan time.Time
		if watchdogTicker != nil {
			watchdogCh = watchdogTicker.C
		}

		select {
		case <-watchdogCh:
			sdNotify("WATCHDOG=1")

		case sig := <-sigCh:
			slog.Info("received signal, shutting down", "signal", sig)
			sdNotify("STOPPING=1")

			sup.Shutdown()
			cancel()
			batcher.Flush()

			shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
			defer done()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				slog.Warn("log viewer shutdown", "error", err)
			}
			return nil
		}
	}
}

func loadConfig(path string) *config.Config {
	cfg, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error loading config: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

func openStore(cfg *config.Config) *store.DB {
	dataDir, err := dataDirectory()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error creating data directory: %v\n", err)
		os.Exit(1)
	}
	db, err := store.Open(cfg.DBPath(dataDir))
	if err != nil {
		fmt.Fprintf(os.Stderr, "error opening database: %v\n", err)
		os.Exit(1)
	}
	return db
}

// --- sd_notify support ---

// sdNotify sends a notification to systemd via the NOTIFY_SOCKET.
func sdNotify(state string) {
	socketAddr := os.Getenv("NOTIFY_SOCKET")
	if socketAddr == "" {
		return
	}

	conn, err := net.Dial("unixgram", socketAddr)
	if err != nil {
		slog.Debug("sd_notify: failed to connect", "error", err)
		return
	}
	defer conn.Close()

	if _, err := conn.Write([]byte(state)); err != nil {
		slog.Debug("sd_notify: failed to send", "error", err)
	}
}

// watchdogInterval returns the systemd watchdog interval from WATCHDOG_USEC,
// or 0 if unset.
func watchdogInterval() time.Duration {
	usecStr := os.Getenv("WATCHDOG_USEC")
	if usecStr == "" {
		return 0
	}
	var usec int64
	if _, err := fmt.Sscanf(usecStr, "%d", &usec); err != nil {
		return 0
	}
	return time.Duration(usec) * time.Microsecond
}

// --- utilities ---

// setupLogging sends console logs to stderr. The daemon adds the session ID
// once it has one, so console lines can be matched with diagnostic records.
func setupLogging(level slog.Level, attrs ...any) {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(handler).With(attrs...))
}

func dataDirectory() (string, error) {
	dataHome := os.Getenv("XDG_DATA_HOME")
	if dataHome == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		dataHome = filepath.Join(home, ".local", "share")
	}
	dir := filepath.Join(dataHome, "procwarden")
	return dir, os.MkdirAll(dir, 0o750)
}
