package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"time"

	"github.com/spf13/pflag"

	"github.com/setevik/procwarden/internal/launcher"
	"github.com/setevik/procwarden/internal/probe"
)

func runStatus(args []string) {
	fs := pflag.NewFlagSet("status", pflag.ExitOnError)
	configPath := fs.StringP("config", "c", "", "path to config file")
	fs.Parse(args)

	cfg := loadConfig(*configPath)
	setupLogging(slog.LevelError)

	fmt.Printf("Mode:         %s\n", cfg.Supervisor.Mode)
	fmt.Printf("Base dir:     %s\n", cfg.BaseDir())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	prober := probe.New()
	for _, spec := range cfg.Specs() {
		path := launcher.Resolve(cfg.BaseDir(), runtime.GOOS, spec.Name)
		fmt.Printf("Process:      %-10s %s (%s)\n", spec.Name, liveness(ctx, prober, spec.Name), binaryState(path))
	}

	db := openStore(cfg)
	defer db.Close()

	since := time.Now().Add(-24 * time.Hour)
	summaries, err := db.Summarize(since)
	if err == nil {
		for _, s := range summaries {
			name := s.Process
			if name == "" {
				name = "(supervisor)"
			}
			ago := time.Since(s.LastSeen).Truncate(time.Second)
			fmt.Printf("History 24h:  %-10s %d info, %d error, last %s ago\n", name, s.Infos, s.Errors, formatDuration(ago))
		}
	}

	count, _ := db.Count()
	fmt.Printf("DB records:   %d total\n", count)
}

func liveness(ctx context.Context, p probe.Prober, name string) string {
	info, found, err := p.IsRunning(ctx, name)
	switch {
	case err != nil:
		return fmt.Sprintf("unknown (%v)", err)
	case found:
		return fmt.Sprintf("running, pid %d", info.PID)
	default:
		return "not running"
	}
}

func binaryState(path string) string {
	if _, err := os.Stat(path); err != nil {
		return "missing " + path
	}
	return path
}
