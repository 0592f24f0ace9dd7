package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/setevik/procwarden/internal/record"
	"github.com/setevik/procwarden/internal/store"
)

func runHistory(args []string) {
	fs := pflag.NewFlagSet("history", pflag.ExitOnError)
	configPath := fs.StringP("config", "c", "", "path to config file")
	last := fs.String("last", "24h", "time window (e.g. 24h, 7d, 30d)")
	process := fs.StringP("process", "p", "", "filter by process name")
	level := fs.String("level", "", "filter by level (info, error)")
	session := fs.String("session", "", "filter by session ID")
	limit := fs.IntP("limit", "n", 50, "max records to show")
	output := fs.StringP("output", "o", "text", "output format (text, json, yaml)")
	fs.Parse(args)

	cfg := loadConfig(*configPath)
	setupLogging(slog.LevelError) // quiet for CLI output

	window, err := parseDuration(*last)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid --last value %q: %v\n", *last, err)
		os.Exit(1)
	}

	db := openStore(cfg)
	defer db.Close()

	records, err := db.Query(store.QueryFilter{
		Since:     time.Now().Add(-window),
		Level:     strings.ToLower(*level),
		Process:   *process,
		SessionID: *session,
		Limit:     *limit,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "query error: %v\n", err)
		os.Exit(1)
	}

	if err := printRecords(os.Stdout, records, *output); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func printRecords(w io.Writer, records []*record.Record, format string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if records == nil {
			records = []*record.Record{}
		}
		return enc.Encode(records)
	case "yaml":
		enc := yaml.NewEncoder(w)
		defer enc.Close()
		return enc.Encode(records)
	case "text":
	default:
		return fmt.Errorf("unknown output format %q", format)
	}

	if len(records) == 0 {
		fmt.Fprintln(w, "No records found.")
		return nil
	}
	for _, rec := range records {
		ts := rec.Timestamp.Local().Format("2006-01-02 15:04:05")
		process := rec.Process
		if process == "" {
			process = "-"
		}
		fmt.Fprintf(w, "%s  %-5s %-10s %s\n", ts, rec.Level.Label(), process, rec.Message)
	}
	fmt.Fprintf(w, "Total: %d record(s)\n", len(records))
	return nil
}

// parseDuration extends time.ParseDuration with support for "d" (days) suffix.
func parseDuration(s string) (time.Duration, error) {
	if strings.HasSuffix(s, "d") {
		s = strings.TrimSuffix(s, "d")
		var days int
		if _, err := fmt.Sscanf(s, "%d", &days); err != nil {
			return 0, fmt.Errorf("invalid days format: %s", s)
		}
		return time.Duration(days) * 24 * time.Hour, nil
	}
	return time.ParseDuration(s)
}

// formatDuration formats a duration in human-readable form.
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm", int(d.Minutes()))
	}
	if d < 24*time.Hour {
		return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
	}
	return fmt.Sprintf("%dd %dh", int(d.Hours())/24, int(d.Hours())%24)
}
