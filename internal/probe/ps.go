package probe

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

// PS lists processes with the platform's process listing command:
// tasklist on Windows, ps elsewhere.
type PS struct {
	goos string
	run  func(ctx context.Context, name string, args ...string) ([]byte, error)
}

// NewPS creates a PS prober for the given GOOS.
func NewPS(goos string) *PS {
	return &PS{goos: goos, run: runCommand}
}

func runCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}

// IsRunning reports the first listed process whose command base name equals
// name, ignoring a trailing .exe.
func (p *PS) IsRunning(ctx context.Context, name string) (Info, bool, error) {
	var (
		out   []byte
		err   error
		procs []Info
	)
	if p.goos == "windows" {
		out, err = p.run(ctx, "tasklist", "/FO", "CSV", "/NH")
		if err != nil {
			return Info{}, false, fmt.Errorf("running tasklist: %w", err)
		}
		procs, err = parseTasklist(out)
	} else {
		out, err = p.run(ctx, "ps", "-A", "-o", "pid=", "-o", "comm=")
		if err != nil {
			return Info{}, false, fmt.Errorf("running ps: %w", err)
		}
		procs, err = parsePS(out)
	}
	if err != nil {
		return Info{}, false, err
	}

	for _, proc := range procs {
		if commandMatches(proc.Command, name) {
			return proc, true, nil
		}
	}
	return Info{}, false, nil
}

func commandMatches(command, name string) bool {
	base := filepath.Base(strings.ReplaceAll(command, `\`, "/"))
	return base == name || strings.EqualFold(base, name+".exe")
}

// parsePS parses "ps -o pid= -o comm=" output: a PID, whitespace, then the
// command, which may itself contain spaces.
func parsePS(out []byte) ([]Info, error) {
	var procs []Info
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		pidStr, command, ok := strings.Cut(line, " ")
		if !ok {
			continue
		}
		pid, err := strconv.Atoi(pidStr)
		if err != nil {
			continue
		}
		procs = append(procs, Info{PID: pid, Command: strings.TrimSpace(command)})
	}
	return procs, scanner.Err()
}

// parseTasklist parses "tasklist /FO CSV /NH" output, whose first two
// columns are the image name and the PID.
func parseTasklist(out []byte) ([]Info, error) {
	r := csv.NewReader(bytes.NewReader(out))
	r.FieldsPerRecord = -1

	var procs []Info
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parsing tasklist output: %w", err)
		}
		if len(rec) < 2 {
			continue
		}
		pid, err := strconv.Atoi(rec[1])
		if err != nil {
			continue
		}
		procs = append(procs, Info{PID: pid, Command: rec[0]})
	}
	return procs, nil
}
