package probe

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Procfs scans a procfs tree such as /proc.
type Procfs struct {
	root string
	self int
}

// NewProcfs creates a Procfs rooted at procRoot.
func NewProcfs(procRoot string) *Procfs {
	return &Procfs{root: procRoot, self: os.Getpid()}
}

// IsRunning reports the first process whose comm or argv[0] base
// name equals name. The calling process itself never matches.
func (p *Procfs) IsRunning(ctx context.Context, name string) (Info, bool, error) {
	entries, err := os.ReadDir(p.root)
	if err != nil {
		return Info{}, false, fmt.Errorf("reading %s: %w", p.root, err)
	}

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return Info{}, false, err
		}
		if !entry.IsDir() {
			continue
		}
		pid, err := strconv.Atoi(entry.Name())
		if err != nil {
			continue // not a PID directory
		}
		if pid == p.self {
			continue
		}

		dir := filepath.Join(p.root, entry.Name())
		if comm, ok := readComm(filepath.Join(dir, "comm")); ok && comm == name {
			return Info{PID: pid, Command: comm}, true, nil
		}
		// comm is truncated to 15 bytes, so long names only match on argv[0].
		if argv0, ok := readArgv0(filepath.Join(dir, "cmdline")); ok && filepath.Base(argv0) == name {
			return Info{PID: pid, Command: argv0}, true, nil
		}
	}
	return Info{}, false, nil
}

// readComm reads the process name from /proc/[pid]/comm.
func readComm(path string) (string, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", false // process may have exited
	}
	return strings.TrimSpace(string(data)), true
}

// readArgv0 reads the first NUL-separated field of /proc/[pid]/cmdline.
// Kernel threads have an empty cmdline.
func readArgv0(path string) (string, bool) {
	data, err := os.ReadFile(path)
	if err != nil || len(data) == 0 {
		return "", false
	}
	if i := bytes.IndexByte(data, 0); i >= 0 {
		data = data[:i]
	}
	if len(data) == 0 {
		return "", false
	}
	return string(data), true
}
