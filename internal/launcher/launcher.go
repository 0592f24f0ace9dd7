// Package launcher starts supervised daemons and captures their output into
// the session log.
package launcher

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"sync"

	"github.com/setevik/procwarden/internal/config"
	"github.com/setevik/procwarden/internal/logbuf"
)

// ErrLaunch marks a daemon that could not be started.
var ErrLaunch = errors.New("launch failed")

// maxLine bounds a single captured output line.
const maxLine = 1024 * 1024

// Logs is the session log that captured output is appended to.
type Logs interface {
	Append(msg string) logbuf.Entry
}

// Diagnostics is the durable sink for child errors.
type Diagnostics interface {
	Error(process, msg string)
	Recover(where string)
}

// Launcher starts daemons in a fixed working directory.
type Launcher struct {
	workDir string
	logs    Logs
	diag    Diagnostics
}

// New creates a Launcher.
func New(workDir string, logs Logs, diag Diagnostics) *Launcher {
	return &Launcher{workDir: workDir, logs: logs, diag: diag}
}

// Launch starts the binary at path with the spec's arguments. Every stdout
// line is appended as "<name>: <line>", every stderr line as
// "<name> Error: <line>" (and reported to diagnostics). A failing exit is
// logged once; the process is never restarted.
func (l *Launcher) Launch(spec config.Spec, path string) (*Handle, error) {
	cmd := exec.Command(path, spec.Args...)
	cmd.Dir = l.workDir

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: %s: stdout pipe: %w", ErrLaunch, spec.Name, err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: %s: stderr pipe: %w", ErrLaunch, spec.Name, err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrLaunch, spec.Name, err)
	}

	h := newHandle(spec.Name, cmd)
	slog.Info("process started", "process", spec.Name, "pid", h.PID, "path", path)

	var streams sync.WaitGroup
	streams.Add(2)
	go l.capture(&streams, spec.Name, stdout, false)
	go l.capture(&streams, spec.Name, stderr, true)
	go l.wait(&streams, h)

	return h, nil
}

func (l *Launcher) capture(wg *sync.WaitGroup, name string, r io.Reader, isErr bool) {
	defer wg.Done()
	defer l.diag.Recover(name + " output")

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLine)

	for scanner.Scan() {
		line := scanner.Text()
		if isErr {
			l.logs.Append(fmt.Sprintf("%s Error: %s", name, line))
			l.diag.Error(name, fmt.Sprintf("%s: %s", name, line))
			continue
		}
		l.logs.Append(fmt.Sprintf("%s: %s", name, line))
	}

	if err := scanner.Err(); err != nil {
		slog.Warn("output scanner error", "process", name, "stderr", isErr, "error", err)
		// Keep draining so the child never blocks on a full pipe.
		_, _ = io.Copy(io.Discard, r)
	}
}

// wait reaps the child once both pipes are drained, as exec.Cmd requires.
func (l *Launcher) wait(streams *sync.WaitGroup, h *Handle) {
	defer close(h.done)
	defer l.diag.Recover(h.Name + " wait")

	streams.Wait()
	err := h.cmd.Wait()
	h.setExit(err)

	if err == nil {
		slog.Info("process exited", "process", h.Name, "pid", h.PID)
		return
	}

	msg := fmt.Sprintf("%s exited: %v", h.Name, err)
	slog.Warn("process exited with error", "process", h.Name, "pid", h.PID, "error", err)
	l.logs.Append(msg)
	l.diag.Error(h.Name, msg)
}
