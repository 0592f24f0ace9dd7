// Package supervisor makes sure each configured daemon has exactly one
// running instance, launching only those that are absent, and terminates
// every child it launched on shutdown.
package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/setevik/procwarden/internal/config"
	"github.com/setevik/procwarden/internal/launcher"
	"github.com/setevik/procwarden/internal/logbuf"
	"github.com/setevik/procwarden/internal/probe"
)

// Kind is the result of handling one spec.
type Kind string

const (
	// Found means another instance was already running; nothing was launched.
	Found Kind = "found"
	// Launched means a child was started and recorded for shutdown.
	Launched Kind = "launched"
	// Failed means the child could not be started. It stays absent for the
	// session.
	Failed Kind = "failed"
)

// Outcome reports what happened to one spec.
type Outcome struct {
	Name string
	Kind Kind
	PID  int
	Err  error
}

// Child is a launched process that can be asked to stop.
type Child interface {
	Terminate() error
}

// LaunchFunc starts the binary at path for spec.
type LaunchFunc func(spec config.Spec, path string) (Child, error)

// FromLauncher adapts a Launcher to a LaunchFunc.
func FromLauncher(l *launcher.Launcher) LaunchFunc {
	return func(spec config.Spec, path string) (Child, error) {
		h, err := l.Launch(spec, path)
		if err != nil {
			return nil, err
		}
		return h, nil
	}
}

// Diagnostics is the durable sink for supervisor decisions and faults.
type Diagnostics interface {
	Info(process, msg string)
	Error(process, msg string)
	Recover(where string)
}

// Options configures a Supervisor.
type Options struct {
	Specs   []config.Spec
	Prober  probe.Prober
	Launch  LaunchFunc
	BaseDir string
	GOOS    string
	Logs    *logbuf.Buffer
	Diag    Diagnostics
}

// Supervisor owns the launched children of one session.
type Supervisor struct {
	opts Options

	mu       sync.Mutex
	children []recorded
}

type recorded struct {
	name  string
	child Child
}

// New creates a Supervisor.
func New(opts Options) *Supervisor {
	return &Supervisor{opts: opts}
}

// Run handles every spec concurrently and returns once each has been probed
// and, if needed, launched. It does not wait for children to exit. Outcomes
// are in spec order.
func (s *Supervisor) Run(ctx context.Context) []Outcome {
	outcomes := make([]Outcome, len(s.opts.Specs))

	var wg sync.WaitGroup
	for i, spec := range s.opts.Specs {
		wg.Add(1)
		go func(i int, spec config.Spec) {
			defer wg.Done()
			outcomes[i] = Outcome{Name: spec.Name, Kind: Failed, Err: fmt.Errorf("%s: supervision aborted", spec.Name)}
			defer s.opts.Diag.Recover("supervising " + spec.Name)
			outcomes[i] = s.handle(ctx, spec)
		}(i, spec)
	}
	wg.Wait()

	return outcomes
}

func (s *Supervisor) handle(ctx context.Context, spec config.Spec) Outcome {
	info, found, err := s.opts.Prober.IsRunning(ctx, spec.Name)
	if err != nil {
		// An unreadable process table is treated as "not running".
		slog.Warn("liveness probe failed", "process", spec.Name, "error", err)
		s.opts.Diag.Error(spec.Name, fmt.Sprintf("Liveness check failed for %s: %v", spec.Name, err))
		found = false
	}

	if found {
		msg := fmt.Sprintf("%s Already Running", spec.Name)
		slog.Info("process already running", "process", spec.Name, "pid", info.PID)
		s.opts.Logs.Append(msg)
		s.opts.Diag.Info(spec.Name, msg)
		return Outcome{Name: spec.Name, Kind: Found, PID: info.PID}
	}

	path := launcher.Resolve(s.opts.BaseDir, s.opts.GOOS, spec.Name)
	child, err := s.opts.Launch(spec, path)
	if err != nil {
		msg := fmt.Sprintf("Caught Error When Starting %s: %v", spec.Name, err)
		slog.Error("launch failed", "process", spec.Name, "path", path, "error", err)
		s.opts.Logs.Append(msg)
		s.opts.Diag.Error(spec.Name, msg)
		return Outcome{Name: spec.Name, Kind: Failed, Err: err}
	}

	s.mu.Lock()
	s.children = append(s.children, recorded{name: spec.Name, child: child})
	s.mu.Unlock()

	out := Outcome{Name: spec.Name, Kind: Launched}
	if h, ok := child.(*launcher.Handle); ok {
		out.PID = h.PID
	}
	return out
}

// Handles returns the names of the children currently recorded, in launch
// order.
func (s *Supervisor) Handles() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, len(s.children))
	for i, r := range s.children {
		names[i] = r.name
	}
	return names
}

// Shutdown signals every recorded child exactly once and forgets them. It
// does not wait for exits and ignores signalling errors.
func (s *Supervisor) Shutdown() {
	s.mu.Lock()
	children := s.children
	s.children = nil
	s.mu.Unlock()

	for _, r := range children {
		if err := r.child.Terminate(); err != nil {
			slog.Debug("terminate failed", "process", r.name, "error", err)
			continue
		}
		slog.Info("termination signal sent", "process", r.name)
	}
}
