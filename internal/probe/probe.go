// Package probe answers whether a process with a given command name is
// already running on this host.
package probe

import (
	"context"
	"os"
	"runtime"
)

// Info describes a matching process found in the process table.
type Info struct {
	PID     int
	Command string
}

// Prober looks up running processes by command name. A non-nil error means
// the process table could not be read; it is distinct from "not running".
type Prober interface {
	IsRunning(ctx context.Context, name string) (Info, bool, error)
}

// New returns the best Prober for the host: a /proc scan when procfs is
// mounted, otherwise the platform process listing command.
func New() Prober {
	if runtime.GOOS == "linux" {
		if fi, err := os.Stat("/proc"); err == nil && fi.IsDir() {
			return NewProcfs("/proc")
		}
	}
	return NewPS(runtime.GOOS)
}
