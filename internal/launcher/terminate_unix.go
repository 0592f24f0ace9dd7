//go:build unix

package launcher

import (
	"os"

	"golang.org/x/sys/unix"
)

// terminate sends SIGTERM through os.Process, which refuses to signal a
// process that has already been reaped.
func terminate(p *os.Process) error {
	return p.Signal(unix.SIGTERM)
}
