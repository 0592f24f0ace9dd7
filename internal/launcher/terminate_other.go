//go:build !unix

package launcher

import "os"

// There is no SIGTERM outside Unix; the process is killed outright.
func terminate(p *os.Process) error {
	return p.Kill()
}
