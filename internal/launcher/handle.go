package launcher

import (
	"os/exec"
	"sync"
)

// Handle is a launched daemon. The supervisor owns it until it is
// terminated.
type Handle struct {
	Name string
	PID  int

	cmd  *exec.Cmd
	done chan struct{}
	once sync.Once

	mu      sync.Mutex
	exitErr error
}

func newHandle(name string, cmd *exec.Cmd) *Handle {
	return &Handle{
		Name: name,
		PID:  cmd.Process.Pid,
		cmd:  cmd,
		done: make(chan struct{}),
	}
}

// Done is closed once the process has exited and its output is drained.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// ExitErr returns the error from Wait. It is only meaningful after Done is
// closed.
func (h *Handle) ExitErr() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.exitErr
}

func (h *Handle) setExit(err error) {
	h.mu.Lock()
	h.exitErr = err
	h.mu.Unlock()
}

// Terminate asks the process to stop. Only the first call sends a signal;
// it does not wait for the process to exit.
func (h *Handle) Terminate() error {
	var err error
	h.once.Do(func() {
		select {
		case <-h.done:
			return // already gone
		default:
		}
		err = terminate(h.cmd.Process)
	})
	return err
}
