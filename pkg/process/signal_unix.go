//go:build !windows
// +build !windows

package process

import (
	"golang.org/x/sys/unix"
)

// interrupt asks the child to shut down voluntarily.
func (h *Handle) interrupt() error {
	return h.cmd.Process.Signal(unix.SIGINT)
}

// Signal forwards an arbitrary signal to the child. Fixtures use it for
// daemon-specific nudges like SIGUSR1.
func (h *Handle) Signal(sig unix.Signal) error {
	return h.cmd.Process.Signal(sig)
}
