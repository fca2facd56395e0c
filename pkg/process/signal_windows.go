//go:build windows
// +build windows

package process

// interrupt falls back to Kill; Windows has no portable equivalent of a
// graceful terminate signal for console-less children.
func (h *Handle) interrupt() error {
	return h.cmd.Process.Kill()
}
