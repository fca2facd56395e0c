package process

import (
	"fmt"
	"os"
	"time"

	"github.com/hashicorp/go-multierror"
)

// Teardown stops the child and reclaims its resources: graceful signal,
// grace-period wait, force kill, unconditional reap, workdir removal with a
// bounded retry window, port release.
//
// It is idempotent: only the first call acts, later calls return the same
// result. The returned error aggregates warnings only; cleanup problems are
// logged and must never fail a test that already passed.
func (h *Handle) Teardown() error {
	h.teardown.Do(func() {
		h.warn = h.doTeardown()
		if h.warn != nil {
			h.S().Warnw("teardown finished with warnings", "id", h.ID, "warnings", h.warn)
		}
	})
	return h.warn
}

func (h *Handle) doTeardown() error {
	var warn *multierror.Error

	if exited, _ := h.Exited(); !exited {
		if err := h.interrupt(); err != nil {
			warn = multierror.Append(warn, fmt.Errorf("graceful signal: %w", err))
		}

		select {
		case <-h.done:
		case <-time.After(h.opts.GracePeriod):
			h.S().Warnw("daemon ignored graceful shutdown, killing", "id", h.ID, "pid", h.Pid())
			if err := h.cmd.Process.Kill(); err != nil {
				warn = multierror.Append(warn, fmt.Errorf("kill: %w", err))
			}
			select {
			case <-h.done:
			case <-time.After(h.opts.KillWait):
				// the watcher goroutine still reaps whenever the kernel
				// lets go; nothing more to do here.
				warn = multierror.Append(warn, fmt.Errorf("process %d did not exit within kill wait", h.Pid()))
			}
		}
	}

	if h.opts.WorkDir != "" {
		if err := removeWithRetries(h.opts.WorkDir, h.opts.RemoveRetries); err != nil {
			warn = multierror.Append(warn, fmt.Errorf("workdir cleanup incomplete: %w", err))
		}
	}

	h.opts.Allocator.Release(h.opts.Ports...)

	return warn.ErrorOrNil()
}

// reclaim frees resources when the process never started.
func (h *Handle) reclaim() {
	if h.opts.WorkDir != "" {
		_ = removeWithRetries(h.opts.WorkDir, h.opts.RemoveRetries)
	}
	h.opts.Allocator.Release(h.opts.Ports...)
}

// removeWithRetries tolerates deletion races with a daemon still flushing
// files into its datadir.
func removeWithRetries(dir string, retries int) error {
	var err error
	for i := 0; i < retries; i++ {
		if err = os.RemoveAll(dir); err == nil {
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}
	return err
}
