package process

import (
	"bufio"
	"errors"
	"fmt"
	"hash/fnv"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/logrusorgru/aurora"

	"github.com/regtestd/regtestd/pkg/logging"
	"github.com/regtestd/regtestd/pkg/ports"
)

// ErrSpawnFailed means the OS could not create the child process.
var ErrSpawnFailed = errors.New("failed to spawn daemon process")

// OutputMode selects what happens to the child's stdout/stderr.
type OutputMode int

const (
	// OutputDiscard silences the child (the default for quiet test runs).
	OutputDiscard OutputMode = iota
	// OutputInherit attaches the child to this process's stdio.
	OutputInherit
	// OutputStream copies the child's output line by line to stdout with a
	// colored per-daemon prefix.
	OutputStream
)

// SpawnOpts fully describes one child process to supervise. WorkDir and
// Ports transfer ownership to the returned Handle: they are reclaimed on
// teardown and on spawn failure.
type SpawnOpts struct {
	Path  string
	Args  []string
	Env   []string
	Dir   string
	Label string

	Output OutputMode

	WorkDir   string
	Ports     []int
	Allocator *ports.Allocator

	GracePeriod   time.Duration
	KillWait      time.Duration
	RemoveRetries int
}

func (o *SpawnOpts) withDefaults() {
	if o.Allocator == nil {
		o.Allocator = ports.Default
	}
	if o.GracePeriod == 0 {
		o.GracePeriod = 10 * time.Second
	}
	if o.KillWait == 0 {
		o.KillWait = 2 * time.Second
	}
	if o.RemoveRetries == 0 {
		o.RemoveRetries = 3
	}
	if o.Label == "" {
		o.Label = "daemon"
	}
}

// Handle exclusively owns one live child process, the temporary directory it
// runs in, and its allocated ports. It is safe for concurrent use; teardown
// runs at most once no matter how many paths reach it.
type Handle struct {
	logging.Logging

	ID   string
	opts SpawnOpts

	cmd  *exec.Cmd
	done chan struct{}

	mu    sync.Mutex
	state *os.ProcessState

	teardown sync.Once
	warn     error
}

// Spawn launches the executable and returns immediately; readiness is the
// caller's concern. On failure the workdir and ports from opts are reclaimed
// so no error branch leaks resources.
func Spawn(opts SpawnOpts) (*Handle, error) {
	opts.withDefaults()

	h := &Handle{
		ID:   uuid.New().String(),
		opts: opts,
		done: make(chan struct{}),
	}
	h.Logging = logging.NewLogging(logging.L().Named(opts.Label))

	cmd := exec.Command(opts.Path, opts.Args...)
	cmd.Dir = opts.Dir
	if opts.Env != nil {
		cmd.Env = opts.Env
	}

	var stream []io.ReadCloser
	switch opts.Output {
	case OutputInherit:
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
	case OutputStream:
		stdout, err := cmd.StdoutPipe()
		if err != nil {
			h.reclaim()
			return nil, err
		}
		stderr, err := cmd.StderrPipe()
		if err != nil {
			h.reclaim()
			return nil, err
		}
		stream = append(stream, stdout, stderr)
	}

	if err := cmd.Start(); err != nil {
		h.reclaim()
		return nil, fmt.Errorf("%w: %s: %v", ErrSpawnFailed, opts.Path, err)
	}
	h.cmd = cmd

	h.S().Debugw("daemon spawned", "id", h.ID, "path", opts.Path, "pid", cmd.Process.Pid)

	for _, r := range stream {
		go h.pump(r)
	}

	// the watcher owns Wait; it reaps the child exactly once.
	go func() {
		_ = cmd.Wait()
		h.mu.Lock()
		h.state = cmd.ProcessState
		h.mu.Unlock()
		close(h.done)
	}()

	return h, nil
}

// pump copies one output stream to stdout, prefixed and colored per label.
func (h *Handle) pump(r io.ReadCloser) {
	au := aurora.NewAurora(logging.IsTerminal())
	prefix := au.Index(labelColor(h.opts.Label), h.opts.Label+" |").String()

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		fmt.Println(prefix, scanner.Text())
	}
}

// labelColor picks a stable ANSI color for a daemon label.
func labelColor(label string) uint8 {
	palette := []uint8{2, 3, 4, 5, 6, 9, 10, 11, 12, 13, 14}
	hash := fnv.New32a()
	_, _ = hash.Write([]byte(label))
	return palette[hash.Sum32()%uint32(len(palette))]
}

// Pid returns the OS process id of the child.
func (h *Handle) Pid() int {
	return h.cmd.Process.Pid
}

// WorkDir returns the temporary directory owned by this handle.
func (h *Handle) WorkDir() string {
	return h.opts.WorkDir
}

// Exited reports whether the child has exited, and a human-readable exit
// status when it has.
func (h *Handle) Exited() (bool, string) {
	select {
	case <-h.done:
		h.mu.Lock()
		defer h.mu.Unlock()
		if h.state == nil {
			return true, "unknown exit status"
		}
		return true, h.state.String()
	default:
		return false, ""
	}
}

// Done returns a channel closed once the child has been reaped.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}
