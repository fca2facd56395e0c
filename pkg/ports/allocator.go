package ports

import (
	"errors"
	"fmt"
	"net"
	"sync"
)

// ErrExhausted is returned when the allocator cannot find a free port within
// a bounded number of attempts.
var ErrExhausted = errors.New("no free local ports available")

// maxAttempts bounds the probe loop per requested port.
const maxAttempts = 50

// Allocator hands out currently-unused local TCP ports for daemon endpoints.
//
// The OS assigns the port (bind to :0, read it back, release), so another
// process can still grab it before the daemon does; callers treat a failed
// bind at daemon startup as retryable. Within one test process the allocator
// does give a hard guarantee: a port is never handed out twice while its
// owning fixture is alive. Ports return to the pool via Release on teardown.
//
// Callers inject an Allocator into their fixtures; Default is a convenience
// instance for the common single-process case.
type Allocator struct {
	mu       sync.Mutex
	reserved map[int]struct{}
}

// Default is the process-wide allocator used when a fixture is not given one.
var Default = NewAllocator()

func NewAllocator() *Allocator {
	return &Allocator{reserved: make(map[int]struct{})}
}

// Allocate returns count distinct free ports, reserving them until Release.
// On error no ports remain reserved.
func (a *Allocator) Allocate(count int) ([]int, error) {
	out := make([]int, 0, count)
	for len(out) < count {
		port, err := a.one()
		if err != nil {
			a.Release(out...)
			return nil, err
		}
		out = append(out, port)
	}
	return out, nil
}

func (a *Allocator) one() (int, error) {
	for i := 0; i < maxAttempts; i++ {
		l, err := net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			return 0, fmt.Errorf("ephemeral bind failed: %w", err)
		}
		port := l.Addr().(*net.TCPAddr).Port
		if err := l.Close(); err != nil {
			return 0, err
		}

		a.mu.Lock()
		if _, taken := a.reserved[port]; !taken {
			a.reserved[port] = struct{}{}
			a.mu.Unlock()
			return port, nil
		}
		a.mu.Unlock()
	}
	return 0, ErrExhausted
}

// Release returns ports to the pool. Releasing a port that was never
// allocated is a no-op.
func (a *Allocator) Release(ports ...int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, p := range ports {
		delete(a.reserved, p)
	}
}

// InUse reports how many ports are currently reserved.
func (a *Allocator) InUse() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.reserved)
}
