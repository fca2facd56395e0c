package probe

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/regtestd/regtestd/pkg/logging"
)

var (
	// ErrProcessDied is returned when the supervised child exits before its
	// endpoint ever answered; retrying until the deadline would only mask a
	// crash as a timeout.
	ErrProcessDied = errors.New("process exited before becoming ready")
	// ErrTimedOut is returned when the deadline elapses with the endpoint
	// still not answering.
	ErrTimedOut = errors.New("timed out waiting for readiness")
)

// Checker is a function that checks whether a readiness condition is met. It
// returns whether the check succeeded, an optional message to log, and an
// error in case the check logic itself failed. Connection-refused and
// protocol-handshake failures are the same thing here: not ready yet.
type Checker func() (ok bool, msg string, err error)

// Process is the slice of a daemon handle the gate needs: whether the child
// has already exited, and how.
type Process interface {
	Exited() (bool, string)
}

// WaitReady polls check every interval until it succeeds, the process dies,
// or ctx expires. ctx is the only cancellation point; teardown concurrent
// with an in-flight wait surfaces through the Exited check on the next tick.
func WaitReady(ctx context.Context, p Process, interval time.Duration, check Checker) error {
	log := logging.S()

	var (
		attempt int
		lastMsg string
	)
	for {
		if exited, status := p.Exited(); exited {
			return fmt.Errorf("%w: %s", ErrProcessDied, status)
		}

		attempt++
		ok, msg, err := check()
		if ok {
			log.Debugw("endpoint ready", "attempts", attempt)
			return nil
		}
		lastMsg = msg
		if err != nil {
			lastMsg = fmt.Sprintf("%s: %s", msg, err)
		}
		log.Debugw("not ready yet", "attempt", attempt, "msg", lastMsg)

		select {
		case <-ctx.Done():
			return fmt.Errorf("%w after %d attempts (last: %s)", ErrTimedOut, attempt, lastMsg)
		case <-time.After(interval):
		}
	}
}

// Dialable returns a Checker that probes whether a TCP address accepts
// connections. It proves the socket is bound, not that the daemon has
// finished its handshake; protocol-level checkers build on top of it.
func Dialable(network, address string) Checker {
	return func() (bool, string, error) {
		conn, err := net.DialTimeout(network, address, time.Second)
		if err != nil {
			return false, "address not dialable", err
		}
		_ = conn.Close()
		return true, "address is dialable", nil
	}
}
