package probe

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProc struct {
	exited bool
	status string
}

func (f *fakeProc) Exited() (bool, string) { return f.exited, f.status }

func TestWaitReadySucceedsAfterRetries(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var calls int
	check := func() (bool, string, error) {
		calls++
		return calls >= 3, "warming up", nil
	}

	err := WaitReady(ctx, &fakeProc{}, time.Millisecond, check)
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestWaitReadyFailsFastOnDeadProcess(t *testing.T) {
	// deadline is generous on purpose; a dead child must not wait it out.
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	p := &fakeProc{exited: true, status: "exit status 1"}
	never := func() (bool, string, error) { return false, "unreachable", nil }

	start := time.Now()
	err := WaitReady(ctx, p, 100*time.Millisecond, never)
	require.ErrorIs(t, err, ErrProcessDied)
	assert.Contains(t, err.Error(), "exit status 1")
	assert.Less(t, time.Since(start), time.Second)
}

func TestWaitReadyTimesOut(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	never := func() (bool, string, error) { return false, "still down", nil }

	err := WaitReady(ctx, &fakeProc{}, 5*time.Millisecond, never)
	require.ErrorIs(t, err, ErrTimedOut)
	assert.Contains(t, err.Error(), "still down")
}

func TestDialable(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()

	ok, _, err := Dialable("tcp", l.Addr().String())()
	require.NoError(t, err)
	assert.True(t, ok)

	addr := l.Addr().String()
	require.NoError(t, l.Close())

	ok, _, err = Dialable("tcp", addr)()
	assert.False(t, ok)
	assert.Error(t, err)
}
