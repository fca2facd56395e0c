//go:build !windows
// +build !windows

package indexer

import (
	"golang.org/x/sys/unix"
)

// Trigger nudges the indexer to resync immediately via SIGUSR1, useful right
// after generating blocks instead of waiting for its poll cycle.
func (i *Indexer) Trigger() error {
	return i.handle.Signal(unix.SIGUSR1)
}
