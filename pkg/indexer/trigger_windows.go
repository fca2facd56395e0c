//go:build windows
// +build windows

package indexer

// Trigger is a no-op on Windows; the indexer falls back to its poll cycle.
func (i *Indexer) Trigger() error {
	return nil
}
