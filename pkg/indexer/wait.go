package indexer

import (
	"context"
	"time"
)

// pollInterval paces the indexing-progress helpers below.
const pollInterval = 100 * time.Millisecond

// defaultWaitBudget caps the helpers when the caller's context carries no
// deadline of its own.
const defaultWaitBudget = time.Minute

// WaitHeight blocks until the indexer has indexed the chain up to height.
func (i *Indexer) WaitHeight(ctx context.Context, height int) error {
	return i.poll(ctx, func() bool {
		_, err := i.Client.BlockHeaderRaw(height)
		return err == nil
	})
}

// WaitTx blocks until the indexer can serve the given transaction.
func (i *Indexer) WaitTx(ctx context.Context, txid string) error {
	return i.poll(ctx, func() bool {
		_, err := i.Client.TransactionGet(txid)
		return err == nil
	})
}

func (i *Indexer) poll(ctx context.Context, done func() bool) error {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, defaultWaitBudget)
		defer cancel()
	}
	for {
		if done() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(pollInterval):
		}
	}
}
