package sync

import (
	"context"
	"fmt"

	"github.com/libp2p/go-libp2p/core/peer"
)

// TransactionStream streams transactions-with-receipts for the inclusive
// range [start, stop], one TransactionBlockData per block. expectations
// must yield exactly one TransactionExpectation per block in range, in
// traversal order; the streamer blocks waiting for each one, so a caller
// that can't yet say how many transactions a block holds simply delays the
// corresponding artifact rather than guessing.
func (c *Client) TransactionStream(ctx context.Context, start, stop BlockNumber, reverse bool, expectations <-chan TransactionExpectation) <-chan PeerData[TransactionBlockData] {
	out := make(chan PeerData[TransactionBlockData], 1)
	c.spawn(func() error { return c.runTransactionStream(ctx, start, stop, reverse, expectations, out) })
	return out
}

func (c *Client) runTransactionStream(ctx context.Context, start, stop BlockNumber, reverse bool, expectations <-chan TransactionExpectation, out chan<- PeerData[TransactionBlockData]) error {
	defer close(out)

	dir := Forward
	cur, target := start, stop
	if reverse {
		dir = Backward
		cur, target = stop, start
	}

	expectation, ok := recvExpectation(ctx, expectations)
	if !ok {
		return ctx.Err()
	}
	progress := NewStreamProgress(expectation.Count, expectation.Commitment)
	acc := make([]TransactionAndReceipt, 0, expectation.Count)

peers:
	for {
		peerList, err := c.getPeers(ctx)
		if err != nil {
			return err
		}
		if len(peerList) == 0 {
			if sleepOrDone(ctx, emptyPeerSetBackoff) {
				return ctx.Err()
			}
			continue peers
		}

	nextPeer:
		for _, p := range peerList {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			progress.Rollback()
			acc = acc[:0]

			if err := c.pacer.wait(ctx); err != nil {
				return err
			}
			// One request covers every block still remaining in [cur,
			// target]; only a failed or misbehaving peer causes a new
			// request to be opened for the blocks it didn't deliver.
			req := TransactionsRequest{Iteration: newIteration(uint64(cur), headerLimit(dir, cur, target), dir)}
			responses, err := c.transport.SendTransactionsSyncRequest(ctx, p, req)
			if err != nil {
				c.log.Debug("Transactions request failed", "peer", p, "err", err)
				if err := c.pacer.backoff(ctx, backoffRequests); err != nil {
					return err
				}
				continue nextPeer
			}

			for {
				final := cur == target
				switch c.consumeTransactionItem(ctx, p, responses, &progress, &acc, final) {
				case attemptMoreExpected:
					continue
				case attemptYielded:
					data := TransactionBlockData{
						ExpectedCommitment: progress.Commitment(),
						Transactions:       append([]TransactionAndReceipt(nil), acc...),
					}
					select {
					case out <- NewPeerData(p, data):
					case <-ctx.Done():
						return ctx.Err()
					}
					c.metrics.blockStreamed("transactions")
					cur = advance(cur, dir)
					if headerDone(dir, cur, target) {
						return nil
					}

					expectation, ok := recvExpectation(ctx, expectations)
					if !ok {
						return ctx.Err()
					}
					progress = NewStreamProgress(expectation.Count, expectation.Commitment)
					acc = acc[:0]
					continue
				case attemptTerminated:
					return fmt.Errorf("transaction over-delivery on final block %d from peer %s", cur, p)
				case attemptNextPeer:
					continue nextPeer
				}
			}
		}
	}
}

type streamAttemptResult int

const (
	attemptNextPeer streamAttemptResult = iota
	attemptMoreExpected
	attemptYielded
	attemptTerminated
)

// consumeTransactionItem reads exactly one response off a peer's
// still-open, possibly-multi-block response stream and folds it into the
// block currently being assembled. A block boundary is detected purely by
// its declared item budget reaching zero: the wire protocol sends a single
// Fin only once, after the last item of the whole requested range, not one
// per block, so attemptMoreExpected is what keeps the caller reading from
// the same stream across a block boundary.
func (c *Client) consumeTransactionItem(ctx context.Context, p peer.ID, responses <-chan TransactionResponse, progress *StreamProgress[TransactionCommitment], acc *[]TransactionAndReceipt, final bool) streamAttemptResult {
	select {
	case <-ctx.Done():
		// The caller's loop sees ctx.Err() before trying another peer.
		return attemptNextPeer
	case resp, ok := <-responses:
		if !ok {
			if progress.Done() {
				return attemptYielded
			}
			c.metrics.underDelivered("transactions")
			c.reportMisbehavior(p, "transaction stream closed early")
			return attemptNextPeer
		}
		switch resp.Kind {
		case TransactionResponseFin:
			if progress.Done() {
				return attemptYielded
			}
			c.metrics.underDelivered("transactions")
			c.reportMisbehavior(p, "transaction under-delivery")
			return attemptNextPeer
		case TransactionResponseItem:
			if !progress.Consume(1) {
				c.metrics.overDelivered("transactions")
				c.reportMisbehavior(p, "transaction over-delivery")
				if final {
					return attemptTerminated
				}
				return attemptNextPeer
			}
			*acc = append(*acc, *resp.Transaction)
			if progress.Done() {
				// Only the literal last block of the whole range has a Fin
				// following it; an intermediate block's budget reaching zero
				// is itself the boundary, since its next response is the
				// first item of the next block, not a terminator.
				if final {
					return attemptMoreExpected
				}
				return attemptYielded
			}
			return attemptMoreExpected
		}
	}
	return attemptMoreExpected
}
