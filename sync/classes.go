package sync

import (
	"context"
	"fmt"

	"github.com/libp2p/go-libp2p/core/peer"
)

// ClassStream streams declared class definitions for the inclusive range
// [start, stop]. Unlike the other artifacts, a block's classes are only
// released downstream once the whole block is known-good: they're
// accumulated silently while a peer is still being trusted, and flushed
// one ClassDefinition at a time only once that block's declared count is
// fully consumed. A peer that under- or over-delivers loses its entire
// accumulated batch for the block in flight, not just the tail of it.
func (c *Client) ClassStream(ctx context.Context, start, stop BlockNumber, reverse bool, expectations <-chan ClassExpectation) <-chan PeerData[ClassDefinition] {
	out := make(chan PeerData[ClassDefinition], 1)
	c.spawn(func() error { return c.runClassStream(ctx, start, stop, reverse, expectations, out) })
	return out
}

func (c *Client) runClassStream(ctx context.Context, start, stop BlockNumber, reverse bool, expectations <-chan ClassExpectation, out chan<- PeerData[ClassDefinition]) error {
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
	progress := NewBlockProgress(expectation.Count)
	acc := make([]ClassDefinition, 0, expectation.Count)

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
			req := ClassesRequest{Iteration: newIteration(uint64(cur), headerLimit(dir, cur, target), dir)}
			responses, err := c.transport.SendClassesSyncRequest(ctx, p, req)
			if err != nil {
				c.log.Debug("Classes request failed", "peer", p, "err", err)
				if err := c.pacer.backoff(ctx, backoffRequests); err != nil {
					return err
				}
				continue nextPeer
			}

			for {
				final := cur == target
				switch c.consumeClassItem(ctx, p, responses, &progress, &acc, cur, final) {
				case attemptMoreExpected:
					continue
				case attemptYielded:
					for _, def := range acc {
						select {
						case out <- NewPeerData(p, def):
						case <-ctx.Done():
							return ctx.Err()
						}
					}
					c.metrics.blockStreamed("classes")
					cur = advance(cur, dir)
					if headerDone(dir, cur, target) {
						return nil
					}

					expectation, ok := recvExpectation(ctx, expectations)
					if !ok {
						return ctx.Err()
					}
					progress = NewBlockProgress(expectation.Count)
					acc = acc[:0]
					continue
				case attemptTerminated:
					return fmt.Errorf("class over-delivery on final block %d from peer %s", cur, p)
				case attemptNextPeer:
					continue nextPeer
				}
			}
		}
	}
}

// consumeClassItem reads exactly one response off a peer's still-open,
// possibly-multi-block response stream and folds it into the block
// currently in flight, tagging each ClassDefinition with block (the
// caller's current cursor, not a value fixed for the whole call, since the
// cursor advances between blocks served by the same peer attempt). A block
// boundary is detected purely by the budget reaching zero, since Fin only
// terminates the whole multi-block response, not each block within it.
func (c *Client) consumeClassItem(ctx context.Context, p peer.ID, responses <-chan ClassResponse, progress *BlockProgress, acc *[]ClassDefinition, block BlockNumber, final bool) streamAttemptResult {
	select {
	case <-ctx.Done():
		// The caller's loop sees ctx.Err() before trying another peer.
		return attemptNextPeer
	case resp, ok := <-responses:
		if !ok {
			if progress.Done() {
				return attemptYielded
			}
			c.metrics.underDelivered("classes")
			c.reportMisbehavior(p, "class stream closed early")
			return attemptNextPeer
		}
		switch resp.Kind {
		case ClassResponseFin:
			if progress.Done() {
				return attemptYielded
			}
			c.metrics.underDelivered("classes")
			c.reportMisbehavior(p, "class under-delivery")
			return attemptNextPeer
		case ClassResponseCairo0:
			if !progress.Consume(1) {
				c.metrics.overDelivered("classes")
				c.reportMisbehavior(p, "class over-delivery")
				if final {
					return attemptTerminated
				}
				return attemptNextPeer
			}
			*acc = append(*acc, ClassDefinition{Kind: ClassDefinitionCairo, BlockNumber: block, CairoDefinition: resp.Cairo0})
			if progress.Done() {
				// Only the literal last block of the whole range has a Fin
				// following it; an intermediate block's budget reaching zero
				// is itself the boundary.
				if final {
					return attemptMoreExpected
				}
				return attemptYielded
			}
			return attemptMoreExpected
		case ClassResponseCairo1:
			if !progress.Consume(1) {
				c.metrics.overDelivered("classes")
				c.reportMisbehavior(p, "class over-delivery")
				if final {
					return attemptTerminated
				}
				return attemptNextPeer
			}
			*acc = append(*acc, ClassDefinition{Kind: ClassDefinitionSierra, BlockNumber: block, SierraDefinition: resp.Cairo1})
			if progress.Done() {
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
