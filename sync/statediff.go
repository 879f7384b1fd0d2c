package sync

import (
	"context"
	"fmt"

	"github.com/libp2p/go-libp2p/core/peer"
)

// StateDiffStream streams state updates for the inclusive range [start,
// stop], one StateUpdateBlockData per block. expectations must yield one
// StateDiffExpectation per block in traversal order; Count is the total
// number of elementary diff items expected -- storage writes, nonce
// changes, class deployments and class declarations all count toward the
// same flat budget.
func (c *Client) StateDiffStream(ctx context.Context, start, stop BlockNumber, reverse bool, expectations <-chan StateDiffExpectation) <-chan PeerData[StateUpdateBlockData] {
	out := make(chan PeerData[StateUpdateBlockData], 1)
	c.spawn(func() error { return c.runStateDiffStream(ctx, start, stop, reverse, expectations, out) })
	return out
}

func (c *Client) runStateDiffStream(ctx context.Context, start, stop BlockNumber, reverse bool, expectations <-chan StateDiffExpectation, out chan<- PeerData[StateUpdateBlockData]) error {
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
	acc := NewStateUpdateData()

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
			acc = NewStateUpdateData()

			if err := c.pacer.wait(ctx); err != nil {
				return err
			}
			// One request covers every block still remaining in [cur,
			// target]; only a failed or misbehaving peer causes a new
			// request to be opened for the blocks it didn't deliver.
			req := StateDiffsRequest{Iteration: newIteration(uint64(cur), headerLimit(dir, cur, target), dir)}
			responses, err := c.transport.SendStateDiffsSyncRequest(ctx, p, req)
			if err != nil {
				c.log.Debug("State diffs request failed", "peer", p, "err", err)
				if err := c.pacer.backoff(ctx, backoffRequests); err != nil {
					return err
				}
				continue nextPeer
			}

			for {
				final := cur == target
				switch c.consumeStateDiffItem(ctx, p, responses, &progress, &acc, final) {
				case attemptMoreExpected:
					continue
				case attemptYielded:
					data := StateUpdateBlockData{
						ExpectedCommitment: progress.Commitment(),
						StateDiff:          acc,
					}
					select {
					case out <- NewPeerData(p, data):
					case <-ctx.Done():
						return ctx.Err()
					}
					c.metrics.blockStreamed("state_diffs")
					cur = advance(cur, dir)
					if headerDone(dir, cur, target) {
						return nil
					}

					expectation, ok := recvExpectation(ctx, expectations)
					if !ok {
						return ctx.Err()
					}
					progress = NewStreamProgress(expectation.Count, expectation.Commitment)
					acc = NewStateUpdateData()
					continue
				case attemptTerminated:
					return fmt.Errorf("state diff over-delivery on final block %d from peer %s", cur, p)
				case attemptNextPeer:
					continue nextPeer
				}
			}
		}
	}
}

// consumeStateDiffItem reads exactly one response off a peer's still-open,
// possibly-multi-block response stream and folds it into the block
// currently being assembled. Every elementary item inside a ContractDiff
// (each storage write, the optional nonce update, the optional class
// deployment) and every DeclaredClass response decrements the shared
// budget by one -- including the oddity that a diff touching the system
// contract still runs through the same try-yield accounting as any other
// contract, instead of being special-cased out of the budget. A block
// boundary is detected purely by the budget reaching zero, since Fin only
// terminates the whole multi-block response, not each block within it.
func (c *Client) consumeStateDiffItem(ctx context.Context, p peer.ID, responses <-chan StateDiffResponse, progress *StreamProgress[StateDiffCommitment], acc *StateUpdateData, final bool) streamAttemptResult {
	select {
	case <-ctx.Done():
		// The caller's loop sees ctx.Err() before trying another peer.
		return attemptNextPeer
	case resp, ok := <-responses:
		if !ok {
			if progress.Done() {
				return attemptYielded
			}
			c.metrics.underDelivered("state_diffs")
			c.reportMisbehavior(p, "state diff stream closed early")
			return attemptNextPeer
		}
		switch resp.Kind {
		case StateDiffResponseFin:
			if progress.Done() {
				return attemptYielded
			}
			c.metrics.underDelivered("state_diffs")
			c.reportMisbehavior(p, "state diff under-delivery")
			return attemptNextPeer
		case StateDiffResponseContract:
			d := resp.ContractDiff
			items := uint64(len(d.Values))
			if d.Nonce != nil {
				items++
			}
			if d.ClassHash != nil {
				items++
			}
			if !progress.Consume(items) {
				c.metrics.overDelivered("state_diffs")
				c.reportMisbehavior(p, "state diff over-delivery")
				if final {
					return attemptTerminated
				}
				return attemptNextPeer
			}
			update := acc.contractUpdate(d.Address)
			for _, entry := range d.Values {
				update.Storage[entry.Key] = entry.Value
			}
			if d.Nonce != nil {
				update.Nonce = d.Nonce
			}
			if d.ClassHash != nil {
				update.Class = &ContractClassUpdate{Kind: ContractClassUpdateDeploy, ClassHash: *d.ClassHash}
			}
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
		case StateDiffResponseDeclaredClass:
			if !progress.Consume(1) {
				c.metrics.overDelivered("state_diffs")
				c.reportMisbehavior(p, "state diff over-delivery")
				if final {
					return attemptTerminated
				}
				return attemptNextPeer
			}
			dc := resp.DeclaredClass
			if dc.CompiledClassHash != nil {
				acc.DeclaredSierraClasses[SierraHash{dc.Hash}] = *dc.CompiledClassHash
			} else {
				acc.DeclaredCairoClasses[ClassHash{dc.Hash}] = struct{}{}
			}
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
