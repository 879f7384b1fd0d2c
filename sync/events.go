package sync

import (
	"context"
	"fmt"

	"github.com/libp2p/go-libp2p/core/peer"
)

// EventStream streams events for the inclusive range [start, stop], one
// EventsForBlock per block. Events are grouped by transaction hash purely
// on the basis of adjacency in the response sequence: a run of events
// sharing a transaction hash becomes one TransactionEvents. This grouping
// is taken on trust from the serving peer and not cross-checked against
// the block's transaction list -- the protocol predates the commitment
// scheme that would let a client verify it, so a malicious peer can still
// mis-group events as long as the total count matches.
func (c *Client) EventStream(ctx context.Context, start, stop BlockNumber, reverse bool, expectations <-chan EventsExpectation) <-chan PeerData[EventsForBlock] {
	out := make(chan PeerData[EventsForBlock], 1)
	c.spawn(func() error { return c.runEventStream(ctx, start, stop, reverse, expectations, out) })
	return out
}

func (c *Client) runEventStream(ctx context.Context, start, stop BlockNumber, reverse bool, expectations <-chan EventsExpectation, out chan<- PeerData[EventsForBlock]) error {
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
	grouper := newEventGrouper()

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
			grouper = newEventGrouper()

			if err := c.pacer.wait(ctx); err != nil {
				return err
			}
			// One request covers every block still remaining in [cur,
			// target]; only a failed or misbehaving peer causes a new
			// request to be opened for the blocks it didn't deliver.
			req := EventsRequest{Iteration: newIteration(uint64(cur), headerLimit(dir, cur, target), dir)}
			responses, err := c.transport.SendEventsSyncRequest(ctx, p, req)
			if err != nil {
				c.log.Debug("Events request failed", "peer", p, "err", err)
				if err := c.pacer.backoff(ctx, backoffRequests); err != nil {
					return err
				}
				continue nextPeer
			}

			for {
				final := cur == target
				switch c.consumeEventItem(ctx, p, responses, &progress, grouper, final) {
				case attemptMoreExpected:
					continue
				case attemptYielded:
					data := EventsForBlock{Block: cur, Transactions: grouper.finish()}
					select {
					case out <- NewPeerData(p, data):
					case <-ctx.Done():
						return ctx.Err()
					}
					c.metrics.blockStreamed("events")
					cur = advance(cur, dir)
					if headerDone(dir, cur, target) {
						return nil
					}

					expectation, ok := recvExpectation(ctx, expectations)
					if !ok {
						return ctx.Err()
					}
					progress = NewBlockProgress(expectation.Count)
					grouper = newEventGrouper()
					continue
				case attemptTerminated:
					return fmt.Errorf("event over-delivery on final block %d from peer %s", cur, p)
				case attemptNextPeer:
					continue nextPeer
				}
			}
		}
	}
}

// consumeEventItem reads exactly one response off a peer's still-open,
// possibly-multi-block response stream and folds it into the block
// currently in flight. A block boundary is detected purely by the budget
// reaching zero, since Fin only terminates the whole multi-block response,
// not each block within it.
func (c *Client) consumeEventItem(ctx context.Context, p peer.ID, responses <-chan EventResponse, progress *BlockProgress, grouper *eventGrouper, final bool) streamAttemptResult {
	select {
	case <-ctx.Done():
		// The caller's loop sees ctx.Err() before trying another peer.
		return attemptNextPeer
	case resp, ok := <-responses:
		if !ok {
			if progress.Done() {
				return attemptYielded
			}
			c.metrics.underDelivered("events")
			c.reportMisbehavior(p, "event stream closed early")
			return attemptNextPeer
		}
		switch resp.Kind {
		case EventResponseFin:
			if progress.Done() {
				return attemptYielded
			}
			c.metrics.underDelivered("events")
			c.reportMisbehavior(p, "event under-delivery")
			return attemptNextPeer
		case EventResponseEvent:
			if !progress.Consume(1) {
				c.metrics.overDelivered("events")
				c.reportMisbehavior(p, "event over-delivery")
				if final {
					return attemptTerminated
				}
				return attemptNextPeer
			}
			grouper.add(resp.Event.TransactionHash, resp.Event.Event)
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
		}
	}
	return attemptMoreExpected
}

// eventGrouper folds a flat sequence of (transaction hash, event) pairs
// into runs of consecutive same-hash events, grouping by adjacency rather
// than by a global sort.
type eventGrouper struct {
	groups  []TransactionEvents
	hasOpen bool
}

func newEventGrouper() *eventGrouper {
	return &eventGrouper{}
}

func (g *eventGrouper) add(hash TransactionHash, event Event) {
	if g.hasOpen && g.groups[len(g.groups)-1].TransactionHash == hash {
		last := &g.groups[len(g.groups)-1]
		last.Events = append(last.Events, event)
		return
	}
	g.groups = append(g.groups, TransactionEvents{TransactionHash: hash, Events: []Event{event}})
	g.hasOpen = true
}

func (g *eventGrouper) finish() []TransactionEvents {
	return g.groups
}
