package sync

import (
	"context"

	"github.com/libp2p/go-libp2p/core/peer"
)

// BlockClient is the single-block counterpart to the five streams: each
// method fetches exactly one block's artifact, trying peers in sequence
// until one delivers a count-matching response or the context is
// cancelled. The expected commitment is not checked here. Every call treats its one block as the final
// block of its own range, so an over-delivering peer ends the call with
// an error instead of silently being retried forever.
type BlockClient interface {
	TransactionsForBlock(ctx context.Context, block BlockNumber, expectation TransactionExpectation) (peer.ID, []TransactionAndReceipt, error)
	StateDiffForBlock(ctx context.Context, block BlockNumber, expectation StateDiffExpectation) (peer.ID, StateUpdateData, error)
	ClassDefinitionsForBlock(ctx context.Context, block BlockNumber, expectation ClassExpectation) (peer.ID, []ClassDefinition, error)
	EventsForBlock(ctx context.Context, block BlockNumber, expectation EventsExpectation) (peer.ID, EventsForBlock, error)
}

var _ BlockClient = (*Client)(nil)

func (c *Client) TransactionsForBlock(ctx context.Context, block BlockNumber, expectation TransactionExpectation) (peer.ID, []TransactionAndReceipt, error) {
	for {
		peerList, err := c.getPeers(ctx)
		if err != nil {
			return "", nil, err
		}
		if len(peerList) == 0 {
			if sleepOrDone(ctx, emptyPeerSetBackoff) {
				return "", nil, ctx.Err()
			}
			continue
		}

		for _, p := range peerList {
			if ctx.Err() != nil {
				return "", nil, ctx.Err()
			}
			progress := NewStreamProgress(expectation.Count, expectation.Commitment)
			acc := make([]TransactionAndReceipt, 0, expectation.Count)

			if err := c.pacer.wait(ctx); err != nil {
				return "", nil, err
			}
			req := TransactionsRequest{Iteration: newIteration(uint64(block), 1, Forward)}
			responses, err := c.transport.SendTransactionsSyncRequest(ctx, p, req)
			if err != nil {
				c.log.Debug("Transactions request failed", "peer", p, "err", err)
				if err := c.pacer.backoff(ctx, backoffRequests); err != nil {
					return "", nil, err
				}
				continue
			}

			result := attemptMoreExpected
			for result == attemptMoreExpected {
				result = c.consumeTransactionItem(ctx, p, responses, &progress, &acc, true)
			}
			switch result {
			case attemptYielded:
				return p, acc, nil
			case attemptTerminated:
				return p, nil, &IncorrectTransactionCount{Peer: p}
			case attemptNextPeer:
				continue
			}
		}
	}
}

func (c *Client) StateDiffForBlock(ctx context.Context, block BlockNumber, expectation StateDiffExpectation) (peer.ID, StateUpdateData, error) {
	for {
		peerList, err := c.getPeers(ctx)
		if err != nil {
			return "", StateUpdateData{}, err
		}
		if len(peerList) == 0 {
			if sleepOrDone(ctx, emptyPeerSetBackoff) {
				return "", StateUpdateData{}, ctx.Err()
			}
			continue
		}

		for _, p := range peerList {
			if ctx.Err() != nil {
				return "", StateUpdateData{}, ctx.Err()
			}
			progress := NewStreamProgress(expectation.Count, expectation.Commitment)
			acc := NewStateUpdateData()

			if err := c.pacer.wait(ctx); err != nil {
				return "", StateUpdateData{}, err
			}
			req := StateDiffsRequest{Iteration: newIteration(uint64(block), 1, Forward)}
			responses, err := c.transport.SendStateDiffsSyncRequest(ctx, p, req)
			if err != nil {
				c.log.Debug("State diffs request failed", "peer", p, "err", err)
				if err := c.pacer.backoff(ctx, backoffRequests); err != nil {
					return "", StateUpdateData{}, err
				}
				continue
			}

			result := attemptMoreExpected
			for result == attemptMoreExpected {
				result = c.consumeStateDiffItem(ctx, p, responses, &progress, &acc, true)
			}
			switch result {
			case attemptYielded:
				return p, acc, nil
			case attemptTerminated:
				return p, StateUpdateData{}, &IncorrectStateDiffCount{Peer: p}
			case attemptNextPeer:
				continue
			}
		}
	}
}

func (c *Client) ClassDefinitionsForBlock(ctx context.Context, block BlockNumber, expectation ClassExpectation) (peer.ID, []ClassDefinition, error) {
	for {
		peerList, err := c.getPeers(ctx)
		if err != nil {
			return "", nil, err
		}
		if len(peerList) == 0 {
			if sleepOrDone(ctx, emptyPeerSetBackoff) {
				return "", nil, ctx.Err()
			}
			continue
		}

		for _, p := range peerList {
			if ctx.Err() != nil {
				return "", nil, ctx.Err()
			}
			progress := NewBlockProgress(expectation.Count)
			acc := make([]ClassDefinition, 0, expectation.Count)

			if err := c.pacer.wait(ctx); err != nil {
				return "", nil, err
			}
			req := ClassesRequest{Iteration: newIteration(uint64(block), 1, Forward)}
			responses, err := c.transport.SendClassesSyncRequest(ctx, p, req)
			if err != nil {
				c.log.Debug("Classes request failed", "peer", p, "err", err)
				if err := c.pacer.backoff(ctx, backoffRequests); err != nil {
					return "", nil, err
				}
				continue
			}

			result := attemptMoreExpected
			for result == attemptMoreExpected {
				result = c.consumeClassItem(ctx, p, responses, &progress, &acc, block, true)
			}
			switch result {
			case attemptYielded:
				return p, acc, nil
			case attemptTerminated:
				return p, nil, &ClassDefinitionsError{Kind: IncorrectClassDefinitionCount, Peer: p}
			case attemptNextPeer:
				continue
			}
		}
	}
}

func (c *Client) EventsForBlock(ctx context.Context, block BlockNumber, expectation EventsExpectation) (peer.ID, EventsForBlock, error) {
	for {
		peerList, err := c.getPeers(ctx)
		if err != nil {
			return "", EventsForBlock{}, err
		}
		if len(peerList) == 0 {
			if sleepOrDone(ctx, emptyPeerSetBackoff) {
				return "", EventsForBlock{}, ctx.Err()
			}
			continue
		}

		for _, p := range peerList {
			if ctx.Err() != nil {
				return "", EventsForBlock{}, ctx.Err()
			}
			progress := NewBlockProgress(expectation.Count)
			grouper := newEventGrouper()

			if err := c.pacer.wait(ctx); err != nil {
				return "", EventsForBlock{}, err
			}
			req := EventsRequest{Iteration: newIteration(uint64(block), 1, Forward)}
			responses, err := c.transport.SendEventsSyncRequest(ctx, p, req)
			if err != nil {
				c.log.Debug("Events request failed", "peer", p, "err", err)
				if err := c.pacer.backoff(ctx, backoffRequests); err != nil {
					return "", EventsForBlock{}, err
				}
				continue
			}

			result := attemptMoreExpected
			for result == attemptMoreExpected {
				result = c.consumeEventItem(ctx, p, responses, &progress, grouper, true)
			}
			switch result {
			case attemptYielded:
				return p, EventsForBlock{Block: block, Transactions: grouper.finish()}, nil
			case attemptTerminated:
				return p, EventsForBlock{}, &IncorrectEventCount{Peer: p}
			case attemptNextPeer:
				continue
			}
		}
	}
}
