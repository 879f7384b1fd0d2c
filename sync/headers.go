package sync

import (
	"context"
	"time"
)

// emptyPeerSetBackoff bounds how long the header (and every other)
// streamer waits before asking the peer-set provider again when it came
// back empty, so an empty-network startup doesn't spin a CPU core.
const emptyPeerSetBackoff = 200 * time.Millisecond

func advance(n BlockNumber, dir Direction) BlockNumber {
	if dir == Forward {
		return n + 1
	}
	return n - 1
}

func headerDone(dir Direction, cur, target BlockNumber) bool {
	if dir == Forward {
		return cur > target
	}
	return cur < target
}

func headerLimit(dir Direction, cur, target BlockNumber) uint64 {
	if dir == Forward {
		return uint64(target-cur) + 1
	}
	return uint64(cur-target) + 1
}

// HeaderStream streams signed block headers for the inclusive range
// [start, stop]. When reverse is true, blocks are walked from stop down
// to start. There is no expectation channel -- a header's count is
// implicit in the range, unlike every other streamer.
func (c *Client) HeaderStream(ctx context.Context, start, stop BlockNumber, reverse bool) <-chan PeerData[SignedBlockHeader] {
	out := make(chan PeerData[SignedBlockHeader], 1)
	c.spawn(func() error { return c.runHeaderStream(ctx, start, stop, reverse, out) })
	return out
}

func (c *Client) runHeaderStream(ctx context.Context, start, stop BlockNumber, reverse bool, out chan<- PeerData[SignedBlockHeader]) error {
	defer close(out)

	dir := Forward
	cur, target := start, stop
	if reverse {
		dir = Backward
		cur, target = stop, start
	}

	c.log.Trace("Streaming headers", "start", cur, "stop", target, "direction", dir)

outer:
	for {
		peers, err := c.getPeers(ctx)
		if err != nil {
			return err
		}
		if len(peers) == 0 {
			if sleepOrDone(ctx, emptyPeerSetBackoff) {
				return ctx.Err()
			}
			continue
		}

	peers:
		for _, p := range peers {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if err := c.pacer.wait(ctx); err != nil {
				return err
			}
			req := HeadersRequest{Iteration: newIteration(uint64(cur), headerLimit(dir, cur, target), dir)}
			responses, err := c.transport.SendHeadersSyncRequest(ctx, p, req)
			if err != nil {
				c.log.Debug("Headers request failed", "peer", p, "err", err)
				if err := c.pacer.backoff(ctx, backoffRequests); err != nil {
					return err
				}
				continue peers
			}

			for {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case resp, ok := <-responses:
					if !ok {
						if headerDone(dir, cur, target) {
							break outer
						}
						c.log.Debug("Header stream Fin missing", "peer", p)
						c.reportMisbehavior(p, "header stream closed early")
						continue peers
					}
					switch resp.Kind {
					case HeaderResponseFin:
						c.log.Trace("Header stream Fin", "peer", p)
						if headerDone(dir, cur, target) {
							break outer
						}
						continue peers
					case HeaderResponseHeader:
						if headerDone(dir, cur, target) {
							c.log.Debug("Header stream Fin missing, got extra header instead", "peer", p)
							c.metrics.overDelivered("headers")
							c.reportMisbehavior(p, "header over-delivery")
							break outer
						}
						select {
						case out <- NewPeerData(p, *resp.Header):
						case <-ctx.Done():
							return ctx.Err()
						}
						c.metrics.blockStreamed("headers")
						cur = advance(cur, dir)
					}
				}
			}
		}
	}
	return nil
}

// sleepOrDone waits for d, returning true if ctx was cancelled first.
func sleepOrDone(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return true
	case <-t.C:
		return false
	}
}
