package sync

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/golang/snappy"
	"github.com/hashicorp/go-multierror"
	pubsub "github.com/libp2p/go-libp2p-pubsub"
	"github.com/libp2p/go-libp2p/core/peer"
)

// Client is the peer-agnostic sync core's entrypoint: every per-artifact
// stream and every single-block variant hangs off it. It owns no chain
// state of its own -- it is a thin orchestrator over a PeerSetProvider and
// a Transport.
type Client struct {
	transport             Transport
	peers                 *PeerSetProvider
	metrics               *Metrics
	punisher              Punisher
	log                   log.Logger
	blockPropagationTopic *pubsub.Topic

	pacer *requestPacer

	wg      sync.WaitGroup
	errMu   sync.Mutex
	runErrs *multierror.Error
}

// backoffRequests is how many requests' worth of token-bucket budget a
// failed send costs.
const backoffRequests = 100

// NewClient builds a Client. metrics may be nil to disable metrics;
// punisher may be nil to use a no-op punisher; blockPropagationTopic may
// be nil if the caller never intends to call PropagateNewHead.
func NewClient(transport Transport, metrics *Metrics, punisher Punisher, blockPropagationTopic *pubsub.Topic) *Client {
	if punisher == nil {
		punisher = noopPunisher{}
	}
	return &Client{
		transport:             transport,
		peers:                 NewPeerSetProvider(transport, metrics),
		metrics:               metrics,
		punisher:              punisher,
		log:                   log.New("module", "p2p-sync"),
		blockPropagationTopic: blockPropagationTopic,
	}
}

// WithRatePacing enables request pacing: outbound requests, to every peer
// and from every streamer of this Client together, are limited to one per
// interval (with burst allowed upfront), and a failed send costs
// backoffRequests worth of budget, capped at burst. Returns c for chaining.
// Pacing is off by default, which is what every test and the fixture-driven
// CLI want.
func (c *Client) WithRatePacing(interval time.Duration, burst int) *Client {
	c.pacer = newRequestPacer(interval, burst)
	return c
}

// spawn runs fn in its own goroutine, tracked so Close can wait for every
// in-flight streamer and report whatever errors they exited with.
func (c *Client) spawn(fn func() error) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		if err := fn(); err != nil {
			c.errMu.Lock()
			c.runErrs = multierror.Append(c.runErrs, err)
			c.errMu.Unlock()
		}
	}()
}

// Close waits for every streamer this Client spawned to finish and
// returns their aggregated errors, if any. Callers should cancel the
// context passed to each streamer before calling Close, or this blocks
// until they all drain naturally.
func (c *Client) Close() error {
	c.wg.Wait()
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.runErrs.ErrorOrNil()
}

func (c *Client) getPeers(ctx context.Context) ([]peer.ID, error) {
	return c.peers.GetRandomPeers(ctx)
}

// PeerSet exposes the underlying peer-set provider so a Bootstrapper can
// seed it directly.
func (c *Client) PeerSet() *PeerSetProvider {
	return c.peers
}

// reportMisbehavior records a peer's budget violation both in the
// per-peer strike counter and in metrics.
func (c *Client) reportMisbehavior(p peer.ID, reason string) {
	c.punisher.OnMisbehavior(p, reason)
	c.metrics.punished()
}

// PropagateNewHead gossips the given block as the new L2 head on the
// configured topic.
func (c *Client) PropagateNewHead(ctx context.Context, block BlockID) error {
	c.log.Debug("Propagating head", "number", block.Number, "hash", block.Hash.Hex())
	if c.blockPropagationTopic == nil {
		return fmt.Errorf("no block propagation topic configured")
	}
	payload := snappy.Encode(nil, encodeBlockID(block))
	return c.transport.Publish(ctx, c.blockPropagationTopic, payload)
}

func encodeBlockID(b BlockID) []byte {
	hash := b.Hash.Bytes32()
	out := make([]byte, 8+len(hash))
	putUint64(out, uint64(b.Number))
	copy(out[8:], hash[:])
	return out
}

func putUint64(dst []byte, v uint64) {
	for i := 0; i < 8; i++ {
		dst[7-i] = byte(v)
		v >>= 8
	}
}
