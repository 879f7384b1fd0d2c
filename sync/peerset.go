package sync

import (
	"context"
	cryptorand "crypto/rand"
	"math/rand"
	"sync"

	"github.com/ethereum/go-ethereum/log"
	"github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/peer"
	"golang.org/x/exp/maps"
)

// PeerSetProvider produces a shuffled peer list on demand, refreshing a
// DecayingCache through the transport's DHT lookup at most once per TTL
// window regardless of how many callers ask concurrently.
type PeerSetProvider struct {
	mu        sync.RWMutex
	cache     *DecayingCache[map[peer.ID]struct{}]
	transport Transport
	metrics   *Metrics
}

// NewPeerSetProvider creates a peer-set provider backed by transport, with
// the default 60s cache TTL.
func NewPeerSetProvider(transport Transport, metrics *Metrics) *PeerSetProvider {
	return &PeerSetProvider{
		cache:     NewDecayingCache[map[peer.ID]struct{}](DefaultCacheTTL),
		transport: transport,
		metrics:   metrics,
	}
}

// GetRandomPeers returns a freshly shuffled copy of the current peer set,
// refreshing it from the transport if the cache has decayed. Concurrent
// callers on a stale cache serialize on the write lock; only the first to
// acquire it performs the transport query.
func (p *PeerSetProvider) GetRandomPeers(ctx context.Context) ([]peer.ID, error) {
	p.mu.RLock()
	if peers, ok := p.cache.Get(); ok {
		out := shuffledKeys(peers)
		p.mu.RUnlock()
		return out, nil
	}
	p.mu.RUnlock()

	p.mu.Lock()
	defer p.mu.Unlock()

	// Re-check: another writer may have refreshed the cache while we
	// waited for the write lock.
	if peers, ok := p.cache.Get(); ok {
		return shuffledKeys(peers), nil
	}

	if p.metrics != nil {
		p.metrics.peerSetCacheMisses.Inc()
	}

	self := p.transport.PeerID()
	closest, err := p.transport.GetClosestPeers(ctx, randomPeerID())
	if err != nil {
		log.Debug("Failed to query closest peers", "err", err)
		closest = nil
	}

	fresh := make(map[peer.ID]struct{}, len(closest))
	for _, id := range closest {
		if id == self {
			continue
		}
		fresh[id] = struct{}{}
	}
	p.cache.Update(fresh)

	return shuffledKeys(fresh), nil
}

// Seed overwrites the cached peer set directly, bypassing the transport's
// DHT lookup. Used by the bootstrap loader to inject a known-good peer
// list (and by tests) without waiting for the cache to decay first.
func (p *PeerSetProvider) Seed(peers map[peer.ID]struct{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cache.Update(peers)
}

func shuffledKeys(set map[peer.ID]struct{}) []peer.ID {
	out := maps.Keys(set)
	rand.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	return out
}

// randomPeerID generates an arbitrary peer ID to seed the DHT's
// closest-peers lookup.
func randomPeerID() peer.ID {
	_, pub, err := crypto.GenerateEd25519Key(cryptorand.Reader)
	if err != nil {
		return ""
	}
	id, err := peer.IDFromPublicKey(pub)
	if err != nil {
		return ""
	}
	return id
}
