package sync

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2/simplelru"
	"github.com/libp2p/go-libp2p/core/peer"
)

// Punisher is the opaque on_misbehavior(peer, reason) hook every bad-response
// site in this package calls as a future insertion point for a real
// peer-reputation system. This package has no such system -- it only counts
// strikes, and leaves down-scoring as a later concern.
type Punisher interface {
	OnMisbehavior(p peer.ID, reason string)
}

// maxTrackedPeers bounds the punisher's LRU: recent activity matters,
// ancient history doesn't.
const maxTrackedPeers = 4096

// LRUPunisher is the default Punisher: a bounded per-peer strike counter.
type LRUPunisher struct {
	mu      sync.Mutex
	strikes *lru.LRU[peer.ID, int]
}

// NewPunisher returns a Punisher that records, but does not act on,
// misbehavior strikes per peer. The concrete type is returned (rather than
// the Punisher interface) so callers that want to inspect strike counts,
// such as tests, don't need a type assertion.
func NewPunisher() *LRUPunisher {
	strikes, _ := lru.NewLRU[peer.ID, int](maxTrackedPeers, nil)
	return &LRUPunisher{strikes: strikes}
}

func (p *LRUPunisher) OnMisbehavior(id peer.ID, reason string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	n, _ := p.strikes.Get(id)
	p.strikes.Add(id, n+1)
}

// Strikes returns how many times id has been reported misbehaving.
func (p *LRUPunisher) Strikes(id peer.ID) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n, _ := p.strikes.Get(id)
	return n
}

// noopPunisher discards every report; used when a caller has not wired in
// a real Punisher.
type noopPunisher struct{}

func (noopPunisher) OnMisbehavior(peer.ID, string) {}
