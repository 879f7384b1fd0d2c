package sync_test

import (
	"context"
	"testing"

	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/stretchr/testify/require"

	p2psync "github.com/eqlabs/starknet-p2p-sync/sync"
	"github.com/eqlabs/starknet-p2p-sync/sync/fixture"
)

func TestGetRandomPeersReturnsRegisteredPeers(t *testing.T) {
	transport := fixture.NewTransport(fixture.NewPeerID("self"))
	transport.Peer(fixture.NewPeerID("a"))
	transport.Peer(fixture.NewPeerID("b"))
	transport.Peer(fixture.NewPeerID("c"))

	provider := p2psync.NewPeerSetProvider(transport, nil)
	peers, err := provider.GetRandomPeers(context.Background())
	require.NoError(t, err)
	require.Len(t, peers, 3)

	seen := make(map[peer.ID]struct{}, len(peers))
	for _, p := range peers {
		seen[p] = struct{}{}
	}
	require.Contains(t, seen, fixture.NewPeerID("a"))
	require.Contains(t, seen, fixture.NewPeerID("b"))
	require.Contains(t, seen, fixture.NewPeerID("c"))
}

func TestGetRandomPeersCachesWithinTTL(t *testing.T) {
	transport := fixture.NewTransport(fixture.NewPeerID("self"))
	transport.Peer(fixture.NewPeerID("a"))

	provider := p2psync.NewPeerSetProvider(transport, nil)
	ctx := context.Background()

	first, err := provider.GetRandomPeers(ctx)
	require.NoError(t, err)
	require.Len(t, first, 1)

	// Registering a second peer after the first lookup must not be visible
	// until the cache decays -- GetRandomPeers is still serving the stale
	// snapshot taken at the first call.
	transport.Peer(fixture.NewPeerID("b"))
	second, err := provider.GetRandomPeers(ctx)
	require.NoError(t, err)
	require.Len(t, second, 1)
}

func TestSeedBypassesTransportQuery(t *testing.T) {
	transport := fixture.NewTransport(fixture.NewPeerID("self"))
	provider := p2psync.NewPeerSetProvider(transport, nil)

	seeded := fixture.NewPeerID("bootstrap-peer")
	provider.Seed(map[peer.ID]struct{}{seeded: {}})

	peers, err := provider.GetRandomPeers(context.Background())
	require.NoError(t, err)
	require.Equal(t, []peer.ID{seeded}, peers)
}
