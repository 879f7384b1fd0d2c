package sync_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	p2psync "github.com/eqlabs/starknet-p2p-sync/sync"
	"github.com/eqlabs/starknet-p2p-sync/sync/fixture"
)

func headerAt(n uint64) p2psync.SignedBlockHeader {
	return p2psync.SignedBlockHeader{Number: p2psync.BlockNumber(n)}
}

func TestHeaderStreamFullRangeFromOnePeer(t *testing.T) {
	transport := fixture.NewTransport(fixture.NewPeerID("self"))
	good := fixture.NewPeerID("good")
	transport.Peer(good).Headers(
		fixture.HeaderItem(headerAt(1)),
		fixture.HeaderItem(headerAt(2)),
		fixture.HeaderItem(headerAt(3)),
	)

	client := p2psync.NewClient(transport, nil, nil, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	ch := client.HeaderStream(ctx, 1, 3, false)

	var got []p2psync.BlockNumber
	for pd := range ch {
		got = append(got, pd.Data.Number)
	}
	require.NoError(t, client.Close())
	require.Equal(t, []p2psync.BlockNumber{1, 2, 3}, got)
}

func TestHeaderStreamRotatesPastFailingPeer(t *testing.T) {
	transport := fixture.NewTransport(fixture.NewPeerID("self"))
	bad := fixture.NewPeerID("bad")
	good := fixture.NewPeerID("good")
	transport.Peer(bad).HeadersErr(errors.New("connection refused"))
	transport.Peer(good).Headers(
		fixture.HeaderItem(headerAt(1)),
		fixture.HeaderItem(headerAt(2)),
	)

	client := p2psync.NewClient(transport, nil, nil, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	ch := client.HeaderStream(ctx, 1, 2, false)

	var got []p2psync.BlockNumber
	for pd := range ch {
		got = append(got, pd.Data.Number)
	}
	require.NoError(t, client.Close())
	require.Equal(t, []p2psync.BlockNumber{1, 2}, got)
}

func TestHeaderStreamOverDeliveryTruncatesAndPunishes(t *testing.T) {
	transport := fixture.NewTransport(fixture.NewPeerID("self"))
	greedy := fixture.NewPeerID("greedy")
	transport.Peer(greedy).Headers(
		fixture.HeaderItem(headerAt(1)),
		fixture.HeaderItem(headerAt(2)),
		fixture.HeaderItem(headerAt(3)),
		fixture.HeaderItem(headerAt(4)), // past stop=3, should be rejected
	)

	punisher := p2psync.NewPunisher()
	client := p2psync.NewClient(transport, nil, punisher, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	ch := client.HeaderStream(ctx, 1, 3, false)

	var got []p2psync.BlockNumber
	for pd := range ch {
		got = append(got, pd.Data.Number)
	}
	require.NoError(t, client.Close())
	require.Equal(t, []p2psync.BlockNumber{1, 2, 3}, got)
	require.Equal(t, 1, punisher.Strikes(greedy))
}

func TestHeaderStreamReverse(t *testing.T) {
	transport := fixture.NewTransport(fixture.NewPeerID("self"))
	peer := fixture.NewPeerID("peer")
	transport.Peer(peer).Headers(
		fixture.HeaderItem(headerAt(3)),
		fixture.HeaderItem(headerAt(2)),
		fixture.HeaderItem(headerAt(1)),
	)

	client := p2psync.NewClient(transport, nil, nil, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	ch := client.HeaderStream(ctx, 1, 3, true)

	var got []p2psync.BlockNumber
	for pd := range ch {
		got = append(got, pd.Data.Number)
	}
	require.NoError(t, client.Close())
	require.Equal(t, []p2psync.BlockNumber{3, 2, 1}, got)
}
