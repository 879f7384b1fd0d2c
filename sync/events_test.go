package sync_test

import (
	"context"
	"testing"
	"time"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	p2psync "github.com/eqlabs/starknet-p2p-sync/sync"
	"github.com/eqlabs/starknet-p2p-sync/sync/fixture"
)

func sendEventsExpectations(blocks []p2psync.BlockNumber, count uint64) <-chan p2psync.EventsExpectation {
	out := make(chan p2psync.EventsExpectation, 1)
	go func() {
		defer close(out)
		for range blocks {
			out <- p2psync.EventsExpectation{Count: count}
		}
	}()
	return out
}

func TestEventStreamGroupsConsecutiveSameTransactionEvents(t *testing.T) {
	transport := fixture.NewTransport(fixture.NewPeerID("self"))
	good := fixture.NewPeerID("good")
	txA := p2psync.TransactionHash{Felt: *uint256.NewInt(1)}
	txB := p2psync.TransactionHash{Felt: *uint256.NewInt(2)}

	transport.Peer(good).Events(
		fixture.EventItem(txA, p2psync.Event{Raw: []byte("a0")}),
		fixture.EventItem(txA, p2psync.Event{Raw: []byte("a1")}),
		fixture.EventItem(txB, p2psync.Event{Raw: []byte("b0")}),
	)

	client := p2psync.NewClient(transport, nil, nil, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	expectations := sendEventsExpectations([]p2psync.BlockNumber{1}, 3)
	ch := client.EventStream(ctx, 1, 1, false, expectations)

	pd, ok := <-ch
	require.True(t, ok)
	require.Len(t, pd.Data.Transactions, 2)
	require.Equal(t, txA, pd.Data.Transactions[0].TransactionHash)
	require.Len(t, pd.Data.Transactions[0].Events, 2)
	require.Equal(t, txB, pd.Data.Transactions[1].TransactionHash)
	require.Len(t, pd.Data.Transactions[1].Events, 1)

	_, ok = <-ch
	require.False(t, ok)
	require.NoError(t, client.Close())
}

func TestEventStreamCoversRangeWithOneRequest(t *testing.T) {
	transport := fixture.NewTransport(fixture.NewPeerID("self"))
	good := fixture.NewPeerID("good")
	tx := p2psync.TransactionHash{Felt: *uint256.NewInt(1)}

	// Both blocks' events come back on the one scripted call, and the same
	// transaction hash appearing in consecutive blocks must not be grouped
	// across the block boundary.
	transport.Peer(good).Events(
		fixture.EventItem(tx, p2psync.Event{Raw: []byte("block-1-event")}),
		fixture.EventItem(tx, p2psync.Event{Raw: []byte("block-2-event")}),
	)

	client := p2psync.NewClient(transport, nil, nil, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	expectations := sendEventsExpectations([]p2psync.BlockNumber{1, 2}, 1)
	ch := client.EventStream(ctx, 1, 2, false, expectations)

	var got []p2psync.EventsForBlock
	for pd := range ch {
		got = append(got, pd.Data)
	}
	require.NoError(t, client.Close())
	require.Len(t, got, 2)
	require.Equal(t, p2psync.BlockNumber(1), got[0].Block)
	require.Len(t, got[0].Transactions, 1)
	require.Equal(t, p2psync.BlockNumber(2), got[1].Block)
	require.Len(t, got[1].Transactions, 1)
	require.Equal(t, 1, transport.RequestCount(good, "events"))
}

func TestEventStreamClosedEarlyRotatesToCompletePeer(t *testing.T) {
	transport := fixture.NewTransport(fixture.NewPeerID("self"))
	flaky := fixture.NewPeerID("flaky")
	stable := fixture.NewPeerID("stable")
	tx := p2psync.TransactionHash{Felt: *uint256.NewInt(1)}

	transport.Peer(flaky).EventsClosedEarly(fixture.EventItem(tx, p2psync.Event{Raw: []byte("only-one")}))
	transport.Peer(stable).Events(
		fixture.EventItem(tx, p2psync.Event{Raw: []byte("e0")}),
		fixture.EventItem(tx, p2psync.Event{Raw: []byte("e1")}),
	)

	client := p2psync.NewClient(transport, nil, nil, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	expectations := sendEventsExpectations([]p2psync.BlockNumber{1}, 2)
	ch := client.EventStream(ctx, 1, 1, false, expectations)

	pd, ok := <-ch
	require.True(t, ok)
	require.Equal(t, stable, pd.Peer)
	require.Len(t, pd.Data.Transactions[0].Events, 2)

	require.NoError(t, client.Close())
}
