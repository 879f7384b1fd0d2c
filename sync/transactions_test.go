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

func txItemWithNonce(n uint64) p2psync.TransactionResponse {
	return fixture.TransactionItem(p2psync.TransactionAndReceipt{
		Transaction: p2psync.Transaction{Hash: p2psync.TransactionHash{Felt: *uint256.NewInt(n)}},
	})
}

func sendTransactionExpectations(blocks []p2psync.BlockNumber, count uint64) <-chan p2psync.TransactionExpectation {
	out := make(chan p2psync.TransactionExpectation, 1)
	go func() {
		defer close(out)
		for range blocks {
			out <- p2psync.TransactionExpectation{Count: count}
		}
	}()
	return out
}

func TestTransactionStreamHappyPath(t *testing.T) {
	transport := fixture.NewTransport(fixture.NewPeerID("self"))
	good := fixture.NewPeerID("good")
	// Both blocks' items come back on the one scripted call: a range
	// request is served by a single stream, not one request per block.
	transport.Peer(good).Transactions(txItemWithNonce(1), txItemWithNonce(2))

	client := p2psync.NewClient(transport, nil, nil, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	expectations := sendTransactionExpectations([]p2psync.BlockNumber{1, 2}, 1)
	ch := client.TransactionStream(ctx, 1, 2, false, expectations)

	var blocks []int
	for pd := range ch {
		blocks = append(blocks, len(pd.Data.Transactions))
	}
	require.NoError(t, client.Close())
	require.Equal(t, []int{1, 1}, blocks)
}

func TestTransactionStreamCoversRangeWithOneRequest(t *testing.T) {
	transport := fixture.NewTransport(fixture.NewPeerID("self"))
	good := fixture.NewPeerID("good")
	transport.Peer(good).Transactions(txItemWithNonce(1), txItemWithNonce(2), txItemWithNonce(3))

	client := p2psync.NewClient(transport, nil, nil, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	expectations := sendTransactionExpectations([]p2psync.BlockNumber{1, 2, 3}, 1)
	ch := client.TransactionStream(ctx, 1, 3, false, expectations)

	var blocks []int
	for pd := range ch {
		blocks = append(blocks, len(pd.Data.Transactions))
	}
	require.NoError(t, client.Close())
	require.Equal(t, []int{1, 1, 1}, blocks)
	require.Equal(t, 1, transport.RequestCount(good, "transactions"))
}

func TestTransactionStreamUnderDeliveryRotatesPeer(t *testing.T) {
	transport := fixture.NewTransport(fixture.NewPeerID("self"))
	stingy := fixture.NewPeerID("stingy")
	generous := fixture.NewPeerID("generous")

	// stingy claims 2 transactions were expected but only ever sends 1
	// before Fin; generous serves the full count. Whichever peer the
	// random shuffle tries first, the block is only satisfied once the
	// full count has been served -- a stingy peer can never be the one
	// the stream yields from.
	transport.Peer(stingy).Transactions(txItemWithNonce(1))
	transport.Peer(generous).Transactions(txItemWithNonce(1), txItemWithNonce(2))

	client := p2psync.NewClient(transport, nil, nil, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	expectations := sendTransactionExpectations([]p2psync.BlockNumber{1}, 2)
	ch := client.TransactionStream(ctx, 1, 1, false, expectations)

	pd, ok := <-ch
	require.True(t, ok)
	require.Len(t, pd.Data.Transactions, 2)
	require.Equal(t, generous, pd.Peer)

	_, ok = <-ch
	require.False(t, ok)
	require.NoError(t, client.Close())
}

func TestTransactionStreamOverDeliveryOnFinalBlockEndsStreamWithError(t *testing.T) {
	transport := fixture.NewTransport(fixture.NewPeerID("self"))
	greedy := fixture.NewPeerID("greedy")
	transport.Peer(greedy).Transactions(txItemWithNonce(1), txItemWithNonce(2), txItemWithNonce(3))

	client := p2psync.NewClient(transport, nil, nil, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	expectations := sendTransactionExpectations([]p2psync.BlockNumber{1}, 2)
	ch := client.TransactionStream(ctx, 1, 1, false, expectations)

	for range ch {
	}
	require.Error(t, client.Close())
}
