package sync_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	p2psync "github.com/eqlabs/starknet-p2p-sync/sync"
	"github.com/eqlabs/starknet-p2p-sync/sync/fixture"
)

func contractDiffAt(addr, key, value uint64) p2psync.StateDiffResponse {
	return fixture.ContractDiffItem(p2psync.WireContractDiff{
		Address: p2psync.ContractAddress{Felt: *uint256.NewInt(addr)},
		Values: []p2psync.WireStorageEntry{
			{Key: p2psync.StorageAddress{Felt: *uint256.NewInt(key)}, Value: p2psync.StorageValue{Felt: *uint256.NewInt(value)}},
		},
	})
}

func sendStateDiffExpectations(blocks []p2psync.BlockNumber, count uint64) <-chan p2psync.StateDiffExpectation {
	out := make(chan p2psync.StateDiffExpectation, 1)
	go func() {
		defer close(out)
		for range blocks {
			out <- p2psync.StateDiffExpectation{Count: count}
		}
	}()
	return out
}

func TestStateDiffStreamHappyPath(t *testing.T) {
	transport := fixture.NewTransport(fixture.NewPeerID("self"))
	good := fixture.NewPeerID("good")
	transport.Peer(good).StateDiffs(contractDiffAt(10, 1, 2))

	client := p2psync.NewClient(transport, nil, nil, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	expectations := sendStateDiffExpectations([]p2psync.BlockNumber{1}, 1)
	ch := client.StateDiffStream(ctx, 1, 1, false, expectations)

	pd, ok := <-ch
	require.True(t, ok)
	require.Len(t, pd.Data.StateDiff.ContractUpdates, 1)
	update := pd.Data.StateDiff.ContractUpdates[p2psync.ContractAddress{Felt: *uint256.NewInt(10)}]
	require.NotNil(t, update)
	want := map[p2psync.StorageAddress]p2psync.StorageValue{
		{Felt: *uint256.NewInt(1)}: {Felt: *uint256.NewInt(2)},
	}
	if diff := cmp.Diff(want, update.Storage); diff != "" {
		t.Fatalf("storage mismatch (-want +got):\n%s", diff)
	}

	_, ok = <-ch
	require.False(t, ok)
	require.NoError(t, client.Close())
}

func TestStateDiffStreamCoversRangeWithOneRequest(t *testing.T) {
	transport := fixture.NewTransport(fixture.NewPeerID("self"))
	good := fixture.NewPeerID("good")
	// Both blocks' diffs come back on the one scripted call: a range
	// request is served by a single stream, not one request per block.
	transport.Peer(good).StateDiffs(contractDiffAt(10, 1, 2), contractDiffAt(11, 3, 4))

	client := p2psync.NewClient(transport, nil, nil, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	expectations := sendStateDiffExpectations([]p2psync.BlockNumber{1, 2}, 1)
	ch := client.StateDiffStream(ctx, 1, 2, false, expectations)

	var blocks int
	for range ch {
		blocks++
	}
	require.NoError(t, client.Close())
	require.Equal(t, 2, blocks)
	require.Equal(t, 1, transport.RequestCount(good, "stateDiffs"))
}

func TestStateDiffStreamUnderDeliveryPrefersCompleteReport(t *testing.T) {
	transport := fixture.NewTransport(fixture.NewPeerID("self"))
	stingy := fixture.NewPeerID("stingy")
	generous := fixture.NewPeerID("generous")

	transport.Peer(stingy).StateDiffs(contractDiffAt(10, 1, 2))
	transport.Peer(generous).StateDiffs(contractDiffAt(10, 1, 2), contractDiffAt(11, 3, 4))

	client := p2psync.NewClient(transport, nil, nil, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	expectations := sendStateDiffExpectations([]p2psync.BlockNumber{1}, 2)
	ch := client.StateDiffStream(ctx, 1, 1, false, expectations)

	pd, ok := <-ch
	require.True(t, ok)
	require.Equal(t, generous, pd.Peer)
	require.Len(t, pd.Data.StateDiff.ContractUpdates, 2)

	require.NoError(t, client.Close())
}

func TestStateDiffStreamOverDeliveryOnFinalBlockEndsStreamWithError(t *testing.T) {
	transport := fixture.NewTransport(fixture.NewPeerID("self"))
	greedy := fixture.NewPeerID("greedy")
	transport.Peer(greedy).StateDiffs(contractDiffAt(10, 1, 2), contractDiffAt(11, 3, 4))

	client := p2psync.NewClient(transport, nil, nil, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	expectations := sendStateDiffExpectations([]p2psync.BlockNumber{1}, 1)
	ch := client.StateDiffStream(ctx, 1, 1, false, expectations)

	for range ch {
	}
	require.Error(t, client.Close())
}
