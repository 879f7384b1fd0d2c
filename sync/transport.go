package sync

import (
	"context"

	pubsub "github.com/libp2p/go-libp2p-pubsub"
	"github.com/libp2p/go-libp2p/core/peer"
)

// BlockID identifies a block for gossip purposes.
type BlockID struct {
	Number BlockNumber
	Hash   Felt
}

// Transport is the upstream collaborator this package consumes. The
// wire-level libp2p request/response machinery that implements it is out
// of scope for this package; this interface is the thin facade the
// streamers are written against.
type Transport interface {
	// GetClosestPeers returns the peers the transport's DHT considers
	// closest to target. Used only to refresh the peer-set cache.
	GetClosestPeers(ctx context.Context, target peer.ID) ([]peer.ID, error)

	// PeerID returns this node's own identity, so it can be excluded from
	// the peer set returned by GetClosestPeers.
	PeerID() peer.ID

	// Publish gossips data on topic, used by Client.PropagateNewHead.
	Publish(ctx context.Context, topic *pubsub.Topic, data []byte) error

	SendHeadersSyncRequest(ctx context.Context, p peer.ID, req HeadersRequest) (<-chan HeaderResponse, error)
	SendTransactionsSyncRequest(ctx context.Context, p peer.ID, req TransactionsRequest) (<-chan TransactionResponse, error)
	SendStateDiffsSyncRequest(ctx context.Context, p peer.ID, req StateDiffsRequest) (<-chan StateDiffResponse, error)
	SendClassesSyncRequest(ctx context.Context, p peer.ID, req ClassesRequest) (<-chan ClassResponse, error)
	SendEventsSyncRequest(ctx context.Context, p peer.ID, req EventsRequest) (<-chan EventResponse, error)
}
