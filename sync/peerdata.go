package sync

import "github.com/libp2p/go-libp2p/core/peer"

// PeerData attaches the peer that served an artifact to the artifact
// itself, so downstream logic can attribute trust or failure.
type PeerData[T any] struct {
	Peer peer.ID
	Data T
}

// NewPeerData pairs data with the peer that produced it.
func NewPeerData[T any](p peer.ID, data T) PeerData[T] {
	return PeerData[T]{Peer: p, Data: data}
}
