package sync

import (
	"fmt"

	"github.com/libp2p/go-libp2p/core/peer"
)

// IncorrectStateDiffCount is returned by StateDiffForBlock when a peer's
// response exceeds the declared state-diff item count. A peer that
// under-delivers is skipped in favour of the next peer instead.
type IncorrectStateDiffCount struct {
	Peer peer.ID
}

func (e *IncorrectStateDiffCount) Error() string {
	return fmt.Sprintf("peer %s reported an incorrect state diff item count", e.Peer)
}

// IncorrectTransactionCount is returned by TransactionsForBlock when a
// peer's response does not match the declared transaction count.
type IncorrectTransactionCount struct {
	Peer peer.ID
}

func (e *IncorrectTransactionCount) Error() string {
	return fmt.Sprintf("peer %s reported an incorrect transaction count", e.Peer)
}

// IncorrectEventCount is returned by EventsForBlock when a peer's response
// does not match the declared event count.
type IncorrectEventCount struct {
	Peer peer.ID
}

func (e *IncorrectEventCount) Error() string {
	return fmt.Sprintf("peer %s reported an incorrect event count", e.Peer)
}

// ClassDefinitionsErrorKind discriminates the ways ClassDefinitionsForBlock
// can fail against a single, otherwise-cooperative peer.
type ClassDefinitionsErrorKind int

const (
	CairoDefinitionError ClassDefinitionsErrorKind = iota
	SierraDefinitionError
	IncorrectClassDefinitionCount
)

// ClassDefinitionsError is returned by ClassDefinitionsForBlock, tagged
// with the peer responsible and which failure mode occurred.
type ClassDefinitionsError struct {
	Kind ClassDefinitionsErrorKind
	Peer peer.ID
}

func (e *ClassDefinitionsError) Error() string {
	switch e.Kind {
	case CairoDefinitionError:
		return fmt.Sprintf("peer %s sent an unparseable Cairo-zero class definition", e.Peer)
	case SierraDefinitionError:
		return fmt.Sprintf("peer %s sent an unparseable Sierra class definition", e.Peer)
	case IncorrectClassDefinitionCount:
		return fmt.Sprintf("peer %s reported an incorrect class definition count", e.Peer)
	default:
		return fmt.Sprintf("peer %s: unknown class definitions error", e.Peer)
	}
}
