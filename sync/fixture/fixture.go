// Package fixture provides an in-memory, deterministic Transport for
// exercising the sync package without a real libp2p network: one peer at a
// time, one sync.Transport call at a time, scripted in advance. It backs
// the package's tests and the CLI's demo mode.
package fixture

import (
	"context"
	"errors"
	"fmt"
	"sync"

	pubsub "github.com/libp2p/go-libp2p-pubsub"
	"github.com/libp2p/go-libp2p/core/peer"

	p2psync "github.com/eqlabs/starknet-p2p-sync/sync"
)

// errScriptExhausted is returned by a Send*SyncRequest call once a peer has
// no more scripted responses queued for that artifact kind. The sync
// package treats it like any other transport-level send failure: log it
// and move on to the next peer.
var errScriptExhausted = errors.New("fixture: peer has no more scripted responses")

// NewPeerID builds a deterministic peer.ID out of label, for tests that
// don't care about real libp2p key material.
func NewPeerID(label string) peer.ID {
	return peer.ID(label)
}

// Transport is a scriptable stand-in for the production libp2p transport.
// Zero value is not usable; construct with NewTransport.
type Transport struct {
	mu        sync.Mutex
	self      peer.ID
	peers     []peer.ID
	scripts   map[peer.ID]*PeerScript
	published [][]byte
	requests  []requestLogEntry
}

// requestLogEntry records one Send*SyncRequest invocation, so tests can
// assert how many separate requests a streamer made to a peer -- a
// multi-block streamer covering its whole range in one go should log
// exactly one entry per peer attempt, not one per block.
type requestLogEntry struct {
	peer peer.ID
	kind string
}

// RequestCount returns how many Send*SyncRequest calls of the given kind
// ("headers", "transactions", "stateDiffs", "classes", "events") were made
// to p.
func (t *Transport) RequestCount(p peer.ID, kind string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, r := range t.requests {
		if r.peer == p && r.kind == kind {
			n++
		}
	}
	return n
}

func (t *Transport) recordRequest(p peer.ID, kind string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.requests = append(t.requests, requestLogEntry{peer: p, kind: kind})
}

// NewTransport creates a transport identifying itself as self.
func NewTransport(self peer.ID) *Transport {
	return &Transport{self: self, scripts: make(map[peer.ID]*PeerScript)}
}

// Peer registers p as discoverable via GetClosestPeers, returning its
// script (creating one on first use) so the caller can queue responses.
func (t *Transport) Peer(p peer.ID) *PeerScript {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.scripts[p]
	if !ok {
		s = newPeerScript()
		t.scripts[p] = s
		t.peers = append(t.peers, p)
	}
	return s
}

// RemovePeer drops p from the set GetClosestPeers returns, simulating a
// disconnect. Its queued script, if any, is left untouched.
func (t *Transport) RemovePeer(p peer.ID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, id := range t.peers {
		if id == p {
			t.peers = append(t.peers[:i], t.peers[i+1:]...)
			return
		}
	}
}

func (t *Transport) PeerID() peer.ID {
	return t.self
}

func (t *Transport) GetClosestPeers(ctx context.Context, target peer.ID) ([]peer.ID, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]peer.ID, len(t.peers))
	copy(out, t.peers)
	return out, nil
}

func (t *Transport) Publish(ctx context.Context, topic *pubsub.Topic, data []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.published = append(t.published, data)
	return nil
}

// Published returns every payload handed to Publish so far, in order.
func (t *Transport) Published() [][]byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([][]byte, len(t.published))
	copy(out, t.published)
	return out
}

func (t *Transport) scriptFor(p peer.ID) (*PeerScript, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.scripts[p]
	if !ok {
		return nil, fmt.Errorf("fixture: unknown peer %s", p)
	}
	return s, nil
}

func (t *Transport) SendHeadersSyncRequest(ctx context.Context, p peer.ID, req p2psync.HeadersRequest) (<-chan p2psync.HeaderResponse, error) {
	t.recordRequest(p, "headers")
	s, err := t.scriptFor(p)
	if err != nil {
		return nil, err
	}
	return s.nextHeaders(ctx)
}

func (t *Transport) SendTransactionsSyncRequest(ctx context.Context, p peer.ID, req p2psync.TransactionsRequest) (<-chan p2psync.TransactionResponse, error) {
	t.recordRequest(p, "transactions")
	s, err := t.scriptFor(p)
	if err != nil {
		return nil, err
	}
	return s.nextTransactions(ctx)
}

func (t *Transport) SendStateDiffsSyncRequest(ctx context.Context, p peer.ID, req p2psync.StateDiffsRequest) (<-chan p2psync.StateDiffResponse, error) {
	t.recordRequest(p, "stateDiffs")
	s, err := t.scriptFor(p)
	if err != nil {
		return nil, err
	}
	return s.nextStateDiffs(ctx)
}

func (t *Transport) SendClassesSyncRequest(ctx context.Context, p peer.ID, req p2psync.ClassesRequest) (<-chan p2psync.ClassResponse, error) {
	t.recordRequest(p, "classes")
	s, err := t.scriptFor(p)
	if err != nil {
		return nil, err
	}
	return s.nextClasses(ctx)
}

func (t *Transport) SendEventsSyncRequest(ctx context.Context, p peer.ID, req p2psync.EventsRequest) (<-chan p2psync.EventResponse, error) {
	t.recordRequest(p, "events")
	s, err := t.scriptFor(p)
	if err != nil {
		return nil, err
	}
	return s.nextEvents(ctx)
}

var _ p2psync.Transport = (*Transport)(nil)

// call is one queued reply to a single Send*SyncRequest invocation: either
// a transport-level error, or a sequence of items terminated by a Fin
// unless closeEarly simulates a peer dropping the stream mid-block.
type call[T any] struct {
	err        error
	items      []T
	closeEarly bool
}

// PeerScript is one peer's queued behavior, one FIFO queue per artifact
// kind. Every Send*SyncRequest call against this peer pops the next queued
// call for that kind; an empty queue yields errScriptExhausted so the
// calling streamer rotates to another peer exactly as it would against an
// unresponsive real peer.
type PeerScript struct {
	mu           sync.Mutex
	headers      []call[p2psync.HeaderResponse]
	transactions []call[p2psync.TransactionResponse]
	stateDiffs   []call[p2psync.StateDiffResponse]
	classes      []call[p2psync.ClassResponse]
	events       []call[p2psync.EventResponse]
}

func newPeerScript() *PeerScript {
	return &PeerScript{}
}

// HeaderItem wraps a header as the non-Fin variant of HeaderResponse.
func HeaderItem(h p2psync.SignedBlockHeader) p2psync.HeaderResponse {
	return p2psync.HeaderResponse{Kind: p2psync.HeaderResponseHeader, Header: &h}
}

// Headers queues a call that serves items and then a Fin.
func (s *PeerScript) Headers(items ...p2psync.HeaderResponse) *PeerScript {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.headers = append(s.headers, call[p2psync.HeaderResponse]{items: items})
	return s
}

// HeadersClosedEarly queues a call that serves items and then closes the
// channel without a Fin, simulating a dropped connection.
func (s *PeerScript) HeadersClosedEarly(items ...p2psync.HeaderResponse) *PeerScript {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.headers = append(s.headers, call[p2psync.HeaderResponse]{items: items, closeEarly: true})
	return s
}

// HeadersErr queues a call that fails at the transport layer, before any
// response channel is even opened.
func (s *PeerScript) HeadersErr(err error) *PeerScript {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.headers = append(s.headers, call[p2psync.HeaderResponse]{err: err})
	return s
}

func (s *PeerScript) nextHeaders(ctx context.Context) (<-chan p2psync.HeaderResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.headers) == 0 {
		return nil, errScriptExhausted
	}
	c := s.headers[0]
	s.headers = s.headers[1:]
	if c.err != nil {
		return nil, c.err
	}
	fin := p2psync.HeaderResponse{Kind: p2psync.HeaderResponseFin}
	return deliver(ctx, c.items, fin, c.closeEarly), nil
}

// TransactionItem wraps a transaction+receipt as the non-Fin variant of
// TransactionResponse.
func TransactionItem(t p2psync.TransactionAndReceipt) p2psync.TransactionResponse {
	return p2psync.TransactionResponse{Kind: p2psync.TransactionResponseItem, Transaction: &t}
}

func (s *PeerScript) Transactions(items ...p2psync.TransactionResponse) *PeerScript {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transactions = append(s.transactions, call[p2psync.TransactionResponse]{items: items})
	return s
}

func (s *PeerScript) TransactionsClosedEarly(items ...p2psync.TransactionResponse) *PeerScript {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transactions = append(s.transactions, call[p2psync.TransactionResponse]{items: items, closeEarly: true})
	return s
}

func (s *PeerScript) TransactionsErr(err error) *PeerScript {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transactions = append(s.transactions, call[p2psync.TransactionResponse]{err: err})
	return s
}

func (s *PeerScript) nextTransactions(ctx context.Context) (<-chan p2psync.TransactionResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.transactions) == 0 {
		return nil, errScriptExhausted
	}
	c := s.transactions[0]
	s.transactions = s.transactions[1:]
	if c.err != nil {
		return nil, c.err
	}
	fin := p2psync.TransactionResponse{Kind: p2psync.TransactionResponseFin}
	return deliver(ctx, c.items, fin, c.closeEarly), nil
}

// ContractDiffItem wraps a contract diff as the non-Fin ContractDiff
// variant of StateDiffResponse.
func ContractDiffItem(d p2psync.WireContractDiff) p2psync.StateDiffResponse {
	return p2psync.StateDiffResponse{Kind: p2psync.StateDiffResponseContract, ContractDiff: &d}
}

// DeclaredClassItem wraps a declared class as the non-Fin DeclaredClass
// variant of StateDiffResponse.
func DeclaredClassItem(d p2psync.WireDeclaredClass) p2psync.StateDiffResponse {
	return p2psync.StateDiffResponse{Kind: p2psync.StateDiffResponseDeclaredClass, DeclaredClass: &d}
}

func (s *PeerScript) StateDiffs(items ...p2psync.StateDiffResponse) *PeerScript {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stateDiffs = append(s.stateDiffs, call[p2psync.StateDiffResponse]{items: items})
	return s
}

func (s *PeerScript) StateDiffsClosedEarly(items ...p2psync.StateDiffResponse) *PeerScript {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stateDiffs = append(s.stateDiffs, call[p2psync.StateDiffResponse]{items: items, closeEarly: true})
	return s
}

func (s *PeerScript) StateDiffsErr(err error) *PeerScript {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stateDiffs = append(s.stateDiffs, call[p2psync.StateDiffResponse]{err: err})
	return s
}

func (s *PeerScript) nextStateDiffs(ctx context.Context) (<-chan p2psync.StateDiffResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.stateDiffs) == 0 {
		return nil, errScriptExhausted
	}
	c := s.stateDiffs[0]
	s.stateDiffs = s.stateDiffs[1:]
	if c.err != nil {
		return nil, c.err
	}
	fin := p2psync.StateDiffResponse{Kind: p2psync.StateDiffResponseFin}
	return deliver(ctx, c.items, fin, c.closeEarly), nil
}

// Cairo0Item wraps raw Cairo-zero bytecode as the non-Fin Cairo0 variant of
// ClassResponse.
func Cairo0Item(bytecode []byte) p2psync.ClassResponse {
	return p2psync.ClassResponse{Kind: p2psync.ClassResponseCairo0, Cairo0: bytecode}
}

// Cairo1Item wraps raw Sierra bytecode as the non-Fin Cairo1 variant of
// ClassResponse.
func Cairo1Item(bytecode []byte) p2psync.ClassResponse {
	return p2psync.ClassResponse{Kind: p2psync.ClassResponseCairo1, Cairo1: bytecode}
}

func (s *PeerScript) Classes(items ...p2psync.ClassResponse) *PeerScript {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.classes = append(s.classes, call[p2psync.ClassResponse]{items: items})
	return s
}

func (s *PeerScript) ClassesClosedEarly(items ...p2psync.ClassResponse) *PeerScript {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.classes = append(s.classes, call[p2psync.ClassResponse]{items: items, closeEarly: true})
	return s
}

func (s *PeerScript) ClassesErr(err error) *PeerScript {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.classes = append(s.classes, call[p2psync.ClassResponse]{err: err})
	return s
}

func (s *PeerScript) nextClasses(ctx context.Context) (<-chan p2psync.ClassResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.classes) == 0 {
		return nil, errScriptExhausted
	}
	c := s.classes[0]
	s.classes = s.classes[1:]
	if c.err != nil {
		return nil, c.err
	}
	fin := p2psync.ClassResponse{Kind: p2psync.ClassResponseFin}
	return deliver(ctx, c.items, fin, c.closeEarly), nil
}

// EventItem wraps a (transaction hash, event) pair as the non-Fin Event
// variant of EventResponse.
func EventItem(hash p2psync.TransactionHash, ev p2psync.Event) p2psync.EventResponse {
	return p2psync.EventResponse{Kind: p2psync.EventResponseEvent, Event: &p2psync.WireEvent{TransactionHash: hash, Event: ev}}
}

func (s *PeerScript) Events(items ...p2psync.EventResponse) *PeerScript {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, call[p2psync.EventResponse]{items: items})
	return s
}

func (s *PeerScript) EventsClosedEarly(items ...p2psync.EventResponse) *PeerScript {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, call[p2psync.EventResponse]{items: items, closeEarly: true})
	return s
}

func (s *PeerScript) EventsErr(err error) *PeerScript {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, call[p2psync.EventResponse]{err: err})
	return s
}

func (s *PeerScript) nextEvents(ctx context.Context) (<-chan p2psync.EventResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.events) == 0 {
		return nil, errScriptExhausted
	}
	c := s.events[0]
	s.events = s.events[1:]
	if c.err != nil {
		return nil, c.err
	}
	fin := p2psync.EventResponse{Kind: p2psync.EventResponseFin}
	return deliver(ctx, c.items, fin, c.closeEarly), nil
}

// deliver feeds items one at a time onto a buffered response channel,
// appending fin unless closeEarly drops the connection first. The channel
// is always closed once the goroutine is done, whether or not fin made it
// out, so a caller ranging over it never blocks forever.
func deliver[T any](ctx context.Context, items []T, fin T, closeEarly bool) <-chan T {
	out := make(chan T, 1)
	go func() {
		defer close(out)
		for _, item := range items {
			select {
			case out <- item:
			case <-ctx.Done():
				return
			}
		}
		if closeEarly {
			return
		}
		select {
		case out <- fin:
		case <-ctx.Done():
		}
	}()
	return out
}
