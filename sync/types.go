package sync

// SignedBlockHeader is the header artifact yielded by the header streamer.
// Its contents are treated as opaque by this package; verification is the
// consumer's job.
type SignedBlockHeader struct {
	Number     BlockNumber
	Hash       Felt
	ParentHash Felt
	Raw        []byte
	Signature  []byte
}

// Transaction is an opaque, parsed transaction body.
type Transaction struct {
	Hash TransactionHash
	Raw  []byte
}

// Receipt is an opaque, parsed transaction receipt, tagged with the index
// of its transaction within the block.
type Receipt struct {
	TransactionIndex uint64
	Raw              []byte
}

// TransactionAndReceipt pairs a transaction with its receipt, in the order
// they were received from the serving peer.
type TransactionAndReceipt struct {
	Transaction Transaction
	Receipt     Receipt
}

// TransactionBlockData is the transaction-streamer artifact for one block:
// the expected (unverified) commitment plus every transaction+receipt pair
// received for that block.
type TransactionBlockData struct {
	ExpectedCommitment TransactionCommitment
	Transactions       []TransactionAndReceipt
}

// Event is an opaque, parsed Starknet event.
type Event struct {
	Raw []byte
}

// TransactionEvents groups a transaction hash with the consecutive events
// a peer claimed belong to it. This grouping is trusted, not verified --
// see the event streamer's doc comment.
type TransactionEvents struct {
	TransactionHash TransactionHash
	Events          []Event
}

// EventsForBlock is the event-streamer artifact for one block.
type EventsForBlock struct {
	Block        BlockNumber
	Transactions []TransactionEvents
}

// ContractClassUpdateKind discriminates how a contract's class changed.
// The sync layer can only ever observe a class-hash change; whether that
// change is a first deployment or a replacement of an existing contract
// is for the consumer to resolve.
type ContractClassUpdateKind int

const (
	ContractClassUpdateDeploy ContractClassUpdateKind = iota
)

// ContractClassUpdate records a contract's class-hash change. The sync
// layer always reports Kind == ContractClassUpdateDeploy; see the doc
// comment above.
type ContractClassUpdate struct {
	Kind      ContractClassUpdateKind
	ClassHash ClassHash
}

// ContractUpdate accumulates one contract's storage writes, and its
// optional nonce and class-hash changes, for a single block.
type ContractUpdate struct {
	Storage map[StorageAddress]StorageValue
	Nonce   *ContractNonce
	Class   *ContractClassUpdate
}

func newContractUpdate() *ContractUpdate {
	return &ContractUpdate{Storage: make(map[StorageAddress]StorageValue)}
}

// StateUpdateData is the state diff assembled incrementally by the
// state-diff streamer (or the single-block StateDiffForBlock variant) for
// one block.
type StateUpdateData struct {
	ContractUpdates       map[ContractAddress]*ContractUpdate
	SystemContractUpdates map[ContractAddress]*ContractUpdate
	DeclaredCairoClasses  map[ClassHash]struct{}
	DeclaredSierraClasses map[SierraHash]CasmHash
}

// NewStateUpdateData returns an empty state diff accumulator, ready to
// receive ContractDiff / DeclaredClass responses.
func NewStateUpdateData() StateUpdateData {
	return StateUpdateData{
		ContractUpdates:       make(map[ContractAddress]*ContractUpdate),
		SystemContractUpdates: make(map[ContractAddress]*ContractUpdate),
		DeclaredCairoClasses:  make(map[ClassHash]struct{}),
		DeclaredSierraClasses: make(map[SierraHash]CasmHash),
	}
}

func (s *StateUpdateData) contractUpdate(addr ContractAddress) *ContractUpdate {
	target := s.ContractUpdates
	if addr.IsSystemContract() {
		target = s.SystemContractUpdates
	}
	u, ok := target[addr]
	if !ok {
		u = newContractUpdate()
		target[addr] = u
	}
	return u
}

// StateUpdateBlockData is the state-diff-streamer artifact for one block.
type StateUpdateBlockData struct {
	ExpectedCommitment StateDiffCommitment
	StateDiff          StateUpdateData
}

// ClassDefinitionKind discriminates a declared class's compilation target.
type ClassDefinitionKind int

const (
	ClassDefinitionCairo ClassDefinitionKind = iota
	ClassDefinitionSierra
)

// ClassDefinition is one declared class's definition, as yielded by the
// class streamer. Exactly one of CairoDefinition / SierraDefinition is
// populated, selected by Kind.
type ClassDefinition struct {
	Kind             ClassDefinitionKind
	BlockNumber      BlockNumber
	CairoDefinition  []byte
	SierraDefinition []byte
}

// TransactionExpectation describes the shape a block's transaction
// artifact must have: how many transactions, and the commitment the
// consumer expects to verify against.
type TransactionExpectation struct {
	Count      uint64
	Commitment TransactionCommitment
}

// StateDiffExpectation describes the shape a block's state diff must
// have: the total count of elementary items (storage writes, nonce
// changes, deploys, class declarations) and the expected commitment.
type StateDiffExpectation struct {
	Count      uint64
	Commitment StateDiffCommitment
}

// ClassExpectation describes how many class definitions a block is
// expected to declare. There is no commitment to carry -- declared
// classes are already covered by the state diff's commitment.
type ClassExpectation struct {
	Count uint64
}

// EventsExpectation describes how many events a block is expected to
// emit in total, across every transaction.
type EventsExpectation struct {
	Count uint64
}
