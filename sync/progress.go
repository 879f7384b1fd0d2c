package sync

// BlockProgress tracks the number of items still expected for the block
// currently being assembled. checkpoint is the value remaining was created
// with; rollback restores remaining to it whenever a peer fails mid-block
// so the next peer can re-serve the block from scratch.
type BlockProgress struct {
	remaining  uint64
	checkpoint uint64
}

// NewBlockProgress creates progress for a block expecting exactly
// expectedCount items. checkpoint and remaining both start at that count.
func NewBlockProgress(expectedCount uint64) BlockProgress {
	return BlockProgress{remaining: expectedCount, checkpoint: expectedCount}
}

// Remaining returns the number of items still expected.
func (p *BlockProgress) Remaining() uint64 {
	return p.remaining
}

// Done reports whether every expected item has been accounted for.
func (p *BlockProgress) Done() bool {
	return p.remaining == 0
}

// Consume decrements remaining by n, reporting false if that would make it
// go negative (over-delivery) instead of wrapping around.
func (p *BlockProgress) Consume(n uint64) bool {
	if n > p.remaining {
		return false
	}
	p.remaining -= n
	return true
}

// Rollback restores remaining to the checkpoint recorded at block start.
// Called at the top of every peer attempt so a failed peer's partial
// progress never leaks into the next attempt.
func (p *BlockProgress) Rollback() {
	p.remaining = p.checkpoint
}

// StreamProgress is a BlockProgress plus the opaque per-block commitment
// value the consumer will use to verify the assembled artifact. The
// commitment travels with the progress counter but is never interpreted
// here.
type StreamProgress[C any] struct {
	BlockProgress
	commitment C
}

// NewStreamProgress creates stream progress for a block expecting
// expectedCount items and carrying the given commitment.
func NewStreamProgress[C any](expectedCount uint64, commitment C) StreamProgress[C] {
	return StreamProgress[C]{
		BlockProgress: NewBlockProgress(expectedCount),
		commitment:    commitment,
	}
}

// Commitment returns the expected commitment carried by this block's
// progress, to be attached to the yielded artifact unverified.
func (p *StreamProgress[C]) Commitment() C {
	return p.commitment
}
