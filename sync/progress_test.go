package sync

import (
	"testing"

	"github.com/holiman/uint256"
)

func TestBlockProgressConsumeAndDone(t *testing.T) {
	p := NewBlockProgress(3)
	if p.Done() {
		t.Fatal("expected not done with 3 remaining")
	}
	if !p.Consume(2) {
		t.Fatal("expected Consume(2) to succeed")
	}
	if p.Remaining() != 1 {
		t.Fatalf("remaining = %d, want 1", p.Remaining())
	}
	if !p.Consume(1) {
		t.Fatal("expected Consume(1) to succeed")
	}
	if !p.Done() {
		t.Fatal("expected done after consuming exactly the budget")
	}
}

func TestBlockProgressOverConsumeFails(t *testing.T) {
	p := NewBlockProgress(1)
	if p.Consume(2) {
		t.Fatal("expected over-consumption to fail")
	}
	if p.Remaining() != 1 {
		t.Fatalf("remaining should be untouched after a failed Consume, got %d", p.Remaining())
	}
}

func TestBlockProgressRollbackRestoresCheckpoint(t *testing.T) {
	p := NewBlockProgress(5)
	p.Consume(3)
	p.Rollback()
	if p.Remaining() != 5 {
		t.Fatalf("remaining after rollback = %d, want 5", p.Remaining())
	}
}

func TestStreamProgressCarriesCommitment(t *testing.T) {
	p := NewStreamProgress(2, TransactionCommitment{Felt: *uint256.NewInt(7)})
	if p.Commitment().Felt.Uint64() != 7 {
		t.Fatalf("commitment not carried through, got %v", p.Commitment())
	}
	p.Consume(2)
	if !p.Done() {
		t.Fatal("expected done")
	}
	p.Rollback()
	if p.Remaining() != 2 {
		t.Fatalf("remaining after rollback = %d, want 2", p.Remaining())
	}
}
