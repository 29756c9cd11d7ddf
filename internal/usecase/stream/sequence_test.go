package stream

import (
	"testing"

	"conduit-ai/internal/domain"
)

func TestNextStartsAtOnePerConversation(t *testing.T) {
	m := NewSequenceManager()

	if got := m.Next("conv-7"); got != 1 {
		t.Fatalf("first Next = %d, want 1", got)
	}
	if got := m.Next("conv-9"); got != 1 {
		t.Fatalf("other conversation first Next = %d, want 1", got)
	}
	if got := m.Next("conv-7"); got != 2 {
		t.Fatalf("second Next = %d, want 2", got)
	}
	if got := m.Next("conv-9"); got != 2 {
		t.Fatalf("interleaved Next = %d, want 2", got)
	}
	if got := m.Current("conv-7"); got != 2 {
		t.Fatalf("Current = %d, want 2", got)
	}
}

func TestCurrentUnknownConversationIsZero(t *testing.T) {
	m := NewSequenceManager()
	if got := m.Current("nobody"); got != 0 {
		t.Fatalf("Current = %d, want 0", got)
	}
}

func TestDropResetsOnlyDroppedConversation(t *testing.T) {
	m := NewSequenceManager()
	m.Next("a")
	m.Next("a")
	m.Next("b")

	m.Drop("a")
	if got := m.Next("a"); got != 1 {
		t.Fatalf("Next after Drop = %d, want 1", got)
	}
	if got := m.Next("b"); got != 2 {
		t.Fatalf("untouched conversation Next = %d, want 2", got)
	}
}

func delta(seq uint64) domain.ContentDelta {
	return domain.ContentDelta{ConversationID: "c", Sequence: seq}
}

func TestOrderedApplierReplaysGaps(t *testing.T) {
	var applied []uint64
	a := NewOrderedApplier(func(d domain.ContentDelta) {
		applied = append(applied, d.Sequence)
	})

	a.Offer(delta(2))
	a.Offer(delta(3))
	if len(applied) != 0 {
		t.Fatalf("gapped deltas applied early: %v", applied)
	}

	a.Offer(delta(1))
	want := []uint64{1, 2, 3}
	if len(applied) != len(want) {
		t.Fatalf("applied %v, want %v", applied, want)
	}
	for i := range want {
		if applied[i] != want[i] {
			t.Fatalf("applied %v, want %v", applied, want)
		}
	}
}

func TestOrderedApplierDropsDuplicates(t *testing.T) {
	var count int
	a := NewOrderedApplier(func(domain.ContentDelta) { count++ })

	a.Offer(delta(1))
	a.Offer(delta(1))
	a.Offer(delta(2))
	a.Offer(delta(1))

	if count != 2 {
		t.Fatalf("applied %d deltas, want 2", count)
	}
}
