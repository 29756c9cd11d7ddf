package stream

import (
	"sync"

	"conduit-ai/internal/domain"
)

// SequenceManager stamps every content delta destined for display with
// a per-conversation monotonic sequence number. The first issued number
// is 1; counters never decrease and are never reused even across
// reconnects within the same conversation, so consumers can discard or
// re-queue late-arriving updates.
type SequenceManager struct {
	mu       sync.Mutex
	counters map[string]uint64
}

// NewSequenceManager creates an empty manager.
func NewSequenceManager() *SequenceManager {
	return &SequenceManager{counters: make(map[string]uint64)}
}

// Next increments and returns the conversation's sequence counter.
// The first call for a conversation returns 1.
func (m *SequenceManager) Next(conversationID string) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters[conversationID]++
	return m.counters[conversationID]
}

// Current returns the last issued sequence for a conversation, zero if
// none has been issued.
func (m *SequenceManager) Current(conversationID string) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counters[conversationID]
}

// Drop discards a conversation's counter entry. Only valid when the
// conversation itself is deleted; a live conversation's counter must
// never reset.
func (m *SequenceManager) Drop(conversationID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.counters, conversationID)
}

// OrderedApplier applies deltas strictly in sequence order even when the
// transport delivers callbacks out of order. A delta whose sequence is
// not exactly one greater than the last applied is parked and replayed
// once the gap fills.
type OrderedApplier struct {
	mu      sync.Mutex
	applied uint64
	pending map[uint64]domain.ContentDelta
	apply   func(domain.ContentDelta)
}

// NewOrderedApplier creates an applier that invokes apply for each delta
// in exact sequence order.
func NewOrderedApplier(apply func(domain.ContentDelta)) *OrderedApplier {
	return &OrderedApplier{
		pending: make(map[uint64]domain.ContentDelta),
		apply:   apply,
	}
}

// Offer submits a delta. Late duplicates (sequence at or below the last
// applied) are dropped. Out-of-order deltas are parked until their
// predecessors arrive.
func (a *OrderedApplier) Offer(delta domain.ContentDelta) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if delta.Sequence <= a.applied {
		return
	}
	a.pending[delta.Sequence] = delta
	for {
		next, ok := a.pending[a.applied+1]
		if !ok {
			return
		}
		delete(a.pending, a.applied+1)
		a.applied++
		a.apply(next)
	}
}
