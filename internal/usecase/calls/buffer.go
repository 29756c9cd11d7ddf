package calls

import (
	"sync"

	"conduit-ai/internal/domain"
)

// Buffer queues function-call requests in arrival order. Draining is
// pull-based: a consumer asks for the next buffered call and receives
// the oldest entry, or a not-available signal when empty. Each call is
// consumed exactly once.
type Buffer struct {
	mu    sync.Mutex
	queue []domain.FunctionCallRequest
	seen  map[string]bool
}

// NewBuffer creates an empty call buffer.
func NewBuffer() *Buffer {
	return &Buffer{seen: make(map[string]bool)}
}

// Push appends a call to the queue. A call id is never reused within a
// process lifetime; re-pushing a seen id returns ErrCallIDReused.
func (b *Buffer) Push(call domain.FunctionCallRequest) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.seen[call.CallID] {
		return domain.NewDomainError("Buffer.Push", domain.ErrCallIDReused, call.CallID)
	}
	b.seen[call.CallID] = true
	b.queue = append(b.queue, call)
	return nil
}

// Next removes and returns the oldest buffered call. The second return
// is false when the buffer is empty.
func (b *Buffer) Next() (domain.FunctionCallRequest, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.queue) == 0 {
		return domain.FunctionCallRequest{}, false
	}
	call := b.queue[0]
	b.queue = b.queue[1:]
	return call, true
}

// Len returns the number of buffered calls.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queue)
}
