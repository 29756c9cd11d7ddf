package eventbus

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"conduit-ai/internal/domain"
)

type subscription struct {
	id      uint64
	handler domain.EventHandler
}

// Bus is an in-process, goroutine-safe event bus carrying stream output
// (content deltas, function calls) and session lifecycle events to the
// UI layer.
type Bus struct {
	mu      sync.RWMutex
	typed   map[domain.EventType][]subscription
	allSubs []subscription
	nextID  atomic.Uint64
	logger  *slog.Logger
	wg      sync.WaitGroup
	closed  atomic.Bool
}

// New creates an event bus.
func New(logger *slog.Logger) *Bus {
	return &Bus{
		typed:  make(map[domain.EventType][]subscription),
		logger: logger,
	}
}

// Publish fans out an event to matching typed subscribers and all-event
// subscribers. Each handler runs in its own goroutine; panicking
// handlers are recovered.
func (b *Bus) Publish(ctx context.Context, event domain.Event) {
	if b.closed.Load() {
		return
	}

	b.mu.RLock()
	typed := make([]subscription, len(b.typed[event.Type]))
	copy(typed, b.typed[event.Type])
	allSubs := make([]subscription, len(b.allSubs))
	copy(allSubs, b.allSubs)
	b.mu.RUnlock()

	for _, sub := range typed {
		b.dispatch(ctx, event, sub)
	}
	for _, sub := range allSubs {
		b.dispatch(ctx, event, sub)
	}
}

// PublishDelta publishes a sequenced content delta.
func (b *Bus) PublishDelta(ctx context.Context, requestID string, delta domain.ContentDelta) {
	payload, err := json.Marshal(delta)
	if err != nil {
		b.logger.Error("marshal content delta", "error", err)
		return
	}
	typ := domain.EventContentDelta
	if delta.Final {
		typ = domain.EventContentFinal
	}
	b.Publish(ctx, domain.Event{
		Type:           typ,
		Timestamp:      time.Now(),
		RequestID:      requestID,
		ConversationID: delta.ConversationID,
		Payload:        payload,
	})
}

// FunctionCallPayload pairs a buffered call with its id reservation for
// UI subscribers.
type FunctionCallPayload struct {
	Call        domain.FunctionCallRequest  `json:"call"`
	Reservation domain.MessageIDReservation `json:"reservation"`
}

// PublishCall publishes a validated function call with its reserved
// message ids.
func (b *Bus) PublishCall(ctx context.Context, requestID, conversationID string, call domain.FunctionCallRequest, res domain.MessageIDReservation) {
	payload, err := json.Marshal(FunctionCallPayload{Call: call, Reservation: res})
	if err != nil {
		b.logger.Error("marshal function call", "error", err)
		return
	}
	b.Publish(ctx, domain.Event{
		Type:           domain.EventFunctionCall,
		Timestamp:      time.Now(),
		RequestID:      requestID,
		ConversationID: conversationID,
		Payload:        payload,
	})
}

func (b *Bus) dispatch(ctx context.Context, event domain.Event, sub subscription) {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				b.logger.Error("event handler panicked",
					"event", string(event.Type),
					"panic", r,
				)
			}
		}()
		sub.handler(ctx, event)
	}()
}

// Subscribe registers a handler for a specific event type.
// Returns an unsubscribe function.
func (b *Bus) Subscribe(eventType domain.EventType, handler domain.EventHandler) func() {
	id := b.nextID.Add(1)
	sub := subscription{id: id, handler: handler}

	b.mu.Lock()
	b.typed[eventType] = append(b.typed[eventType], sub)
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		subs := b.typed[eventType]
		for i, s := range subs {
			if s.id == id {
				b.typed[eventType] = append(subs[:i], subs[i+1:]...)
				return
			}
		}
	}
}

// SubscribeAll registers a handler that receives every event.
// Returns an unsubscribe function.
func (b *Bus) SubscribeAll(handler domain.EventHandler) func() {
	id := b.nextID.Add(1)
	sub := subscription{id: id, handler: handler}

	b.mu.Lock()
	b.allSubs = append(b.allSubs, sub)
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		for i, s := range b.allSubs {
			if s.id == id {
				b.allSubs = append(b.allSubs[:i], b.allSubs[i+1:]...)
				return
			}
		}
	}
}

// Close prevents new publishes and waits for in-flight handlers.
// Idempotent.
func (b *Bus) Close() {
	if b.closed.Swap(true) {
		return
	}
	b.wg.Wait()
}
