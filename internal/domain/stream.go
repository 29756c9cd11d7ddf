package domain

import "encoding/json"

// StreamEvent is one decoded frame from the backend stream. Events are
// ephemeral: produced and consumed within a single decode cycle, in
// arrival order.
type StreamEvent struct {
	Payload json.RawMessage `json:"payload"`
}

// ContentDelta is an incremental piece of assistant-generated text,
// stamped with a per-conversation sequence number so the UI can discard
// or re-queue late-arriving updates.
type ContentDelta struct {
	ConversationID string `json:"conversation_id"`
	Sequence       uint64 `json:"sequence"`
	Text           string `json:"text"`
	Final          bool   `json:"final"`
}

// FunctionCallRequest is a structured request embedded in the stream
// asking the host to perform a named action with arguments. Immutable
// once queued; consumed exactly once by the handler that executes it.
type FunctionCallRequest struct {
	CallID        string          `json:"call_id"`
	Name          string          `json:"name"`
	Arguments     json.RawMessage `json:"arguments"`
	ParallelIndex int             `json:"parallel_index"`

	// FirstOfParallelSet marks the first call of a batch that arrived in
	// one response turn; it controls whether shared introductory UI is
	// rendered once versus per call.
	FirstOfParallelSet bool `json:"first_of_parallel_set"`
}

// MessageIDReservation holds the message ids reserved for one function
// call before it executes. Ids are drawn from one global monotonically
// increasing counter, so reservations for unrelated calls never overlap.
type MessageIDReservation struct {
	CallID       string   `json:"call_id"`
	FunctionName string   `json:"function_name"`
	IDs          []uint64 `json:"ids"`
}

// Count returns the number of ids held by the reservation.
func (r MessageIDReservation) Count() int { return len(r.IDs) }
