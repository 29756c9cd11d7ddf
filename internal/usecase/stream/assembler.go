package stream

import (
	"encoding/json"

	"conduit-ai/internal/domain"
)

// DefaultEndMarker is the boundary text the backend serializer emits
// between the streamed content field and its next sibling string field,
// as seen after one JSON decode of the carrying event. A quote inside
// real content is still escaped at this level, so the marker cannot
// match inside content.
const DefaultEndMarker = `","`

// Outer wire shapes carried by individual stream events. An event holds
// either a fragment of the in-progress content field or one complete
// function call; unrecognized shapes are ignored.
type wireEvent struct {
	Content      *string           `json:"content,omitempty"`
	FunctionCall *wireFunctionCall `json:"function_call,omitempty"`
	Done         bool              `json:"done,omitempty"`
}

type wireFunctionCall struct {
	CallID    string          `json:"call_id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// Assembled is the result of ingesting one stream event.
type Assembled struct {
	Deltas []domain.ContentDelta
	Calls  []domain.FunctionCallRequest
	Done   bool
}

// Activity reports whether the event produced content or a call; the
// poller's watchdog resets on activity.
func (a Assembled) Activity() bool {
	return len(a.Deltas) > 0 || len(a.Calls) > 0
}

// Assembler reconstructs ordered content deltas and function-call
// requests from decoded stream events for one conversation turn.
type Assembler struct {
	conversationID string
	seq            *SequenceManager
	extractor      *FieldExtractor
	callCount      int
	finalSent      bool
}

// NewAssembler creates an assembler for one response turn of a
// conversation. The sequence manager is shared per conversation and
// survives across turns.
func NewAssembler(conversationID string, seq *SequenceManager) *Assembler {
	return &Assembler{
		conversationID: conversationID,
		seq:            seq,
		extractor:      NewFieldExtractor(DefaultEndMarker),
	}
}

// Ingest consumes one decoded stream event. Content fragments feed the
// field extractor; whatever it releases is unescaped and stamped with
// the conversation's next sequence number. Complete function-call
// payloads are returned with their parallel index assigned in arrival
// order, the first of the turn flagged as first-of-parallel-set.
func (a *Assembler) Ingest(evt domain.StreamEvent) Assembled {
	var out Assembled

	var we wireEvent
	if err := json.Unmarshal(evt.Payload, &we); err != nil {
		// Shape mismatch is not fatal; the frame already decoded.
		return out
	}

	if we.Content != nil && !a.extractor.Closed() {
		text, final, err := a.extractor.Append(*we.Content)
		if err == nil && (text != "" || final) {
			out.Deltas = append(out.Deltas, a.stamp(text, final))
		}
	}

	if fc := we.FunctionCall; fc != nil {
		call := domain.FunctionCallRequest{
			CallID:             fc.CallID,
			Name:               fc.Name,
			Arguments:          fc.Arguments,
			ParallelIndex:      a.callCount,
			FirstOfParallelSet: a.callCount == 0,
		}
		a.callCount++
		out.Calls = append(out.Calls, call)
	}

	if we.Done {
		out.Done = true
		if !a.extractor.Closed() {
			// Stream ended without the boundary marker; release the
			// withheld tail as the final delta.
			if tail := a.extractor.Pending(); tail != "" || !a.finalSent {
				out.Deltas = append(out.Deltas, a.stamp(tail, true))
			}
			a.extractor.closed = true
		}
	}

	return out
}

func (a *Assembler) stamp(raw string, final bool) domain.ContentDelta {
	if final {
		a.finalSent = true
	}
	return domain.ContentDelta{
		ConversationID: a.conversationID,
		Sequence:       a.seq.Next(a.conversationID),
		Text:           Unescape(raw),
		Final:          final,
	}
}
