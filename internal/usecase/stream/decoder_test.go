package stream

import (
	"context"
	"io"
	"strings"
	"testing"

	"conduit-ai/internal/domain"
)

func collect(events []domain.StreamEvent) []string {
	var out []string
	for _, e := range events {
		out = append(out, string(e.Payload))
	}
	return out
}

func TestFeedDecodesDataLines(t *testing.T) {
	d := NewDecoder()
	events := d.Feed("data: {\"content\":\"hi\"}\ndata: {\"done\":true}\n")
	got := collect(events)
	if len(got) != 2 {
		t.Fatalf("expected 2 events, got %d", len(got))
	}
	if got[0] != `{"content":"hi"}` {
		t.Errorf("unexpected payload: %s", got[0])
	}
}

func TestFeedDropsMalformedFrames(t *testing.T) {
	d := NewDecoder()
	input := "data: {not json\n" +
		": keepalive comment\n" +
		"event: ping\n" +
		"data: \n" +
		"data: [DONE]\n" +
		"data: {\"content\":\"ok\"}\n"
	events := d.Feed(input)
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if string(events[0].Payload) != `{"content":"ok"}` {
		t.Errorf("unexpected payload: %s", events[0].Payload)
	}
}

func TestFeedHandlesCRLF(t *testing.T) {
	d := NewDecoder()
	events := d.Feed("data: {\"content\":\"a\"}\r\n")
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
}

// Splitting the same byte stream at every possible boundary must yield
// the same event sequence as delivering it whole.
func TestFeedSplitBoundaryInvariance(t *testing.T) {
	input := "data: {\"content\":\"Hello\"}\n" +
		"data: {\"content\":\", world\"}\n" +
		"data: {\"done\":true}\n"

	whole := collect(NewDecoder().Feed(input))

	for split := 1; split < len(input); split++ {
		d := NewDecoder()
		var events []domain.StreamEvent
		events = append(events, d.Feed(input[:split])...)
		events = append(events, d.Feed(input[split:])...)
		events = append(events, d.Flush()...)

		got := collect(events)
		if len(got) != len(whole) {
			t.Fatalf("split at %d: expected %d events, got %d", split, len(whole), len(got))
		}
		for i := range got {
			if got[i] != whole[i] {
				t.Fatalf("split at %d: event %d mismatch: %s != %s", split, i, got[i], whole[i])
			}
		}
	}
}

func TestFlushDeliversTrailingFrame(t *testing.T) {
	d := NewDecoder()
	if events := d.Feed(`data: {"content":"tail"}`); len(events) != 0 {
		t.Fatalf("unterminated line must not decode yet")
	}
	events := d.Flush()
	if len(events) != 1 {
		t.Fatalf("expected flushed event, got %d", len(events))
	}
	if string(events[0].Payload) != `{"content":"tail"}` {
		t.Errorf("unexpected payload: %s", events[0].Payload)
	}
}

func TestFlushEmptyIsNoop(t *testing.T) {
	d := NewDecoder()
	if events := d.Flush(); events != nil {
		t.Fatalf("expected nil, got %v", events)
	}
}

func TestDecodeAllStopsAtDone(t *testing.T) {
	body := io.NopCloser(strings.NewReader(
		"data: {\"content\":\"a\"}\n" +
			"data: [DONE]\n" +
			"data: {\"content\":\"after\"}\n",
	))

	var got []string
	for evt := range DecodeAll(context.Background(), body) {
		got = append(got, string(evt.Payload))
	}
	if len(got) != 1 || got[0] != `{"content":"a"}` {
		t.Fatalf("unexpected events: %v", got)
	}
}
