package stream

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"strings"

	"conduit-ai/internal/domain"
)

const (
	dataPrefix = "data: "
	doneToken  = "[DONE]"
)

// Decoder splits raw streamed text into discrete StreamEvents. Chunks
// may split a frame boundary mid-line; the decoder buffers the partial
// trailing line so that delivering a stream split at arbitrary byte
// boundaries yields the same event sequence as delivering it whole.
type Decoder struct {
	partial strings.Builder
}

// NewDecoder creates an empty decoder.
func NewDecoder() *Decoder {
	return &Decoder{}
}

// Feed consumes a chunk of newly-arrived stream text and returns the
// events decoded from every complete line it contains.
func (d *Decoder) Feed(chunk string) []domain.StreamEvent {
	var events []domain.StreamEvent
	for {
		nl := strings.IndexByte(chunk, '\n')
		if nl < 0 {
			d.partial.WriteString(chunk)
			return events
		}
		line := d.partial.String() + chunk[:nl]
		d.partial.Reset()
		chunk = chunk[nl+1:]

		if evt, ok := decodeLine(line); ok {
			events = append(events, evt)
		}
	}
}

// Flush decodes whatever trailing line is still buffered. Call once at
// end of stream; streams that terminate without a final newline would
// otherwise leave their last frame undelivered.
func (d *Decoder) Flush() []domain.StreamEvent {
	if d.partial.Len() == 0 {
		return nil
	}
	line := d.partial.String()
	d.partial.Reset()
	if evt, ok := decodeLine(line); ok {
		return []domain.StreamEvent{evt}
	}
	return nil
}

// decodeLine decodes one complete line. Lines not carrying a data frame
// (comments, keepalives), empty payloads, the terminator token, and
// malformed payloads all decode to nothing; a bad frame must never
// abort the stream.
func decodeLine(line string) (domain.StreamEvent, bool) {
	line = strings.TrimSuffix(line, "\r")
	if !strings.HasPrefix(line, dataPrefix) {
		return domain.StreamEvent{}, false
	}
	payload := line[len(dataPrefix):]
	if payload == "" || payload == doneToken {
		return domain.StreamEvent{}, false
	}
	if !json.Valid([]byte(payload)) {
		return domain.StreamEvent{}, false
	}
	return domain.StreamEvent{Payload: json.RawMessage(payload)}, true
}

// DecodeAll reads an entire SSE body and delivers decoded events on the
// returned channel, which is closed when the stream ends, the body is
// closed, or ctx is cancelled.
func DecodeAll(ctx context.Context, body io.ReadCloser) <-chan domain.StreamEvent {
	ch := make(chan domain.StreamEvent, 16)
	go func() {
		defer close(ch)
		defer body.Close()

		scanner := bufio.NewScanner(body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			select {
			case <-ctx.Done():
				return
			default:
			}

			line := scanner.Bytes()
			if len(line) == 0 || line[0] == ':' {
				continue
			}
			if bytes.Equal(bytes.TrimPrefix(line, []byte(dataPrefix)), []byte(doneToken)) {
				return
			}

			evt, ok := decodeLine(string(line))
			if !ok {
				continue
			}
			select {
			case ch <- evt:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch
}
