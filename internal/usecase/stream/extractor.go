package stream

import (
	"strings"

	"conduit-ai/internal/domain"
)

// holdBackMargin is the fixed tail withheld from emission while the
// field is still open. A terminal escape sequence or the end marker
// itself can arrive split across network chunks; holding back a fixed
// tail prevents emitting a false partial escape or missing the marker.
const holdBackMargin = 20

// FieldExtractor exposes the growing value of one named string field of
// a still-incomplete structured payload, before the payload as a whole
// is parseable. It accumulates all raw text seen for the field and
// tracks an emit cursor, guaranteeing exactly-once emission per
// character.
type FieldExtractor struct {
	endMarker string
	acc       strings.Builder
	emitted   int
	closed    bool
}

// NewFieldExtractor creates an extractor. endMarker is the literal
// boundary text the upstream serializer emits between the watched field
// and its next sibling; seeing it means the field value is complete.
func NewFieldExtractor(endMarker string) *FieldExtractor {
	return &FieldExtractor{endMarker: endMarker}
}

// Append accumulates newly-arrived raw text and returns the slice of
// content that is now safe to emit downstream, plus whether the field's
// end was reached. Once the end is reached no further content is ever
// emitted; appending afterwards returns ErrFieldClosed.
func (e *FieldExtractor) Append(raw string) (string, bool, error) {
	if e.closed {
		return "", true, domain.NewDomainError("FieldExtractor.Append", domain.ErrFieldClosed, "")
	}
	e.acc.WriteString(raw)
	return e.flush()
}

// flush replays the emission decision over the unemitted tail.
func (e *FieldExtractor) flush() (string, bool, error) {
	all := e.acc.String()
	tail := all[e.emitted:]

	if idx := strings.Index(tail, e.endMarker); idx >= 0 {
		out := tail[:idx]
		e.emitted += idx
		e.closed = true
		return out, true, nil
	}

	if len(tail) > holdBackMargin {
		out := tail[:len(tail)-holdBackMargin]
		e.emitted += len(out)
		return out, false, nil
	}

	// Not enough new data to flush safely.
	return "", false, nil
}

// Closed reports whether the field's end marker has been seen.
func (e *FieldExtractor) Closed() bool { return e.closed }

// Pending returns the withheld tail that has accumulated but not been
// emitted. Useful for diagnostics; never call it to bypass the margin.
func (e *FieldExtractor) Pending() string {
	return e.acc.String()[e.emitted:]
}
