package backend

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
)

// StreamHandle adapts a streamed response body to the poller's pull
// interface. A background goroutine reads the body into a buffered
// channel; Poll drains it without blocking. When the poller abandons
// the handle, the reader goroutine drains to EOF on its own; the body
// is never force-closed out from under an in-flight read.
type StreamHandle struct {
	chunks    chan string
	readErr   atomic.Value // error
	abandoned atomic.Bool
	logger    *slog.Logger
}

func newStreamHandle(body io.ReadCloser, logger *slog.Logger) *StreamHandle {
	h := &StreamHandle{
		chunks: make(chan string, 64),
		logger: logger,
	}
	go h.read(body)
	return h
}

func (h *StreamHandle) read(body io.ReadCloser) {
	defer close(h.chunks)
	defer body.Close()

	buf := make([]byte, 32*1024)
	for {
		n, err := body.Read(buf)
		if n > 0 && !h.abandoned.Load() {
			h.chunks <- string(buf[:n])
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				h.readErr.Store(err)
				h.logger.Debug("stream read ended", "error", err)
			}
			return
		}
	}
}

// Poll returns the next available slice of stream text. An empty chunk
// with done=false means nothing has arrived yet; done=true means the
// stream has ended and the final chunk (possibly empty) is returned.
func (h *StreamHandle) Poll(ctx context.Context) (string, bool, error) {
	select {
	case chunk, ok := <-h.chunks:
		if !ok {
			if err, _ := h.readErr.Load().(error); err != nil {
				return "", true, err
			}
			return "", true, nil
		}
		return chunk, false, nil
	case <-ctx.Done():
		return "", false, ctx.Err()
	default:
		return "", false, nil
	}
}

// Abandon stops consuming the stream without force-closing the
// underlying read. Subsequent chunks are discarded.
func (h *StreamHandle) Abandon() {
	h.abandoned.Store(true)
	// Drain whatever is buffered so the reader is never blocked on send.
	go func() {
		for range h.chunks {
		}
	}()
}
