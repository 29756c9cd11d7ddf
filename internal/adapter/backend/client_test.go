package backend

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"conduit-ai/internal/domain"
	"conduit-ai/internal/infra/config"
)

func testClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(config.BackendConfig{BaseURL: srv.URL, APIKey: "test-key"}, slog.Default())
}

func TestOpenStreamDeliversBody(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/query" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("auth = %q", got)
		}
		if got := r.Header.Get("Accept"); got != "text/event-stream" {
			t.Errorf("accept = %q", got)
		}

		var req QueryRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Prompt != "hello" {
			t.Errorf("prompt = %q", req.Prompt)
		}

		w.Header().Set("Content-Type", "text/event-stream")
		io.WriteString(w, "data: {\"content\":\"hi\"}\ndata: [DONE]\n")
	})

	handle, err := c.OpenStream(context.Background(), QueryRequest{
		ConversationID: "conv-1",
		Prompt:         "hello",
	})
	if err != nil {
		t.Fatal(err)
	}

	var text strings.Builder
	deadline := time.After(2 * time.Second)
	for {
		chunk, done, err := handle.Poll(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		text.WriteString(chunk)
		if done {
			break
		}
		select {
		case <-deadline:
			t.Fatal("stream never finished")
		case <-time.After(time.Millisecond):
		}
	}
	if !strings.Contains(text.String(), `{"content":"hi"}`) {
		t.Errorf("stream text = %q", text.String())
	}
}

func TestOpenStreamTerminalErrorNotRetried(t *testing.T) {
	var hits int
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.WriteHeader(http.StatusUnauthorized)
		io.WriteString(w, `{"error":{"code":"AUTHENTICATION_ERROR","message":"bad key"}}`)
	})

	_, err := c.OpenStream(context.Background(), QueryRequest{ConversationID: "conv-1"})
	if err == nil {
		t.Fatal("expected error")
	}
	if domain.CodeOf(err) != domain.CodeAuthenticationError {
		t.Fatalf("code = %s, err = %v", domain.CodeOf(err), err)
	}
	if hits != 1 {
		t.Fatalf("terminal error was retried %d times", hits)
	}
}

func TestDecodeErrorWithoutEnvelope(t *testing.T) {
	resp := &http.Response{
		StatusCode: http.StatusBadGateway,
		Body:       io.NopCloser(strings.NewReader("upstream exploded")),
	}
	err := decodeError(resp)

	be, ok := err.(*domain.BackendError)
	if !ok {
		t.Fatalf("err type %T", err)
	}
	if be.Code != "" {
		t.Errorf("code = %s", be.Code)
	}
	if !strings.Contains(be.Message, "502") || !strings.Contains(be.Message, "upstream exploded") {
		t.Errorf("message = %q", be.Message)
	}
	if domain.CodeOf(err).Terminal() {
		t.Error("envelope-less error classified terminal")
	}
}

func TestHealthSucceedsOnFirstRung(t *testing.T) {
	var path string
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		w.WriteHeader(http.StatusOK)
	})

	if err := c.Health(context.Background()); err != nil {
		t.Fatal(err)
	}
	if path != "/v1/health" {
		t.Errorf("path = %s", path)
	}
}

func TestHealthHonorsContextCancellation(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := c.Health(ctx); err == nil {
		t.Fatal("expected error from cancelled context")
	}
}
