package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"conduit-ai/internal/domain"
	"conduit-ai/internal/usecase/stream"
)

// Frame is the envelope pushed to UI clients over WebSocket.
type Frame struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// clientConn tracks a single WebSocket connection.
type clientConn struct {
	ws        *websocket.Conn
	sendCh    chan Frame
	done      chan struct{}
	closeOnce sync.Once
}

// Server pushes stream output to UI clients. Content deltas are
// re-ordered per conversation before delivery: the bus dispatches
// handlers concurrently, so deltas can arrive here out of sequence, and
// the UI contract requires exact arrival order.
type Server struct {
	bus      domain.EventBus
	clients  sync.Map // connID (uint64) -> *clientConn
	appliers sync.Map // conversationID -> *stream.OrderedApplier
	logger   *slog.Logger
	addr     string
	httpSrv  *http.Server
	bound    string
	nextID   atomic.Uint64
	unsubAll func()
}

// NewServer creates a gateway server over the event bus.
func NewServer(bus domain.EventBus, addr string, logger *slog.Logger) *Server {
	return &Server{bus: bus, addr: addr, logger: logger}
}

// Addr returns the bound listen address, valid after Start.
func (s *Server) Addr() string { return s.bound }

// Start begins accepting WebSocket connections. Blocks until ctx is
// cancelled.
func (s *Server) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleUpgrade)

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("gateway listen: %w", err)
	}
	s.bound = listener.Addr().String()
	s.httpSrv = &http.Server{Handler: mux}

	s.unsubAll = s.bus.SubscribeAll(func(_ context.Context, event domain.Event) {
		s.forward(event)
	})

	s.logger.Info("gateway started", "addr", s.bound)

	go func() {
		<-ctx.Done()
		s.Stop(context.Background())
	}()

	if err := s.httpSrv.Serve(listener); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("gateway serve: %w", err)
	}
	return nil
}

// Stop shuts the gateway down, closing client connections.
func (s *Server) Stop(ctx context.Context) {
	if s.unsubAll != nil {
		s.unsubAll()
	}
	s.clients.Range(func(_, value any) bool {
		value.(*clientConn).close()
		return true
	})
	if s.httpSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		_ = s.httpSrv.Shutdown(shutdownCtx)
	}
}

// forward routes one bus event to clients. Deltas pass through the
// conversation's ordering applier; everything else is sent as-is.
func (s *Server) forward(event domain.Event) {
	switch event.Type {
	case domain.EventContentDelta, domain.EventContentFinal:
		var delta domain.ContentDelta
		if err := json.Unmarshal(event.Payload, &delta); err != nil {
			s.logger.Warn("gateway: malformed delta payload", "error", err)
			return
		}
		s.applierFor(delta.ConversationID).Offer(delta)
	default:
		s.broadcast(Frame{Type: string(event.Type), Payload: event.Payload})
	}
}

func (s *Server) applierFor(conversationID string) *stream.OrderedApplier {
	if v, ok := s.appliers.Load(conversationID); ok {
		return v.(*stream.OrderedApplier)
	}
	applier := stream.NewOrderedApplier(func(delta domain.ContentDelta) {
		payload, err := json.Marshal(delta)
		if err != nil {
			return
		}
		typ := domain.EventContentDelta
		if delta.Final {
			typ = domain.EventContentFinal
		}
		s.broadcast(Frame{Type: string(typ), Payload: payload})
	})
	actual, _ := s.appliers.LoadOrStore(conversationID, applier)
	return actual.(*stream.OrderedApplier)
}

func (s *Server) broadcast(frame Frame) {
	s.clients.Range(func(_, value any) bool {
		cc := value.(*clientConn)
		select {
		case cc.sendCh <- frame:
		default:
			s.logger.Warn("gateway: dropped frame for slow client")
		}
		return true
	})
}

func (s *Server) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	ws, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.logger.Warn("gateway: upgrade failed", "error", err)
		return
	}

	id := s.nextID.Add(1)
	cc := &clientConn{
		ws:     ws,
		sendCh: make(chan Frame, 256),
		done:   make(chan struct{}),
	}
	s.clients.Store(id, cc)
	defer func() {
		s.clients.Delete(id)
		cc.close()
	}()

	go s.writeLoop(r.Context(), cc)

	// Read loop exists only to notice disconnects; the gateway is
	// push-only.
	for {
		if _, _, err := ws.Read(r.Context()); err != nil {
			return
		}
	}
}

func (s *Server) writeLoop(ctx context.Context, cc *clientConn) {
	for {
		select {
		case frame := <-cc.sendCh:
			writeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			err := wsjson.Write(writeCtx, cc.ws, frame)
			cancel()
			if err != nil {
				cc.close()
				return
			}
		case <-cc.done:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (cc *clientConn) close() {
	cc.closeOnce.Do(func() {
		close(cc.done)
		_ = cc.ws.Close(websocket.StatusNormalClosure, "shutdown")
	})
}
