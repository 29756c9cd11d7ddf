package usecase

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"conduit-ai/internal/domain"
	"conduit-ai/internal/usecase/automation"
	"conduit-ai/internal/usecase/buttons"
	"conduit-ai/internal/usecase/eventbus"
	"conduit-ai/internal/usecase/stream"
)

// ActionExecutor is the execution-layer collaborator (editor, console,
// terminal). The service asks it to execute an action once the decision
// to proceed, manual or automatic, has been made; the executor reports
// the result back so message-id-linked conversation state can advance.
type ActionExecutor interface {
	Execute(ctx context.Context, call domain.FunctionCallRequest, res domain.MessageIDReservation) error
}

// Service coordinates one backend query end to end: session lifecycle,
// polling, delta publication, function-call dispatch, automation
// decisions, and button-state bookkeeping.
type Service struct {
	registry  *SessionRegistry
	sequences *stream.SequenceManager
	poller    *Poller
	bus       *eventbus.Bus
	engine    *automation.Engine
	tracker   *buttons.Tracker
	executor  ActionExecutor
	logger    *slog.Logger
}

// NewService wires the stream core together. executor may be nil when
// the host dispatches actions itself via NextCall.
func NewService(
	poller *Poller,
	bus *eventbus.Bus,
	engine *automation.Engine,
	tracker *buttons.Tracker,
	executor ActionExecutor,
	logger *slog.Logger,
) *Service {
	return &Service{
		registry:  NewSessionRegistry(),
		sequences: stream.NewSequenceManager(),
		poller:    poller,
		bus:       bus,
		engine:    engine,
		tracker:   tracker,
		executor:  executor,
		logger:    logger,
	}
}

// Sequences exposes the per-conversation sequence manager.
func (s *Service) Sequences() *stream.SequenceManager { return s.sequences }

// Bus exposes the event bus so hosts can subscribe to stream output.
func (s *Service) Bus() *eventbus.Bus { return s.bus }

// Query runs one request against the backend via source, blocking until
// the session reaches a terminal state. Content deltas and function
// calls are published on the bus as they assemble.
func (s *Service) Query(ctx context.Context, conversationID string, source Source) PollResult {
	session := s.registry.Begin(conversationID)
	defer s.registry.End(session)

	s.publishLifecycle(ctx, domain.EventSessionStarted, session)

	asm := stream.NewAssembler(conversationID, s.sequences)
	result := s.poller.Run(ctx, session, source, &busSink{service: s, session: session}, asm)

	switch result.Outcome {
	case domain.OutcomeCompleted:
		s.publishLifecycle(ctx, domain.EventSessionCompleted, session)
	case domain.OutcomeCancelled:
		// Not an error: no user-facing failure message.
		s.publishLifecycle(ctx, domain.EventSessionCancelled, session)
	case domain.OutcomeTimedOut:
		// Stalled is distinct from attempt exhaustion so the caller can
		// message the user differently.
		s.publishLifecycle(ctx, domain.EventSessionStalled, session)
	case domain.OutcomeFailed:
		s.publishLifecycle(ctx, domain.EventSessionFailed, session)
	}

	return result
}

// Cancel requests cooperative cancellation of the conversation's active
// session, if any.
func (s *Service) Cancel(conversationID string) {
	if session, ok := s.registry.Active(conversationID); ok {
		session.Cancel()
	}
}

// NextCall removes and returns the oldest buffered function call for
// the conversation's active session, with its reservation.
func (s *Service) NextCall(conversationID string) (domain.FunctionCallRequest, domain.MessageIDReservation, bool) {
	session, ok := s.registry.Active(conversationID)
	if !ok {
		return domain.FunctionCallRequest{}, domain.MessageIDReservation{}, false
	}
	call, ok := session.Buffer.Next()
	if !ok {
		return domain.FunctionCallRequest{}, domain.MessageIDReservation{}, false
	}
	res, err := session.Reservations.Lookup(call.CallID)
	if err != nil {
		// Reservation happens before buffering; a miss here is a bug.
		s.logger.Error("buffered call has no reservation", "call_id", call.CallID, "error", err)
		return domain.FunctionCallRequest{}, domain.MessageIDReservation{}, false
	}
	return call, res, true
}

// RunAction executes a call through the execution layer and records the
// action as run against the call's first reserved message id.
func (s *Service) RunAction(ctx context.Context, call domain.FunctionCallRequest, res domain.MessageIDReservation) error {
	if s.executor == nil {
		return domain.NewDomainError("Service.RunAction", domain.ErrInvalidInput, "no executor configured")
	}
	kind, _, ok := actionOf(call)
	if !ok {
		return domain.NewDomainError("Service.RunAction", domain.ErrInvalidInput, "call is not an executable action: "+call.Name)
	}

	if err := s.executor.Execute(ctx, call, res); err != nil {
		return domain.WrapOp("Service.RunAction", err)
	}

	if len(res.IDs) > 0 {
		if err := s.tracker.MarkActionRun(res.IDs[0], kind); err != nil {
			return domain.WrapOp("Service.RunAction", err)
		}
	}
	return nil
}

// TryAutoRun consults the automation engine and executes the call
// without confirmation when policy allows. Returns whether the call ran.
// Already-run actions are skipped, keeping automation idempotent across
// reloads.
func (s *Service) TryAutoRun(ctx context.Context, call domain.FunctionCallRequest, res domain.MessageIDReservation) (bool, error) {
	kind, subject, ok := actionOf(call)
	if !ok {
		return false, nil
	}
	if len(res.IDs) > 0 {
		done, err := s.tracker.ShouldHide(res.IDs[0], kind)
		if err != nil {
			return false, domain.WrapOp("Service.TryAutoRun", err)
		}
		if done {
			return false, nil
		}
	}
	if !s.engine.Allow(kind, subject) {
		return false, nil
	}
	if err := s.RunAction(ctx, call, res); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Service) publishLifecycle(ctx context.Context, typ domain.EventType, session *RequestSession) {
	s.bus.Publish(ctx, domain.Event{
		Type:           typ,
		Timestamp:      time.Now(),
		RequestID:      session.ID,
		ConversationID: session.ConversationID,
	})
}

// busSink forwards assembled output onto the event bus.
type busSink struct {
	service *Service
	session *RequestSession
}

func (b *busSink) ContentDelta(ctx context.Context, delta domain.ContentDelta) {
	b.service.bus.PublishDelta(ctx, b.session.ID, delta)
}

func (b *busSink) FunctionCall(ctx context.Context, call domain.FunctionCallRequest, res domain.MessageIDReservation) {
	if kind, _, ok := actionOf(call); ok && len(res.IDs) > 0 {
		// Queue the action on its message so the UI can render it as
		// up next before a run decision is made.
		if err := b.service.tracker.SetPending(res.IDs[0], kind.String(), ""); err != nil {
			b.service.logger.Warn("recording pending action failed",
				"message_id", res.IDs[0],
				"error", err,
			)
		}
	}
	b.service.bus.PublishCall(ctx, b.session.ID, b.session.ConversationID, call, res)
}

// actionArgs are the argument fields that carry an action's subject.
type actionArgs struct {
	Path    string `json:"path"`
	Command string `json:"command"`
}

// actionOf maps a function call to its action kind and subject string.
// Calls outside the closed kind set (notes and the like) are not
// executable actions.
func actionOf(call domain.FunctionCallRequest) (domain.ActionKind, string, bool) {
	var args actionArgs
	// Subject stays empty when arguments don't parse; the engine then
	// decides on the empty string, which only allow-anything passes.
	_ = json.Unmarshal(call.Arguments, &args)

	switch call.Name {
	case "edit_file", "create_file", "delete_file":
		return domain.ActionEdit, args.Path, true
	case "run_console":
		return domain.ActionConsole, args.Command, true
	case "run_terminal":
		return domain.ActionTerminal, args.Command, true
	case "run_file":
		return domain.ActionFileRun, args.Path, true
	default:
		return 0, "", false
	}
}
