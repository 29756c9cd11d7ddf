package usecase

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"

	"conduit-ai/internal/domain"
	"conduit-ai/internal/infra/tracer"
	"conduit-ai/internal/usecase/stream"
)

// Poller state machine: Idle → Polling → {Completed, Cancelled,
// TimedOut, Failed}. Fixed limits bound every suspend point.
const (
	defaultPollInterval   = 100 * time.Millisecond
	defaultMaxAttempts    = 3000 // ~5 minutes at the nominal interval
	defaultInactivityStop = 30 * time.Second
)

// Source is the transport-facing pull interface the poller drives. Poll
// returns the next available slice of raw stream text; an empty chunk
// with done=false means nothing has arrived yet. done=true ends the
// stream after the returned chunk is consumed.
type Source interface {
	Poll(ctx context.Context) (chunk string, done bool, err error)
}

// Sink receives the poller's output. ContentDelta is invoked in
// sequence order; FunctionCall is invoked after the call has been
// validated, buffered, and had its message ids reserved.
type Sink interface {
	ContentDelta(ctx context.Context, delta domain.ContentDelta)
	FunctionCall(ctx context.Context, call domain.FunctionCallRequest, res domain.MessageIDReservation)
}

// PollResult is the typed outcome of one poll run. Err is set only for
// Failed; a timed-out run carries ErrStreamStalled so callers can
// message the user differently from attempt exhaustion.
type PollResult struct {
	Outcome domain.SessionOutcome
	Err     error
}

// Poller drives retrieval of one request's stream from the transport,
// enforcing the attempt ceiling, the inactivity watchdog, and
// cooperative cancellation.
type Poller struct {
	interval    time.Duration
	maxAttempts int
	inactivity  time.Duration

	classifier *ErrorClassifier
	validator  ArgumentValidator
	logger     *slog.Logger
}

// ArgumentValidator checks a function call's arguments before it is
// buffered. calls.Validator satisfies it.
type ArgumentValidator interface {
	Validate(call domain.FunctionCallRequest) error
}

// PollerOption customizes a Poller.
type PollerOption func(*Poller)

// WithInterval overrides the poll interval.
func WithInterval(d time.Duration) PollerOption {
	return func(p *Poller) { p.interval = d }
}

// WithMaxAttempts overrides the attempt ceiling.
func WithMaxAttempts(n int) PollerOption {
	return func(p *Poller) { p.maxAttempts = n }
}

// WithInactivityStop overrides the watchdog window.
func WithInactivityStop(d time.Duration) PollerOption {
	return func(p *Poller) { p.inactivity = d }
}

// NewPoller creates a poller with the fixed default limits.
func NewPoller(classifier *ErrorClassifier, validator ArgumentValidator, logger *slog.Logger, opts ...PollerOption) *Poller {
	p := &Poller{
		interval:    defaultPollInterval,
		maxAttempts: defaultMaxAttempts,
		inactivity:  defaultInactivityStop,
		classifier:  classifier,
		validator:   validator,
		logger:      logger,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run polls source until the session reaches a terminal state, feeding
// decoded output through the assembler into sink. Cancellation is
// observed at the top of each iteration; the poller abandons rather
// than force-closes any in-flight transport read.
func (p *Poller) Run(ctx context.Context, session *RequestSession, source Source, sink Sink, asm *stream.Assembler) PollResult {
	ctx, span := tracer.StartSpan(ctx, "poller.run",
		trace.WithAttributes(
			tracer.StringAttr("request.id", session.ID),
			tracer.StringAttr("conversation.id", session.ConversationID),
		),
	)
	defer span.End()

	decoder := stream.NewDecoder()
	timer := time.NewTimer(p.interval)
	defer timer.Stop()

	for {
		if session.Cancelled() || ctx.Err() != nil {
			return p.finish(session, span, PollResult{Outcome: domain.OutcomeCancelled})
		}
		if session.IdleFor() > p.inactivity {
			return p.finish(session, span, PollResult{
				Outcome: domain.OutcomeTimedOut,
				Err:     domain.ErrStreamStalled,
			})
		}
		if session.NextAttempt() > p.maxAttempts {
			return p.finish(session, span, PollResult{
				Outcome: domain.OutcomeFailed,
				Err:     domain.NewDomainError("Poller.Run", domain.ErrAttemptsExceeded, session.ID),
			})
		}

		chunk, done, err := source.Poll(ctx)
		if err != nil {
			classified := p.classifier.Classify(err)
			if !classified.Retryable() {
				tracer.RecordError(span, err)
				return p.finish(session, span, PollResult{Outcome: domain.OutcomeFailed, Err: err})
			}
			if done {
				// The transport ended mid-stream; a truncated
				// response must never pass as a completed one.
				tracer.RecordError(span, err)
				return p.finish(session, span, PollResult{Outcome: domain.OutcomeFailed, Err: err})
			}
			p.logger.Debug("retryable poll error",
				"request_id", session.ID,
				"error", err,
			)
		}

		if chunk != "" {
			events := decoder.Feed(chunk)
			if done {
				events = append(events, decoder.Flush()...)
			}
			for _, evt := range events {
				p.deliver(ctx, session, sink, asm, evt)
			}
		}

		if done {
			// Release whatever the extractor is still withholding.
			p.deliver(ctx, session, sink, asm, domain.StreamEvent{Payload: []byte(`{"done":true}`)})
			tracer.SetOK(span)
			return p.finish(session, span, PollResult{Outcome: domain.OutcomeCompleted})
		}

		// A chunk means the transport buffer may hold more; drain it
		// before suspending.
		if chunk != "" {
			continue
		}

		// Cooperative suspend between empty attempts.
		timer.Reset(p.interval)
		select {
		case <-ctx.Done():
		case <-timer.C:
		}
	}
}

// deliver routes one event's assembled output to the sink. Every
// successful decode resets the watchdog clock, never the attempt
// counter.
func (p *Poller) deliver(ctx context.Context, session *RequestSession, sink Sink, asm *stream.Assembler, evt domain.StreamEvent) {
	out := asm.Ingest(evt)
	if out.Activity() {
		session.TouchActivity()
	}

	for _, delta := range out.Deltas {
		sink.ContentDelta(ctx, delta)
	}

	for _, call := range out.Calls {
		if p.validator != nil {
			if err := p.validator.Validate(call); err != nil {
				p.logger.Warn("rejecting function call with invalid arguments",
					"call_id", call.CallID,
					"function", call.Name,
					"error", err,
				)
				continue
			}
		}
		res, err := session.Reservations.Reserve(call.CallID, call.Name)
		if err != nil {
			p.logger.Error("message id reservation failed",
				"call_id", call.CallID,
				"error", err,
			)
			continue
		}
		if err := session.Buffer.Push(call); err != nil {
			p.logger.Error("function call buffer rejected call",
				"call_id", call.CallID,
				"error", err,
			)
			continue
		}
		sink.FunctionCall(ctx, call, res)
	}
}

func (p *Poller) finish(session *RequestSession, span trace.Span, result PollResult) PollResult {
	session.SetOutcome(result.Outcome)
	if result.Err != nil {
		tracer.RecordError(span, result.Err)
	}
	p.logger.Info("poll finished",
		"request_id", session.ID,
		"outcome", result.Outcome.String(),
		"attempts", session.Attempts(),
	)
	return result
}
