package domain

// SessionOutcome is the terminal state of a request session's poll loop.
type SessionOutcome int

const (
	OutcomeNone SessionOutcome = iota
	OutcomeCompleted
	OutcomeCancelled
	OutcomeTimedOut
	OutcomeFailed
)

func (o SessionOutcome) String() string {
	switch o {
	case OutcomeCompleted:
		return "completed"
	case OutcomeCancelled:
		return "cancelled"
	case OutcomeTimedOut:
		return "timed_out"
	case OutcomeFailed:
		return "failed"
	default:
		return "none"
	}
}

// Terminal reports whether the outcome ends the session.
func (o SessionOutcome) Terminal() bool { return o != OutcomeNone }
