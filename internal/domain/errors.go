package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for the domain layer.
var (
	ErrNotFound     = fmt.Errorf("not found")
	ErrTimeout      = fmt.Errorf("operation timed out")
	ErrInvalidInput = fmt.Errorf("invalid input")
	ErrCancelled    = fmt.Errorf("cancelled")

	// Stream pipeline errors.
	ErrStreamStalled    = fmt.Errorf("stream inactive past watchdog window")
	ErrAttemptsExceeded = fmt.Errorf("poll attempt ceiling exhausted")
	ErrBufferEmpty      = fmt.Errorf("function call buffer empty")
	ErrFieldClosed      = fmt.Errorf("field already fully emitted")

	// Reservation errors. Lookup misses are contract violations and must
	// fail loudly: a silently fabricated id would corrupt message
	// ordering downstream.
	ErrReservationMissing = fmt.Errorf("no message id reservation for call")
	ErrReservationRange   = fmt.Errorf("reservation index out of range")
	ErrCallIDReused       = fmt.Errorf("call id already reserved")

	// Backend transport errors.
	ErrBackendTerminal    = fmt.Errorf("terminal backend error")
	ErrBackendUnavailable = fmt.Errorf("backend unavailable")
	ErrAuthInvalid        = fmt.Errorf("authentication failed")

	// Store errors.
	ErrStateStore = fmt.Errorf("state store operation failed")
)

// DomainError wraps a sentinel error with context.
type DomainError struct {
	Op     string // operation name (e.g., "Reservations.ID")
	Err    error  // underlying sentinel or wrapped error
	Detail string // human-readable detail
}

func (e *DomainError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Err)
}

func (e *DomainError) Unwrap() error { return e.Err }

// NewDomainError creates a new DomainError.
func NewDomainError(op string, err error, detail string) *DomainError {
	return &DomainError{Op: op, Err: err, Detail: detail}
}

// WrapOp adds operation context to an error using fmt.Errorf wrapping.
// Returns nil if err is nil, enabling idiomatic use: return domain.WrapOp("op", err)
func WrapOp(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", op, err)
}

// ErrorCode is the machine-readable kind string a backend error may
// carry. Codes in the terminal set end the request immediately; all
// other codes (and errors with no code at all) default to retryable.
type ErrorCode string

const (
	CodeUnknown ErrorCode = "UNKNOWN"
	CodeTimeout ErrorCode = "TIMEOUT"

	// Terminal backend codes: subscription, billing, trial and
	// authentication failures. Never retried, never consume an attempt.
	CodeAuthenticationError  ErrorCode = "AUTHENTICATION_ERROR"
	CodeUnauthorized         ErrorCode = "UNAUTHORIZED"
	CodeTokenExpired         ErrorCode = "TOKEN_EXPIRED"
	CodeSubscriptionRequired ErrorCode = "SUBSCRIPTION_REQUIRED"
	CodeSubscriptionExpired  ErrorCode = "SUBSCRIPTION_EXPIRED"
	CodeBillingError         ErrorCode = "BILLING_ERROR"
	CodePaymentRequired      ErrorCode = "PAYMENT_REQUIRED"
	CodeTrialExpired         ErrorCode = "TRIAL_EXPIRED"
	CodeAccountSuspended     ErrorCode = "ACCOUNT_SUSPENDED"
)

// terminalCodes is the fixed set of non-retryable backend error kinds.
var terminalCodes = map[ErrorCode]bool{
	CodeAuthenticationError:  true,
	CodeUnauthorized:         true,
	CodeTokenExpired:         true,
	CodeSubscriptionRequired: true,
	CodeSubscriptionExpired:  true,
	CodeBillingError:         true,
	CodePaymentRequired:      true,
	CodeTrialExpired:         true,
	CodeAccountSuspended:     true,
}

// Terminal reports whether the code belongs to the fixed terminal set.
func (c ErrorCode) Terminal() bool { return terminalCodes[c] }

// BackendError is a failure reported by the backend transport, carrying
// an optional machine-readable kind.
type BackendError struct {
	Code    ErrorCode
	Message string
	Err     error
}

func (e *BackendError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("backend error %s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("backend error: %s", e.Message)
}

func (e *BackendError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	if e.Code.Terminal() {
		return ErrBackendTerminal
	}
	return ErrBackendUnavailable
}

// CodeOf extracts the machine-readable code from an error chain, or
// CodeUnknown when none is present.
func CodeOf(err error) ErrorCode {
	var be *BackendError
	if errors.As(err, &be) && be.Code != "" {
		return be.Code
	}
	return CodeUnknown
}
