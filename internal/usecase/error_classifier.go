package usecase

import (
	"strings"
	"time"

	"conduit-ai/internal/domain"
)

// ErrorCategory indicates whether a failure is retryable or terminal.
type ErrorCategory int

const (
	ErrorCategoryRetryable ErrorCategory = iota
	ErrorCategoryTerminal
)

// ClassifiedError holds the result of error classification.
type ClassifiedError struct {
	Original error
	Category ErrorCategory
	Code     domain.ErrorCode
}

// Retryable reports whether another attempt is worthwhile.
func (c ClassifiedError) Retryable() bool { return c.Category == ErrorCategoryRetryable }

// ErrorClassifier labels backend failures as retryable or terminal and
// supplies the backoff schedule used by the poller and transport.
type ErrorClassifier struct{}

// NewErrorClassifier creates a classifier.
func NewErrorClassifier() *ErrorClassifier {
	return &ErrorClassifier{}
}

// Classify inspects an error's machine-readable kind. Kinds in the
// fixed terminal set (subscription, billing, trial, authentication) are
// surfaced immediately and never retried; any other kind, or no kind
// at all, defaults to retryable.
func (c *ErrorClassifier) Classify(err error) ClassifiedError {
	if err == nil {
		return ClassifiedError{Category: ErrorCategoryRetryable}
	}

	code := domain.CodeOf(err)
	if code.Terminal() {
		return ClassifiedError{Original: err, Category: ErrorCategoryTerminal, Code: code}
	}

	// Some transports only expose the kind in message text.
	if code == domain.CodeUnknown {
		if k, ok := codeFromMessage(err.Error()); ok {
			return ClassifiedError{Original: err, Category: ErrorCategoryTerminal, Code: k}
		}
	}

	return ClassifiedError{Original: err, Category: ErrorCategoryRetryable, Code: code}
}

// codeFromMessage scans message text for a terminal kind string.
func codeFromMessage(msg string) (domain.ErrorCode, bool) {
	for _, code := range []domain.ErrorCode{
		domain.CodeAuthenticationError,
		domain.CodeUnauthorized,
		domain.CodeTokenExpired,
		domain.CodeSubscriptionRequired,
		domain.CodeSubscriptionExpired,
		domain.CodeBillingError,
		domain.CodePaymentRequired,
		domain.CodeTrialExpired,
		domain.CodeAccountSuspended,
	} {
		if strings.Contains(msg, string(code)) {
			return code, true
		}
	}
	return domain.CodeUnknown, false
}

// RetryPolicy supplies the fixed pause and timeout schedule for
// transport retries and health probes.
type RetryPolicy struct{}

// RetryPause is the fixed pause between transport retry attempts.
func (RetryPolicy) RetryPause() time.Duration { return 2 * time.Second }

// HealthTimeouts is the escalating timeout ladder for health-style
// checks; probing stops at the first success.
func (RetryPolicy) HealthTimeouts() []time.Duration {
	return []time.Duration{5 * time.Second, 10 * time.Second, 15 * time.Second}
}
