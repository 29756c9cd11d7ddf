package usecase

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"conduit-ai/internal/domain"
)

func TestClassifyTerminalCodes(t *testing.T) {
	c := NewErrorClassifier()

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
		err := &domain.BackendError{Code: code, Message: "nope"}
		got := c.Classify(err)
		if got.Retryable() {
			t.Errorf("%s classified retryable", code)
		}
		if got.Code != code {
			t.Errorf("%s: code = %s", code, got.Code)
		}
	}
}

func TestClassifyDefaultsToRetryable(t *testing.T) {
	c := NewErrorClassifier()

	tests := []error{
		errors.New("connection reset by peer"),
		&domain.BackendError{Code: domain.CodeTimeout, Message: "slow"},
		&domain.BackendError{Message: "no code at all"},
		fmt.Errorf("wrapped: %w", errors.New("io failure")),
	}
	for _, err := range tests {
		if got := c.Classify(err); !got.Retryable() {
			t.Errorf("%v classified terminal", err)
		}
	}
}

func TestClassifyNilIsRetryable(t *testing.T) {
	c := NewErrorClassifier()
	if !c.Classify(nil).Retryable() {
		t.Fatal("nil error classified terminal")
	}
}

// Some transports flatten the kind into message text; the classifier
// still finds it there.
func TestClassifyCodeInMessageText(t *testing.T) {
	c := NewErrorClassifier()
	err := errors.New("request failed: AUTHENTICATION_ERROR: bad key")
	got := c.Classify(err)
	if got.Retryable() {
		t.Fatal("text-borne terminal code classified retryable")
	}
	if got.Code != domain.CodeAuthenticationError {
		t.Errorf("code = %s", got.Code)
	}
}

func TestRetryPolicySchedule(t *testing.T) {
	var p RetryPolicy
	if p.RetryPause() != 2*time.Second {
		t.Errorf("RetryPause = %v", p.RetryPause())
	}
	want := []time.Duration{5 * time.Second, 10 * time.Second, 15 * time.Second}
	got := p.HealthTimeouts()
	if len(got) != len(want) {
		t.Fatalf("HealthTimeouts = %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("HealthTimeouts = %v, want %v", got, want)
		}
	}
}
