package errors

import (
	stdErrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRegistryDefaults(t *testing.T) {
	err := New(CodeQueryFailure, "")
	assert.Equal(t, "mirror node query failed", err.Message())
	assert.True(t, err.Retryable())
	assert.Equal(t, SeverityWarning, err.Severity())

	unknown := New(Code("NOT_REGISTERED"), "boom")
	assert.Equal(t, SeverityCritical, unknown.Severity())
	assert.False(t, unknown.Retryable())
}

func TestOptionsOverrideRegistry(t *testing.T) {
	err := New(CodeStorageFailure, "db down",
		WithRetryable(false),
		WithSeverity(SeverityInfo),
		WithMetadata("table", "operation_jobs"),
	)
	assert.False(t, err.Retryable())
	assert.Equal(t, SeverityInfo, err.Severity())
	assert.Equal(t, map[string]string{"table": "operation_jobs"}, err.Metadata())
}

func TestWrapKeepsChain(t *testing.T) {
	cause := stdErrors.New("connection refused")
	wrapped := fmt.Errorf("submit: %w", Wrap(CodeSubmissionFailure, cause, "relay request failed"))

	assert.True(t, HasCode(wrapped, CodeSubmissionFailure))
	assert.False(t, HasCode(wrapped, CodeQueryFailure))
	assert.Equal(t, CodeSubmissionFailure, CodeOf(wrapped))
	assert.ErrorIs(t, wrapped, cause)
	assert.False(t, RetryableError(wrapped))
	assert.Equal(t, CodeUnknown, CodeOf(cause))
	assert.False(t, HasCode(nil, CodeUnknown))
}

func TestRegisterNewCode(t *testing.T) {
	const code Code = "TEST_REGISTERED"
	Register(code, Attributes{Message: "registered", Severity: SeverityInfo, Retryable: true})
	assert.True(t, RetryableError(New(code, "")))
	assert.Equal(t, SeverityInfo, SeverityOf(New(code, "")))
}

func TestSeverityAtLeast(t *testing.T) {
	assert.True(t, SeverityCritical.AtLeast(SeverityWarning))
	assert.True(t, SeverityWarning.AtLeast(SeverityWarning))
	assert.False(t, SeverityInfo.AtLeast(SeverityWarning))
	assert.True(t, Severity("").AtLeast(SeverityInfo))
}

func TestLogValueGroupsFields(t *testing.T) {
	err := Wrap(CodeQueueFailure, stdErrors.New("EOF"), "redis pop", WithMetadata("queue", "ops"))
	attrs := err.LogValue().Group()
	got := map[string]string{}
	for _, attr := range attrs {
		got[attr.Key] = attr.Value.String()
	}
	assert.Equal(t, map[string]string{
		"code":    "QUEUE_FAILURE",
		"message": "redis pop",
		"cause":   "EOF",
		"queue":   "ops",
	}, got)
}
