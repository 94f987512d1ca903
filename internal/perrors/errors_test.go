package perrors

import (
	"errors"
	"testing"
)

func TestPipelineErrorUnwrapAndAs(t *testing.T) {
	cause := errors.New("boom")
	err := NewRequester("llm call failed", cause)

	if !errors.Is(err, cause) {
		t.Fatalf("expected errors.Is to find cause")
	}

	var pe *PipelineError
	if !errors.As(err, &pe) {
		t.Fatalf("expected errors.As to extract PipelineError")
	}
	if pe.Kind != KindRequester {
		t.Fatalf("got kind %s, want %s", pe.Kind, KindRequester)
	}
	if !pe.IsRetryable() {
		t.Fatalf("requester errors should be retryable")
	}
}

func TestKindOfDefaultsToInternal(t *testing.T) {
	if got := KindOf(errors.New("plain")); got != KindInternal {
		t.Fatalf("got %s, want %s", got, KindInternal)
	}
}

func TestCommandErrorsAreNotRetryable(t *testing.T) {
	err := NewCommand("bad args", nil)
	if err.IsRetryable() {
		t.Fatalf("command errors should not be retryable")
	}
}
