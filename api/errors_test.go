package api

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestStatusErrClassification(t *testing.T) {
	tests := []struct {
		status int
		want   ErrorKind
	}{
		{401, KindAuth},
		{403, KindAuth},
		{404, KindNotFound},
		{429, KindRateLimited},
		{400, KindInvalidArgument},
		{422, KindInvalidArgument},
		{500, KindTransient},
		{503, KindTransient},
	}
	for _, tt := range tests {
		err := statusErr("op", tt.status, "")
		if err.Kind != tt.want {
			t.Errorf("status %d -> %s, want %s", tt.status, err.Kind, tt.want)
		}
	}
}

func TestKindOf(t *testing.T) {
	wrapped := fmt.Errorf("request failed: %w", statusErr("op", 503, ""))
	if KindOf(wrapped) != KindTransient {
		t.Errorf("wrapped venue error lost its kind")
	}
	if KindOf(errors.New("plain")) != KindFatal {
		t.Errorf("foreign errors should default to fatal")
	}
	if KindOf(context.DeadlineExceeded) != KindTransient {
		t.Errorf("deadline exceeded should be transient")
	}
}

func TestIsRetryable(t *testing.T) {
	if !IsRetryable(statusErr("op", 503, "")) {
		t.Error("503 should be retryable")
	}
	if !IsRetryable(statusErr("op", 429, "")) {
		t.Error("429 should be retryable")
	}
	if IsRetryable(statusErr("op", 401, "")) {
		t.Error("auth failures must not be retried")
	}
	if IsRetryable(statusErr("op", 400, "")) {
		t.Error("invalid arguments must not be retried")
	}
}
