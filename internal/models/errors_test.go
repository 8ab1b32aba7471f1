package models

import (
	"errors"
	"fmt"
	"testing"
)

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"transient fetch", NewTransientFetchError(errors.New("timeout")), true},
		{"extraction", NewExtractionError(errors.New("selector missed")), true},
		{"persistence", NewPersistenceError(errors.New("write failed")), true},
		{"validation", NewValidationError(errors.New("bad payload")), false},
		{"unclassified", errors.New("who knows"), true},
		{"wrapped validation", fmt.Errorf("outer: %w", NewValidationError(errors.New("bad"))), false},
		{"wrapped transient", fmt.Errorf("outer: %w", NewTransientFetchError(errors.New("reset"))), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.want {
				t.Errorf("IsRetryable() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestKindOf(t *testing.T) {
	if kind := KindOf(NewExtractionError(errors.New("x"))); kind != ErrorKindExtraction {
		t.Errorf("Expected extraction kind, got %q", kind)
	}
	if kind := KindOf(errors.New("plain")); kind != "" {
		t.Errorf("Expected empty kind for plain error, got %q", kind)
	}
}

func TestTaskError_Unwrap(t *testing.T) {
	inner := errors.New("inner")
	err := NewPersistenceError(fmt.Errorf("save: %w", inner))
	if !errors.Is(err, inner) {
		t.Error("Expected TaskError to unwrap to the inner error")
	}
}
