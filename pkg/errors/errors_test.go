package errors

import (
	stderrors "errors"
	"fmt"
	"testing"
)

func TestIsComparesCode(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		target error
		want   bool
	}{
		{
			name:   "same sentinel",
			err:    ErrInvalidCode,
			target: ErrInvalidCode,
			want:   true,
		},
		{
			name:   "same code different message",
			err:    New(ErrCodeInvalidCode, "code already used"),
			target: ErrInvalidCode,
			want:   true,
		},
		{
			name:   "wrapped with fmt",
			err:    fmt.Errorf("verify: %w", ErrCodeExpired),
			target: ErrCodeExpired,
			want:   true,
		},
		{
			name:   "different code",
			err:    ErrCodeExpired,
			target: ErrInvalidCode,
			want:   false,
		},
		{
			name:   "plain error",
			err:    stderrors.New("boom"),
			target: ErrInvalidCode,
			want:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Is(tt.err, tt.target); got != tt.want {
				t.Errorf("Is() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCodeOf(t *testing.T) {
	cause := stderrors.New("connection reset")

	tests := []struct {
		name string
		err  error
		want Code
	}{
		{name: "nil", err: nil, want: ""},
		{name: "coded", err: ErrDuplicateUsername, want: ErrCodeDuplicateUsername},
		{name: "wrapped coded", err: fmt.Errorf("create: %w", ErrResidentNotFound), want: ErrCodeResidentNotFound},
		{name: "uncoded", err: cause, want: ErrCodeStorageFailure},
		{name: "wrap keeps code", err: Wrap(cause, ErrCodeStorageFailure, "failed to insert"), want: ErrCodeStorageFailure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CodeOf(tt.err); got != tt.want {
				t.Errorf("CodeOf() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestWrapUnwrap(t *testing.T) {
	cause := stderrors.New("connection reset")
	err := Wrap(cause, ErrCodeStorageFailure, "failed to get account")

	if !stderrors.Is(err, cause) {
		t.Error("Wrap() should keep the cause in the chain")
	}
	if err.Error() != "failed to get account: connection reset" {
		t.Errorf("Error() = %q", err.Error())
	}
}
