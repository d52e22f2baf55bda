package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestCommandError_Reply(t *testing.T) {
	tests := []struct {
		name string
		err  *CommandError
		want string
	}{
		{"unknown command", ErrUnknownCommand, "ERR unknown command"},
		{"wrong type", ErrWrongType, "ERR wrong type of key"},
		{"not integer", ErrNotInteger, "ERR value is not an integer or out of range"},
		{"not number", ErrNotNumber, "ERR wrong argument type (should be number)"},
		{"arity", NewArityError("SET"), "ERR wrong number of arguments for 'SET' command"},
		{"protocol", NewProtocolError("invalid array length"), "ERR protocol error: invalid array length"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Reply(); got != tt.want {
				t.Errorf("Reply() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCommandError_Is(t *testing.T) {
	if !errors.Is(NewArityError("GET"), ErrArity) {
		t.Error("arity error should match ErrArity")
	}
	if !errors.Is(ErrNotInteger, ErrValidation) {
		t.Error("ErrNotInteger should match ErrValidation")
	}
	if errors.Is(ErrWrongType, ErrValidation) {
		t.Error("type error should not match ErrValidation")
	}
	if errors.Is(ErrWrongType, fmt.Errorf("some error")) {
		t.Error("errors.Is should return false for non-CommandError")
	}

	wrapped := fmt.Errorf("execute: %w", ErrWrongType)
	if !errors.Is(wrapped, ErrWrongType) {
		t.Error("wrapped error should still match")
	}
}

func TestCommandError_Unwrap(t *testing.T) {
	cause := errors.New("boom")
	err := NewInternalError("INCR", cause)

	if !errors.Is(err, cause) {
		t.Error("internal error should unwrap to its cause")
	}
	if err.Reply() != "ERR internal error executing 'INCR'" {
		t.Errorf("Reply() = %q", err.Reply())
	}
	if errors.Unwrap(ErrWrongType) != nil {
		t.Error("Unwrap() should return nil when no cause")
	}
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		err  error
		want ErrorKind
	}{
		{NewArityError("DEL"), KindArity},
		{fmt.Errorf("wrap: %w", ErrNotNumber), KindValidation},
		{ErrUnknownCommand, KindUnknownCommand},
		{errors.New("plain"), 0},
		{nil, 0},
	}

	for _, tt := range tests {
		if got := KindOf(tt.err); got != tt.want {
			t.Errorf("KindOf(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}
