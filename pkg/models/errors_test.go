package models

import (
	"errors"
	"testing"
)

func TestError_IsMatchesOnKindAlone(t *testing.T) {
	cause := errors.New("boom")
	err := NewError(ErrTransientDevice, "device unreachable", cause)

	if !errors.Is(err, &Error{Kind: ErrTransientDevice}) {
		t.Fatal("expected Is to match on Kind")
	}
	if errors.Is(err, &Error{Kind: ErrPermanentDevice}) {
		t.Fatal("expected Is to not match a different Kind")
	}
}

func TestError_UnwrapExposesCause(t *testing.T) {
	cause := errors.New("boom")
	err := NewError(ErrUserCode, "preprocessing failed", cause)
	if !errors.Is(err, cause) {
		t.Fatal("expected errors.Is to unwrap to the original cause")
	}
}

func TestError_ErrorMessageIncludesKindAndCause(t *testing.T) {
	err := NewError(ErrValidationKind, "mismatch", errors.New("boom"))
	want := "validation: mismatch: boom"
	if err.Error() != want {
		t.Fatalf("Error() = %q, want %q", err.Error(), want)
	}
}

func TestError_ErrorMessageWithoutCause(t *testing.T) {
	err := NewError(ErrCancelled, "stopped", nil)
	want := "cancelled: stopped"
	if err.Error() != want {
		t.Fatalf("Error() = %q, want %q", err.Error(), want)
	}
}

func TestValidationErrors_ErrorReturnsFirstMessage(t *testing.T) {
	errs := ValidationErrors{
		{Field: "id", Message: "required"},
		{Field: "name", Message: "too long"},
	}
	if errs.Error() != "id: required" {
		t.Fatalf("Error() = %q, want first error's message", errs.Error())
	}
}

func TestValidationErrors_EmptyHasDefaultMessage(t *testing.T) {
	var errs ValidationErrors
	if errs.Error() != "validation failed" {
		t.Fatalf("Error() = %q, want default message", errs.Error())
	}
}
