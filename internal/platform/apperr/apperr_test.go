package apperr

import (
	"errors"
	"net/http"
	"testing"
)

func TestNotFound(t *testing.T) {
	err := NotFound("patient", "abc-123")
	if !errors.Is(err, ErrNotFound) {
		t.Error("expected errors.Is(err, ErrNotFound)")
	}
	if err.HTTPStatus != http.StatusNotFound {
		t.Errorf("expected 404, got %d", err.HTTPStatus)
	}
	if err.Details["id"] != "abc-123" {
		t.Errorf("expected id detail, got %v", err.Details)
	}
}

func TestStateTransition(t *testing.T) {
	err := StateTransition("lab order", "PENDING_PAYMENT", "IN_PROGRESS")
	if !errors.Is(err, ErrStateTransition) {
		t.Error("expected errors.Is(err, ErrStateTransition)")
	}
	if err.HTTPStatus != http.StatusConflict {
		t.Errorf("expected 409, got %d", err.HTTPStatus)
	}
	want := "lab order cannot move from PENDING_PAYMENT to IN_PROGRESS"
	if err.Message != want {
		t.Errorf("message = %q, want %q", err.Message, want)
	}
}

func TestConcurrencyStatus(t *testing.T) {
	err := Concurrency("retry")
	if err.HTTPStatus != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", err.HTTPStatus)
	}
}

func TestWrap_PreservesCode(t *testing.T) {
	inner := Conflict("bed occupied")
	wrapped := Wrap(inner, "admit patient")
	if wrapped.Code != "CONFLICT" {
		t.Errorf("expected CONFLICT code preserved, got %s", wrapped.Code)
	}
	if wrapped.HTTPStatus != http.StatusConflict {
		t.Errorf("expected 409 preserved, got %d", wrapped.HTTPStatus)
	}
	if !errors.Is(wrapped, ErrConflict) {
		t.Error("expected errors.Is to see through the wrap")
	}
}

func TestWrap_PlainError(t *testing.T) {
	wrapped := Wrap(errors.New("boom"), "load bill")
	if wrapped.HTTPStatus != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", wrapped.HTTPStatus)
	}
}

func TestValidationf(t *testing.T) {
	err := Validationf("quantity must be positive, got %d", -2)
	if !errors.Is(err, ErrValidation) {
		t.Error("expected errors.Is(err, ErrValidation)")
	}
	if err.Message != "quantity must be positive, got -2" {
		t.Errorf("unexpected message: %s", err.Message)
	}
}
