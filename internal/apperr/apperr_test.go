package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestIsMatchesByCode(t *testing.T) {
	err := NotFound("obligation")
	if !errors.Is(err, ErrNotFound) {
		t.Fatal("expected not found error to match sentinel")
	}
	if errors.Is(err, ErrForbidden) {
		t.Fatal("not found must not match forbidden")
	}
	wrapped := fmt.Errorf("load: %w", err)
	if !errors.Is(wrapped, ErrNotFound) {
		t.Fatal("expected match through fmt wrapping")
	}
}

func TestWrapKeepsCause(t *testing.T) {
	cause := errors.New("connection reset")
	err := Wrap(CodeStorageFailure, "query obligations", cause)
	if !errors.Is(err, cause) {
		t.Fatal("expected cause in chain")
	}
	if err.Error() != "query obligations: connection reset" {
		t.Fatalf("Error() = %q", err.Error())
	}
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		code Code
		want int
	}{
		{CodeUnauthorized, http.StatusUnauthorized},
		{CodeScopeRequired, http.StatusInternalServerError},
		{CodeNotFound, http.StatusNotFound},
		{CodeForbidden, http.StatusForbidden},
		{CodeInvalidTransition, http.StatusConflict},
		{CodeValidation, http.StatusBadRequest},
		{CodeConflict, http.StatusConflict},
		{CodeStorageFailure, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := tt.code.HTTPStatus(); got != tt.want {
			t.Errorf("%s.HTTPStatus() = %d, want %d", tt.code, got, tt.want)
		}
	}
}

func TestCodeOf(t *testing.T) {
	if got := CodeOf(fmt.Errorf("x: %w", ErrForbidden)); got != CodeForbidden {
		t.Fatalf("CodeOf = %s, want %s", got, CodeForbidden)
	}
	if got := CodeOf(errors.New("boom")); got != CodeStorageFailure {
		t.Fatalf("CodeOf(foreign) = %s, want %s", got, CodeStorageFailure)
	}
}

func TestInternalCodes(t *testing.T) {
	if !CodeStorageFailure.Internal() || !CodeScopeRequired.Internal() {
		t.Fatal("storage and scope errors must be internal")
	}
	if CodeNotFound.Internal() {
		t.Fatal("not found is client visible")
	}
}
