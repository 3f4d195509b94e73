package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestAppError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *AppError
		want string
	}{
		{
			name: "without wrapped error",
			err:  New("NEEDS_LIST_NOT_FOUND", "needs list not found", http.StatusNotFound),
			want: "NEEDS_LIST_NOT_FOUND: needs list not found",
		},
		{
			name: "with wrapped error",
			err:  Wrap(fmt.Errorf("db error"), "STORAGE_FAILURE", "storage failure", http.StatusInternalServerError),
			want: "STORAGE_FAILURE: storage failure: db error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestAppError_Unwrap(t *testing.T) {
	inner := fmt.Errorf("inner error")
	appErr := Wrap(inner, "CODE", "msg", 500)

	if !errors.Is(appErr, inner) {
		t.Error("errors.Is should match inner error")
	}
}

func TestIsAppError(t *testing.T) {
	appErr := Conflict(CodeStatusConflict, "wrong status")
	wrapped := fmt.Errorf("wrapped: %w", appErr)

	got, ok := IsAppError(wrapped)
	if !ok {
		t.Fatal("IsAppError should return true for wrapped AppError")
	}
	if got.Code != CodeStatusConflict {
		t.Errorf("Code = %q, want %q", got.Code, CodeStatusConflict)
	}
}

func TestErrorConstructors(t *testing.T) {
	tests := []struct {
		name       string
		err        *AppError
		wantStatus int
	}{
		{"NotFound", NotFound("NF", "not found"), http.StatusNotFound},
		{"BadRequest", BadRequest("BR", "bad request"), http.StatusBadRequest},
		{"Forbidden", Forbidden("FB", "forbidden"), http.StatusForbidden},
		{"Conflict", Conflict("CF", "conflict"), http.StatusConflict},
		{"Internal", Internal("IE", "internal"), http.StatusInternalServerError},
		{"Unavailable", Unavailable("UA", "unavailable"), http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.HTTPStatus != tt.wantStatus {
				t.Errorf("HTTPStatus = %d, want %d", tt.err.HTTPStatus, tt.wantStatus)
			}
		})
	}
}

func TestCodeConstructors(t *testing.T) {
	e := ErrStatusConflictf("APPROVED", "submit")
	if e.HTTPStatus != http.StatusConflict {
		t.Errorf("HTTPStatus = %d, want 409", e.HTTPStatus)
	}
	if e.Params["current_status"] != "APPROVED" {
		t.Errorf("Params missing current_status: %v", e.Params)
	}

	d := ErrDuplicateNumberf("NL-2026-000042", 5)
	if d.Code != CodeDuplicateNumber {
		t.Errorf("Code = %q, want %q", d.Code, CodeDuplicateNumber)
	}
}
