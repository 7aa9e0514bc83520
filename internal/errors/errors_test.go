package errors

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestStatusCodes(t *testing.T) {
	tests := []struct {
		err  *AppError
		want int
	}{
		{Validation("bad"), http.StatusBadRequest},
		{BadRequest("bad"), http.StatusBadRequest},
		{NotFound("gone"), http.StatusNotFound},
		{RateLimit("slow down"), http.StatusTooManyRequests},
		{DataUnavailable(fmt.Errorf("open data.csv")), http.StatusServiceUnavailable},
		{Internal("oops"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		if tt.err.StatusCode != tt.want {
			t.Errorf("%s: status %d, want %d", tt.err.Code, tt.err.StatusCode, tt.want)
		}
	}
}

func TestAsAndHasCode(t *testing.T) {
	base := Validation("unknown event")
	wrapped := fmt.Errorf("dispatch: %w", base)

	got, ok := As(wrapped)
	if !ok || got != base {
		t.Fatalf("As() did not find the AppError in %v", wrapped)
	}
	if !HasCode(wrapped, CodeValidation) || HasCode(wrapped, CodeNotFound) {
		t.Error("HasCode() returned the wrong answer")
	}
	if _, ok := As(fmt.Errorf("plain")); ok {
		t.Error("plain error is not an AppError")
	}
}

func TestWriteError(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, quietLogger(), fmt.Errorf("wrapped: %w", Validation("bad dimension").WithDetails("dimension=region")), "req-1")

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}

	var body struct {
		Success bool `json:"success"`
		Error   struct {
			Code      string `json:"code"`
			Message   string `json:"message"`
			Details   string `json:"details"`
			RequestID string `json:"request_id"`
		} `json:"error"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.Success || body.Error.Code != "VALIDATION_ERROR" || body.Error.Details != "dimension=region" || body.Error.RequestID != "req-1" {
		t.Errorf("unexpected envelope %+v", body)
	}
}

func TestWriteError_PlainErrorIsInternal(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, quietLogger(), fmt.Errorf("secret path /etc/data"), "")

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", rec.Code)
	}
	if got := rec.Body.String(); strings.Contains(got, "/etc/data") {
		t.Errorf("internal cause leaked to client: %s", got)
	}
}

func TestWriteSuccess(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteSuccessWithHeaders(rec, map[string]int{"records": 3}, map[string]string{"Cache-Control": "no-store"})

	if rec.Header().Get("Cache-Control") != "no-store" || rec.Header().Get("Content-Type") != "application/json" {
		t.Errorf("unexpected headers %v", rec.Header())
	}

	var body SuccessResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if !body.Success {
		t.Error("expected success envelope")
	}
}
