package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"saldo/internal/core"
	"saldo/internal/services"
	"saldo/internal/store"
)

func TestJSONResponseBuilder_Basic(t *testing.T) {
	w := httptest.NewRecorder()

	NewJSONResponse().
		Status(http.StatusAccepted).
		Header("X-Custom", "value").
		Data(map[string]int{"processed": 3}).
		Write(w)

	if w.Code != http.StatusAccepted {
		t.Errorf("Status code = %d, want %d", w.Code, http.StatusAccepted)
	}
	if got := w.Header().Get("Content-Type"); got != "application/json; charset=utf-8" {
		t.Errorf("Content-Type = %q", got)
	}
	if got := w.Header().Get("X-Custom"); got != "value" {
		t.Errorf("X-Custom = %q, want value", got)
	}
	var body map[string]int
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["processed"] != 3 {
		t.Errorf("processed = %d, want 3", body["processed"])
	}
}

func TestJSONResponseBuilder_NoBody(t *testing.T) {
	w := httptest.NewRecorder()
	NewJSONResponse().Status(http.StatusNoContent).Write(w)

	if w.Code != http.StatusNoContent {
		t.Errorf("Status code = %d, want 204", w.Code)
	}
	if w.Body.Len() != 0 {
		t.Errorf("Body = %q, want empty", w.Body.String())
	}
}

func TestStatusForError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"invalid range", &core.InvalidRangeError{Start: "2025-02-01", End: "2025-01-01", Reason: "end before start"}, http.StatusBadRequest},
		{"wrapped amount", fmt.Errorf("anchor opening: %w", core.ErrInvalidAmount), http.StatusBadRequest},
		{"invalid date", core.ErrInvalidDate, http.StatusBadRequest},
		{"mode", services.ErrInvalidMode, http.StatusBadRequest},
		{"job kind", services.ErrInvalidJobKind, http.StatusBadRequest},
		{"not found", store.ErrNotFound, http.StatusNotFound},
		{"queue", services.ErrQueueUnavailable, http.StatusServiceUnavailable},
		{"no application source", services.ErrNoApplicationData, http.StatusServiceUnavailable},
		{"store failure", &core.StoreFetchError{Op: "balances", Err: errors.New("disk")}, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StatusForError(tt.err); got != tt.want {
				t.Errorf("StatusForError() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestFromErrorHidesInternalDetails(t *testing.T) {
	w := httptest.NewRecorder()
	FromError(errors.New("database is locked")).Write(w)

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("Status code = %d, want 500", w.Code)
	}
	var body errorBody
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Error != "internal error" {
		t.Errorf("error = %q, want generic message", body.Error)
	}
}
