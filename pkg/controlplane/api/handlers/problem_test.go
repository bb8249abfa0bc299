package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/marmos91/dittoaccel/pkg/accel"
	"github.com/marmos91/dittoaccel/pkg/bdev"
)

func TestStatusForError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"key not found", &accel.Error{Op: "key_get", Err: accel.ErrNotFound}, http.StatusNotFound},
		{"bdev not found", fmt.Errorf("lookup: %w", bdev.ErrNotFound), http.StatusNotFound},
		{"duplicate key", &accel.Error{Op: "key_create", Err: accel.ErrExists}, http.StatusConflict},
		{"duplicate bdev", bdev.ErrExists, http.StatusConflict},
		{"claimed base", bdev.ErrClaimed, http.StatusConflict},
		{"module lacks keys", accel.ErrNotSupported, http.StatusNotImplemented},
		{"finishing", accel.ErrShutdown, http.StatusServiceUnavailable},
		{"pool exhausted", accel.ErrNoTask, http.StatusServiceUnavailable},
		{"bad hex", fmt.Errorf("%w: key is not valid hex", accel.ErrInvalidArgument), http.StatusBadRequest},
		{"size mismatch", accel.ErrRange, http.StatusBadRequest},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StatusForError(tt.err); got != tt.want {
				t.Errorf("StatusForError(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}

func TestWriteError_ProblemJSON(t *testing.T) {
	w := httptest.NewRecorder()
	WriteError(w, &accel.Error{Op: "key_get", Key: "k0", Err: accel.ErrNotFound})

	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status %d, got %d", http.StatusNotFound, w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != ContentTypeProblemJSON {
		t.Errorf("Expected Content-Type %q, got %q", ContentTypeProblemJSON, ct)
	}

	var p Problem
	if err := json.NewDecoder(w.Body).Decode(&p); err != nil {
		t.Fatalf("Failed to decode problem: %v", err)
	}
	if p.Status != http.StatusNotFound || p.Title != "Not Found" {
		t.Errorf("Unexpected problem: %+v", p)
	}
	if p.Detail != "accel key_get key=k0: not found" {
		t.Errorf("Unexpected detail: %q", p.Detail)
	}
}

func TestLiveness_ReturnsOK(t *testing.T) {
	handler := NewHealthHandler(nil, nil)
	w := httptest.NewRecorder()

	handler.Liveness(w, httptest.NewRequest("GET", "/health", nil))

	if w.Code != http.StatusOK {
		t.Errorf("Expected status %d, got %d", http.StatusOK, w.Code)
	}
	var resp Response
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp.Status != "healthy" {
		t.Errorf("Expected status 'healthy', got '%s'", resp.Status)
	}
}

func TestReadiness_NotStarted(t *testing.T) {
	handler := NewHealthHandler(accel.New(), bdev.NewManager())
	w := httptest.NewRecorder()

	handler.Readiness(w, httptest.NewRequest("GET", "/health/ready", nil))

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected status %d, got %d", http.StatusServiceUnavailable, w.Code)
	}
	var resp Response
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp.Status != "unhealthy" {
		t.Errorf("Expected status 'unhealthy', got '%s'", resp.Status)
	}
}
