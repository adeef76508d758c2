package httputil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func decode(t *testing.T, rec *httptest.ResponseRecorder) APIError {
	t.Helper()
	var e APIError
	if err := json.Unmarshal(rec.Body.Bytes(), &e); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return e
}

func TestWriteError(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, "req_1", http.StatusForbidden, "invalid_request_error", "model_not_allowed", "nope")

	if rec.Code != http.StatusForbidden {
		t.Errorf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
	if rec.Header().Get("X-Request-ID") != "req_1" {
		t.Error("missing X-Request-ID")
	}

	e := decode(t, rec)
	if e.Error.Type != "invalid_request_error" || e.Error.Code != "model_not_allowed" {
		t.Errorf("error = %+v", e.Error)
	}
	if e.Error.JanusReqID != "req_1" {
		t.Errorf("janus_request_id = %q", e.Error.JanusReqID)
	}
}

func TestErrorHelpers(t *testing.T) {
	tests := []struct {
		name     string
		write    func(w http.ResponseWriter)
		status   int
		code     string
		errType  string
	}{
		{"auth", func(w http.ResponseWriter) { WriteAuthError(w, "r", "m") },
			http.StatusUnauthorized, "invalid_api_key", "authentication_error"},
		{"rate limit", func(w http.ResponseWriter) { WriteRateLimitError(w, "r", "m") },
			http.StatusTooManyRequests, "rate_limit_exceeded", "rate_limit_error"},
		{"bad request", func(w http.ResponseWriter) { WriteBadRequestError(w, "r", "m") },
			http.StatusBadRequest, "invalid_request", "invalid_request_error"},
		{"not found", func(w http.ResponseWriter) { WriteNotFoundError(w, "r", "m") },
			http.StatusNotFound, "not_found", "invalid_request_error"},
		{"internal", func(w http.ResponseWriter) { WriteInternalError(w, "r", "m") },
			http.StatusInternalServerError, "internal_error", "server_error"},
		{"unavailable", func(w http.ResponseWriter) { WriteServiceUnavailableError(w, "r", "m") },
			http.StatusServiceUnavailable, "service_unavailable", "server_error"},
	}
	for _, tt := range tests {
		rec := httptest.NewRecorder()
		tt.write(rec)
		if rec.Code != tt.status {
			t.Errorf("%s: status = %d, want %d", tt.name, rec.Code, tt.status)
		}
		e := decode(t, rec)
		if e.Error.Code != tt.code || e.Error.Type != tt.errType {
			t.Errorf("%s: error = %+v", tt.name, e.Error)
		}
	}
}
