package middleware

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestRequestID_Generated(t *testing.T) {
	t.Parallel()

	var seen string
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/acme", nil))

	if len(seen) != 36 {
		t.Fatalf("expected a UUID, got %q", seen)
	}
	if rec.Header().Get(RequestIDHeader) != seen {
		t.Errorf("response header = %q, want %q", rec.Header().Get(RequestIDHeader), seen)
	}
}

func TestRequestID_Propagated(t *testing.T) {
	t.Parallel()

	var gotID, gotTrace string
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotID = GetRequestID(r.Context())
		gotTrace = GetTraceID(r.Context())
	}))

	req := httptest.NewRequest("GET", "/acme", nil)
	req.Header.Set(RequestIDHeader, "edge-req-1")
	req.Header.Set(TraceIDHeader, "trace-9")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if gotID != "edge-req-1" {
		t.Errorf("request id = %q", gotID)
	}
	if gotTrace != "trace-9" {
		t.Errorf("trace id = %q", gotTrace)
	}
}

func TestRequestID_OversizedReplaced(t *testing.T) {
	t.Parallel()

	var gotID string
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotID = GetRequestID(r.Context())
	}))

	req := httptest.NewRequest("GET", "/acme", nil)
	req.Header.Set(RequestIDHeader, strings.Repeat("x", maxRequestIDLen+1))
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if len(gotID) != 36 {
		t.Errorf("expected a generated UUID, got %d chars", len(gotID))
	}
}

func TestRecoverer(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	handler := Recoverer(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/acme", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	var body map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["code"] != "INTERNAL_ERROR" {
		t.Errorf("code = %q", body["code"])
	}
	if !strings.Contains(buf.String(), "panic_recovered") {
		t.Errorf("panic not logged: %s", buf.String())
	}
}
