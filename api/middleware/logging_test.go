package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestLoggingPreservesFlusher(t *testing.T) {
	flushed := false
	handler := Logging(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f, ok := w.(http.Flusher)
		if !ok {
			t.Fatal("expected flusher")
		}
		w.WriteHeader(http.StatusAccepted)
		f.Flush()
		flushed = true
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if !flushed || !rec.Flushed {
		t.Fatal("expected response to be flushed")
	}
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202 got %d", rec.Code)
	}
}

func TestRequestIDEchoesHeader(t *testing.T) {
	handler := RequestID(nil)(okHandler(nil))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(requestIDHeader, "req-1")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Header().Get(requestIDHeader) != "req-1" {
		t.Fatalf("expected request id echoed, got %q", rec.Header().Get(requestIDHeader))
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Header().Get(requestIDHeader) == "" {
		t.Fatal("expected generated request id")
	}
}

func TestRecovererReturns500(t *testing.T) {
	handler := Recoverer(nil)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 got %d", rec.Code)
	}
}
