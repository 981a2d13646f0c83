package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHTTPMiddleware(t *testing.T) {
	reg := NewRegistry()

	handler := HTTPMiddleware(reg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	req := httptest.NewRequest("GET", "/api/v1/snapshot", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusTeapot {
		t.Errorf("expected status to pass through, got %d", w.Code)
	}

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather failed: %v", err)
	}

	for _, mf := range mfs {
		if mf.GetName() == "http_requests_total" {
			if len(mf.GetMetric()) != 1 {
				t.Errorf("expected one recorded request, got %d", len(mf.GetMetric()))
			}
			return
		}
	}
	t.Error("expected http_requests_total to be recorded")
}

func TestResponseWriter_Flush(t *testing.T) {
	// Must not panic even when the underlying writer is not a Flusher.
	rw := &responseWriter{ResponseWriter: httptest.NewRecorder(), statusCode: 200}
	rw.Flush()
}
