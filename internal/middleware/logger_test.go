package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestRequestLogger(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)

	h := RequestLogger(zap.New(core))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("short and stout"))
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/weeks/2024-06-09/model", nil))

	if logs.Len() != 1 {
		t.Fatalf("got %d log entries, want 1", logs.Len())
	}

	fields := logs.All()[0].ContextMap()
	if fields["status"] != int64(http.StatusTeapot) {
		t.Fatalf("status field = %v, want %d", fields["status"], http.StatusTeapot)
	}
	if fields["size"] != int64(len("short and stout")) {
		t.Fatalf("size field = %v", fields["size"])
	}
	if fields["path"] != "/api/weeks/2024-06-09/model" {
		t.Fatalf("path field = %v", fields["path"])
	}
}
