package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

type responseWriterLogger struct {
	http.ResponseWriter
	statusCode int
	length     int
}

func (wl *responseWriterLogger) WriteHeader(code int) {
	wl.statusCode = code
	wl.ResponseWriter.WriteHeader(code)
}

func (wl *responseWriterLogger) Write(b []byte) (int, error) {
	n, err := wl.ResponseWriter.Write(b)
	wl.length += n
	return n, err
}

func (wl *responseWriterLogger) Flush() {
	if f, ok := wl.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// RequestLogger пишет в лог каждый входящий запрос и ответ на него.
// Тела не логируются: в них суммы заказов.
func RequestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			wl := &responseWriterLogger{ResponseWriter: w, statusCode: http.StatusOK}

			start := time.Now()
			next.ServeHTTP(wl, r)

			logger.Info("http request",
				zap.String("request_id", middleware.GetReqID(r.Context())),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", wl.statusCode),
				zap.Int("size", wl.length),
				zap.Duration("duration", time.Since(start)),
			)
		})
	}
}
