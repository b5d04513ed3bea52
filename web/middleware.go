package web

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/aldas/go-canxl-regs/internal/ctxlog"
)

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// requestLogger puts request scoped logger into request context and logs handled requests.
func requestLogger(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rl := logger.With("method", r.Method, "path", r.URL.Path)
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r.WithContext(ctxlog.WithLogger(r.Context(), rl)))

		rl.Debug("request handled", "status", rec.status, "duration", time.Since(start))
	})
}
