package middleware

import (
	"net/http"
	"time"

	"go.uber.org/zap"
)

// RequestObserver receives one observation per finished request.
type RequestObserver interface {
	ObserveRequest(handler string, status int, elapsed time.Duration)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Flush() {
	if f, ok := s.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Instrument records status and latency under name.
func Instrument(observer RequestObserver, name string) Middleware {
	return func(h http.Handler, sugar *zap.SugaredLogger) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			h.ServeHTTP(rec, r)
			elapsed := time.Since(start)
			observer.ObserveRequest(name, rec.status, elapsed)
			sugar.Debugw("request served", "handler", name, "method", r.Method, "status", rec.status, "elapsed", elapsed)
		})
	}
}
