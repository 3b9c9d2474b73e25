package middleware

import (
	"net/http"

	"go.uber.org/zap"
)

// Middleware wraps a handler. Conveyor applies them in order so the last one
// listed runs first.
type Middleware func(http.Handler, *zap.SugaredLogger) http.Handler

func Conveyor(h http.Handler, sugar *zap.SugaredLogger, middlewares ...Middleware) http.Handler {
	for _, middleware := range middlewares {
		h = middleware(h, sugar)
	}
	return h
}
