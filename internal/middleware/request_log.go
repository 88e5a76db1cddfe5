package middleware

import (
	"net/http"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/unichat/internal/logger"
)

// RequestLog logs method, path, status and duration of each request.
func RequestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		defer func() {
			logger.Debugf("http %s %s %d %v", r.Method, r.URL.Path, ww.Status(), time.Since(start))
			logger.LogDuration("http "+r.Method+" "+r.URL.Path, start)
		}()
		next.ServeHTTP(ww, r)
	})
}
