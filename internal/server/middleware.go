package server

import (
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
)

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// observe records request counts and latency by route template so path
// parameters do not explode label cardinality.
func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		if s.deps.Metrics == nil {
			return
		}
		route := "unmatched"
		if cur := mux.CurrentRoute(r); cur != nil {
			if tpl, err := cur.GetPathTemplate(); err == nil {
				route = tpl
			}
		}
		s.deps.Metrics.ObserveHTTP(r.Method, route, rec.status, time.Since(start))
	})
}

// limitByIP rejects a client once it exceeds limit requests per minute on one
// route. Every lookup counts, found or not, so references cannot be guessed
// in bulk. A limiter failure lets the request through.
func (s *Server) limitByIP(route string, limit int, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.deps.Limiter == nil {
			next(w, r)
			return
		}
		ip := clientIP(r)
		ok, err := s.deps.Limiter.Allow(r.Context(), route+":"+ip, limit)
		if err != nil {
			slog.Error("rate limit check failed", "route", route, "ip", ip, "error", err)
			next(w, r)
			return
		}
		if !ok {
			w.Header().Set("Retry-After", "60")
			writeJSON(w, http.StatusTooManyRequests, map[string]string{"error": "too many requests"})
			return
		}
		next(w, r)
	}
}

// clientIP is the peer address. Forwarding headers are ignored since any
// client can set them.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
