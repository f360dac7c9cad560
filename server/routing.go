package server

import (
	"bufio"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/teranos/waypoint/errors"
	"github.com/teranos/waypoint/logger"
)

// RequestIDHeader carries the per-request id back to the caller
const RequestIDHeader = "X-Request-ID"

// routes builds the mux. Method patterns make the mux answer 405 itself.
func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.HandleHealth)
	mux.HandleFunc("GET /api/jobs", s.HandleListJobs)           // Queued and running jobs
	mux.HandleFunc("POST /api/jobs", s.HandleSubmitJob)         // Enqueue {job, user, params}
	mux.HandleFunc("DELETE /api/jobs/{id}", s.HandleCancelJob)  // Cancel, ?blocking=true waits
	mux.HandleFunc("GET /api/jobs/types", s.HandleJobTypes)     // Catalog descriptors
	mux.HandleFunc("GET /api/jobs/history", s.HandleJobHistory) // Finished jobs, ?limit=
	mux.HandleFunc("GET /api/stats", s.HandleStats)             // Daily statistics, ?user=
	mux.HandleFunc("GET /api/system", s.HandleSystem)           // Worker and memory metrics
	mux.HandleFunc("GET /ws/jobs", s.HandleJobFeed)             // Job list polling over websocket

	return s.requestMiddleware(s.corsMiddleware(mux))
}

// corsMiddleware adds CORS headers for configured origins and answers preflight
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && s.checkOrigin(r) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Vary", "Origin")
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, "+RequestIDHeader)

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requestMiddleware tags each request with an id, rejects work while draining
// and logs the outcome
func (s *Server) requestMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := r.Header.Get(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, requestID)
		ctx := logger.WithRequestID(r.Context(), requestID)

		if s.getState() != ServerStateRunning && r.URL.Path != "/health" {
			w.Header().Set("Retry-After", "5")
			writeError(w, http.StatusServiceUnavailable, "Server is shutting down")
			return
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r.WithContext(ctx))

		log := logger.FromContext(ctx, s.logger)
		fields := []interface{}{
			logger.FieldMethod, r.Method,
			logger.FieldPath, r.URL.Path,
			"status", rec.status,
			logger.FieldDurationMS, time.Since(start).Milliseconds(),
		}
		if rec.status >= http.StatusInternalServerError {
			log.Warnw("HTTP request failed", fields...)
		} else {
			log.Debugw("HTTP request", fields...)
		}
	})
}

// statusRecorder captures the response status. It passes Hijack through so
// the websocket upgrade still works behind the middleware.
type statusRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (r *statusRecorder) WriteHeader(code int) {
	if !r.wroteHeader {
		r.status = code
		r.wroteHeader = true
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
