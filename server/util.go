package server

import (
	"net/http"
	"strings"
)

// checkOrigin validates the Origin header against server.allowed_origins.
// Without configured origins only localhost is accepted.
func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")

	// Allow requests with no origin header (curl, direct websocket clients, tests)
	if origin == "" {
		return true
	}

	if len(s.allowedOrigins) == 0 {
		return strings.HasPrefix(origin, "http://localhost") ||
			strings.HasPrefix(origin, "https://localhost") ||
			strings.HasPrefix(origin, "http://127.0.0.1")
	}

	// Prefix matching allows any port number
	for _, allowed := range s.allowedOrigins {
		if strings.HasPrefix(origin, allowed) {
			return true
		}
	}
	return false
}
