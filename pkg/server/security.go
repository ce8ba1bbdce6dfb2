package server

import (
	"net/http"
)

// securityHeadersMiddleware sets the headers that make sense for a plain-http
// LAN service; there is no TLS so HSTS is not sent.
func (s *Server) securityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Prevent MIME-sniffing
		w.Header().Set("X-Content-Type-Options", "nosniff")

		// Prevent clickjacking
		w.Header().Set("X-Frame-Options", "DENY")

		// readings change every poll
		w.Header().Set("Cache-Control", "no-store")

		next.ServeHTTP(w, r)
	})
}
