package middleware

import (
	"net/http"
)

// Hardening sets the response headers every redirector response carries.
// Redirect targets must not be cached by browsers or proxies, and the
// tracking identifier must not leak to the destination through Referer.
//
// Headers applied:
//   - X-Content-Type-Options: nosniff
//   - Referrer-Policy: no-referrer
//   - Cache-Control: no-store
//   - X-Frame-Options: DENY
//   - Strict-Transport-Security, outside development only
func Hardening(isDevelopment bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("Referrer-Policy", "no-referrer")
			h.Set("Cache-Control", "no-store")
			h.Set("X-Frame-Options", "DENY")

			if !isDevelopment {
				h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
			}
			h.Del("Server")

			next.ServeHTTP(w, r)
		})
	}
}
