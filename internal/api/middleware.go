package api

import (
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"time"
)

// csrfMiddleware returns a middleware that validates Origin/Referer headers
// for state-changing requests (POST, PUT, DELETE) to prevent CSRF attacks.
// A web page on another origin must not be able to kill the user's games.
func csrfMiddleware(allowedHosts []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost && r.Method != http.MethodPut && r.Method != http.MethodDelete {
				next.ServeHTTP(w, r)
				return
			}

			// Check Origin header first
			if origin := r.Header.Get("Origin"); origin != "" {
				originURL, err := url.Parse(origin)
				if err != nil || !isAllowedHost(originURL.Host, allowedHosts) {
					writeError(w, http.StatusForbidden, "invalid origin", nil)
					return
				}
				next.ServeHTTP(w, r)
				return
			}

			// Fall back to Referer header
			if referer := r.Header.Get("Referer"); referer != "" {
				refererURL, err := url.Parse(referer)
				if err != nil || !isAllowedHost(refererURL.Host, allowedHosts) {
					writeError(w, http.StatusForbidden, "invalid referer", nil)
					return
				}
				next.ServeHTTP(w, r)
				return
			}

			// Browsers always send Sec-Fetch-Site; its absence means a
			// non-browser client such as the CLI or curl.
			if r.Header.Get("Sec-Fetch-Site") == "" {
				next.ServeHTTP(w, r)
				return
			}

			writeError(w, http.StatusForbidden, "missing origin/referer", nil)
		})
	}
}

// isAllowedHost checks if the host is in the allowed list.
// Loopback names are always allowed.
func isAllowedHost(host string, allowedHosts []string) bool {
	hostWithoutPort := stripPort(host)

	if hostWithoutPort == "localhost" || hostWithoutPort == "127.0.0.1" || hostWithoutPort == "::1" {
		return true
	}

	for _, allowed := range allowedHosts {
		if hostWithoutPort == stripPort(allowed) {
			return true
		}
	}
	return false
}

func stripPort(host string) string {
	if h, _, err := net.SplitHostPort(host); err == nil {
		return h
	}
	return host
}

// securityHeadersMiddleware adds security headers to all responses.
// The API serves JSON and event streams only, so nothing may be embedded,
// framed or executed.
func securityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "no-referrer")
		w.Header().Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		w.Header().Set("Cross-Origin-Opener-Policy", "same-origin")
		w.Header().Set("Cross-Origin-Resource-Policy", "same-origin")
		next.ServeHTTP(w, r)
	})
}

// statusRecorder captures the response status for access logging.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Flush keeps SSE working through the recorder.
func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// accessLogMiddleware logs every request at debug level.
func accessLogMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)
			logger.Debug("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", rec.status,
				"elapsed", time.Since(start),
			)
		})
	}
}
