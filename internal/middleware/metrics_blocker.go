package middleware

import (
	"net/http"
	"strings"
)

// MetricsBlocker intercepts the client's own usage-metrics beacon so it
// gets a well-formed empty acknowledgement instead of hitting the real
// vendor metrics host through a loopback base URL it can't actually reach.
func MetricsBlocker(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !isMetricsRequest(r) {
			next.ServeHTTP(w, r)
			return
		}

		w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		w.Header().Set("Via", "1.1 google")
		w.Header().Set("Cf-Cache-Status", "DYNAMIC")
		w.Header().Set("X-Robots-Tag", "noindex")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"accepted_count":0,"rejected_count":0}`))
	})
}

func isMetricsRequest(r *http.Request) bool {
	if !strings.Contains(r.Host, "anthropic.com") {
		return false
	}

	return strings.HasPrefix(r.URL.Path, "/api/claude_code/metrics") ||
		strings.HasPrefix(r.URL.Path, "/claude_code/metrics")
}
