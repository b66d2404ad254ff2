package middleware

import (
	"net/http"
	"strings"
)

// TelemetryBlocker intercepts the Protocol-A client's own telemetry calls
// (Statsig-style feature-flag/event endpoints) so they don't leak out to
// the real vendor host once the client has been pointed at this gateway's
// loopback base URL, and answers with a shape the client accepts as success.
func TelemetryBlocker(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !isTelemetryRequest(r) {
			next.ServeHTTP(w, r)
			return
		}

		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Permissions-Policy", "interest-cohort=()")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Alt-Svc", `h3=":443"; ma=86400`)
		w.Header().Set("Via", "1.1 google")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte(`{"success":true}`))
	})
}

func isTelemetryRequest(r *http.Request) bool {
	if strings.Contains(r.Host, "statsig") {
		return true
	}

	for _, prefix := range []string{
		"/v1/initialize",
		"/v1/log_event",
		"/v1/rgstr",
		"/statsig",
		"/telemetry",
		"/analytics",
	} {
		if strings.HasPrefix(r.URL.Path, prefix) {
			return true
		}
	}

	return false
}
