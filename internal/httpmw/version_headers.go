package httpmw

import (
	"net/http"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// VersionInfo provides versioning information for headers
type VersionInfo interface {
	VersionMode() string
	PinnedToken() string
}

// VersionHeaders middleware adds X-Asset-Version-Mode and X-Asset-Pinned-Token
// headers to all responses when version information is available
func VersionHeaders(info VersionInfo) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if info != nil {
				m := info.VersionMode()
				tok := info.PinnedToken()
				if m != "" {
					w.Header().Set("X-Asset-Version-Mode", m)
				}
				if tok != "" {
					w.Header().Set("X-Asset-Pinned-Token", tok)
				}
				// Enrich the current trace span with version info
				if span := trace.SpanFromContext(r.Context()); span != nil && span.IsRecording() {
					if m != "" {
						span.SetAttributes(attribute.String("asset.version_mode", m))
					}
					if tok != "" {
						span.SetAttributes(attribute.String("asset.pinned_token", tok))
					}
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}
