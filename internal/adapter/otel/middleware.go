package otel

import (
	"net/http"
	"strings"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// HTTPMiddleware returns a chi-compatible middleware that creates a span per
// request. Health probes are not traced.
func HTTPMiddleware(serviceName string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return otelhttp.NewHandler(next, serviceName,
			otelhttp.WithFilter(traced),
			otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
				return spanName(r)
			}),
		)
	}
}

func traced(r *http.Request) bool {
	return r.URL.Path != "/health" && !strings.HasPrefix(r.URL.Path, "/health/")
}

// spanName keeps span names low-cardinality: API routes are fixed paths and
// are used as-is; anything else is named after its first path segment.
func spanName(r *http.Request) string {
	p := r.URL.Path
	if strings.HasPrefix(p, "/api/") {
		return r.Method + " " + p
	}
	seg := strings.SplitN(strings.TrimPrefix(p, "/"), "/", 2)[0]
	if seg == "" {
		return r.Method + " /"
	}
	return r.Method + " /" + seg + "/*"
}
