package middleware

import (
	"net/http"

	"github.com/gorilla/mux"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/orderdesk/orderdesk-backend/internal/pkg/tracing"
)

const TraceIDHeader = "X-Trace-ID"

// Tracing wraps the handler with OpenTelemetry HTTP instrumentation and
// exposes the trace ID to callers via the X-Trace-ID response header.
func Tracing(serviceName string) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return otelhttp.NewHandler(
			http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				// The span context is only live inside the otelhttp handler,
				// so the header has to be set here rather than in the outer wrapper.
				if traceID := tracing.TraceIDFromContext(r.Context()); traceID != "" {
					w.Header().Set(TraceIDHeader, traceID)
				}
				next.ServeHTTP(w, r)
			}),
			serviceName,
		)
	}
}
