package logger

import (
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
	"github.com/wolfeidau/nosferatu/internal/telemetry"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// RequestIDHeader carries the request id in both directions.
const RequestIDHeader = "X-Request-ID"

func Setup(dev bool) zerolog.Logger {
	var logger zerolog.Logger
	level := zerolog.InfoLevel
	if dev {
		level = zerolog.DebugLevel
	}

	logger = zerolog.New(os.Stderr).Level(level).With().Timestamp().Caller().Logger()

	if dev {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stderr, FormatTimestamp: func(i any) string {
			return time.Now().Format(time.RFC3339)
		}}).Level(level).With().Stack().Logger()
	}

	return logger
}

// Requests returns the tracing middleware. Each request gets a request id,
// a server span and a request scoped logger (see hlog.FromRequest), and
// one info entry is written once the response is complete.
func Requests(logger zerolog.Logger) func(http.Handler) http.Handler {
	access := hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
		metrics := telemetry.GetMetrics()
		attrs := metric.WithAttributes(
			attribute.String("method", r.Method),
			attribute.Int("status", status),
		)
		metrics.RequestsTotal.Add(r.Context(), 1, attrs)
		metrics.RequestDuration.Record(r.Context(), float64(duration.Milliseconds()), attrs)

		hlog.FromRequest(r).Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", status).
			Int("size", size).
			Dur("duration", duration).
			Str("remote_addr", r.RemoteAddr).
			Msg("http request")
	})

	return func(next http.Handler) http.Handler {
		inner := access(next)

		tagged := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := r.Header.Get(RequestIDHeader)
			if requestID == "" {
				requestID = uuid.NewString()
			}
			w.Header().Set(RequestIDHeader, requestID)

			span := trace.SpanFromContext(r.Context())
			span.SetAttributes(attribute.String("request.id", requestID))

			zerolog.Ctx(r.Context()).UpdateContext(func(c zerolog.Context) zerolog.Context {
				c = c.Str("request_id", requestID)
				if sc := span.SpanContext(); sc.HasTraceID() {
					c = c.Str("trace_id", sc.TraceID().String())
				}
				return c
			})

			inner.ServeHTTP(w, r)
		})

		traced := otelhttp.NewHandler(tagged, "http.server",
			otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
				return r.Method + " " + r.URL.Path
			}),
		)

		return hlog.NewHandler(logger)(traced)
	}
}
