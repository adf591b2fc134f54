package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"runtime/debug"

	"filippo.io/csrf"
	"github.com/rs/cors"
	"github.com/rs/zerolog/hlog"
	"github.com/wolfeidau/nosferatu/internal/config"
	"github.com/wolfeidau/nosferatu/internal/dispatch"
	"github.com/wolfeidau/nosferatu/internal/i18n"
	"github.com/wolfeidau/nosferatu/internal/logger"
	"github.com/wolfeidau/nosferatu/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// DefaultBodyLimit is the largest request body accepted by the app server.
const DefaultBodyLimit = 20 << 20 // 20MiB

type contextKey string

const stateContextKey contextKey = "state"

// Middleware wraps a handler.
type Middleware func(http.Handler) http.Handler

// Chain wraps h so the first middleware is the outermost.
func Chain(h http.Handler, middleware ...Middleware) http.Handler {
	for i := len(middleware) - 1; i >= 0; i-- {
		h = middleware[i](h)
	}
	return h
}

// State is the shared, read only state handed to every handler.
type State struct {
	Config       *config.App
	Tasks        *dispatch.Sender
	Translations *i18n.Store
}

// WithState stores state in the request context.
func WithState(state *State) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := context.WithValue(r.Context(), stateContextKey, state)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// StateFromContext returns the state added by WithState.
func StateFromContext(ctx context.Context) (*State, bool) {
	state, ok := ctx.Value(stateContextKey).(*State)
	return state, ok && state != nil
}

// Recover isolates panics to the request that raised them. The handler
// writes into a buffer; if it panics the buffer is thrown away and page is
// sent with status 200 instead. http.ErrAbortHandler is passed through.
func Recover(page []byte) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			buf := newBufferedResponse()

			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}

				telemetry.GetMetrics().PanicsRecoveredTotal.Add(r.Context(), 1)
				hlog.FromRequest(r).Error().
					Str("panic", fmt.Sprint(rec)).
					Str("path", r.URL.Path).
					Str("stack", string(debug.Stack())).
					Msg("recovered from panic")

				w.Header().Set("Content-Type", "text/html; charset=utf-8")
				w.WriteHeader(http.StatusOK)
				_, _ = w.Write(page)
			}()

			next.ServeHTTP(buf, r)
			buf.flushTo(w)
		})
	}
}

// CORS applies a static origin allow list. Requests from other origins still
// reach the handler, they just don't get the permissive response headers.
func CORS(origins []string) Middleware {
	c := cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{
			http.MethodGet,
			http.MethodHead,
			http.MethodPost,
			http.MethodPut,
			http.MethodPatch,
			http.MethodDelete,
			http.MethodOptions,
		},
		AllowedHeaders: []string{"*"},
		ExposedHeaders: []string{logger.RequestIDHeader},
	})
	return c.Handler
}

// CrossOrigin flags cross origin, state changing browser requests that don't
// come from one of origins. Flagged requests are logged and counted but still
// reach next; CORS response headers are what keep browsers out.
func CrossOrigin(origins []string) (Middleware, error) {
	protection := csrf.New()
	for _, origin := range origins {
		if err := protection.AddTrustedOrigin(origin); err != nil {
			return nil, fmt.Errorf("invalid trusted origin %q: %w", origin, err)
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := protection.Check(r); err != nil {
				telemetry.GetMetrics().CrossOriginTotal.Add(r.Context(), 1,
					metric.WithAttributes(attribute.String("method", r.Method)))
				hlog.FromRequest(r).Warn().Err(err).
					Str("origin", r.Header.Get("Origin")).
					Str("method", r.Method).
					Str("path", r.URL.Path).
					Msg("cross origin request")
			}
			next.ServeHTTP(w, r)
		})
	}, nil
}

// LimitBody caps request bodies at limit bytes. A declared length over the
// limit is rejected up front, otherwise reads past the limit fail.
func LimitBody(limit int64) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > limit {
				WriteJSON(w, http.StatusRequestEntityTooLarge, errorResponse{Error: http.StatusText(http.StatusRequestEntityTooLarge)})
				return
			}
			r.Body = http.MaxBytesReader(w, r.Body, limit)
			next.ServeHTTP(w, r)
		})
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

// WriteJSON writes v as the JSON response body.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		status = http.StatusInternalServerError
		body = []byte(`{"error":"Internal Server Error"}`)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

// WriteError logs err and responds with a generic 500. Details never reach
// the client.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	hlog.FromRequest(r).Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
	WriteJSON(w, http.StatusInternalServerError, errorResponse{Error: http.StatusText(http.StatusInternalServerError)})
}

type bufferedResponse struct {
	header http.Header
	status int
	body   bytes.Buffer
}

func newBufferedResponse() *bufferedResponse {
	return &bufferedResponse{header: make(http.Header)}
}

func (b *bufferedResponse) Header() http.Header {
	return b.header
}

func (b *bufferedResponse) WriteHeader(status int) {
	if b.status == 0 {
		b.status = status
	}
}

func (b *bufferedResponse) Write(p []byte) (int, error) {
	if b.status == 0 {
		b.status = http.StatusOK
	}
	return b.body.Write(p)
}

func (b *bufferedResponse) flushTo(w http.ResponseWriter) {
	for k, v := range b.header {
		w.Header()[k] = v
	}
	if b.status == 0 {
		b.status = http.StatusOK
	}
	w.WriteHeader(b.status)
	_, _ = b.body.WriteTo(w)
}
