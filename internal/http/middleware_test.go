package http

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/nosferatu/internal/config"
	"github.com/wolfeidau/nosferatu/internal/dispatch"
	"github.com/wolfeidau/nosferatu/internal/i18n"
)

var testOrigins = []string{"http://localhost:9001", "http://10.2.40.53:9001"}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
}

func TestChainOrder(t *testing.T) {
	var order []string
	mark := func(name string) Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	h := Chain(okHandler(), mark("outer"), mark("middle"), mark("inner"))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, []string{"outer", "middle", "inner"}, order)
}

func TestRecover(t *testing.T) {
	page := []byte("<h1>Something went wrong</h1>")

	t.Run("panic renders page with 200", func(t *testing.T) {
		h := Recover(page)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Partial", "yes")
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte("partial output"))
			panic("boom")
		}))

		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/panic", nil))

		require.Equal(t, http.StatusOK, w.Code)
		require.Equal(t, string(page), w.Body.String())
		require.Empty(t, w.Header().Get("X-Partial"))
		require.Equal(t, "text/html; charset=utf-8", w.Header().Get("Content-Type"))
	})

	t.Run("normal response passes through", func(t *testing.T) {
		h := Recover(page)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Custom", "value")
			w.WriteHeader(http.StatusAccepted)
			_, _ = w.Write([]byte("done"))
		}))

		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

		require.Equal(t, http.StatusAccepted, w.Code)
		require.Equal(t, "done", w.Body.String())
		require.Equal(t, "value", w.Header().Get("X-Custom"))
	})

	t.Run("empty response defaults to 200", func(t *testing.T) {
		h := Recover(page)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

		require.Equal(t, http.StatusOK, w.Code)
		require.Empty(t, w.Body.String())
	})

	t.Run("abort handler is re-raised", func(t *testing.T) {
		h := Recover(page)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			panic(http.ErrAbortHandler)
		}))

		require.PanicsWithValue(t, http.ErrAbortHandler, func() {
			h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
		})
	})

	t.Run("later requests are unaffected", func(t *testing.T) {
		mux := http.NewServeMux()
		mux.HandleFunc("/panic", func(w http.ResponseWriter, r *http.Request) { panic("boom") })
		mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
			WriteJSON(w, http.StatusOK, map[string]string{"status": "success"})
		})
		h := Recover(page)(mux)

		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/panic", nil))
		require.Equal(t, string(page), w.Body.String())

		w = httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
		require.Equal(t, http.StatusOK, w.Code)
		require.JSONEq(t, `{"status":"success"}`, w.Body.String())
	})
}

func TestCORS(t *testing.T) {
	tests := []struct {
		name        string
		origin      string
		allowOrigin string
	}{
		{
			name:        "allowed origin",
			origin:      "http://localhost:9001",
			allowOrigin: "http://localhost:9001",
		},
		{
			name:        "second allowed origin",
			origin:      "http://10.2.40.53:9001",
			allowOrigin: "http://10.2.40.53:9001",
		},
		{
			name:        "origin not in list",
			origin:      "http://evil.example",
			allowOrigin: "",
		},
		{
			name:        "no origin",
			origin:      "",
			allowOrigin: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reached := false
			h := CORS(testOrigins)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				reached = true
				w.WriteHeader(http.StatusOK)
			}))

			r := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.origin != "" {
				r.Header.Set("Origin", tt.origin)
			}
			w := httptest.NewRecorder()
			h.ServeHTTP(w, r)

			require.True(t, reached)
			require.Equal(t, http.StatusOK, w.Code)
			require.Equal(t, tt.allowOrigin, w.Header().Get("Access-Control-Allow-Origin"))
		})
	}
}

func TestCORSPreflight(t *testing.T) {
	h := CORS(testOrigins)(okHandler())

	r := httptest.NewRequest(http.MethodOptions, "/tasks", nil)
	r.Header.Set("Origin", "http://localhost:9001")
	r.Header.Set("Access-Control-Request-Method", http.MethodPost)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)

	require.Equal(t, "http://localhost:9001", w.Header().Get("Access-Control-Allow-Origin"))
	require.Contains(t, w.Header().Get("Access-Control-Allow-Methods"), http.MethodPost)
}

func TestCrossOrigin(t *testing.T) {
	protect, err := CrossOrigin(testOrigins)
	require.NoError(t, err)

	tests := []struct {
		name    string
		method  string
		origin  string
		site    string
		flagged bool
	}{
		{name: "non browser post", method: http.MethodPost},
		{name: "same origin post", method: http.MethodPost, site: "same-origin"},
		{name: "trusted origin post", method: http.MethodPost, origin: "http://localhost:9001", site: "cross-site"},
		{name: "untrusted origin post", method: http.MethodPost, origin: "http://evil.example", site: "cross-site", flagged: true},
		{name: "untrusted origin without fetch metadata", method: http.MethodPost, origin: "http://evil.example", flagged: true},
		{name: "untrusted origin delete", method: http.MethodDelete, origin: "http://evil.example", site: "cross-site", flagged: true},
		{name: "untrusted origin get", method: http.MethodGet, origin: "http://evil.example", site: "cross-site"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			reached := false
			h := hlog.NewHandler(zerolog.New(&buf))(protect(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				reached = true
				_, _ = w.Write([]byte("ok"))
			})))

			r := httptest.NewRequest(tt.method, "/tasks", nil)
			if tt.origin != "" {
				r.Header.Set("Origin", tt.origin)
			}
			if tt.site != "" {
				r.Header.Set("Sec-Fetch-Site", tt.site)
			}
			w := httptest.NewRecorder()
			h.ServeHTTP(w, r)

			require.True(t, reached)
			require.Equal(t, http.StatusOK, w.Code)
			require.Equal(t, "ok", w.Body.String())

			if tt.flagged {
				require.Contains(t, buf.String(), `"level":"warn"`)
				require.Contains(t, buf.String(), `"message":"cross origin request"`)
				require.Contains(t, buf.String(), tt.origin)
			} else {
				require.Empty(t, buf.String())
			}
		})
	}
}

func TestCrossOriginInvalidOrigin(t *testing.T) {
	_, err := CrossOrigin([]string{"not an origin"})
	require.Error(t, err)
}

func TestStateInjection(t *testing.T) {
	tasks, _ := dispatch.NewQueue(1)
	state := &State{
		Config:       &config.App{Version: "test", Language: "en"},
		Tasks:        tasks,
		Translations: i18n.NewStore(zerolog.Nop()),
	}

	var got *State
	h := WithState(state)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var ok bool
		got, ok = StateFromContext(r.Context())
		require.True(t, ok)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	require.Same(t, state, got)

	_, ok := StateFromContext(httptest.NewRequest(http.MethodGet, "/", nil).Context())
	require.False(t, ok)
}

func TestLimitBody(t *testing.T) {
	const limit = 16

	h := LimitBody(limit)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			var maxErr *http.MaxBytesError
			require.True(t, errors.As(err, &maxErr))
			w.WriteHeader(http.StatusRequestEntityTooLarge)
			return
		}
		_, _ = w.Write(body)
	}))

	t.Run("within limit", func(t *testing.T) {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/", strings.NewReader("small")))
		require.Equal(t, http.StatusOK, w.Code)
		require.Equal(t, "small", w.Body.String())
	})

	t.Run("declared length over limit", func(t *testing.T) {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(strings.Repeat("x", limit+1))))
		require.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
		require.JSONEq(t, `{"error":"Request Entity Too Large"}`, w.Body.String())
	})

	t.Run("undeclared length over limit", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(strings.Repeat("x", limit+1)))
		r.ContentLength = -1
		w := httptest.NewRecorder()
		h.ServeHTTP(w, r)
		require.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	})
}

func TestWriteError(t *testing.T) {
	w := httptest.NewRecorder()
	WriteError(w, httptest.NewRequest(http.MethodPost, "/tasks", nil), errors.New("secret database detail"))

	require.Equal(t, http.StatusInternalServerError, w.Code)
	require.Equal(t, "application/json", w.Header().Get("Content-Type"))
	require.Equal(t, `{"error":"Internal Server Error"}`, w.Body.String())
}
