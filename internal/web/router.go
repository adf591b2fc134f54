package web

import (
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	httpmw "github.com/wolfeidau/nosferatu/internal/http"
	"github.com/wolfeidau/nosferatu/internal/logger"
)

// NewRouter registers the app routes. Paths match exactly; everything else
// gets the not found page.
func NewRouter(pages *Renderer, langs *Languages) http.Handler {
	h := &handlers{pages: pages, langs: langs, now: time.Now}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", health)
	mux.HandleFunc("GET /{$}", h.page(PageIndex, http.StatusOK))
	mux.HandleFunc("GET /about", h.page(PageAbout, http.StatusOK))
	mux.HandleFunc("GET /panic", fault)
	mux.HandleFunc("POST /tasks", h.createTask)
	mux.HandleFunc("/", h.page(PageNotFound, http.StatusNotFound))

	return mux
}

// NewPipeline wraps the router in the request middleware, outermost first:
// tracing, panic recovery, CORS, cross origin checks, state injection
// and the body limit.
func NewPipeline(log zerolog.Logger, state *httpmw.State, pages *Renderer) (http.Handler, error) {
	panicPage, err := pages.Page(state.Translations, PagePanic, state.Translations.Language(), state.Config.Version)
	if err != nil {
		return nil, fmt.Errorf("failed to render panic page: %w", err)
	}

	crossOrigin, err := httpmw.CrossOrigin(state.Config.CORSOrigins)
	if err != nil {
		return nil, err
	}

	return httpmw.Chain(NewRouter(pages, NewLanguages(state.Translations)),
		logger.Requests(log),
		httpmw.Recover(panicPage),
		httpmw.CORS(state.Config.CORSOrigins),
		crossOrigin,
		httpmw.WithState(state),
		httpmw.LimitBody(httpmw.DefaultBodyLimit),
	), nil
}
