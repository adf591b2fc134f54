package web

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"net/http"

	httpmw "github.com/wolfeidau/nosferatu/internal/http"
	"github.com/wolfeidau/nosferatu/internal/i18n"
)

//go:embed templates/*.html
var templateFS embed.FS

// Page names.
const (
	PageIndex    = "index"
	PageAbout    = "about"
	PagePanic    = "panic"
	PageNotFound = "error_404"
)

var pageNames = []string{PageIndex, PageAbout, PagePanic, PageNotFound}

type pageData struct {
	Lang    string
	Version string
}

// Renderer renders the embedded pages. Each page is the shared layout plus
// its own content block; text comes from the translation store through the
// "t" template function.
type Renderer struct {
	pages map[string]*template.Template
}

func NewRenderer() (*Renderer, error) {
	pages := make(map[string]*template.Template, len(pageNames))

	for _, name := range pageNames {
		tmpl, err := template.New(name).
			Funcs(template.FuncMap{"t": func(string) string { return "" }}).
			ParseFS(templateFS, "templates/layout.html", "templates/nav.html", "templates/"+name+".html")
		if err != nil {
			return nil, fmt.Errorf("failed to parse page %s: %w", name, err)
		}
		pages[name] = tmpl
	}

	return &Renderer{pages: pages}, nil
}

// Page renders page in lang.
func (rd *Renderer) Page(translations *i18n.Store, page, lang, version string) ([]byte, error) {
	tmpl, ok := rd.pages[page]
	if !ok {
		return nil, fmt.Errorf("unknown page %q", page)
	}

	// the parsed templates are never executed so they can always be cloned
	clone, err := tmpl.Clone()
	if err != nil {
		return nil, fmt.Errorf("failed to clone page %s: %w", page, err)
	}
	clone.Funcs(template.FuncMap{
		"t": func(tag string) string {
			return translations.TranslateIn(lang, tag)
		},
	})

	var buf bytes.Buffer
	if err := clone.ExecuteTemplate(&buf, "layout", pageData{Lang: lang, Version: version}); err != nil {
		return nil, fmt.Errorf("failed to render page %s: %w", page, err)
	}

	return buf.Bytes(), nil
}

// Write renders page in lang and writes it with status.
func (rd *Renderer) Write(w http.ResponseWriter, r *http.Request, state *httpmw.State, status int, page, lang string) {

	body, err := rd.Page(state.Translations, page, lang, state.Config.Version)
	if err != nil {
		httpmw.WriteError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Content-Language", lang)
	w.WriteHeader(status)
	_, _ = w.Write(body)
}
