package web

import (
	"net/http"
	"strings"

	"github.com/wolfeidau/nosferatu/internal/i18n"
	"golang.org/x/text/language"
)

// LangParam is the query parameter used to select a language.
const LangParam = "lang"

// Languages matches requests against the languages in a translation store.
// The store's language set is read once, so it must be loaded first.
type Languages struct {
	translations *i18n.Store
	supported    []string
	matcher      language.Matcher
}

func NewLanguages(translations *i18n.Store) *Languages {
	supported := translations.Languages()

	tags := make([]language.Tag, 0, len(supported))
	for _, code := range supported {
		tags = append(tags, language.Make(code))
	}

	return &Languages{
		translations: translations,
		supported:    supported,
		matcher:      language.NewMatcher(tags),
	}
}

// Resolve picks the language for a request from the lang query parameter,
// then Accept-Language, then the store's current language. Only supported
// languages are returned.
func (l *Languages) Resolve(r *http.Request) string {
	if len(l.supported) == 0 {
		return l.translations.Language()
	}

	if value := strings.TrimSpace(r.URL.Query().Get(LangParam)); value != "" {
		if tag, err := language.Parse(value); err == nil {
			if code, ok := l.match(tag); ok {
				return code
			}
		}
	}

	if accept := strings.TrimSpace(r.Header.Get("Accept-Language")); accept != "" {
		if preferred, _, err := language.ParseAcceptLanguage(accept); err == nil && len(preferred) > 0 {
			if code, ok := l.match(preferred...); ok {
				return code
			}
		}
	}

	return l.translations.Language()
}

func (l *Languages) match(preferred ...language.Tag) (string, bool) {
	_, index, confidence := l.matcher.Match(preferred...)
	if confidence == language.No {
		return "", false
	}
	return l.supported[index], true
}
