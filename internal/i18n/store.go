package i18n

import (
	"context"
	"maps"
	"slices"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/nosferatu/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	// ErrTranslationMissing is rendered in place of text when the store is
	// unavailable or the tag is unknown.
	ErrTranslationMissing = "translation_missing"

	// ErrLanguageMissing is rendered when no current language is set.
	ErrLanguageMissing = "translation_language_missing"
)

// TaggedContent maps short tags to translated display text for one language.
type TaggedContent map[string]string

// Get returns the text for tag.
func (c TaggedContent) Get(tag string) (string, bool) {
	text, ok := c[tag]
	return text, ok
}

// Builder accumulates tagged content.
type Builder struct {
	content TaggedContent
}

// NewBuilder returns an empty builder.
func NewBuilder() *Builder {
	return &Builder{content: TaggedContent{}}
}

// Add sets tag to text, replacing any earlier value for tag.
func (b *Builder) Add(tag, text string) *Builder {
	b.content[tag] = text
	return b
}

// Build returns a copy of the accumulated content. The builder stays usable.
func (b *Builder) Build() TaggedContent {
	return maps.Clone(b.content)
}

// Store holds tagged content for every registered language.
//
// Content is only ever added: CreateLanguage never clears an existing
// language and Merge keeps tags it does not mention. All methods are safe
// for concurrent use and hold the lock only for the duration of the call.
type Store struct {
	mu        sync.RWMutex
	languages map[string]TaggedContent
	current   string
	logger    zerolog.Logger
}

// NewStore returns an empty store that reports missing translations to logger.
func NewStore(logger zerolog.Logger) *Store {
	return &Store{
		languages: make(map[string]TaggedContent),
		logger:    logger,
	}
}

// CreateLanguage registers code. It is a no-op if code already exists.
func (s *Store) CreateLanguage(code string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.languages[code]; ok {
		return
	}
	s.languages[code] = TaggedContent{}
}

// Merge adds content to an existing language. Tags already present are
// overwritten, other tags are preserved. Merging into a language that was
// never created is logged and ignored.
func (s *Store) Merge(code string, content TaggedContent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.languages[code]
	if !ok {
		s.logger.Error().Str("language", code).Int("tags", len(content)).
			Msg("merge into unknown language ignored")
		return
	}
	maps.Copy(existing, content)
}

// Lookup returns the text registered for tag in language code.
func (s *Store) Lookup(code, tag string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	content, ok := s.languages[code]
	if !ok {
		return "", false
	}
	return content.Get(tag)
}

// Bundle returns a copy of the content registered for code.
func (s *Store) Bundle(code string) (TaggedContent, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	content, ok := s.languages[code]
	if !ok {
		return nil, false
	}
	return maps.Clone(content), true
}

// Languages returns the registered language codes in sorted order.
func (s *Store) Languages() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return slices.Sorted(maps.Keys(s.languages))
}

// SetLanguage sets the language used by Translate.
func (s *Store) SetLanguage(code string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.current = code
}

// Language returns the language used by Translate, or "" if none is set.
func (s *Store) Language() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.current
}

// Translate resolves tag in the current language. Failures degrade to a
// visible sentinel string and an error log entry, never a panic. A nil
// store reports through the global logger.
func (s *Store) Translate(tag string) string {
	if s == nil {
		return missing(log.Logger, ErrTranslationMissing, "", tag)
	}

	s.mu.RLock()
	code := s.current
	s.mu.RUnlock()

	if code == "" {
		return missing(s.logger, ErrLanguageMissing, code, tag)
	}
	return s.TranslateIn(code, tag)
}

// TranslateIn resolves tag in language code with the same failure policy as
// Translate.
func (s *Store) TranslateIn(code, tag string) string {
	if s == nil {
		return missing(log.Logger, ErrTranslationMissing, code, tag)
	}
	if code == "" {
		return missing(s.logger, ErrLanguageMissing, code, tag)
	}

	text, ok := s.Lookup(code, tag)
	if !ok {
		return missing(s.logger, ErrTranslationMissing, code, tag)
	}
	return text
}

func missing(logger zerolog.Logger, marker, code, tag string) string {
	logger.Error().Str("language", code).Str("tag", tag).Msg(marker)
	telemetry.GetMetrics().TranslationsMissingTotal.Add(context.Background(), 1,
		metric.WithAttributes(attribute.String("reason", marker)))
	return marker
}
