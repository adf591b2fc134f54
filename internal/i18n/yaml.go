package i18n

import (
	_ "embed"
	"fmt"

	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

//go:embed baseline.yaml
var baseline []byte

// Baseline returns the translation file compiled into the binary.
func Baseline() []byte {
	return baseline
}

type bundleFile struct {
	Languages map[string]map[string]string `yaml:"languages"`
}

// LoadYAML creates and merges every language found in data into store.
// Language codes must be valid BCP 47 tags.
func LoadYAML(store *Store, data []byte) error {
	var file bundleFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("failed to parse translations: %w", err)
	}
	if len(file.Languages) == 0 {
		return fmt.Errorf("no languages defined in translations")
	}

	for code, tags := range file.Languages {
		if _, err := language.Parse(code); err != nil {
			return fmt.Errorf("invalid language %q: %w", code, err)
		}

		builder := NewBuilder()
		for tag, text := range tags {
			builder.Add(tag, text)
		}

		store.CreateLanguage(code)
		store.Merge(code, builder.Build())
	}

	return nil
}
