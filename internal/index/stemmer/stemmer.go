// Package stemmer reduces tokens to their linguistic root using the
// Snowball family of stemming algorithms. Stemming is a best-effort
// optimisation: an unsupported language or a word the algorithm rejects
// falls back to the word unchanged, never to an error.
package stemmer

import (
	"log/slog"

	"github.com/kljensen/snowball"
)

// Stemmer stems words for a single language selected at construction.
type Stemmer struct {
	language  string
	supported bool
}

// New creates a Stemmer for the given language. Languages without a
// Snowball algorithm degrade to the identity function.
func New(language string) *Stemmer {
	_, err := snowball.Stem("probe", language, false)
	if err != nil {
		slog.Default().With("component", "stemmer").Warn(
			"no stemming algorithm for language, stemming disabled",
			"language", language,
		)
	}
	return &Stemmer{
		language:  language,
		supported: err == nil,
	}
}

// Language returns the configured language.
func (s *Stemmer) Language() string {
	return s.language
}

// Stem returns the linguistic root of word, or word itself when stemming
// is unavailable or fails.
func (s *Stemmer) Stem(word string) string {
	if !s.supported || word == "" {
		return word
	}
	stemmed, err := snowball.Stem(word, s.language, false)
	if err != nil || stemmed == "" {
		return word
	}
	return stemmed
}
