// Package tokenizer provides text tokenisation for the page search engine.
// The word tokenizer lower-cases input, collapses punctuation runs, and
// filters tokens by length. The clause tokenizer builds adjacent-pair
// bigrams on top of it for phrase-level ranking signals.
package tokenizer

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	// MinTokenLength and MaxTokenLength bound the rune length of emitted
	// tokens. Anything outside the range is dropped.
	MinTokenLength = 2
	MaxTokenLength = 50

	// minClauseWordLength is the exclusive lower bound on words that
	// participate in bigram construction.
	minClauseWordLength = 3
)

// Tokenize breaks text into an order-preserving slice of normalised word
// tokens. Runs of characters that are neither letters, digits, nor '@' are
// collapsed to a single separator, which keeps email-like tokens intact
// while stripping punctuation.
func Tokenize(text string) []string {
	text = strings.ToLower(text)
	var b strings.Builder
	b.Grow(len(text))
	lastWasSep := false
	for _, r := range text {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '@' {
			b.WriteRune(r)
			lastWasSep = false
			continue
		}
		if !lastWasSep {
			b.WriteByte(' ')
			lastWasSep = true
		}
	}

	words := strings.FieldsFunc(b.String(), func(r rune) bool {
		return unicode.IsSpace(r) || r == ',' || r == '.'
	})
	tokens := make([]string, 0, len(words))
	for _, word := range words {
		if n := utf8.RuneCountInString(word); n < MinTokenLength || n > MaxTokenLength {
			continue
		}
		tokens = append(tokens, word)
	}
	return tokens
}

// TokenizeClauses runs the word tokenizer, discards words of length three or
// less, and emits the concatenation of each adjacent surviving pair. When no
// bigram can be produced, the original text is split into two parts at the
// first space as a fallback.
func TokenizeClauses(text string) []string {
	words := Tokenize(text)
	kept := make([]string, 0, len(words))
	for _, word := range words {
		if utf8.RuneCountInString(word) > minClauseWordLength {
			kept = append(kept, word)
		}
	}

	clauses := make([]string, 0, len(kept))
	for i := 1; i < len(kept); i++ {
		clauses = append(clauses, kept[i-1]+" "+kept[i])
	}
	if len(clauses) > 0 {
		return clauses
	}
	if before, after, found := strings.Cut(text, " "); found {
		return []string{before, after}
	}
	return []string{text}
}
