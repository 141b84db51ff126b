package tokenizer

import (
	"reflect"
	"strings"
	"testing"
)

func TestTokenize(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{
			name: "lowercases and splits on whitespace",
			text: "Quick Brown FOX",
			want: []string{"quick", "brown", "fox"},
		},
		{
			name: "collapses punctuation runs",
			text: "hello,,, world!!! --- again",
			want: []string{"hello", "world", "again"},
		},
		{
			name: "drops single-rune tokens",
			text: "a I x at it",
			want: []string{"at", "it"},
		},
		{
			name: "drops overlong tokens",
			text: strings.Repeat("a", 51) + " " + strings.Repeat("b", 50) + " ok",
			want: []string{strings.Repeat("b", 50), "ok"},
		},
		{
			name: "keeps at sign inside tokens",
			text: "mail user@example.com today",
			want: []string{"mail", "user@example", "com", "today"},
		},
		{
			name: "keeps digits",
			text: "version 42 of chapter 7",
			want: []string{"version", "42", "of", "chapter"},
		},
		{
			name: "handles non-ascii letters",
			text: "Café Déjà vu",
			want: []string{"café", "déjà", "vu"},
		},
		{
			name: "empty input",
			text: "",
			want: []string{},
		},
		{
			name: "punctuation only",
			text: "!?.,;:-",
			want: []string{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Tokenize(tt.text)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Tokenize(%q) = %v, want %v", tt.text, got, tt.want)
			}
		})
	}
}

// Tokenizing already-tokenized output must not change it. Index and query
// sides share this function, so instability here would break matching.
func TestTokenizeStable(t *testing.T) {
	inputs := []string{
		"The quick brown fox, jumps over. The lazy dog!",
		"user@example.com wrote: re-index EVERYTHING",
		"café 42 @@@ déjà",
	}
	for _, input := range inputs {
		first := Tokenize(input)
		second := Tokenize(strings.Join(first, " "))
		if !reflect.DeepEqual(first, second) {
			t.Errorf("Tokenize not stable for %q: first %v, second %v", input, first, second)
		}
	}
}

func TestTokenizeClauses(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{
			name: "bigrams of long words",
			text: "quick brown fox jumps",
			want: []string{"quick brown", "brown jumps"},
		},
		{
			name: "short words fall back to first-space split",
			text: "the fox ran",
			want: []string{"the", "fox ran"},
		},
		{
			name: "single word returns itself",
			text: "word",
			want: []string{"word"},
		},
		{
			name: "two long words give one bigram",
			text: "search engine",
			want: []string{"search engine"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := TokenizeClauses(tt.text)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("TokenizeClauses(%q) = %v, want %v", tt.text, got, tt.want)
			}
		})
	}
}
