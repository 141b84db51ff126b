package benchmark

import (
	"fmt"
	"strings"
	"testing"

	"github.com/collectivehq/pagesearch/internal/index/stemmer"
	"github.com/collectivehq/pagesearch/internal/index/tokenizer"
)

var sampleTexts = map[string]string{
	"short": "The quick brown fox jumps over the lazy dog",
	"medium": `Collectives organise shared knowledge as markdown pages. Every page
        edit re-runs tokenisation and stemming so the inverted index stays
        current, and links between pages are resolved into a reference graph
        that powers backlinks. Queries are answered from per-term posting
        lists, ranked by summed hit counts.`,
	"long": strings.Repeat(`Full-text search over a page collection starts with
        normalisation: lower-casing, punctuation collapse, and length filtering
        produce a stable token stream. Snowball stemming folds inflected forms
        onto a shared root so queries match regardless of conjugation. The
        index keeps aggregate hit and file counts per term, which makes both
        ranking and prefix-based fuzzy matching cheap at query time. `, 20),
}

func BenchmarkTokenize(b *testing.B) {
	for name, text := range sampleTexts {
		b.Run(name, func(b *testing.B) {
			b.ReportAllocs()
			b.SetBytes(int64(len(text)))
			for i := 0; i < b.N; i++ {
				tokens := tokenizer.Tokenize(text)
				_ = tokens
			}
		})
	}
}

func BenchmarkTokenizeParallel(b *testing.B) {
	text := sampleTexts["medium"]
	b.ReportAllocs()
	b.SetBytes(int64(len(text)))
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			tokens := tokenizer.Tokenize(text)
			_ = tokens
		}
	})
}

func BenchmarkTokenizeClauses(b *testing.B) {
	text := sampleTexts["medium"]
	b.ReportAllocs()
	b.SetBytes(int64(len(text)))
	for i := 0; i < b.N; i++ {
		clauses := tokenizer.TokenizeClauses(text)
		_ = clauses
	}
}

func BenchmarkStem(b *testing.B) {
	stem := stemmer.New("english")
	words := []string{
		"running", "collectives", "searching", "indexing",
		"tokenization", "normalization", "references",
		"markdown", "knowledge", "organising",
	}
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		for _, w := range words {
			_ = stem.Stem(w)
		}
	}
}

func BenchmarkTokenizeVaryingSize(b *testing.B) {
	sizes := []int{10, 100, 500, 1000, 5000}
	baseWord := "collective page search index backlink "
	for _, size := range sizes {
		text := strings.Repeat(baseWord, size/len(baseWord)+1)[:size]
		b.Run(fmt.Sprintf("bytes_%d", size), func(b *testing.B) {
			b.ReportAllocs()
			b.SetBytes(int64(len(text)))
			for i := 0; i < b.N; i++ {
				tokens := tokenizer.Tokenize(text)
				_ = tokens
			}
		})
	}
}
