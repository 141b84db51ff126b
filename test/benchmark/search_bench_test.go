package benchmark

import (
	"context"
	"fmt"
	"testing"

	"github.com/collectivehq/pagesearch/internal/index/indexer"
	"github.com/collectivehq/pagesearch/internal/index/searcher"
	"github.com/collectivehq/pagesearch/internal/index/stemmer"
	"github.com/collectivehq/pagesearch/internal/index/store"
)

// populate fills a memory store with n synthetic pages sharing a small
// vocabulary, so queries always have work to do.
func populate(b *testing.B, n int) *searcher.Searcher {
	b.Helper()
	mem := store.NewMemory()
	stem := stemmer.New("english")
	ix := indexer.New(mem, stem, indexer.PolicyAbortOnError, nil)

	words := []string{"garden", "apple", "pear", "compost", "watering", "harvest"}
	docs := make([]indexer.Document, 0, n)
	for i := 0; i < n; i++ {
		content := ""
		for j := 0; j <= i%len(words); j++ {
			content += words[j] + " " + words[(i+j)%len(words)] + " "
		}
		docs = append(docs, indexer.Document{
			ID:      int64(i + 1),
			Path:    fmt.Sprintf("page-%d.md", i+1),
			Content: content,
			Mtime:   1,
		})
	}
	if err := ix.IndexDocuments(context.Background(), "bench", docs); err != nil {
		b.Fatalf("indexing corpus: %v", err)
	}
	return searcher.New(mem, stem, true, 5, nil)
}

func BenchmarkSearch(b *testing.B) {
	for _, size := range []int{100, 1000, 10000} {
		b.Run(fmt.Sprintf("docs_%d", size), func(b *testing.B) {
			s := populate(b, size)
			ctx := context.Background()
			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				if _, err := s.Search(ctx, "bench", "apple harvest", 25); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

func BenchmarkSearchParallel(b *testing.B) {
	s := populate(b, 1000)
	ctx := context.Background()
	b.ReportAllocs()
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			if _, err := s.Search(ctx, "bench", "garden compost", 25); err != nil {
				b.Error(err)
				return
			}
		}
	})
}
