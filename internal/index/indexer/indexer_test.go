package indexer

import (
	"context"
	"errors"
	"testing"

	"github.com/collectivehq/pagesearch/internal/index/stemmer"
	"github.com/collectivehq/pagesearch/internal/index/store"
	pkgerrors "github.com/collectivehq/pagesearch/pkg/errors"
)

func newTestIndexer(policy Policy) (*Indexer, *store.MemoryStore) {
	mem := store.NewMemory()
	return New(mem, stemmer.New("english"), policy, nil), mem
}

func TestParsePolicy(t *testing.T) {
	if p, err := ParsePolicy("abort"); err != nil || p != PolicyAbortOnError {
		t.Errorf("ParsePolicy(abort) = %v, %v", p, err)
	}
	if p, err := ParsePolicy("skip"); err != nil || p != PolicySkipAndContinue {
		t.Errorf("ParsePolicy(skip) = %v, %v", p, err)
	}
	if _, err := ParsePolicy("retry"); err == nil {
		t.Error("ParsePolicy(retry) accepted an unknown policy")
	}
}

func TestIndexDocuments(t *testing.T) {
	ctx := context.Background()
	ix, mem := newTestIndexer(PolicyAbortOnError)

	docs := []Document{{
		ID:      1,
		Path:    "Fruit.md",
		Content: "apple apple apple banana",
		Mtime:   100,
	}}
	if err := ix.IndexDocuments(ctx, "garden", docs); err != nil {
		t.Fatalf("IndexDocuments: %v", err)
	}

	term, _ := mem.FindTerm(ctx, "garden", "appl")
	if term == nil {
		t.Fatal("stemmed term appl not indexed")
	}
	if term.NumHits != 3 || term.NumFiles != 1 {
		t.Errorf("appl: NumHits=%d NumFiles=%d, want 3 and 1", term.NumHits, term.NumFiles)
	}

	scores, _ := mem.FindDocumentsByTerms(ctx, "garden", []int64{term.ID}, 10)
	if len(scores) != 1 || scores[0].DocumentID != 1 || scores[0].Hits != 3 {
		t.Errorf("scores = %v, want doc 1 with 3 hits", scores)
	}

	file, _ := mem.File(ctx, "garden", 1)
	if file == nil || file.Mtime != 100 || file.Path != "Fruit.md" {
		t.Errorf("file row = %+v", file)
	}
}

// Re-indexing a page with an unchanged mtime must not double-count terms.
func TestIndexDocumentsSkipsUnchanged(t *testing.T) {
	ctx := context.Background()
	ix, mem := newTestIndexer(PolicyAbortOnError)

	doc := Document{ID: 1, Path: "a.md", Content: "apple apple", Mtime: 100}
	for i := 0; i < 3; i++ {
		if err := ix.IndexDocuments(ctx, "garden", []Document{doc}); err != nil {
			t.Fatalf("IndexDocuments pass %d: %v", i, err)
		}
	}

	term, _ := mem.FindTerm(ctx, "garden", "appl")
	if term == nil || term.NumHits != 2 || term.NumFiles != 1 {
		t.Errorf("term = %+v, want NumHits=2 NumFiles=1", term)
	}
}

// A newer mtime retracts the old postings before inserting the new ones,
// and terms no longer present are garbage-collected.
func TestIndexDocumentsRetractsOnUpdate(t *testing.T) {
	ctx := context.Background()
	ix, mem := newTestIndexer(PolicyAbortOnError)

	v1 := Document{ID: 1, Path: "a.md", Content: "apple apple unique123", Mtime: 100}
	if err := ix.IndexDocuments(ctx, "garden", []Document{v1}); err != nil {
		t.Fatalf("IndexDocuments v1: %v", err)
	}

	v2 := Document{ID: 1, Path: "a.md", Content: "banana apple", Mtime: 200}
	if err := ix.IndexDocuments(ctx, "garden", []Document{v2}); err != nil {
		t.Fatalf("IndexDocuments v2: %v", err)
	}

	if term, _ := mem.FindTerm(ctx, "garden", "unique123"); term != nil {
		t.Errorf("vanished term survived re-index: %+v", term)
	}
	appl, _ := mem.FindTerm(ctx, "garden", "appl")
	if appl == nil || appl.NumHits != 1 || appl.NumFiles != 1 {
		t.Errorf("appl = %+v, want NumHits=1 NumFiles=1", appl)
	}
	if banana, _ := mem.FindTerm(ctx, "garden", "banana"); banana == nil {
		t.Error("new term banana not indexed")
	}
	file, _ := mem.File(ctx, "garden", 1)
	if file == nil || file.Mtime != 200 {
		t.Errorf("file row = %+v, want Mtime=200", file)
	}
}

func TestDeleteDocument(t *testing.T) {
	ctx := context.Background()
	ix, mem := newTestIndexer(PolicyAbortOnError)

	docs := []Document{
		{ID: 1, Path: "a.md", Content: "apple unique123", Mtime: 100},
		{ID: 2, Path: "b.md", Content: "apple", Mtime: 100},
	}
	if err := ix.IndexDocuments(ctx, "garden", docs); err != nil {
		t.Fatalf("IndexDocuments: %v", err)
	}

	if err := ix.DeleteDocument(ctx, "garden", 1); err != nil {
		t.Fatalf("DeleteDocument: %v", err)
	}

	if term, _ := mem.FindTerm(ctx, "garden", "unique123"); term != nil {
		t.Error("term unique to the deleted page not garbage-collected")
	}
	appl, _ := mem.FindTerm(ctx, "garden", "appl")
	if appl == nil || appl.NumHits != 1 || appl.NumFiles != 1 {
		t.Errorf("appl = %+v, want NumHits=1 NumFiles=1", appl)
	}
	if file, _ := mem.File(ctx, "garden", 1); file != nil {
		t.Error("file row survived delete")
	}
	if postings, _ := mem.PostingsByDocument(ctx, "garden", 1); len(postings) != 0 {
		t.Errorf("postings survived delete: %v", postings)
	}
}

func TestIndexDocumentsCollectiveIsolation(t *testing.T) {
	ctx := context.Background()
	ix, mem := newTestIndexer(PolicyAbortOnError)

	doc := Document{ID: 1, Path: "a.md", Content: "apple words here", Mtime: 100}
	if err := ix.IndexDocuments(ctx, "garden", []Document{doc}); err != nil {
		t.Fatalf("IndexDocuments garden: %v", err)
	}
	if err := ix.IndexDocuments(ctx, "orchard", []Document{doc}); err != nil {
		t.Fatalf("IndexDocuments orchard: %v", err)
	}

	if err := ix.DeleteCollective(ctx, "garden"); err != nil {
		t.Fatalf("DeleteCollective: %v", err)
	}
	if term, _ := mem.FindTerm(ctx, "garden", "appl"); term != nil {
		t.Error("garden terms survived purge")
	}
	if term, _ := mem.FindTerm(ctx, "orchard", "appl"); term == nil {
		t.Error("purging garden removed orchard terms")
	}
}

// failingStore makes UpsertTermStats fail for one specific term, both
// directly and inside transactions.
type failingStore struct {
	store.Store
	failTerm string
}

var errInjected = errors.New("injected failure")

func (f *failingStore) UpsertTermStats(ctx context.Context, collectiveID, term string, hitDelta, fileDelta int64) (int64, error) {
	if term == f.failTerm {
		return 0, errInjected
	}
	return f.Store.UpsertTermStats(ctx, collectiveID, term, hitDelta, fileDelta)
}

func (f *failingStore) InTx(ctx context.Context, fn func(tx store.Store) error) error {
	return f.Store.InTx(ctx, func(tx store.Store) error {
		return fn(&failingStore{Store: tx, failTerm: f.failTerm})
	})
}

func TestAbortPolicyRollsBackBatch(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	failing := &failingStore{Store: mem, failTerm: "poison"}
	ix := New(failing, stemmer.New("english"), PolicyAbortOnError, nil)

	docs := []Document{
		{ID: 1, Path: "good.md", Content: "healthy words", Mtime: 100},
		{ID: 2, Path: "bad.md", Content: "poison", Mtime: 100},
	}
	err := ix.IndexDocuments(ctx, "garden", docs)
	if !errors.Is(err, pkgerrors.ErrIndexing) {
		t.Fatalf("error = %v, want ErrIndexing", err)
	}
	if !errors.Is(err, errInjected) {
		t.Fatalf("error = %v, want wrapped injected failure", err)
	}

	if term, _ := mem.FindTerm(ctx, "garden", "healthi"); term != nil {
		t.Error("good page survived aborted batch")
	}
	if file, _ := mem.File(ctx, "garden", 1); file != nil {
		t.Error("file row survived aborted batch")
	}
}

func TestSkipPolicyKeepsGoodPages(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	failing := &failingStore{Store: mem, failTerm: "poison"}
	ix := New(failing, stemmer.New("english"), PolicySkipAndContinue, nil)

	docs := []Document{
		{ID: 1, Path: "good.md", Content: "healthy words", Mtime: 100},
		{ID: 2, Path: "bad.md", Content: "poison", Mtime: 100},
		{ID: 3, Path: "also-good.md", Content: "more words", Mtime: 100},
	}
	err := ix.IndexDocuments(ctx, "garden", docs)
	if !errors.Is(err, pkgerrors.ErrIndexing) {
		t.Fatalf("error = %v, want ErrIndexing", err)
	}

	if term, _ := mem.FindTerm(ctx, "garden", "healthi"); term == nil {
		t.Error("page before the failure was not indexed")
	}
	if term, _ := mem.FindTerm(ctx, "garden", "more"); term == nil {
		t.Error("page after the failure was not indexed")
	}
	if file, _ := mem.File(ctx, "garden", 2); file != nil {
		t.Error("failed page left a file row")
	}
}

func TestIndexDocumentsHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ix, mem := newTestIndexer(PolicyAbortOnError)
	docs := []Document{{ID: 1, Path: "a.md", Content: "apple", Mtime: 100}}

	err := ix.IndexDocuments(ctx, "garden", docs)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
	if term, _ := mem.FindTerm(context.Background(), "garden", "appl"); term != nil {
		t.Error("cancelled batch left index writes behind")
	}
}
