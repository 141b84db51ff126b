package store

import (
	"context"
	"errors"
	"testing"
)

func TestUpsertTermStats(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	id1, err := m.UpsertTermStats(ctx, "coll-a", "appl", 3, 1)
	if err != nil {
		t.Fatalf("UpsertTermStats: %v", err)
	}
	id2, err := m.UpsertTermStats(ctx, "coll-a", "appl", 2, 1)
	if err != nil {
		t.Fatalf("UpsertTermStats: %v", err)
	}
	if id1 != id2 {
		t.Errorf("second upsert returned id %d, want %d", id2, id1)
	}

	term, err := m.FindTerm(ctx, "coll-a", "appl")
	if err != nil {
		t.Fatalf("FindTerm: %v", err)
	}
	if term == nil {
		t.Fatal("FindTerm returned nil for existing term")
	}
	if term.NumHits != 5 || term.NumFiles != 2 {
		t.Errorf("got NumHits=%d NumFiles=%d, want 5 and 2", term.NumHits, term.NumFiles)
	}
}

func TestCollectiveIsolation(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	if _, err := m.UpsertTermStats(ctx, "coll-a", "secret", 1, 1); err != nil {
		t.Fatalf("UpsertTermStats: %v", err)
	}

	term, err := m.FindTerm(ctx, "coll-b", "secret")
	if err != nil {
		t.Fatalf("FindTerm: %v", err)
	}
	if term != nil {
		t.Errorf("term of coll-a visible in coll-b: %+v", term)
	}

	scores, err := m.FindDocumentsByTerms(ctx, "coll-b", []int64{1}, 10)
	if err != nil {
		t.Fatalf("FindDocumentsByTerms: %v", err)
	}
	if len(scores) != 0 {
		t.Errorf("postings of coll-a visible in coll-b: %v", scores)
	}
}

func TestDecrementTermAndGC(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	id, _ := m.UpsertTermStats(ctx, "coll-a", "appl", 3, 1)
	keepID, _ := m.UpsertTermStats(ctx, "coll-a", "banana", 5, 2)

	deleted, err := m.DecrementTermAndGC(ctx, "coll-a", id, 3)
	if err != nil {
		t.Fatalf("DecrementTermAndGC: %v", err)
	}
	if deleted != 1 {
		t.Errorf("deleted = %d, want 1", deleted)
	}
	if term, _ := m.FindTerm(ctx, "coll-a", "appl"); term != nil {
		t.Errorf("term not garbage-collected at zero hits: %+v", term)
	}

	deleted, err = m.DecrementTermAndGC(ctx, "coll-a", keepID, 2)
	if err != nil {
		t.Fatalf("DecrementTermAndGC: %v", err)
	}
	if deleted != 0 {
		t.Errorf("deleted = %d, want 0", deleted)
	}
	term, _ := m.FindTerm(ctx, "coll-a", "banana")
	if term == nil || term.NumHits != 3 || term.NumFiles != 1 {
		t.Errorf("got %+v, want NumHits=3 NumFiles=1", term)
	}
}

func TestFindDocumentsByTermsRanking(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	t1, _ := m.UpsertTermStats(ctx, "coll-a", "appl", 8, 3)
	t2, _ := m.UpsertTermStats(ctx, "coll-a", "pear", 4, 2)

	// doc 10: 5 hits, doc 20: 2+2 hits, doc 30: 2 hits.
	mustInsert(t, m, "coll-a", t1, 10, 5)
	mustInsert(t, m, "coll-a", t1, 20, 2)
	mustInsert(t, m, "coll-a", t2, 20, 2)
	mustInsert(t, m, "coll-a", t2, 30, 2)

	scores, err := m.FindDocumentsByTerms(ctx, "coll-a", []int64{t1, t2}, 10)
	if err != nil {
		t.Fatalf("FindDocumentsByTerms: %v", err)
	}
	want := []DocumentScore{
		{DocumentID: 10, Hits: 5},
		{DocumentID: 20, Hits: 4},
		{DocumentID: 30, Hits: 2},
	}
	assertScores(t, scores, want)

	scores, err = m.FindDocumentsByTerms(ctx, "coll-a", []int64{t1, t2}, 2)
	if err != nil {
		t.Fatalf("FindDocumentsByTerms: %v", err)
	}
	assertScores(t, scores, want[:2])
}

func TestFindDocumentsByTermsTieBreak(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	id, _ := m.UpsertTermStats(ctx, "coll-a", "tie", 3, 3)
	mustInsert(t, m, "coll-a", id, 30, 1)
	mustInsert(t, m, "coll-a", id, 10, 1)
	mustInsert(t, m, "coll-a", id, 20, 1)

	scores, err := m.FindDocumentsByTerms(ctx, "coll-a", []int64{id}, 10)
	if err != nil {
		t.Fatalf("FindDocumentsByTerms: %v", err)
	}
	want := []DocumentScore{
		{DocumentID: 10, Hits: 1},
		{DocumentID: 20, Hits: 1},
		{DocumentID: 30, Hits: 1},
	}
	assertScores(t, scores, want)
}

func TestFindTermsByPrefix(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	m.UpsertTermStats(ctx, "coll-a", "search", 10, 2)
	m.UpsertTermStats(ctx, "coll-a", "searcher", 3, 1)
	m.UpsertTermStats(ctx, "coll-a", "seaside", 7, 1)
	m.UpsertTermStats(ctx, "coll-a", "other", 20, 4)

	terms, err := m.FindTermsByPrefix(ctx, "coll-a", "sea", 10)
	if err != nil {
		t.Fatalf("FindTermsByPrefix: %v", err)
	}
	got := make([]string, len(terms))
	for i, term := range terms {
		got[i] = term.Term
	}
	want := []string{"search", "seaside", "searcher"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}

	terms, err = m.FindTermsByPrefix(ctx, "coll-a", "sea", 2)
	if err != nil {
		t.Fatalf("FindTermsByPrefix: %v", err)
	}
	if len(terms) != 2 || terms[0].Term != "search" || terms[1].Term != "seaside" {
		t.Errorf("limited prefix search returned %v", terms)
	}
}

func TestFileLifecycle(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	if f, _ := m.File(ctx, "coll-a", 1); f != nil {
		t.Fatalf("File on empty store = %+v, want nil", f)
	}

	file := IndexedFile{CollectiveID: "coll-a", DocumentID: 1, Path: "Readme.md", Mtime: 100}
	if err := m.UpsertFile(ctx, file); err != nil {
		t.Fatalf("UpsertFile: %v", err)
	}
	got, _ := m.File(ctx, "coll-a", 1)
	if got == nil || *got != file {
		t.Errorf("File = %+v, want %+v", got, file)
	}

	file.Mtime = 200
	m.UpsertFile(ctx, file)
	got, _ = m.File(ctx, "coll-a", 1)
	if got.Mtime != 200 {
		t.Errorf("Mtime = %d after update, want 200", got.Mtime)
	}

	m.DeleteFile(ctx, "coll-a", 1)
	if got, _ = m.File(ctx, "coll-a", 1); got != nil {
		t.Errorf("File after delete = %+v, want nil", got)
	}
}

func TestDeleteCollective(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	id, _ := m.UpsertTermStats(ctx, "coll-a", "appl", 1, 1)
	mustInsert(t, m, "coll-a", id, 1, 1)
	m.UpsertFile(ctx, IndexedFile{CollectiveID: "coll-a", DocumentID: 1, Path: "a.md", Mtime: 1})
	m.UpsertTermStats(ctx, "coll-b", "appl", 1, 1)

	if err := m.DeleteCollective(ctx, "coll-a"); err != nil {
		t.Fatalf("DeleteCollective: %v", err)
	}
	if term, _ := m.FindTerm(ctx, "coll-a", "appl"); term != nil {
		t.Error("term survived collective purge")
	}
	if f, _ := m.File(ctx, "coll-a", 1); f != nil {
		t.Error("file survived collective purge")
	}
	if term, _ := m.FindTerm(ctx, "coll-b", "appl"); term == nil {
		t.Error("purge of coll-a removed coll-b data")
	}
}

func TestInTxRollback(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	m.UpsertTermStats(ctx, "coll-a", "before", 1, 1)

	wantErr := errors.New("boom")
	err := m.InTx(ctx, func(tx Store) error {
		if _, err := tx.UpsertTermStats(ctx, "coll-a", "during", 1, 1); err != nil {
			return err
		}
		if term, _ := tx.FindTerm(ctx, "coll-a", "during"); term == nil {
			t.Error("write not visible inside transaction")
		}
		return wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("InTx error = %v, want %v", err, wantErr)
	}

	if term, _ := m.FindTerm(ctx, "coll-a", "during"); term != nil {
		t.Error("rolled-back write survived")
	}
	if term, _ := m.FindTerm(ctx, "coll-a", "before"); term == nil {
		t.Error("rollback destroyed pre-transaction state")
	}
}

func TestInTxCommit(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	err := m.InTx(ctx, func(tx Store) error {
		_, err := tx.UpsertTermStats(ctx, "coll-a", "kept", 2, 1)
		return err
	})
	if err != nil {
		t.Fatalf("InTx: %v", err)
	}
	term, _ := m.FindTerm(ctx, "coll-a", "kept")
	if term == nil || term.NumHits != 2 {
		t.Errorf("committed term = %+v, want NumHits=2", term)
	}
}

func mustInsert(t *testing.T, s Store, collectiveID string, termID, documentID, hits int64) {
	t.Helper()
	if err := s.InsertPosting(context.Background(), collectiveID, termID, documentID, hits); err != nil {
		t.Fatalf("InsertPosting: %v", err)
	}
}

func assertScores(t *testing.T, got, want []DocumentScore) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}
