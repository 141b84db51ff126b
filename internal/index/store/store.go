// Package store persists the tenant-scoped inverted index. Three tables
// back it: terms (one row per distinct term per collective, with aggregate
// hit and file counts), files (one row per indexed page, with its last
// indexed mtime), and postings (one row per term/page pair that co-occur).
package store

import "context"

// Term is a row of the terms table. NumHits counts total occurrences of
// the term across all pages of the collective; NumFiles counts the pages
// containing it. NumHits >= NumFiles >= 0 holds while the row exists.
type Term struct {
	ID           int64
	CollectiveID string
	Term         string
	NumHits      int64
	NumFiles     int64
}

// IndexedFile records a page known to the index together with the mtime it
// was last indexed at. A page whose current mtime is not newer than the
// stored one does not need re-indexing.
type IndexedFile struct {
	CollectiveID string
	DocumentID   int64
	Path         string
	Mtime        int64
}

// Posting is a row of the postings table: the term occurs Hits times in
// the page. Hits > 0 while the row exists.
type Posting struct {
	TermID     int64
	DocumentID int64
	Hits       int64
}

// DocumentScore is a ranked retrieval result: a page and its summed hit
// count over the query's terms.
type DocumentScore struct {
	DocumentID int64 `json:"document_id"`
	Hits       int64 `json:"hits"`
}

// Store is the inverted index storage contract. Every operation is scoped
// to a single collective; no cross-collective reads or writes exist.
//
// Counter mutations (UpsertTermStats, InsertPosting, DecrementTermAndGC)
// must be atomic single statements so concurrent indexing of two pages in
// the same collective cannot lose updates.
type Store interface {
	// UpsertTermStats increments the term's aggregate counters by the
	// given deltas, inserting the row with the deltas as initial values
	// when it does not exist. It returns the term row id.
	UpsertTermStats(ctx context.Context, collectiveID, term string, hitDelta, fileDelta int64) (int64, error)

	// InsertPosting records that the page contains the term hits times,
	// accumulating into an existing posting row if present.
	InsertPosting(ctx context.Context, collectiveID string, termID, documentID, hits int64) error

	// PostingsByDocument returns every posting of the given page, used to
	// retract the page's contribution before re-indexing.
	PostingsByDocument(ctx context.Context, collectiveID string, documentID int64) ([]Posting, error)

	// DeletePostingsByDocument removes all posting rows of the page.
	DeletePostingsByDocument(ctx context.Context, collectiveID string, documentID int64) error

	// DecrementTermAndGC subtracts hits from the term's NumHits and one
	// from its NumFiles, then deletes any term rows of the collective
	// whose NumHits dropped to zero or below. It returns the number of
	// garbage-collected term rows.
	DecrementTermAndGC(ctx context.Context, collectiveID string, termID, hits int64) (int64, error)

	// FindTerm returns the term row for an exact term string, or nil when
	// the collective does not contain the term.
	FindTerm(ctx context.Context, collectiveID, term string) (*Term, error)

	// FindTermsByPrefix returns up to limit terms textually prefixed by
	// prefix, ordered by NumHits descending.
	FindTermsByPrefix(ctx context.Context, collectiveID, prefix string, limit int) ([]Term, error)

	// FindDocumentsByTerms sums posting hits per page across the given
	// term set and returns up to limit pages ordered by total hits
	// descending, ties broken by ascending page id.
	FindDocumentsByTerms(ctx context.Context, collectiveID string, termIDs []int64, limit int) ([]DocumentScore, error)

	// File returns the indexed-file row for the page, or nil when the
	// page has never been indexed.
	File(ctx context.Context, collectiveID string, documentID int64) (*IndexedFile, error)

	// UpsertFile creates or updates the indexed-file row.
	UpsertFile(ctx context.Context, file IndexedFile) error

	// DeleteFile removes the indexed-file row.
	DeleteFile(ctx context.Context, collectiveID string, documentID int64) error

	// DeleteCollective purges the collective's entire index.
	DeleteCollective(ctx context.Context, collectiveID string) error

	// InTx runs fn against a transactional view of the store. When fn
	// returns an error the transaction is rolled back.
	InTx(ctx context.Context, fn func(tx Store) error) error

	// Ping verifies the storage dependency is reachable. A failure here
	// means search is unavailable, not that there are no matches.
	Ping(ctx context.Context) error
}
