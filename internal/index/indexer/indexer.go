// Package indexer maintains the inverted index. It tokenizes and stems
// page content, upserts term and posting rows, and tracks per-page mtimes
// so unchanged pages are skipped on re-index.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/collectivehq/pagesearch/internal/index/stemmer"
	"github.com/collectivehq/pagesearch/internal/index/store"
	"github.com/collectivehq/pagesearch/internal/index/tokenizer"
	pkgerrors "github.com/collectivehq/pagesearch/pkg/errors"
	"github.com/collectivehq/pagesearch/pkg/metrics"
)

// Document is a page handed to the indexer by a document source.
type Document struct {
	ID      int64
	Path    string
	Content string
	Mtime   int64
}

// Policy selects how a batch reacts to a failing page.
type Policy int

const (
	// PolicyAbortOnError runs the whole batch in one transaction; the
	// first failure rolls back every page of the batch.
	PolicyAbortOnError Policy = iota
	// PolicySkipAndContinue runs one transaction per page; failures are
	// collected and returned joined after the sweep completes.
	PolicySkipAndContinue
)

// ParsePolicy maps the config strings "abort" and "skip" to a Policy.
func ParsePolicy(s string) (Policy, error) {
	switch s {
	case "abort":
		return PolicyAbortOnError, nil
	case "skip":
		return PolicySkipAndContinue, nil
	default:
		return 0, fmt.Errorf("unknown failure policy %q", s)
	}
}

// Indexer writes pages into the inverted index store.
type Indexer struct {
	store   store.Store
	stemmer *stemmer.Stemmer
	policy  Policy
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// New creates an Indexer. metrics may be nil.
func New(st store.Store, stem *stemmer.Stemmer, policy Policy, m *metrics.Metrics) *Indexer {
	return &Indexer{
		store:   st,
		stemmer: stem,
		policy:  policy,
		metrics: m,
		logger:  slog.Default().With("component", "indexer"),
	}
}

// IndexDocuments indexes a batch of pages for one collective. Pages whose
// stored mtime is current are skipped. Cancellation is honored between
// pages, never within one, so a page's postings are always complete.
func (ix *Indexer) IndexDocuments(ctx context.Context, collectiveID string, docs []Document) error {
	switch ix.policy {
	case PolicySkipAndContinue:
		return ix.indexPerDocument(ctx, collectiveID, docs)
	default:
		return ix.indexSingleBatch(ctx, collectiveID, docs)
	}
}

func (ix *Indexer) indexSingleBatch(ctx context.Context, collectiveID string, docs []Document) error {
	err := ix.store.InTx(ctx, func(tx store.Store) error {
		for _, doc := range docs {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := ix.indexOne(ctx, tx, collectiveID, doc); err != nil {
				return fmt.Errorf("indexing page %d (%s): %w", doc.ID, doc.Path, err)
			}
		}
		return nil
	})
	if err != nil {
		ix.countBatch("aborted")
		return fmt.Errorf("%w: batch for collective %s: %w", pkgerrors.ErrIndexing, collectiveID, err)
	}
	ix.countBatch("ok")
	return nil
}

func (ix *Indexer) indexPerDocument(ctx context.Context, collectiveID string, docs []Document) error {
	var errs []error
	for _, doc := range docs {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		doc := doc
		err := ix.store.InTx(ctx, func(tx store.Store) error {
			return ix.indexOne(ctx, tx, collectiveID, doc)
		})
		if err != nil {
			ix.logger.Warn("page skipped",
				"collective", collectiveID,
				"page_id", doc.ID,
				"path", doc.Path,
				"error", err,
			)
			errs = append(errs, fmt.Errorf("indexing page %d (%s): %w", doc.ID, doc.Path, err))
		}
	}
	if len(errs) > 0 {
		ix.countBatch("partial")
		return fmt.Errorf("%w: collective %s: %w", pkgerrors.ErrIndexing, collectiveID, errors.Join(errs...))
	}
	ix.countBatch("ok")
	return nil
}

// indexOne indexes a single page inside an open transaction: skip when the
// mtime is unchanged, retract stale postings, insert the fresh ones, and
// record the file row.
func (ix *Indexer) indexOne(ctx context.Context, tx store.Store, collectiveID string, doc Document) error {
	existing, err := tx.File(ctx, collectiveID, doc.ID)
	if err != nil {
		return err
	}
	if existing != nil && existing.Mtime >= doc.Mtime {
		if ix.metrics != nil {
			ix.metrics.PagesSkippedTotal.Inc()
		}
		ix.logger.Debug("page unchanged, skipping",
			"collective", collectiveID,
			"page_id", doc.ID,
		)
		return nil
	}
	if existing != nil {
		if err := ix.retract(ctx, tx, collectiveID, doc.ID); err != nil {
			return err
		}
	}

	counts := ix.termCounts(doc.Content)
	for _, tc := range counts {
		termID, err := tx.UpsertTermStats(ctx, collectiveID, tc.term, tc.hits, 1)
		if err != nil {
			return err
		}
		if err := tx.InsertPosting(ctx, collectiveID, termID, doc.ID, tc.hits); err != nil {
			return err
		}
	}
	if err := tx.UpsertFile(ctx, store.IndexedFile{
		CollectiveID: collectiveID,
		DocumentID:   doc.ID,
		Path:         doc.Path,
		Mtime:        doc.Mtime,
	}); err != nil {
		return err
	}

	if ix.metrics != nil {
		ix.metrics.PagesIndexedTotal.Inc()
	}
	ix.logger.Debug("page indexed",
		"collective", collectiveID,
		"page_id", doc.ID,
		"terms", len(counts),
	)
	return nil
}

// retract removes a page's postings and decrements the affected term
// stats, garbage-collecting terms that drop to zero hits.
func (ix *Indexer) retract(ctx context.Context, tx store.Store, collectiveID string, documentID int64) error {
	postings, err := tx.PostingsByDocument(ctx, collectiveID, documentID)
	if err != nil {
		return err
	}
	if err := tx.DeletePostingsByDocument(ctx, collectiveID, documentID); err != nil {
		return err
	}
	for _, p := range postings {
		gcd, err := tx.DecrementTermAndGC(ctx, collectiveID, p.TermID, p.Hits)
		if err != nil {
			return err
		}
		if ix.metrics != nil && gcd > 0 {
			ix.metrics.TermsGCTotal.Add(float64(gcd))
		}
	}
	return nil
}

// DeleteDocument removes a page from the index entirely.
func (ix *Indexer) DeleteDocument(ctx context.Context, collectiveID string, documentID int64) error {
	return ix.store.InTx(ctx, func(tx store.Store) error {
		if err := ix.retract(ctx, tx, collectiveID, documentID); err != nil {
			return err
		}
		return tx.DeleteFile(ctx, collectiveID, documentID)
	})
}

// DeleteCollective purges a collective's whole index.
func (ix *Indexer) DeleteCollective(ctx context.Context, collectiveID string) error {
	return ix.store.DeleteCollective(ctx, collectiveID)
}

type termCount struct {
	term string
	hits int64
}

// termCounts tokenizes and stems content and returns per-term occurrence
// counts, sorted by term for deterministic write order.
func (ix *Indexer) termCounts(content string) []termCount {
	counts := make(map[string]int64)
	for _, token := range tokenizer.Tokenize(content) {
		counts[ix.stemmer.Stem(token)]++
	}
	result := make([]termCount, 0, len(counts))
	for term, hits := range counts {
		result = append(result, termCount{term: term, hits: hits})
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].term < result[j].term
	})
	return result
}

func (ix *Indexer) countBatch(status string) {
	if ix.metrics != nil {
		ix.metrics.IndexBatchesTotal.WithLabelValues(status).Inc()
	}
}
