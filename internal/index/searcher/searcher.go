// Package searcher answers ranked full-text queries against the inverted
// index. A query runs through the same tokenize-and-stem pipeline as
// indexing; asymmetry between the two would silently destroy recall.
package searcher

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/collectivehq/pagesearch/internal/index/stemmer"
	"github.com/collectivehq/pagesearch/internal/index/store"
	"github.com/collectivehq/pagesearch/internal/index/tokenizer"
	"github.com/collectivehq/pagesearch/pkg/metrics"
)

// Searcher resolves query terms and ranks matching pages by summed hit
// count.
type Searcher struct {
	store          store.Store
	stemmer        *stemmer.Stemmer
	fuzzy          bool
	fuzzyTermLimit int
	metrics        *metrics.Metrics
	logger         *slog.Logger
}

// New creates a Searcher. When fuzzy is enabled, query tokens without an
// exact term match fall back to a prefix lookup capped at fuzzyTermLimit
// terms. metrics may be nil.
func New(st store.Store, stem *stemmer.Stemmer, fuzzy bool, fuzzyTermLimit int, m *metrics.Metrics) *Searcher {
	if fuzzyTermLimit <= 0 {
		fuzzyTermLimit = 5
	}
	return &Searcher{
		store:          st,
		stemmer:        stem,
		fuzzy:          fuzzy,
		fuzzyTermLimit: fuzzyTermLimit,
		metrics:        m,
		logger:         slog.Default().With("component", "searcher"),
	}
}

// Search returns up to maxResults pages of the collective ranked by the
// summed hit counts of all resolved query terms, descending, ties broken
// by ascending page id. An empty query, an unknown collective, or a query
// whose tokens resolve to nothing all return an empty result, never an
// error.
func (s *Searcher) Search(ctx context.Context, collectiveID, phrase string, maxResults int) ([]store.DocumentScore, error) {
	termIDs, err := s.resolveTerms(ctx, collectiveID, phrase)
	if err != nil {
		s.countQuery("error")
		return nil, err
	}
	if len(termIDs) == 0 {
		s.countQuery("zero_result")
		return []store.DocumentScore{}, nil
	}

	scores, err := s.store.FindDocumentsByTerms(ctx, collectiveID, termIDs, maxResults)
	if err != nil {
		s.countQuery("error")
		return nil, fmt.Errorf("ranking pages for query %q: %w", phrase, err)
	}
	if scores == nil {
		scores = []store.DocumentScore{}
	}

	if len(scores) == 0 {
		s.countQuery("zero_result")
	} else {
		s.countQuery("hit")
	}
	if s.metrics != nil {
		s.metrics.SearchResultsCount.Observe(float64(len(scores)))
	}
	s.logger.Debug("query executed",
		"collective", collectiveID,
		"query", phrase,
		"terms", len(termIDs),
		"results", len(scores),
	)
	return scores, nil
}

// resolveTerms normalizes the query phrase and maps each token to term
// rows: exact match first, then the capped prefix fallback when fuzzy
// matching is enabled.
func (s *Searcher) resolveTerms(ctx context.Context, collectiveID, phrase string) ([]int64, error) {
	seen := make(map[int64]struct{})
	var termIDs []int64
	add := func(id int64) {
		if _, dup := seen[id]; !dup {
			seen[id] = struct{}{}
			termIDs = append(termIDs, id)
		}
	}

	tokens := tokenizer.Tokenize(phrase)
	for _, token := range tokens {
		term := s.stemmer.Stem(token)
		exact, err := s.store.FindTerm(ctx, collectiveID, term)
		if err != nil {
			return nil, fmt.Errorf("resolving term %q: %w", term, err)
		}
		if exact != nil {
			add(exact.ID)
			continue
		}
		if !s.fuzzy {
			continue
		}
		close, err := s.store.FindTermsByPrefix(ctx, collectiveID, term, s.fuzzyTermLimit)
		if err != nil {
			return nil, fmt.Errorf("prefix-resolving term %q: %w", term, err)
		}
		for _, t := range close {
			add(t.ID)
		}
	}
	return termIDs, nil
}

func (s *Searcher) countQuery(resultType string) {
	if s.metrics != nil {
		s.metrics.SearchQueriesTotal.WithLabelValues(resultType).Inc()
	}
}
