// Package service wires the index, searcher, link extractor, document
// source, and cache into the two operations the outside world calls:
// react to a changed page and answer a search query.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/collectivehq/pagesearch/internal/index/indexer"
	"github.com/collectivehq/pagesearch/internal/index/searcher"
	"github.com/collectivehq/pagesearch/internal/index/store"
	"github.com/collectivehq/pagesearch/internal/links"
	"github.com/collectivehq/pagesearch/internal/search/cache"
	"github.com/collectivehq/pagesearch/internal/source"
	pkgerrors "github.com/collectivehq/pagesearch/pkg/errors"
	"github.com/collectivehq/pagesearch/pkg/kafka"
	"github.com/collectivehq/pagesearch/pkg/metrics"
	"github.com/collectivehq/pagesearch/pkg/resilience"
)

// PageChangedEvent is consumed from the page-changed topic. The document
// source is re-read to pick up the page's current state; Deleted short
// circuits that and retracts the page.
type PageChangedEvent struct {
	CollectiveKey string `json:"collective_key"`
	DocumentID    int64  `json:"document_id"`
	Deleted       bool   `json:"deleted"`
}

// PageLinksEvent is published to the page-links topic after a page has
// been reindexed, carrying its resolved outgoing link set for the
// backlink store.
type PageLinksEvent struct {
	CollectiveKey string  `json:"collective_key"`
	SourceID      int64   `json:"source_id"`
	TargetIDs     []int64 `json:"target_ids"`
}

// Engine is the façade over the search core.
type Engine struct {
	store         store.Store
	indexer       *indexer.Indexer
	searcher      *searcher.Searcher
	source        source.Source
	extractor     *links.Extractor
	cache         *cache.QueryCache
	linksProducer *kafka.Producer
	metrics       *metrics.Metrics
	logger        *slog.Logger
}

// New creates an Engine. cache, linksProducer, and metrics may be nil.
func New(
	st store.Store,
	ix *indexer.Indexer,
	se *searcher.Searcher,
	src source.Source,
	ex *links.Extractor,
	qc *cache.QueryCache,
	linksProducer *kafka.Producer,
	m *metrics.Metrics,
) *Engine {
	return &Engine{
		store:         st,
		indexer:       ix,
		searcher:      se,
		source:        src,
		extractor:     ex,
		cache:         qc,
		linksProducer: linksProducer,
		metrics:       m,
		logger:        slog.Default().With("component", "engine"),
	}
}

// Ready verifies the index store is reachable. A failure means search is
// unavailable, which callers must surface distinctly from "no matches".
func (e *Engine) Ready(ctx context.Context) error {
	if err := e.store.Ping(ctx); err != nil {
		return pkgerrors.Newf(pkgerrors.ErrSearchUnavailable, 503,
			"index store unreachable, check the PostgreSQL connection: %v", err)
	}
	return nil
}

// Search answers a ranked query for one collective, consulting the cache
// when configured. The boolean reports whether the result was cached.
func (e *Engine) Search(ctx context.Context, collectiveKey, phrase string, limit int) ([]store.DocumentScore, bool, error) {
	if err := e.Ready(ctx); err != nil {
		return nil, false, err
	}
	start := time.Now()
	compute := func() ([]store.DocumentScore, error) {
		return e.searcher.Search(ctx, collectiveKey, phrase, limit)
	}

	var (
		results  []store.DocumentScore
		cacheHit bool
		err      error
	)
	if e.cache != nil {
		results, cacheHit, err = e.cache.GetOrCompute(ctx, collectiveKey, phrase, limit, compute)
	} else {
		results, err = compute()
	}
	if err != nil {
		return nil, false, err
	}

	if e.metrics != nil {
		status := "miss"
		if cacheHit {
			status = "hit"
		}
		e.metrics.SearchLatency.WithLabelValues(status).Observe(time.Since(start).Seconds())
		if cacheHit {
			e.metrics.CacheHitsTotal.Inc()
		} else {
			e.metrics.CacheMissesTotal.Inc()
		}
	}
	return results, cacheHit, nil
}

// OnDocumentChanged is the engine's reactive entry point: the document
// source collaborator calls it (directly or via the page-changed topic)
// after a successful page write or delete.
func (e *Engine) OnDocumentChanged(ctx context.Context, collective source.Collective, documentID int64) error {
	doc, err := e.source.Document(ctx, collective.Key, documentID)
	if err != nil {
		return fmt.Errorf("loading page %d of %s: %w", documentID, collective.Key, err)
	}
	if doc == nil {
		if err := e.indexer.DeleteDocument(ctx, collective.Key, documentID); err != nil {
			return fmt.Errorf("retracting page %d of %s: %w", documentID, collective.Key, err)
		}
		e.invalidate(ctx, collective.Key)
		e.publishLinks(ctx, collective.Key, documentID, nil)
		return nil
	}

	if err := e.indexer.IndexDocuments(ctx, collective.Key, []indexer.Document{*doc}); err != nil {
		return err
	}
	e.invalidate(ctx, collective.Key)

	targets, err := e.extractor.LinkedDocumentIDs(doc.Content, links.Collective{ID: collective.ID, Name: collective.Name})
	if err != nil {
		// Link extraction failures are scoped to the page; the index
		// update above already succeeded.
		e.logger.Warn("skipping link graph update",
			"collective", collective.Key,
			"page_id", documentID,
			"error", err,
		)
		return nil
	}
	e.publishLinks(ctx, collective.Key, documentID, targets)
	return nil
}

// ReindexAll sweeps every collective, indexing changed pages. A failing
// collective is retried with backoff and then logged and skipped, so one
// broken tenant cannot stall the rest of the sweep.
func (e *Engine) ReindexAll(ctx context.Context) error {
	start := time.Now()
	collectives, err := e.source.Collectives(ctx)
	if err != nil {
		return fmt.Errorf("enumerating collectives: %w", err)
	}

	var errs []error
	for _, c := range collectives {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		c := c
		err := resilience.Retry(ctx, "reindex-"+c.Key, resilience.RetryConfig{}, func() error {
			return e.reindexCollective(ctx, c)
		})
		if err != nil {
			e.logger.Error("collective reindex failed, continuing sweep",
				"collective", c.Key,
				"error", err,
			)
			errs = append(errs, err)
		}
	}

	if e.metrics != nil {
		e.metrics.SweepDuration.Observe(time.Since(start).Seconds())
	}
	e.logger.Info("reindex sweep finished",
		"collectives", len(collectives),
		"failures", len(errs),
		"duration", time.Since(start).Round(time.Millisecond),
	)
	return errors.Join(errs...)
}

func (e *Engine) reindexCollective(ctx context.Context, c source.Collective) error {
	docs, err := e.source.Documents(ctx, c.Key)
	if err != nil {
		return fmt.Errorf("enumerating pages of %s: %w", c.Key, err)
	}
	if len(docs) == 0 {
		return nil
	}
	if err := e.indexer.IndexDocuments(ctx, c.Key, docs); err != nil {
		return err
	}
	e.invalidate(ctx, c.Key)
	return nil
}

func (e *Engine) invalidate(ctx context.Context, collectiveKey string) {
	if e.cache == nil {
		return
	}
	if err := e.cache.InvalidateCollective(ctx, collectiveKey); err != nil {
		e.logger.Error("cache invalidation failed", "collective", collectiveKey, "error", err)
	}
}

func (e *Engine) publishLinks(ctx context.Context, collectiveKey string, sourceID int64, targetIDs []int64) {
	if e.linksProducer == nil {
		return
	}
	event := PageLinksEvent{
		CollectiveKey: collectiveKey,
		SourceID:      sourceID,
		TargetIDs:     targetIDs,
	}
	err := e.linksProducer.Publish(ctx, kafka.Event{
		Key:   fmt.Sprintf("%s/%d", collectiveKey, sourceID),
		Value: event,
	})
	if err != nil {
		e.logger.Error("publishing page links failed",
			"collective", collectiveKey,
			"page_id", sourceID,
			"error", err,
		)
	}
}

// HandlePageChanged returns a Kafka MessageHandler that feeds
// page-changed events into the engine.
func HandlePageChanged(e *Engine) kafka.MessageHandler {
	logger := slog.Default().With("component", "page-changed-consumer")
	return func(ctx context.Context, key []byte, value []byte) error {
		event, err := kafka.DecodeJSON[PageChangedEvent](value)
		if err != nil {
			logger.Error("failed to decode page-changed event",
				"error", err,
				"key", string(key),
			)
			return nil
		}
		collective, err := e.collectiveByKey(ctx, event.CollectiveKey)
		if err != nil {
			return err
		}
		if collective == nil {
			logger.Warn("event for unknown collective, purging its index",
				"collective", event.CollectiveKey,
			)
			return e.indexer.DeleteCollective(ctx, event.CollectiveKey)
		}
		return e.OnDocumentChanged(ctx, *collective, event.DocumentID)
	}
}

func (e *Engine) collectiveByKey(ctx context.Context, key string) (*source.Collective, error) {
	collectives, err := e.source.Collectives(ctx)
	if err != nil {
		return nil, fmt.Errorf("enumerating collectives: %w", err)
	}
	for i := range collectives {
		if collectives[i].Key == key {
			return &collectives[i], nil
		}
	}
	return nil, nil
}
