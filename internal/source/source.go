// Package source enumerates collectives and their pages for the indexer.
// The filesystem implementation walks a root directory holding one
// subdirectory per collective, filtered to markdown and plain-text files.
package source

import (
	"context"
	"fmt"
	"hash/fnv"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/collectivehq/pagesearch/internal/index/indexer"
	pkgerrors "github.com/collectivehq/pagesearch/pkg/errors"
)

// Collective identifies a tenant: the stable string key the index is
// scoped by, plus the numeric id and display name link resolution needs.
type Collective struct {
	Key  string
	ID   int64
	Name string
}

// Source supplies pages per collective.
type Source interface {
	// Collectives enumerates all known collectives.
	Collectives(ctx context.Context) ([]Collective, error)

	// Documents returns every page of the collective.
	Documents(ctx context.Context, key string) ([]indexer.Document, error)

	// Document returns a single page by id, or nil when the page no
	// longer exists (deleted).
	Document(ctx context.Context, key string, documentID int64) (*indexer.Document, error)
}

// indexableExtensions are the file types the indexer consumes.
var indexableExtensions = map[string]struct{}{
	".md":  {},
	".txt": {},
}

// FSSource reads collectives from a directory tree.
type FSSource struct {
	root   string
	logger *slog.Logger
}

// NewFS creates a filesystem Source rooted at dir.
func NewFS(dir string) *FSSource {
	return &FSSource{
		root:   dir,
		logger: slog.Default().With("component", "fs-source"),
	}
}

// Collectives lists the root's subdirectories. The directory name doubles
// as key and display name; the numeric id is derived from the key.
func (s *FSSource) Collectives(ctx context.Context) ([]Collective, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading source root %s: %w", s.root, err)
	}
	var collectives []Collective
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		name := entry.Name()
		collectives = append(collectives, Collective{
			Key:  name,
			ID:   stableID(name),
			Name: name,
		})
	}
	sort.Slice(collectives, func(i, j int) bool {
		return collectives[i].Key < collectives[j].Key
	})
	return collectives, nil
}

// Documents walks the collective's directory recursively, collecting
// every markdown or plain-text file. Unwalkable subtrees are skipped
// rather than fatal; an unreadable file is an error the indexer's policy
// decides about.
func (s *FSSource) Documents(ctx context.Context, key string) ([]indexer.Document, error) {
	dir := filepath.Join(s.root, key)
	var docs []indexer.Document
	var readErr error

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			s.logger.Warn("skipping unwalkable entry", "path", path, "error", err)
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() {
			return nil
		}
		if _, ok := indexableExtensions[strings.ToLower(filepath.Ext(path))]; !ok {
			return nil
		}
		doc, err := s.readDocument(dir, path, d)
		if err != nil {
			readErr = err
			return fs.SkipAll
		}
		docs = append(docs, doc)
		return nil
	})
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("walking collective %s: %w", key, err)
	}
	if readErr != nil {
		return nil, readErr
	}
	sort.Slice(docs, func(i, j int) bool {
		return docs[i].ID < docs[j].ID
	})
	return docs, nil
}

// Document locates a page by its derived id.
func (s *FSSource) Document(ctx context.Context, key string, documentID int64) (*indexer.Document, error) {
	docs, err := s.Documents(ctx, key)
	if err != nil {
		return nil, err
	}
	for i := range docs {
		if docs[i].ID == documentID {
			return &docs[i], nil
		}
	}
	return nil, nil
}

func (s *FSSource) readDocument(dir, path string, d fs.DirEntry) (indexer.Document, error) {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		rel = path
	}
	info, err := d.Info()
	if err != nil {
		return indexer.Document{}, fmt.Errorf("%w: stat %s: %w", pkgerrors.ErrPageUnreadable, rel, err)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return indexer.Document{}, fmt.Errorf("%w: read %s: %w", pkgerrors.ErrPageUnreadable, rel, err)
	}
	return indexer.Document{
		ID:      stableID(rel),
		Path:    rel,
		Content: string(content),
		Mtime:   info.ModTime().Unix(),
	}, nil
}

// stableID derives a positive 63-bit id from a name via FNV-1a. It is
// stable across content updates, which is all the index asks of it.
func stableID(name string) int64 {
	h := fnv.New64a()
	h.Write([]byte(name))
	return int64(h.Sum64() & (1<<63 - 1))
}
