package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/collectivehq/pagesearch/pkg/postgres"
)

// Schema creates the three index tables. Idempotent.
const Schema = `
CREATE TABLE IF NOT EXISTS search_terms (
    id            BIGSERIAL PRIMARY KEY,
    collective_id TEXT   NOT NULL,
    term          TEXT   NOT NULL,
    num_hits      BIGINT NOT NULL DEFAULT 0,
    num_files     BIGINT NOT NULL DEFAULT 0,
    UNIQUE (collective_id, term)
);

CREATE TABLE IF NOT EXISTS search_files (
    collective_id TEXT   NOT NULL,
    document_id   BIGINT NOT NULL,
    path          TEXT   NOT NULL,
    mtime         BIGINT NOT NULL,
    PRIMARY KEY (collective_id, document_id)
);

CREATE TABLE IF NOT EXISTS search_postings (
    term_id       BIGINT NOT NULL REFERENCES search_terms (id) ON DELETE CASCADE,
    collective_id TEXT   NOT NULL,
    document_id   BIGINT NOT NULL,
    hits          BIGINT NOT NULL,
    PRIMARY KEY (term_id, document_id)
);

CREATE INDEX IF NOT EXISTS idx_search_postings_doc
    ON search_postings (collective_id, document_id);
`

// querier is the subset of database/sql shared by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// PostgresStore implements Store on top of PostgreSQL.
type PostgresStore struct {
	client *postgres.Client
	q      querier
}

// NewPostgres creates a PostgresStore and ensures the schema exists.
func NewPostgres(ctx context.Context, client *postgres.Client) (*PostgresStore, error) {
	if _, err := client.DB.ExecContext(ctx, Schema); err != nil {
		return nil, fmt.Errorf("creating index schema: %w", err)
	}
	return &PostgresStore{client: client, q: client.DB}, nil
}

func (s *PostgresStore) UpsertTermStats(ctx context.Context, collectiveID, term string, hitDelta, fileDelta int64) (int64, error) {
	var id int64
	err := s.q.QueryRowContext(ctx,
		`INSERT INTO search_terms (collective_id, term, num_hits, num_files)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (collective_id, term) DO UPDATE
		 SET num_hits  = search_terms.num_hits  + EXCLUDED.num_hits,
		     num_files = search_terms.num_files + EXCLUDED.num_files
		 RETURNING id`,
		collectiveID, term, hitDelta, fileDelta,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("upserting term %q: %w", term, err)
	}
	return id, nil
}

func (s *PostgresStore) InsertPosting(ctx context.Context, collectiveID string, termID, documentID, hits int64) error {
	_, err := s.q.ExecContext(ctx,
		`INSERT INTO search_postings (term_id, collective_id, document_id, hits)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (term_id, document_id) DO UPDATE
		 SET hits = search_postings.hits + EXCLUDED.hits`,
		termID, collectiveID, documentID, hits,
	)
	if err != nil {
		return fmt.Errorf("inserting posting (term %d, document %d): %w", termID, documentID, err)
	}
	return nil
}

func (s *PostgresStore) PostingsByDocument(ctx context.Context, collectiveID string, documentID int64) ([]Posting, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT term_id, document_id, hits
		 FROM search_postings
		 WHERE collective_id = $1 AND document_id = $2`,
		collectiveID, documentID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying postings for document %d: %w", documentID, err)
	}
	defer rows.Close()

	var postings []Posting
	for rows.Next() {
		var p Posting
		if err := rows.Scan(&p.TermID, &p.DocumentID, &p.Hits); err != nil {
			return nil, fmt.Errorf("scanning posting row: %w", err)
		}
		postings = append(postings, p)
	}
	return postings, rows.Err()
}

func (s *PostgresStore) DeletePostingsByDocument(ctx context.Context, collectiveID string, documentID int64) error {
	_, err := s.q.ExecContext(ctx,
		`DELETE FROM search_postings WHERE collective_id = $1 AND document_id = $2`,
		collectiveID, documentID,
	)
	if err != nil {
		return fmt.Errorf("deleting postings for document %d: %w", documentID, err)
	}
	return nil
}

func (s *PostgresStore) DecrementTermAndGC(ctx context.Context, collectiveID string, termID, hits int64) (int64, error) {
	_, err := s.q.ExecContext(ctx,
		`UPDATE search_terms
		 SET num_hits = num_hits - $3, num_files = num_files - 1
		 WHERE collective_id = $1 AND id = $2`,
		collectiveID, termID, hits,
	)
	if err != nil {
		return 0, fmt.Errorf("decrementing term %d: %w", termID, err)
	}
	res, err := s.q.ExecContext(ctx,
		`DELETE FROM search_terms WHERE collective_id = $1 AND num_hits <= 0`,
		collectiveID,
	)
	if err != nil {
		return 0, fmt.Errorf("garbage-collecting terms: %w", err)
	}
	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("counting garbage-collected terms: %w", err)
	}
	return deleted, nil
}

func (s *PostgresStore) FindTerm(ctx context.Context, collectiveID, term string) (*Term, error) {
	var t Term
	err := s.q.QueryRowContext(ctx,
		`SELECT id, collective_id, term, num_hits, num_files
		 FROM search_terms
		 WHERE collective_id = $1 AND term = $2`,
		collectiveID, term,
	).Scan(&t.ID, &t.CollectiveID, &t.Term, &t.NumHits, &t.NumFiles)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying term %q: %w", term, err)
	}
	return &t, nil
}

func (s *PostgresStore) FindTermsByPrefix(ctx context.Context, collectiveID, prefix string, limit int) ([]Term, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT id, collective_id, term, num_hits, num_files
		 FROM search_terms
		 WHERE collective_id = $1 AND term LIKE $2
		 ORDER BY num_hits DESC, term ASC
		 LIMIT $3`,
		collectiveID, escapeLike(prefix)+"%", limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying terms by prefix %q: %w", prefix, err)
	}
	defer rows.Close()

	var terms []Term
	for rows.Next() {
		var t Term
		if err := rows.Scan(&t.ID, &t.CollectiveID, &t.Term, &t.NumHits, &t.NumFiles); err != nil {
			return nil, fmt.Errorf("scanning term row: %w", err)
		}
		terms = append(terms, t)
	}
	return terms, rows.Err()
}

func (s *PostgresStore) FindDocumentsByTerms(ctx context.Context, collectiveID string, termIDs []int64, limit int) ([]DocumentScore, error) {
	if len(termIDs) == 0 {
		return nil, nil
	}
	rows, err := s.q.QueryContext(ctx,
		`SELECT document_id, SUM(hits) AS total_hits
		 FROM search_postings
		 WHERE collective_id = $1 AND term_id = ANY($2)
		 GROUP BY document_id
		 ORDER BY total_hits DESC, document_id ASC
		 LIMIT $3`,
		collectiveID, pq.Array(termIDs), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("ranking documents: %w", err)
	}
	defer rows.Close()

	var scores []DocumentScore
	for rows.Next() {
		var ds DocumentScore
		if err := rows.Scan(&ds.DocumentID, &ds.Hits); err != nil {
			return nil, fmt.Errorf("scanning document score: %w", err)
		}
		scores = append(scores, ds)
	}
	return scores, rows.Err()
}

func (s *PostgresStore) File(ctx context.Context, collectiveID string, documentID int64) (*IndexedFile, error) {
	var f IndexedFile
	err := s.q.QueryRowContext(ctx,
		`SELECT collective_id, document_id, path, mtime
		 FROM search_files
		 WHERE collective_id = $1 AND document_id = $2`,
		collectiveID, documentID,
	).Scan(&f.CollectiveID, &f.DocumentID, &f.Path, &f.Mtime)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying indexed file %d: %w", documentID, err)
	}
	return &f, nil
}

func (s *PostgresStore) UpsertFile(ctx context.Context, file IndexedFile) error {
	_, err := s.q.ExecContext(ctx,
		`INSERT INTO search_files (collective_id, document_id, path, mtime)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (collective_id, document_id) DO UPDATE
		 SET path = EXCLUDED.path, mtime = EXCLUDED.mtime`,
		file.CollectiveID, file.DocumentID, file.Path, file.Mtime,
	)
	if err != nil {
		return fmt.Errorf("upserting indexed file %d: %w", file.DocumentID, err)
	}
	return nil
}

func (s *PostgresStore) DeleteFile(ctx context.Context, collectiveID string, documentID int64) error {
	_, err := s.q.ExecContext(ctx,
		`DELETE FROM search_files WHERE collective_id = $1 AND document_id = $2`,
		collectiveID, documentID,
	)
	if err != nil {
		return fmt.Errorf("deleting indexed file %d: %w", documentID, err)
	}
	return nil
}

func (s *PostgresStore) DeleteCollective(ctx context.Context, collectiveID string) error {
	for _, stmt := range []string{
		`DELETE FROM search_postings WHERE collective_id = $1`,
		`DELETE FROM search_terms WHERE collective_id = $1`,
		`DELETE FROM search_files WHERE collective_id = $1`,
	} {
		if _, err := s.q.ExecContext(ctx, stmt, collectiveID); err != nil {
			return fmt.Errorf("purging collective %s: %w", collectiveID, err)
		}
	}
	return nil
}

// InTx runs fn against a transaction-bound copy of the store. Nested
// transactions are not supported; calling InTx on a transactional store
// runs fn in the already-open transaction.
func (s *PostgresStore) InTx(ctx context.Context, fn func(tx Store) error) error {
	if _, inTx := s.q.(*sql.Tx); inTx {
		return fn(s)
	}
	return s.client.InTx(ctx, func(tx *sql.Tx) error {
		return fn(&PostgresStore{client: s.client, q: tx})
	})
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx)
}

// escapeLike escapes LIKE pattern metacharacters so a prefix containing
// '%' or '_' matches literally.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
