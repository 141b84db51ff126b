package store

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// MemoryStore is an in-memory Store used by unit tests and local
// development without PostgreSQL. All operations are guarded by a single
// mutex; InTx snapshots the state and restores it when fn fails, giving
// the same rollback semantics as the SQL implementation.
type MemoryStore struct {
	mu   sync.Mutex
	data *memoryData
}

type memoryData struct {
	nextTermID int64
	terms      map[string]map[string]*Term      // collective -> term -> row
	files      map[string]map[int64]*IndexedFile // collective -> document -> row
	postings   map[string]map[int64]map[int64]int64 // collective -> termID -> document -> hits
}

// NewMemory creates an empty MemoryStore.
func NewMemory() *MemoryStore {
	return &MemoryStore{data: newMemoryData()}
}

func newMemoryData() *memoryData {
	return &memoryData{
		nextTermID: 1,
		terms:      make(map[string]map[string]*Term),
		files:      make(map[string]map[int64]*IndexedFile),
		postings:   make(map[string]map[int64]map[int64]int64),
	}
}

func (d *memoryData) clone() *memoryData {
	c := newMemoryData()
	c.nextTermID = d.nextTermID
	for coll, terms := range d.terms {
		c.terms[coll] = make(map[string]*Term, len(terms))
		for name, t := range terms {
			copied := *t
			c.terms[coll][name] = &copied
		}
	}
	for coll, files := range d.files {
		c.files[coll] = make(map[int64]*IndexedFile, len(files))
		for id, f := range files {
			copied := *f
			c.files[coll][id] = &copied
		}
	}
	for coll, byTerm := range d.postings {
		c.postings[coll] = make(map[int64]map[int64]int64, len(byTerm))
		for termID, byDoc := range byTerm {
			docs := make(map[int64]int64, len(byDoc))
			for docID, hits := range byDoc {
				docs[docID] = hits
			}
			c.postings[coll][termID] = docs
		}
	}
	return c
}

func (d *memoryData) upsertTermStats(collectiveID, term string, hitDelta, fileDelta int64) int64 {
	terms, ok := d.terms[collectiveID]
	if !ok {
		terms = make(map[string]*Term)
		d.terms[collectiveID] = terms
	}
	if t, exists := terms[term]; exists {
		t.NumHits += hitDelta
		t.NumFiles += fileDelta
		return t.ID
	}
	t := &Term{
		ID:           d.nextTermID,
		CollectiveID: collectiveID,
		Term:         term,
		NumHits:      hitDelta,
		NumFiles:     fileDelta,
	}
	d.nextTermID++
	terms[term] = t
	return t.ID
}

func (d *memoryData) insertPosting(collectiveID string, termID, documentID, hits int64) {
	byTerm, ok := d.postings[collectiveID]
	if !ok {
		byTerm = make(map[int64]map[int64]int64)
		d.postings[collectiveID] = byTerm
	}
	byDoc, ok := byTerm[termID]
	if !ok {
		byDoc = make(map[int64]int64)
		byTerm[termID] = byDoc
	}
	byDoc[documentID] += hits
}

func (d *memoryData) postingsByDocument(collectiveID string, documentID int64) []Posting {
	var postings []Posting
	for termID, byDoc := range d.postings[collectiveID] {
		if hits, ok := byDoc[documentID]; ok {
			postings = append(postings, Posting{TermID: termID, DocumentID: documentID, Hits: hits})
		}
	}
	sort.Slice(postings, func(i, j int) bool {
		return postings[i].TermID < postings[j].TermID
	})
	return postings
}

func (d *memoryData) deletePostingsByDocument(collectiveID string, documentID int64) {
	for termID, byDoc := range d.postings[collectiveID] {
		delete(byDoc, documentID)
		if len(byDoc) == 0 {
			delete(d.postings[collectiveID], termID)
		}
	}
}

func (d *memoryData) decrementTermAndGC(collectiveID string, termID, hits int64) int64 {
	terms := d.terms[collectiveID]
	for _, t := range terms {
		if t.ID == termID {
			t.NumHits -= hits
			t.NumFiles--
			break
		}
	}
	var deleted int64
	for name, t := range terms {
		if t.NumHits <= 0 {
			delete(terms, name)
			delete(d.postings[collectiveID], t.ID)
			deleted++
		}
	}
	return deleted
}

func (d *memoryData) findTerm(collectiveID, term string) *Term {
	if t, ok := d.terms[collectiveID][term]; ok {
		copied := *t
		return &copied
	}
	return nil
}

func (d *memoryData) findTermsByPrefix(collectiveID, prefix string, limit int) []Term {
	var terms []Term
	for _, t := range d.terms[collectiveID] {
		if strings.HasPrefix(t.Term, prefix) {
			terms = append(terms, *t)
		}
	}
	sort.Slice(terms, func(i, j int) bool {
		if terms[i].NumHits != terms[j].NumHits {
			return terms[i].NumHits > terms[j].NumHits
		}
		return terms[i].Term < terms[j].Term
	})
	if limit > 0 && len(terms) > limit {
		terms = terms[:limit]
	}
	return terms
}

func (d *memoryData) findDocumentsByTerms(collectiveID string, termIDs []int64, limit int) []DocumentScore {
	totals := make(map[int64]int64)
	byTerm := d.postings[collectiveID]
	for _, termID := range termIDs {
		for docID, hits := range byTerm[termID] {
			totals[docID] += hits
		}
	}
	scores := make([]DocumentScore, 0, len(totals))
	for docID, hits := range totals {
		scores = append(scores, DocumentScore{DocumentID: docID, Hits: hits})
	}
	sort.Slice(scores, func(i, j int) bool {
		if scores[i].Hits != scores[j].Hits {
			return scores[i].Hits > scores[j].Hits
		}
		return scores[i].DocumentID < scores[j].DocumentID
	})
	if limit > 0 && len(scores) > limit {
		scores = scores[:limit]
	}
	return scores
}

func (d *memoryData) file(collectiveID string, documentID int64) *IndexedFile {
	if f, ok := d.files[collectiveID][documentID]; ok {
		copied := *f
		return &copied
	}
	return nil
}

func (d *memoryData) upsertFile(file IndexedFile) {
	files, ok := d.files[file.CollectiveID]
	if !ok {
		files = make(map[int64]*IndexedFile)
		d.files[file.CollectiveID] = files
	}
	copied := file
	files[file.DocumentID] = &copied
}

func (d *memoryData) deleteFile(collectiveID string, documentID int64) {
	delete(d.files[collectiveID], documentID)
}

func (d *memoryData) deleteCollective(collectiveID string) {
	delete(d.terms, collectiveID)
	delete(d.files, collectiveID)
	delete(d.postings, collectiveID)
}

func (m *MemoryStore) UpsertTermStats(ctx context.Context, collectiveID, term string, hitDelta, fileDelta int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.upsertTermStats(collectiveID, term, hitDelta, fileDelta), nil
}

func (m *MemoryStore) InsertPosting(ctx context.Context, collectiveID string, termID, documentID, hits int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data.insertPosting(collectiveID, termID, documentID, hits)
	return nil
}

func (m *MemoryStore) PostingsByDocument(ctx context.Context, collectiveID string, documentID int64) ([]Posting, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.postingsByDocument(collectiveID, documentID), nil
}

func (m *MemoryStore) DeletePostingsByDocument(ctx context.Context, collectiveID string, documentID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data.deletePostingsByDocument(collectiveID, documentID)
	return nil
}

func (m *MemoryStore) DecrementTermAndGC(ctx context.Context, collectiveID string, termID, hits int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.decrementTermAndGC(collectiveID, termID, hits), nil
}

func (m *MemoryStore) FindTerm(ctx context.Context, collectiveID, term string) (*Term, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.findTerm(collectiveID, term), nil
}

func (m *MemoryStore) FindTermsByPrefix(ctx context.Context, collectiveID, prefix string, limit int) ([]Term, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.findTermsByPrefix(collectiveID, prefix, limit), nil
}

func (m *MemoryStore) FindDocumentsByTerms(ctx context.Context, collectiveID string, termIDs []int64, limit int) ([]DocumentScore, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.findDocumentsByTerms(collectiveID, termIDs, limit), nil
}

func (m *MemoryStore) File(ctx context.Context, collectiveID string, documentID int64) (*IndexedFile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.file(collectiveID, documentID), nil
}

func (m *MemoryStore) UpsertFile(ctx context.Context, file IndexedFile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data.upsertFile(file)
	return nil
}

func (m *MemoryStore) DeleteFile(ctx context.Context, collectiveID string, documentID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data.deleteFile(collectiveID, documentID)
	return nil
}

func (m *MemoryStore) DeleteCollective(ctx context.Context, collectiveID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data.deleteCollective(collectiveID)
	return nil
}

// InTx holds the store lock for the whole transaction; fn operates on a
// non-locking view. State is restored from a snapshot when fn fails.
func (m *MemoryStore) InTx(ctx context.Context, fn func(tx Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	snapshot := m.data.clone()
	if err := fn(&memoryTx{data: m.data}); err != nil {
		m.data = snapshot
		return err
	}
	return nil
}

func (m *MemoryStore) Ping(ctx context.Context) error {
	return nil
}

// memoryTx is the transaction-bound view handed to InTx callbacks. The
// parent store holds the lock for the transaction's lifetime.
type memoryTx struct {
	data *memoryData
}

func (t *memoryTx) UpsertTermStats(ctx context.Context, collectiveID, term string, hitDelta, fileDelta int64) (int64, error) {
	return t.data.upsertTermStats(collectiveID, term, hitDelta, fileDelta), nil
}

func (t *memoryTx) InsertPosting(ctx context.Context, collectiveID string, termID, documentID, hits int64) error {
	t.data.insertPosting(collectiveID, termID, documentID, hits)
	return nil
}

func (t *memoryTx) PostingsByDocument(ctx context.Context, collectiveID string, documentID int64) ([]Posting, error) {
	return t.data.postingsByDocument(collectiveID, documentID), nil
}

func (t *memoryTx) DeletePostingsByDocument(ctx context.Context, collectiveID string, documentID int64) error {
	t.data.deletePostingsByDocument(collectiveID, documentID)
	return nil
}

func (t *memoryTx) DecrementTermAndGC(ctx context.Context, collectiveID string, termID, hits int64) (int64, error) {
	return t.data.decrementTermAndGC(collectiveID, termID, hits), nil
}

func (t *memoryTx) FindTerm(ctx context.Context, collectiveID, term string) (*Term, error) {
	return t.data.findTerm(collectiveID, term), nil
}

func (t *memoryTx) FindTermsByPrefix(ctx context.Context, collectiveID, prefix string, limit int) ([]Term, error) {
	return t.data.findTermsByPrefix(collectiveID, prefix, limit), nil
}

func (t *memoryTx) FindDocumentsByTerms(ctx context.Context, collectiveID string, termIDs []int64, limit int) ([]DocumentScore, error) {
	return t.data.findDocumentsByTerms(collectiveID, termIDs, limit), nil
}

func (t *memoryTx) File(ctx context.Context, collectiveID string, documentID int64) (*IndexedFile, error) {
	return t.data.file(collectiveID, documentID), nil
}

func (t *memoryTx) UpsertFile(ctx context.Context, file IndexedFile) error {
	t.data.upsertFile(file)
	return nil
}

func (t *memoryTx) DeleteFile(ctx context.Context, collectiveID string, documentID int64) error {
	t.data.deleteFile(collectiveID, documentID)
	return nil
}

func (t *memoryTx) DeleteCollective(ctx context.Context, collectiveID string) error {
	t.data.deleteCollective(collectiveID)
	return nil
}

func (t *memoryTx) InTx(ctx context.Context, fn func(tx Store) error) error {
	return fn(t)
}

func (t *memoryTx) Ping(ctx context.Context) error {
	return nil
}
