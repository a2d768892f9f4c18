package store

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/coder/hnsw"
	"github.com/google/uuid"

	"github.com/context-fabric/contextfabric/internal/embed"
	"github.com/context-fabric/contextfabric/internal/ferrors"
	"github.com/context-fabric/contextfabric/internal/model"
)

const semanticSchema = `
CREATE TABLE IF NOT EXISTS memories (
	id TEXT PRIMARY KEY,
	type TEXT NOT NULL,
	content TEXT NOT NULL,
	metadata TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL,
	last_accessed_at INTEGER NOT NULL,
	access_count INTEGER NOT NULL DEFAULT 0,
	pinned INTEGER NOT NULL DEFAULT 0,
	embedding TEXT NOT NULL,
	relevance_score REAL NOT NULL DEFAULT 1.0
);
CREATE INDEX IF NOT EXISTS idx_semantic_type ON memories(type);
CREATE INDEX IF NOT EXISTS idx_semantic_pinned ON memories(pinned);

CREATE VIRTUAL TABLE IF NOT EXISTS memories_fts USING fts5(
	doc_id UNINDEXED,
	content,
	type,
	tokenize='porter unicode61'
);
`

// DecayConfig configures the tier-3 decay formula (spec §4.4).
type DecayConfig struct {
	DecayDays int
	Threshold float64
}

// DefaultDecayConfig matches the spec's default decay parameters.
func DefaultDecayConfig() DecayConfig {
	return DecayConfig{DecayDays: 14, Threshold: 0.2}
}

// SemanticStore is the tier-3 durable, global keyed store (spec §4.4). It
// is shared across every project in the process.
type SemanticStore struct {
	mu        sync.RWMutex
	db        *sql.DB
	dims      int
	decay     DecayConfig
	vecMu     sync.RWMutex
	graph     *hnsw.Graph[uint64]
	idToKey   map[string]uint64
	keyToID   map[uint64]string
	nextKey   uint64
}

// OpenSemanticStore opens (or creates) the tier-3 database at path and
// rebuilds its in-memory ANN index from the persisted rows. An empty path
// opens an in-memory store, used by tests.
func OpenSemanticStore(path string, dims int, decay DecayConfig) (*SemanticStore, error) {
	db, err := openSQLite(path, "memories_fts")
	if err != nil {
		return nil, ferrors.StoreUnavailable(err)
	}
	if _, err := db.Exec(semanticSchema); err != nil {
		_ = db.Close()
		return nil, ferrors.StoreUnavailable(fmt.Errorf("init schema: %w", err))
	}

	graph := hnsw.NewGraph[uint64]()
	graph.Distance = hnsw.CosineDistance
	graph.M = 16
	graph.EfSearch = 20

	s := &SemanticStore{
		db:      db,
		dims:    dims,
		decay:   decay,
		graph:   graph,
		idToKey: make(map[string]uint64),
		keyToID: make(map[uint64]string),
	}
	if err := s.rebuildANNIndex(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SemanticStore) rebuildANNIndex(ctx context.Context) error {
	rows, err := s.db.QueryContext(ctx, `SELECT id, embedding FROM memories`)
	if err != nil {
		return ferrors.StoreUnavailable(err)
	}
	defer rows.Close()

	s.vecMu.Lock()
	defer s.vecMu.Unlock()
	for rows.Next() {
		var id, embJSON string
		if err := rows.Scan(&id, &embJSON); err != nil {
			return ferrors.StoreUnavailable(err)
		}
		vec, err := decodeEmbedding(embJSON)
		if err != nil {
			return ferrors.StoreUnavailable(err)
		}
		if len(vec) != s.dims {
			return ferrors.StoreUnavailable(fmt.Errorf("embedding dimension mismatch for %s: expected %d, got %d", id, s.dims, len(vec)))
		}
		s.addVectorLocked(id, vec)
	}
	return rows.Err()
}

func (s *SemanticStore) addVectorLocked(id string, vec []float32) {
	if existing, ok := s.idToKey[id]; ok {
		delete(s.keyToID, existing)
	}
	key := s.nextKey
	s.nextKey++
	cp := append([]float32(nil), vec...)
	normalizeVec(cp)
	s.graph.Add(hnsw.MakeNode(key, cp))
	s.idToKey[id] = key
	s.keyToID[key] = id
}

func (s *SemanticStore) removeVectorLocked(id string) {
	if key, ok := s.idToKey[id]; ok {
		delete(s.keyToID, key)
		delete(s.idToKey, id)
	}
}

func normalizeVec(v []float32) {
	var sumSq float64
	for _, x := range v {
		sumSq += float64(x) * float64(x)
	}
	if sumSq == 0 {
		return
	}
	norm := float32(1.0 / math.Sqrt(sumSq))
	for i := range v {
		v[i] *= norm
	}
}

// Close releases the database handle.
func (s *SemanticStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

// Store persists mem (whose embedding must already be populated and of the
// configured dimension) and inserts it into the keyword and vector indexes.
func (s *SemanticStore) Store(ctx context.Context, content string, typ model.Type, meta model.Metadata, embedding []float32) (*model.Memory, error) {
	if strings.TrimSpace(content) == "" {
		return nil, ferrors.InvalidInput("content must not be empty")
	}
	if len(embedding) != s.dims {
		return nil, ferrors.StoreUnavailable(fmt.Errorf("embedding dimension mismatch: expected %d, got %d", s.dims, len(embedding)))
	}
	now := model.NowMillis()
	mem := &model.Memory{
		ID:             uuid.NewString(),
		Type:           typ,
		Tier:           model.TierSemantic,
		Content:        content,
		Metadata:       meta,
		CreatedAt:      now,
		UpdatedAt:      now,
		LastAccessedAt: now,
		Embedding:      embedding,
		RelevanceScore: 1.0,
	}
	if err := s.upsert(ctx, mem); err != nil {
		return nil, err
	}
	return mem.Clone(), nil
}

func (s *SemanticStore) upsert(ctx context.Context, mem *model.Memory) error {
	r, err := rowFromMemory(mem)
	if err != nil {
		return ferrors.InvalidInput(err.Error())
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return ferrors.StoreUnavailable(err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO memories (id, type, content, metadata, created_at, updated_at, last_accessed_at, access_count, pinned, embedding, relevance_score)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			type=excluded.type, content=excluded.content, metadata=excluded.metadata,
			updated_at=excluded.updated_at, last_accessed_at=excluded.last_accessed_at,
			access_count=excluded.access_count, pinned=excluded.pinned,
			embedding=excluded.embedding, relevance_score=excluded.relevance_score`,
		r.ID, r.Type, r.Content, r.Metadata, r.CreatedAt, r.UpdatedAt, r.LastAccessedAt, r.AccessCount, r.Pinned, r.Embedding, r.RelevanceScore)
	if err != nil {
		return ferrors.StoreUnavailable(fmt.Errorf("upsert row: %w", err))
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM memories_fts WHERE doc_id = ?`, r.ID); err != nil {
		return ferrors.StoreUnavailable(err)
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO memories_fts (doc_id, content, type) VALUES (?, ?, ?)`, r.ID, r.Content, r.Type); err != nil {
		return ferrors.StoreUnavailable(err)
	}
	if err := tx.Commit(); err != nil {
		return ferrors.StoreUnavailable(err)
	}

	s.vecMu.Lock()
	s.addVectorLocked(mem.ID, mem.Embedding)
	s.vecMu.Unlock()
	return nil
}

// Get returns the memory for id, bumping access bookkeeping, or nil if not
// present.
func (s *SemanticStore) Get(ctx context.Context, id string) (*model.Memory, error) {
	r, err := s.getRow(ctx, id)
	if err != nil || r == nil {
		return nil, err
	}
	r.AccessCount++
	r.LastAccessedAt = model.NowMillis()

	s.mu.Lock()
	_, execErr := s.db.ExecContext(ctx, `UPDATE memories SET access_count = ?, last_accessed_at = ? WHERE id = ?`, r.AccessCount, r.LastAccessedAt, r.ID)
	s.mu.Unlock()
	if execErr != nil {
		return nil, ferrors.StoreUnavailable(execErr)
	}
	return r.toMemory(model.TierSemantic)
}

func (s *SemanticStore) getRow(ctx context.Context, id string) (*row, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var r row
	err := s.db.QueryRowContext(ctx, `
		SELECT id, type, content, metadata, created_at, updated_at, last_accessed_at, access_count, pinned, embedding, relevance_score
		FROM memories WHERE id = ?`, id).
		Scan(&r.ID, &r.Type, &r.Content, &r.Metadata, &r.CreatedAt, &r.UpdatedAt, &r.LastAccessedAt, &r.AccessCount, &r.Pinned, &r.Embedding, &r.RelevanceScore)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, ferrors.StoreUnavailable(err)
	}
	return &r, nil
}

// Update applies a partial update. If content changes, the caller must
// supply a freshly computed embedding (content changes invalidate the old
// vector, per spec §3 "Mutated" lifecycle).
func (s *SemanticStore) Update(ctx context.Context, id string, content *string, newEmbedding []float32, meta *model.Metadata, pinned *bool) (*model.Memory, error) {
	r, err := s.getRow(ctx, id)
	if err != nil {
		return nil, err
	}
	if r == nil {
		return nil, ferrors.NotFound(id)
	}
	mem, err := r.toMemory(model.TierSemantic)
	if err != nil {
		return nil, err
	}
	if content != nil {
		mem.Content = *content
		if newEmbedding != nil {
			mem.Embedding = newEmbedding
		}
	}
	if meta != nil {
		mem.Metadata = *meta
	}
	if pinned != nil {
		mem.Pinned = *pinned
	}
	mem.UpdatedAt = model.NowMillis()

	if err := s.upsert(ctx, mem); err != nil {
		return nil, err
	}
	return mem.Clone(), nil
}

// Delete removes a memory from the row table, FTS index, and ANN index.
func (s *SemanticStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		s.mu.Unlock()
		return ferrors.StoreUnavailable(err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM memories WHERE id = ?`, id)
	if err != nil {
		tx.Rollback()
		s.mu.Unlock()
		return ferrors.StoreUnavailable(err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM memories_fts WHERE doc_id = ?`, id); err != nil {
		tx.Rollback()
		s.mu.Unlock()
		return ferrors.StoreUnavailable(err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		tx.Rollback()
		s.mu.Unlock()
		return ferrors.NotFound(id)
	}
	commitErr := tx.Commit()
	s.mu.Unlock()
	if commitErr != nil {
		return ferrors.StoreUnavailable(commitErr)
	}

	s.vecMu.Lock()
	s.removeVectorLocked(id)
	s.vecMu.Unlock()
	return nil
}

// RecallSemantic embeds the query (via the caller-supplied vector), scans
// candidates pre-filtered by the ANN index, and returns the top-k exact
// cosine matches, ties broken by updatedAt descending (spec §4.4).
func (s *SemanticStore) RecallSemantic(ctx context.Context, queryVec []float32, limit int) ([]ScoredMemory, error) {
	if len(queryVec) != s.dims {
		return nil, ferrors.StoreUnavailable(fmt.Errorf("query embedding dimension mismatch: expected %d, got %d", s.dims, len(queryVec)))
	}

	s.vecMu.RLock()
	overFetch := limit * 4
	if overFetch < 50 {
		overFetch = 50
	}
	if overFetch > len(s.idToKey) {
		overFetch = len(s.idToKey)
	}
	var candidateIDs []string
	if overFetch > 0 {
		normalized := append([]float32(nil), queryVec...)
		normalizeVec(normalized)
		nodes := s.graph.Search(normalized, overFetch)
		for _, n := range nodes {
			if id, ok := s.keyToID[n.Key]; ok {
				candidateIDs = append(candidateIDs, id)
			}
		}
	}
	s.vecMu.RUnlock()

	if len(candidateIDs) == 0 {
		return nil, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []ScoredMemory
	for _, id := range candidateIDs {
		var r row
		err := s.db.QueryRowContext(ctx, `
			SELECT id, type, content, metadata, created_at, updated_at, last_accessed_at, access_count, pinned, embedding, relevance_score
			FROM memories WHERE id = ?`, id).
			Scan(&r.ID, &r.Type, &r.Content, &r.Metadata, &r.CreatedAt, &r.UpdatedAt, &r.LastAccessedAt, &r.AccessCount, &r.Pinned, &r.Embedding, &r.RelevanceScore)
		if err == sql.ErrNoRows {
			continue
		}
		if err != nil {
			return nil, ferrors.StoreUnavailable(err)
		}
		mem, err := r.toMemory(model.TierSemantic)
		if err != nil {
			return nil, err
		}
		score := embed.CosineSimilarity(queryVec, mem.Embedding)
		out = append(out, ScoredMemory{Memory: mem, Score: score})
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Memory.UpdatedAt > out[j].Memory.UpdatedAt
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// SearchBM25 runs an FTS5 BM25 keyword search, identical in shape to
// ProjectStore.SearchBM25.
func (s *SemanticStore) SearchBM25(ctx context.Context, query string, limit int) ([]ScoredMemory, error) {
	if strings.TrimSpace(query) == "" {
		return nil, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT m.id, m.type, m.content, m.metadata, m.created_at, m.updated_at, m.last_accessed_at, m.access_count, m.pinned, m.embedding, m.relevance_score, bm25(memories_fts) as score
		FROM memories_fts
		JOIN memories m ON m.id = memories_fts.doc_id
		WHERE memories_fts.content MATCH ?
		ORDER BY score
		LIMIT ?`, query, limit)
	if err != nil {
		if strings.Contains(err.Error(), "fts5") || strings.Contains(err.Error(), "syntax error") {
			return nil, nil
		}
		return nil, ferrors.StoreUnavailable(err)
	}
	defer rows.Close()

	var out []ScoredMemory
	for rows.Next() {
		var r row
		var raw float64
		if err := rows.Scan(&r.ID, &r.Type, &r.Content, &r.Metadata, &r.CreatedAt, &r.UpdatedAt, &r.LastAccessedAt, &r.AccessCount, &r.Pinned, &r.Embedding, &r.RelevanceScore, &raw); err != nil {
			return nil, ferrors.StoreUnavailable(err)
		}
		mem, err := r.toMemory(model.TierSemantic)
		if err != nil {
			return nil, err
		}
		out = append(out, ScoredMemory{Memory: mem, Score: NormalizeBM25(raw)})
	}
	return out, rows.Err()
}

// FindByType returns all live memories of the given type, newest first,
// mirroring ProjectStore.FindByType.
func (s *SemanticStore) FindByType(ctx context.Context, typ model.Type) ([]*model.Memory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, type, content, metadata, created_at, updated_at, last_accessed_at, access_count, pinned, embedding, relevance_score
		FROM memories WHERE type = ? ORDER BY created_at DESC`, string(typ))
	if err != nil {
		return nil, ferrors.StoreUnavailable(err)
	}
	defer rows.Close()

	var out []*model.Memory
	for rows.Next() {
		var r row
		if err := rows.Scan(&r.ID, &r.Type, &r.Content, &r.Metadata, &r.CreatedAt, &r.UpdatedAt, &r.LastAccessedAt, &r.AccessCount, &r.Pinned, &r.Embedding, &r.RelevanceScore); err != nil {
			return nil, ferrors.StoreUnavailable(err)
		}
		mem, err := r.toMemory(model.TierSemantic)
		if err != nil {
			return nil, err
		}
		out = append(out, mem)
	}
	return out, rows.Err()
}

// List returns a page of memories ordered newest-first, for the engine's
// list operation (spec §4.9).
func (s *SemanticStore) List(ctx context.Context, limit, offset int) ([]*model.Memory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, type, content, metadata, created_at, updated_at, last_accessed_at, access_count, pinned, embedding, relevance_score
		FROM memories ORDER BY created_at DESC LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, ferrors.StoreUnavailable(err)
	}
	defer rows.Close()

	var out []*model.Memory
	for rows.Next() {
		var r row
		if err := rows.Scan(&r.ID, &r.Type, &r.Content, &r.Metadata, &r.CreatedAt, &r.UpdatedAt, &r.LastAccessedAt, &r.AccessCount, &r.Pinned, &r.Embedding, &r.RelevanceScore); err != nil {
			return nil, ferrors.StoreUnavailable(err)
		}
		mem, err := r.toMemory(model.TierSemantic)
		if err != nil {
			return nil, err
		}
		out = append(out, mem)
	}
	return out, rows.Err()
}

// Stats reports the total and pinned row counts, for list's optional
// per-tier stats (spec §4.9).
func (s *SemanticStore) Stats(ctx context.Context) (total, pinned int, err error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM memories`).Scan(&total); err != nil {
		return 0, 0, ferrors.StoreUnavailable(err)
	}
	if err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM memories WHERE pinned = 1`).Scan(&pinned); err != nil {
		return 0, 0, ferrors.StoreUnavailable(err)
	}
	return total, pinned, nil
}

// ApplyDecay recomputes relevanceScore for every non-pinned entry per the
// spec's decay formula and deletes entries that fall below threshold.
func (s *SemanticStore) ApplyDecay(ctx context.Context) (int, error) {
	s.mu.RLock()
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, created_at, last_accessed_at, access_count, pinned, relevance_score FROM memories`)
	if err != nil {
		s.mu.RUnlock()
		return 0, ferrors.StoreUnavailable(err)
	}
	type cand struct {
		id                         string
		createdAt, lastAccessedAt  int64
		accessCount                int
		pinned                     bool
		relevanceScore             float64
	}
	var all []cand
	for rows.Next() {
		var c cand
		if err := rows.Scan(&c.id, &c.createdAt, &c.lastAccessedAt, &c.accessCount, &c.pinned, &c.relevanceScore); err != nil {
			rows.Close()
			s.mu.RUnlock()
			return 0, ferrors.StoreUnavailable(err)
		}
		all = append(all, c)
	}
	rows.Close()
	s.mu.RUnlock()

	now := time.Now().UnixMilli()
	decayDays := s.decay.DecayDays
	if decayDays <= 0 {
		decayDays = 14
	}
	threshold := s.decay.Threshold

	var toDelete []string
	deleted := 0
	for _, c := range all {
		if c.pinned {
			continue
		}
		ageMs := float64(now - c.createdAt)
		sinceAccessMs := float64(now - c.lastAccessedAt)
		ageDecay := math.Exp(-ageMs / (2 * float64(decayDays) * 86_400_000))
		inactivity := math.Exp(-sinceAccessMs / (float64(decayDays) * 86_400_000))
		accessBoost := math.Min(float64(c.accessCount)/10, 0.5)
		newScore := clamp01(ageDecay*0.3 + inactivity*0.7 + accessBoost)

		if newScore < threshold {
			toDelete = append(toDelete, c.id)
			continue
		}
		if math.Abs(newScore-c.relevanceScore) > 0.01 {
			s.mu.Lock()
			_, uerr := s.db.ExecContext(ctx, `UPDATE memories SET relevance_score = ? WHERE id = ?`, newScore, c.id)
			s.mu.Unlock()
			if uerr != nil {
				return deleted, ferrors.StoreUnavailable(uerr)
			}
		}
	}

	for _, id := range toDelete {
		if err := s.Delete(ctx, id); err != nil {
			if kind, ok := ferrors.KindOf(err); ok && kind == ferrors.KindNotFound {
				continue
			}
			return deleted, err
		}
		deleted++
	}
	return deleted, nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
