package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"github.com/context-fabric/contextfabric/internal/ferrors"
	"github.com/context-fabric/contextfabric/internal/model"
)

const projectSchema = `
CREATE TABLE IF NOT EXISTS memories (
	id TEXT PRIMARY KEY,
	type TEXT NOT NULL,
	content TEXT NOT NULL,
	metadata TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL,
	last_accessed_at INTEGER NOT NULL,
	access_count INTEGER NOT NULL DEFAULT 0,
	pinned INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_memories_type ON memories(type);
CREATE INDEX IF NOT EXISTS idx_memories_created_at ON memories(created_at);
CREATE INDEX IF NOT EXISTS idx_memories_pinned ON memories(pinned);

CREATE VIRTUAL TABLE IF NOT EXISTS memories_fts USING fts5(
	doc_id UNINDEXED,
	content,
	type,
	tokenize='porter unicode61'
);

CREATE TABLE IF NOT EXISTS project_meta (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL,
	updated_at INTEGER NOT NULL
);
`

// ProjectStore is the tier-2 durable, per-project keyed store (spec §4.3).
// One ProjectStore exists per project path; the caller (the engine) is
// responsible for sharing a single instance per path per process.
type ProjectStore struct {
	mu   sync.RWMutex
	db   *sql.DB
	lock *flock.Flock
	path string
}

// OpenProjectStore opens (or creates) the tier-2 database at path. An empty
// path opens an in-memory store, used by tests. A process-local OS file
// lock guards the database file against concurrent writers from a second
// process (spec §3: "at-most-one writer per project per process").
func OpenProjectStore(path string) (*ProjectStore, error) {
	var fl *flock.Flock
	if path != "" {
		fl = flock.New(path + ".lock")
		locked, err := fl.TryLock()
		if err != nil {
			return nil, ferrors.StoreUnavailable(fmt.Errorf("acquire project store lock: %w", err))
		}
		if !locked {
			return nil, ferrors.StoreUnavailable(fmt.Errorf("project store %s is already open by another process", path))
		}
	}

	db, err := openSQLite(path, "memories_fts")
	if err != nil {
		if fl != nil {
			_ = fl.Unlock()
		}
		return nil, ferrors.StoreUnavailable(err)
	}
	if _, err := db.Exec(projectSchema); err != nil {
		_ = db.Close()
		if fl != nil {
			_ = fl.Unlock()
		}
		return nil, ferrors.StoreUnavailable(fmt.Errorf("init schema: %w", err))
	}

	return &ProjectStore{db: db, lock: fl, path: path}, nil
}

// Close releases the database handle and the process lock, if any.
func (s *ProjectStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.db.Close()
	if s.lock != nil {
		_ = s.lock.Unlock()
	}
	return err
}

// Store inserts a new memory, assigning id and timestamps.
func (s *ProjectStore) Store(ctx context.Context, content string, typ model.Type, meta model.Metadata) (*model.Memory, error) {
	if strings.TrimSpace(content) == "" {
		return nil, ferrors.InvalidInput("content must not be empty")
	}
	now := model.NowMillis()
	mem := &model.Memory{
		ID:             uuid.NewString(),
		Type:           typ,
		Tier:           model.TierProject,
		Content:        content,
		Metadata:       meta,
		CreatedAt:      now,
		UpdatedAt:      now,
		LastAccessedAt: now,
	}
	if err := s.upsert(ctx, mem); err != nil {
		return nil, err
	}
	return mem.Clone(), nil
}

// upsert writes mem to both the row table and the FTS index, keeping them
// synchronized in a single transaction (spec invariant: "full-text index ...
// must remain synchronized with the underlying row set").
func (s *ProjectStore) upsert(ctx context.Context, mem *model.Memory) error {
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
		INSERT INTO memories (id, type, content, metadata, created_at, updated_at, last_accessed_at, access_count, pinned)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			type=excluded.type, content=excluded.content, metadata=excluded.metadata,
			updated_at=excluded.updated_at, last_accessed_at=excluded.last_accessed_at,
			access_count=excluded.access_count, pinned=excluded.pinned`,
		r.ID, r.Type, r.Content, r.Metadata, r.CreatedAt, r.UpdatedAt, r.LastAccessedAt, r.AccessCount, r.Pinned)
	if err != nil {
		return ferrors.StoreUnavailable(fmt.Errorf("upsert row: %w", err))
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM memories_fts WHERE doc_id = ?`, r.ID); err != nil {
		return ferrors.StoreUnavailable(fmt.Errorf("clear fts: %w", err))
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO memories_fts (doc_id, content, type) VALUES (?, ?, ?)`, r.ID, r.Content, r.Type); err != nil {
		return ferrors.StoreUnavailable(fmt.Errorf("index fts: %w", err))
	}

	return tx.Commit()
}

// Get returns the memory for id, bumping access bookkeeping, or nil if not
// present.
func (s *ProjectStore) Get(ctx context.Context, id string) (*model.Memory, error) {
	r, err := s.getRow(ctx, id)
	if err != nil {
		return nil, err
	}
	if r == nil {
		return nil, nil
	}
	r.AccessCount++
	r.LastAccessedAt = model.NowMillis()
	if err := s.touchAccess(ctx, *r); err != nil {
		return nil, err
	}
	return r.toMemory(model.TierProject)
}

func (s *ProjectStore) getRow(ctx context.Context, id string) (*row, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var r row
	err := s.db.QueryRowContext(ctx, `SELECT id, type, content, metadata, created_at, updated_at, last_accessed_at, access_count, pinned FROM memories WHERE id = ?`, id).
		Scan(&r.ID, &r.Type, &r.Content, &r.Metadata, &r.CreatedAt, &r.UpdatedAt, &r.LastAccessedAt, &r.AccessCount, &r.Pinned)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, ferrors.StoreUnavailable(err)
	}
	return &r, nil
}

func (s *ProjectStore) touchAccess(ctx context.Context, r row) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, `UPDATE memories SET access_count = ?, last_accessed_at = ? WHERE id = ?`, r.AccessCount, r.LastAccessedAt, r.ID)
	if err != nil {
		return ferrors.StoreUnavailable(err)
	}
	return nil
}

// Update applies a partial update to an existing memory and bumps
// updatedAt. Returns ferrors.NotFound if id does not exist.
func (s *ProjectStore) Update(ctx context.Context, id string, content *string, meta *model.Metadata, pinned *bool) (*model.Memory, error) {
	r, err := s.getRow(ctx, id)
	if err != nil {
		return nil, err
	}
	if r == nil {
		return nil, ferrors.NotFound(id)
	}
	mem, err := r.toMemory(model.TierProject)
	if err != nil {
		return nil, err
	}
	if content != nil {
		mem.Content = *content
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

// Delete removes a memory from both the row table and the FTS index.
func (s *ProjectStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return ferrors.StoreUnavailable(err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `DELETE FROM memories WHERE id = ?`, id)
	if err != nil {
		return ferrors.StoreUnavailable(err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM memories_fts WHERE doc_id = ?`, id); err != nil {
		return ferrors.StoreUnavailable(err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ferrors.NotFound(id)
	}
	return tx.Commit()
}

// SearchLike performs a case-insensitive substring match on content, newest
// first.
func (s *ProjectStore) SearchLike(ctx context.Context, query string) ([]*model.Memory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, type, content, metadata, created_at, updated_at, last_accessed_at, access_count, pinned
		FROM memories WHERE content LIKE ? ESCAPE '\' ORDER BY created_at DESC`,
		"%"+escapeLike(query)+"%")
	if err != nil {
		return nil, ferrors.StoreUnavailable(err)
	}
	defer rows.Close()
	return scanMemories(rows, model.TierProject)
}

// SearchBM25 runs an FTS5 BM25 keyword search over content and returns
// results paired with normalized scores, in rank order.
func (s *ProjectStore) SearchBM25(ctx context.Context, query string, limit int) ([]ScoredMemory, error) {
	if strings.TrimSpace(query) == "" {
		return nil, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT m.id, m.type, m.content, m.metadata, m.created_at, m.updated_at, m.last_accessed_at, m.access_count, m.pinned, bm25(memories_fts) as score
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
		if err := rows.Scan(&r.ID, &r.Type, &r.Content, &r.Metadata, &r.CreatedAt, &r.UpdatedAt, &r.LastAccessedAt, &r.AccessCount, &r.Pinned, &raw); err != nil {
			return nil, ferrors.StoreUnavailable(err)
		}
		mem, err := r.toMemory(model.TierProject)
		if err != nil {
			return nil, err
		}
		out = append(out, ScoredMemory{Memory: mem, Score: NormalizeBM25(raw)})
	}
	return out, rows.Err()
}

// FindByType returns all live memories of the given type, newest first.
func (s *ProjectStore) FindByType(ctx context.Context, typ model.Type) ([]*model.Memory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, type, content, metadata, created_at, updated_at, last_accessed_at, access_count, pinned
		FROM memories WHERE type = ? ORDER BY created_at DESC`, string(typ))
	if err != nil {
		return nil, ferrors.StoreUnavailable(err)
	}
	defer rows.Close()
	return scanMemories(rows, model.TierProject)
}

// GetRecent returns the n most recently created memories.
func (s *ProjectStore) GetRecent(ctx context.Context, n int) ([]*model.Memory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, type, content, metadata, created_at, updated_at, last_accessed_at, access_count, pinned
		FROM memories ORDER BY created_at DESC LIMIT ?`, n)
	if err != nil {
		return nil, ferrors.StoreUnavailable(err)
	}
	defer rows.Close()
	return scanMemories(rows, model.TierProject)
}

// List returns a page of memories ordered newest-first, for the engine's
// list operation (spec §4.9).
func (s *ProjectStore) List(ctx context.Context, limit, offset int) ([]*model.Memory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, type, content, metadata, created_at, updated_at, last_accessed_at, access_count, pinned
		FROM memories ORDER BY created_at DESC LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, ferrors.StoreUnavailable(err)
	}
	defer rows.Close()
	return scanMemories(rows, model.TierProject)
}

// Stats reports the total and pinned row counts, for list's optional
// per-tier stats (spec §4.9).
func (s *ProjectStore) Stats(ctx context.Context) (total, pinned int, err error) {
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

// GetMemoriesSince returns memories created at or after epochMs.
func (s *ProjectStore) GetMemoriesSince(ctx context.Context, epochMs int64) ([]*model.Memory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, type, content, metadata, created_at, updated_at, last_accessed_at, access_count, pinned
		FROM memories WHERE created_at >= ? ORDER BY created_at DESC`, epochMs)
	if err != nil {
		return nil, ferrors.StoreUnavailable(err)
	}
	defer rows.Close()
	return scanMemories(rows, model.TierProject)
}

// Summarize coalesces non-pinned entries older than cutoffDays into a
// single archival summary entry and deletes the originals.
func (s *ProjectStore) Summarize(ctx context.Context, olderThanDays int) (summaryID string, count int, summaryText string, err error) {
	cutoff := model.NowMillis() - int64(olderThanDays)*86_400_000

	s.mu.Lock()
	rows, qerr := s.db.QueryContext(ctx, `
		SELECT id, type, content, metadata, created_at, updated_at, last_accessed_at, access_count, pinned
		FROM memories WHERE created_at < ? AND pinned = 0 ORDER BY created_at ASC`, cutoff)
	if qerr != nil {
		s.mu.Unlock()
		return "", 0, "", ferrors.StoreUnavailable(qerr)
	}
	candidates, serr := scanMemories(rows, model.TierProject)
	rows.Close()
	s.mu.Unlock()
	if serr != nil {
		return "", 0, "", serr
	}
	if len(candidates) == 0 {
		return "", 0, "", nil
	}

	var b strings.Builder
	ids := make([]string, 0, len(candidates))
	for _, m := range candidates {
		fmt.Fprintf(&b, "- [%s] %s\n", m.Type, truncate(m.Content, 200))
		ids = append(ids, m.ID)
	}
	summaryText = b.String()

	now := model.NowMillis()
	summary := &model.Memory{
		ID:             uuid.NewString(),
		Type:           model.TypeSummary,
		Tier:           model.TierProject,
		Content:        summaryText,
		Metadata:       model.Metadata{Source: model.SourceSystemAuto, Title: fmt.Sprintf("Archive of %d memories", len(candidates))},
		CreatedAt:      now,
		UpdatedAt:      now,
		LastAccessedAt: now,
	}
	if err := s.upsert(ctx, summary); err != nil {
		return "", 0, "", err
	}
	for _, id := range ids {
		if err := s.Delete(ctx, id); err != nil {
			return "", 0, "", err
		}
	}
	return summary.ID, len(candidates), summaryText, nil
}

// GetLastSeen returns the reserved last_seen project-meta value, or nil if
// never set.
func (s *ProjectStore) GetLastSeen(ctx context.Context) (*int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM project_meta WHERE key = ?`, model.LastSeenKey).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, ferrors.StoreUnavailable(err)
	}
	var ms int64
	if _, err := fmt.Sscanf(value, "%d", &ms); err != nil {
		return nil, ferrors.StoreUnavailable(err)
	}
	return &ms, nil
}

// UpdateLastSeen sets the reserved last_seen project-meta value.
func (s *ProjectStore) UpdateLastSeen(ctx context.Context, epochMs int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO project_meta (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value=excluded.value, updated_at=excluded.updated_at`,
		model.LastSeenKey, fmt.Sprintf("%d", epochMs), model.NowMillis())
	if err != nil {
		return ferrors.StoreUnavailable(err)
	}
	return nil
}

// ScoredMemory pairs a memory with a ranker-specific score.
type ScoredMemory struct {
	Memory *model.Memory
	Score  float64
}

func scanMemories(rows *sql.Rows, tier model.Tier) ([]*model.Memory, error) {
	var out []*model.Memory
	for rows.Next() {
		var r row
		if err := rows.Scan(&r.ID, &r.Type, &r.Content, &r.Metadata, &r.CreatedAt, &r.UpdatedAt, &r.LastAccessedAt, &r.AccessCount, &r.Pinned); err != nil {
			return nil, ferrors.StoreUnavailable(err)
		}
		mem, err := r.toMemory(tier)
		if err != nil {
			return nil, err
		}
		out = append(out, mem)
	}
	return out, rows.Err()
}

func escapeLike(s string) string {
	r := strings.NewReplacer("\\", "\\\\", "%", "\\%", "_", "\\_")
	return r.Replace(s)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
