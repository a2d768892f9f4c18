package codeindex

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	_ "modernc.org/sqlite" // pure-Go SQLite driver, no CGO

	"github.com/context-fabric/contextfabric/internal/embed"
	"github.com/context-fabric/contextfabric/internal/model"
)

const schema = `
CREATE TABLE IF NOT EXISTS files (
	path TEXT PRIMARY KEY,
	language TEXT NOT NULL,
	mtime_unix INTEGER NOT NULL,
	size_bytes INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS chunks (
	id TEXT PRIMARY KEY,
	file_path TEXT NOT NULL,
	language TEXT NOT NULL,
	start_line INTEGER NOT NULL,
	end_line INTEGER NOT NULL,
	content TEXT NOT NULL,
	embedding TEXT
);
CREATE INDEX IF NOT EXISTS idx_chunks_file ON chunks(file_path);

CREATE VIRTUAL TABLE IF NOT EXISTS chunks_fts USING fts5(
	id UNINDEXED,
	content,
	tokenize='porter unicode61'
);

CREATE TABLE IF NOT EXISTS symbols (
	file_path TEXT NOT NULL,
	name TEXT NOT NULL,
	kind TEXT NOT NULL,
	signature TEXT,
	start_line INTEGER NOT NULL,
	end_line INTEGER NOT NULL,
	doc_comment TEXT
);
CREATE INDEX IF NOT EXISTS idx_symbols_name ON symbols(name);
CREATE INDEX IF NOT EXISTS idx_symbols_file ON symbols(file_path);
`

// Store persists one project's code index: per-file mtimes (for incremental
// re-index), chunk rows with an FTS5 mirror for text search, optional chunk
// embeddings for semantic search, and extracted symbols. Grounded on
// internal/store's sqlite.go/project.go patterns, generalized from memories
// to code artifacts.
type Store struct {
	mu sync.Mutex
	db *sql.DB
}

// Open creates or opens the code-index database at path ("" for in-memory,
// used by tests).
func Open(path string) (*Store, error) {
	dsn := ":memory:"
	if path != "" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create directory %s: %w", dir, err)
		}
		dsn = path
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open code index database: %w", err)
	}
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("set pragma %q: %w", pragma, err)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create code index schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

// FileMeta is the persisted mtime/size bookkeeping row for one source file.
type FileMeta struct {
	Path      string
	Language  string
	MtimeUnix int64
	SizeBytes int64
}

// GetFileMeta returns the stored metadata for path, or nil if never indexed.
func (s *Store) GetFileMeta(ctx context.Context, path string) (*FileMeta, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row := s.db.QueryRowContext(ctx, `SELECT path, language, mtime_unix, size_bytes FROM files WHERE path = ?`, path)
	var m FileMeta
	if err := row.Scan(&m.Path, &m.Language, &m.MtimeUnix, &m.SizeBytes); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &m, nil
}

// AllFileMeta returns every tracked file's metadata, for detecting deletions
// during a re-index sweep.
func (s *Store) AllFileMeta(ctx context.Context) ([]FileMeta, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, err := s.db.QueryContext(ctx, `SELECT path, language, mtime_unix, size_bytes FROM files`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []FileMeta
	for rows.Next() {
		var m FileMeta
		if err := rows.Scan(&m.Path, &m.Language, &m.MtimeUnix, &m.SizeBytes); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// ReplaceFile atomically replaces one file's chunks and symbols: deletes the
// old rows, inserts the new ones, and updates the file's mtime bookkeeping,
// all inside a single transaction (mirrors the row+FTS synchronization
// invariant from internal/store).
func (s *Store) ReplaceFile(ctx context.Context, meta FileMeta, chunks []model.CodeChunk, symbols []model.CodeSymbol) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks_fts WHERE id IN (SELECT id FROM chunks WHERE file_path = ?)`, meta.Path); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE file_path = ?`, meta.Path); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM symbols WHERE file_path = ?`, meta.Path); err != nil {
		return err
	}

	for _, c := range chunks {
		emb, err := encodeFloats(c.Embedding)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO chunks (id, file_path, language, start_line, end_line, content, embedding) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			c.ID, c.FilePath, c.Language, c.StartLine, c.EndLine, c.Content, emb); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO chunks_fts (id, content) VALUES (?, ?)`, c.ID, c.Content); err != nil {
			return err
		}
	}
	for _, sym := range symbols {
		if _, err := tx.ExecContext(ctx, `INSERT INTO symbols (file_path, name, kind, signature, start_line, end_line, doc_comment) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			sym.FilePath, sym.Name, string(sym.Kind), sym.Signature, sym.StartLine, sym.EndLine, sym.DocComment); err != nil {
			return err
		}
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO files (path, language, mtime_unix, size_bytes) VALUES (?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET language = excluded.language, mtime_unix = excluded.mtime_unix, size_bytes = excluded.size_bytes`,
		meta.Path, meta.Language, meta.MtimeUnix, meta.SizeBytes); err != nil {
		return err
	}

	return tx.Commit()
}

// RemoveFile deletes a file's chunks, symbols, and bookkeeping row (used
// when a watched file is deleted from disk).
func (s *Store) RemoveFile(ctx context.Context, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks_fts WHERE id IN (SELECT id FROM chunks WHERE file_path = ?)`, path); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE file_path = ?`, path); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM symbols WHERE file_path = ?`, path); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM files WHERE path = ?`, path); err != nil {
		return err
	}
	return tx.Commit()
}

// Counts returns totalFiles/totalSymbols for status().
func (s *Store) Counts(ctx context.Context) (totalFiles, totalSymbols int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM files`).Scan(&totalFiles); err != nil {
		return 0, 0, err
	}
	if err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM symbols`).Scan(&totalSymbols); err != nil {
		return 0, 0, err
	}
	return totalFiles, totalSymbols, nil
}

// SearchText performs a substring match over chunk content.
func (s *Store) SearchText(ctx context.Context, query string, limit int) ([]model.CodeChunk, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	like := "%" + escapeLike(query) + "%"
	rows, err := s.db.QueryContext(ctx, `SELECT id, file_path, language, start_line, end_line, content FROM chunks
		WHERE content LIKE ? ESCAPE '\' LIMIT ?`, like, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanChunks(rows)
}

// SearchBM25 runs the FTS5 index and returns chunks ranked by BM25 score.
func (s *Store) SearchBM25(ctx context.Context, query string, limit int) ([]model.CodeChunk, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, err := s.db.QueryContext(ctx, `SELECT c.id, c.file_path, c.language, c.start_line, c.end_line, c.content
		FROM chunks_fts f JOIN chunks c ON c.id = f.id
		WHERE chunks_fts MATCH ? ORDER BY bm25(chunks_fts) LIMIT ?`, query, limit)
	if err != nil {
		// Malformed FTS5 query syntax degrades to no results, matching the
		// memory stores' SearchBM25 behavior.
		return nil, nil
	}
	defer rows.Close()
	return scanChunks(rows)
}

// AllEmbeddedChunks returns every chunk that has a persisted embedding, for
// exact cosine ranking in semantic search.
func (s *Store) AllEmbeddedChunks(ctx context.Context) ([]model.CodeChunk, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, err := s.db.QueryContext(ctx, `SELECT id, file_path, language, start_line, end_line, content, embedding FROM chunks WHERE embedding IS NOT NULL`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.CodeChunk
	for rows.Next() {
		var c model.CodeChunk
		var emb sql.NullString
		if err := rows.Scan(&c.ID, &c.FilePath, &c.Language, &c.StartLine, &c.EndLine, &c.Content, &emb); err != nil {
			return nil, err
		}
		if emb.Valid {
			vec, err := decodeFloats(emb.String)
			if err != nil {
				return nil, err
			}
			c.Embedding = vec
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// SearchSymbols matches symbol names by exact, prefix, or substring (fuzzy)
// match, optionally filtered by kind and language.
func (s *Store) SearchSymbols(ctx context.Context, query string, kind model.SymbolKind, language string, limit int) ([]model.CodeSymbol, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlQuery := strings.Builder{}
	sqlQuery.WriteString(`SELECT file_path, name, kind, signature, start_line, end_line, doc_comment FROM symbols WHERE 1=1`)
	args := []any{}

	if query != "" {
		sqlQuery.WriteString(` AND name LIKE ? ESCAPE '\'`)
		args = append(args, "%"+escapeLike(query)+"%")
	}
	if kind != "" {
		sqlQuery.WriteString(` AND kind = ?`)
		args = append(args, string(kind))
	}
	if language != "" {
		sqlQuery.WriteString(` AND file_path LIKE ?`)
		args = append(args, "%."+extensionHint(language))
	}
	sqlQuery.WriteString(` ORDER BY (name = ?) DESC, (name LIKE ?) DESC LIMIT ?`)
	args = append(args, query, query+"%", limit)

	rows, err := s.db.QueryContext(ctx, sqlQuery.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.CodeSymbol
	for rows.Next() {
		var sym model.CodeSymbol
		var kindStr string
		if err := rows.Scan(&sym.FilePath, &sym.Name, &kindStr, &sym.Signature, &sym.StartLine, &sym.EndLine, &sym.DocComment); err != nil {
			return nil, err
		}
		sym.Kind = model.SymbolKind(kindStr)
		out = append(out, sym)
	}
	return out, rows.Err()
}

func extensionHint(language string) string {
	cfg, ok := DefaultRegistry().GetByName(language)
	if !ok || len(cfg.Extensions) == 0 {
		return language
	}
	return strings.TrimPrefix(cfg.Extensions[0], ".")
}

func scanChunks(rows *sql.Rows) ([]model.CodeChunk, error) {
	var out []model.CodeChunk
	for rows.Next() {
		var c model.CodeChunk
		if err := rows.Scan(&c.ID, &c.FilePath, &c.Language, &c.StartLine, &c.EndLine, &c.Content); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func escapeLike(s string) string {
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, "%", "\\%")
	s = strings.ReplaceAll(s, "_", "\\_")
	return s
}

func encodeFloats(v []float32) (any, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func decodeFloats(s string) ([]float32, error) {
	var v []float32
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return nil, err
	}
	return v, nil
}

// rankBySimilarity sorts chunks by cosine similarity to query, descending,
// and returns at most limit whose score meets threshold.
func rankBySimilarity(query []float32, chunks []model.CodeChunk, limit int, threshold float64) []model.CodeChunk {
	type scored struct {
		chunk model.CodeChunk
		score float64
	}
	scoredChunks := make([]scored, 0, len(chunks))
	for _, c := range chunks {
		if len(c.Embedding) == 0 {
			continue
		}
		sim := embed.CosineSimilarity(query, c.Embedding)
		if sim < threshold {
			continue
		}
		scoredChunks = append(scoredChunks, scored{chunk: c, score: sim})
	}
	sort.Slice(scoredChunks, func(i, j int) bool { return scoredChunks[i].score > scoredChunks[j].score })
	if len(scoredChunks) > limit {
		scoredChunks = scoredChunks[:limit]
	}
	out := make([]model.CodeChunk, len(scoredChunks))
	for i, s := range scoredChunks {
		out[i] = s.chunk
	}
	return out
}
