// Package store implements the durable tier-2 (per-project) and tier-3
// (global semantic) memory stores (spec §4.3, §4.4) on top of
// modernc.org/sqlite with an FTS5 full-text index.
package store

import (
	"encoding/json"
	"fmt"

	"github.com/context-fabric/contextfabric/internal/model"
)

// row is the flat persisted shape of a model.Memory. Metadata and Embedding
// are stored JSON-encoded in text columns (spec §6: "not wire-level
// exposed").
type row struct {
	ID             string
	Type           string
	Content        string
	Metadata       string
	CreatedAt      int64
	UpdatedAt      int64
	LastAccessedAt int64
	AccessCount    int
	Pinned         bool
	Embedding      string
	RelevanceScore float64
}

func encodeMetadata(m model.Metadata) (string, error) {
	b, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("encode metadata: %w", err)
	}
	return string(b), nil
}

func decodeMetadata(s string) (model.Metadata, error) {
	var m model.Metadata
	if s == "" {
		return m, nil
	}
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		return m, fmt.Errorf("decode metadata: %w", err)
	}
	return m, nil
}

func encodeEmbedding(vec []float32) (string, error) {
	if vec == nil {
		return "", nil
	}
	b, err := json.Marshal(vec)
	if err != nil {
		return "", fmt.Errorf("encode embedding: %w", err)
	}
	return string(b), nil
}

func decodeEmbedding(s string) ([]float32, error) {
	if s == "" {
		return nil, nil
	}
	var vec []float32
	if err := json.Unmarshal([]byte(s), &vec); err != nil {
		return nil, fmt.Errorf("decode embedding: %w", err)
	}
	return vec, nil
}

func rowFromMemory(m *model.Memory) (row, error) {
	metaJSON, err := encodeMetadata(m.Metadata)
	if err != nil {
		return row{}, err
	}
	embJSON, err := encodeEmbedding(m.Embedding)
	if err != nil {
		return row{}, err
	}
	return row{
		ID:             m.ID,
		Type:           string(m.Type),
		Content:        m.Content,
		Metadata:       metaJSON,
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
		LastAccessedAt: m.LastAccessedAt,
		AccessCount:    m.AccessCount,
		Pinned:         m.Pinned,
		Embedding:      embJSON,
		RelevanceScore: m.RelevanceScore,
	}, nil
}

func (r row) toMemory(tier model.Tier) (*model.Memory, error) {
	meta, err := decodeMetadata(r.Metadata)
	if err != nil {
		return nil, err
	}
	emb, err := decodeEmbedding(r.Embedding)
	if err != nil {
		return nil, err
	}
	return &model.Memory{
		ID:             r.ID,
		Type:           model.Type(r.Type),
		Tier:           tier,
		Content:        r.Content,
		Metadata:       meta,
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
		LastAccessedAt: r.LastAccessedAt,
		AccessCount:    r.AccessCount,
		Pinned:         r.Pinned,
		Embedding:      emb,
		RelevanceScore: r.RelevanceScore,
	}, nil
}

// NormalizeBM25 converts a raw FTS5 bm25() score (smaller is better, often
// negative) into the (0,1] similarity convention used throughout the hybrid
// pipeline (spec §4.3 "BM25 score normalization").
func NormalizeBM25(raw float64) float64 {
	if raw < 0 {
		raw = -raw
	}
	return 1 / (1 + raw)
}
