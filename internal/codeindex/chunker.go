package codeindex

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/context-fabric/contextfabric/internal/model"
)

// Chunker splits a file into fixed-size, overlapping line ranges and (for
// languages whose tier permits it) extracts symbols via tree-sitter.
// Grounded on the teacher's internal/chunk/code_chunker.go, but simplified
// to the spec's flat line-window scheme (spec §4.8) rather than the
// teacher's AST-node-sized, token-budget chunking.
type Chunker struct {
	parser     *Parser
	extractor  *SymbolExtractor
	registry   *LanguageRegistry
	chunkLines int
	overlap    int
}

// NewChunker creates a chunker with the given window size and overlap (in
// lines). A non-positive window falls back to 150 lines; an overlap that is
// negative or not smaller than the window falls back to 10.
func NewChunker(chunkLines, overlap int) *Chunker {
	if chunkLines <= 0 {
		chunkLines = 150
	}
	if overlap < 0 || overlap >= chunkLines {
		overlap = 10
	}
	return &Chunker{
		parser:     NewParser(),
		extractor:  NewSymbolExtractor(),
		registry:   DefaultRegistry(),
		chunkLines: chunkLines,
		overlap:    overlap,
	}
}

// Close releases the underlying tree-sitter parser.
func (c *Chunker) Close() { c.parser.Close() }

// ChunkFile splits content into overlapping line-based chunks and, for
// languages with symbol support, extracts and returns symbols separately.
func (c *Chunker) ChunkFile(ctx context.Context, path, language string, content []byte) ([]model.CodeChunk, []model.CodeSymbol, error) {
	text := string(content)
	if strings.TrimSpace(text) == "" {
		return nil, nil, nil
	}

	chunks := c.chunkByLines(path, language, text)

	cfg, known := c.registry.GetByName(language)
	if !known || cfg.Tier == TierChunksOnly {
		return chunks, nil, nil
	}

	tree, err := c.parser.Parse(ctx, content, language)
	if err != nil {
		// Parse failures degrade to chunks-only, matching the teacher's
		// fallback-on-parse-error behavior.
		return chunks, nil, nil
	}

	symbols := c.extractor.Extract(tree)
	for i := range symbols {
		symbols[i].FilePath = path
	}
	return chunks, symbols, nil
}

func (c *Chunker) chunkByLines(path, language, text string) []model.CodeChunk {
	lines := strings.Split(text, "\n")
	if len(lines) == 0 {
		return nil
	}

	step := c.chunkLines - c.overlap
	if step <= 0 {
		step = c.chunkLines
	}

	var chunks []model.CodeChunk
	for start := 0; start < len(lines); start += step {
		end := start + c.chunkLines
		if end > len(lines) {
			end = len(lines)
		}
		content := strings.Join(lines[start:end], "\n")
		chunks = append(chunks, model.CodeChunk{
			ID:        chunkID(path, start+1, end),
			FilePath:  path,
			Language:  language,
			StartLine: start + 1,
			EndLine:   end,
			Content:   content,
		})
		if end >= len(lines) {
			break
		}
	}
	return chunks
}

// chunkID derives a stable id from the file path and line range. Unlike the
// teacher's content-hash id (stable across line shifts), this index keys
// chunks by position because re-indexing always recomputes the full file's
// chunk set on a detected change (see Index.reindexFile).
func chunkID(path string, startLine, endLine int) string {
	h := sha256.Sum256([]byte(fmt.Sprintf("%s:%d:%d", path, startLine, endLine)))
	return hex.EncodeToString(h[:])[:16]
}
