package codeindex

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunkByLinesRespectsWindowAndOverlap(t *testing.T) {
	c := NewChunker(10, 2)
	defer c.Close()

	lines := make([]string, 25)
	for i := range lines {
		lines[i] = "line"
	}
	text := strings.Join(lines, "\n")

	chunks := c.chunkByLines("f.txt", "text", text)
	require.NotEmpty(t, chunks)

	assert.Equal(t, 1, chunks[0].StartLine)
	assert.Equal(t, 10, chunks[0].EndLine)
	// step = chunkLines - overlap = 8, so the second chunk starts at line 9
	assert.Equal(t, 9, chunks[1].StartLine)
	// last chunk must reach the end of the file
	assert.Equal(t, 25, chunks[len(chunks)-1].EndLine)
}

func TestChunkFileExtractsSymbolsForTier1Language(t *testing.T) {
	c := NewChunker(150, 10)
	defer c.Close()

	src := []byte("package demo\n\nfunc Hello() string {\n\treturn \"hi\"\n}\n")
	chunks, symbols, err := c.ChunkFile(context.Background(), "demo.go", "go", src)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	require.NotEmpty(t, symbols)

	found := false
	for _, sym := range symbols {
		if sym.Name == "Hello" {
			found = true
			assert.Equal(t, "demo.go", sym.FilePath)
		}
	}
	assert.True(t, found, "expected to find symbol Hello")
}

func TestChunkFileSkipsSymbolsForChunksOnlyTier(t *testing.T) {
	c := NewChunker(150, 10)
	defer c.Close()

	src := []byte("<html><body>hello</body></html>")
	chunks, symbols, err := c.ChunkFile(context.Background(), "index.html", "html", src)
	require.NoError(t, err)
	assert.Empty(t, symbols)
	assert.NotEmpty(t, chunks) // still line-chunked even though "html" has no registered tier
}

func TestChunkFileEmptyContent(t *testing.T) {
	c := NewChunker(150, 10)
	defer c.Close()

	chunks, symbols, err := c.ChunkFile(context.Background(), "empty.go", "go", []byte("   \n\n"))
	require.NoError(t, err)
	assert.Nil(t, chunks)
	assert.Nil(t, symbols)
}

func TestChunkIDStable(t *testing.T) {
	id1 := chunkID("a.go", 1, 10)
	id2 := chunkID("a.go", 1, 10)
	id3 := chunkID("a.go", 11, 20)
	assert.Equal(t, id1, id2)
	assert.NotEqual(t, id1, id3)
}
