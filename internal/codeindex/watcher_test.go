package codeindex

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatcherEmitsCreateEvent(t *testing.T) {
	root := t.TempDir()
	w, err := NewWatcher(20 * time.Millisecond)
	require.NoError(t, err)
	defer w.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx, root))

	time.Sleep(20 * time.Millisecond) // let fsnotify attach before the write
	require.NoError(t, os.WriteFile(filepath.Join(root, "new.go"), []byte("package main\n"), 0o644))

	select {
	case batch := <-w.Output():
		require.NotEmpty(t, batch)
		assert.Equal(t, "new.go", batch[0].Path)
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for watcher event")
	}
}

func TestWatcherStopIsIdempotent(t *testing.T) {
	w, err := NewWatcher(10 * time.Millisecond)
	require.NoError(t, err)
	assert.NoError(t, w.Stop())
	assert.NoError(t, w.Stop())
}
