package engine

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/context-fabric/contextfabric/internal/config"
)

// newTestManager builds a Manager rooted at a fresh temp directory, with the
// code index watcher disabled so tests never touch the filesystem watcher.
func newTestManager(t *testing.T) *Manager {
	t.Helper()
	cfg := config.Default()
	cfg.Storage.RootDir = t.TempDir()
	cfg.CodeIndex.Watch = false
	m, err := NewManager(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func newTestEngine(t *testing.T, projectPath string) *Engine {
	t.Helper()
	m := newTestManager(t)
	e, err := m.Engine(projectPath)
	require.NoError(t, err)
	return e
}

// defaultTestConfig is like newTestManager's config but left for callers
// that want to construct the Manager themselves (e.g. to assert on Close).
func defaultTestConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Storage.RootDir = t.TempDir()
	cfg.CodeIndex.Watch = false
	return cfg
}
