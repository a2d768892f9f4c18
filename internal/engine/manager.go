package engine

import (
	"sync"

	"github.com/context-fabric/contextfabric/internal/config"
)

// Manager is the process-wide composition root: it owns the Shared
// components and lazily constructs one Engine per project path, mirroring
// the teacher's CompactionManager's map[string]*compactionState pattern
// (internal/daemon/compaction.go).
type Manager struct {
	shared *Shared

	mu      sync.Mutex
	engines map[string]*Engine
}

// NewManager builds the process-wide components from cfg. The resulting
// Manager must be closed with Close once the process is shutting down.
func NewManager(cfg *config.Config) (*Manager, error) {
	shared, err := newShared(cfg)
	if err != nil {
		return nil, err
	}
	return &Manager{shared: shared, engines: make(map[string]*Engine)}, nil
}

// Engine returns the per-project engine for projectPath, constructing it on
// first request.
func (m *Manager) Engine(projectPath string) (*Engine, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if e, ok := m.engines[projectPath]; ok {
		return e, nil
	}
	e, err := newEngine(m.shared, projectPath)
	if err != nil {
		return nil, err
	}
	m.engines[projectPath] = e
	return e, nil
}

// Close tears down every constructed engine and the shared components
// (spec §5 Shutdown).
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var firstErr error
	for _, e := range m.engines {
		if err := e.close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if err := m.shared.close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
