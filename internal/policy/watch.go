package policy

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Manager owns the current engine and swaps it atomically when the policy
// file changes on disk.
type Manager struct {
	root string
	path string

	mu     sync.RWMutex
	engine *Engine
}

// NewManager compiles the initial engine from path (or the built-in default
// when path is empty).
func NewManager(root, path string) (*Manager, error) {
	p, err := LoadFromFile(path)
	if err != nil {
		return nil, err
	}
	e, err := NewEngine(root, p)
	if err != nil {
		return nil, err
	}
	return &Manager{root: root, path: path, engine: e}, nil
}

// Engine returns the current compiled engine.
func (m *Manager) Engine() *Engine {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.engine
}

// Reload re-reads the policy file and swaps the engine. A failed reload
// keeps the previous engine in place.
func (m *Manager) Reload() error {
	p, err := LoadFromFile(m.path)
	if err != nil {
		return err
	}
	e, err := NewEngine(m.root, p)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.engine = e
	m.mu.Unlock()
	return nil
}

// Watch reloads the policy whenever its file changes, until ctx is done.
// Editors replace files rather than writing in place, so the watch is on
// the containing directory and filtered by name.
func (m *Manager) Watch(ctx context.Context) error {
	if m.path == "" {
		return fmt.Errorf("no policy file to watch")
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("policy watcher: %w", err)
	}
	defer w.Close()

	dir := filepath.Dir(m.path)
	if err := w.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	var timer *time.Timer
	reload := func() {
		if err := m.Reload(); err != nil {
			slog.Error("policy reload failed, keeping previous policy", "path", m.path, "err", err)
			return
		}
		slog.Info("policy reloaded", "path", m.path)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != filepath.Clean(m.path) {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			// Debounce bursts from editors that write in several steps.
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(200*time.Millisecond, reload)
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			slog.Warn("policy watcher error", "err", err)
		}
	}
}
