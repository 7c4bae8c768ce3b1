package plugin

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

var (
	// ErrDuplicatePlugin is returned when a plugin id is already registered.
	ErrDuplicatePlugin = errors.New("plugin already registered")
	// ErrInvalidPlugin is returned for nil plugins and empty ids.
	ErrInvalidPlugin = errors.New("invalid plugin")
)

// entry caches the optional capabilities of a plugin, resolved once at
// registration.
type entry struct {
	plugin   Plugin
	recorder Recorder
	updater  Updater
	flusher  Flusher
}

func newEntry(p Plugin) *entry {
	e := &entry{plugin: p}
	e.recorder, _ = p.(Recorder)
	e.updater, _ = p.(Updater)
	e.flusher, _ = p.(Flusher)
	return e
}

// Manager owns plugin registration and lifecycle.
type Manager struct {
	ctx Context

	mu      sync.RWMutex
	order   []string
	entries map[string]*entry
}

// NewManager creates a manager that loads plugins with ctx.
func NewManager(ctx Context) *Manager {
	if ctx == nil {
		panic("plugin: context must not be nil")
	}
	return &Manager{ctx: ctx, entries: make(map[string]*entry)}
}

// AddPlugin registers p and loads it. A second plugin with the same id is
// rejected with ErrDuplicatePlugin.
func (m *Manager) AddPlugin(p Plugin) error {
	if p == nil {
		return fmt.Errorf("%w: nil plugin", ErrInvalidPlugin)
	}
	id := p.ID()
	if id == "" {
		return fmt.Errorf("%w: empty id", ErrInvalidPlugin)
	}

	m.mu.Lock()
	if _, exists := m.entries[id]; exists {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrDuplicatePlugin, id)
	}
	e := newEntry(p)
	m.entries[id] = e
	m.order = append(m.order, id)
	m.mu.Unlock()

	// Load runs unlocked; plugins may call back into the manager.
	p.Load(m.ctx)

	slog.Debug("[PluginManager] Plugin loaded",
		"plugin_id", id,
		"recorder", e.recorder != nil,
		"updater", e.updater != nil,
		"flusher", e.flusher != nil)
	return nil
}

// Enable enables the plugin with id, if registered.
func (m *Manager) Enable(id string) {
	if e := m.lookup(id); e != nil {
		e.plugin.Enable()
	}
}

// Disable disables the plugin with id, if registered.
func (m *Manager) Disable(id string) {
	if e := m.lookup(id); e != nil {
		e.plugin.Disable()
	}
}

// EnableAll enables every plugin in registration order.
func (m *Manager) EnableAll() {
	for _, e := range m.snapshot() {
		e.plugin.Enable()
	}
}

// DisableAll disables every plugin in registration order.
func (m *Manager) DisableAll() {
	for _, e := range m.snapshot() {
		e.plugin.Disable()
	}
}

// Record hands data to the plugin with id. Unknown ids and plugins that do
// not record are ignored.
func (m *Manager) Record(id string, data any) {
	e := m.lookup(id)
	if e == nil || e.recorder == nil {
		slog.Debug("[PluginManager] Ignoring record for plugin", "plugin_id", id)
		return
	}
	e.recorder.Record(data)
}

// UpdatePlugin hands a new configuration to the plugin with id. Unknown ids
// and plugins without runtime configuration are ignored.
func (m *Manager) UpdatePlugin(id string, cfg any) {
	e := m.lookup(id)
	if e == nil || e.updater == nil {
		slog.Debug("[PluginManager] Ignoring update for plugin", "plugin_id", id)
		return
	}
	e.updater.Update(cfg)
}

// Flush asks every buffering plugin to push its data into the cache.
func (m *Manager) Flush() {
	for _, e := range m.snapshot() {
		if e.flusher != nil {
			e.flusher.Flush()
		}
	}
}

// HasPlugin reports whether id is registered.
func (m *Manager) HasPlugin(id string) bool {
	return m.lookup(id) != nil
}

// PluginIDs returns the registered ids in registration order.
func (m *Manager) PluginIDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.order...)
}

func (m *Manager) lookup(id string) *entry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.entries[id]
}

func (m *Manager) snapshot() []*entry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*entry, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.entries[id])
	}
	return out
}
