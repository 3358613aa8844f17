// Package notify implements the per-context notification controller.
//
// At most one entry is visible at any time. Every entry carries a fencing id:
// a dismiss request is honored only when its id matches the currently
// displayed entry, so a stale auto-dismiss timer can never hide a newer
// notification that replaced the one it was armed for.
package notify

import (
	"log/slog"
	"sync"
	"time"
)

// Kind classifies an entry for rendering.
type Kind string

const (
	KindInfo    Kind = "info"
	KindSuccess Kind = "success"
	KindError   Kind = "error"
)

// Action is an optional affordance attached to an entry (e.g. "view result",
// "retry"). Run is invoked by the renderer on user interaction.
type Action struct {
	Label string
	Run   func()
}

// Entry is one notification. ID is the fencing token.
type Entry struct {
	ID          string
	Message     string
	Kind        Kind
	Closable    bool
	Action      *Action
	AutoDismiss time.Duration
}

// Renderer displays entries. Implementations are view glue (a TUI line, a
// desktop toast, a test recorder); the Manager never blocks on them.
type Renderer interface {
	Render(e Entry)
	Clear()
}

// Manager tracks the single visible entry for one execution context.
type Manager struct {
	log      *slog.Logger
	renderer Renderer

	mu      sync.Mutex
	current string // fencing id of the visible entry, "" when none
	timer   *time.Timer
}

// NewManager constructs a Manager. renderer may be nil, in which case entries
// are tracked but not displayed (useful for headless contexts).
func NewManager(log *slog.Logger, renderer Renderer) *Manager {
	if log == nil {
		log = slog.Default()
	}
	return &Manager{log: log, renderer: renderer}
}

// Show displays e, replacing whatever is currently visible. Any pending
// auto-dismiss timer for the previous entry is cancelled first, then a new
// timer is armed when e.AutoDismiss > 0.
func (m *Manager) Show(e Entry) {
	m.mu.Lock()
	m.stopTimerLocked()
	m.current = e.ID
	if e.AutoDismiss > 0 {
		id := e.ID
		m.timer = time.AfterFunc(e.AutoDismiss, func() { m.Hide(id) })
	}
	m.mu.Unlock()

	m.log.Debug("notify.show", "id", e.ID, "kind", string(e.Kind))
	metricShown.WithLabelValues(string(e.Kind)).Inc()
	if m.renderer != nil {
		m.renderer.Render(e)
	}
}

// Hide dismisses the visible entry. An empty id dismisses unconditionally;
// a non-empty id is honored only when it matches the visible entry's id.
func (m *Manager) Hide(id string) {
	m.mu.Lock()
	if id != "" && id != m.current {
		m.mu.Unlock()
		m.log.Debug("notify.hide.stale", "id", id)
		return
	}
	m.stopTimerLocked()
	m.current = ""
	m.mu.Unlock()

	if m.renderer != nil {
		m.renderer.Clear()
	}
}

// Visible returns the fencing id of the currently displayed entry, or ""
// when nothing is shown.
func (m *Manager) Visible() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

func (m *Manager) stopTimerLocked() {
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
}
