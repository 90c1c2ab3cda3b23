package host

import (
	"sort"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// ScreenInfo is a snapshot of one screen known to a Memory runtime.
type ScreenInfo struct {
	ID         ScreenID `json:"id"`
	Task       Task     `json:"task"`
	Focused    bool     `json:"focused"`
	Foreground bool     `json:"foreground"`
}

type memScreen struct {
	task       Task
	foreground bool
}

// Memory is an in-memory host runtime. The daemon drives it from control
// commands and tests drive it directly.
type Memory struct {
	mu       sync.RWMutex
	screens  map[ScreenID]*memScreen
	current  ScreenID
	home     bool
	watchers map[int64]func(ScreenID)
	nextID   atomic.Int64

	resumes atomic.Int64
	pauses  atomic.Int64

	logger *zap.Logger
}

// NewMemory creates an empty in-memory runtime.
func NewMemory(logger *zap.Logger) *Memory {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Memory{
		screens:  make(map[ScreenID]*memScreen),
		watchers: make(map[int64]func(ScreenID)),
		home:     true,
		logger:   logger,
	}
}

// Create adds a screen and makes it the foreground screen.
func (m *Memory) Create(id ScreenID, task Task) {
	m.mu.Lock()
	m.screens[id] = &memScreen{task: task}
	m.current = id
	m.home = false
	m.mu.Unlock()

	m.logger.Debug("screen created", zap.String("screen", string(id)))
}

// Focus makes an existing screen the foreground screen.
// It returns false for unknown screens.
func (m *Memory) Focus(id ScreenID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.screens[id]; !ok {
		return false
	}
	m.current = id
	m.home = false
	return true
}

// Destroy removes a screen and notifies lifecycle watchers.
// It returns false for unknown screens.
func (m *Memory) Destroy(id ScreenID) bool {
	m.mu.Lock()
	if _, ok := m.screens[id]; !ok {
		m.mu.Unlock()
		return false
	}
	delete(m.screens, id)
	if m.current == id {
		m.current = ""
		m.home = true
	}
	watchers := make([]func(ScreenID), 0, len(m.watchers))
	for _, fn := range m.watchers {
		watchers = append(watchers, fn)
	}
	m.mu.Unlock()

	m.logger.Debug("screen destroyed", zap.String("screen", string(id)))
	for _, fn := range watchers {
		fn(id)
	}
	return true
}

// Task returns the task a screen was created with.
func (m *Memory) Task(id ScreenID) (Task, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.screens[id]
	if !ok {
		return Task{}, false
	}
	return s.task, true
}

// Screens lists all live screens sorted by id.
func (m *Memory) Screens() []ScreenInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()

	infos := make([]ScreenInfo, 0, len(m.screens))
	for id, s := range m.screens {
		infos = append(infos, ScreenInfo{
			ID:         id,
			Task:       s.task,
			Focused:    !m.home && m.current == id,
			Foreground: s.foreground,
		})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].ID < infos[j].ID })
	return infos
}

// IsForeground reports whether the screen's content is currently resumed.
func (m *Memory) IsForeground(id ScreenID) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.screens[id]
	return ok && s.foreground
}

// Resumes returns how many times ResumeContent was called.
func (m *Memory) Resumes() int64 { return m.resumes.Load() }

// Pauses returns how many times PauseContent was called.
func (m *Memory) Pauses() int64 { return m.pauses.Load() }

// CurrentScreen implements Runtime.
func (m *Memory) CurrentScreen() (ScreenID, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.home || m.current == "" {
		return "", false
	}
	return m.current, true
}

// ResumeContent implements Runtime.
func (m *Memory) ResumeContent(id ScreenID) {
	m.resumes.Add(1)
	m.setForeground(id, true)
}

// PauseContent implements Runtime.
func (m *Memory) PauseContent(id ScreenID) {
	m.pauses.Add(1)
	m.setForeground(id, false)
}

// GoHome implements Runtime.
func (m *Memory) GoHome() {
	m.mu.Lock()
	m.home = true
	m.mu.Unlock()
}

// OnScreenDestroyed implements Lifecycle.
func (m *Memory) OnScreenDestroyed(fn func(ScreenID)) func() {
	id := m.nextID.Add(1)

	m.mu.Lock()
	m.watchers[id] = fn
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		delete(m.watchers, id)
		m.mu.Unlock()
	}
}

func (m *Memory) setForeground(id ScreenID, fg bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.screens[id]; ok {
		s.foreground = fg
	}
}
