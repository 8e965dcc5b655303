package relay

import (
	"log/slog"
	"sort"
	"sync"
	"time"
)

type entry struct {
	conn  *Connection
	coord *Coordinator
}

// Manager tracks live connections for health reporting and shutdown.
type Manager struct {
	conns map[string]entry
	mu    sync.RWMutex
	log   *slog.Logger
}

func NewManager(log *slog.Logger) *Manager {
	if log == nil {
		log = slog.Default()
	}
	return &Manager{
		conns: make(map[string]entry),
		log:   log.With("component", "relay_manager"),
	}
}

func (m *Manager) Register(conn *Connection, coord *Coordinator) {
	m.mu.Lock()
	m.conns[conn.ID()] = entry{conn: conn, coord: coord}
	m.mu.Unlock()

	m.log.Debug("connection registered", "connection_id", conn.ID())
}

func (m *Manager) Unregister(id string) {
	m.mu.Lock()
	_, ok := m.conns[id]
	delete(m.conns, id)
	m.mu.Unlock()

	if ok {
		m.log.Debug("connection unregistered", "connection_id", id)
	}
}

func (m *Manager) Get(id string) (*Coordinator, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.conns[id]
	return e.coord, ok
}

type ConnectionInfo struct {
	ConnectionID string     `json:"connection_id"`
	State        string     `json:"state"`
	RemoteAddr   string     `json:"remote_addr"`
	OpenedAt     time.Time  `json:"opened_at"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
}

func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.conns)
}

func (m *Manager) List() []ConnectionInfo {
	m.mu.RLock()
	infos := make([]ConnectionInfo, 0, len(m.conns))
	for id, e := range m.conns {
		info := ConnectionInfo{
			ConnectionID: id,
			State:        string(e.coord.State()),
			RemoteAddr:   e.conn.RemoteAddr(),
			OpenedAt:     e.conn.OpenedAt(),
		}
		if started := e.coord.StartedAt(); !started.IsZero() {
			info.StartedAt = &started
		}
		infos = append(infos, info)
	}
	m.mu.RUnlock()

	sort.Slice(infos, func(i, j int) bool {
		return infos[i].OpenedAt.Before(infos[j].OpenedAt)
	})
	return infos
}

// Close drops every live connection. Each handler then tears down its own
// coordinator.
func (m *Manager) Close() error {
	m.mu.Lock()
	conns := make([]*Connection, 0, len(m.conns))
	for _, e := range m.conns {
		conns = append(conns, e.conn)
	}
	m.conns = make(map[string]entry)
	m.mu.Unlock()

	for _, c := range conns {
		c.Close()
	}
	if len(conns) > 0 {
		m.log.Info("closed live connections", "count", len(conns))
	}
	return nil
}
