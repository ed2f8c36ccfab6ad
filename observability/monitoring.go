// Package observability aggregates live counters of the room server for
// the heartbeat worker and the inspect page.
package observability

import "sync/atomic"

// Stats is a point-in-time snapshot of the server counters.
type Stats struct {
	RoomsActive    int64  `json:"rooms_active"`
	SessionsOpen   int64  `json:"sessions_open"`
	MessagesStored uint64 `json:"messages_stored"`
	BroadcastDrops uint64 `json:"broadcast_drops"`
	LogClears      uint64 `json:"log_clears"`
}

// Manager keeps the counters behind atomics so coordinators and the
// heartbeat worker never contend on a lock.
type Manager struct {
	roomsActive    atomic.Int64
	sessionsOpen   atomic.Int64
	messagesStored atomic.Uint64
	broadcastDrops atomic.Uint64
	logClears      atomic.Uint64
}

func NewManager() *Manager {
	return &Manager{}
}

func (m *Manager) RoomCreated() { m.roomsActive.Add(1) }

func (m *Manager) SessionOpened() { m.sessionsOpen.Add(1) }

func (m *Manager) SessionClosed() { m.sessionsOpen.Add(-1) }

// SessionsDropped records sessions removed because a send failed during
// a broadcast pass.
func (m *Manager) SessionsDropped(n int) {
	m.sessionsOpen.Add(int64(-n))
	m.broadcastDrops.Add(uint64(n))
}

func (m *Manager) MessageStored() { m.messagesStored.Add(1) }

func (m *Manager) LogCleared() { m.logClears.Add(1) }

// Latest returns a consistent-enough snapshot for logs and dashboards.
func (m *Manager) Latest() Stats {
	return Stats{
		RoomsActive:    m.roomsActive.Load(),
		SessionsOpen:   m.sessionsOpen.Load(),
		MessagesStored: m.messagesStored.Load(),
		BroadcastDrops: m.broadcastDrops.Load(),
		LogClears:      m.logClears.Load(),
	}
}
