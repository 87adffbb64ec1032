// Package health tracks liveness of agent sessions via heartbeats.
package health

import (
	"sync"
	"time"
)

// ResourceSnapshot is a point-in-time view of a session's resource
// usage, reported alongside each heartbeat.
type ResourceSnapshot struct {
	// CPUPercent is the session's CPU usage at snapshot time.
	CPUPercent float64 `json:"cpu_percent"`
	// MemoryBytes is the session's resident memory at snapshot time.
	MemoryBytes int64 `json:"memory_bytes"`
	// CurrentLayer names the validation layer running when the
	// heartbeat fired, if any.
	CurrentLayer string `json:"current_layer,omitempty"`
}

// Monitor receives session heartbeats and answers stall queries. The
// scheduler consults it to decide session timeouts.
type Monitor interface {
	// ReportHeartbeat records that a session is alive.
	ReportHeartbeat(sessionID string, snapshot ResourceSnapshot)
	// IsStalled returns true if the session has not reported a
	// heartbeat within the stall timeout.
	IsStalled(sessionID string) bool
}

// InProcessMonitor is the in-memory Monitor used when sessions run
// inside the scheduler process.
type InProcessMonitor struct {
	mu           sync.RWMutex
	stallTimeout time.Duration
	beats        map[string]beat
	now          func() time.Time
}

type beat struct {
	at       time.Time
	snapshot ResourceSnapshot
}

// NewInProcessMonitor creates a monitor that considers a session
// stalled after stallTimeout without a heartbeat.
func NewInProcessMonitor(stallTimeout time.Duration) *InProcessMonitor {
	return &InProcessMonitor{
		stallTimeout: stallTimeout,
		beats:        make(map[string]beat),
		now:          time.Now,
	}
}

// ReportHeartbeat records that a session is alive.
func (m *InProcessMonitor) ReportHeartbeat(sessionID string, snapshot ResourceSnapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.beats[sessionID] = beat{at: m.now(), snapshot: snapshot}
}

// IsStalled returns true if the session's last heartbeat is older than
// the stall timeout. A session that never reported is stalled.
func (m *InProcessMonitor) IsStalled(sessionID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.beats[sessionID]
	if !ok {
		return true
	}
	return m.now().Sub(b.at) > m.stallTimeout
}

// LastSnapshot returns the most recent resource snapshot for a
// session, if one exists.
func (m *InProcessMonitor) LastSnapshot(sessionID string) (ResourceSnapshot, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.beats[sessionID]
	return b.snapshot, ok
}

// Forget drops tracking state for an ended session.
func (m *InProcessMonitor) Forget(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.beats, sessionID)
}

var _ Monitor = (*InProcessMonitor)(nil)
