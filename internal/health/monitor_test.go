package health

import (
	"sync"
	"testing"
	"time"
)

func TestMonitorNeverReportedIsStalled(t *testing.T) {
	m := NewInProcessMonitor(time.Minute)
	if !m.IsStalled("missing") {
		t.Error("IsStalled = false for unknown session, want true")
	}
}

func TestMonitorFreshHeartbeat(t *testing.T) {
	m := NewInProcessMonitor(time.Minute)
	m.ReportHeartbeat("s1", ResourceSnapshot{CurrentLayer: "functional"})
	if m.IsStalled("s1") {
		t.Error("IsStalled = true right after heartbeat, want false")
	}
	snap, ok := m.LastSnapshot("s1")
	if !ok || snap.CurrentLayer != "functional" {
		t.Errorf("LastSnapshot = %+v, %v, want functional snapshot", snap, ok)
	}
}

func TestMonitorStallsAfterTimeout(t *testing.T) {
	m := NewInProcessMonitor(time.Minute)
	current := time.Now()
	m.now = func() time.Time { return current }

	m.ReportHeartbeat("s1", ResourceSnapshot{})
	current = current.Add(59 * time.Second)
	if m.IsStalled("s1") {
		t.Error("IsStalled = true before timeout, want false")
	}
	current = current.Add(2 * time.Second)
	if !m.IsStalled("s1") {
		t.Error("IsStalled = false after timeout, want true")
	}
}

func TestMonitorForget(t *testing.T) {
	m := NewInProcessMonitor(time.Minute)
	m.ReportHeartbeat("s1", ResourceSnapshot{})
	m.Forget("s1")
	if !m.IsStalled("s1") {
		t.Error("IsStalled = false after Forget, want true")
	}
	if _, ok := m.LastSnapshot("s1"); ok {
		t.Error("LastSnapshot found session after Forget")
	}
}

func TestMonitorConcurrentHeartbeats(t *testing.T) {
	m := NewInProcessMonitor(time.Minute)
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				m.ReportHeartbeat("shared", ResourceSnapshot{})
				m.IsStalled("shared")
			}
		}()
	}
	wg.Wait()
	if m.IsStalled("shared") {
		t.Error("IsStalled = true after concurrent heartbeats, want false")
	}
}
