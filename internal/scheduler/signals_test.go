package scheduler

import (
	"testing"
)

func TestSignalManagerStop(t *testing.T) {
	sm, err := NewSignalManager(t.TempDir())
	if err != nil {
		t.Fatalf("NewSignalManager failed: %v", err)
	}
	defer sm.Close()

	if sm.ShouldStop() {
		t.Error("ShouldStop = true with no signal")
	}
	if err := sm.SendStop(); err != nil {
		t.Fatalf("SendStop failed: %v", err)
	}
	if !sm.ShouldStop() {
		t.Error("ShouldStop = false after SendStop")
	}

	sm.ClearSignals()
	if sm.ShouldStop() {
		t.Error("ShouldStop = true after ClearSignals")
	}
}

func TestSignalManagerPauseResume(t *testing.T) {
	sm, err := NewSignalManager(t.TempDir())
	if err != nil {
		t.Fatalf("NewSignalManager failed: %v", err)
	}
	defer sm.Close()

	if sm.ShouldPause() {
		t.Error("ShouldPause = true with no signal")
	}
	if err := sm.SendPause(); err != nil {
		t.Fatalf("SendPause failed: %v", err)
	}
	if !sm.ShouldPause() {
		t.Error("ShouldPause = false after SendPause")
	}

	if err := sm.Resume(); err != nil {
		t.Fatalf("Resume failed: %v", err)
	}
	if sm.ShouldPause() {
		t.Error("ShouldPause = true after Resume")
	}

	// Resume is idempotent.
	if err := sm.Resume(); err != nil {
		t.Errorf("second Resume failed: %v", err)
	}
}
