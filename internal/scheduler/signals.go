package scheduler

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// SignalManager watches the .vigil/signals directory for operator
// control files. A "stop" file drains the scheduler; a "pause" file
// suspends admission of new jobs without touching running sessions.
type SignalManager struct {
	signalsDir string

	mu          sync.RWMutex
	stopSignal  bool
	pauseSignal bool

	watcher *fsnotify.Watcher
	done    chan struct{}
}

// NewSignalManager creates a signal manager rooted at the given
// project directory.
func NewSignalManager(projectDir string) (*SignalManager, error) {
	signalsDir := filepath.Join(projectDir, ".vigil", "signals")
	if err := os.MkdirAll(signalsDir, 0755); err != nil {
		return nil, err
	}

	sm := &SignalManager{
		signalsDir: signalsDir,
		done:       make(chan struct{}),
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		// Fall back to stat-based polling in ShouldStop/ShouldPause.
		return sm, nil
	}
	sm.watcher = watcher

	if err := watcher.Add(signalsDir); err != nil {
		watcher.Close()
		sm.watcher = nil
		return sm, nil
	}

	go sm.watchSignals()
	return sm, nil
}

func (sm *SignalManager) watchSignals() {
	for {
		select {
		case <-sm.done:
			return
		case event, ok := <-sm.watcher.Events:
			if !ok {
				return
			}
			created := event.Op&fsnotify.Create != 0 || event.Op&fsnotify.Write != 0
			removed := event.Op&fsnotify.Remove != 0

			sm.mu.Lock()
			switch filepath.Base(event.Name) {
			case "stop":
				if created {
					sm.stopSignal = true
				}
			case "pause":
				if created {
					sm.pauseSignal = true
				}
				if removed {
					sm.pauseSignal = false
				}
			}
			sm.mu.Unlock()
		case <-sm.watcher.Errors:
			// Keep watching.
		}
	}
}

// ShouldStop returns true if a stop signal has been received.
func (sm *SignalManager) ShouldStop() bool {
	if _, err := os.Stat(filepath.Join(sm.signalsDir, "stop")); err == nil {
		sm.mu.Lock()
		sm.stopSignal = true
		sm.mu.Unlock()
	}

	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.stopSignal
}

// ShouldPause returns true while a pause signal file exists.
func (sm *SignalManager) ShouldPause() bool {
	_, err := os.Stat(filepath.Join(sm.signalsDir, "pause"))

	sm.mu.Lock()
	sm.pauseSignal = err == nil
	paused := sm.pauseSignal
	sm.mu.Unlock()
	return paused
}

// SendStop creates a stop signal file.
func (sm *SignalManager) SendStop() error {
	path := filepath.Join(sm.signalsDir, "stop")
	return os.WriteFile(path, []byte(time.Now().Format(time.RFC3339)), 0644)
}

// SendPause creates a pause signal file.
func (sm *SignalManager) SendPause() error {
	path := filepath.Join(sm.signalsDir, "pause")
	return os.WriteFile(path, []byte(time.Now().Format(time.RFC3339)), 0644)
}

// Resume removes the pause signal file.
func (sm *SignalManager) Resume() error {
	sm.mu.Lock()
	sm.pauseSignal = false
	sm.mu.Unlock()

	err := os.Remove(filepath.Join(sm.signalsDir, "pause"))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// ClearSignals removes all signal files and resets signal state.
func (sm *SignalManager) ClearSignals() {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	sm.stopSignal = false
	sm.pauseSignal = false

	os.Remove(filepath.Join(sm.signalsDir, "stop"))
	os.Remove(filepath.Join(sm.signalsDir, "pause"))
}

// Close shuts down the signal manager.
func (sm *SignalManager) Close() {
	close(sm.done)
	if sm.watcher != nil {
		sm.watcher.Close()
	}
}
