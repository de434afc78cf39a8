// internal/services/progress_service.go
package services

import (
	"fmt"
	"sync"
	"time"
)

// ProgressUpdate is one progress event pushed to subscribers.
type ProgressUpdate struct {
	Progress int    `json:"progress"` // percentage 0-100
	Message  string `json:"message"`
	Status   string `json:"status"` // running, completed, failed
}

// ProgressTracker tracks one long-running run and fans updates out to
// subscriber channels. Sends never block; a slow subscriber just misses
// intermediate ticks.
type ProgressTracker struct {
	TaskID      string
	Progress    int
	Message     string
	Status      string
	StartTime   time.Time
	UpdateTime  time.Time
	Subscribers map[chan ProgressUpdate]bool
	Done        chan struct{}
	mutex       sync.Mutex
}

// ProgressService manages the trackers of all runs.
type ProgressService struct {
	trackers map[string]*ProgressTracker
	mutex    sync.RWMutex
}

// NewProgressService creates a progress service instance.
func NewProgressService() *ProgressService {
	return &ProgressService{
		trackers: make(map[string]*ProgressTracker),
	}
}

// CreateTracker creates a tracker for a run, or returns the existing one.
func (s *ProgressService) CreateTracker(taskID string) *ProgressTracker {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if tracker, exists := s.trackers[taskID]; exists {
		return tracker
	}

	tracker := &ProgressTracker{
		TaskID:      taskID,
		Progress:    0,
		Message:     "initializing run...",
		Status:      "running",
		StartTime:   time.Now(),
		UpdateTime:  time.Now(),
		Subscribers: make(map[chan ProgressUpdate]bool),
		Done:        make(chan struct{}),
	}

	s.trackers[taskID] = tracker
	return tracker
}

// GetTracker looks up a tracker by run id.
func (s *ProgressService) GetTracker(taskID string) (*ProgressTracker, bool) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	tracker, exists := s.trackers[taskID]
	return tracker, exists
}

// RemoveTracker drops a finished tracker.
func (s *ProgressService) RemoveTracker(taskID string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	delete(s.trackers, taskID)
}

// UpdateProgress advances the run. Progress never moves backwards.
func (t *ProgressTracker) UpdateProgress(progress int, message string) {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	if progress > t.Progress {
		t.Progress = progress
	}
	if message != "" {
		t.Message = message
	}
	t.UpdateTime = time.Now()

	t.broadcast(ProgressUpdate{
		Progress: t.Progress,
		Message:  t.Message,
		Status:   t.Status,
	})
}

// Complete marks the run finished and closes Done.
func (t *ProgressTracker) Complete(message string) {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	t.Progress = 100
	if message != "" {
		t.Message = message
	} else {
		t.Message = "run completed"
	}
	t.Status = "completed"
	t.UpdateTime = time.Now()

	t.broadcast(ProgressUpdate{Progress: 100, Message: t.Message, Status: "completed"})
	close(t.Done)
}

// Fail marks the run failed and closes Done.
func (t *ProgressTracker) Fail(errorMsg string) {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	t.Message = fmt.Sprintf("run failed: %s", errorMsg)
	t.Status = "failed"
	t.UpdateTime = time.Now()

	t.broadcast(ProgressUpdate{Progress: t.Progress, Message: t.Message, Status: "failed"})
	close(t.Done)
}

// Subscribe registers a channel for updates. The current state is sent
// immediately so late subscribers see where the run stands.
func (t *ProgressTracker) Subscribe() chan ProgressUpdate {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	ch := make(chan ProgressUpdate, 16)
	t.Subscribers[ch] = true

	ch <- ProgressUpdate{Progress: t.Progress, Message: t.Message, Status: t.Status}
	return ch
}

// Unsubscribe removes a subscriber channel.
func (t *ProgressTracker) Unsubscribe(ch chan ProgressUpdate) {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	if t.Subscribers[ch] {
		delete(t.Subscribers, ch)
		close(ch)
	}
}

// broadcast sends to every subscriber without blocking. Caller holds the lock.
func (t *ProgressTracker) broadcast(update ProgressUpdate) {
	for subscriber := range t.Subscribers {
		select {
		case subscriber <- update:
		default:
		}
	}
}
