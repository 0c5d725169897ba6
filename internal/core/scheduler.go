package core

import (
	"sync"
	"time"
)

// TimerScheduler backs auto-completion with one-shot timers keyed by job id.
// Timers live only in this process; a restart loses them, and the jobs they
// covered stay in printing until an admin acts (no recovery path is
// attempted).
type TimerScheduler struct {
	mu     sync.Mutex
	timers map[string]*time.Timer
}

func NewTimerScheduler() *TimerScheduler {
	return &TimerScheduler{timers: make(map[string]*time.Timer)}
}

func (s *TimerScheduler) Schedule(jobID string, delay time.Duration, fire func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t, ok := s.timers[jobID]; ok {
		t.Stop()
	}
	s.timers[jobID] = time.AfterFunc(delay, func() {
		s.mu.Lock()
		delete(s.timers, jobID)
		s.mu.Unlock()
		fire()
	})
}

func (s *TimerScheduler) Cancel(jobID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t, ok := s.timers[jobID]; ok {
		t.Stop()
		delete(s.timers, jobID)
	}
}
