package scheduler

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Scheduler fires a callback at a future time on behalf of a delayed send.
// Cancellation by record ID is supported until the trigger fires.
type Scheduler interface {
	Schedule(id uuid.UUID, at time.Time, fire func())
	// Cancel removes the scheduled trigger. Returns false when no trigger is
	// pending, either because it already fired or was never scheduled.
	Cancel(id uuid.UUID) bool
	Stop()
}

// TimerScheduler is an in-process Scheduler backed by time.AfterFunc.
type TimerScheduler struct {
	logger *slog.Logger

	mu     sync.Mutex
	timers map[uuid.UUID]*time.Timer
}

func NewTimerScheduler(logger *slog.Logger) *TimerScheduler {
	return &TimerScheduler{
		logger: logger.With("component", "timer_scheduler"),
		timers: make(map[uuid.UUID]*time.Timer),
	}
}

func (s *TimerScheduler) Schedule(id uuid.UUID, at time.Time, fire func()) {
	delay := time.Until(at)
	if delay < 0 {
		delay = 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Replacing an existing trigger cancels the old one first.
	if old, ok := s.timers[id]; ok {
		old.Stop()
	}

	s.timers[id] = time.AfterFunc(delay, func() {
		s.mu.Lock()
		delete(s.timers, id)
		s.mu.Unlock()
		fire()
	})
	s.logger.Debug("scheduled trigger", "record_id", id, "fire_at", at)
}

func (s *TimerScheduler) Cancel(id uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	timer, ok := s.timers[id]
	if !ok {
		return false
	}
	delete(s.timers, id)
	stopped := timer.Stop()
	s.logger.Debug("cancelled trigger", "record_id", id, "stopped", stopped)
	return stopped
}

// Stop cancels every pending trigger. Used on shutdown.
func (s *TimerScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, timer := range s.timers {
		timer.Stop()
		delete(s.timers, id)
	}
}
