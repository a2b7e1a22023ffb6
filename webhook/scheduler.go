package webhook

import (
	"sync"
	"time"
)

// Task identifies one attempt of one delivery
type Task struct {
	DeliveryID string
	Attempt    int
}

/* Scheduler is a delay queue of attempts keyed by (delivery, attempt)
 * Scheduling a key again replaces its pending run. Handlers must ignore
 * tasks whose attempt no longer matches the delivery.
 */
type Scheduler interface {
	Schedule(task Task, at time.Time)
	Stop()
}

// TimerScheduler runs each task on its own timer
type TimerScheduler struct {
	mu      sync.Mutex
	timers  map[Task]*time.Timer
	handler func(Task)
	stopped bool
	wg      sync.WaitGroup
}

// NewTimerScheduler creates a scheduler that calls handler when a task is due
func NewTimerScheduler(handler func(Task)) *TimerScheduler {
	return &TimerScheduler{
		timers:  make(map[Task]*time.Timer),
		handler: handler,
	}
}

// Schedule runs task at the given time, immediately if it is in the past
func (s *TimerScheduler) Schedule(task Task, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return
	}
	if t, ok := s.timers[task]; ok && t.Stop() {
		s.wg.Done()
	}

	s.wg.Add(1)
	var timer *time.Timer
	timer = time.AfterFunc(time.Until(at), func() {
		defer s.wg.Done()

		s.mu.Lock()
		if s.timers[task] == timer {
			delete(s.timers, task)
		}
		s.mu.Unlock()

		s.handler(task)
	})
	s.timers[task] = timer
}

// Pending returns the number of tasks waiting for their timer
func (s *TimerScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// Stop cancels every waiting task and waits for running handlers to return
func (s *TimerScheduler) Stop() {
	s.mu.Lock()
	s.stopped = true
	for task, t := range s.timers {
		if t.Stop() {
			s.wg.Done()
		}
		delete(s.timers, task)
	}
	s.mu.Unlock()

	s.wg.Wait()
}
