package poller

import "time"

// Handle is a scheduled call that may still be cancelled.
type Handle interface {
	Cancel()
}

// Scheduler runs fn once after d. Tests substitute a manual implementation.
type Scheduler interface {
	AfterFunc(d time.Duration, fn func()) Handle
}

type timerScheduler struct{}

type timerHandle struct {
	t *time.Timer
}

func (h timerHandle) Cancel() {
	h.t.Stop()
}

// SystemScheduler schedules on real timers.
func SystemScheduler() Scheduler {
	return timerScheduler{}
}

func (timerScheduler) AfterFunc(d time.Duration, fn func()) Handle {
	return timerHandle{t: time.AfterFunc(d, fn)}
}
