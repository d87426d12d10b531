package ephemeral

import "time"

// Timer is a scheduled callback that can be cancelled.
type Timer interface {
	Stop() bool
}

// Scheduler runs a callback once after a delay.
type Scheduler interface {
	AfterFunc(delay time.Duration, callback func()) Timer
}

type systemScheduler struct{}

func (systemScheduler) AfterFunc(delay time.Duration, callback func()) Timer {
	return time.AfterFunc(delay, callback)
}

// SystemScheduler schedules callbacks on the runtime timer heap.
func SystemScheduler() Scheduler {
	return systemScheduler{}
}
