package interfaces

type SchedulerInterface interface {
	Init()
	Stop()
	Restore() error
	Persist() error
}

// Flusher is anything holding buffered state that must reach disk on a timer.
type Flusher interface {
	Flush() error
}
