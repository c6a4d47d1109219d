package executor

// Observation captures one subprocess run.
type Observation struct {
	Command    string
	Status     Status
	ExitCode   int
	DurationMS int64
	Truncated  bool
}

// Observer receives execution events.
type Observer interface {
	ObserveExec(observation Observation)
}

type noopObserver struct{}

func (noopObserver) ObserveExec(Observation) {}
