package health

// Observation captures one probe.
type Observation struct {
	Program             string
	State               State
	PreviousState       State
	ConsecutiveFailures int
	DurationMS          int64
}

// Observer receives probe events.
type Observer interface {
	ObserveHealth(observation Observation)
}

type noopObserver struct{}

func (noopObserver) ObserveHealth(Observation) {}
