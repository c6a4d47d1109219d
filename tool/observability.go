package tool

// DispatchObservation captures one dispatched call.
type DispatchObservation struct {
	ToolName   string
	CallID     string
	DurationMS int64
	Success    bool
	ErrorCode  string
}

// Observer receives dispatch events.
type Observer interface {
	ObserveDispatch(observation DispatchObservation)
}

type noopObserver struct{}

func (noopObserver) ObserveDispatch(DispatchObservation) {}
