// Package agent implements the host metrics collection agent: collectors,
// the bounded sample queue, the transmitter and the orchestrating loop.
package agent

// State describes the agent lifecycle.
//
// Transitions: Starting -> Running after the first successful tick,
// Running -> Draining on a termination signal, Draining -> Stopped once the
// final flush attempt completes regardless of its outcome.
type State int32

const (
	StateStarting State = iota
	StateRunning
	StateDraining
	StateStopped
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

var (
	// RuntimeMetrics is a list of Go runtime metrics to collect.
	//
	// These metrics provide information about memory usage, garbage collection,
	// and other runtime statistics of the agent itself.
	RuntimeMetrics = []string{
		"Alloc",
		"BuckHashSys",
		"Frees",
		"GCSys",
		"HeapAlloc",
		"HeapIdle",
		"HeapInuse",
		"HeapObjects",
		"HeapReleased",
		"HeapSys",
		"LastGC",
		"Lookups",
		"MCacheInuse",
		"MCacheSys",
		"MSpanInuse",
		"MSpanSys",
		"Mallocs",
		"NextGC",
		"NumForcedGC",
		"NumGC",
		"OtherSys",
		"PauseTotalNs",
		"StackInuse",
		"StackSys",
		"Sys",
		"TotalAlloc",
	}
)
