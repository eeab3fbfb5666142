package engine

// LoadState is the lifecycle state of an engine registration.
type LoadState int

const (
	// Unloaded - no load has been requested.
	Unloaded LoadState = iota

	// Loading - the loader is running; keys are queued.
	Loading

	// Ready - the engine is initialized and receives keys.
	Ready

	// Failed - loading or Init failed; keys are rejected.
	Failed
)

func (s LoadState) String() string {
	switch s {
	case Unloaded:
		return "unloaded"
	case Loading:
		return "loading"
	case Ready:
		return "ready"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Accepts reports whether keys routed to an engine in this state are delivered
// now or later instead of rejected.
func (s LoadState) Accepts() bool {
	return s == Loading || s == Ready
}
