package download

// State is a phase of the download step.
type State int

const (
	StateIdle State = iota
	StateProbing
	StateSkipped
	StateResolving
	StateFetching
	StateExtracting
	StateDone
	StateFailed
)

var stateNames = [...]string{
	StateIdle:       "idle",
	StateProbing:    "probing",
	StateSkipped:    "skipped",
	StateResolving:  "resolving",
	StateFetching:   "fetching",
	StateExtracting: "extracting",
	StateDone:       "done",
	StateFailed:     "failed",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}
