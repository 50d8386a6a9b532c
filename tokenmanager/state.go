package tokenmanager

type State int32

const (
	StateIdle State = iota
	StateValidating
	StateBuilding
	StateSigning
	StateSubmitting
	StateConfirming
	StateSucceeded
	StateFailed
)

var stateNames = [...]string{
	StateIdle:       "idle",
	StateValidating: "validating",
	StateBuilding:   "building",
	StateSigning:    "signing",
	StateSubmitting: "submitting",
	StateConfirming: "confirming",
	StateSucceeded:  "succeeded",
	StateFailed:     "failed",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}
