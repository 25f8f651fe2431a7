package engine

import "fmt"

// State is a step of the coordinator's run.
type State uint8

const (
	Idle State = iota
	InputsLoaded
	Broadcasting
	Scattering
	Computing
	Gathering
	Assembled
	Persisted
	Failed
)

var stateNames = [...]string{
	Idle:         "idle",
	InputsLoaded: "inputs-loaded",
	Broadcasting: "broadcasting",
	Scattering:   "scattering",
	Computing:    "computing",
	Gathering:    "gathering",
	Assembled:    "assembled",
	Persisted:    "persisted",
	Failed:       "failed",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}

	return fmt.Sprintf("state(%d)", uint8(s))
}

// Terminal reports whether no transition can leave s.
func (s State) Terminal() bool {
	return s == Persisted || s == Failed
}
