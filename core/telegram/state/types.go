package state

// State identifies a finite-state-machine step used in conversations.
type State string

// StateIdle indicates there is no active conversation with the user.
const StateIdle State = "idle"

// Active reports whether s is a step other than idle. The zero value is idle too.
func (s State) Active() bool { return s != StateIdle && s != "" }

func (s State) String() string {
	if !s.Active() {
		return string(StateIdle)
	}
	return string(s)
}
