package verification

// State is a step of the verification state machine.
type State string

const (
	StateIdle             State = "idle"
	StateAwaitingCallback State = "awaiting_callback"
	StateExchangingCode   State = "exchanging_code"
	StateGeneratingProof  State = "generating_proof"
	StateSubmittingProof  State = "submitting_proof"
	StateSucceeded        State = "succeeded"
	StateFailed           State = "failed"
)

// Terminal reports whether no further transition is allowed.
func (s State) Terminal() bool {
	return s == StateSucceeded || s == StateFailed
}

var forward = map[State]State{
	StateIdle:             StateAwaitingCallback,
	StateAwaitingCallback: StateExchangingCode,
	StateExchangingCode:   StateGeneratingProof,
	StateGeneratingProof:  StateSubmittingProof,
	StateSubmittingProof:  StateSucceeded,
}

// CanTransition reports whether from -> to is a legal move.
func CanTransition(from, to State) bool {
	if from.Terminal() {
		return false
	}
	if to == StateFailed {
		return true
	}
	return forward[from] == to
}
