package payment

// State is a step of the payment reservation protocol. The happy path is
// linear; CANCELLED is reachable from every non-terminal state.
type State string

const (
	StateFormEntry     State = "FORM_ENTRY"
	StateOrderCreated  State = "ORDER_CREATED"
	StateCardSubmitted State = "CARD_SUBMITTED"
	StateCodeSent      State = "CODE_SENT"
	StateVerified      State = "VERIFIED"
	StateCancelled     State = "CANCELLED"
)

var nextStates = map[State][]State{
	StateFormEntry:     {StateOrderCreated, StateCancelled},
	StateOrderCreated:  {StateCardSubmitted, StateCancelled},
	StateCardSubmitted: {StateCodeSent, StateCancelled},
	StateCodeSent:      {StateVerified, StateCancelled},
	StateVerified:      {},
	StateCancelled:     {},
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StateVerified || s == StateCancelled
}

func (s State) canTransition(to State) bool {
	for _, n := range nextStates[s] {
		if n == to {
			return true
		}
	}
	return false
}
