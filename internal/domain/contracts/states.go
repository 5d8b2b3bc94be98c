package contracts

// State del ciclo de vida.
// @Enum draft, pending_signature, active, expired, terminated, voided
type State string

const (
	StateDraft            State = "draft"
	StatePendingSignature State = "pending_signature"
	StateActive           State = "active"
	StateExpired          State = "expired"
	StateTerminated       State = "terminated"
	StateVoided           State = "voided"
)

// transitions es el grafo permitido. voided se alcanza desde cualquier estado no terminal.
var transitions = map[State][]State{
	StateDraft:            {StatePendingSignature, StateActive, StateVoided},
	StatePendingSignature: {StateActive, StateVoided},
	StateActive:           {StateExpired, StateTerminated, StateVoided},
	StateExpired:          {StateTerminated, StateVoided},
	StateTerminated:       nil,
	StateVoided:           nil,
}

func (s State) Valid() bool {
	_, ok := transitions[s]
	return ok
}

func (s State) Terminal() bool {
	return s == StateTerminated || s == StateVoided
}

// CanTransition responde si from -> to es una arista del grafo.
func CanTransition(from, to State) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// requiresSignature: aristas de firma.
func requiresSignature(to State) bool {
	return to == StateActive
}

// requiresReason: aristas que exigen motivo no vacío.
func requiresReason(to State) bool {
	return to == StateVoided || to == StateTerminated
}

// NextStates devuelve los destinos permitidos desde s (vacío si es terminal).
func NextStates(s State) []State {
	return append([]State(nil), transitions[s]...)
}
