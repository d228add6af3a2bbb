package queue

// State is the engine's dispatch state. Exactly one state holds at a time
// and gates what processNext is allowed to do: only Idle and Transferring
// permit picking new work; every other state is waiting for a specific
// asynchronous result.
type State int

const (
	StateIdle State = iota
	StateScanning
	StateCreatingDirectories
	StateCheckingExists
	StateAwaitingConfirmation
	StateTransferring
	StateDeleting
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateScanning:
		return "scanning"
	case StateCreatingDirectories:
		return "creating_directories"
	case StateCheckingExists:
		return "checking_exists"
	case StateAwaitingConfirmation:
		return "awaiting_confirmation"
	case StateTransferring:
		return "transferring"
	case StateDeleting:
		return "deleting"
	default:
		return "unknown"
	}
}
