package checkout

// State is a checkout orchestrator state.
type State int

const (
	CollectingAddress State = iota
	SelectingPayment
	Submitting
	Succeeded
	Failed
)

func (s State) String() string {
	switch s {
	case CollectingAddress:
		return "collecting_address"
	case SelectingPayment:
		return "selecting_payment"
	case Submitting:
		return "submitting"
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Terminal reports whether s ends a checkout attempt.
func (s State) Terminal() bool {
	return s == Succeeded || s == Failed
}
