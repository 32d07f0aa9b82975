package checkout

import "github.com/dukerupert/cartcore/internal/domain"

// Event reports a state transition.
type Event struct {
	From   State               `json:"from"`
	To     State               `json:"to"`
	Err    string              `json:"error,omitempty"`
	Code   string              `json:"code,omitempty"`
	Result *domain.OrderResult `json:"result,omitempty"`
}

// Subscribe returns a buffered channel of transitions. A subscriber that
// falls behind loses events.
func (o *Orchestrator) Subscribe() <-chan Event {
	o.subMu.Lock()
	defer o.subMu.Unlock()

	ch := make(chan Event, o.eventBuf)
	o.subscribers = append(o.subscribers, ch)
	return ch
}

func (o *Orchestrator) emit(ev Event) {
	o.subMu.Lock()
	defer o.subMu.Unlock()

	for _, ch := range o.subscribers {
		select {
		case ch <- ev:
		default:
			o.logger.Warn("checkout subscriber full, dropping event", "to", ev.To.String())
		}
	}
}
