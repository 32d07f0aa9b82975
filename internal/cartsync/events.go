package cartsync

import (
	"github.com/dukerupert/cartcore/internal/domain"
	"github.com/dukerupert/cartcore/internal/pricing"
)

// EventKind names a synchronizer event. The values double as NATS subject
// suffixes.
type EventKind string

const (
	EventCartUpdated    EventKind = "cart.updated"
	EventCartMerged     EventKind = "cart.merged"
	EventStoreSwitched  EventKind = "cart.store_switched"
	EventSessionChanged EventKind = "session.changed"
)

// Event is emitted on every state change a UI would render.
type Event struct {
	Kind      EventKind          `json:"kind"`
	Mode      Mode               `json:"mode"`
	Cart      *domain.Cart       `json:"cart,omitempty"`
	Breakdown *pricing.Breakdown `json:"breakdown,omitempty"`
	Merge     *MergeReport       `json:"merge,omitempty"`
	StoreID   string             `json:"store_id,omitempty"`
	Seq       uint64             `json:"seq,omitempty"`
}

// Subscribe returns a buffered channel of events. A subscriber that falls
// behind loses events; the synchronizer never blocks on it.
func (s *Synchronizer) Subscribe() <-chan Event {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	ch := make(chan Event, s.eventBuf)
	s.subscribers = append(s.subscribers, ch)
	return ch
}

func (s *Synchronizer) emit(ev Event) {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	for _, ch := range s.subscribers {
		select {
		case ch <- ev:
		default:
			s.logger.Warn("event subscriber full, dropping event", "kind", string(ev.Kind))
		}
	}
}

func (s *Synchronizer) emitCart(cart domain.Cart, seq uint64) {
	b := s.pricer.ForCart(cart)
	s.emit(Event{
		Kind:      EventCartUpdated,
		Mode:      s.Mode(),
		Cart:      &cart,
		Breakdown: &b,
		StoreID:   cart.StoreID,
		Seq:       seq,
	})
}
