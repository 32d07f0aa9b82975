// Package localcart implements the device-local cart used while no session
// exists.
//
// The local cart is a convenience cache, not a system of record: persistence
// errors are logged and swallowed, a missing or unreadable blob reads as an
// empty cart, and every read is derived from the stored blob so Count and
// Total can never drift from GetAll.
package localcart

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/dukerupert/cartcore/internal/domain"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// envelope is the persisted form of the local cart.
type envelope struct {
	ID        string            `json:"id"`
	StoreID   string            `json:"store_id"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
	Items     []domain.LineItem `json:"items"`
}

func (e *envelope) index(key domain.ItemKey) int {
	for i, li := range e.Items {
		if li.Key() == key {
			return i
		}
	}
	return -1
}

// Store is the local cart over a Backend. Every mutation is a single
// Backend.Update, so Stores sharing the same storage location serialize
// their read-modify-writes.
type Store struct {
	backend Backend
	logger  *slog.Logger
	now     func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger for swallowed persistence errors.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock overrides time.Now for created/updated timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// New creates a Store over backend.
func New(backend Backend, opts ...Option) *Store {
	s := &Store{
		backend: backend,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GetAll returns the stored line items in insertion order. It never fails.
func (s *Store) GetAll(ctx context.Context) []domain.LineItem {
	return s.load(ctx).Items
}

// Snapshot materializes the local cart. OwnerID is always empty.
func (s *Store) Snapshot(ctx context.Context) domain.Cart {
	env := s.load(ctx)
	return domain.Cart{
		ID:        env.ID,
		StoreID:   env.StoreID,
		Items:     env.Items,
		CreatedAt: env.CreatedAt,
		UpdatedAt: env.UpdatedAt,
		Discount:  decimal.Zero,
	}
}

// Upsert adds item to the cart, incrementing the quantity of an existing line
// with the same key. The cart is created lazily on the first upsert and
// adopts storeID; a non-empty cart for another store is rejected.
func (s *Store) Upsert(ctx context.Context, storeID string, item domain.LineItem) error {
	if err := item.Validate(); err != nil {
		return err
	}

	return s.mutate(ctx, "upsert", func(env *envelope) (bool, error) {
		if len(env.Items) > 0 && env.StoreID != "" && storeID != "" && env.StoreID != storeID {
			return false, domain.ErrStoreMismatch
		}

		now := s.now()
		if env.ID == "" {
			env.ID = uuid.NewString()
			env.CreatedAt = now
		}
		if storeID != "" {
			env.StoreID = storeID
		}

		if i := env.index(item.Key()); i >= 0 {
			env.Items[i].Quantity += item.Quantity
		} else {
			env.Items = append(env.Items, item)
		}
		env.UpdatedAt = now
		return true, nil
	})
}

// SetQuantity replaces the quantity of the line with key. A quantity of zero
// or less removes the line; an absent key is a no-op.
func (s *Store) SetQuantity(ctx context.Context, key domain.ItemKey, quantity int) {
	_ = s.mutate(ctx, "set_quantity", func(env *envelope) (bool, error) {
		i := env.index(key)
		if i < 0 {
			return false, nil
		}
		if quantity <= 0 {
			env.Items = append(env.Items[:i], env.Items[i+1:]...)
		} else {
			env.Items[i].Quantity = quantity
		}
		env.UpdatedAt = s.now()
		return true, nil
	})
}

// Remove deletes the line with key. Removing an absent key is a no-op.
func (s *Store) Remove(ctx context.Context, key domain.ItemKey) {
	s.SetQuantity(ctx, key, 0)
}

// Clear empties the cart. It is idempotent.
func (s *Store) Clear(ctx context.Context) {
	if err := s.backend.Delete(ctx); err != nil {
		s.logger.Warn("local cart clear failed", "error", err)
	}
}

// SetStore empties the cart and tags it with storeID.
func (s *Store) SetStore(ctx context.Context, storeID string) {
	_ = s.mutate(ctx, "set_store", func(env *envelope) (bool, error) {
		now := s.now()
		*env = envelope{
			ID:        uuid.NewString(),
			StoreID:   storeID,
			CreatedAt: now,
			UpdatedAt: now,
		}
		return true, nil
	})
}

// Count returns the total quantity of all lines (badge count).
func (s *Store) Count(ctx context.Context) int {
	n := 0
	for _, li := range s.GetAll(ctx) {
		n += li.Quantity
	}
	return n
}

// Total returns the sum of line totals.
func (s *Store) Total(ctx context.Context) decimal.Decimal {
	sum := decimal.Zero
	for _, li := range s.GetAll(ctx) {
		sum = sum.Add(li.LineTotal())
	}
	return sum
}

// load reads and decodes the blob. Any failure yields an empty envelope.
func (s *Store) load(ctx context.Context) *envelope {
	data, err := s.backend.Load(ctx)
	if err != nil {
		s.logger.Warn("local cart load failed, treating as empty", "error", err)
		return &envelope{}
	}
	return s.decode(data)
}

func (s *Store) decode(data []byte) *envelope {
	if len(data) == 0 {
		return &envelope{}
	}
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		s.logger.Warn("local cart corrupt, treating as empty", "error", err)
		return &envelope{}
	}
	return &env
}

// mutate runs fn against the stored envelope inside one Backend.Update. fn
// reports whether it changed env. An error from fn is returned to the caller;
// persistence failures are logged and swallowed.
func (s *Store) mutate(ctx context.Context, op string, fn func(env *envelope) (bool, error)) error {
	var fnErr error
	err := s.backend.Update(ctx, func(current []byte) ([]byte, error) {
		env := s.decode(current)
		changed, err := fn(env)
		fnErr = err
		if err != nil || !changed {
			return nil, err
		}
		data, err := json.Marshal(env)
		if err != nil {
			return nil, fmt.Errorf("encode local cart: %w", err)
		}
		return data, nil
	})
	if fnErr != nil {
		return fnErr
	}
	if err != nil {
		s.logger.Warn("local cart save failed", "op", op, "error", err)
	}
	return nil
}
