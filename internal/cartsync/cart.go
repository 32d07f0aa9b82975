package cartsync

import (
	"context"

	"github.com/dukerupert/cartcore/internal/domain"
	"github.com/dukerupert/cartcore/internal/pricing"
)

// remoteCall is one remote mutation returning the server's cart.
type remoteCall func(ctx context.Context, storeID string) (domain.Cart, error)

// mutate routes a mutation to the active source of truth and returns the
// resulting cart. Local mutations re-read the store; remote mutations apply
// the server's response last-write-wins.
func (s *Synchronizer) mutate(ctx context.Context, op string, local func(storeID string) error, remote remoteCall) (domain.Cart, error) {
	s.transition.RLock()
	defer s.transition.RUnlock()

	mode, epoch, storeID := s.session()

	if mode == Anonymous {
		if err := local(storeID); err != nil {
			s.recorder.RecordMutation(op, mode.String(), err)
			return domain.Cart{}, err
		}
		cart := s.localCart(ctx)
		s.recorder.RecordMutation(op, mode.String(), nil)
		s.emitCart(cart, 0)
		return cart, nil
	}

	seq := s.seq.Add(1)
	cart, err := remote(ctx, storeID)
	s.recorder.RecordMutation(op, mode.String(), err)
	if err != nil {
		s.handleRemoteError(epoch, err)
		return domain.Cart{}, err
	}

	cart, applied := s.apply(epoch, seq, cart)
	if applied {
		s.emitCart(cart, seq)
	}
	return cart, nil
}

// AddItem adds item, incrementing the quantity of an existing line with the
// same key.
func (s *Synchronizer) AddItem(ctx context.Context, item domain.LineItem) (domain.Cart, error) {
	if err := item.Validate(); err != nil {
		return domain.Cart{}, err
	}
	return s.mutate(ctx, "add",
		func(storeID string) error {
			return s.local.Upsert(ctx, storeID, item)
		},
		func(ctx context.Context, storeID string) (domain.Cart, error) {
			return s.remote.AddItem(ctx, storeID, item.Key(), item.Quantity)
		},
	)
}

// UpdateQuantity sets the quantity of the keyed line. Zero or less removes it.
func (s *Synchronizer) UpdateQuantity(ctx context.Context, key domain.ItemKey, quantity int) (domain.Cart, error) {
	if quantity <= 0 {
		return s.RemoveItem(ctx, key)
	}
	return s.mutate(ctx, "update",
		func(string) error {
			s.local.SetQuantity(ctx, key, quantity)
			return nil
		},
		func(ctx context.Context, _ string) (domain.Cart, error) {
			return s.remote.UpdateItem(ctx, key, quantity)
		},
	)
}

// RemoveItem deletes the keyed line. Removing an absent key is not an error
// locally; remotely the server decides.
func (s *Synchronizer) RemoveItem(ctx context.Context, key domain.ItemKey) (domain.Cart, error) {
	return s.mutate(ctx, "remove",
		func(string) error {
			s.local.Remove(ctx, key)
			return nil
		},
		func(ctx context.Context, _ string) (domain.Cart, error) {
			return s.remote.RemoveItem(ctx, key)
		},
	)
}

// Clear empties the authoritative cart.
func (s *Synchronizer) Clear(ctx context.Context) error {
	_, err := s.mutate(ctx, "clear",
		func(string) error {
			s.local.Clear(ctx)
			return nil
		},
		func(ctx context.Context, storeID string) (domain.Cart, error) {
			if err := s.remote.Clear(ctx); err != nil {
				return domain.Cart{}, err
			}
			return s.emptyRemoteCart(storeID), nil
		},
	)
	return err
}

// emptyRemoteCart is the remote cart as it stands after a successful clear.
func (s *Synchronizer) emptyRemoteCart(storeID string) domain.Cart {
	s.mu.Lock()
	defer s.mu.Unlock()

	cart := domain.Cart{StoreID: storeID}
	if s.remoteCart != nil {
		cart.ID = s.remoteCart.ID
		cart.OwnerID = s.remoteCart.OwnerID
		cart.CreatedAt = s.remoteCart.CreatedAt
	}
	return cart
}

// CurrentCart returns the authoritative cart. While Authenticated it always
// re-fetches; concurrent callers share a single request.
func (s *Synchronizer) CurrentCart(ctx context.Context) (domain.Cart, error) {
	s.transition.RLock()
	defer s.transition.RUnlock()

	return s.current(ctx)
}

// current is CurrentCart without the transition lock. Callers must hold it.
func (s *Synchronizer) current(ctx context.Context) (domain.Cart, error) {
	mode, epoch, _ := s.session()
	if mode == Anonymous {
		return s.localCart(ctx), nil
	}

	// The shared fetch is detached from the first caller's cancellation;
	// each caller stops waiting when its own ctx is done.
	fetchCtx := context.WithoutCancel(ctx)
	ch := s.fetch.DoChan("fetch", func() (any, error) {
		seq := s.seq.Add(1)
		cart, err := s.remote.Fetch(fetchCtx)
		if err != nil {
			return domain.Cart{}, err
		}
		cart, _ = s.apply(epoch, seq, cart)
		return cart, nil
	})

	select {
	case <-ctx.Done():
		return domain.Cart{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			s.handleRemoteError(epoch, res.Err)
			return domain.Cart{}, res.Err
		}
		return res.Val.(domain.Cart), nil
	}
}

// Totals returns the current cart with its pricing breakdown.
func (s *Synchronizer) Totals(ctx context.Context) (domain.Cart, pricing.Breakdown, error) {
	cart, err := s.CurrentCart(ctx)
	if err != nil {
		return domain.Cart{}, pricing.Breakdown{}, err
	}
	return cart, s.pricer.ForCart(cart), nil
}

// SwitchStore moves the cart to storeID. Because every line of a non-empty
// cart must belong to one store, switching away from a non-empty cart clears
// it; that data loss only happens when confirmed is true, otherwise
// domain.ErrStoreSwitchUnconfirmed is returned and nothing changes.
func (s *Synchronizer) SwitchStore(ctx context.Context, storeID string, confirmed bool) error {
	if storeID == "" {
		return domain.ErrStoreRequired
	}

	s.transition.RLock()
	defer s.transition.RUnlock()

	mode, epoch, current := s.session()
	if storeID == current {
		return nil
	}

	cart, err := s.current(ctx)
	if err != nil {
		return err
	}

	if !cart.IsEmpty() && cart.StoreID != storeID {
		if !confirmed {
			return domain.ErrStoreSwitchUnconfirmed
		}
		s.logger.Warn("store switch clearing cart",
			"from_store", current,
			"to_store", storeID,
			"items", len(cart.Items),
			"mode", mode.String(),
		)
	}

	if mode == Anonymous {
		s.local.SetStore(ctx, storeID)
	} else if !cart.IsEmpty() {
		seq := s.seq.Add(1)
		if err := s.remote.Clear(ctx); err != nil {
			s.handleRemoteError(epoch, err)
			return err
		}
		s.apply(epoch, seq, s.emptyRemoteCart(storeID))
	}

	s.mu.Lock()
	s.storeID = storeID
	s.mu.Unlock()

	s.logger.Info("store switched", "store_id", storeID)
	s.emit(Event{Kind: EventStoreSwitched, Mode: mode, StoreID: storeID})

	cart, err = s.current(ctx)
	if err != nil {
		return err
	}
	s.emitCart(cart, 0)
	return nil
}
