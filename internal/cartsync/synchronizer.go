// Package cartsync decides whether the local or the remote cart is the source
// of truth and keeps the two consistent across login and logout.
//
// While Anonymous every mutation goes to the local store. The first
// true edge on the auth signal drains the local cart into the remote one,
// item by item in insertion order, clears local storage and adopts the remote
// cart. Remote responses are applied last-write-wins by request sequence
// number, so a slow response never overwrites a newer one.
package cartsync

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/dukerupert/cartcore/internal/domain"
	"github.com/dukerupert/cartcore/internal/pricing"
	"golang.org/x/sync/singleflight"
)

// Mode is the synchronizer's view of the session.
type Mode int

const (
	Anonymous Mode = iota
	Authenticated
)

func (m Mode) String() string {
	if m == Authenticated {
		return "authenticated"
	}
	return "anonymous"
}

func (m Mode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// LocalStore is the device-local cart. localcart.Store implements it.
type LocalStore interface {
	GetAll(ctx context.Context) []domain.LineItem
	Snapshot(ctx context.Context) domain.Cart
	Upsert(ctx context.Context, storeID string, item domain.LineItem) error
	SetQuantity(ctx context.Context, key domain.ItemKey, quantity int)
	Remove(ctx context.Context, key domain.ItemKey)
	Clear(ctx context.Context)
	SetStore(ctx context.Context, storeID string)
}

// RemoteCart is the session's server cart. remote.CartClient implements it.
type RemoteCart interface {
	Fetch(ctx context.Context) (domain.Cart, error)
	AddItem(ctx context.Context, storeID string, key domain.ItemKey, quantity int) (domain.Cart, error)
	UpdateItem(ctx context.Context, key domain.ItemKey, quantity int) (domain.Cart, error)
	RemoveItem(ctx context.Context, key domain.ItemKey) (domain.Cart, error)
	Clear(ctx context.Context) error
}

// Pricer prices a cart snapshot. pricing.Engine implements it.
type Pricer interface {
	ForCart(cart domain.Cart) pricing.Breakdown
}

// Recorder receives synchronizer metrics. telemetry.Metrics implements it.
type Recorder interface {
	RecordMutation(op, mode string, err error)
	RecordMerge(drained, failed int)
	RecordStaleResponse()
}

// ErrorReporter receives merge failures. telemetry.SentryReporter implements it.
type ErrorReporter interface {
	CaptureError(err error, tags map[string]string)
}

type nopRecorder struct{}

func (nopRecorder) RecordMutation(string, string, error) {}
func (nopRecorder) RecordMerge(int, int)                 {}
func (nopRecorder) RecordStaleResponse()                 {}

// Synchronizer routes cart operations to the active source of truth.
type Synchronizer struct {
	local  LocalStore
	remote RemoteCart
	pricer Pricer

	logger    *slog.Logger
	recorder  Recorder
	reporter  ErrorReporter
	onExpired func()
	eventBuf  int

	// transition is held exclusively by Login and Logout; mutations hold it
	// shared, so they queue behind a drain in progress.
	transition sync.RWMutex

	mu         sync.Mutex
	mode       Mode
	epoch      uint64
	storeID    string
	remoteCart *domain.Cart
	appliedSeq uint64

	seq   atomic.Uint64
	fetch singleflight.Group

	subMu       sync.Mutex
	subscribers []chan Event
}

// Option configures a Synchronizer.
type Option func(*Synchronizer)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Synchronizer) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(s *Synchronizer) {
		if r != nil {
			s.recorder = r
		}
	}
}

// WithReporter sets the error reporter notified of merge failures.
func WithReporter(r ErrorReporter) Option {
	return func(s *Synchronizer) {
		s.reporter = r
	}
}

// WithSessionExpired registers a callback run when the backend rejects the
// session credential, typically auth.Session.SignOut.
func WithSessionExpired(fn func()) Option {
	return func(s *Synchronizer) {
		s.onExpired = fn
	}
}

// WithEventBuffer sets the buffer size of subscriber channels.
func WithEventBuffer(n int) Option {
	return func(s *Synchronizer) {
		if n > 0 {
			s.eventBuf = n
		}
	}
}

// New creates a synchronizer in Anonymous mode for storeID.
func New(local LocalStore, remote RemoteCart, pricer Pricer, storeID string, opts ...Option) *Synchronizer {
	s := &Synchronizer{
		local:    local,
		remote:   remote,
		pricer:   pricer,
		storeID:  storeID,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		recorder: nopRecorder{},
		eventBuf: 16,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Mode returns the current mode.
func (s *Synchronizer) Mode() Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// StoreID returns the store the cart currently belongs to.
func (s *Synchronizer) StoreID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.storeID
}

// Run consumes auth-state values until ctx is done or signal is closed. A
// true value while Anonymous triggers Login; a false value while
// Authenticated triggers Logout. Repeated values are ignored.
func (s *Synchronizer) Run(ctx context.Context, signal <-chan bool) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case authed, ok := <-signal:
			if !ok {
				return nil
			}
			mode := s.Mode()
			switch {
			case authed && mode == Anonymous:
				report, err := s.Login(ctx)
				if err != nil {
					if errors.Is(err, context.Canceled) && ctx.Err() != nil {
						return ctx.Err()
					}
					s.logger.Error("login merge failed", "error", err)
					continue
				}
				s.logger.Info("login merge complete",
					"attempted", report.Attempted,
					"drained", report.Drained,
					"failed", len(report.Failures),
				)
			case !authed && mode == Authenticated:
				s.Logout(ctx)
			}
		}
	}
}

// Login performs the Anonymous to Authenticated transition: drain the local
// cart, clear local storage and adopt the remote cart.
//
// Per-item failures are collected in the report and never fail the login.
// If ctx is canceled mid-drain the synchronizer stays Anonymous and
// ctx.Err() is returned; items already answered have left local storage and
// the next login edge drains the rest. An Unauthorized response aborts the
// drain the same way and also runs the session-expired hook.
func (s *Synchronizer) Login(ctx context.Context) (*MergeReport, error) {
	s.transition.Lock()
	defer s.transition.Unlock()

	if s.Mode() == Authenticated {
		return &MergeReport{}, nil
	}

	report, err := s.drain(ctx)
	s.recorder.RecordMerge(report.Drained, len(report.Failures))
	if err != nil {
		if report.Drained > 0 || len(report.Failures) > 0 {
			s.emitCart(s.localCart(context.WithoutCancel(ctx)), 0)
		}
		if domain.IsCode(err, domain.EUNAUTHORIZED) && s.onExpired != nil {
			s.onExpired()
		}
		return report, err
	}

	s.local.Clear(ctx)

	s.mu.Lock()
	s.mode = Authenticated
	s.epoch++
	s.remoteCart = nil
	epoch := s.epoch
	s.mu.Unlock()

	s.emit(Event{Kind: EventSessionChanged, Mode: Authenticated})
	s.emit(Event{Kind: EventCartMerged, Mode: Authenticated, Merge: report})

	seq := s.seq.Add(1)
	cart, err := s.remote.Fetch(ctx)
	if err != nil {
		s.handleRemoteError(epoch, err)
		return report, err
	}
	cart, _ = s.apply(epoch, seq, cart)
	s.emitCart(cart, seq)

	return report, nil
}

// Logout discards the in-memory remote cart. Nothing is merged back to local
// storage.
func (s *Synchronizer) Logout(ctx context.Context) {
	s.transition.Lock()
	defer s.transition.Unlock()

	s.mu.Lock()
	if s.mode == Anonymous {
		s.mu.Unlock()
		return
	}
	s.mode = Anonymous
	s.epoch++
	s.remoteCart = nil
	s.mu.Unlock()

	s.logger.Info("session ended, cart now local")
	s.emit(Event{Kind: EventSessionChanged, Mode: Anonymous})
	s.emitCart(s.localCart(ctx), 0)
}

// session returns the mode and epoch observed at the start of an operation.
func (s *Synchronizer) session() (Mode, uint64, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode, s.epoch, s.storeID
}

// apply installs cart as the remote cart unless a newer response has already
// been applied or the session has changed. It returns the cart now current.
func (s *Synchronizer) apply(epoch, seq uint64, cart domain.Cart) (domain.Cart, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.epoch != epoch || s.mode != Authenticated {
		s.logger.Debug("discarding response from previous session", "seq", seq)
		return cart, false
	}
	if seq < s.appliedSeq {
		s.logger.Debug("discarding stale remote response", "seq", seq, "applied_seq", s.appliedSeq)
		s.recorder.RecordStaleResponse()
		if s.remoteCart != nil {
			return *s.remoteCart, false
		}
		return cart, false
	}

	s.appliedSeq = seq
	s.remoteCart = &cart
	if cart.StoreID != "" && !cart.IsEmpty() {
		s.storeID = cart.StoreID
	}
	return cart, true
}

// handleRemoteError falls back to Anonymous when the backend rejected the
// session. Other errors leave state untouched: the mutation is dropped.
func (s *Synchronizer) handleRemoteError(epoch uint64, err error) {
	if !domain.IsCode(err, domain.EUNAUTHORIZED) {
		return
	}

	s.mu.Lock()
	if s.epoch != epoch || s.mode != Authenticated {
		s.mu.Unlock()
		return
	}
	s.mode = Anonymous
	s.epoch++
	s.remoteCart = nil
	s.mu.Unlock()

	s.logger.Warn("session rejected by backend, falling back to local cart", "error", err)
	s.emit(Event{Kind: EventSessionChanged, Mode: Anonymous})
	if s.onExpired != nil {
		s.onExpired()
	}
}

// localCart materializes the local cart, tagging it with the current store
// when it has none yet.
func (s *Synchronizer) localCart(ctx context.Context) domain.Cart {
	cart := s.local.Snapshot(ctx)
	if cart.StoreID == "" {
		cart.StoreID = s.StoreID()
	}
	return cart
}
