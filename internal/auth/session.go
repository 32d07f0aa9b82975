// Package auth holds the device session: the bearer credential used by the
// remote clients and the typed auth-state signal the cart synchronizer
// subscribes to.
package auth

import (
	"context"
	"errors"
	"sync"
)

// ErrTokenRequired is returned when signing in with an empty token.
var ErrTokenRequired = errors.New("auth: token is required")

// signalBuffer is the per-subscriber buffer. A slow subscriber only ever
// needs the latest state, so older pending values are dropped.
const signalBuffer = 4

// Session is an in-memory session shared by the remote clients and the
// synchronizer. The zero value is not usable; call NewSession.
type Session struct {
	mu          sync.RWMutex
	token       string
	userID      string
	subscribers []chan bool
}

// NewSession creates an anonymous session.
func NewSession() *Session {
	return &Session{}
}

// SignIn stores the credential and emits true to subscribers if the session
// was anonymous. Refreshing the token of a live session emits nothing.
func (s *Session) SignIn(token, userID string) error {
	if token == "" {
		return ErrTokenRequired
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	wasAuthenticated := s.token != ""
	s.token = token
	s.userID = userID
	if !wasAuthenticated {
		s.publish(true)
	}
	return nil
}

// SignOut drops the credential and emits false if a session existed.
func (s *Session) SignOut() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.token == "" {
		return
	}
	s.token = ""
	s.userID = ""
	s.publish(false)
}

// Token implements remote.TokenProvider. It returns "" when anonymous.
func (s *Session) Token(ctx context.Context) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token, nil
}

// UserID returns the signed-in user, or "" when anonymous.
func (s *Session) UserID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.userID
}

// Authenticated reports whether a credential is present.
func (s *Session) Authenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token != ""
}

// Subscribe returns a channel receiving the current state immediately and
// then every transition. The channel is never closed.
func (s *Session) Subscribe() <-chan bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch := make(chan bool, signalBuffer)
	ch <- s.token != ""
	s.subscribers = append(s.subscribers, ch)
	return ch
}

// publish delivers state without blocking. Callers must hold mu.
func (s *Session) publish(state bool) {
	for _, ch := range s.subscribers {
		select {
		case ch <- state:
		default:
			// Drop the oldest pending value and retry once.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- state:
			default:
			}
		}
	}
}
