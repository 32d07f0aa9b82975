// Package events forwards synchronizer and checkout events to NATS so other
// processes (analytics, a companion widget) can follow the cart.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/dukerupert/cartcore/internal/cartsync"
	"github.com/dukerupert/cartcore/internal/checkout"
	"github.com/nats-io/nats.go"
)

// Conn is the part of *nats.Conn the publisher needs.
type Conn interface {
	Publish(subj string, data []byte) error
}

// Publisher writes events as JSON to subjects under a common prefix:
// <prefix>.cart.updated, <prefix>.checkout.transition and so on.
type Publisher struct {
	conn   Conn
	prefix string
	logger *slog.Logger
}

// NewPublisher creates a publisher. An empty prefix defaults to "cartcore".
func NewPublisher(conn Conn, prefix string, logger *slog.Logger) *Publisher {
	if prefix == "" {
		prefix = "cartcore"
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Publisher{conn: conn, prefix: prefix, logger: logger}
}

// Connect dials NATS with reconnects enabled.
func Connect(url string, logger *slog.Logger) (*nats.Conn, error) {
	nc, err := nats.Connect(url,
		nats.Name("cartcore"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("nats reconnected", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}
	return nc, nil
}

// Subject returns the full subject for suffix.
func (p *Publisher) Subject(suffix string) string {
	return p.prefix + "." + suffix
}

// PublishCart publishes one synchronizer event.
func (p *Publisher) PublishCart(ev cartsync.Event) error {
	return p.publish(p.Subject(string(ev.Kind)), ev)
}

// PublishCheckout publishes one checkout transition.
func (p *Publisher) PublishCheckout(ev checkout.Event) error {
	return p.publish(p.Subject("checkout.transition"), ev)
}

func (p *Publisher) publish(subject string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal event for %s: %w", subject, err)
	}
	if err := p.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	return nil
}

// Forward drains both event streams into NATS until ctx is done or both
// channels close. Publish failures are logged and the event is dropped.
func (p *Publisher) Forward(ctx context.Context, cart <-chan cartsync.Event, co <-chan checkout.Event) {
	for cart != nil || co != nil {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-cart:
			if !ok {
				cart = nil
				continue
			}
			if err := p.PublishCart(ev); err != nil {
				p.logger.Warn("failed to forward cart event", "kind", string(ev.Kind), "error", err)
			}
		case ev, ok := <-co:
			if !ok {
				co = nil
				continue
			}
			if err := p.PublishCheckout(ev); err != nil {
				p.logger.Warn("failed to forward checkout event", "to", ev.To.String(), "error", err)
			}
		}
	}
}
