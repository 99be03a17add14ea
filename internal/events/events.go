// Package events wires order lifecycle events from the commerce
// platform into cache invalidation. A completed order means the
// session's quotes no longer describe an open cart, so every cached
// quote and the session's exemption marker are dropped.
package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/atlanteavila/sovos-tax-plugin/internal/domain"
)

// SubjectOrderCompleted carries order completion events. The payload is
// an OrderEvent.
const SubjectOrderCompleted = "orders.completed"

// OrderEvent is the payload published on order lifecycle subjects.
type OrderEvent struct {
	OrderID   string `json:"order_id"`
	SessionID string `json:"session_id"`
}

// SessionInvalidator drops per-session cached state.
// Implemented by the quote cache.
type SessionInvalidator interface {
	Invalidate(ctx context.Context, sessionID string) error
}

// ExemptionForgetter drops a session's persisted exemption marker.
// Implemented by the exemption resolver.
type ExemptionForgetter interface {
	Forget(ctx context.Context, sessionID string) error
}

// Subscriber listens for order events and invalidates session state.
type Subscriber struct {
	conn    *nats.Conn
	sub     *nats.Subscription
	quotes  SessionInvalidator
	exempt  ExemptionForgetter
	logger  *slog.Logger
	timeout time.Duration
}

// NewSubscriber connects to the NATS server at url and returns an
// unstarted subscriber.
func NewSubscriber(url string, quotes SessionInvalidator, exempt ExemptionForgetter, logger *slog.Logger) (*Subscriber, error) {
	conn, err := nats.Connect(url,
		nats.Name("sovos-tax-plugin"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, domain.WrapError(err, domain.EINTERNAL, "events.connect", "failed to connect to nats")
	}

	return &Subscriber{
		conn:    conn,
		quotes:  quotes,
		exempt:  exempt,
		logger:  logger,
		timeout: 5 * time.Second,
	}, nil
}

// Start subscribes to order completion events. Messages are handled on
// the NATS delivery goroutine; handlers are short kv operations.
func (s *Subscriber) Start() error {
	sub, err := s.conn.Subscribe(SubjectOrderCompleted, func(msg *nats.Msg) {
		s.handle(msg.Data)
	})
	if err != nil {
		return domain.WrapError(err, domain.EINTERNAL, "events.subscribe", "failed to subscribe to "+SubjectOrderCompleted)
	}
	s.sub = sub

	s.logger.Info("subscribed to order events", slog.String("subject", SubjectOrderCompleted))
	return nil
}

// Close drains the subscription and closes the connection.
func (s *Subscriber) Close() {
	if s.sub != nil {
		if err := s.sub.Drain(); err != nil {
			s.logger.Warn("failed to drain subscription", slog.String("error", err.Error()))
		}
	}
	if s.conn != nil {
		s.conn.Close()
	}
}

func (s *Subscriber) handle(data []byte) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	var ev OrderEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		s.logger.Warn("ignoring malformed order event", slog.String("error", err.Error()))
		return
	}
	if ev.SessionID == "" {
		s.logger.Warn("ignoring order event without session", slog.String("order_id", ev.OrderID))
		return
	}

	if err := s.quotes.Invalidate(ctx, ev.SessionID); err != nil {
		s.logger.Error("failed to invalidate session quotes",
			slog.String("session_id", ev.SessionID),
			slog.String("error", err.Error()),
		)
	}
	if err := s.exempt.Forget(ctx, ev.SessionID); err != nil {
		s.logger.Error("failed to drop exemption marker",
			slog.String("session_id", ev.SessionID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.Info("session invalidated after order completion",
		slog.String("order_id", ev.OrderID),
		slog.String("session_id", ev.SessionID),
	)
}
