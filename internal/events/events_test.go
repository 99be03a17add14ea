package events

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type mockInvalidator struct {
	sessions []string
	err      error
}

func (m *mockInvalidator) Invalidate(ctx context.Context, sessionID string) error {
	m.sessions = append(m.sessions, sessionID)
	return m.err
}

type mockForgetter struct {
	sessions []string
}

func (m *mockForgetter) Forget(ctx context.Context, sessionID string) error {
	m.sessions = append(m.sessions, sessionID)
	return nil
}

func newTestSubscriber(quotes *mockInvalidator, exempt *mockForgetter) *Subscriber {
	return &Subscriber{
		quotes:  quotes,
		exempt:  exempt,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		timeout: time.Second,
	}
}

func TestSubscriber_HandleOrderCompleted(t *testing.T) {
	quotes := &mockInvalidator{}
	exempt := &mockForgetter{}
	s := newTestSubscriber(quotes, exempt)

	s.handle([]byte(`{"order_id":"1001","session_id":"sess-1"}`))

	assert.Equal(t, []string{"sess-1"}, quotes.sessions)
	assert.Equal(t, []string{"sess-1"}, exempt.sessions)
}

func TestSubscriber_IgnoresMalformedPayload(t *testing.T) {
	quotes := &mockInvalidator{}
	exempt := &mockForgetter{}
	s := newTestSubscriber(quotes, exempt)

	s.handle([]byte(`{"order_id":`))
	s.handle([]byte(`{"order_id":"1001"}`))

	assert.Empty(t, quotes.sessions)
	assert.Empty(t, exempt.sessions)
}

func TestSubscriber_ExemptionDroppedEvenWhenQuoteInvalidationFails(t *testing.T) {
	quotes := &mockInvalidator{err: assert.AnError}
	exempt := &mockForgetter{}
	s := newTestSubscriber(quotes, exempt)

	s.handle([]byte(`{"order_id":"1001","session_id":"sess-1"}`))

	assert.Equal(t, []string{"sess-1"}, exempt.sessions)
}
