package payout

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/batchauction/auctiond/internal/config"
	"github.com/batchauction/auctiond/internal/domain"
)

type memOutbox struct {
	rows map[string]domain.Payout
	sent map[string]bool
}

func newMemOutbox(rows ...domain.Payout) *memOutbox {
	m := &memOutbox{rows: map[string]domain.Payout{}, sent: map[string]bool{}}
	for _, p := range rows {
		m.rows[p.ID] = p
	}
	return m
}

func (m *memOutbox) Enqueue(_ context.Context, p domain.Payout) error {
	m.rows[p.ID] = p
	return nil
}

func (m *memOutbox) ListPending(_ context.Context, limit int) ([]domain.Payout, error) {
	var out []domain.Payout
	for id, p := range m.rows {
		if !m.sent[id] {
			out = append(out, p)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *memOutbox) MarkSent(_ context.Context, id string, _ time.Time) error {
	if m.sent[id] {
		return domain.ErrNotFound
	}
	m.sent[id] = true
	return nil
}

type recordingSender struct {
	failFor map[string]bool
	paid    []string
}

func (r *recordingSender) Pay(_ context.Context, to string, _ uint64, _ string) error {
	if r.failFor[to] {
		return errors.New("rail unavailable")
	}
	r.paid = append(r.paid, to)
	return nil
}

func TestDispatchOnceSendsAndMarks(t *testing.T) {
	outbox := newMemOutbox(
		domain.Payout{ID: "p1", Account: "alice.test", Amount: 10, Reason: "claim_refund"},
		domain.Payout{ID: "p2", Account: "bob.test", Amount: 30, Reason: "loser_refund"},
	)
	sender := &recordingSender{}
	d := NewDispatcher(outbox, sender, config.Defaults().Payout, slog.New(slog.DiscardHandler))

	require.NoError(t, d.dispatchOnce(context.Background()))

	assert.Len(t, sender.paid, 2)
	assert.True(t, outbox.sent["p1"])
	assert.True(t, outbox.sent["p2"])
}

func TestDispatchOnceRetriesFailedSends(t *testing.T) {
	outbox := newMemOutbox(
		domain.Payout{ID: "p1", Account: "alice.test", Amount: 10, Reason: "claim_refund"},
		domain.Payout{ID: "p2", Account: "bob.test", Amount: 30, Reason: "loser_refund"},
	)
	sender := &recordingSender{failFor: map[string]bool{"bob.test": true}}
	d := NewDispatcher(outbox, sender, config.Defaults().Payout, slog.New(slog.DiscardHandler))

	require.NoError(t, d.dispatchOnce(context.Background()))
	assert.True(t, outbox.sent["p1"])
	assert.False(t, outbox.sent["p2"])

	// The failed row is picked up again once the rail recovers.
	sender.failFor = nil
	require.NoError(t, d.dispatchOnce(context.Background()))
	assert.True(t, outbox.sent["p2"])
}
