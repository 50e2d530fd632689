package events

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"banking-core/internal/domain"
	"banking-core/internal/store"
	"banking-core/internal/store/memory"
)

func TestNewEventCanonicalForm(t *testing.T) {
	now := time.Now().UTC()
	destID := uuid.MustParse("00000000-0000-0000-0000-000000000002")
	tr := domain.Transaction{
		ID:                   uuid.MustParse("00000000-0000-0000-0000-000000000001"),
		Type:                 domain.TypeTransfer,
		Status:               domain.TxCompleted,
		Amount:               decimal.RequireFromString("25.50"),
		AccountID:            uuid.MustParse("00000000-0000-0000-0000-000000000003"),
		DestinationAccountID: &destID,
		Reference:            "TRX-ABCD1234",
	}

	ev, err := TransactionCompleted(tr, "MXN", "corr-1", now)
	require.NoError(t, err)

	assert.Equal(t, domain.EventTransactionCompleted, ev.Type)
	assert.Equal(t, tr.ID, ev.AggregateID)
	assert.Equal(t, domain.EventPending, ev.Status)

	// The canonical form is deterministic: rebuilding the same payload
	// yields byte-identical JCS output.
	ev2, err := TransactionCompleted(tr, "MXN", "corr-1", now)
	require.NoError(t, err)
	assert.Equal(t, ev.Canonical, ev2.Canonical)
	assert.JSONEq(t, string(ev.Payload), ev.Canonical)
	assert.Contains(t, ev.Canonical, `"amount":"25.50"`)
}

type fakeSender struct {
	mu       sync.Mutex
	failures int
	sent     []uuid.UUID
}

func (f *fakeSender) Send(ctx context.Context, e domain.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failures > 0 {
		f.failures--
		return errors.New("downstream unavailable")
	}
	f.sent = append(f.sent, e.ID)
	return nil
}

func appendEvent(t *testing.T, st *memory.Store, now time.Time) domain.Event {
	t.Helper()
	ev, err := New(domain.EventTransactionCompleted, uuid.New(), "corr",
		map[string]string{"k": "v"}, now)
	require.NoError(t, err)
	require.NoError(t, st.Atomic(context.Background(), func(tx store.Tx) error {
		return tx.AppendEvent(context.Background(), ev)
	}))
	return ev
}

func TestDispatcherDelivers(t *testing.T) {
	st := memory.New()
	now := time.Now().UTC()
	ev := appendEvent(t, st, now)

	sender := &fakeSender{}
	d := NewDispatcher(st, sender, zap.NewNop(), time.Second)
	d.drain(context.Background())

	require.Len(t, sender.sent, 1)
	assert.Equal(t, ev.ID, sender.sent[0])

	// Delivered events are not claimed again.
	d.drain(context.Background())
	assert.Len(t, sender.sent, 1)
}

func TestDispatcherRetriesThenParksAsFailed(t *testing.T) {
	st := memory.New()
	ctx := context.Background()
	appendEvent(t, st, time.Now().UTC())

	sender := &fakeSender{failures: maxAttempts + 1}
	d := NewDispatcher(st, sender, zap.NewNop(), time.Second)

	// Each drain claims the event once it is due again; simulate the passage
	// of time by marking and re-claiming until attempts run out.
	for i := 0; i < maxAttempts; i++ {
		claimed, err := st.ClaimPendingEvents(ctx, time.Now().UTC().Add(time.Duration(i+1)*time.Hour), 10)
		require.NoError(t, err)
		if len(claimed) == 0 {
			break
		}
		d.deliver(ctx, claimed[0])
	}

	// Delivery never succeeded and the event is parked, not retried forever.
	assert.Empty(t, sender.sent)
	claimed, err := st.ClaimPendingEvents(ctx, time.Now().UTC().Add(100*time.Hour), 10)
	require.NoError(t, err)
	assert.Empty(t, claimed, "terminal FAILED event must not be claimable")
}
