package settlement_test

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apppay "github.com/Zhima-Mochi/minishop-checkout/internal/application/payment"
	"github.com/Zhima-Mochi/minishop-checkout/internal/application/settlement"
	"github.com/Zhima-Mochi/minishop-checkout/internal/application/store"
	"github.com/Zhima-Mochi/minishop-checkout/internal/domain/cart"
	"github.com/Zhima-Mochi/minishop-checkout/internal/domain/eventlog"
	"github.com/Zhima-Mochi/minishop-checkout/internal/domain/order"
	domoutbox "github.com/Zhima-Mochi/minishop-checkout/internal/domain/outbox"
	dompay "github.com/Zhima-Mochi/minishop-checkout/internal/domain/payment"
	"github.com/Zhima-Mochi/minishop-checkout/internal/infrastructure/memory"
	"github.com/Zhima-Mochi/minishop-checkout/internal/infrastructure/payment/envelope"
	"github.com/Zhima-Mochi/minishop-checkout/internal/infrastructure/payment/simulated"
)

type seqIDs struct{ n atomic.Int64 }

func (s *seqIDs) NewID() string { return fmt.Sprintf("id-%d", s.n.Add(1)) }

type recordingPublisher struct {
	mu     sync.Mutex
	events []domoutbox.Event
}

func (p *recordingPublisher) Publish(_ context.Context, e domoutbox.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events)
}

type fixture struct {
	store      *memory.Store
	provider   *simulated.Provider
	publisher  *recordingPublisher
	reconciler *settlement.Reconciler
	ref        string
}

// newFixture seeds an order for u1 with a cart and an AWAITING_PAYMENT simulated intent.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	s := memory.NewStore()
	ids := &seqIDs{}
	provider, err := simulated.New("whsec_sim")
	require.NoError(t, err)

	l, err := cart.NewLine("tee", "M", 2, 1200)
	require.NoError(t, err)
	s.SeedCart(cart.Cart{UserID: "u1", Lines: []cart.Line{l}})

	o, err := order.New(order.NewParams{
		ID:       "o1",
		UserID:   "u1",
		Currency: "USD",
		Totals:   order.Totals{SubtotalCents: 2400},
		Items:    []order.Item{{ProductID: "tee", Size: "M", Quantity: 2, UnitPriceCents: 1200}},
	})
	require.NoError(t, err)
	require.NoError(t, s.WithinTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		return tx.Orders().Insert(ctx, o)
	}))

	intent, err := apppay.NewIntentUseCase(s, ids, provider, nil).Execute(context.Background(), apppay.IntentCommand{OrderID: "o1"})
	require.NoError(t, err)

	pub := &recordingPublisher{}
	return &fixture{
		store:      s,
		provider:   provider,
		publisher:  pub,
		reconciler: settlement.NewReconciler(s, ids, provider, pub, nil),
		ref:        intent.PaymentIntentID,
	}
}

func (f *fixture) settle(t *testing.T, outcome dompay.Outcome) *settlement.Outcome {
	t.Helper()
	out, err := f.reconciler.Execute(context.Background(), settlement.Command{
		Provider: simulated.Name, ProviderRef: f.ref, Outcome: outcome,
	})
	require.NoError(t, err)
	return out
}

type snapshot struct {
	order  *order.Order
	record *dompay.Record
	cart   *cart.Cart
	events []eventlog.Entry
}

func (f *fixture) snapshot(t *testing.T) snapshot {
	t.Helper()
	var snap snapshot
	require.NoError(t, f.store.WithinTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		var err error
		if snap.order, err = tx.Orders().Get(ctx, "o1"); err != nil {
			return err
		}
		if snap.record, err = tx.Payments().FindByRef(ctx, simulated.Name, f.ref); err != nil {
			return err
		}
		if snap.cart, err = tx.Carts().Get(ctx, "u1"); err != nil {
			return err
		}
		snap.events, err = tx.Events().List(ctx, "o1")
		return err
	}))
	return snap
}

func countKind(entries []eventlog.Entry, kind eventlog.Kind) int {
	n := 0
	for _, e := range entries {
		if e.Kind == kind {
			n++
		}
	}
	return n
}

func TestSucceededIsAppliedExactlyOnce(t *testing.T) {
	f := newFixture(t)

	first := f.settle(t, dompay.OutcomeSucceeded)
	second := f.settle(t, dompay.OutcomeSucceeded)

	assert.Equal(t, settlement.ResultApplied, first.Result)
	assert.Equal(t, order.StatusPaid, first.OrderStatus)
	assert.Equal(t, settlement.ResultDuplicate, second.Result)

	snap := f.snapshot(t)
	assert.Equal(t, order.StatusPaid, snap.order.Status)
	require.NotNil(t, snap.order.PaidAt)
	assert.Equal(t, dompay.StatusCaptured, snap.record.Status)
	assert.True(t, snap.cart.Empty())
	assert.Equal(t, 1, countKind(snap.events, eventlog.KindPaymentSucceeded))
	assert.Equal(t, 1, f.publisher.count())
	assert.Equal(t, "order.paid", f.publisher.events[0].EventName())
}

func TestFailedThenSucceededRetryPath(t *testing.T) {
	f := newFixture(t)

	failed := f.settle(t, dompay.OutcomeFailed)
	assert.Equal(t, settlement.ResultApplied, failed.Result)
	assert.Equal(t, dompay.StatusFailed, failed.PaymentStatus)

	snap := f.snapshot(t)
	assert.Equal(t, order.StatusAwaitingPayment, snap.order.Status)
	assert.False(t, snap.cart.Empty(), "cart survives a failed payment")
	assert.Equal(t, 1, countKind(snap.events, eventlog.KindPaymentFailed))

	again := f.settle(t, dompay.OutcomeFailed)
	assert.Equal(t, settlement.ResultDuplicate, again.Result)

	ok := f.settle(t, dompay.OutcomeSucceeded)
	assert.Equal(t, settlement.ResultApplied, ok.Result)
	assert.Equal(t, order.StatusPaid, f.snapshot(t).order.Status)
}

func TestFailedAfterCaptureIsIgnored(t *testing.T) {
	f := newFixture(t)
	f.settle(t, dompay.OutcomeSucceeded)

	late := f.settle(t, dompay.OutcomeFailed)
	assert.Equal(t, settlement.ResultDuplicate, late.Result)

	snap := f.snapshot(t)
	assert.Equal(t, order.StatusPaid, snap.order.Status)
	assert.Equal(t, dompay.StatusCaptured, snap.record.Status)
}

func TestUnknownReferenceIsIgnored(t *testing.T) {
	f := newFixture(t)

	out, err := f.reconciler.Execute(context.Background(), settlement.Command{
		Provider: simulated.Name, ProviderRef: "sim_pi_nope", Outcome: dompay.OutcomeSucceeded,
	})
	require.NoError(t, err)
	assert.Equal(t, settlement.ResultIgnored, out.Result)
	assert.Equal(t, order.StatusAwaitingPayment, f.snapshot(t).order.Status)
}

func TestRecordWithoutOrderIsIntegrityError(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.store.WithinTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		return tx.Payments().Insert(ctx, dompay.NewRecord("orphan", "ghost-order", simulated.Name, "sim_pi_ghost", 100, "USD"))
	}))

	_, err := f.reconciler.Execute(context.Background(), settlement.Command{
		Provider: simulated.Name, ProviderRef: "sim_pi_ghost", Outcome: dompay.OutcomeSucceeded,
	})
	assert.ErrorIs(t, err, settlement.ErrOrderMissing)
}

func TestSucceededOnCancelledOrderNeedsAttention(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.store.WithinTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		o, err := tx.Orders().Get(ctx, "o1")
		require.NoError(t, err)
		require.NoError(t, o.Cancel(time.Now()))
		return tx.Orders().UpdateStatus(ctx, o)
	}))

	out := f.settle(t, dompay.OutcomeSucceeded)
	assert.Equal(t, settlement.ResultNeedsAttention, out.Result)

	snap := f.snapshot(t)
	assert.Equal(t, order.StatusCancelled, snap.order.Status)
	assert.Equal(t, dompay.StatusCaptured, snap.record.Status)
	assert.Equal(t, 1, countKind(snap.events, eventlog.KindNeedsAttention))
	assert.Zero(t, f.publisher.count())
}

func TestUnknownOutcomeRejected(t *testing.T) {
	f := newFixture(t)
	_, err := f.reconciler.Execute(context.Background(), settlement.Command{
		Provider: simulated.Name, ProviderRef: f.ref, Outcome: "maybe",
	})
	assert.ErrorIs(t, err, settlement.ErrUnknownOutcome)
}

func TestHandleWebhook(t *testing.T) {
	f := newFixture(t)

	payload, err := envelope.Encode("evt_1", envelope.TypeSucceeded, f.ref, "o1")
	require.NoError(t, err)

	_, err = f.reconciler.HandleWebhook(context.Background(), payload, "t=1,v1=bogus")
	assert.ErrorIs(t, err, apppay.ErrInvalidSignature)
	assert.Equal(t, order.StatusAwaitingPayment, f.snapshot(t).order.Status)

	out, err := f.reconciler.HandleWebhook(context.Background(), payload, f.provider.Sign(payload))
	require.NoError(t, err)
	assert.Equal(t, settlement.ResultApplied, out.Result)

	out, err = f.reconciler.HandleWebhook(context.Background(), payload, f.provider.Sign(payload))
	require.NoError(t, err)
	assert.Equal(t, settlement.ResultDuplicate, out.Result)

	other, err := envelope.Encode("evt_2", "charge.refunded", "ch_1", "o1")
	require.NoError(t, err)
	out, err = f.reconciler.HandleWebhook(context.Background(), other, f.provider.Sign(other))
	require.NoError(t, err)
	assert.Equal(t, settlement.ResultIgnored, out.Result)
}

func TestSettledAmountMismatchNeedsAttention(t *testing.T) {
	tests := []struct {
		name     string
		amount   int64
		currency string
	}{
		{"short amount", 1000, "USD"},
		{"other currency", 2400, "EUR"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)

			out, err := f.reconciler.Execute(context.Background(), settlement.Command{
				Provider: simulated.Name, ProviderRef: f.ref, Outcome: dompay.OutcomeSucceeded,
				AmountCents: tt.amount, Currency: tt.currency,
			})
			require.NoError(t, err)
			assert.Equal(t, settlement.ResultNeedsAttention, out.Result)

			snap := f.snapshot(t)
			assert.Equal(t, order.StatusAwaitingPayment, snap.order.Status)
			assert.Equal(t, dompay.StatusPending, snap.record.Status)
			assert.False(t, snap.cart.Empty())
			assert.Equal(t, 1, countKind(snap.events, eventlog.KindNeedsAttention))
			assert.Zero(t, f.publisher.count())
		})
	}
}

func TestSettledAmountMatchingRecordIsApplied(t *testing.T) {
	f := newFixture(t)

	payload, err := envelope.EncodeObject("evt_1", envelope.TypeSucceeded,
		envelope.Object{ID: f.ref, Amount: 2400, Currency: "usd", Metadata: map[string]string{"orderId": "o1"}})
	require.NoError(t, err)

	out, err := f.reconciler.HandleWebhook(context.Background(), payload, f.provider.Sign(payload))
	require.NoError(t, err)
	assert.Equal(t, settlement.ResultApplied, out.Result)
	assert.Equal(t, order.StatusPaid, f.snapshot(t).order.Status)
}

func TestConcurrentDuplicateDeliveries(t *testing.T) {
	f := newFixture(t)

	var wg sync.WaitGroup
	results := make([]settlement.Result, 8)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := f.reconciler.Execute(context.Background(), settlement.Command{
				Provider: simulated.Name, ProviderRef: f.ref, Outcome: dompay.OutcomeSucceeded,
			})
			if assert.NoError(t, err) {
				results[i] = out.Result
			}
		}()
	}
	wg.Wait()

	applied := 0
	for _, r := range results {
		if r == settlement.ResultApplied {
			applied++
		}
	}
	assert.Equal(t, 1, applied)
	assert.Equal(t, 1, countKind(f.snapshot(t).events, eventlog.KindPaymentSucceeded))
	assert.Equal(t, 1, f.publisher.count())
}
