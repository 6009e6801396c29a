package order

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Zhima-Mochi/minishop-checkout/internal/application/store"
	"github.com/Zhima-Mochi/minishop-checkout/internal/domain/eventlog"
	"github.com/Zhima-Mochi/minishop-checkout/internal/domain/inventory"
	domain "github.com/Zhima-Mochi/minishop-checkout/internal/domain/order"
	"github.com/Zhima-Mochi/minishop-checkout/internal/infrastructure/memory"
)

type seqIDs struct{ n atomic.Int64 }

func (s *seqIDs) NewID() string { return fmt.Sprintf("id-%d", s.n.Add(1)) }

func seededStore(t *testing.T) *memory.Store {
	t.Helper()
	s := memory.NewStore()
	s.SeedProduct(inventory.Product{
		ID: "tee", Name: "Tee",
		Variants: []inventory.SizeVariant{{ID: "tee-m", Label: "M", Stock: 3}},
	})
	return s
}

func insertOrder(t *testing.T, s *memory.Store, id string, createdAt time.Time, mutate func(o *domain.Order)) {
	t.Helper()
	o, err := domain.New(domain.NewParams{
		ID:       id,
		UserID:   "u1",
		Currency: "USD",
		Totals:   domain.Totals{SubtotalCents: 2400},
		Items: []domain.Item{
			{ProductID: "tee", VariantID: "tee-m", Size: "M", Quantity: 2, UnitPriceCents: 1000},
			{ProductID: "sticker", Quantity: 1, UnitPriceCents: 400},
		},
	})
	require.NoError(t, err)
	if !createdAt.IsZero() {
		o.CreatedAt = createdAt
	}
	if mutate != nil {
		mutate(o)
	}
	require.NoError(t, s.WithinTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		return tx.Orders().Insert(ctx, o)
	}))
}

func TestCancelRestoresStock(t *testing.T) {
	s := seededStore(t)
	insertOrder(t, s, "o1", time.Time{}, nil)
	cancel := NewCancelUseCase(s, &seqIDs{}, nil)
	get := NewGetUseCase(s, nil)

	res, err := cancel.Execute(context.Background(), CancelCommand{OrderID: "o1", UserID: "u1"})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCancelled, res.Status)
	assert.False(t, res.AlreadyCancelled)
	assert.Equal(t, 5, s.VariantStock("tee", "M"))

	view, err := get.Execute(context.Background(), GetQuery{OrderID: "o1", UserID: "u1"})
	require.NoError(t, err)
	require.NotNil(t, view.Order.CancelledAt)
	kinds := make([]eventlog.Kind, 0, len(view.Events))
	for _, e := range view.Events {
		kinds = append(kinds, e.Kind)
	}
	assert.Equal(t, []eventlog.Kind{eventlog.KindOrderCancelled, eventlog.KindStatusChanged, eventlog.KindStockRestored}, kinds)
	assert.Equal(t, ReasonCustomer, view.Events[0].Metadata["reason"])

	again, err := cancel.Execute(context.Background(), CancelCommand{OrderID: "o1", UserID: "u1"})
	require.NoError(t, err)
	assert.True(t, again.AlreadyCancelled)
	assert.Equal(t, 5, s.VariantStock("tee", "M"), "a repeated cancel restores nothing")
}

func TestCancelRejections(t *testing.T) {
	s := seededStore(t)
	insertOrder(t, s, "paid", time.Time{}, func(o *domain.Order) { require.NoError(t, o.MarkPaid(time.Now())) })
	insertOrder(t, s, "mine", time.Time{}, nil)
	cancel := NewCancelUseCase(s, &seqIDs{}, nil)

	_, err := cancel.Execute(context.Background(), CancelCommand{OrderID: "paid"})
	assert.ErrorIs(t, err, ErrInvalidStatus)

	_, err = cancel.Execute(context.Background(), CancelCommand{OrderID: "mine", UserID: "intruder"})
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = cancel.Execute(context.Background(), CancelCommand{OrderID: "nope"})
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 3, s.VariantStock("tee", "M"))
}

func TestGetHidesOtherUsersOrders(t *testing.T) {
	s := seededStore(t)
	insertOrder(t, s, "o1", time.Time{}, nil)
	get := NewGetUseCase(s, nil)

	_, err := get.Execute(context.Background(), GetQuery{OrderID: "o1", UserID: "u2"})
	assert.ErrorIs(t, err, ErrNotFound)

	view, err := get.Execute(context.Background(), GetQuery{OrderID: "o1", UserID: "u1"})
	require.NoError(t, err)
	assert.Equal(t, "o1", view.Order.ID)
}

func TestSweeperCancelsOnlyStaleUnpaidOrders(t *testing.T) {
	s := seededStore(t)
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	insertOrder(t, s, "stale", now.Add(-2*time.Hour), nil)
	insertOrder(t, s, "stale-awaiting", now.Add(-3*time.Hour), func(o *domain.Order) { require.NoError(t, o.AwaitPayment()) })
	insertOrder(t, s, "fresh", now.Add(-10*time.Minute), nil)
	insertOrder(t, s, "paid", now.Add(-5*time.Hour), func(o *domain.Order) { require.NoError(t, o.MarkPaid(now)) })

	sweeper := NewSweeper(s, NewCancelUseCase(s, &seqIDs{}, nil), time.Hour, nil)
	sweeper.now = func() time.Time { return now }

	n, err := sweeper.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 3+2+2, s.VariantStock("tee", "M"))

	get := NewGetUseCase(s, nil)
	for id, want := range map[string]domain.Status{
		"stale":          domain.StatusCancelled,
		"stale-awaiting": domain.StatusCancelled,
		"fresh":          domain.StatusPending,
		"paid":           domain.StatusPaid,
	} {
		view, err := get.Execute(context.Background(), GetQuery{OrderID: id})
		require.NoError(t, err)
		assert.Equal(t, want, view.Order.Status, id)
	}

	n, err = sweeper.Sweep(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSweeperInterval(t *testing.T) {
	assert.Equal(t, time.Minute, NewSweeper(nil, nil, time.Minute, nil).interval)
	assert.Equal(t, 15*time.Minute, NewSweeper(nil, nil, time.Hour, nil).interval)
}
