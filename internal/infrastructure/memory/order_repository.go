package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/Zhima-Mochi/minishop-checkout/internal/domain/order"
)

type orderRepository struct {
	st *state
}

func (r orderRepository) Insert(_ context.Context, o *order.Order) error {
	if o == nil || o.ID == "" {
		return fmt.Errorf("order repository: id is required")
	}
	if _, exists := r.st.orders[o.ID]; exists {
		return order.ErrConflict
	}
	if o.IdempotencyKey != "" {
		if _, exists := r.st.idempotency[compositeKey(o.UserID, o.IdempotencyKey)]; exists {
			return order.ErrConflict
		}
		r.st.idempotency[compositeKey(o.UserID, o.IdempotencyKey)] = o.ID
	}
	r.st.orders[o.ID] = o.Clone()
	return nil
}

func (r orderRepository) Get(_ context.Context, id string) (*order.Order, error) {
	o, ok := r.st.orders[id]
	if !ok {
		return nil, order.ErrNotFound
	}
	return o.Clone(), nil
}

// GetForUpdate needs no lock here: the whole transaction already holds the store mutex.
func (r orderRepository) GetForUpdate(ctx context.Context, id string) (*order.Order, error) {
	return r.Get(ctx, id)
}

func (r orderRepository) FindByIdempotency(_ context.Context, userID, key string) (*order.Order, error) {
	id, ok := r.st.idempotency[compositeKey(userID, key)]
	if !ok {
		return nil, order.ErrNotFound
	}
	o, ok := r.st.orders[id]
	if !ok {
		return nil, order.ErrNotFound
	}
	return o.Clone(), nil
}

func (r orderRepository) UpdateStatus(_ context.Context, o *order.Order) error {
	if o == nil || o.ID == "" {
		return fmt.Errorf("order repository: id is required")
	}
	stored, ok := r.st.orders[o.ID]
	if !ok {
		return order.ErrNotFound
	}
	in := o.Clone()
	updated := stored.Clone()
	updated.Status = in.Status
	updated.UpdatedAt = in.UpdatedAt
	updated.PaidAt = in.PaidAt
	updated.CancelledAt = in.CancelledAt
	r.st.orders[o.ID] = updated
	return nil
}

func (r orderRepository) ListStaleUnpaid(_ context.Context, before time.Time, limit int) ([]string, error) {
	var stale []*order.Order
	for _, o := range r.st.orders {
		if o.Status.Unpaid() && o.CreatedAt.Before(before) {
			stale = append(stale, o)
		}
	}
	sort.Slice(stale, func(i, j int) bool { return stale[i].CreatedAt.Before(stale[j].CreatedAt) })
	if limit > 0 && len(stale) > limit {
		stale = stale[:limit]
	}
	ids := make([]string, 0, len(stale))
	for _, o := range stale {
		ids = append(ids, o.ID)
	}
	return ids, nil
}
