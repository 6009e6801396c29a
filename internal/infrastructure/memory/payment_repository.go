package memory

import (
	"context"
	"fmt"

	"github.com/Zhima-Mochi/minishop-checkout/internal/domain/payment"
)

type paymentRepository struct {
	st *state
}

func (r paymentRepository) Insert(_ context.Context, rec *payment.Record) error {
	if rec == nil || rec.ID == "" {
		return fmt.Errorf("payment repository: id is required")
	}
	refKey := compositeKey(rec.Provider, rec.ProviderRef)
	if _, exists := r.st.paymentRefs[refKey]; exists {
		return payment.ErrConflict
	}
	if _, exists := r.st.payments[rec.ID]; exists {
		return payment.ErrConflict
	}
	r.st.payments[rec.ID] = rec.Clone()
	r.st.paymentRefs[refKey] = rec.ID
	r.st.orderPays[rec.OrderID] = append(r.st.orderPays[rec.OrderID], rec.ID)
	return nil
}

func (r paymentRepository) FindByRef(_ context.Context, provider, ref string) (*payment.Record, error) {
	id, ok := r.st.paymentRefs[compositeKey(provider, ref)]
	if !ok {
		return nil, payment.ErrNotFound
	}
	return r.st.payments[id].Clone(), nil
}

func (r paymentRepository) FindLatest(_ context.Context, orderID, provider string) (*payment.Record, error) {
	ids := r.st.orderPays[orderID]
	for i := len(ids) - 1; i >= 0; i-- {
		if rec := r.st.payments[ids[i]]; rec.Provider == provider {
			return rec.Clone(), nil
		}
	}
	return nil, payment.ErrNotFound
}

func (r paymentRepository) UpdateStatus(_ context.Context, rec *payment.Record) error {
	stored, ok := r.st.payments[rec.ID]
	if !ok {
		return payment.ErrNotFound
	}
	stored.Status = rec.Status
	stored.UpdatedAt = rec.UpdatedAt
	return nil
}
