package order

import (
	"context"
	"errors"
	"fmt"

	"github.com/Zhima-Mochi/minishop-checkout/internal/application"
	"github.com/Zhima-Mochi/minishop-checkout/internal/application/store"
	"github.com/Zhima-Mochi/minishop-checkout/internal/domain/eventlog"
	domain "github.com/Zhima-Mochi/minishop-checkout/internal/domain/order"
	"github.com/Zhima-Mochi/minishop-checkout/internal/observability"

	"go.opentelemetry.io/otel/attribute"
)

type GetQuery struct {
	OrderID string
	UserID  string
}

// View is an order with its audit trail.
type View struct {
	Order  *domain.Order
	Events []eventlog.Entry
}

type GetUseCase struct {
	tx   store.TxManager
	inst application.Instruments
}

var _ application.UseCase[GetQuery, *View] = (*GetUseCase)(nil)

func NewGetUseCase(tx store.TxManager, tel observability.Observability) *GetUseCase {
	return &GetUseCase{tx: tx, inst: application.NewInstruments(tel, orderService)}
}

// Execute returns the order when it belongs to the user; other users get ErrNotFound.
func (uc *GetUseCase) Execute(ctx context.Context, q GetQuery) (_ *View, err error) {
	ctx, run := uc.inst.Begin(ctx, useCaseGet, "GetOrder", attribute.String("order.id", q.OrderID))
	defer func() { run.End(err) }()
	run.Field("order_id", q.OrderID)

	var view View
	err = uc.tx.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		o, err := tx.Orders().Get(ctx, q.OrderID)
		if errors.Is(err, domain.ErrNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		if q.UserID != "" && o.UserID != q.UserID {
			return ErrNotFound
		}
		view.Order = o
		view.Events, err = tx.Events().List(ctx, o.ID)
		return err
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			run.Fail("ORDER_NOT_FOUND")
			return nil, err
		}
		run.Fail("ORDER_LOAD_FAILED")
		return nil, fmt.Errorf("%w: %w", ErrRepository, err)
	}
	return &view, nil
}
