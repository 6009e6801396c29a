package order

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/Zhima-Mochi/minishop-checkout/internal/application"
	"github.com/Zhima-Mochi/minishop-checkout/internal/application/store"
	"github.com/Zhima-Mochi/minishop-checkout/internal/domain/eventlog"
	"github.com/Zhima-Mochi/minishop-checkout/internal/domain/inventory"
	domain "github.com/Zhima-Mochi/minishop-checkout/internal/domain/order"
	"github.com/Zhima-Mochi/minishop-checkout/internal/observability"

	"go.opentelemetry.io/otel/attribute"
)

const (
	orderService  = "order-service"
	useCaseCancel = "order.cancel"
	useCaseGet    = "order.get"

	ReasonCustomer = "customer_requested"
	ReasonExpired  = "payment_timeout"
)

var (
	ErrNotFound      = errors.New("order: not found")
	ErrInvalidStatus = errors.New("order: status does not allow this operation")
	ErrRepository    = errors.New("order: repository failure")
)

type CancelCommand struct {
	OrderID string
	// UserID, when set, must own the order. System callers leave it empty.
	UserID string
	Reason string
}

type CancelResult struct {
	OrderID string
	Status  domain.Status
	// AlreadyCancelled is true when the call was a no-op.
	AlreadyCancelled bool
}

// CancelUseCase cancels an unpaid order and gives its reserved stock back, in one transaction.
type CancelUseCase struct {
	tx   store.TxManager
	ids  application.IDGenerator
	now  func() time.Time
	inst application.Instruments
}

var _ application.UseCase[CancelCommand, *CancelResult] = (*CancelUseCase)(nil)

func NewCancelUseCase(tx store.TxManager, ids application.IDGenerator, tel observability.Observability) *CancelUseCase {
	return &CancelUseCase{
		tx:   tx,
		ids:  ids,
		now:  time.Now,
		inst: application.NewInstruments(tel, orderService),
	}
}

func (uc *CancelUseCase) Execute(ctx context.Context, cmd CancelCommand) (_ *CancelResult, err error) {
	ctx, run := uc.inst.Begin(ctx, useCaseCancel, "CancelOrder",
		attribute.String("order.id", cmd.OrderID),
	)
	defer func() { run.End(err) }()
	run.Field("order_id", cmd.OrderID)
	if cmd.Reason == "" {
		cmd.Reason = ReasonCustomer
	}
	run.Field("reason", cmd.Reason)

	var res *CancelResult
	err = uc.tx.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var txErr error
		res, txErr = uc.cancel(ctx, tx, cmd)
		return txErr
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			run.Fail("ORDER_NOT_FOUND")
		case errors.Is(err, ErrInvalidStatus):
			run.Fail("INVALID_STATUS")
		default:
			run.Fail("CANCEL_TX_FAILED")
			err = fmt.Errorf("%w: %w", ErrRepository, err)
		}
		return nil, err
	}
	if res.AlreadyCancelled {
		run.Status = "ALREADY_CANCELLED"
	}
	return res, nil
}

func (uc *CancelUseCase) cancel(ctx context.Context, tx store.Tx, cmd CancelCommand) (*CancelResult, error) {
	o, err := tx.Orders().GetForUpdate(ctx, cmd.OrderID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load order: %w", err)
	}
	if cmd.UserID != "" && o.UserID != cmd.UserID {
		return nil, ErrNotFound
	}
	if o.Status == domain.StatusCancelled {
		return &CancelResult{OrderID: o.ID, Status: o.Status, AlreadyCancelled: true}, nil
	}
	if !o.Status.Unpaid() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidStatus, o.Status)
	}

	from := o.Status
	if err := o.Cancel(uc.now()); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidStatus, err)
	}
	if err := tx.Orders().UpdateStatus(ctx, o); err != nil {
		return nil, fmt.Errorf("update order: %w", err)
	}

	events := tx.Events()
	if err := events.Append(ctx, eventlog.New(uc.ids.NewID(), o.ID, eventlog.KindOrderCancelled, "order cancelled",
		map[string]string{"reason": cmd.Reason})); err != nil {
		return nil, fmt.Errorf("append event: %w", err)
	}
	if err := events.Append(ctx, eventlog.StatusChange(uc.ids.NewID(), o.ID, string(from), string(o.Status))); err != nil {
		return nil, fmt.Errorf("append event: %w", err)
	}

	for _, it := range o.Items {
		if it.VariantID == "" {
			continue
		}
		err := tx.Stock().Restore(ctx, it.VariantID, it.Quantity)
		if errors.Is(err, inventory.ErrVariantNotFound) {
			// The variant was removed from the catalog after checkout; there is nothing to give back.
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("restore stock %s: %w", it.VariantID, err)
		}
		if err := events.Append(ctx, eventlog.New(uc.ids.NewID(), o.ID, eventlog.KindStockRestored, "stock restored",
			map[string]string{
				"productId": it.ProductID,
				"size":      it.Size,
				"quantity":  strconv.Itoa(it.Quantity),
			})); err != nil {
			return nil, fmt.Errorf("append event: %w", err)
		}
	}

	return &CancelResult{OrderID: o.ID, Status: o.Status}, nil
}
