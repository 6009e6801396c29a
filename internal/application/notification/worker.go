package notification

import (
	"context"
	"errors"
	"fmt"

	"github.com/Zhima-Mochi/minishop-checkout/internal/application"
	"github.com/Zhima-Mochi/minishop-checkout/internal/application/store"
	"github.com/Zhima-Mochi/minishop-checkout/internal/domain/inventory"
	domorder "github.com/Zhima-Mochi/minishop-checkout/internal/domain/order"
	domoutbox "github.com/Zhima-Mochi/minishop-checkout/internal/domain/outbox"
	"github.com/Zhima-Mochi/minishop-checkout/internal/observability"

	"go.opentelemetry.io/otel/attribute"
)

const (
	workerService    = "notification-worker"
	useCaseOrderPaid = "notification.order_paid"
)

// Worker runs the post-settlement side effects of order.paid: the receipt and purchase counters.
// Failures are logged and counted; the settlement they follow has already committed.
type Worker struct {
	subscriber domoutbox.Subscriber
	notifier   Notifier
	tx         store.TxManager
	inst       application.Instruments

	unitsSold observability.Counter // units_sold_total
	failures  observability.Counter // notification_failures_total{channel}
}

func NewWorker(
	subscriber domoutbox.Subscriber,
	notifier Notifier,
	tx store.TxManager,
	tel observability.Observability,
) *Worker {
	metrics := observability.MetricsOf(tel)
	return &Worker{
		subscriber: subscriber,
		notifier:   notifier,
		tx:         tx,
		inst:       application.NewInstruments(tel, workerService),
		unitsSold:  metrics.Counter(observability.MUnitsSold),
		failures:   metrics.Counter(observability.MNotificationFailures),
	}
}

func (w *Worker) Start() {
	if w.subscriber == nil {
		return
	}
	w.subscriber.Subscribe(domorder.OrderPaidEvent{}.EventName(), w.HandleOrderPaid)
}

func (w *Worker) HandleOrderPaid(ctx context.Context, e domoutbox.Event) (err error) {
	evt, ok := e.(domorder.OrderPaidEvent)
	if !ok {
		return nil
	}

	ctx, run := w.inst.Begin(ctx, useCaseOrderPaid, "OrderPaid",
		attribute.String("order.id", evt.OrderID),
		attribute.String("event", e.EventName()),
	)
	defer func() { run.End(err) }()
	run.Field("order_id", evt.OrderID)

	var errs []error
	if w.notifier != nil {
		if sendErr := w.notifier.SendPaymentReceipt(ctx, receiptOf(evt)); sendErr != nil {
			w.failures.Add(1, observability.L("channel", w.notifier.Channel()))
			errs = append(errs, fmt.Errorf("send receipt: %w", sendErr))
		} else {
			run.Field("receipt_channel", w.notifier.Channel())
		}
	}

	units, recErr := w.recordPurchases(ctx, evt)
	if recErr != nil {
		errs = append(errs, fmt.Errorf("record purchases: %w", recErr))
	} else {
		w.unitsSold.Add(float64(units))
		run.Field("units", units)
	}

	if len(errs) > 0 {
		run.Fail("SIDE_EFFECT_FAILED")
		return errors.Join(errs...)
	}
	return nil
}

func (w *Worker) recordPurchases(ctx context.Context, evt domorder.OrderPaidEvent) (int, error) {
	units := 0
	err := w.tx.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		units = 0
		for _, it := range evt.Items {
			err := tx.Stock().RecordPurchase(ctx, it.ProductID, it.Quantity)
			if errors.Is(err, inventory.ErrProductNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			units += it.Quantity
		}
		return nil
	})
	return units, err
}

func receiptOf(evt domorder.OrderPaidEvent) Receipt {
	items := make([]ReceiptItem, 0, len(evt.Items))
	for _, it := range evt.Items {
		items = append(items, ReceiptItem{ProductID: it.ProductID, Name: it.Name, Quantity: it.Quantity})
	}
	return Receipt{
		OrderID:    evt.OrderID,
		UserID:     evt.UserID,
		Email:      evt.Email,
		TotalCents: evt.TotalCents,
		Currency:   evt.Currency,
		Items:      items,
		PaidAt:     evt.OccurredAt,
	}
}
