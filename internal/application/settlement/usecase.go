package settlement

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Zhima-Mochi/minishop-checkout/internal/application"
	apppay "github.com/Zhima-Mochi/minishop-checkout/internal/application/payment"
	"github.com/Zhima-Mochi/minishop-checkout/internal/application/store"
	"github.com/Zhima-Mochi/minishop-checkout/internal/domain/eventlog"
	domorder "github.com/Zhima-Mochi/minishop-checkout/internal/domain/order"
	domoutbox "github.com/Zhima-Mochi/minishop-checkout/internal/domain/outbox"
	dompay "github.com/Zhima-Mochi/minishop-checkout/internal/domain/payment"
	"github.com/Zhima-Mochi/minishop-checkout/internal/observability"
	"github.com/Zhima-Mochi/minishop-checkout/internal/observability/logctx"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	settlementService = "settlement-service"
	useCaseSettle     = "settlement.apply"
	publishTimeout    = 300 * time.Millisecond
)

var (
	// ErrOrderMissing is an integrity error: a known payment record points at an order that does not exist.
	ErrOrderMissing   = errors.New("settlement: order referenced by payment record not found")
	ErrUnknownOutcome = errors.New("settlement: unknown outcome")
	ErrRepository     = errors.New("settlement: repository failure")
)

// Result is what happened to one settlement event.
type Result string

const (
	ResultApplied   Result = "applied"
	ResultDuplicate Result = "duplicate"
	ResultIgnored   Result = "ignored"
	// ResultNeedsAttention means money was captured for an order that can no longer be paid, or the
	// provider settled a different amount than the payment record expects.
	ResultNeedsAttention Result = "needs_attention"
)

type Command struct {
	Provider    string
	ProviderRef string
	Outcome     dompay.Outcome
	EventID     string
	// AmountCents and Currency, when set, must match the payment record for a success to be applied.
	AmountCents int64
	Currency    string
}

type Outcome struct {
	Result        Result
	OrderID       string
	OrderStatus   domorder.Status
	PaymentStatus dompay.Status
}

// Reconciler advances payment records and orders from provider settlement events, exactly once in effect.
type Reconciler struct {
	tx        store.TxManager
	ids       application.IDGenerator
	provider  apppay.Provider
	publisher domoutbox.Publisher
	now       func() time.Time
	inst      application.Instruments

	settled observability.Counter // settlement_events_total{provider,outcome}
}

var _ application.UseCase[Command, *Outcome] = (*Reconciler)(nil)

func NewReconciler(
	tx store.TxManager,
	ids application.IDGenerator,
	provider apppay.Provider,
	publisher domoutbox.Publisher,
	tel observability.Observability,
) *Reconciler {
	return &Reconciler{
		tx:        tx,
		ids:       ids,
		provider:  provider,
		publisher: publisher,
		now:       time.Now,
		inst:      application.NewInstruments(tel, settlementService),
		settled:   observability.MetricsOf(tel).Counter(observability.MSettlementEvents),
	}
}

// HandleWebhook authenticates and normalizes a provider envelope, then applies it.
// Authentication failures are returned before any state is read.
func (r *Reconciler) HandleWebhook(ctx context.Context, payload []byte, signature string) (*Outcome, error) {
	n, err := r.provider.ParseWebhook(payload, signature)
	if err != nil {
		logctx.FromOr(ctx, r.inst.Logger()).Warn("webhook_rejected",
			observability.F("provider", r.provider.Name()),
			observability.F("error", err),
		)
		return nil, err
	}
	if n.Outcome == "" {
		r.count(r.provider.Name(), ResultIgnored)
		return &Outcome{Result: ResultIgnored}, nil
	}
	return r.Execute(ctx, Command{
		Provider:    r.provider.Name(),
		ProviderRef: n.ProviderRef,
		Outcome:     n.Outcome,
		EventID:     n.EventID,
		AmountCents: n.AmountCents,
		Currency:    n.Currency,
	})
}

func (r *Reconciler) Execute(ctx context.Context, cmd Command) (_ *Outcome, err error) {
	ctx, run := r.inst.Begin(ctx, useCaseSettle, "Settle",
		attribute.String("payment.provider", cmd.Provider),
		attribute.String("payment.ref", cmd.ProviderRef),
		attribute.String("payment.outcome", string(cmd.Outcome)),
	)
	defer func() { run.End(err) }()
	run.Field("provider", cmd.Provider)
	run.Field("provider_ref", cmd.ProviderRef)
	run.Field("settlement_outcome", string(cmd.Outcome))
	if cmd.EventID != "" {
		run.Field("event_id", cmd.EventID)
	}

	if cmd.Outcome != dompay.OutcomeSucceeded && cmd.Outcome != dompay.OutcomeFailed {
		run.Fail("UNKNOWN_OUTCOME")
		return nil, fmt.Errorf("%w: %q", ErrUnknownOutcome, cmd.Outcome)
	}

	var (
		out  *Outcome
		paid *domorder.OrderPaidEvent
	)
	err = r.tx.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var txErr error
		out, paid, txErr = r.apply(ctx, tx, cmd)
		return txErr
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrOrderMissing):
			run.Fail("ORDER_MISSING")
			run.Logger().Error("settlement_integrity_error",
				observability.F("provider", cmd.Provider),
				observability.F("provider_ref", cmd.ProviderRef),
				observability.F("error", err),
			)
		default:
			run.Fail("SETTLEMENT_TX_FAILED")
			err = fmt.Errorf("%w: %w", ErrRepository, err)
		}
		return nil, err
	}

	r.count(cmd.Provider, out.Result)
	run.Status = string(out.Result)
	run.Field("result", string(out.Result))
	if out.OrderID != "" {
		run.Field("order_id", out.OrderID)
		run.Span().SetAttributes(attribute.String("order.id", out.OrderID))
	}
	if out.Result == ResultNeedsAttention {
		run.Logger().Error("settlement_needs_attention",
			observability.F("order_id", out.OrderID),
			observability.F("order_status", string(out.OrderStatus)),
			observability.F("provider_ref", cmd.ProviderRef),
		)
	}

	if paid != nil {
		r.publish(ctx, run, *paid)
	}
	return out, nil
}

func (r *Reconciler) apply(ctx context.Context, tx store.Tx, cmd Command) (*Outcome, *domorder.OrderPaidEvent, error) {
	rec, err := tx.Payments().FindByRef(ctx, cmd.Provider, cmd.ProviderRef)
	if errors.Is(err, dompay.ErrNotFound) {
		return &Outcome{Result: ResultIgnored}, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("find payment record: %w", err)
	}

	o, err := tx.Orders().GetForUpdate(ctx, rec.OrderID)
	if errors.Is(err, domorder.ErrNotFound) {
		return nil, nil, fmt.Errorf("%w: order %s, payment %s", ErrOrderMissing, rec.OrderID, rec.ID)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("load order: %w", err)
	}

	if cmd.Outcome == dompay.OutcomeFailed {
		out, err := r.applyFailed(ctx, tx, rec, o)
		return out, nil, err
	}
	return r.applySucceeded(ctx, tx, rec, o, cmd)
}

func (r *Reconciler) applySucceeded(ctx context.Context, tx store.Tx, rec *dompay.Record, o *domorder.Order, cmd Command) (*Outcome, *domorder.OrderPaidEvent, error) {
	out := &Outcome{OrderID: o.ID, OrderStatus: o.Status, PaymentStatus: rec.Status}
	if rec.Status == dompay.StatusCaptured || pastPayment(o.Status) {
		out.Result = ResultDuplicate
		return out, nil, nil
	}
	if mismatch := settledMismatch(rec, cmd); mismatch != nil {
		// The order stays unpaid and the record pending until someone reconciles the amounts by hand.
		if err := tx.Events().Append(ctx, eventlog.New(r.ids.NewID(), o.ID, eventlog.KindNeedsAttention,
			"settled amount does not match the payment record", mismatch)); err != nil {
			return nil, nil, fmt.Errorf("append event: %w", err)
		}
		out.Result = ResultNeedsAttention
		return out, nil, nil
	}

	if err := rec.Capture(); err != nil {
		return nil, nil, err
	}
	if err := tx.Payments().UpdateStatus(ctx, rec); err != nil {
		return nil, nil, fmt.Errorf("update payment record: %w", err)
	}
	out.PaymentStatus = rec.Status
	meta := map[string]string{"provider": rec.Provider, "providerRef": rec.ProviderRef}

	from := o.Status
	if err := o.MarkPaid(r.now()); err != nil {
		// Captured money on an order that can no longer be paid (e.g. cancelled) is kept on record for a human.
		meta["orderStatus"] = string(o.Status)
		if err := tx.Events().Append(ctx, eventlog.New(r.ids.NewID(), o.ID, eventlog.KindNeedsAttention,
			"payment captured for an order that cannot be paid", meta)); err != nil {
			return nil, nil, fmt.Errorf("append event: %w", err)
		}
		out.Result = ResultNeedsAttention
		return out, nil, nil
	}

	if err := tx.Orders().UpdateStatus(ctx, o); err != nil {
		return nil, nil, fmt.Errorf("update order: %w", err)
	}
	if err := tx.Events().Append(ctx, eventlog.New(r.ids.NewID(), o.ID, eventlog.KindPaymentSucceeded, "payment succeeded", meta)); err != nil {
		return nil, nil, fmt.Errorf("append event: %w", err)
	}
	if err := tx.Events().Append(ctx, eventlog.StatusChange(r.ids.NewID(), o.ID, string(from), string(o.Status))); err != nil {
		return nil, nil, fmt.Errorf("append event: %w", err)
	}
	if err := tx.Carts().Clear(ctx, o.UserID); err != nil {
		return nil, nil, fmt.Errorf("clear cart: %w", err)
	}

	out.Result = ResultApplied
	out.OrderStatus = o.Status
	paid := domorder.NewOrderPaidEvent(o)
	return out, &paid, nil
}

// applyFailed leaves the order AWAITING_PAYMENT so the customer can retry; stock stays reserved.
func (r *Reconciler) applyFailed(ctx context.Context, tx store.Tx, rec *dompay.Record, o *domorder.Order) (*Outcome, error) {
	out := &Outcome{OrderID: o.ID, OrderStatus: o.Status, PaymentStatus: rec.Status}
	if rec.Status != dompay.StatusPending {
		out.Result = ResultDuplicate
		return out, nil
	}

	if err := rec.Fail(); err != nil {
		return nil, err
	}
	if err := tx.Payments().UpdateStatus(ctx, rec); err != nil {
		return nil, fmt.Errorf("update payment record: %w", err)
	}
	if err := tx.Events().Append(ctx, eventlog.New(r.ids.NewID(), o.ID, eventlog.KindPaymentFailed, "payment failed",
		map[string]string{"provider": rec.Provider, "providerRef": rec.ProviderRef})); err != nil {
		return nil, fmt.Errorf("append event: %w", err)
	}

	out.Result = ResultApplied
	out.PaymentStatus = rec.Status
	return out, nil
}

func (r *Reconciler) publish(ctx context.Context, run *application.Run, e domorder.OrderPaidEvent) {
	if r.publisher == nil {
		return
	}
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	if err := r.publisher.Publish(pubCtx, e); err != nil {
		run.Field("event_publish_error", err.Error())
		return
	}
	run.Span().AddEvent("order.paid.published", trace.WithAttributes(attribute.String("order.id", e.OrderID)))
}

func (r *Reconciler) count(provider string, res Result) {
	r.settled.Add(1,
		observability.L("provider", provider),
		observability.L("outcome", string(res)),
	)
}

// settledMismatch describes how the provider's reported amount differs from the record, or nil when it
// matches or was not reported.
func settledMismatch(rec *dompay.Record, cmd Command) map[string]string {
	amountOff := cmd.AmountCents != 0 && cmd.AmountCents != rec.AmountCents
	currencyOff := cmd.Currency != "" && !strings.EqualFold(cmd.Currency, rec.Currency)
	if !amountOff && !currencyOff {
		return nil
	}
	return map[string]string{
		"provider":         rec.Provider,
		"providerRef":      rec.ProviderRef,
		"expectedCents":    strconv.FormatInt(rec.AmountCents, 10),
		"expectedCurrency": rec.Currency,
		"settledCents":     strconv.FormatInt(cmd.AmountCents, 10),
		"settledCurrency":  cmd.Currency,
	}
}

func pastPayment(s domorder.Status) bool {
	switch s {
	case domorder.StatusPaid, domorder.StatusFulfilling, domorder.StatusShipped, domorder.StatusDelivered, domorder.StatusRefunded:
		return true
	default:
		return false
	}
}
