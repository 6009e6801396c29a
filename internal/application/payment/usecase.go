package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Zhima-Mochi/minishop-checkout/internal/application"
	"github.com/Zhima-Mochi/minishop-checkout/internal/application/store"
	"github.com/Zhima-Mochi/minishop-checkout/internal/domain/eventlog"
	domorder "github.com/Zhima-Mochi/minishop-checkout/internal/domain/order"
	dompay "github.com/Zhima-Mochi/minishop-checkout/internal/domain/payment"
	"github.com/Zhima-Mochi/minishop-checkout/internal/observability"

	"go.opentelemetry.io/otel/attribute"
)

const (
	paymentService      = "payment-service"
	useCaseIntent       = "payment.create_intent"
	endpointCreate      = "create_intent"
	endpointRetrieve    = "retrieve_intent"
	idempotencyKeyStart = "order-"

	// defaultProviderTimeout bounds each provider round trip; the order row stays locked meanwhile.
	defaultProviderTimeout = 10 * time.Second
)

var (
	ErrOrderNotFound = errors.New("payment: order not found")
	ErrInvalidStatus = errors.New("payment: order status does not accept payment")
	ErrProvider      = errors.New("payment: provider failure")
	ErrRepository    = errors.New("payment: repository failure")
)

type IntentCommand struct {
	OrderID string
	// UserID, when set, must own the order.
	UserID string
}

type IntentResult struct {
	OrderID         string
	PaymentIntentID string
	ClientSecret    string
	Status          domorder.Status
	// Reused is true when an existing payment record was returned.
	Reused bool
}

// IntentUseCase creates or retrieves the provider-side payment handle of an order.
type IntentUseCase struct {
	tx       store.TxManager
	ids      application.IDGenerator
	provider Provider
	inst     application.Instruments
	timeout  time.Duration

	extCounter   observability.Counter   // external_requests_total{peer,endpoint,outcome}
	extHistogram observability.Histogram // external_request_duration_seconds{peer,endpoint}
}

var _ application.UseCase[IntentCommand, *IntentResult] = (*IntentUseCase)(nil)

func NewIntentUseCase(
	tx store.TxManager,
	ids application.IDGenerator,
	provider Provider,
	tel observability.Observability,
) *IntentUseCase {
	metrics := observability.MetricsOf(tel)
	return &IntentUseCase{
		tx:           tx,
		ids:          ids,
		provider:     provider,
		inst:         application.NewInstruments(tel, paymentService),
		timeout:      defaultProviderTimeout,
		extCounter:   metrics.Counter(observability.MExternalRequests),
		extHistogram: metrics.Histogram(observability.MExternalRequestDuration),
	}
}

func (uc *IntentUseCase) Execute(ctx context.Context, cmd IntentCommand) (_ *IntentResult, err error) {
	ctx, run := uc.inst.Begin(ctx, useCaseIntent, "CreatePaymentIntent",
		attribute.String("order.id", cmd.OrderID),
		attribute.String("payment.provider", uc.provider.Name()),
	)
	defer func() { run.End(err) }()
	run.Field("order_id", cmd.OrderID)
	run.Field("provider", uc.provider.Name())

	if cmd.OrderID == "" {
		run.Fail("ORDER_ID_REQUIRED")
		return nil, fmt.Errorf("%w: order id is required", ErrOrderNotFound)
	}

	var res *IntentResult
	err = uc.tx.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var txErr error
		res, txErr = uc.createOrRetrieve(ctx, tx, cmd)
		return txErr
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrOrderNotFound):
			run.Fail("ORDER_NOT_FOUND")
		case errors.Is(err, ErrInvalidStatus):
			run.Fail("INVALID_STATUS")
		case errors.Is(err, ErrProvider):
			run.Fail("PROVIDER_FAILED")
		default:
			run.Fail("INTENT_TX_FAILED")
			err = fmt.Errorf("%w: %w", ErrRepository, err)
		}
		return nil, err
	}

	run.Field("payment_intent_id", res.PaymentIntentID)
	if res.Reused {
		run.Status = "INTENT_REUSED"
	}
	return res, nil
}

func (uc *IntentUseCase) createOrRetrieve(ctx context.Context, tx store.Tx, cmd IntentCommand) (*IntentResult, error) {
	o, err := tx.Orders().GetForUpdate(ctx, cmd.OrderID)
	if errors.Is(err, domorder.ErrNotFound) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load order: %w", err)
	}
	if cmd.UserID != "" && o.UserID != cmd.UserID {
		return nil, ErrOrderNotFound
	}
	if !o.Status.Unpaid() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidStatus, o.Status)
	}

	provider := uc.provider.Name()
	existing, err := tx.Payments().FindLatest(ctx, o.ID, provider)
	switch {
	case err == nil:
		intent, perr := uc.callProvider(ctx, endpointRetrieve, func(ctx context.Context) (Intent, error) {
			return uc.provider.RetrieveIntent(ctx, existing.ProviderRef)
		})
		if perr != nil {
			return nil, perr
		}
		return &IntentResult{
			OrderID:         o.ID,
			PaymentIntentID: existing.ProviderRef,
			ClientSecret:    intent.ClientSecret,
			Status:          o.Status,
			Reused:          true,
		}, nil
	case !errors.Is(err, dompay.ErrNotFound):
		return nil, fmt.Errorf("find payment record: %w", err)
	}

	intent, err := uc.callProvider(ctx, endpointCreate, func(ctx context.Context) (Intent, error) {
		return uc.provider.CreateIntent(ctx, IntentRequest{
			OrderID:        o.ID,
			AmountCents:    o.TotalCents,
			Currency:       o.Currency,
			IdempotencyKey: idempotencyKeyStart + o.ID,
		})
	})
	if err != nil {
		return nil, err
	}

	rec := dompay.NewRecord(uc.ids.NewID(), o.ID, provider, intent.Ref, o.TotalCents, o.Currency)
	if err := tx.Payments().Insert(ctx, rec); err != nil {
		return nil, fmt.Errorf("insert payment record: %w", err)
	}
	if err := tx.Events().Append(ctx, eventlog.New(uc.ids.NewID(), o.ID, eventlog.KindPaymentIntentCreated,
		"payment intent created", map[string]string{"provider": provider, "providerRef": intent.Ref})); err != nil {
		return nil, fmt.Errorf("append event: %w", err)
	}

	from := o.Status
	if err := o.AwaitPayment(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidStatus, err)
	}
	if from != o.Status {
		if err := tx.Orders().UpdateStatus(ctx, o); err != nil {
			return nil, fmt.Errorf("update order: %w", err)
		}
		if err := tx.Events().Append(ctx, eventlog.StatusChange(uc.ids.NewID(), o.ID, string(from), string(o.Status))); err != nil {
			return nil, fmt.Errorf("append event: %w", err)
		}
	}

	return &IntentResult{
		OrderID:         o.ID,
		PaymentIntentID: intent.Ref,
		ClientSecret:    intent.ClientSecret,
		Status:          o.Status,
	}, nil
}

// WithProviderTimeout overrides how long one provider call may hold the order lock.
func (uc *IntentUseCase) WithProviderTimeout(d time.Duration) *IntentUseCase {
	if d > 0 {
		uc.timeout = d
	}
	return uc
}

func (uc *IntentUseCase) callProvider(ctx context.Context, endpoint string, call func(context.Context) (Intent, error)) (Intent, error) {
	peer := uc.provider.Name()
	start := time.Now()
	callCtx, cancel := context.WithTimeout(ctx, uc.timeout)
	intent, err := call(callCtx)
	cancel()

	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	uc.extCounter.Add(1,
		observability.L("peer", peer),
		observability.L("endpoint", endpoint),
		observability.L("outcome", outcome),
	)
	uc.extHistogram.Observe(time.Since(start).Seconds(),
		observability.L("peer", peer),
		observability.L("endpoint", endpoint),
	)
	if err != nil {
		return Intent{}, fmt.Errorf("%w: %s: %w", ErrProvider, endpoint, err)
	}
	return intent, nil
}
