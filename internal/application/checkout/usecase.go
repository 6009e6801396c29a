package checkout

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Zhima-Mochi/minishop-checkout/internal/application"
	"github.com/Zhima-Mochi/minishop-checkout/internal/application/store"
	"github.com/Zhima-Mochi/minishop-checkout/internal/domain/cart"
	"github.com/Zhima-Mochi/minishop-checkout/internal/domain/eventlog"
	"github.com/Zhima-Mochi/minishop-checkout/internal/domain/inventory"
	"github.com/Zhima-Mochi/minishop-checkout/internal/domain/order"
	"github.com/Zhima-Mochi/minishop-checkout/internal/domain/pricing"
	"github.com/Zhima-Mochi/minishop-checkout/internal/observability"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	checkoutService = "checkout-service"
	useCaseCheckout = "checkout.create_order"
)

type Command struct {
	UserID          string
	Email           string
	ShippingAddress order.Address
	// BillingAddress defaults to the shipping address when nil.
	BillingAddress *order.Address
	DiscountCode   string
	IdempotencyKey string
}

type Result struct {
	OrderID       string
	Status        order.Status
	Currency      string
	SubtotalCents int64
	DiscountCents int64
	TaxCents      int64
	ShippingCents int64
	TotalCents    int64
	Breakdown     []pricing.Adjustment
	// Replayed is true when the idempotency key matched an existing order.
	Replayed bool
}

// UseCase turns the user's cart into a PENDING order with reserved stock, all in one transaction.
type UseCase struct {
	tx       store.TxManager
	ids      application.IDGenerator
	rates    pricing.Calculator
	currency string
	now      func() time.Time
	inst     application.Instruments
}

var _ application.UseCase[Command, *Result] = (*UseCase)(nil)

func NewUseCase(
	tx store.TxManager,
	ids application.IDGenerator,
	rates pricing.Calculator,
	currency string,
	tel observability.Observability,
) *UseCase {
	return &UseCase{
		tx:       tx,
		ids:      ids,
		rates:    rates,
		currency: strings.ToUpper(currency),
		now:      time.Now,
		inst:     application.NewInstruments(tel, checkoutService),
	}
}

// WithClock overrides the clock used for discount windows.
func (uc *UseCase) WithClock(now func() time.Time) *UseCase {
	uc.now = now
	return uc
}

func (uc *UseCase) Execute(ctx context.Context, cmd Command) (_ *Result, err error) {
	ctx, run := uc.inst.Begin(ctx, useCaseCheckout, "Checkout",
		attribute.String("checkout.user_id", cmd.UserID),
		attribute.Bool("checkout.has_discount", cmd.DiscountCode != ""),
	)
	defer func() { run.End(err) }()
	run.Field("user_id", cmd.UserID)

	if verr := validate(cmd); verr != nil {
		run.Fail("VALIDATION_FAILED")
		return nil, verr
	}

	var res *Result
	err = uc.tx.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var txErr error
		res, txErr = uc.checkout(ctx, tx, cmd)
		return txErr
	})
	if err != nil {
		var (
			stockErr    *StockConflictError
			discountErr *DiscountError
			validErr    *ValidationError
		)
		switch {
		case errors.As(err, &validErr):
			run.Fail("VALIDATION_FAILED")
		case errors.Is(err, ErrEmptyCart):
			run.Fail("EMPTY_CART")
		case errors.As(err, &stockErr):
			run.Fail("STOCK_CONFLICT")
			run.Field("conflicts", len(stockErr.Conflicts))
		case errors.As(err, &discountErr):
			run.Fail("INVALID_DISCOUNT_CODE")
		case errors.Is(err, ErrDuplicateRequest):
			run.Fail("DUPLICATE_REQUEST")
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			run.Fail("CONTEXT_CANCELED")
		default:
			run.Fail("CHECKOUT_TX_FAILED")
			err = fmt.Errorf("%w: %w", ErrRepository, err)
		}
		return nil, err
	}

	run.Field("order_id", res.OrderID)
	run.Field("total_cents", res.TotalCents)
	span := run.Span()
	span.SetAttributes(attribute.String("order.id", res.OrderID))
	if res.Replayed {
		run.Status = "IDEMPOTENT_REPLAY"
		span.AddEvent("order.idempotent_replay", trace.WithAttributes(attribute.String("order.id", res.OrderID)))
	} else {
		span.AddEvent("order.created", trace.WithAttributes(attribute.String("order.id", res.OrderID)))
	}
	return res, nil
}

func (uc *UseCase) checkout(ctx context.Context, tx store.Tx, cmd Command) (*Result, error) {
	if cmd.IdempotencyKey != "" {
		existing, err := tx.Orders().FindByIdempotency(ctx, cmd.UserID, cmd.IdempotencyKey)
		switch {
		case err == nil:
			res := resultOf(existing)
			res.Replayed = true
			return res, nil
		case !errors.Is(err, order.ErrNotFound):
			return nil, fmt.Errorf("idempotency lookup: %w", err)
		}
	}

	c, err := tx.Carts().Get(ctx, cmd.UserID)
	if err != nil {
		return nil, fmt.Errorf("load cart: %w", err)
	}
	if c.Empty() {
		return nil, ErrEmptyCart
	}

	resolved, err := resolveLines(ctx, tx.Stock(), c.Lines)
	if err != nil {
		return nil, err
	}

	priced := make([]pricing.Line, 0, len(c.Lines))
	for _, l := range c.Lines {
		priced = append(priced, pricing.Line{ProductID: l.ProductID, UnitPriceCents: l.UnitPriceCents, Quantity: l.Quantity})
	}
	subtotal := pricing.Subtotal(priced)

	var discount int64
	code := pricing.NormalizeCode(cmd.DiscountCode)
	if code != "" {
		if discount, err = uc.applyDiscount(ctx, tx.Discounts(), code, subtotal); err != nil {
			return nil, err
		}
	}

	dest := pricing.Destination{
		Country:    cmd.ShippingAddress.Country,
		Region:     cmd.ShippingAddress.Region,
		PostalCode: cmd.ShippingAddress.PostalCode,
	}
	quote := uc.rates.Calculate(subtotal-discount, priced, dest)

	shipping := cmd.ShippingAddress
	shipping.ID = uc.ids.NewID()
	billing := shipping
	if cmd.BillingAddress != nil {
		billing = *cmd.BillingAddress
	}
	billing.ID = uc.ids.NewID()

	items := make([]order.Item, 0, len(resolved))
	for _, r := range resolved {
		items = append(items, order.Item{
			ID:             uc.ids.NewID(),
			ProductID:      r.line.ProductID,
			VariantID:      r.variantID,
			Name:           r.product.Name,
			SKU:            r.product.SKU,
			Size:           r.line.Size,
			Quantity:       r.line.Quantity,
			UnitPriceCents: r.line.UnitPriceCents,
		})
	}

	o, err := order.New(order.NewParams{
		ID:       uc.ids.NewID(),
		UserID:   cmd.UserID,
		Email:    cmd.Email,
		Currency: uc.currency,
		Totals: order.Totals{
			SubtotalCents: subtotal,
			DiscountCents: discount,
			TaxCents:      quote.TaxCents,
			ShippingCents: quote.ShippingCents,
		},
		DiscountCode:    code,
		ShippingAddress: shipping,
		BillingAddress:  billing,
		Items:           items,
		IdempotencyKey:  cmd.IdempotencyKey,
	})
	if err != nil {
		return nil, &ValidationError{Field: "order", Reason: err.Error()}
	}

	if err := tx.Orders().Insert(ctx, o); err != nil {
		if errors.Is(err, order.ErrConflict) {
			return nil, ErrDuplicateRequest
		}
		return nil, fmt.Errorf("insert order: %w", err)
	}

	if err := reserve(ctx, tx.Stock(), resolved); err != nil {
		return nil, err
	}

	entry := eventlog.New(uc.ids.NewID(), o.ID, eventlog.KindOrderCreated, "order created", map[string]string{
		"status":     string(o.Status),
		"totalCents": strconv.FormatInt(o.TotalCents, 10),
		"currency":   o.Currency,
	})
	if err := tx.Events().Append(ctx, entry); err != nil {
		return nil, fmt.Errorf("append event: %w", err)
	}

	res := resultOf(o)
	res.Breakdown = quote.Breakdown
	return res, nil
}

func (uc *UseCase) applyDiscount(ctx context.Context, repo pricing.DiscountRepository, code string, subtotal int64) (int64, error) {
	reject := func(err error) (int64, error) {
		if reason := pricing.DiscountReason(err); reason != "invalid" {
			return 0, &DiscountError{Code: code, Reason: reason, Err: err}
		}
		return 0, fmt.Errorf("discount %s: %w", code, err)
	}

	d, err := repo.FindDiscount(ctx, code)
	if err != nil {
		return reject(err)
	}
	amount, err := d.Apply(subtotal, uc.now())
	if err != nil {
		return reject(err)
	}
	if err := repo.RedeemDiscount(ctx, code); err != nil {
		return reject(err)
	}
	return amount, nil
}

type resolvedLine struct {
	line      cart.Line
	product   *inventory.Product
	variantID string // empty for untracked products
}

// resolveLines checks every line against current stock and reports all conflicts together.
// Lines that share a variant are checked against their combined quantity.
func resolveLines(ctx context.Context, ledger inventory.Ledger, lines []cart.Line) ([]resolvedLine, error) {
	var conflicts []Conflict
	requested := make(map[string]int)
	resolved := make([]resolvedLine, 0, len(lines))

	for _, l := range lines {
		p, err := ledger.Product(ctx, l.ProductID)
		if err != nil && !errors.Is(err, inventory.ErrProductNotFound) {
			return nil, fmt.Errorf("load product %s: %w", l.ProductID, err)
		}
		if err != nil || p.Deleted() {
			conflicts = append(conflicts, Conflict{
				ProductID: l.ProductID, Size: l.Size, Requested: l.Quantity, Reason: ReasonProductUnavailable,
			})
			continue
		}
		if !p.Tracked() {
			resolved = append(resolved, resolvedLine{line: l, product: p})
			continue
		}
		v, err := p.Variant(l.Size)
		if err != nil {
			conflicts = append(conflicts, Conflict{
				ProductID: l.ProductID, Size: l.Size, Requested: l.Quantity, Reason: ReasonVariantNotFound,
			})
			continue
		}
		requested[v.ID] += l.Quantity
		if requested[v.ID] > v.Stock {
			conflicts = append(conflicts, Conflict{
				ProductID: l.ProductID, Size: l.Size, Requested: l.Quantity, Available: v.Stock, Reason: ReasonInsufficientStock,
			})
			continue
		}
		resolved = append(resolved, resolvedLine{line: l, product: p, variantID: v.ID})
	}

	if len(conflicts) > 0 {
		return nil, &StockConflictError{Conflicts: conflicts}
	}
	return resolved, nil
}

// reserve decrements stock per line. A concurrent checkout that took the stock after resolveLines
// surfaces here and aborts the whole transaction.
func reserve(ctx context.Context, ledger inventory.Ledger, lines []resolvedLine) error {
	for _, r := range lines {
		if r.variantID == "" {
			continue
		}
		err := ledger.Reserve(ctx, r.variantID, r.line.Quantity)
		if errors.Is(err, inventory.ErrInsufficientStock) {
			available := 0
			if p, perr := ledger.Product(ctx, r.line.ProductID); perr == nil {
				if v, verr := p.Variant(r.line.Size); verr == nil {
					available = v.Stock
				}
			}
			return &StockConflictError{Conflicts: []Conflict{{
				ProductID: r.line.ProductID,
				Size:      r.line.Size,
				Requested: r.line.Quantity,
				Available: available,
				Reason:    ReasonInsufficientStock,
			}}}
		}
		if err != nil {
			return fmt.Errorf("reserve %s: %w", r.variantID, err)
		}
	}
	return nil
}

func validate(cmd Command) error {
	switch {
	case strings.TrimSpace(cmd.UserID) == "":
		return &ValidationError{Field: "userId", Reason: "required"}
	case strings.TrimSpace(cmd.ShippingAddress.Line1) == "":
		return &ValidationError{Field: "shippingAddress.line1", Reason: "required"}
	case strings.TrimSpace(cmd.ShippingAddress.Country) == "":
		return &ValidationError{Field: "shippingAddress.country", Reason: "required"}
	case len(cmd.IdempotencyKey) > 255:
		return &ValidationError{Field: "idempotencyKey", Reason: "too long"}
	}
	return nil
}

func resultOf(o *order.Order) *Result {
	return &Result{
		OrderID:       o.ID,
		Status:        o.Status,
		Currency:      o.Currency,
		SubtotalCents: o.SubtotalCents,
		DiscountCents: o.DiscountCents,
		TaxCents:      o.TaxCents,
		ShippingCents: o.ShippingCents,
		TotalCents:    o.TotalCents,
	}
}
