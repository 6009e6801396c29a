package httppresentation

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/Zhima-Mochi/minishop-checkout/internal/application/checkout"
	"github.com/Zhima-Mochi/minishop-checkout/internal/domain/order"
	"github.com/Zhima-Mochi/minishop-checkout/internal/domain/pricing"
	"github.com/Zhima-Mochi/minishop-checkout/internal/infrastructure/idempotency"
	"github.com/Zhima-Mochi/minishop-checkout/internal/observability"
)

const idempotencyTTL = 24 * time.Hour

type checkoutResponse struct {
	OrderID       string               `json:"orderId"`
	Status        order.Status         `json:"status"`
	Currency      string               `json:"currency"`
	SubtotalCents int64                `json:"subtotalCents"`
	DiscountCents int64                `json:"discountCents"`
	TaxCents      int64                `json:"taxCents"`
	ShippingCents int64                `json:"shippingCents"`
	TotalCents    int64                `json:"totalCents"`
	Breakdown     []pricing.Adjustment `json:"breakdown,omitempty"`
}

// handleCheckout converts the caller's cart into an order. A completed idempotency key replays the
// stored response; a key still being processed is rejected with request_in_progress.
func (h *Handler) handleCheckout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, _ := identityFrom(ctx)

	var req checkoutRequest
	if code, err := decodeAndValidate(w, r, &req, false); err != nil {
		writeError(w, http.StatusBadRequest, code, err.Error())
		return
	}

	key := id.UserID + ":" + req.IdempotencyKey
	claim, err := h.Idempotency.Claim(ctx, key)
	if err != nil {
		// the order row's unique key still catches the replay
		h.logger(ctx).Warn("idempotency_claim_failed", observability.F("error", err.Error()))
		claim = idempotency.Claim{State: idempotency.Acquired}
	}
	switch claim.State {
	case idempotency.Completed:
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Idempotent-Replayed", "true")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(claim.Response)
		return
	case idempotency.InFlight:
		writeError(w, http.StatusConflict, codeRequestInProgress, "a request with this idempotency key is in progress")
		return
	}

	email := req.Email
	if email == "" {
		email = id.Email
	}
	cmd := checkout.Command{
		UserID:          id.UserID,
		Email:           email,
		ShippingAddress: req.ShippingAddress.toDomain(),
		DiscountCode:    req.DiscountCode,
		IdempotencyKey:  req.IdempotencyKey,
	}
	if req.BillingAddress != nil {
		billing := req.BillingAddress.toDomain()
		cmd.BillingAddress = &billing
	}

	res, err := h.Checkout.Execute(ctx, cmd)
	if err != nil {
		if relErr := h.Idempotency.Release(ctx, key); relErr != nil {
			h.logger(ctx).Warn("idempotency_release_failed", observability.F("error", relErr.Error()))
		}
		writeDomainError(w, h.logger(ctx), err)
		return
	}

	body, err := json.Marshal(checkoutResponse{
		OrderID:       res.OrderID,
		Status:        res.Status,
		Currency:      res.Currency,
		SubtotalCents: res.SubtotalCents,
		DiscountCents: res.DiscountCents,
		TaxCents:      res.TaxCents,
		ShippingCents: res.ShippingCents,
		TotalCents:    res.TotalCents,
		Breakdown:     res.Breakdown,
	})
	if err != nil {
		writeDomainError(w, h.logger(ctx), err)
		return
	}
	if err := h.Idempotency.Complete(ctx, key, body); err != nil {
		h.logger(ctx).Warn("idempotency_complete_failed", observability.F("error", err.Error()))
	}

	status := http.StatusCreated
	if res.Replayed {
		status = http.StatusOK
		w.Header().Set("Idempotent-Replayed", "true")
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(append(body, '\n'))
}
