package httppresentation

import (
	"io"
	"net/http"

	"github.com/google/uuid"

	apporder "github.com/Zhima-Mochi/minishop-checkout/internal/application/order"
	apppay "github.com/Zhima-Mochi/minishop-checkout/internal/application/payment"
	"github.com/Zhima-Mochi/minishop-checkout/internal/application/settlement"
	"github.com/Zhima-Mochi/minishop-checkout/internal/domain/order"
	dompay "github.com/Zhima-Mochi/minishop-checkout/internal/domain/payment"
	"github.com/Zhima-Mochi/minishop-checkout/internal/infrastructure/payment/envelope"
	"github.com/Zhima-Mochi/minishop-checkout/internal/infrastructure/payment/simulated"
)

type intentResponse struct {
	OrderID         string       `json:"orderId"`
	ClientSecret    string       `json:"clientSecret"`
	PaymentIntentID string       `json:"paymentIntentId"`
	Status          order.Status `json:"status"`
}

func (h *Handler) handleCreateIntent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, _ := identityFrom(ctx)

	var req intentRequest
	if code, err := decodeAndValidate(w, r, &req, false); err != nil {
		writeError(w, http.StatusBadRequest, code, err.Error())
		return
	}

	res, err := h.Intent.Execute(ctx, apppay.IntentCommand{OrderID: req.OrderID, UserID: id.UserID})
	if err != nil {
		writeDomainError(w, h.logger(ctx), err)
		return
	}
	writeJSON(w, http.StatusOK, intentResponse{
		OrderID:         res.OrderID,
		ClientSecret:    res.ClientSecret,
		PaymentIntentID: res.PaymentIntentID,
		Status:          res.Status,
	})
}

type webhookResponse struct {
	Received bool              `json:"received"`
	Result   settlement.Result `json:"result"`
}

// handleWebhook acknowledges every authenticated, recognized envelope with 200, duplicates included,
// so the provider stops redelivering.
func (h *Handler) handleWebhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, codeMalformedEvent, "webhook body could not be read")
		return
	}

	out, err := h.Webhooks.HandleWebhook(ctx, payload, r.Header.Get(h.SignatureHeader))
	if err != nil {
		writeDomainError(w, h.logger(ctx), err)
		return
	}
	writeJSON(w, http.StatusOK, webhookResponse{Received: true, Result: out.Result})
}

type simulateResponse struct {
	OrderID       string            `json:"orderId"`
	Result        settlement.Result `json:"result"`
	OrderStatus   order.Status      `json:"orderStatus,omitempty"`
	PaymentStatus dompay.Status     `json:"paymentStatus,omitempty"`
}

// handleSimulate plays the provider: it signs a settlement envelope for the caller's order and feeds it
// through the same webhook path a real delivery takes.
func (h *Handler) handleSimulate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, _ := identityFrom(ctx)

	var req simulateRequest
	if code, err := decodeAndValidate(w, r, &req, false); err != nil {
		writeError(w, http.StatusBadRequest, code, err.Error())
		return
	}

	view, err := h.GetOrder.Execute(ctx, apporder.GetQuery{OrderID: req.OrderID, UserID: id.UserID})
	if err != nil {
		writeDomainError(w, h.logger(ctx), err)
		return
	}
	if view.Order.Status == order.StatusPending {
		writeError(w, http.StatusBadRequest, codeInvalidStatus, "create a payment intent before simulating a payment")
		return
	}

	eventType, err := envelope.TypeFor(dompay.Outcome(req.Outcome))
	if err != nil {
		writeDomainError(w, h.logger(ctx), err)
		return
	}
	payload, err := envelope.EncodeObject("evt_sim_"+uuid.NewString(), eventType, envelope.Object{
		ID:       simulated.Ref(req.OrderID),
		Amount:   view.Order.TotalCents,
		Currency: view.Order.Currency,
		Metadata: map[string]string{"orderId": req.OrderID},
	})
	if err != nil {
		writeDomainError(w, h.logger(ctx), err)
		return
	}

	out, err := h.Webhooks.HandleWebhook(ctx, payload, h.Simulator.Sign(payload))
	if err != nil {
		writeDomainError(w, h.logger(ctx), err)
		return
	}
	writeJSON(w, http.StatusOK, simulateResponse{
		OrderID:       req.OrderID,
		Result:        out.Result,
		OrderStatus:   out.OrderStatus,
		PaymentStatus: out.PaymentStatus,
	})
}
