package httppresentation

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/Zhima-Mochi/minishop-checkout/internal/application/checkout"
	apporder "github.com/Zhima-Mochi/minishop-checkout/internal/application/order"
	apppay "github.com/Zhima-Mochi/minishop-checkout/internal/application/payment"
	"github.com/Zhima-Mochi/minishop-checkout/internal/application/settlement"
	"github.com/Zhima-Mochi/minishop-checkout/internal/observability"
)

const (
	codeValidationFailed  = "validation_failed"
	codeInvalidPayload    = "invalid_payload"
	codeUnauthenticated   = "unauthenticated"
	codeRateLimited       = "rate_limited"
	codeEmptyCart         = "empty_cart"
	codeStockConflict     = "stock_conflict"
	codeInvalidDiscount   = "invalid_discount_code"
	codeRequestInProgress = "request_in_progress"
	codeNotFound          = "not_found"
	codeInvalidStatus     = "invalid_status"
	codeInvalidSignature  = "invalid_signature"
	codeMalformedEvent    = "malformed_event"
	codeOrderMissing      = "order_missing"
	codeProviderFailed    = "payment_provider_unavailable"
	codeUnavailable       = "unavailable"
	codeInternal          = "internal_error"
)

type errorBody struct {
	Error     string              `json:"error"`
	Message   string              `json:"message,omitempty"`
	Reason    string              `json:"reason,omitempty"`
	Conflicts []checkout.Conflict `json:"conflicts,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorBody{Error: code, Message: message})
}

// writeDomainError maps use case errors onto status codes. Unknown errors are logged and hidden.
func writeDomainError(w http.ResponseWriter, log observability.Logger, err error) {
	var (
		validation *checkout.ValidationError
		conflict   *checkout.StockConflictError
		discount   *checkout.DiscountError
	)
	switch {
	case errors.As(err, &validation):
		writeJSON(w, http.StatusBadRequest, errorBody{
			Error: codeValidationFailed, Message: validation.Field + " " + validation.Reason,
		})
	case errors.Is(err, checkout.ErrEmptyCart):
		writeError(w, http.StatusBadRequest, codeEmptyCart, "cart has no items")
	case errors.As(err, &conflict):
		writeJSON(w, http.StatusConflict, errorBody{
			Error: codeStockConflict, Message: "some items cannot be fulfilled", Conflicts: conflict.Conflicts,
		})
	case errors.As(err, &discount):
		writeJSON(w, http.StatusBadRequest, errorBody{
			Error: codeInvalidDiscount, Message: "discount code " + discount.Code + " cannot be applied", Reason: discount.Reason,
		})
	case errors.Is(err, checkout.ErrDuplicateRequest):
		writeError(w, http.StatusConflict, codeRequestInProgress, "a request with this idempotency key is in progress")
	case errors.Is(err, apppay.ErrOrderNotFound), errors.Is(err, apporder.ErrNotFound):
		writeError(w, http.StatusNotFound, codeNotFound, "order not found")
	case errors.Is(err, apppay.ErrInvalidStatus), errors.Is(err, apporder.ErrInvalidStatus):
		writeError(w, http.StatusBadRequest, codeInvalidStatus, err.Error())
	case errors.Is(err, apppay.ErrInvalidSignature):
		writeError(w, http.StatusBadRequest, codeInvalidSignature, "webhook signature verification failed")
	case errors.Is(err, apppay.ErrMalformedEvent), errors.Is(err, settlement.ErrUnknownOutcome):
		writeError(w, http.StatusBadRequest, codeMalformedEvent, "webhook payload is malformed")
	case errors.Is(err, settlement.ErrOrderMissing):
		log.Error("settlement_order_missing", observability.F("error", err.Error()))
		writeError(w, http.StatusNotFound, codeOrderMissing, "payment references an order that does not exist")
	case errors.Is(err, apppay.ErrProvider):
		log.Warn("payment_provider_failed", observability.F("error", err.Error()))
		writeError(w, http.StatusBadGateway, codeProviderFailed, "payment provider is unavailable, retry later")
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusServiceUnavailable, codeUnavailable, "request was cancelled")
	default:
		log.Error("request_failed", observability.F("error", err.Error()))
		writeError(w, http.StatusInternalServerError, codeInternal, "internal error")
	}
}
