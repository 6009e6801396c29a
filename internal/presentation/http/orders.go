package httppresentation

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	apporder "github.com/Zhima-Mochi/minishop-checkout/internal/application/order"
	"github.com/Zhima-Mochi/minishop-checkout/internal/domain/eventlog"
	"github.com/Zhima-Mochi/minishop-checkout/internal/domain/order"
)

type addressView struct {
	FullName   string `json:"fullName"`
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	Region     string `json:"region,omitempty"`
	PostalCode string `json:"postalCode"`
	Country    string `json:"country"`
	Phone      string `json:"phone,omitempty"`
}

type itemView struct {
	ProductID      string `json:"productId"`
	Name           string `json:"name"`
	SKU            string `json:"sku,omitempty"`
	Size           string `json:"size,omitempty"`
	Quantity       int    `json:"quantity"`
	UnitPriceCents int64  `json:"unitPriceCents"`
	LineTotalCents int64  `json:"lineTotalCents"`
}

type eventView struct {
	Kind      eventlog.Kind     `json:"kind"`
	Message   string            `json:"message"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"createdAt"`
}

type orderView struct {
	ID              string       `json:"id"`
	Status          order.Status `json:"status"`
	Currency        string       `json:"currency"`
	SubtotalCents   int64        `json:"subtotalCents"`
	DiscountCents   int64        `json:"discountCents"`
	DiscountCode    string       `json:"discountCode,omitempty"`
	TaxCents        int64        `json:"taxCents"`
	ShippingCents   int64        `json:"shippingCents"`
	TotalCents      int64        `json:"totalCents"`
	Email           string       `json:"email,omitempty"`
	ShippingAddress addressView  `json:"shippingAddress"`
	BillingAddress  addressView  `json:"billingAddress"`
	Items           []itemView   `json:"items"`
	Events          []eventView  `json:"events"`
	CreatedAt       time.Time    `json:"createdAt"`
	PaidAt          *time.Time   `json:"paidAt,omitempty"`
	CancelledAt     *time.Time   `json:"cancelledAt,omitempty"`
}

func (h *Handler) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, _ := identityFrom(ctx)

	view, err := h.GetOrder.Execute(ctx, apporder.GetQuery{OrderID: chi.URLParam(r, "id"), UserID: id.UserID})
	if err != nil {
		writeDomainError(w, h.logger(ctx), err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderView(view))
}

type cancelResponse struct {
	OrderID          string       `json:"orderId"`
	Status           order.Status `json:"status"`
	AlreadyCancelled bool         `json:"alreadyCancelled"`
}

func (h *Handler) handleCancelOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, _ := identityFrom(ctx)

	var req cancelRequest
	if code, err := decodeAndValidate(w, r, &req, true); err != nil {
		writeError(w, http.StatusBadRequest, code, err.Error())
		return
	}
	reason := req.Reason
	if reason == "" {
		reason = apporder.ReasonCustomer
	}

	res, err := h.CancelOrder.Execute(ctx, apporder.CancelCommand{
		OrderID: chi.URLParam(r, "id"),
		UserID:  id.UserID,
		Reason:  reason,
	})
	if err != nil {
		writeDomainError(w, h.logger(ctx), err)
		return
	}
	writeJSON(w, http.StatusOK, cancelResponse{
		OrderID:          res.OrderID,
		Status:           res.Status,
		AlreadyCancelled: res.AlreadyCancelled,
	})
}

func toOrderView(v *apporder.View) orderView {
	o := v.Order
	out := orderView{
		ID:              o.ID,
		Status:          o.Status,
		Currency:        o.Currency,
		SubtotalCents:   o.SubtotalCents,
		DiscountCents:   o.DiscountCents,
		DiscountCode:    o.DiscountCode,
		TaxCents:        o.TaxCents,
		ShippingCents:   o.ShippingCents,
		TotalCents:      o.TotalCents,
		Email:           o.Email,
		ShippingAddress: toAddressView(o.ShippingAddress),
		BillingAddress:  toAddressView(o.BillingAddress),
		Items:           make([]itemView, 0, len(o.Items)),
		Events:          make([]eventView, 0, len(v.Events)),
		CreatedAt:       o.CreatedAt,
		PaidAt:          o.PaidAt,
		CancelledAt:     o.CancelledAt,
	}
	for _, it := range o.Items {
		out.Items = append(out.Items, itemView{
			ProductID:      it.ProductID,
			Name:           it.Name,
			SKU:            it.SKU,
			Size:           it.Size,
			Quantity:       it.Quantity,
			UnitPriceCents: it.UnitPriceCents,
			LineTotalCents: it.LineTotalCents,
		})
	}
	for _, e := range v.Events {
		out.Events = append(out.Events, eventView{Kind: e.Kind, Message: e.Message, Metadata: e.Metadata, CreatedAt: e.CreatedAt})
	}
	return out
}

func toAddressView(a order.Address) addressView {
	return addressView{
		FullName:   a.FullName,
		Line1:      a.Line1,
		Line2:      a.Line2,
		City:       a.City,
		Region:     a.Region,
		PostalCode: a.PostalCode,
		Country:    a.Country,
		Phone:      a.Phone,
	}
}
