package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Zhima-Mochi/minishop-checkout/internal/domain/order"
)

type orderRepository struct {
	db *gorm.DB
}

func (r orderRepository) Insert(ctx context.Context, o *order.Order) error {
	if o == nil || o.ID == "" {
		return fmt.Errorf("order repository: id is required")
	}
	db := r.db.WithContext(ctx)

	addrs := []addressRow{addressToRow(o.ShippingAddress)}
	if o.BillingAddress.ID != o.ShippingAddress.ID {
		addrs = append(addrs, addressToRow(o.BillingAddress))
	}
	if err := db.Create(&addrs).Error; err != nil {
		return fmt.Errorf("insert addresses: %w", err)
	}

	row := orderToRow(o)
	if err := db.Create(&row).Error; err != nil {
		if isUniqueViolation(err) {
			return order.ErrConflict
		}
		return fmt.Errorf("insert order: %w", err)
	}

	if len(o.Items) > 0 {
		items := make([]orderItemRow, 0, len(o.Items))
		for i, it := range o.Items {
			items = append(items, itemToRow(o.ID, i, it))
		}
		if err := db.Create(&items).Error; err != nil {
			return fmt.Errorf("insert order items: %w", err)
		}
	}
	return nil
}

func (r orderRepository) Get(ctx context.Context, id string) (*order.Order, error) {
	return r.load(r.db.WithContext(ctx), "id = ?", id)
}

func (r orderRepository) GetForUpdate(ctx context.Context, id string) (*order.Order, error) {
	return r.load(r.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}), "id = ?", id)
}

func (r orderRepository) FindByIdempotency(ctx context.Context, userID, key string) (*order.Order, error) {
	return r.load(r.db.WithContext(ctx), "user_id = ? AND idempotency_key = ?", userID, key)
}

func (r orderRepository) UpdateStatus(ctx context.Context, o *order.Order) error {
	if o == nil || o.ID == "" {
		return fmt.Errorf("order repository: id is required")
	}
	res := r.db.WithContext(ctx).Model(&orderRow{}).Where("id = ?", o.ID).Updates(map[string]any{
		"status":       string(o.Status),
		"updated_at":   o.UpdatedAt,
		"paid_at":      o.PaidAt,
		"cancelled_at": o.CancelledAt,
	})
	if res.Error != nil {
		return fmt.Errorf("update order status: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return order.ErrNotFound
	}
	return nil
}

func (r orderRepository) ListStaleUnpaid(ctx context.Context, before time.Time, limit int) ([]string, error) {
	q := r.db.WithContext(ctx).Model(&orderRow{}).
		Where("status IN ? AND created_at < ?",
			[]string{string(order.StatusPending), string(order.StatusAwaitingPayment)}, before).
		Order("created_at")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var ids []string
	if err := q.Pluck("id", &ids).Error; err != nil {
		return nil, fmt.Errorf("list stale orders: %w", err)
	}
	return ids, nil
}

// load reads the order row with q's clauses (locking included), then its addresses and items.
func (r orderRepository) load(q *gorm.DB, where string, args ...any) (*order.Order, error) {
	var row orderRow
	if err := q.Where(where, args...).Take(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("load order: %w", err)
	}

	db := r.db.WithContext(q.Statement.Context)
	var addrs []addressRow
	if err := db.Where("id IN ?", []string{row.ShippingAddressID, row.BillingAddressID}).Find(&addrs).Error; err != nil {
		return nil, fmt.Errorf("load addresses: %w", err)
	}
	var items []orderItemRow
	if err := db.Where("order_id = ?", row.ID).Order("position").Find(&items).Error; err != nil {
		return nil, fmt.Errorf("load order items: %w", err)
	}
	return rowToOrder(row, addrs, items)
}

func orderToRow(o *order.Order) orderRow {
	return orderRow{
		ID:                o.ID,
		UserID:            o.UserID,
		Email:             o.Email,
		Status:            string(o.Status),
		Currency:          o.Currency,
		SubtotalCents:     o.SubtotalCents,
		DiscountCents:     o.DiscountCents,
		DiscountCode:      o.DiscountCode,
		TaxCents:          o.TaxCents,
		ShippingCents:     o.ShippingCents,
		TotalCents:        o.TotalCents,
		ShippingAddressID: o.ShippingAddress.ID,
		BillingAddressID:  o.BillingAddress.ID,
		IdempotencyKey:    nullable(o.IdempotencyKey),
		CreatedAt:         o.CreatedAt,
		UpdatedAt:         o.UpdatedAt,
		PaidAt:            o.PaidAt,
		CancelledAt:       o.CancelledAt,
	}
}

func rowToOrder(row orderRow, addrs []addressRow, items []orderItemRow) (*order.Order, error) {
	status, err := order.ParseStatus(row.Status)
	if err != nil {
		return nil, fmt.Errorf("order %s: %w", row.ID, err)
	}
	o := &order.Order{
		ID:             row.ID,
		UserID:         row.UserID,
		Email:          row.Email,
		Status:         status,
		Currency:       row.Currency,
		SubtotalCents:  row.SubtotalCents,
		DiscountCents:  row.DiscountCents,
		DiscountCode:   row.DiscountCode,
		TaxCents:       row.TaxCents,
		ShippingCents:  row.ShippingCents,
		TotalCents:     row.TotalCents,
		IdempotencyKey: deref(row.IdempotencyKey),
		CreatedAt:      row.CreatedAt,
		UpdatedAt:      row.UpdatedAt,
		PaidAt:         row.PaidAt,
		CancelledAt:    row.CancelledAt,
	}
	for _, a := range addrs {
		if a.ID == row.ShippingAddressID {
			o.ShippingAddress = rowToAddress(a)
		}
		if a.ID == row.BillingAddressID {
			o.BillingAddress = rowToAddress(a)
		}
	}
	o.Items = make([]order.Item, 0, len(items))
	for _, it := range items {
		o.Items = append(o.Items, order.Item{
			ID:             it.ID,
			ProductID:      it.ProductID,
			VariantID:      deref(it.VariantID),
			Name:           it.Name,
			SKU:            it.SKU,
			Size:           it.Size,
			Quantity:       it.Quantity,
			UnitPriceCents: it.UnitPriceCents,
			LineTotalCents: it.LineTotalCents,
		})
	}
	return o, nil
}

func itemToRow(orderID string, pos int, it order.Item) orderItemRow {
	id := it.ID
	if id == "" {
		id = fmt.Sprintf("%s-%d", orderID, pos)
	}
	return orderItemRow{
		ID:             id,
		OrderID:        orderID,
		Position:       pos,
		ProductID:      it.ProductID,
		VariantID:      nullable(it.VariantID),
		Name:           it.Name,
		SKU:            it.SKU,
		Size:           it.Size,
		Quantity:       it.Quantity,
		UnitPriceCents: it.UnitPriceCents,
		LineTotalCents: it.LineTotalCents,
	}
}

func addressToRow(a order.Address) addressRow {
	return addressRow{
		ID:         a.ID,
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

func rowToAddress(a addressRow) order.Address {
	return order.Address{
		ID:         a.ID,
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
