package postgres

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Zhima-Mochi/minishop-checkout/internal/domain/payment"
)

type paymentRepository struct {
	db *gorm.DB
}

func (r paymentRepository) Insert(ctx context.Context, rec *payment.Record) error {
	if rec == nil || rec.ID == "" {
		return fmt.Errorf("payment repository: id is required")
	}
	row := paymentRow{
		ID:          rec.ID,
		OrderID:     rec.OrderID,
		Provider:    rec.Provider,
		ProviderRef: rec.ProviderRef,
		Status:      string(rec.Status),
		AmountCents: rec.AmountCents,
		Currency:    rec.Currency,
		CreatedAt:   rec.CreatedAt,
		UpdatedAt:   rec.UpdatedAt,
	}
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		if isUniqueViolation(err) {
			return payment.ErrConflict
		}
		return fmt.Errorf("insert payment record: %w", err)
	}
	return nil
}

// FindByRef locks the record; settlement reads it first and must serialize with concurrent deliveries.
func (r paymentRepository) FindByRef(ctx context.Context, provider, ref string) (*payment.Record, error) {
	return r.take(r.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("provider = ? AND provider_ref = ?", provider, ref))
}

func (r paymentRepository) FindLatest(ctx context.Context, orderID, provider string) (*payment.Record, error) {
	return r.take(r.db.WithContext(ctx).
		Where("order_id = ? AND provider = ?", orderID, provider).
		Order("created_at DESC"))
}

func (r paymentRepository) UpdateStatus(ctx context.Context, rec *payment.Record) error {
	res := r.db.WithContext(ctx).Model(&paymentRow{}).Where("id = ?", rec.ID).Updates(map[string]any{
		"status":     string(rec.Status),
		"updated_at": rec.UpdatedAt,
	})
	if res.Error != nil {
		return fmt.Errorf("update payment status: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return payment.ErrNotFound
	}
	return nil
}

func (r paymentRepository) take(q *gorm.DB) (*payment.Record, error) {
	var row paymentRow
	if err := q.Take(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, payment.ErrNotFound
		}
		return nil, fmt.Errorf("load payment record: %w", err)
	}
	status, err := payment.ParseStatus(row.Status)
	if err != nil {
		return nil, fmt.Errorf("payment record %s: %w", row.ID, err)
	}
	return &payment.Record{
		ID:          row.ID,
		OrderID:     row.OrderID,
		Provider:    row.Provider,
		ProviderRef: row.ProviderRef,
		Status:      status,
		AmountCents: row.AmountCents,
		Currency:    row.Currency,
		CreatedAt:   row.CreatedAt,
		UpdatedAt:   row.UpdatedAt,
	}, nil
}
