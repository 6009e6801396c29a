package postgres

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/Zhima-Mochi/minishop-checkout/internal/domain/eventlog"
)

type eventLog struct {
	db *gorm.DB
}

func (l eventLog) Append(ctx context.Context, e eventlog.Entry) error {
	md := e.Metadata
	if md == nil {
		md = map[string]string{}
	}
	row := eventRow{
		ID:        e.ID,
		OrderID:   e.OrderID,
		Kind:      string(e.Kind),
		Message:   e.Message,
		Metadata:  md,
		CreatedAt: e.CreatedAt,
	}
	if err := l.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}

func (l eventLog) List(ctx context.Context, orderID string) ([]eventlog.Entry, error) {
	var rows []eventRow
	if err := l.db.WithContext(ctx).Where("order_id = ?", orderID).Order("seq").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	out := make([]eventlog.Entry, 0, len(rows))
	for _, r := range rows {
		out = append(out, eventlog.Entry{
			ID:        r.ID,
			OrderID:   r.OrderID,
			Kind:      eventlog.Kind(r.Kind),
			Message:   r.Message,
			Metadata:  r.Metadata,
			CreatedAt: r.CreatedAt,
		})
	}
	return out, nil
}
