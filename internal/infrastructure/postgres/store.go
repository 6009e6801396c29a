// Package postgres is the durable store: gorm repositories bound to one database transaction each.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/Zhima-Mochi/minishop-checkout/internal/application/store"
	"github.com/Zhima-Mochi/minishop-checkout/internal/domain/cart"
	"github.com/Zhima-Mochi/minishop-checkout/internal/domain/eventlog"
	"github.com/Zhima-Mochi/minishop-checkout/internal/domain/inventory"
	"github.com/Zhima-Mochi/minishop-checkout/internal/domain/order"
	"github.com/Zhima-Mochi/minishop-checkout/internal/domain/payment"
	"github.com/Zhima-Mochi/minishop-checkout/internal/domain/pricing"
)

const uniqueViolation = "23505"

// Config returns the gorm settings every connection uses, including the ones tests open over sqlmock.
func Config() *gorm.Config {
	return &gorm.Config{
		SkipDefaultTransaction: true,
		TranslateError:         true,
		Logger:                 logger.Default.LogMode(logger.Silent),
		NowFunc:                func() time.Time { return time.Now().UTC() },
	}
}

func Open(ctx context.Context, dsn string, maxOpenConns int) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), Config())
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("postgres: pool: %w", err)
	}
	if maxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(maxOpenConns)
		sqlDB.SetMaxIdleConns(max(maxOpenConns/2, 1))
	}
	sqlDB.SetConnMaxIdleTime(5 * time.Minute)
	if err := sqlDB.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	return db, nil
}

type Store struct {
	db *gorm.DB
}

var _ store.TxManager = (*Store)(nil)

func NewStore(db *gorm.DB) *Store { return &Store{db: db} }

func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	return s.db.WithContext(ctx).Transaction(func(gtx *gorm.DB) error {
		return fn(ctx, &tx{db: gtx})
	})
}

// SeedProduct upserts a catalog product and its variants. The catalog is owned elsewhere; this is for
// fixtures and local runs.
func (s *Store) SeedProduct(ctx context.Context, p inventory.Product) error {
	return s.db.WithContext(ctx).Transaction(func(gtx *gorm.DB) error {
		row := productRow{ID: p.ID, Name: p.Name, SKU: p.SKU, DeletedAt: p.DeletedAt}
		if err := gtx.Save(&row).Error; err != nil {
			return err
		}
		for _, v := range p.Variants {
			vr := variantRow{ID: v.ID, ProductID: p.ID, Label: v.Label, Stock: v.Stock}
			if err := gtx.Save(&vr).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) SeedDiscount(ctx context.Context, d pricing.DiscountCode) error {
	row := discountToRow(d)
	return s.db.WithContext(ctx).Save(&row).Error
}

type tx struct {
	db *gorm.DB
}

func (t *tx) Carts() cart.Repository                { return cartRepository{t.db} }
func (t *tx) Orders() order.Repository              { return orderRepository{t.db} }
func (t *tx) Payments() payment.Repository          { return paymentRepository{t.db} }
func (t *tx) Stock() inventory.Ledger               { return stockLedger{t.db} }
func (t *tx) Events() eventlog.Log                  { return eventLog{t.db} }
func (t *tx) Discounts() pricing.DiscountRepository { return discountRepository{t.db} }

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
