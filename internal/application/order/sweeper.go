package order

import (
	"context"
	"fmt"
	"time"

	"github.com/Zhima-Mochi/minishop-checkout/internal/application/store"
	"github.com/Zhima-Mochi/minishop-checkout/internal/observability"
	"github.com/Zhima-Mochi/minishop-checkout/internal/observability/logctx"
)

const (
	sweeperService   = "order-sweeper"
	defaultBatchSize = 100
)

// Sweeper cancels unpaid orders older than ttl, returning their stock.
type Sweeper struct {
	tx       store.TxManager
	cancel   *CancelUseCase
	ttl      time.Duration
	interval time.Duration
	batch    int
	now      func() time.Time
	log      observability.Logger
}

func NewSweeper(tx store.TxManager, cancel *CancelUseCase, ttl time.Duration, tel observability.Observability) *Sweeper {
	interval := ttl / 4
	if interval < time.Minute {
		interval = time.Minute
	}
	return &Sweeper{
		tx:       tx,
		cancel:   cancel,
		ttl:      ttl,
		interval: interval,
		batch:    defaultBatchSize,
		now:      time.Now,
		log:      observability.LoggerOf(tel, sweeperService),
	}
}

// Run sweeps on every tick until ctx is done.
func (s *Sweeper) Run(ctx context.Context) {
	logger := logctx.FromOr(ctx, s.log)
	logger.Info("order_sweeper_started",
		observability.F("ttl", s.ttl.String()),
		observability.F("interval", s.interval.String()),
	)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("order_sweeper_stopped")
			return
		case <-ticker.C:
			if _, err := s.Sweep(ctx); err != nil {
				logger.Warn("order_sweep_failed", observability.F("error", err))
			}
		}
	}
}

// Sweep cancels one batch of stale orders and reports how many were cancelled.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	cutoff := s.now().Add(-s.ttl)

	var ids []string
	err := s.tx.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		ids, err = tx.Orders().ListStaleUnpaid(ctx, cutoff, s.batch)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("list stale orders: %w", err)
	}

	cancelled := 0
	for _, id := range ids {
		if ctx.Err() != nil {
			return cancelled, ctx.Err()
		}
		res, err := s.cancel.Execute(ctx, CancelCommand{OrderID: id, Reason: ReasonExpired})
		if err != nil {
			// A settlement can win the race between listing and cancelling; that order is simply skipped.
			logctx.FromOr(ctx, s.log).Warn("order_expire_skipped",
				observability.F("order_id", id),
				observability.F("error", err),
			)
			continue
		}
		if !res.AlreadyCancelled {
			cancelled++
		}
	}
	if cancelled > 0 {
		logctx.FromOr(ctx, s.log).Info("stale_orders_cancelled", observability.F("count", cancelled))
	}
	return cancelled, nil
}
