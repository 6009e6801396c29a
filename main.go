package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Zhima-Mochi/minishop-checkout/internal/application/checkout"
	"github.com/Zhima-Mochi/minishop-checkout/internal/application/notification"
	appOrder "github.com/Zhima-Mochi/minishop-checkout/internal/application/order"
	appPayment "github.com/Zhima-Mochi/minishop-checkout/internal/application/payment"
	"github.com/Zhima-Mochi/minishop-checkout/internal/application/settlement"
	"github.com/Zhima-Mochi/minishop-checkout/internal/application/store"
	"github.com/Zhima-Mochi/minishop-checkout/internal/config"
	"github.com/Zhima-Mochi/minishop-checkout/internal/domain/cart"
	"github.com/Zhima-Mochi/minishop-checkout/internal/domain/inventory"
	"github.com/Zhima-Mochi/minishop-checkout/internal/domain/pricing"
	"github.com/Zhima-Mochi/minishop-checkout/internal/infrastructure/id"
	"github.com/Zhima-Mochi/minishop-checkout/internal/infrastructure/idempotency"
	"github.com/Zhima-Mochi/minishop-checkout/internal/infrastructure/memory"
	"github.com/Zhima-Mochi/minishop-checkout/internal/infrastructure/notify"
	infraobs "github.com/Zhima-Mochi/minishop-checkout/internal/infrastructure/observability"
	"github.com/Zhima-Mochi/minishop-checkout/internal/infrastructure/observability/oteltrace"
	"github.com/Zhima-Mochi/minishop-checkout/internal/infrastructure/observability/prometrics"
	"github.com/Zhima-Mochi/minishop-checkout/internal/infrastructure/observability/zaplogger"
	"github.com/Zhima-Mochi/minishop-checkout/internal/infrastructure/outbox"
	"github.com/Zhima-Mochi/minishop-checkout/internal/infrastructure/payment/simulated"
	stripeprovider "github.com/Zhima-Mochi/minishop-checkout/internal/infrastructure/payment/stripe"
	"github.com/Zhima-Mochi/minishop-checkout/internal/infrastructure/postgres"
	"github.com/Zhima-Mochi/minishop-checkout/internal/observability"
	httppresentation "github.com/Zhima-Mochi/minishop-checkout/internal/presentation/http"
	workerpresentation "github.com/Zhima-Mochi/minishop-checkout/internal/presentation/worker"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "minishop-checkout:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	baseLogger, err := zaplogger.New(cfg.ServiceName, cfg.Env)
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer func() { _ = baseLogger.Sync() }()
	zap.ReplaceGlobals(baseLogger.Zap())

	counters, histograms := prometrics.Instruments(prometrics.New("minishop", "checkout"))
	tel := infraobs.New(infraobs.Parts{
		Tracer:     oteltrace.New(cfg.ServiceName),
		Logger:     baseLogger,
		Counters:   counters,
		Histograms: histograms,
	})
	systemLogger := observability.LoggerOf(tel, "system")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	txm, err := openStore(ctx, cfg, systemLogger)
	if err != nil {
		return err
	}

	idem, closeIdem := openIdempotency(cfg, systemLogger)
	defer closeIdem()

	provider, err := openProvider(cfg)
	if err != nil {
		return err
	}
	systemLogger.Info("payment_provider_selected", observability.F("provider", provider.Name()))

	bus := outbox.NewBus(tel, outbox.WithContextDecorator(workerpresentation.EventContext(tel)))
	bus.Start(ctx)

	notifier, closeNotifier := openNotifier(cfg, baseLogger)
	defer closeNotifier()
	notification.NewWorker(bus, notifier, txm, tel).Start()

	ids := id.NewUUIDGenerator()
	cancelOrder := appOrder.NewCancelUseCase(txm, ids, tel)
	if cfg.PendingOrderTTL > 0 {
		go appOrder.NewSweeper(txm, cancelOrder, cfg.PendingOrderTTL, tel).Run(ctx)
	}

	deps := httppresentation.Deps{
		Checkout:        checkout.NewUseCase(txm, ids, pricing.DefaultCalculator(), cfg.Currency, tel),
		Intent:          appPayment.NewIntentUseCase(txm, ids, provider, tel),
		Webhooks:        settlement.NewReconciler(txm, ids, provider, bus, tel),
		GetOrder:        appOrder.NewGetUseCase(txm, tel),
		CancelOrder:     cancelOrder,
		Idempotency:     idem,
		Auth:            httppresentation.NewAuthenticator(cfg.AuthJWTSecret),
		Limiter:         httppresentation.NewRateLimiter(cfg.CheckoutPerMin),
		SignatureHeader: provider.SignatureHeader(),
		Metrics:         promhttp.Handler(),
	}
	if sim, ok := provider.(*simulated.Provider); ok {
		deps.Simulator = sim
	}
	handler := httppresentation.NewHandler(deps, tel)

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		systemLogger.Info("http_server_start", observability.F("addr", server.Addr))
		err := server.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			systemLogger.Error("http_server_error", observability.F("error", err.Error()))
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		systemLogger.Error("http_server_shutdown_error", observability.F("error", err.Error()))
	} else {
		systemLogger.Info("http_server_stopped")
	}
	if err := bus.Stop(shutdownCtx); err != nil {
		systemLogger.Warn("event_bus_drain_incomplete", observability.F("error", err.Error()))
	}
	return nil
}

func openStore(ctx context.Context, cfg config.Config, log observability.Logger) (store.TxManager, error) {
	if cfg.DatabaseURL == "" {
		log.Warn("store_in_memory", observability.F("reason", "DATABASE_URL is empty"))
		s := memory.NewStore()
		seedDemo(s)
		return s, nil
	}
	if err := postgres.Migrate(cfg.DatabaseURL); err != nil {
		return nil, err
	}
	db, err := postgres.Open(ctx, cfg.DatabaseURL, cfg.DBMaxOpenConns)
	if err != nil {
		return nil, err
	}
	log.Info("store_postgres_ready")
	return postgres.NewStore(db), nil
}

func openIdempotency(cfg config.Config, log observability.Logger) (idempotency.Store, func()) {
	if cfg.RedisAddr == "" {
		return idempotency.NewMemoryStore(cfg.IdempotencyTTL), func() {}
	}
	client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	log.Info("idempotency_redis", observability.F("addr", cfg.RedisAddr))
	return idempotency.NewRedisStore(client, cfg.IdempotencyTTL), func() { _ = client.Close() }
}

func openProvider(cfg config.Config) (appPayment.Provider, error) {
	if cfg.PaymentProvider == config.ProviderStripe {
		return stripeprovider.New(cfg.StripeSecretKey, cfg.StripeWebhookSecret)
	}
	return simulated.New(cfg.SimulatedWebhookSecret)
}

func openNotifier(cfg config.Config, logger observability.Logger) (notification.Notifier, func()) {
	if len(cfg.KafkaBrokers) == 0 {
		return notify.NewLogNotifier(logger.With(observability.F("service", "notifier"))), func() {}
	}
	n := notify.NewKafkaNotifier(notify.NewKafkaWriter(cfg.KafkaTopic, cfg.KafkaBrokers...))
	return n, func() { _ = n.Close() }
}

// seedDemo gives the in-memory store a small catalog and a cart for demo-user so the dev flow works end to end.
func seedDemo(s *memory.Store) {
	s.SeedProduct(inventory.Product{
		ID: "tee", Name: "Logo Tee", SKU: "TEE-1",
		Variants: []inventory.SizeVariant{
			{ID: "tee-s", Label: "S", Stock: 10},
			{ID: "tee-m", Label: "M", Stock: 10},
			{ID: "tee-l", Label: "L", Stock: 5},
		},
	})
	s.SeedProduct(inventory.Product{ID: "sticker", Name: "Sticker Pack", SKU: "STK-1"})
	s.SeedDiscount(pricing.DiscountCode{Code: "WELCOME10", Kind: pricing.DiscountPercent, PercentOff: 10})

	var lines []cart.Line
	for _, l := range []struct {
		product, size string
		qty           int
		price         int64
	}{{"tee", "M", 2, 1200}, {"sticker", "", 1, 500}} {
		line, err := cart.NewLine(l.product, l.size, l.qty, l.price)
		if err == nil {
			lines = append(lines, line)
		}
	}
	s.SeedCart(cart.Cart{UserID: "demo-user", Lines: lines})
}
