package httppresentation

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/Zhima-Mochi/minishop-checkout/internal/application"
	"github.com/Zhima-Mochi/minishop-checkout/internal/application/checkout"
	apporder "github.com/Zhima-Mochi/minishop-checkout/internal/application/order"
	apppay "github.com/Zhima-Mochi/minishop-checkout/internal/application/payment"
	"github.com/Zhima-Mochi/minishop-checkout/internal/application/settlement"
	"github.com/Zhima-Mochi/minishop-checkout/internal/infrastructure/idempotency"
	"github.com/Zhima-Mochi/minishop-checkout/internal/observability"
	"github.com/Zhima-Mochi/minishop-checkout/internal/observability/logctx"
)

const componentHTTPHandler = "http_server"

// WebhookReconciler applies authenticated provider envelopes.
type WebhookReconciler interface {
	HandleWebhook(ctx context.Context, payload []byte, signature string) (*settlement.Outcome, error)
}

// Simulator signs envelopes the way the simulated provider's webhooks are signed.
type Simulator interface {
	Name() string
	Sign(payload []byte) string
}

type Deps struct {
	Checkout    application.UseCase[checkout.Command, *checkout.Result]
	Intent      application.UseCase[apppay.IntentCommand, *apppay.IntentResult]
	Webhooks    WebhookReconciler
	GetOrder    application.UseCase[apporder.GetQuery, *apporder.View]
	CancelOrder application.UseCase[apporder.CancelCommand, *apporder.CancelResult]

	Idempotency idempotency.Store
	Auth        *Authenticator
	Limiter     *RateLimiter
	// SignatureHeader names the header carrying the provider's webhook signature.
	SignatureHeader string
	// Simulator is set only in simulated provider mode and enables POST /payments/simulate.
	Simulator Simulator
	Metrics   http.Handler
}

type Handler struct {
	Deps
	auth *Authenticator
	log  observability.Logger

	httpRequests observability.Counter   // http_requests_total{method,route,status}
	httpDuration observability.Histogram // http_request_duration_seconds{method,route,status}
}

func NewHandler(deps Deps, tel observability.Observability) *Handler {
	metrics := observability.MetricsOf(tel)
	auth := deps.Auth
	if auth == nil {
		auth = NewAuthenticator("")
	}
	if deps.Idempotency == nil {
		deps.Idempotency = idempotency.NewMemoryStore(idempotencyTTL)
	}
	return &Handler{
		Deps:         deps,
		auth:         auth,
		log:          observability.LoggerOf(tel, componentHTTPHandler),
		httpRequests: metrics.Counter(observability.MHTTPRequests),
		httpDuration: metrics.Histogram(observability.MHTTPRequestDuration),
	}
}

type access int

const (
	public access = iota
	authed
	// limited is authed plus the per-user rate limit.
	limited
)

func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)

	h.handle(r, http.MethodGet, "/health", public, h.handleHealth)
	if h.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", h.Metrics)
	}
	h.handle(r, http.MethodPost, "/checkout", limited, h.handleCheckout)
	h.handle(r, http.MethodPost, "/payments/intent", limited, h.handleCreateIntent)
	h.handle(r, http.MethodPost, "/webhooks/payment", public, h.handleWebhook)
	h.handle(r, http.MethodGet, "/orders/{id}", authed, h.handleGetOrder)
	h.handle(r, http.MethodPost, "/orders/{id}/cancel", authed, h.handleCancelOrder)
	if h.Simulator != nil {
		h.handle(r, http.MethodPost, "/payments/simulate", authed, h.handleSimulate)
	}
	return r
}

// handle wires route as: Trace → Request Logger → Metrics → Access Log → [Auth → Rate limit] → Handler.
func (h *Handler) handle(r chi.Router, method, route string, level access, fn http.HandlerFunc) {
	var inner http.Handler = fn
	if level == limited {
		inner = h.withRateLimit(inner)
	}
	if level >= authed {
		inner = h.withAuth(inner)
	}
	wrapped := h.withTrace(
		ObservabilityMiddleware(h.log)(
			h.withHTTPMetrics(
				h.withAccessLog(inner),
			),
		),
	)
	r.Method(method, route, http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		wrapped.ServeHTTP(w, req.WithContext(contextWithRoute(req.Context(), route)))
	}))
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) logger(ctx context.Context) observability.Logger {
	return logctx.FromOr(ctx, h.log)
}
