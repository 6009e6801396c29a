package httppresentation_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Zhima-Mochi/minishop-checkout/internal/application/checkout"
	apporder "github.com/Zhima-Mochi/minishop-checkout/internal/application/order"
	apppay "github.com/Zhima-Mochi/minishop-checkout/internal/application/payment"
	"github.com/Zhima-Mochi/minishop-checkout/internal/application/settlement"
	"github.com/Zhima-Mochi/minishop-checkout/internal/domain/cart"
	"github.com/Zhima-Mochi/minishop-checkout/internal/domain/inventory"
	domoutbox "github.com/Zhima-Mochi/minishop-checkout/internal/domain/outbox"
	"github.com/Zhima-Mochi/minishop-checkout/internal/domain/pricing"
	"github.com/Zhima-Mochi/minishop-checkout/internal/infrastructure/memory"
	"github.com/Zhima-Mochi/minishop-checkout/internal/infrastructure/payment/envelope"
	"github.com/Zhima-Mochi/minishop-checkout/internal/infrastructure/payment/simulated"
	httppresentation "github.com/Zhima-Mochi/minishop-checkout/internal/presentation/http"
)

type seqIDs struct{ n atomic.Int64 }

func (s *seqIDs) NewID() string { return fmt.Sprintf("id-%d", s.n.Add(1)) }

type countingPublisher struct{ n atomic.Int64 }

func (p *countingPublisher) Publish(context.Context, domoutbox.Event) error {
	p.n.Add(1)
	return nil
}

type fixture struct {
	store     *memory.Store
	provider  *simulated.Provider
	publisher *countingPublisher
	server    *httptest.Server
}

type options struct {
	jwtSecret string
	perMinute int
}

func newFixture(t *testing.T, opts options) *fixture {
	t.Helper()
	if opts.perMinute == 0 {
		opts.perMinute = 100
	}
	s := memory.NewStore()
	s.SeedProduct(inventory.Product{
		ID: "tee", Name: "Logo Tee", SKU: "TEE-1",
		Variants: []inventory.SizeVariant{{ID: "tee-m", Label: "M", Stock: 2}},
	})
	line, err := cart.NewLine("tee", "M", 2, 1200)
	require.NoError(t, err)
	s.SeedCart(cart.Cart{UserID: "u1", Lines: []cart.Line{line}})

	provider, err := simulated.New("whsec_test")
	require.NoError(t, err)
	ids := &seqIDs{}
	pub := &countingPublisher{}
	cancel := apporder.NewCancelUseCase(s, ids, nil)

	h := httppresentation.NewHandler(httppresentation.Deps{
		Checkout:        checkout.NewUseCase(s, ids, pricing.DefaultCalculator(), "USD", nil),
		Intent:          apppay.NewIntentUseCase(s, ids, provider, nil),
		Webhooks:        settlement.NewReconciler(s, ids, provider, pub, nil),
		GetOrder:        apporder.NewGetUseCase(s, nil),
		CancelOrder:     cancel,
		Auth:            httppresentation.NewAuthenticator(opts.jwtSecret),
		Limiter:         httppresentation.NewRateLimiter(opts.perMinute),
		SignatureHeader: provider.SignatureHeader(),
		Simulator:       provider,
	}, nil)

	srv := httptest.NewServer(h.Router())
	t.Cleanup(srv.Close)
	return &fixture{store: s, provider: provider, publisher: pub, server: srv}
}

func (f *fixture) do(t *testing.T, method, path, user string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var rdr *bytes.Reader
	switch b := body.(type) {
	case nil:
		rdr = bytes.NewReader(nil)
	case []byte:
		rdr = bytes.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		rdr = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, f.server.URL+path, rdr)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if user != "" {
		req.Header.Set("X-User-ID", user)
		req.Header.Set("X-User-Email", user+"@example.com")
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	out := map[string]any{}
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

func checkoutBody(key string) map[string]any {
	return map[string]any{
		"shippingAddress": map[string]any{
			"fullName": "Ada Lovelace", "line1": "1 Main St", "city": "Austin",
			"region": "TX", "postalCode": "78701", "country": "us",
		},
		"idempotencyKey": key,
	}
}

func TestCheckoutToPaidOrder(t *testing.T) {
	f := newFixture(t, options{})

	resp, body := f.do(t, http.MethodPost, "/checkout", "u1", checkoutBody("k1"))
	require.Equal(t, http.StatusCreated, resp.StatusCode, body)
	orderID, _ := body["orderId"].(string)
	require.NotEmpty(t, orderID)
	assert.Equal(t, "PENDING", body["status"])
	assert.Equal(t, float64(2400), body["subtotalCents"])

	resp, body = f.do(t, http.MethodPost, "/payments/intent", "u1", map[string]any{"orderId": orderID})
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	assert.Equal(t, "AWAITING_PAYMENT", body["status"])
	assert.NotEmpty(t, body["clientSecret"])

	resp, body = f.do(t, http.MethodPost, "/payments/simulate", "u1", map[string]any{"orderId": orderID, "outcome": "succeeded"})
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	assert.Equal(t, "applied", body["result"])
	assert.Equal(t, "PAID", body["orderStatus"])
	assert.Equal(t, int64(1), f.publisher.n.Load())

	resp, body = f.do(t, http.MethodGet, "/orders/"+orderID, "u1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	assert.Equal(t, "PAID", body["status"])
	assert.NotEmpty(t, body["paidAt"])
	items, _ := body["items"].([]any)
	assert.Len(t, items, 1)
	events, _ := body["events"].([]any)
	assert.NotEmpty(t, events)
}

func TestCheckoutReplaysCompletedIdempotencyKey(t *testing.T) {
	f := newFixture(t, options{})

	resp, first := f.do(t, http.MethodPost, "/checkout", "u1", checkoutBody("k1"))
	require.Equal(t, http.StatusCreated, resp.StatusCode, first)

	resp, second := f.do(t, http.MethodPost, "/checkout", "u1", checkoutBody("k1"))
	require.Equal(t, http.StatusOK, resp.StatusCode, second)
	assert.Equal(t, "true", resp.Header.Get("Idempotent-Replayed"))
	assert.Equal(t, first["orderId"], second["orderId"])
	assert.Equal(t, 0, f.store.VariantStock("tee", "M"), "stock is reserved once")
}

func TestCheckoutStockConflict(t *testing.T) {
	f := newFixture(t, options{})
	line, err := cart.NewLine("tee", "M", 3, 1200)
	require.NoError(t, err)
	f.store.SeedCart(cart.Cart{UserID: "u2", Lines: []cart.Line{line}})

	resp, body := f.do(t, http.MethodPost, "/checkout", "u2", checkoutBody("k1"))
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "stock_conflict", body["error"])
	assert.NotEmpty(t, body["conflicts"])
	assert.Equal(t, 2, f.store.VariantStock("tee", "M"))
}

func TestCheckoutRejectsEmptyCartAndBadInput(t *testing.T) {
	f := newFixture(t, options{})

	resp, body := f.do(t, http.MethodPost, "/checkout", "nobody", checkoutBody("k1"))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "empty_cart", body["error"])

	resp, body = f.do(t, http.MethodPost, "/checkout", "u1", map[string]any{"idempotencyKey": "k2"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "validation_failed", body["error"])

	resp, body = f.do(t, http.MethodPost, "/checkout", "u1", []byte(`{"idempotencyKey":`))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "invalid_payload", body["error"])
}

func TestUnauthenticatedRequestsAreRejected(t *testing.T) {
	f := newFixture(t, options{})

	resp, body := f.do(t, http.MethodPost, "/checkout", "", checkoutBody("k1"))
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "unauthenticated", body["error"])

	resp, _ = f.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestBearerTokenAuthentication(t *testing.T) {
	f := newFixture(t, options{jwtSecret: "s3cret"})

	sign := func(secret string, exp time.Time) string {
		tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "u1", "exp": exp.Unix()})
		raw, err := tok.SignedString([]byte(secret))
		require.NoError(t, err)
		return raw
	}
	call := func(token string) int {
		raw, err := json.Marshal(checkoutBody("k1"))
		require.NoError(t, err)
		req, err := http.NewRequest(http.MethodPost, f.server.URL+"/checkout", bytes.NewReader(raw))
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		return resp.StatusCode
	}

	assert.Equal(t, http.StatusUnauthorized, call(sign("wrong", time.Now().Add(time.Hour))))
	assert.Equal(t, http.StatusUnauthorized, call(sign("s3cret", time.Now().Add(-time.Hour))))
	assert.Equal(t, http.StatusCreated, call(sign("s3cret", time.Now().Add(time.Hour))))

	// the dev header is ignored once a secret is configured
	resp, _ := f.do(t, http.MethodGet, "/orders/any", "u1", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestWebhookSignatureAndDuplicates(t *testing.T) {
	f := newFixture(t, options{})
	resp, body := f.do(t, http.MethodPost, "/checkout", "u1", checkoutBody("k1"))
	require.Equal(t, http.StatusCreated, resp.StatusCode, body)
	orderID := body["orderId"].(string)
	resp, _ = f.do(t, http.MethodPost, "/payments/intent", "u1", map[string]any{"orderId": orderID})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	payload, err := envelope.Encode("evt_1", envelope.TypeSucceeded, simulated.Ref(orderID), orderID)
	require.NoError(t, err)

	post := func(signature string) (int, map[string]any) {
		req, err := http.NewRequest(http.MethodPost, f.server.URL+"/webhooks/payment", bytes.NewReader(payload))
		require.NoError(t, err)
		req.Header.Set(f.provider.SignatureHeader(), signature)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()
		out := map[string]any{}
		_ = json.NewDecoder(resp.Body).Decode(&out)
		return resp.StatusCode, out
	}

	status, out := post("t=1,v1=deadbeef")
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "invalid_signature", out["error"])

	status, out = post(f.provider.Sign(payload))
	require.Equal(t, http.StatusOK, status, out)
	assert.Equal(t, true, out["received"])
	assert.Equal(t, "applied", out["result"])

	status, out = post(f.provider.Sign(payload))
	require.Equal(t, http.StatusOK, status, out)
	assert.Equal(t, "duplicate", out["result"])
	assert.Equal(t, int64(1), f.publisher.n.Load())
}

func TestSimulateRequiresIntent(t *testing.T) {
	f := newFixture(t, options{})
	resp, body := f.do(t, http.MethodPost, "/checkout", "u1", checkoutBody("k1"))
	require.Equal(t, http.StatusCreated, resp.StatusCode, body)

	resp, body = f.do(t, http.MethodPost, "/payments/simulate", "u1", map[string]any{"orderId": body["orderId"], "outcome": "succeeded"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "invalid_status", body["error"])
}

func TestCancelOrderRestoresStock(t *testing.T) {
	f := newFixture(t, options{})
	resp, body := f.do(t, http.MethodPost, "/checkout", "u1", checkoutBody("k1"))
	require.Equal(t, http.StatusCreated, resp.StatusCode, body)
	orderID := body["orderId"].(string)
	require.Equal(t, 0, f.store.VariantStock("tee", "M"))

	resp, body = f.do(t, http.MethodPost, "/orders/"+orderID+"/cancel", "u2", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode, "other users cannot see the order")

	resp, body = f.do(t, http.MethodPost, "/orders/"+orderID+"/cancel", "u1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	assert.Equal(t, "CANCELLED", body["status"])
	assert.Equal(t, false, body["alreadyCancelled"])
	assert.Equal(t, 2, f.store.VariantStock("tee", "M"))

	resp, body = f.do(t, http.MethodPost, "/orders/"+orderID+"/cancel", "u1", map[string]any{"reason": "changed my mind"})
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	assert.Equal(t, true, body["alreadyCancelled"])
}

func TestCheckoutRateLimit(t *testing.T) {
	f := newFixture(t, options{perMinute: 1})

	resp, _ := f.do(t, http.MethodPost, "/checkout", "u1", checkoutBody("k1"))
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, body := f.do(t, http.MethodPost, "/checkout", "u1", checkoutBody("k2"))
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "rate_limited", body["error"])
	assert.NotEmpty(t, resp.Header.Get("Retry-After"))

	resp, _ = f.do(t, http.MethodPost, "/checkout", "u2", checkoutBody("k1"))
	assert.NotEqual(t, http.StatusTooManyRequests, resp.StatusCode, "limits are per user")
}

func TestCheckoutAcceptsLowercaseCountryCodes(t *testing.T) {
	f := newFixture(t, options{})
	body := checkoutBody("k1")
	body["billingAddress"] = map[string]any{
		"fullName": "Ada Lovelace", "line1": "2 Side St", "city": "Toronto",
		"postalCode": "M5V 2T6", "country": " ca ",
	}

	resp, out := f.do(t, http.MethodPost, "/checkout", "u1", body)
	require.Equal(t, http.StatusCreated, resp.StatusCode, out)

	resp, view := f.do(t, http.MethodGet, "/orders/"+out["orderId"].(string), "u1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, view)
	shipping, _ := view["shippingAddress"].(map[string]any)
	billing, _ := view["billingAddress"].(map[string]any)
	assert.Equal(t, "US", shipping["country"])
	assert.Equal(t, "CA", billing["country"])
}

func TestCheckoutRejectsUnknownCountryCodes(t *testing.T) {
	f := newFixture(t, options{})
	for _, country := range []string{"zz", "usa", ""} {
		body := checkoutBody("k-" + country)
		body["shippingAddress"].(map[string]any)["country"] = country

		resp, out := f.do(t, http.MethodPost, "/checkout", "u1", body)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, country)
		assert.Equal(t, "validation_failed", out["error"], country)
	}
	assert.Equal(t, 2, f.store.VariantStock("tee", "M"))
}
