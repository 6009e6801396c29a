// Package memory is an in-process store used by tests and the database-less demo mode.
// Transactions are serialized: WithinTx works on a deep copy of the state and swaps it in on success.
package memory

import (
	"context"
	"sync"

	"github.com/Zhima-Mochi/minishop-checkout/internal/application/store"
	"github.com/Zhima-Mochi/minishop-checkout/internal/domain/cart"
	"github.com/Zhima-Mochi/minishop-checkout/internal/domain/eventlog"
	"github.com/Zhima-Mochi/minishop-checkout/internal/domain/inventory"
	"github.com/Zhima-Mochi/minishop-checkout/internal/domain/order"
	"github.com/Zhima-Mochi/minishop-checkout/internal/domain/payment"
	"github.com/Zhima-Mochi/minishop-checkout/internal/domain/pricing"
)

type state struct {
	carts       map[string]*cart.Cart
	orders      map[string]*order.Order
	idempotency map[string]string // user + key -> order id
	payments    map[string]*payment.Record
	paymentRefs map[string]string   // provider + ref -> record id
	orderPays   map[string][]string // order id -> record ids, insertion order
	products    map[string]*inventory.Product
	variants    map[string]string // variant id -> product id
	purchases   map[string]int
	events      map[string][]eventlog.Entry
	discounts   map[string]*pricing.DiscountCode
}

func newState() *state {
	return &state{
		carts:       make(map[string]*cart.Cart),
		orders:      make(map[string]*order.Order),
		idempotency: make(map[string]string),
		payments:    make(map[string]*payment.Record),
		paymentRefs: make(map[string]string),
		orderPays:   make(map[string][]string),
		products:    make(map[string]*inventory.Product),
		variants:    make(map[string]string),
		purchases:   make(map[string]int),
		events:      make(map[string][]eventlog.Entry),
		discounts:   make(map[string]*pricing.DiscountCode),
	}
}

func (s *state) clone() *state {
	c := newState()
	for k, v := range s.carts {
		c.carts[k] = v.Clone()
	}
	for k, v := range s.orders {
		c.orders[k] = v.Clone()
	}
	for k, v := range s.idempotency {
		c.idempotency[k] = v
	}
	for k, v := range s.payments {
		c.payments[k] = v.Clone()
	}
	for k, v := range s.paymentRefs {
		c.paymentRefs[k] = v
	}
	for k, v := range s.orderPays {
		c.orderPays[k] = append([]string(nil), v...)
	}
	for k, v := range s.products {
		c.products[k] = cloneProduct(v)
	}
	for k, v := range s.variants {
		c.variants[k] = v
	}
	for k, v := range s.purchases {
		c.purchases[k] = v
	}
	for k, v := range s.events {
		c.events[k] = append([]eventlog.Entry(nil), v...)
	}
	for k, v := range s.discounts {
		d := *v
		c.discounts[k] = &d
	}
	return c
}

// Store implements store.TxManager.
type Store struct {
	mu    sync.Mutex
	state *state
}

func NewStore() *Store {
	return &Store{state: newState()}
}

func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	working := s.state.clone()
	if err := fn(ctx, &tx{st: working}); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.state = working
	return nil
}

// SeedProduct registers or replaces a catalog product with its size variants.
func (s *Store) SeedProduct(p inventory.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if old, ok := s.state.products[p.ID]; ok {
		for _, v := range old.Variants {
			delete(s.state.variants, v.ID)
		}
	}
	cp := cloneProduct(&p)
	for i := range cp.Variants {
		cp.Variants[i].ProductID = cp.ID
		s.state.variants[cp.Variants[i].ID] = cp.ID
	}
	s.state.products[cp.ID] = cp
}

func (s *Store) SeedDiscount(d pricing.DiscountCode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d.Code = pricing.NormalizeCode(d.Code)
	s.state.discounts[d.Code] = &d
}

func (s *Store) SeedCart(c cart.Cart) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.carts[c.UserID] = c.Clone()
}

// VariantStock reports the committed stock of a variant, or -1 when it is unknown.
func (s *Store) VariantStock(productID, label string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.state.products[productID]
	if !ok {
		return -1
	}
	v, err := p.Variant(label)
	if err != nil {
		return -1
	}
	return v.Stock
}

func (s *Store) Purchases(productID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.purchases[productID]
}

type tx struct {
	st *state
}

func (t *tx) Carts() cart.Repository                { return cartRepository{t.st} }
func (t *tx) Orders() order.Repository              { return orderRepository{t.st} }
func (t *tx) Payments() payment.Repository          { return paymentRepository{t.st} }
func (t *tx) Stock() inventory.Ledger               { return stockLedger{t.st} }
func (t *tx) Events() eventlog.Log                  { return eventLog{t.st} }
func (t *tx) Discounts() pricing.DiscountRepository { return discountRepository{t.st} }

func cloneProduct(p *inventory.Product) *inventory.Product {
	cp := *p
	cp.Variants = append([]inventory.SizeVariant(nil), p.Variants...)
	if p.DeletedAt != nil {
		t := *p.DeletedAt
		cp.DeletedAt = &t
	}
	return &cp
}

func compositeKey(a, b string) string { return a + "\x00" + b }
