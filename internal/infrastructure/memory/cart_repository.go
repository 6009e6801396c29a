package memory

import (
	"context"
	"time"

	"github.com/Zhima-Mochi/minishop-checkout/internal/domain/cart"
)

type cartRepository struct {
	st *state
}

func (r cartRepository) Get(_ context.Context, userID string) (*cart.Cart, error) {
	c, ok := r.st.carts[userID]
	if !ok {
		return &cart.Cart{UserID: userID}, nil
	}
	return c.Clone(), nil
}

func (r cartRepository) Save(_ context.Context, c *cart.Cart) error {
	cp := c.Clone()
	cp.UpdatedAt = time.Now().UTC()
	r.st.carts[c.UserID] = cp
	return nil
}

func (r cartRepository) Clear(_ context.Context, userID string) error {
	c, ok := r.st.carts[userID]
	if !ok {
		return nil
	}
	c.Lines = nil
	c.UpdatedAt = time.Now().UTC()
	return nil
}
