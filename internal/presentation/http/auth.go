package httppresentation

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/Zhima-Mochi/minishop-checkout/internal/observability"
	"github.com/Zhima-Mochi/minishop-checkout/internal/observability/logctx"
)

var ErrUnauthenticated = errors.New("http: unauthenticated")

const (
	headerDevUserID    = "X-User-ID"
	headerDevUserEmail = "X-User-Email"
)

type Identity struct {
	UserID string
	Email  string
}

type claims struct {
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// Authenticator verifies HS256 bearer tokens issued by the identity service. The subject is the user id.
// Without a secret (dev only) it trusts the X-User-ID header instead.
type Authenticator struct {
	secret []byte
}

func NewAuthenticator(secret string) *Authenticator {
	return &Authenticator{secret: []byte(secret)}
}

func (a *Authenticator) Authenticate(r *http.Request) (Identity, error) {
	if len(a.secret) == 0 {
		id := strings.TrimSpace(r.Header.Get(headerDevUserID))
		if id == "" {
			return Identity{}, ErrUnauthenticated
		}
		return Identity{UserID: id, Email: r.Header.Get(headerDevUserEmail)}, nil
	}

	raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok || raw == "" {
		return Identity{}, ErrUnauthenticated
	}
	var c claims
	_, err := jwt.ParseWithClaims(raw, &c, func(*jwt.Token) (any, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %w", ErrUnauthenticated, err)
	}
	if c.Subject == "" {
		return Identity{}, fmt.Errorf("%w: token has no subject", ErrUnauthenticated)
	}
	return Identity{UserID: c.Subject, Email: c.Email}, nil
}

type identityKey struct{}

func identityFrom(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok
}

// withAuth rejects unauthenticated requests and binds user_id onto the request logger.
func (h *Handler) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := h.auth.Authenticate(r)
		if err != nil {
			logctx.FromOr(r.Context(), h.log).Debug("auth_rejected", observability.F("error", err.Error()))
			writeError(w, http.StatusUnauthorized, codeUnauthenticated, "missing or invalid credentials")
			return
		}
		ctx := context.WithValue(r.Context(), identityKey{}, id)
		ctx, _ = logctx.Enrich(ctx, h.log, observability.F("user_id", id.UserID))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
