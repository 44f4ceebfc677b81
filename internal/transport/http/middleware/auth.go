package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	pkgctx "github.com/baechuer/newsroom/internal/pkg/context"
	"github.com/baechuer/newsroom/internal/security"
	"github.com/baechuer/newsroom/internal/transport/http/response"
)

type ctxKey string

const ctxClaims ctxKey = "claims"

type AuthMiddleware struct {
	verifier security.AccessTokenVerifier
}

func NewAuth(v security.AccessTokenVerifier) *AuthMiddleware {
	return &AuthMiddleware{verifier: v}
}

// Require rejects requests without a valid bearer token.
func (a *AuthMiddleware) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, err := a.parse(r)
		if err != nil {
			response.Fail(w, http.StatusUnauthorized, "unauthorized", "unauthorized",
				map[string]string{"reason": err.Error()}, pkgctx.GetRequestID(r.Context()))
			return
		}
		next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
	})
}

// Optional attaches claims when a valid token is present and otherwise lets
// the request through anonymously. A bad token is treated as no token.
func (a *AuthMiddleware) Optional(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if claims, err := a.parse(r); err == nil {
			r = r.WithContext(WithClaims(r.Context(), claims))
		}
		next.ServeHTTP(w, r)
	})
}

func (a *AuthMiddleware) parse(r *http.Request) (security.TokenClaims, error) {
	h := strings.TrimSpace(r.Header.Get("Authorization"))
	if !strings.HasPrefix(h, "Bearer ") {
		return security.TokenClaims{}, security.ErrTokenMissing
	}
	raw := strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	if raw == "" {
		return security.TokenClaims{}, security.ErrTokenMissing
	}
	claims, err := a.verifier.VerifyAccessToken(raw)
	if err != nil {
		return security.TokenClaims{}, err
	}
	if claims.UserID == "" {
		return security.TokenClaims{}, errors.New("missing uid")
	}
	return claims, nil
}

func WithClaims(ctx context.Context, c security.TokenClaims) context.Context {
	return context.WithValue(ctx, ctxClaims, c)
}

func ClaimsFromContext(ctx context.Context) (security.TokenClaims, bool) {
	c, ok := ctx.Value(ctxClaims).(security.TokenClaims)
	return c, ok && c.UserID != ""
}

// UserID is "" for anonymous requests.
func UserID(r *http.Request) string {
	c, _ := ClaimsFromContext(r.Context())
	return c.UserID
}
