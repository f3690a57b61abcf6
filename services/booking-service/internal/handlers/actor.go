package handlers

import (
	"context"
	"net/http"

	"github.com/md-rashed-zaman/slotbook/libs/auth"
	"github.com/md-rashed-zaman/slotbook/libs/httpx"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/model"
)

type ctxKey int

const ctxKeyActor ctxKey = iota

func ActorFromContext(ctx context.Context) (model.Actor, bool) {
	a, ok := ctx.Value(ctxKeyActor).(model.Actor)
	return a, ok
}

func ContextWithActor(ctx context.Context, a model.Actor) context.Context {
	return context.WithValue(ctx, ctxKeyActor, a)
}

// TokenVerifier is satisfied by auth.Verifier.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (*auth.Claims, error)
}

// RequireActor authenticates the bearer token and stores the resulting actor in the request context.
func RequireActor(v TokenVerifier) httpx.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := auth.BearerToken(r.Header.Get("Authorization"))
			if !ok {
				httpx.WriteError(w, http.StatusUnauthorized, "unauthenticated", "missing or invalid Authorization header")
				return
			}
			claims, err := v.Verify(r.Context(), token)
			if err != nil {
				httpx.WriteError(w, http.StatusUnauthorized, "unauthenticated", "invalid token")
				return
			}
			actor, ok := actorFromClaims(claims)
			if !ok {
				httpx.WriteError(w, http.StatusForbidden, "forbidden", "role may not use the booking api")
				return
			}
			next.ServeHTTP(w, r.WithContext(ContextWithActor(r.Context(), actor)))
		})
	}
}

func actorFromClaims(c *auth.Claims) (model.Actor, bool) {
	switch {
	case c.IsBusiness():
		return model.Actor{Kind: model.ActorBusiness, ID: c.Sub, BusinessID: c.BusinessID}, true
	case c.Role == auth.RoleClient:
		return model.Actor{Kind: model.ActorClient, ID: c.Sub}, true
	}
	return model.Actor{}, false
}
