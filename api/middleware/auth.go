package middleware

import (
	"context"
	"net/http"

	"github.com/angelmondragon/pickup-orders/api/responses"
	"github.com/angelmondragon/pickup-orders/api/validators"
	pkgAuth "github.com/angelmondragon/pickup-orders/pkg/auth"
	"github.com/angelmondragon/pickup-orders/pkg/config"
	pkgerrors "github.com/angelmondragon/pickup-orders/pkg/errors"
	"github.com/angelmondragon/pickup-orders/pkg/logger"
)

// Auth validates a bearer token and seeds the request context with the claims.
func Auth(cfg config.JWTConfig, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := validators.BearerToken(r.Header.Get("Authorization"))
			if token == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
				return
			}

			claims, err := pkgAuth.ParseAccessToken(cfg, token)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid token"))
				return
			}

			ctx := context.WithValue(r.Context(), ctxUserID, claims.UserID.String())
			ctx = context.WithValue(ctx, ctxRole, string(claims.Role))
			if claims.OutletID != nil {
				ctx = context.WithValue(ctx, ctxOutletID, claims.OutletID.String())
			}

			if logg != nil {
				ctx = logg.WithUserID(ctx, claims.UserID.String())
				ctx = logg.WithActorRole(ctx, string(claims.Role))
				if claims.OutletID != nil {
					ctx = logg.WithOutletID(ctx, claims.OutletID.String())
				}
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
