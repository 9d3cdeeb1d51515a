package middleware

import (
	"context"
	"net/http"

	"github.com/go-chi/jwtauth/v5"

	"codequest/internal/app/service"
	"codequest/internal/common"
	"codequest/internal/common/security"
)

type contextKey string

const callerCtxKey contextKey = "caller"

// Authenticator requires a verified bearer token and stores the caller in
// the request context. It must run after jwtauth.Verifier.
func Authenticator(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, claims, err := jwtauth.FromContext(r.Context())
		if err != nil {
			if token == nil {
				common.RespondWithError(w, http.StatusUnauthorized, "Authorization token required")
			} else {
				common.RespondWithError(w, http.StatusUnauthorized, "Invalid token: "+err.Error())
			}
			return
		}
		if token == nil {
			common.RespondWithError(w, http.StatusUnauthorized, "Invalid token")
			return
		}

		userID, err := security.GetUserIDFromClaims(claims)
		if err != nil {
			common.RespondWithError(w, http.StatusUnauthorized, "Invalid token claims: "+err.Error())
			return
		}
		role, err := security.GetUserRoleFromClaims(claims)
		if err != nil {
			common.RespondWithError(w, http.StatusUnauthorized, "Invalid token claims: "+err.Error())
			return
		}

		ctx := WithCaller(r.Context(), service.Caller{UserID: userID, Role: role})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func WithCaller(ctx context.Context, c service.Caller) context.Context {
	return context.WithValue(ctx, callerCtxKey, c)
}

func CallerFromContext(ctx context.Context) (service.Caller, bool) {
	c, ok := ctx.Value(callerCtxKey).(service.Caller)
	return c, ok
}
