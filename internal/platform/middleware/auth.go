package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// Role classifies an authenticated caller.
type Role string

const (
	RoleRequester Role = "requester"
	RoleShopOwner Role = "shop-owner"
	RoleAdmin     Role = "admin"
)

// Actor is the authenticated principal attached to each request. ShopID is
// only populated for shop-owner tokens and names the shop the owner operates.
type Actor struct {
	UserID string
	Role   Role
	ShopID string
}

// actorClaims is the JWT claim set issued by the auth collaborator.
type actorClaims struct {
	Role   string `json:"role"`
	ShopID string `json:"shop_id,omitempty"`
	jwt.RegisteredClaims
}

type contextKeyActor struct{}

// ContextKeyActor is exported for use in handler tests.
var ContextKeyActor = contextKeyActor{}

// GetActor retrieves the authenticated actor from the context.
func GetActor(ctx context.Context) (Actor, bool) {
	actor, ok := ctx.Value(ContextKeyActor).(Actor)
	return actor, ok
}

// WithActor returns a context carrying the actor. Handler tests use this to
// simulate authenticated requests without minting tokens.
func WithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, ContextKeyActor, actor)
}

func writeJSONError(w http.ResponseWriter, status int, errCode, errDesc string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(fmt.Appendf(nil, `{"error":"%s","error_description":"%s"}`, errCode, errDesc))
}

// RequireAuth validates the bearer token and stores the Actor in the request
// context. Tokens are HMAC-signed by the auth collaborator with the shared key.
func RequireAuth(signingKey string, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			const bearerPrefix = "Bearer "
			token, ok := strings.CutPrefix(authHeader, bearerPrefix)
			if !ok {
				writeJSONError(w, http.StatusUnauthorized, "unauthorized", "Missing bearer token")
				return
			}

			claims := &actorClaims{}
			parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
				}
				return []byte(signingKey), nil
			})
			if err != nil || !parsed.Valid {
				logger.WarnContext(r.Context(), "unauthorized access - invalid token", "error", err)
				writeJSONError(w, http.StatusUnauthorized, "unauthorized", "Invalid or expired token")
				return
			}

			role := Role(claims.Role)
			switch role {
			case RoleRequester, RoleShopOwner, RoleAdmin:
			default:
				logger.WarnContext(r.Context(), "unauthorized access - unknown role", "role", claims.Role)
				writeJSONError(w, http.StatusUnauthorized, "unauthorized", "Invalid or expired token")
				return
			}

			actor := Actor{
				UserID: claims.Subject,
				Role:   role,
				ShopID: claims.ShopID,
			}
			next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), actor)))
		})
	}
}

// RequireRole gates a route to the listed roles. Runs after RequireAuth.
func RequireRole(logger *slog.Logger, roles ...Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, ok := GetActor(r.Context())
			if !ok {
				writeJSONError(w, http.StatusUnauthorized, "unauthorized", "Authentication required")
				return
			}
			for _, role := range roles {
				if actor.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			logger.WarnContext(r.Context(), "forbidden - role not allowed",
				"role", actor.Role,
				"path", r.URL.Path,
			)
			writeJSONError(w, http.StatusForbidden, "forbidden", "Insufficient role")
		})
	}
}
