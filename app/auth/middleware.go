package auth

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

const identityContextKey = "ajo.identity"

// Identity is the caller as seen by handlers. SessionValid is false when the
// token was genuine but expired.
type Identity struct {
	UserID       string
	Role         string
	SessionValid bool
}

func (i *Identity) IsAdmin() bool {
	return i != nil && i.SessionValid && strings.EqualFold(i.Role, RoleAdmin)
}

type errorBody struct {
	Error string `json:"error"`
}

// RequireIdentity rejects requests without a valid, unexpired token.
func RequireIdentity(verifier *TokenVerifier) echo.MiddlewareFunc {
	return identityMiddleware(verifier, false)
}

// AllowExpiredIdentity accepts expired tokens and marks the session invalid.
// Only the synchronous payment verification route uses it.
func AllowExpiredIdentity(verifier *TokenVerifier) echo.MiddlewareFunc {
	return identityMiddleware(verifier, true)
}

func RequireAdmin() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			identity := IdentityFromContext(ctx)
			if identity == nil {
				return ctx.JSON(http.StatusUnauthorized, &errorBody{Error: ErrMissingToken.Error()})
			}
			if !identity.IsAdmin() {
				return ctx.JSON(http.StatusForbidden, &errorBody{Error: "admin role required"})
			}
			return next(ctx)
		}
	}
}

func IdentityFromContext(ctx echo.Context) *Identity {
	identity, _ := ctx.Get(identityContextKey).(*Identity)
	return identity
}

func WithIdentity(ctx echo.Context, identity *Identity) {
	ctx.Set(identityContextKey, identity)
}

func identityMiddleware(verifier *TokenVerifier, allowExpired bool) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			claims, err := verifier.Validate(bearerToken(ctx))
			switch {
			case err == nil:
				WithIdentity(ctx, &Identity{UserID: claims.UserID, Role: claims.Role, SessionValid: true})
			case errors.Is(err, ErrTokenExpired) && allowExpired:
				WithIdentity(ctx, &Identity{UserID: claims.UserID, Role: claims.Role, SessionValid: false})
			case errors.Is(err, ErrMissingToken):
				return ctx.JSON(http.StatusUnauthorized, &errorBody{Error: ErrMissingToken.Error()})
			case errors.Is(err, ErrTokenExpired):
				return ctx.JSON(http.StatusUnauthorized, &errorBody{Error: ErrTokenExpired.Error()})
			default:
				return ctx.JSON(http.StatusUnauthorized, &errorBody{Error: ErrInvalidToken.Error()})
			}
			return next(ctx)
		}
	}
}

// bearerToken reads the Authorization header, falling back to the
// access_token query parameter for websocket upgrades.
func bearerToken(ctx echo.Context) string {
	header := strings.TrimSpace(ctx.Request().Header.Get(echo.HeaderAuthorization))
	if header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
			return strings.TrimSpace(parts[1])
		}
		return ""
	}
	return strings.TrimSpace(ctx.QueryParam("access_token"))
}
