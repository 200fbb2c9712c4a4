package auth

import (
	"errors"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/noah-isme/toko-checkout/internal/common"
)

// TokenParser resolves an access token to a user id.
type TokenParser interface {
	ParseAccessToken(token string) (string, error)
}

// Middleware puts the authenticated user id on the request context.
type Middleware struct {
	Parser       TokenParser
	AccessCookie string
}

// RequireAuth rejects requests without a valid bearer token or access cookie.
func (m Middleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := m.extractToken(r)
		if token == "" || m.Parser == nil {
			common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing or invalid token", nil)
			return
		}
		userID, err := m.Parser.ParseAccessToken(token)
		if err != nil {
			var appErr *common.AppError
			if errors.As(err, &appErr) {
				common.JSONError(w, appErr.HTTPStatus, appErr.Code, appErr.Message, nil)
				return
			}
			common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing or invalid token", nil)
			return
		}

		ctx := common.WithUserID(r.Context(), userID)
		if l := zerolog.Ctx(ctx); l.GetLevel() != zerolog.Disabled {
			scoped := l.With().Str("user_id", userID).Logger()
			ctx = scoped.WithContext(ctx)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (m Middleware) extractToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(header) > 7 && strings.EqualFold(header[:7], "bearer ") {
		return strings.TrimSpace(header[7:])
	}
	if m.AccessCookie != "" {
		if cookie, err := r.Cookie(m.AccessCookie); err == nil {
			return strings.TrimSpace(cookie.Value)
		}
	}
	return ""
}
