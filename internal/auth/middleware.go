package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/noah-isme/motor-valuation/internal/common"
)

var errNoToken = errors.New("auth: token missing")

// TokenParser resolves a raw token into a user identifier.
type TokenParser interface {
	ParseAccessToken(token string) (string, error)
}

// Middleware wires authentication context into HTTP handlers.
type Middleware struct {
	Parser TokenParser
}

// Authenticate attaches the user identifier to the request context when a valid
// token is present. Requests without a token continue anonymously; requests with
// a bad token are rejected.
func (m Middleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, err := m.authenticateRequest(r)
		if err != nil {
			if errors.Is(err, errNoToken) {
				next.ServeHTTP(w, r)
				return
			}
			writeUnauthorized(w, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireAuth enforces that a valid token is present before executing the next handler.
func (m Middleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, err := m.authenticateRequest(r)
		if err != nil {
			writeUnauthorized(w, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func writeUnauthorized(w http.ResponseWriter, err error) {
	var appErr *common.AppError
	if errors.As(err, &appErr) && appErr.HTTPStatus != 0 {
		common.JSONError(w, appErr.HTTPStatus, appErr.Code, appErr.Message, appErr.Details)
		return
	}
	common.JSONError(w, http.StatusUnauthorized, codeUnauthorized, "missing or invalid token", nil)
}

func (m Middleware) authenticateRequest(r *http.Request) (context.Context, error) {
	token := extractToken(r)
	if token == "" {
		return r.Context(), errNoToken
	}
	if m.Parser == nil {
		return r.Context(), errors.New("auth: parser not configured")
	}
	userID, err := m.Parser.ParseAccessToken(token)
	if err != nil {
		return r.Context(), err
	}
	return common.WithUserID(r.Context(), userID), nil
}

func extractToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(header) > 7 && strings.EqualFold(header[:7], "bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return ""
}
