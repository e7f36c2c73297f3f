package auth

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/nexushq/nexus/internal/authz"
	"github.com/nexushq/nexus/internal/shared"
)

// IdentityMiddleware turns a session into an authz.Identity on the request
// context. The identity is re-read from the user store on every request so
// role changes and deactivations take effect immediately. Requests without
// a valid session continue unauthenticated; the guard rejects them where a
// permission is required.
type IdentityMiddleware struct {
	Directory authz.UserDirectory
	Logger    *slog.Logger
}

// Attach resolves the session user and stores the identity in context.
func (m IdentityMiddleware) Attach(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess := shared.SessionFromContext(r.Context())
		if sess == nil || sess.User() == "" {
			next.ServeHTTP(w, r)
			return
		}
		userID, err := strconv.ParseInt(sess.User(), 10, 64)
		if err != nil {
			m.Logger.Error("parse session user id", slog.String("value", sess.User()))
			next.ServeHTTP(w, r)
			return
		}
		ident, err := m.Directory.GetIdentity(r.Context(), userID)
		if err != nil {
			if !errors.Is(err, authz.ErrUserNotFound) {
				m.Logger.Error("load identity", slog.Any("error", err))
			}
			next.ServeHTTP(w, r)
			return
		}
		next.ServeHTTP(w, r.WithContext(authz.ContextWithIdentity(r.Context(), ident)))
	})
}
