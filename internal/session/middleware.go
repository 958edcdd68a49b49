package session

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/stratus-cloud/stratus/internal/shared"
)

// Middleware resolves a bearer token into a principal on the request
// context. Requests without a valid token proceed anonymously; the
// per-operation guards decide what anonymous callers may do.
func Middleware(store *Store, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}

			principal, err := store.Resolve(r.Context(), token)
			if err != nil {
				if !errors.Is(err, ErrNotFound) {
					logger.Error("resolve session", slog.Any("error", err))
				}
				next.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r.WithContext(shared.ContextWithPrincipal(r.Context(), principal)))
		})
	}
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}
