package auth

import (
	"net/http"
	"strings"

	"github.com/tempora-hq/tempora/internal/platform/httpx"
	"github.com/tempora-hq/tempora/internal/shared"
)

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// Authenticator rejects requests without a valid access token and stores the
// resolved actor in the request context.
func (s *Service) Authenticator(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			httpx.RespondError(w, httpx.ErrUnauthorized)
			return
		}
		actor, err := s.ActorFromToken(token)
		if err != nil {
			httpx.RespondError(w, httpx.ErrUnauthorized)
			return
		}
		next.ServeHTTP(w, r.WithContext(shared.ContextWithActor(r.Context(), actor)))
	})
}

// OptionalAuthenticator resolves the actor when a token is present but lets
// anonymous requests through. Used by the bootstrap user-creation route.
func (s *Service) OptionalAuthenticator(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			next.ServeHTTP(w, r)
			return
		}
		actor, err := s.ActorFromToken(token)
		if err != nil {
			httpx.RespondError(w, httpx.ErrUnauthorized)
			return
		}
		next.ServeHTTP(w, r.WithContext(shared.ContextWithActor(r.Context(), actor)))
	})
}
