package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/voltledger/voltledger/pkg/log"
)

var errMissingToken = errors.New("missing auth token")

// authMiddleware resolves the owner of the request from an OIDC ID token in
// the Authorization header or the auth cookie. Without a configured verifier
// every request belongs to the dev owner.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var ownerID string
		if s.verifier == nil {
			ownerID = s.devOwnerID
		} else {
			token, err := bearerToken(r)
			if err != nil {
				log.Ctx(ctx).WarnContext(ctx, "unauthenticated request", slog.Any("error", err))
				writeJSONError(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			ownerID, err = s.authenticateToken(ctx, token)
			if err != nil {
				log.Ctx(ctx).WarnContext(ctx, "auth token validation failed", slog.Any("error", err))
				writeJSONError(w, "invalid auth token", http.StatusUnauthorized)
				return
			}
		}
		if ownerID == "" {
			log.Ctx(ctx).ErrorContext(ctx, "no owner resolved for request")
			writeJSONError(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		ctx = log.WithAttrs(ctx, slog.String("authOwnerID", ownerID))
		log.Ctx(ctx).DebugContext(ctx, "authenticated request")
		ctx = context.WithValue(ctx, ownerIDContextKey, ownerID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func bearerToken(r *http.Request) (string, error) {
	if h := r.Header.Get("Authorization"); h != "" {
		token, ok := strings.CutPrefix(h, "Bearer ")
		if !ok || strings.TrimSpace(token) == "" {
			return "", errors.New("invalid auth header")
		}
		return strings.TrimSpace(token), nil
	}
	cookie, err := r.Cookie(authTokenCookie)
	if err != nil {
		if errors.Is(err, http.ErrNoCookie) {
			return "", errMissingToken
		}
		return "", err
	}
	if cookie.Value == "" {
		return "", errMissingToken
	}
	return cookie.Value, nil
}

// authenticateToken verifies an ID token and returns its subject.
func (s *Server) authenticateToken(ctx context.Context, token string) (string, error) {
	idToken, err := s.verifier(ctx, token)
	if err != nil {
		return "", err
	}
	if idToken.Subject == "" {
		return "", errors.New("id token has no subject")
	}
	return idToken.Subject, nil
}
