package httpapi

import (
	"context"
	"net/http"
	"strings"

	"github.com/atvirokodosprendimai/deskkeys/internal/core/domain"
	"github.com/atvirokodosprendimai/deskkeys/internal/core/usecase"
)

// HeaderAccessKey carries the caller's access key. Authorization: Bearer is
// accepted as well.
const HeaderAccessKey = "X-Access-Key"

type identityCtxKey struct{}

func (h *Handler) requireKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := h.authService.Authenticate(r.Context(), accessKeyFromRequest(r))
		if err != nil {
			handleDomainError(w, err)
			return
		}

		ctx := context.WithValue(r.Context(), identityCtxKey{}, id)
		ctx = usecase.WithActor(ctx, string(id.Role)+":"+id.UserID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func requireRole(role domain.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if identityFromContext(r.Context()).Role != role {
				handleDomainError(w, usecase.ErrForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func accessKeyFromRequest(r *http.Request) string {
	if key := strings.TrimSpace(r.Header.Get(HeaderAccessKey)); key != "" {
		return key
	}
	auth := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(auth) > 7 && strings.EqualFold(auth[:7], "bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return ""
}

func identityFromContext(ctx context.Context) domain.Identity {
	id, _ := ctx.Value(identityCtxKey{}).(domain.Identity)
	return id
}
