package auth

import (
	"context"
	"net/http"

	"github.com/synchub/api/internal/apierrors"
	"github.com/synchub/api/internal/model"
)

type contextKey string

const identityKey contextKey = "identity"

// IdentityFrom returns the identity attached to the request context.
func IdentityFrom(ctx context.Context) (model.Identity, bool) {
	id, ok := ctx.Value(identityKey).(model.Identity)
	return id, ok
}

// WithIdentity attaches an identity to a context. Exposed for tests and for
// callers that resolve identity out-of-band.
func WithIdentity(ctx context.Context, id model.Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// Middleware resolves the caller's tenant scope for protected routes.
type Middleware struct {
	writer *apierrors.Writer
}

// NewMiddleware creates the authentication middleware.
func NewMiddleware(writer *apierrors.Writer) *Middleware {
	return &Middleware{writer: writer}
}

// Authenticate parses the bearer payload, resolves the identity and attaches
// it to the request context. Resolution failures become 401 responses.
func (m *Middleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, err := ParseBearer(r.Header.Get("Authorization"))
		if err != nil {
			m.writer.WriteError(w, r, err)
			return
		}

		identity, err := Resolve(claims)
		if err != nil {
			m.writer.WriteError(w, r, err)
			return
		}

		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
	})
}

// RequireRole guards a route with a role predicate over the resolved identity.
// A failed check is a 403, never a silent downgrade of scope.
func (m *Middleware) RequireRole(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, ok := IdentityFrom(r.Context())
			if !ok {
				m.writer.WriteError(w, r, apierrors.Unauthenticated("no identity in request"))
				return
			}
			if !identity.HasRole(roles...) {
				m.writer.WriteError(w, r, apierrors.Forbidden("insufficient permissions"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
