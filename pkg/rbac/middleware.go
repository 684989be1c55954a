package rbac

import (
	"net/http"

	"github.com/platinummonkey/warden/pkg/domain"
	"github.com/platinummonkey/warden/pkg/httputil"
)

// Authorizer evaluates capabilities for one request. *session.Context
// implements it.
type Authorizer interface {
	Authorize(mode Combinator, caps ...Capability) Decision
}

// AuthorizerFunc extracts the Authorizer for a request. ok is false when the
// request carries no session.
type AuthorizerFunc func(r *http.Request) (a Authorizer, ok bool)

// DecisionObserver is notified of every guard decision
type DecisionObserver func(r *http.Request, mode Combinator, caps []Capability, d Decision)

// PermissionMiddleware provides middleware for permission checking
type PermissionMiddleware struct {
	authorizer AuthorizerFunc
	observers  []DecisionObserver
}

// NewPermissionMiddleware creates a new permission middleware
func NewPermissionMiddleware(authorizer AuthorizerFunc, observers ...DecisionObserver) *PermissionMiddleware {
	return &PermissionMiddleware{
		authorizer: authorizer,
		observers:  observers,
	}
}

// RequirePermission creates middleware that requires a specific capability
func (pm *PermissionMiddleware) RequirePermission(c Capability) func(http.Handler) http.Handler {
	return pm.require(All, c)
}

// RequireAllPermissions creates middleware that requires every capability
func (pm *PermissionMiddleware) RequireAllPermissions(caps ...Capability) func(http.Handler) http.Handler {
	return pm.require(All, caps...)
}

// RequireAnyPermission creates middleware that requires at least one capability
func (pm *PermissionMiddleware) RequireAnyPermission(caps ...Capability) func(http.Handler) http.Handler {
	return pm.require(Any, caps...)
}

func (pm *PermissionMiddleware) require(mode Combinator, caps ...Capability) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			a, ok := pm.authorizer(r)
			if !ok || a == nil {
				httputil.WriteDomainError(w, domain.ErrUnauthenticated)
				return
			}

			d := a.Authorize(mode, caps...)
			for _, observe := range pm.observers {
				observe(r, mode, caps, d)
			}

			if !d.Allowed {
				httputil.WriteDomainError(w, domain.ErrPermissionDenied)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
