package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/platinummonkey/warden/pkg/auth"
	"github.com/platinummonkey/warden/pkg/domain"
	"github.com/platinummonkey/warden/pkg/httputil"
	"github.com/platinummonkey/warden/pkg/observability"
	"github.com/platinummonkey/warden/pkg/session"
)

// Authenticator verifies request credentials
type Authenticator interface {
	Authenticate(r *http.Request) (*auth.Identity, error)
}

// Resolver builds the session context for a verified identity
type Resolver interface {
	Resolve(ctx context.Context, id *auth.Identity) (*session.Context, error)
}

// SessionMiddleware authenticates the request and attaches its session
// context for the lifetime of the request. Nothing downstream runs without
// a session.
type SessionMiddleware struct {
	authenticator Authenticator
	resolver      Resolver
	logger        *observability.Logger
}

// NewSessionMiddleware creates a new session middleware
func NewSessionMiddleware(authenticator Authenticator, resolver Resolver, logger *observability.Logger) *SessionMiddleware {
	return &SessionMiddleware{
		authenticator: authenticator,
		resolver:      resolver,
		logger:        logger,
	}
}

// Handler wraps an HTTP handler with session resolution
func (m *SessionMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := m.authenticator.Authenticate(r)
		if err != nil {
			m.logger.WithError(err).WithField("path", r.URL.Path).Debug("Authentication failed")
			httputil.WriteDomainError(w, domain.ErrUnauthenticated)
			return
		}

		ctx := auth.WithIdentity(r.Context(), id)
		sc, err := m.resolver.Resolve(ctx, id)
		if err != nil {
			if !errors.Is(err, domain.ErrUnauthenticated) && !errors.Is(err, domain.ErrTenantMismatch) {
				m.logger.WithError(err).WithField("user_id", id.UserID.String()).Error("Session resolution failed")
			}
			httputil.WriteDomainError(w, err)
			return
		}

		// session.WithContext also records the user and tenant for
		// observability.FromContext
		ctx = session.WithContext(ctx, sc)
		tenantID := ""
		if sc.HasTenant() {
			tenantID = sc.TenantID().String()
		}
		observability.AnnotateSession(ctx, sc.UserID().String(), tenantID, string(sc.Method()), sc.IsSuperAdmin())
		ctx = observability.WithLogger(ctx, observability.WithTraceContext(ctx, m.logger))

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireTenant rejects requests whose session has no tenant selected. A
// super admin without a selected tenant is rejected too, so tenant-scoped
// handlers never run with a platform-wide scope by accident.
func RequireTenant(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sc, ok := session.FromContext(r.Context())
		if !ok {
			httputil.WriteDomainError(w, domain.ErrUnauthenticated)
			return
		}
		if !sc.HasTenant() {
			httputil.WriteDomainError(w, domain.ErrPermissionDenied)
			return
		}
		next.ServeHTTP(w, r)
	})
}
