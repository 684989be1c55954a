package api

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/platinummonkey/warden/pkg/audit"
	"github.com/platinummonkey/warden/pkg/auth"
	"github.com/platinummonkey/warden/pkg/domain"
	"github.com/platinummonkey/warden/pkg/httputil"
	"github.com/platinummonkey/warden/pkg/middleware"
	"github.com/platinummonkey/warden/pkg/observability"
	"github.com/platinummonkey/warden/pkg/rbac"
	"github.com/platinummonkey/warden/pkg/session"
	"github.com/platinummonkey/warden/pkg/tenants"
)

// SessionResolver resolves and switches session contexts
type SessionResolver interface {
	middleware.Resolver
	SwitchTenant(ctx context.Context, current *session.Context, tenantID uuid.UUID) (*session.Context, error)
	ClearSelection(ctx context.Context, current *session.Context) error
}

// AuditSearcher reads a tenant's audit trail
type AuditSearcher interface {
	Search(ctx context.Context, tenantID uuid.UUID, filter audit.SearchFilter) ([]*audit.Record, error)
}

// Deps holds everything the API server needs. RateLimit and Metrics may be nil.
type Deps struct {
	Tenants       tenants.Service
	APIKeys       auth.APIKeyStore
	Authenticator middleware.Authenticator
	Resolver      SessionResolver
	AuditStore    AuditSearcher
	Emitter       audit.Emitter
	RateLimit     *middleware.RateLimitMiddleware
	Metrics       *observability.Metrics
	Logger        *observability.Logger
}

// Server is the tenant administration API
type Server struct {
	tenants    tenants.Service
	apiKeys    auth.APIKeyStore
	resolver   SessionResolver
	auditStore AuditSearcher
	emitter    audit.Emitter
	logger     *observability.Logger

	router  *mux.Router
	guard   *rbac.PermissionMiddleware
	observe rbac.DecisionObserver
}

// NewServer creates the API server and registers its routes
func NewServer(d Deps) *Server {
	emitter := d.Emitter
	if emitter == nil {
		emitter = audit.NopEmitter{}
	}
	observe := middleware.DecisionRecorder(d.Metrics, emitter)

	s := &Server{
		tenants:    d.Tenants,
		apiKeys:    d.APIKeys,
		resolver:   d.Resolver,
		auditStore: d.AuditStore,
		emitter:    emitter,
		logger:     d.Logger,
		router:     mux.NewRouter(),
		guard:      rbac.NewPermissionMiddleware(middleware.SessionAuthorizer, observe),
		observe:    observe,
	}

	v1 := s.router.PathPrefix("/v1").Subrouter()
	v1.Use(middleware.NewSessionMiddleware(d.Authenticator, d.Resolver, d.Logger).Handler)
	if d.RateLimit != nil {
		v1.Use(d.RateLimit.Handler)
	}
	s.setupRoutes(v1)
	return s
}

// setupRoutes configures all the API routes
func (s *Server) setupRoutes(v1 *mux.Router) {
	// Session
	v1.HandleFunc("/session", s.getSession).Methods("GET")
	v1.HandleFunc("/session/switch", s.switchTenant).Methods("POST")

	// Tenants
	v1.HandleFunc("/tenants", s.createTenant).Methods("POST")
	v1.HandleFunc("/tenants", s.listTenants).Methods("GET")
	v1.Handle("/tenants/current", s.tenantScoped(s.getCurrentTenant, rbac.CapSettingsRead)).Methods("GET")
	v1.Handle("/tenants/current", s.tenantScoped(s.updateCurrentTenant, rbac.CapSettingsWrite)).Methods("PATCH")
	v1.Handle("/tenants/current/deactivate", s.tenantScoped(s.deactivateCurrentTenant, rbac.CapTenantDeactivate)).Methods("POST")
	v1.Handle("/tenants/current/children", s.tenantScoped(s.listChildren, rbac.CapSettingsRead)).Methods("GET")
	v1.Handle("/tenants/{id}/parent", s.guard.RequirePermission(rbac.CapSystemConfig)(http.HandlerFunc(s.setParent))).Methods("PUT")

	// Members
	v1.Handle("/members", s.tenantScoped(s.listMembers, rbac.CapUsersRead)).Methods("GET")
	v1.Handle("/members", s.tenantScoped(s.addMember, rbac.CapUsersWrite)).Methods("POST")
	v1.Handle("/members/{user_id}", s.tenantScoped(s.getMember, rbac.CapUsersRead)).Methods("GET")
	v1.Handle("/members/{user_id}", s.tenantScoped(s.changeRole, rbac.CapRolesWrite)).Methods("PUT")
	v1.Handle("/members/{user_id}", s.tenantScoped(s.removeMember, rbac.CapUsersDelete)).Methods("DELETE")

	// Invitations
	v1.HandleFunc("/invitations/accept", s.acceptInvitation).Methods("POST")
	v1.Handle("/invitations", s.tenantScoped(s.listInvitations, rbac.CapUsersRead)).Methods("GET")
	v1.Handle("/invitations", s.tenantScoped(s.createInvitation, rbac.CapInvitationsWrite)).Methods("POST")
	v1.Handle("/invitations/{id}", s.tenantScoped(s.revokeInvitation, rbac.CapInvitationsWrite)).Methods("DELETE")

	// API keys
	v1.Handle("/api-keys", s.tenantScoped(s.listAPIKeys, rbac.CapAPIKeysRead)).Methods("GET")
	v1.Handle("/api-keys", s.tenantScoped(s.createAPIKey, rbac.CapAPIKeysWrite)).Methods("POST")
	v1.Handle("/api-keys/{id}", s.tenantScoped(s.revokeAPIKey, rbac.CapAPIKeysWrite)).Methods("DELETE")

	// Audit
	v1.Handle("/audit", s.tenantScoped(s.searchAudit, rbac.CapAuditRead)).Methods("GET")
}

// tenantScoped requires a selected tenant and every capability in caps
func (s *Server) tenantScoped(h http.HandlerFunc, caps ...rbac.Capability) http.Handler {
	return middleware.RequireTenant(s.guard.RequireAllPermissions(caps...)(h))
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Router exposes the router so the caller can add instrumentation
func (s *Server) Router() *mux.Router {
	return s.router
}

// requireCapability applies a guard decision inside a handler, for checks
// that depend on the request body
func (s *Server) requireCapability(w http.ResponseWriter, r *http.Request, c rbac.Capability) bool {
	sc := session.MustFromContext(r.Context())
	d := sc.Authorize(rbac.All, c)
	s.observe(r, rbac.All, []rbac.Capability{c}, d)
	if !d.Allowed {
		httputil.WriteDomainError(w, domain.ErrPermissionDenied)
	}
	return d.Allowed
}

// fail writes err, logging anything that is not a client error
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	if status := httputil.StatusFor(err); status >= http.StatusInternalServerError {
		observability.FromContext(r.Context()).WithError(err).WithField("path", r.URL.Path).Error("Request failed")
	}
	httputil.WriteDomainError(w, err)
}

// emit files rec with the audit trail
func (s *Server) emit(r *http.Request, rec *audit.Record) {
	s.emitter.Emit(r.Context(), rec)
}
