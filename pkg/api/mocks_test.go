package api

import (
	"context"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/platinummonkey/warden/pkg/audit"
	"github.com/platinummonkey/warden/pkg/auth"
	"github.com/platinummonkey/warden/pkg/domain"
	"github.com/platinummonkey/warden/pkg/observability"
	"github.com/platinummonkey/warden/pkg/rbac"
	"github.com/platinummonkey/warden/pkg/session"
	"github.com/platinummonkey/warden/pkg/tenants"
)

// mockTenantService is a mock implementation of tenants.Service for testing
type mockTenantService struct {
	createTenantFunc     func(ctx context.Context, req tenants.CreateTenantRequest) (*tenants.Tenant, error)
	getTenantFunc        func(ctx context.Context, id uuid.UUID) (*tenants.Tenant, error)
	listTenantsFunc      func(ctx context.Context) ([]*tenants.Tenant, error)
	updateTenantFunc     func(ctx context.Context, id uuid.UUID, req tenants.UpdateTenantRequest) (*tenants.Tenant, error)
	deactivateTenantFunc func(ctx context.Context, id uuid.UUID) error
	listChildrenFunc     func(ctx context.Context, id uuid.UUID) ([]*tenants.Tenant, error)
	setParentFunc        func(ctx context.Context, id uuid.UUID, parentID *uuid.UUID) error
	addMemberFunc        func(ctx context.Context, tenantID, userID uuid.UUID, role rbac.Role, invitedBy *uuid.UUID) (*tenants.Membership, error)
	changeRoleFunc       func(ctx context.Context, tenantID, userID uuid.UUID, role rbac.Role) (*tenants.Membership, error)
	removeMemberFunc     func(ctx context.Context, tenantID, userID uuid.UUID) error
	listMembersFunc      func(ctx context.Context, tenantID uuid.UUID, includeInactive bool) ([]*tenants.Membership, error)
	getMemberFunc        func(ctx context.Context, tenantID, userID uuid.UUID) (*tenants.Membership, error)
	createInvitationFunc func(ctx context.Context, tenantID uuid.UUID, email string, role rbac.Role, invitedBy uuid.UUID) (*tenants.Invitation, error)
	acceptInvitationFunc func(ctx context.Context, token string, userID uuid.UUID) (*tenants.Membership, error)
	revokeInvitationFunc func(ctx context.Context, tenantID, invitationID uuid.UUID) error
	membershipFunc       func(ctx context.Context, tenantID, userID uuid.UUID) (*tenants.Membership, error)
}

func (m *mockTenantService) CreateTenant(ctx context.Context, req tenants.CreateTenantRequest) (*tenants.Tenant, error) {
	if m.createTenantFunc != nil {
		return m.createTenantFunc(ctx, req)
	}
	return &tenants.Tenant{ID: uuid.New(), Name: req.Name, Slug: req.Slug, IsActive: true}, nil
}

func (m *mockTenantService) GetTenant(ctx context.Context, id uuid.UUID) (*tenants.Tenant, error) {
	if m.getTenantFunc != nil {
		return m.getTenantFunc(ctx, id)
	}
	return &tenants.Tenant{ID: id, IsActive: true}, nil
}

func (m *mockTenantService) GetTenantBySlug(ctx context.Context, slug string) (*tenants.Tenant, error) {
	return nil, domain.ErrNotFound
}

func (m *mockTenantService) ListTenants(ctx context.Context) ([]*tenants.Tenant, error) {
	if m.listTenantsFunc != nil {
		return m.listTenantsFunc(ctx)
	}
	return nil, nil
}

func (m *mockTenantService) UpdateTenant(ctx context.Context, id uuid.UUID, req tenants.UpdateTenantRequest) (*tenants.Tenant, error) {
	if m.updateTenantFunc != nil {
		return m.updateTenantFunc(ctx, id, req)
	}
	return &tenants.Tenant{ID: id, IsActive: true}, nil
}

func (m *mockTenantService) DeactivateTenant(ctx context.Context, id uuid.UUID) error {
	if m.deactivateTenantFunc != nil {
		return m.deactivateTenantFunc(ctx, id)
	}
	return nil
}

func (m *mockTenantService) ListChildren(ctx context.Context, id uuid.UUID) ([]*tenants.Tenant, error) {
	if m.listChildrenFunc != nil {
		return m.listChildrenFunc(ctx, id)
	}
	return nil, nil
}

func (m *mockTenantService) SetParent(ctx context.Context, id uuid.UUID, parentID *uuid.UUID) error {
	if m.setParentFunc != nil {
		return m.setParentFunc(ctx, id, parentID)
	}
	return nil
}

func (m *mockTenantService) AddMember(ctx context.Context, tenantID, userID uuid.UUID, role rbac.Role, invitedBy *uuid.UUID) (*tenants.Membership, error) {
	if m.addMemberFunc != nil {
		return m.addMemberFunc(ctx, tenantID, userID, role, invitedBy)
	}
	return &tenants.Membership{ID: uuid.New(), TenantID: tenantID, UserID: userID, Role: role, IsActive: true}, nil
}

func (m *mockTenantService) ChangeRole(ctx context.Context, tenantID, userID uuid.UUID, role rbac.Role) (*tenants.Membership, error) {
	if m.changeRoleFunc != nil {
		return m.changeRoleFunc(ctx, tenantID, userID, role)
	}
	return &tenants.Membership{TenantID: tenantID, UserID: userID, Role: role, IsActive: true}, nil
}

func (m *mockTenantService) RemoveMember(ctx context.Context, tenantID, userID uuid.UUID) error {
	if m.removeMemberFunc != nil {
		return m.removeMemberFunc(ctx, tenantID, userID)
	}
	return nil
}

func (m *mockTenantService) ListMembers(ctx context.Context, tenantID uuid.UUID, includeInactive bool) ([]*tenants.Membership, error) {
	if m.listMembersFunc != nil {
		return m.listMembersFunc(ctx, tenantID, includeInactive)
	}
	return nil, nil
}

func (m *mockTenantService) GetMember(ctx context.Context, tenantID, userID uuid.UUID) (*tenants.Membership, error) {
	if m.getMemberFunc != nil {
		return m.getMemberFunc(ctx, tenantID, userID)
	}
	return nil, domain.ErrNotFound
}

func (m *mockTenantService) ActiveMembership(ctx context.Context, tenantID, userID uuid.UUID) (*tenants.Membership, error) {
	if m.membershipFunc != nil {
		return m.membershipFunc(ctx, tenantID, userID)
	}
	return nil, domain.ErrNotFound
}

func (m *mockTenantService) CreateInvitation(ctx context.Context, tenantID uuid.UUID, email string, role rbac.Role, invitedBy uuid.UUID) (*tenants.Invitation, error) {
	if m.createInvitationFunc != nil {
		return m.createInvitationFunc(ctx, tenantID, email, role, invitedBy)
	}
	return &tenants.Invitation{ID: uuid.New(), TenantID: tenantID, Email: email, Role: role, InvitedBy: invitedBy, Token: "inv_token"}, nil
}

func (m *mockTenantService) ListInvitations(ctx context.Context, tenantID uuid.UUID) ([]*tenants.Invitation, error) {
	return nil, nil
}

func (m *mockTenantService) RevokeInvitation(ctx context.Context, tenantID, invitationID uuid.UUID) error {
	if m.revokeInvitationFunc != nil {
		return m.revokeInvitationFunc(ctx, tenantID, invitationID)
	}
	return nil
}

func (m *mockTenantService) AcceptInvitation(ctx context.Context, token string, userID uuid.UUID) (*tenants.Membership, error) {
	if m.acceptInvitationFunc != nil {
		return m.acceptInvitationFunc(ctx, token, userID)
	}
	return nil, domain.ErrNotFound
}

func (m *mockTenantService) PurgeExpiredInvitations(ctx context.Context) (int64, error) {
	return 0, nil
}

// mockKeyStore is an in-memory auth.APIKeyStore
type mockKeyStore struct {
	mu   sync.Mutex
	keys map[uuid.UUID]*auth.APIKey
}

func newMockKeyStore() *mockKeyStore {
	return &mockKeyStore{keys: make(map[uuid.UUID]*auth.APIKey)}
}

func (s *mockKeyStore) CreateAPIKey(ctx context.Context, tenantID, userID uuid.UUID, name string, expiresAt *time.Time) (*auth.APIKey, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := &auth.APIKey{ID: uuid.New(), TenantID: tenantID, UserID: userID, Name: name, KeyPrefix: "wdn_test", ExpiresAt: expiresAt}
	s.keys[key.ID] = key
	return key, "wdn_test_secret", nil
}

func (s *mockKeyStore) ListAPIKeys(ctx context.Context, tenantID uuid.UUID) ([]*auth.APIKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*auth.APIKey
	for _, k := range s.keys {
		if k.TenantID == tenantID {
			out = append(out, k)
		}
	}
	return out, nil
}

func (s *mockKeyStore) RevokeAPIKey(ctx context.Context, tenantID, keyID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k, ok := s.keys[keyID]
	if !ok || k.TenantID != tenantID {
		return domain.ErrNotFound
	}
	delete(s.keys, keyID)
	return nil
}

func (s *mockKeyStore) AuthenticateAPIKey(ctx context.Context, token string) (*auth.APIKey, error) {
	return nil, domain.ErrUnauthenticated
}

// staticAuthenticator accepts every request carrying an Authorization header
type staticAuthenticator struct {
	id *auth.Identity
}

func (a *staticAuthenticator) Authenticate(r *http.Request) (*auth.Identity, error) {
	if r.Header.Get("Authorization") == "" {
		return nil, domain.ErrUnauthenticated
	}
	return a.id, nil
}

// mockResolver hands out a fixed session context
type mockResolver struct {
	sc           *session.Context
	switchFunc   func(current *session.Context, tenantID uuid.UUID) (*session.Context, error)
	clearedCalls int
}

func (m *mockResolver) Resolve(ctx context.Context, id *auth.Identity) (*session.Context, error) {
	return m.sc, nil
}

func (m *mockResolver) SwitchTenant(ctx context.Context, current *session.Context, tenantID uuid.UUID) (*session.Context, error) {
	if m.switchFunc != nil {
		return m.switchFunc(current, tenantID)
	}
	return nil, domain.ErrTenantMismatch
}

func (m *mockResolver) ClearSelection(ctx context.Context, current *session.Context) error {
	m.clearedCalls++
	return nil
}

type mockAuditStore struct {
	tenantID uuid.UUID
	filter   audit.SearchFilter
	records  []*audit.Record
}

func (m *mockAuditStore) Search(ctx context.Context, tenantID uuid.UUID, filter audit.SearchFilter) ([]*audit.Record, error) {
	m.tenantID = tenantID
	m.filter = filter
	return m.records, nil
}

type captureEmitter struct {
	mu      sync.Mutex
	records []*audit.Record
}

func (e *captureEmitter) Emit(_ context.Context, rec *audit.Record) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.records = append(e.records, rec)
}

func (e *captureEmitter) actions() []audit.Action {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []audit.Action
	for _, rec := range e.records {
		out = append(out, rec.Action)
	}
	return out
}

func (e *captureEmitter) last() *audit.Record {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.records) == 0 {
		return nil
	}
	return e.records[len(e.records)-1]
}

// testEnv wires a Server around mocks for one caller
type testEnv struct {
	server   *Server
	tenants  *mockTenantService
	keys     *mockKeyStore
	resolver *mockResolver
	audit    *mockAuditStore
	emitter  *captureEmitter
	identity *auth.Identity
}

func newTestEnv(method auth.Method, tenantID uuid.UUID, role rbac.Role, superAdmin bool) *testEnv {
	id := &auth.Identity{UserID: uuid.New(), Method: method}
	if method == auth.MethodSession {
		id.SessionID = uuid.NewString()
	} else {
		id.APIKeyID = uuid.New()
		id.BoundTenantID = tenantID
	}

	env := &testEnv{
		tenants:  &mockTenantService{},
		keys:     newMockKeyStore(),
		resolver: &mockResolver{sc: session.New(id, tenantID, role, superAdmin)},
		audit:    &mockAuditStore{},
		emitter:  &captureEmitter{},
		identity: id,
	}
	env.server = NewServer(Deps{
		Tenants:       env.tenants,
		APIKeys:       env.keys,
		Authenticator: &staticAuthenticator{id: id},
		Resolver:      env.resolver,
		AuditStore:    env.audit,
		Emitter:       env.emitter,
		Logger:        observability.NewLogger(observability.ErrorLevel, io.Discard),
	})
	return env
}

func (e *testEnv) tenantID() uuid.UUID {
	return e.resolver.sc.TenantID()
}
