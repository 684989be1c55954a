package cli

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/platinummonkey/warden/pkg/audit"
	"github.com/platinummonkey/warden/pkg/auth"
	"github.com/platinummonkey/warden/pkg/config"
	"github.com/platinummonkey/warden/pkg/observability"
	"github.com/platinummonkey/warden/pkg/session"
	"github.com/platinummonkey/warden/pkg/storage/postgres"
	"github.com/platinummonkey/warden/pkg/tenants"
)

const auditSource = "warden-admin"

// PostgresBackend runs admin commands directly against the database with
// platform privileges
type PostgresBackend struct {
	conns   *postgres.ConnectionManager
	admins  *session.PostgresPlatformAdmins
	tenants *tenants.PostgresService
	tokens  *auth.SessionTokens
	dbAudit audit.Sink
	logSink *audit.LogSink
	logger  *observability.Logger
}

// NewPostgresBackend connects to the configured database. Platform admin
// changes have no tenant to be filed under, so they go to the audit log
// stream only.
func NewPostgresBackend(cfg *config.Config, logger *observability.Logger) (*PostgresBackend, error) {
	conns, err := postgres.NewConnectionManager(postgres.ConnectionConfig{
		PrimaryURL: cfg.Database.URL,
		MaxConns:   2,
		Timeout:    cfg.Database.Timeout,
	}, logger)
	if err != nil {
		return nil, err
	}

	logSink, err := audit.NewFileLogSink(cfg.Audit.LogStreamPath)
	if err != nil {
		conns.Close()
		return nil, err
	}

	iso := postgres.NewIsolator(conns, postgres.IsolatorConfig{
		SerializableRetries: cfg.Tenancy.SerializableRetries,
	}, nil, logger)

	return &PostgresBackend{
		conns:   conns,
		admins:  session.NewPostgresPlatformAdmins(iso),
		tenants: tenants.NewPostgresService(iso, tenants.Config{InvitationTTL: cfg.Tenancy.InvitationTTL}, logger),
		tokens:  auth.NewSessionTokens(cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer, cfg.Auth.SessionTTL),
		dbAudit: audit.NewDBSink(iso),
		logSink: logSink,
		logger:  logger,
	}, nil
}

// Close releases the database pool and the audit log
func (b *PostgresBackend) Close() error {
	return errors.Join(b.logSink.Close(), b.conns.Close())
}

// Migrate applies pending migrations
func (b *PostgresBackend) Migrate(ctx context.Context) error {
	return postgres.RunMigrations(ctx, b.conns.Primary())
}

// GrantSuperAdmin grants the platform role
func (b *PostgresBackend) GrantSuperAdmin(ctx context.Context, userID uuid.UUID) error {
	if err := b.admins.Grant(ctx, userID, nil); err != nil {
		return err
	}
	return b.logSink.Write(ctx, platformAdminRecord(audit.ActionPlatformAdminGrant, userID))
}

// RevokeSuperAdmin revokes the platform role
func (b *PostgresBackend) RevokeSuperAdmin(ctx context.Context, userID uuid.UUID) (bool, error) {
	removed, err := b.admins.Revoke(ctx, userID)
	if err != nil || !removed {
		return removed, err
	}
	return true, b.logSink.Write(ctx, platformAdminRecord(audit.ActionPlatformAdminRevoke, userID))
}

func platformAdminRecord(action audit.Action, userID uuid.UUID) *audit.Record {
	return &audit.Record{
		ID:         uuid.New(),
		Action:     action,
		TargetType: audit.TargetPlatformAdmin,
		TargetID:   userID.String(),
		Status:     audit.StatusSuccess,
		Metadata:   map[string]interface{}{"source": auditSource},
		CreatedAt:  time.Now().UTC(),
	}
}

// IssueToken signs a session token for userID
func (b *PostgresBackend) IssueToken(userID uuid.UUID) (string, time.Time, error) {
	token, _, expiresAt, err := b.tokens.Issue(userID)
	return token, expiresAt, err
}

// CreateTenant creates a tenant as the platform, so any parent may be named.
// The creation is audited in the new tenant.
func (b *PostgresBackend) CreateTenant(ctx context.Context, req tenants.CreateTenantRequest) (*tenants.Tenant, error) {
	ctx = postgres.WithScope(ctx, postgres.SystemScope())
	tenant, err := b.tenants.CreateTenant(ctx, req)
	if err != nil {
		return nil, err
	}

	rec := &audit.Record{
		ID:              uuid.New(),
		TenantID:        tenant.ID,
		Action:          audit.ActionTenantCreate,
		TargetType:      audit.TargetTenant,
		TargetID:        tenant.ID.String(),
		TargetTenantID:  tenant.ParentTenantID,
		Status:          audit.StatusSuccess,
		PrivilegeBypass: true,
		Metadata:        map[string]interface{}{"slug": tenant.Slug, "source": auditSource},
		CreatedAt:       time.Now().UTC(),
	}
	if err := audit.NewMultiSink(b.dbAudit, b.logSink).Write(ctx, rec); err != nil {
		b.logger.WithError(err).WithField("tenant_id", tenant.ID.String()).Error("Failed to audit tenant creation")
	}
	return tenant, nil
}
