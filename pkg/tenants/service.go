package tenants

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/platinummonkey/warden/pkg/auth"
	"github.com/platinummonkey/warden/pkg/domain"
	"github.com/platinummonkey/warden/pkg/observability"
	"github.com/platinummonkey/warden/pkg/rbac"
	"github.com/platinummonkey/warden/pkg/storage/postgres"
)

const (
	defaultPlanCode = "free"
	defaultLanguage = "en"
)

// PostgresService implements Service on top of the isolation layer. Every
// statement runs inside an isolated transaction, so row-level security
// remains the final word on what a caller can see or change.
type PostgresService struct {
	iso           *postgres.Isolator
	invitations   *auth.TokenGenerator
	invitationTTL time.Duration
	logger        *observability.Logger
	now           func() time.Time
}

// Config holds tenant service settings
type Config struct {
	InvitationTTL time.Duration
}

// NewPostgresService creates a new PostgresService
func NewPostgresService(iso *postgres.Isolator, cfg Config, logger *observability.Logger) *PostgresService {
	if cfg.InvitationTTL <= 0 {
		cfg.InvitationTTL = 7 * 24 * time.Hour
	}
	return &PostgresService{
		iso:           iso,
		invitations:   auth.NewTokenGenerator(auth.InvitationPrefix),
		invitationTTL: cfg.InvitationTTL,
		logger:        logger,
		now:           time.Now,
	}
}

const tenantColumns = `id, name, slug, custom_domain, parent_tenant_id, plan_code, enabled_modules,
	default_language, is_active, created_at, updated_at, deactivated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTenant(row rowScanner) (*Tenant, error) {
	t := &Tenant{}
	var customDomain sql.NullString
	var parent uuid.NullUUID
	var deactivatedAt sql.NullTime
	if err := row.Scan(
		&t.ID, &t.Name, &t.Slug, &customDomain, &parent, &t.PlanCode, pq.Array(&t.EnabledModules),
		&t.DefaultLanguage, &t.IsActive, &t.CreatedAt, &t.UpdatedAt, &deactivatedAt,
	); err != nil {
		return nil, err
	}
	if customDomain.Valid {
		t.CustomDomain = &customDomain.String
	}
	if parent.Valid {
		t.ParentTenantID = &parent.UUID
	}
	if deactivatedAt.Valid {
		t.DeactivatedAt = &deactivatedAt.Time
	}
	if t.EnabledModules == nil {
		t.EnabledModules = []string{}
	}
	return t, nil
}

func queryTenants(ctx context.Context, tx *sql.Tx, query string, args ...interface{}) ([]*Tenant, error) {
	rows, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Tenant
	for rows.Next() {
		t, err := scanTenant(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan tenant: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// mapTenantWriteError converts constraint violations into domain errors
func mapTenantWriteError(err error) error {
	switch {
	case postgres.IsUniqueViolation(err, "tenants_slug_key"):
		return domain.ErrSlugTaken
	case postgres.IsUniqueViolation(err, "tenants_custom_domain_key"):
		return fmt.Errorf("%w: custom domain is already in use", domain.ErrInvalidInput)
	case postgres.IsForeignKeyViolation(err, ""):
		return domain.ErrParentNotFound
	case postgres.IsCheckViolation(err, "tenants_not_own_parent"):
		return domain.ErrHierarchyCycle
	}
	return err
}

// CreateTenant is the only way a tenant comes into existence. The tenant and
// its owner membership are inserted in one transaction scoped to the new
// tenant, so a failure leaves neither behind.
func (s *PostgresService) CreateTenant(ctx context.Context, req CreateTenantRequest) (*Tenant, error) {
	if req.OwnerUserID == uuid.Nil {
		return nil, fmt.Errorf("%w: owner is required", domain.ErrInvalidInput)
	}

	name, err := validateName(req.Name)
	if err != nil {
		return nil, err
	}
	slug := strings.TrimSpace(req.Slug)
	if slug == "" {
		slug = Slugify(name)
	}
	if err := ValidateSlug(slug); err != nil {
		return nil, err
	}
	customDomain, err := normalizeDomain(req.CustomDomain)
	if err != nil {
		return nil, err
	}
	modules, err := validateModules(req.EnabledModules)
	if err != nil {
		return nil, err
	}
	planCode := strings.TrimSpace(req.PlanCode)
	if planCode == "" {
		planCode = defaultPlanCode
	}
	language := strings.TrimSpace(req.DefaultLanguage)
	if language == "" {
		language = defaultLanguage
	}
	if err := validateLanguage(language); err != nil {
		return nil, err
	}

	caller, _ := postgres.ScopeFromContext(ctx)
	if req.ParentTenantID != nil {
		if err := s.checkParentOwnership(ctx, *req.ParentTenantID, req.OwnerUserID, caller.SuperAdmin); err != nil {
			return nil, err
		}
	}

	id := uuid.New()
	scope := postgres.Scope{TenantID: id, UserID: req.OwnerUserID, SuperAdmin: caller.SuperAdmin}

	var tenant *Tenant
	err = s.iso.RunIn(ctx, scope, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, `
			INSERT INTO tenants (id, name, slug, custom_domain, parent_tenant_id, plan_code, enabled_modules, default_language)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			RETURNING `+tenantColumns,
			id, name, slug, customDomain, req.ParentTenantID, planCode, pq.Array(modules), language,
		)
		var err error
		if tenant, err = scanTenant(row); err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO memberships (id, tenant_id, user_id, role)
			VALUES ($1, $2, $3, $4)`,
			uuid.New(), id, req.OwnerUserID, rbac.RoleOwner,
		)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create tenant: %w", mapTenantWriteError(err))
	}

	s.logger.WithFields(map[string]interface{}{
		"tenant_id": id.String(),
		"slug":      slug,
	}).Info("Tenant created")
	return tenant, nil
}

// checkParentOwnership only lets owners of the parent (or platform admins)
// attach a new child. Unknown parents and foreign parents look the same.
func (s *PostgresService) checkParentOwnership(ctx context.Context, parentID, userID uuid.UUID, superAdmin bool) error {
	if superAdmin {
		return nil
	}
	m, err := s.ActiveMembership(ctx, parentID, userID)
	if errors.Is(err, domain.ErrNotFound) || (err == nil && m.Role != rbac.RoleOwner) {
		return domain.ErrParentNotFound
	}
	return err
}

// GetTenant retrieves a tenant by ID
func (s *PostgresService) GetTenant(ctx context.Context, id uuid.UUID) (*Tenant, error) {
	return s.getTenant(ctx, "id = $1", id)
}

// GetTenantBySlug retrieves a tenant by slug
func (s *PostgresService) GetTenantBySlug(ctx context.Context, slug string) (*Tenant, error) {
	return s.getTenant(ctx, "slug = $1", slug)
}

func (s *PostgresService) getTenant(ctx context.Context, where string, arg interface{}) (*Tenant, error) {
	var tenant *Tenant
	err := s.iso.Run(ctx, func(tx *sql.Tx) error {
		var err error
		tenant, err = scanTenant(tx.QueryRowContext(ctx, `SELECT `+tenantColumns+` FROM tenants WHERE `+where, arg))
		return err
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get tenant: %w", err)
	}
	return tenant, nil
}

// ListTenants lists the active tenants the caller belongs to. The query runs
// without a tenant in scope, where only the caller's own memberships are
// visible; platform admins see every tenant.
func (s *PostgresService) ListTenants(ctx context.Context) ([]*Tenant, error) {
	caller, ok := postgres.ScopeFromContext(ctx)
	if !ok {
		return nil, domain.ErrUnauthenticated
	}
	scope := postgres.Scope{UserID: caller.UserID, SuperAdmin: caller.SuperAdmin}

	var out []*Tenant
	err := s.iso.RunIn(ctx, scope, func(tx *sql.Tx) error {
		var err error
		out, err = queryTenants(ctx, tx, `SELECT `+tenantColumns+` FROM tenants WHERE is_active ORDER BY name, id`)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list tenants: %w", err)
	}
	return out, nil
}

// UpdateTenant applies a settings update
func (s *PostgresService) UpdateTenant(ctx context.Context, id uuid.UUID, req UpdateTenantRequest) (*Tenant, error) {
	setClauses := []string{}
	args := []interface{}{}
	argPos := 1

	add := func(column string, value interface{}) {
		setClauses = append(setClauses, fmt.Sprintf("%s = $%d", column, argPos))
		args = append(args, value)
		argPos++
	}

	if req.Name != nil {
		name, err := validateName(*req.Name)
		if err != nil {
			return nil, err
		}
		add("name", name)
	}
	if req.CustomDomain != nil {
		d, err := normalizeDomain(req.CustomDomain)
		if err != nil {
			return nil, err
		}
		add("custom_domain", d)
	}
	if req.PlanCode != nil {
		plan := strings.TrimSpace(*req.PlanCode)
		if plan == "" {
			return nil, fmt.Errorf("%w: plan code cannot be empty", domain.ErrInvalidInput)
		}
		add("plan_code", plan)
	}
	if req.EnabledModules != nil {
		modules, err := validateModules(*req.EnabledModules)
		if err != nil {
			return nil, err
		}
		add("enabled_modules", pq.Array(modules))
	}
	if req.DefaultLanguage != nil {
		if err := validateLanguage(*req.DefaultLanguage); err != nil {
			return nil, err
		}
		add("default_language", *req.DefaultLanguage)
	}

	if len(setClauses) == 0 {
		return s.GetTenant(ctx, id)
	}

	args = append(args, id)
	query := fmt.Sprintf("UPDATE tenants SET %s WHERE id = $%d RETURNING %s",
		strings.Join(setClauses, ", "), argPos, tenantColumns)

	var tenant *Tenant
	err := s.iso.Run(ctx, func(tx *sql.Tx) error {
		var err error
		tenant, err = scanTenant(tx.QueryRowContext(ctx, query, args...))
		return err
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update tenant: %w", mapTenantWriteError(err))
	}
	return tenant, nil
}

// DeactivateTenant soft-deactivates a tenant. Sessions can no longer select it.
func (s *PostgresService) DeactivateTenant(ctx context.Context, id uuid.UUID) error {
	return s.iso.Run(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx,
			`UPDATE tenants SET is_active = false, deactivated_at = NOW() WHERE id = $1 AND is_active`, id)
		if err != nil {
			return fmt.Errorf("failed to deactivate tenant: %w", err)
		}

		rowsAffected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		if rowsAffected == 0 {
			return domain.ErrNotFound
		}
		return nil
	})
}

// ListChildren lists the direct children of a tenant that the caller can
// see. Without hierarchy reads only platform admins see any.
func (s *PostgresService) ListChildren(ctx context.Context, id uuid.UUID) ([]*Tenant, error) {
	var out []*Tenant
	err := s.iso.Run(ctx, func(tx *sql.Tx) error {
		var err error
		out, err = queryTenants(ctx, tx,
			`SELECT `+tenantColumns+` FROM tenants WHERE parent_tenant_id = $1 ORDER BY name, id`, id)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list child tenants: %w", err)
	}
	return out, nil
}

// SetParent re-parents a tenant. Only platform admins may change the
// hierarchy; a parent that would make the tenant its own ancestor is
// rejected with ErrHierarchyCycle.
func (s *PostgresService) SetParent(ctx context.Context, id uuid.UUID, parentID *uuid.UUID) error {
	caller, ok := postgres.ScopeFromContext(ctx)
	if !ok {
		return domain.ErrUnauthenticated
	}
	if !caller.SuperAdmin {
		return domain.ErrPermissionDenied
	}
	if parentID != nil && *parentID == id {
		return domain.ErrHierarchyCycle
	}

	return s.iso.RunSerializable(ctx, func(tx *sql.Tx) error {
		if parentID != nil {
			var exists, cycle bool
			err := tx.QueryRowContext(ctx, `
				WITH RECURSIVE ancestors AS (
					SELECT id, parent_tenant_id FROM tenants WHERE id = $1
					UNION
					SELECT t.id, t.parent_tenant_id FROM tenants t
					JOIN ancestors a ON t.id = a.parent_tenant_id
				)
				SELECT COUNT(*) > 0, COALESCE(bool_or(id = $2), false) FROM ancestors`,
				*parentID, id,
			).Scan(&exists, &cycle)
			if err != nil {
				return fmt.Errorf("failed to check hierarchy: %w", err)
			}
			if !exists {
				return domain.ErrParentNotFound
			}
			if cycle {
				return domain.ErrHierarchyCycle
			}
		}

		result, err := tx.ExecContext(ctx, `UPDATE tenants SET parent_tenant_id = $1 WHERE id = $2`, parentID, id)
		if err != nil {
			return mapTenantWriteError(err)
		}
		rowsAffected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		if rowsAffected == 0 {
			return domain.ErrNotFound
		}
		return nil
	})
}
