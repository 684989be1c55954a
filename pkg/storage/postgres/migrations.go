package postgres

import (
	"context"
	"database/sql"
	"fmt"
)

// Migration represents a database migration
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// GetMigrations returns the schema migrations in order. Every tenant-scoped
// table has row-level security enabled and forced, so the application role
// sees only the rows its transaction scope admits even when it owns the table.
func GetMigrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "Scope helper functions",
			SQL: `
CREATE OR REPLACE FUNCTION warden_current_tenant() RETURNS uuid
LANGUAGE sql STABLE AS $$
	SELECT NULLIF(current_setting('app.tenant_id', true), '')::uuid
$$;

CREATE OR REPLACE FUNCTION warden_current_user() RETURNS uuid
LANGUAGE sql STABLE AS $$
	SELECT NULLIF(current_setting('app.user_id', true), '')::uuid
$$;

CREATE OR REPLACE FUNCTION warden_is_super_admin() RETURNS boolean
LANGUAGE sql STABLE AS $$
	SELECT COALESCE(current_setting('app.is_super_admin', true), '') = 'on'
$$;

CREATE OR REPLACE FUNCTION warden_hierarchy_read() RETURNS boolean
LANGUAGE sql STABLE AS $$
	SELECT COALESCE(current_setting('app.hierarchy_read', true), '') = 'on'
$$;

CREATE OR REPLACE FUNCTION warden_child_tenants() RETURNS uuid[]
LANGUAGE sql STABLE AS $$
	SELECT CASE
		WHEN warden_hierarchy_read()
			THEN COALESCE(NULLIF(current_setting('app.child_tenants', true), ''), '{}')::uuid[]
		ELSE '{}'::uuid[]
	END
$$;

CREATE OR REPLACE FUNCTION warden_tenant_id_immutable() RETURNS trigger
LANGUAGE plpgsql AS $$
BEGIN
	IF NEW.tenant_id IS DISTINCT FROM OLD.tenant_id AND NOT warden_is_super_admin() THEN
		RAISE EXCEPTION 'tenant_id is immutable' USING ERRCODE = '42501';
	END IF;
	RETURN NEW;
END
$$;

CREATE OR REPLACE FUNCTION warden_audit_immutable() RETURNS trigger
LANGUAGE plpgsql AS $$
BEGIN
	RAISE EXCEPTION 'audit records are append-only' USING ERRCODE = '42501';
END
$$;
`,
		},
		{
			Version:     2,
			Description: "Tenants",
			SQL: `
CREATE TABLE IF NOT EXISTS tenants (
	id               UUID PRIMARY KEY,
	slug             VARCHAR(63) NOT NULL,
	name             VARCHAR(255) NOT NULL,
	custom_domain    VARCHAR(255),
	parent_tenant_id UUID REFERENCES tenants(id),
	plan_code        VARCHAR(64) NOT NULL DEFAULT 'free',
	enabled_modules  TEXT[] NOT NULL DEFAULT '{}',
	default_language VARCHAR(16) NOT NULL DEFAULT 'en',
	is_active        BOOLEAN NOT NULL DEFAULT true,
	created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	deactivated_at   TIMESTAMPTZ,
	CONSTRAINT tenants_slug_key UNIQUE (slug),
	CONSTRAINT tenants_not_own_parent CHECK (parent_tenant_id IS DISTINCT FROM id)
);

CREATE UNIQUE INDEX IF NOT EXISTS tenants_custom_domain_key ON tenants (lower(custom_domain)) WHERE custom_domain IS NOT NULL;
CREATE INDEX IF NOT EXISTS idx_tenants_parent ON tenants (parent_tenant_id) WHERE parent_tenant_id IS NOT NULL;

CREATE OR REPLACE FUNCTION warden_tenant_key_immutable() RETURNS trigger
LANGUAGE plpgsql AS $$
BEGIN
	IF NEW.id IS DISTINCT FROM OLD.id THEN
		RAISE EXCEPTION 'tenant id is immutable' USING ERRCODE = '42501';
	END IF;
	IF NEW.parent_tenant_id IS DISTINCT FROM OLD.parent_tenant_id AND NOT warden_is_super_admin() THEN
		RAISE EXCEPTION 'tenant parent requires platform privilege' USING ERRCODE = '42501';
	END IF;
	NEW.updated_at := NOW();
	RETURN NEW;
END
$$;

DROP TRIGGER IF EXISTS tenants_key_immutable ON tenants;
CREATE TRIGGER tenants_key_immutable BEFORE UPDATE ON tenants
	FOR EACH ROW EXECUTE FUNCTION warden_tenant_key_immutable();
`,
		},
		{
			Version:     3,
			Description: "Memberships, invitations and API keys",
			SQL: `
CREATE TABLE IF NOT EXISTS memberships (
	id         UUID PRIMARY KEY,
	tenant_id  UUID NOT NULL REFERENCES tenants(id),
	user_id    UUID NOT NULL,
	role       VARCHAR(16) NOT NULL,
	is_active  BOOLEAN NOT NULL DEFAULT true,
	invited_by UUID,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	CONSTRAINT memberships_tenant_user_key UNIQUE (tenant_id, user_id),
	CONSTRAINT memberships_role_check CHECK (role IN ('owner', 'admin', 'member'))
);

CREATE INDEX IF NOT EXISTS idx_memberships_user ON memberships (user_id) WHERE is_active;
CREATE INDEX IF NOT EXISTS idx_memberships_owners ON memberships (tenant_id) WHERE is_active AND role = 'owner';

CREATE TABLE IF NOT EXISTS invitations (
	id          UUID PRIMARY KEY,
	tenant_id   UUID NOT NULL REFERENCES tenants(id),
	email       VARCHAR(320) NOT NULL,
	role        VARCHAR(16) NOT NULL,
	token_hash  VARCHAR(64) NOT NULL,
	invited_by  UUID NOT NULL,
	expires_at  TIMESTAMPTZ NOT NULL,
	accepted_at TIMESTAMPTZ,
	accepted_by UUID,
	revoked_at  TIMESTAMPTZ,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	CONSTRAINT invitations_token_hash_key UNIQUE (token_hash),
	CONSTRAINT invitations_role_check CHECK (role IN ('owner', 'admin', 'member'))
);

CREATE INDEX IF NOT EXISTS idx_invitations_tenant ON invitations (tenant_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_invitations_expiry ON invitations (expires_at) WHERE accepted_at IS NULL AND revoked_at IS NULL;

CREATE TABLE IF NOT EXISTS api_keys (
	id           UUID PRIMARY KEY,
	tenant_id    UUID NOT NULL REFERENCES tenants(id),
	user_id      UUID NOT NULL,
	name         VARCHAR(255) NOT NULL,
	key_prefix   VARCHAR(32) NOT NULL,
	key_hash     VARCHAR(64) NOT NULL,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	expires_at   TIMESTAMPTZ,
	last_used_at TIMESTAMPTZ,
	revoked_at   TIMESTAMPTZ,
	CONSTRAINT api_keys_key_hash_key UNIQUE (key_hash)
);

CREATE INDEX IF NOT EXISTS idx_api_keys_tenant ON api_keys (tenant_id);

DROP TRIGGER IF EXISTS memberships_tenant_immutable ON memberships;
CREATE TRIGGER memberships_tenant_immutable BEFORE UPDATE ON memberships
	FOR EACH ROW EXECUTE FUNCTION warden_tenant_id_immutable();

DROP TRIGGER IF EXISTS invitations_tenant_immutable ON invitations;
CREATE TRIGGER invitations_tenant_immutable BEFORE UPDATE ON invitations
	FOR EACH ROW EXECUTE FUNCTION warden_tenant_id_immutable();

DROP TRIGGER IF EXISTS api_keys_tenant_immutable ON api_keys;
CREATE TRIGGER api_keys_tenant_immutable BEFORE UPDATE ON api_keys
	FOR EACH ROW EXECUTE FUNCTION warden_tenant_id_immutable();
`,
		},
		{
			Version:     4,
			Description: "Audit records and platform administrators",
			SQL: `
CREATE TABLE IF NOT EXISTS audit_records (
	id               UUID PRIMARY KEY,
	tenant_id        UUID NOT NULL,
	actor_user_id    UUID,
	action           VARCHAR(64) NOT NULL,
	target_type      VARCHAR(64) NOT NULL,
	target_id        VARCHAR(255),
	target_tenant_id UUID,
	status           VARCHAR(16) NOT NULL,
	privilege_bypass BOOLEAN NOT NULL DEFAULT false,
	request_id       VARCHAR(64),
	ip_address       VARCHAR(64),
	user_agent       TEXT,
	metadata         JSONB NOT NULL DEFAULT '{}',
	created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_audit_records_tenant_time ON audit_records (tenant_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_audit_records_actor ON audit_records (tenant_id, actor_user_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_audit_records_action ON audit_records (tenant_id, action, created_at DESC);

DROP TRIGGER IF EXISTS audit_records_immutable ON audit_records;
CREATE TRIGGER audit_records_immutable BEFORE UPDATE OR DELETE ON audit_records
	FOR EACH ROW EXECUTE FUNCTION warden_audit_immutable();

DROP TRIGGER IF EXISTS audit_records_no_truncate ON audit_records;
CREATE TRIGGER audit_records_no_truncate BEFORE TRUNCATE ON audit_records
	FOR EACH STATEMENT EXECUTE FUNCTION warden_audit_immutable();

CREATE TABLE IF NOT EXISTS platform_admins (
	user_id    UUID PRIMARY KEY,
	role       VARCHAR(32) NOT NULL DEFAULT 'system:superadmin',
	granted_by UUID,
	granted_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`,
		},
		{
			Version:     5,
			Description: "Row-level security policies",
			SQL: `
ALTER TABLE tenants ENABLE ROW LEVEL SECURITY;
ALTER TABLE tenants FORCE ROW LEVEL SECURITY;

DROP POLICY IF EXISTS tenants_read ON tenants;
CREATE POLICY tenants_read ON tenants FOR SELECT USING (
	id = warden_current_tenant()
	OR warden_is_super_admin()
	OR id = ANY (warden_child_tenants())
	OR (warden_hierarchy_read() AND parent_tenant_id = warden_current_tenant())
	OR (
		warden_current_tenant() IS NULL
		AND EXISTS (
			SELECT 1 FROM memberships m
			WHERE m.tenant_id = tenants.id
			  AND m.user_id = warden_current_user()
			  AND m.is_active
		)
	)
);

DROP POLICY IF EXISTS tenants_insert ON tenants;
CREATE POLICY tenants_insert ON tenants FOR INSERT WITH CHECK (
	id = warden_current_tenant() OR warden_is_super_admin()
);

DROP POLICY IF EXISTS tenants_update ON tenants;
CREATE POLICY tenants_update ON tenants FOR UPDATE
	USING (id = warden_current_tenant() OR warden_is_super_admin())
	WITH CHECK (id = warden_current_tenant() OR warden_is_super_admin());

ALTER TABLE memberships ENABLE ROW LEVEL SECURITY;
ALTER TABLE memberships FORCE ROW LEVEL SECURITY;

DROP POLICY IF EXISTS memberships_read ON memberships;
CREATE POLICY memberships_read ON memberships FOR SELECT USING (
	tenant_id = warden_current_tenant()
	OR warden_is_super_admin()
	OR tenant_id = ANY (warden_child_tenants())
	OR (warden_current_tenant() IS NULL AND user_id = warden_current_user())
);

DROP POLICY IF EXISTS memberships_insert ON memberships;
CREATE POLICY memberships_insert ON memberships FOR INSERT WITH CHECK (
	tenant_id = warden_current_tenant() OR warden_is_super_admin()
);

DROP POLICY IF EXISTS memberships_update ON memberships;
CREATE POLICY memberships_update ON memberships FOR UPDATE
	USING (tenant_id = warden_current_tenant() OR warden_is_super_admin())
	WITH CHECK (tenant_id = warden_current_tenant() OR warden_is_super_admin());

ALTER TABLE invitations ENABLE ROW LEVEL SECURITY;
ALTER TABLE invitations FORCE ROW LEVEL SECURITY;

DROP POLICY IF EXISTS invitations_read ON invitations;
CREATE POLICY invitations_read ON invitations FOR SELECT USING (
	tenant_id = warden_current_tenant()
	OR warden_is_super_admin()
	OR tenant_id = ANY (warden_child_tenants())
);

DROP POLICY IF EXISTS invitations_insert ON invitations;
CREATE POLICY invitations_insert ON invitations FOR INSERT WITH CHECK (
	tenant_id = warden_current_tenant() OR warden_is_super_admin()
);

DROP POLICY IF EXISTS invitations_update ON invitations;
CREATE POLICY invitations_update ON invitations FOR UPDATE
	USING (tenant_id = warden_current_tenant() OR warden_is_super_admin())
	WITH CHECK (tenant_id = warden_current_tenant() OR warden_is_super_admin());

DROP POLICY IF EXISTS invitations_delete ON invitations;
CREATE POLICY invitations_delete ON invitations FOR DELETE USING (
	tenant_id = warden_current_tenant() OR warden_is_super_admin()
);

ALTER TABLE api_keys ENABLE ROW LEVEL SECURITY;
ALTER TABLE api_keys FORCE ROW LEVEL SECURITY;

DROP POLICY IF EXISTS api_keys_read ON api_keys;
CREATE POLICY api_keys_read ON api_keys FOR SELECT USING (
	tenant_id = warden_current_tenant()
	OR warden_is_super_admin()
	OR tenant_id = ANY (warden_child_tenants())
);

DROP POLICY IF EXISTS api_keys_insert ON api_keys;
CREATE POLICY api_keys_insert ON api_keys FOR INSERT WITH CHECK (
	tenant_id = warden_current_tenant() OR warden_is_super_admin()
);

DROP POLICY IF EXISTS api_keys_update ON api_keys;
CREATE POLICY api_keys_update ON api_keys FOR UPDATE
	USING (tenant_id = warden_current_tenant() OR warden_is_super_admin())
	WITH CHECK (tenant_id = warden_current_tenant() OR warden_is_super_admin());

ALTER TABLE audit_records ENABLE ROW LEVEL SECURITY;
ALTER TABLE audit_records FORCE ROW LEVEL SECURITY;

DROP POLICY IF EXISTS audit_records_read ON audit_records;
CREATE POLICY audit_records_read ON audit_records FOR SELECT USING (
	tenant_id = warden_current_tenant()
	OR warden_is_super_admin()
	OR tenant_id = ANY (warden_child_tenants())
);

DROP POLICY IF EXISTS audit_records_insert ON audit_records;
CREATE POLICY audit_records_insert ON audit_records FOR INSERT WITH CHECK (
	tenant_id = warden_current_tenant() OR warden_is_super_admin()
);

REVOKE UPDATE, DELETE, TRUNCATE ON audit_records FROM PUBLIC;
`,
		},
	}
}

// RunMigrations applies all pending migrations
func RunMigrations(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS warden_migrations (
			version INTEGER PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	var currentVersion int
	err = db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM warden_migrations").Scan(&currentVersion)
	if err != nil {
		return fmt.Errorf("failed to get current version: %w", err)
	}

	for _, migration := range GetMigrations() {
		if migration.Version <= currentVersion {
			continue
		}
		if err := applyMigration(ctx, db, migration); err != nil {
			return err
		}
	}

	return nil
}

func applyMigration(ctx context.Context, db *sql.DB, migration Migration) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, migration.SQL); err != nil {
		return fmt.Errorf("migration %d (%s) failed: %w", migration.Version, migration.Description, err)
	}

	if _, err := tx.ExecContext(ctx,
		"INSERT INTO warden_migrations (version, description) VALUES ($1, $2)",
		migration.Version, migration.Description,
	); err != nil {
		return fmt.Errorf("failed to record migration %d: %w", migration.Version, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit migration %d: %w", migration.Version, err)
	}

	return nil
}
