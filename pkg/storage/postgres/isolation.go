package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/platinummonkey/warden/pkg/contextkeys"
	"github.com/platinummonkey/warden/pkg/domain"
	"github.com/platinummonkey/warden/pkg/observability"
)

const tracerName = "github.com/platinummonkey/warden/pkg/storage/postgres"

// Scope is the identity a transaction runs under. It is applied as
// transaction-local settings that the row-level security policies read.
type Scope struct {
	TenantID   uuid.UUID
	UserID     uuid.UUID
	SuperAdmin bool
}

// SystemScope is used by maintenance jobs that act on every tenant
func SystemScope() Scope {
	return Scope{SuperAdmin: true}
}

// Empty reports whether the scope admits nothing
func (s Scope) Empty() bool {
	return s.TenantID == uuid.Nil && s.UserID == uuid.Nil && !s.SuperAdmin
}

// WithScope attaches an isolation scope to ctx
func WithScope(ctx context.Context, s Scope) context.Context {
	return contextkeys.WithScope(ctx, s)
}

// ScopeFromContext returns the isolation scope attached to ctx
func ScopeFromContext(ctx context.Context) (Scope, bool) {
	s, ok := ctx.Value(contextkeys.ScopeKey).(Scope)
	return s, ok
}

// TxFunc is the body of an isolated transaction
type TxFunc func(tx *sql.Tx) error

// IsolatorConfig holds isolation settings
type IsolatorConfig struct {
	// HierarchyRead lets a tenant read rows of its direct children
	HierarchyRead bool
	// SerializableRetries bounds retries after serialization failures
	SerializableRetries int
}

// Isolator runs transactions with the session scope applied before any
// statement. It is the only way the service touches tenant data.
type Isolator struct {
	conns   *ConnectionManager
	config  IsolatorConfig
	metrics *observability.Metrics
	logger  *observability.Logger
}

// NewIsolator creates an isolator. metrics may be nil.
func NewIsolator(conns *ConnectionManager, config IsolatorConfig, metrics *observability.Metrics, logger *observability.Logger) *Isolator {
	if config.SerializableRetries < 0 {
		config.SerializableRetries = 0
	}
	return &Isolator{
		conns:   conns,
		config:  config,
		metrics: metrics,
		logger:  logger,
	}
}

// Run executes fn in a read-committed transaction on the primary under the
// scope attached to ctx
func (i *Isolator) Run(ctx context.Context, fn TxFunc) error {
	scope, ok := ScopeFromContext(ctx)
	if !ok {
		return domain.ErrUnauthenticated
	}
	return i.RunIn(ctx, scope, fn)
}

// RunIn executes fn under an explicit scope
func (i *Isolator) RunIn(ctx context.Context, scope Scope, fn TxFunc) error {
	return i.run(ctx, i.conns.Primary(), scope, nil, "read_committed", fn)
}

// RunSerializable executes fn in a serializable transaction under the scope
// attached to ctx, retrying on serialization failures and deadlocks
func (i *Isolator) RunSerializable(ctx context.Context, fn TxFunc) error {
	scope, ok := ScopeFromContext(ctx)
	if !ok {
		return domain.ErrUnauthenticated
	}
	return i.RunSerializableIn(ctx, scope, fn)
}

// RunSerializableIn is RunSerializable with an explicit scope
func (i *Isolator) RunSerializableIn(ctx context.Context, scope Scope, fn TxFunc) error {
	opts := &sql.TxOptions{Isolation: sql.LevelSerializable}

	var err error
	for attempt := 0; ; attempt++ {
		err = i.run(ctx, i.conns.Primary(), scope, opts, "serializable", fn)
		if !isRetryable(err) || attempt >= i.config.SerializableRetries {
			return err
		}

		if i.metrics != nil {
			i.metrics.TxRetriesTotal.Inc()
		}
		i.logger.WithError(err).WithField("attempt", attempt+1).Debug("Retrying serializable transaction")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt+1) * 10 * time.Millisecond):
		}
	}
}

// RunReadOnly executes fn in a read-only transaction on a replica under the
// scope attached to ctx
func (i *Isolator) RunReadOnly(ctx context.Context, fn TxFunc) error {
	scope, ok := ScopeFromContext(ctx)
	if !ok {
		return domain.ErrUnauthenticated
	}
	return i.run(ctx, i.conns.Replica(), scope, &sql.TxOptions{ReadOnly: true}, "read_only", fn)
}

func (i *Isolator) run(ctx context.Context, db *sql.DB, scope Scope, opts *sql.TxOptions, isolation string, fn TxFunc) (err error) {
	if scope.Empty() {
		return domain.ErrUnauthenticated
	}

	ctx, span := observability.StartSpan(ctx, tracerName, "isolator.tx",
		attribute.String("isolation", isolation),
		attribute.String("tenant_id", scope.tenantSetting()),
		attribute.Bool("super_admin", scope.SuperAdmin),
	)
	start := time.Now()
	defer func() {
		outcome := outcomeOf(err)
		observability.EndSpan(span, err, outcome)
		if i.metrics != nil {
			i.metrics.ScopedTxTotal.WithLabelValues(isolation, outcome).Inc()
			i.metrics.ScopedTxDuration.WithLabelValues(isolation).Observe(time.Since(start).Seconds())
			if outcome == "denied" {
				i.metrics.WriteDenialsTotal.Inc()
			}
		}
	}()

	tx, err := db.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := i.applyScope(ctx, tx, scope); err != nil {
		return fmt.Errorf("failed to apply isolation scope: %w", err)
	}

	if err := fn(tx); err != nil {
		return classify(err)
	}

	if err := tx.Commit(); err != nil {
		return classify(fmt.Errorf("failed to commit transaction: %w", err))
	}
	return nil
}

func (i *Isolator) applyScope(ctx context.Context, tx *sql.Tx, scope Scope) error {
	hierarchy := i.config.HierarchyRead && scope.TenantID != uuid.Nil && !scope.SuperAdmin

	_, err := tx.ExecContext(ctx, `SELECT
		set_config('app.tenant_id', $1, true),
		set_config('app.user_id', $2, true),
		set_config('app.is_super_admin', $3, true),
		set_config('app.hierarchy_read', $4, true)`,
		scope.tenantSetting(), scope.userSetting(), onOff(scope.SuperAdmin), onOff(hierarchy),
	)
	if err != nil {
		return err
	}
	if !hierarchy {
		return nil
	}

	var children string
	err = tx.QueryRowContext(ctx,
		"SELECT COALESCE(array_agg(id)::text, '{}') FROM tenants WHERE parent_tenant_id = $1",
		scope.TenantID,
	).Scan(&children)
	if err != nil {
		return fmt.Errorf("failed to load child tenants: %w", err)
	}

	_, err = tx.ExecContext(ctx, "SELECT set_config('app.child_tenants', $1, true)", children)
	return err
}

func (s Scope) tenantSetting() string {
	if s.TenantID == uuid.Nil {
		return ""
	}
	return s.TenantID.String()
}

func (s Scope) userSetting() string {
	if s.UserID == uuid.Nil {
		return ""
	}
	return s.UserID.String()
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return "committed"
	case errors.Is(err, domain.ErrPermissionDenied):
		return "denied"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	default:
		return "rolled_back"
	}
}
