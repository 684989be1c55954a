package middleware

import (
	"net/http"
	"strings"

	"github.com/platinummonkey/warden/pkg/audit"
	"github.com/platinummonkey/warden/pkg/observability"
	"github.com/platinummonkey/warden/pkg/rbac"
	"github.com/platinummonkey/warden/pkg/session"
)

// SessionAuthorizer returns the request's session as its rbac.Authorizer
func SessionAuthorizer(r *http.Request) (rbac.Authorizer, bool) {
	sc, ok := session.FromContext(r.Context())
	if !ok {
		return nil, false
	}
	return sc, true
}

// NewPermissionMiddleware creates capability guards backed by the session
// context, recording every decision
func NewPermissionMiddleware(metrics *observability.Metrics, emitter audit.Emitter) *rbac.PermissionMiddleware {
	return rbac.NewPermissionMiddleware(SessionAuthorizer, DecisionRecorder(metrics, emitter))
}

// DecisionRecorder counts guard decisions and audits denials and decisions
// allowed only by the super admin bypass. Both are only audited when the
// session has a tenant to file them under.
func DecisionRecorder(metrics *observability.Metrics, emitter audit.Emitter) rbac.DecisionObserver {
	return func(r *http.Request, mode rbac.Combinator, caps []rbac.Capability, d rbac.Decision) {
		label := capabilityLabel(caps)

		if metrics != nil {
			outcome := "denied"
			if d.Allowed {
				outcome = "allowed"
			}
			metrics.AuthorizationDecisionsTotal.WithLabelValues(label, outcome).Inc()
			if d.Bypass {
				metrics.PrivilegeBypassTotal.WithLabelValues(label).Inc()
			}
		}

		if emitter == nil || (d.Allowed && !d.Bypass) {
			return
		}
		sc, ok := session.FromContext(r.Context())
		if !ok || !sc.HasTenant() {
			return
		}

		var rec *audit.Record
		if d.Allowed {
			rec = audit.NewRecord(r, audit.ActionPermissionBypass, audit.TargetEndpoint, r.Method+" "+r.URL.Path)
			rec.PrivilegeBypass = true
		} else {
			rec = audit.NewRecord(r, audit.ActionPermissionDenied, audit.TargetEndpoint, r.Method+" "+r.URL.Path)
			rec.Status = audit.StatusDenied
		}
		rec.Metadata = map[string]interface{}{
			"capabilities": label,
			"mode":         mode.String(),
			"role":         string(sc.Role()),
		}
		emitter.Emit(r.Context(), rec)
	}
}

func capabilityLabel(caps []rbac.Capability) string {
	names := make([]string, len(caps))
	for i, c := range caps {
		names[i] = string(c)
	}
	return strings.Join(names, ",")
}
