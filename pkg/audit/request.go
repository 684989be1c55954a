package audit

import (
	"net"
	"net/http"
	"strings"

	"github.com/platinummonkey/warden/pkg/contextkeys"
	"github.com/platinummonkey/warden/pkg/session"
)

// NewRecord builds a record for a request, filling the actor, tenant,
// privilege bypass flag and request metadata from the request and its
// session. A super admin acting outside their memberships gets the session
// tenant as TargetTenantID. Callers set TargetTenantID, Status and Metadata as needed.
func NewRecord(r *http.Request, action Action, targetType TargetType, targetID string) *Record {
	ctx := r.Context()
	rec := &Record{
		Action:     action,
		TargetType: targetType,
		TargetID:   targetID,
		Status:     StatusSuccess,
		RequestID:  contextkeys.GetRequestID(ctx),
		IPAddress:  getClientIP(r),
		UserAgent:  r.UserAgent(),
	}

	if sc, ok := session.FromContext(ctx); ok {
		actor := sc.UserID()
		rec.ActorUserID = &actor
		rec.TenantID = sc.TenantID()
		rec.PrivilegeBypass = sc.PrivilegeBypassed()
		if sc.ForeignTenant() {
			tid := sc.TenantID()
			rec.TargetTenantID = &tid
		}
	}
	return rec
}

// getClientIP returns the originating client address: the first
// X-Forwarded-For hop, then X-Real-IP, then the connection peer.
func getClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
