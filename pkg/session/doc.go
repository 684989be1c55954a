// Package session carries the per-request tenant context.
//
// The session middleware authenticates the request, asks the Resolver for a
// Context and attaches it with WithContext. That also attaches the matching
// postgres.Scope, so every query made while serving the request runs under
// the session's tenant without being passed the tenant explicitly:
//
//	sc, ok := session.FromContext(r.Context())
//	if !ok || !sc.Can(rbac.CapUsersWrite) {
//		httputil.WriteDomainError(w, domain.ErrPermissionDenied)
//		return
//	}
//
// A Context is immutable. SwitchTenant returns a new one with a fresh
// permission memo; the request that switched keeps its original Context.
package session
