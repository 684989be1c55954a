// Package rbac evaluates tenant roles against capabilities.
//
// # Roles
//
// Tenant roles form a closed set ordered by seniority:
//
//	member < admin < owner
//
// Each role maps to a fixed CapabilitySet defined in capabilities.go. Senior
// sets are built by extending the next junior set, so owner ⊇ admin ⊇ member
// holds by construction. system.config belongs to no tenant role.
//
// Super admins are not a tenant role. They are recorded in platform_admins and
// carried on the session as a flag.
//
// # Evaluation
//
//	d := rbac.Evaluate(rbac.Subject{Role: rbac.RoleAdmin}, rbac.CapUsersWrite)
//	if !d.Allowed {
//		return domain.ErrPermissionDenied
//	}
//
// Evaluate never returns an error. A denial is a Decision with Allowed false;
// the HTTP boundary turns it into a 403. When a super admin passes a check
// their role alone would fail, the Decision has Bypass set and the request's
// audit records are tagged privilege_bypass.
//
// EvaluateSet combines capabilities with All or Any. An empty set is denied.
//
// # Memoization
//
// A Memo caches decisions for one request. Memos are never shared across
// requests or tenants; switching tenant produces a new session with a new
// memo.
//
// # HTTP Guards
//
//	guard := rbac.NewPermissionMiddleware(sessionAuthorizer)
//	router.Handle("/v1/members", guard.RequirePermission(rbac.CapUsersWrite)(h))
package rbac
