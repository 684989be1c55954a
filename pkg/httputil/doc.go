// Package httputil provides HTTP utilities for standardized request/response handling.
//
// Handlers return domain errors and let WriteDomainError pick the status:
//
//	if err := svc.RemoveMember(ctx, tenantID, userID); err != nil {
//		httputil.WriteDomainError(w, err)
//		return
//	}
//
// 401 and 403 responses use fixed bodies. A tenant mismatch and a capability
// denial both answer 403 {"error":"forbidden"}.
package httputil
