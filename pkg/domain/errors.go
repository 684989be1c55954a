// Package domain provides the sentinel errors shared by the tenancy and
// authorization packages.
//
// The HTTP layer maps these with errors.Is (see httputil.WriteDomainError), so
// packages wrap them with fmt.Errorf("...: %w", err) instead of defining
// their own copies.
package domain

import "errors"

// ErrUnauthenticated indicates that no verified identity is attached to the request.
var ErrUnauthenticated = errors.New("authentication required")

// ErrTenantMismatch indicates the selected tenant is not one of the caller's
// active memberships. It must never reveal whether the tenant exists.
var ErrTenantMismatch = errors.New("tenant mismatch")

// ErrPermissionDenied indicates a failed capability check or a rejected
// row-level security write.
var ErrPermissionDenied = errors.New("permission denied")

// ErrDuplicateMembership indicates the user is already an active member of the tenant.
var ErrDuplicateMembership = errors.New("user is already a member of this tenant")

// ErrInvalidRole indicates an unrecognized role slug.
var ErrInvalidRole = errors.New("invalid role")

// ErrLastOwnerViolation indicates the change would leave a tenant without an active owner.
var ErrLastOwnerViolation = errors.New("tenant must keep at least one active owner")

// ErrSlugTaken indicates another tenant already uses the slug.
var ErrSlugTaken = errors.New("slug is already taken")

// ErrParentNotFound indicates the requested parent tenant does not exist.
var ErrParentNotFound = errors.New("parent tenant not found")

// ErrHierarchyCycle indicates a re-parent would make a tenant its own ancestor.
var ErrHierarchyCycle = errors.New("tenant hierarchy cycle")

// ErrInvalidInput indicates a malformed request value.
var ErrInvalidInput = errors.New("invalid input")

// ErrNotFound indicates the requested entity does not exist or is not visible.
var ErrNotFound = errors.New("not found")

// ErrAuditEmission indicates an audit record could not be persisted.
var ErrAuditEmission = errors.New("audit emission failed")
