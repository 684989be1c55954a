// Package tenants manages tenants, their memberships and invitations.
//
// # Overview
//
// PostgresService is the single implementation of Directory, MemberStore and
// InvitationStore. Every query runs through postgres.Isolator, so the scope
// attached to the request context decides what rows exist for the caller.
// Arguments that name another tenant simply find nothing, and writes against
// another tenant fail with domain.ErrPermissionDenied.
//
// # Tenant Lifecycle
//
// CreateTenant inserts the tenant and its first owner membership in one
// transaction. Tenants are deactivated, never deleted:
//
//	tenant, err := svc.CreateTenant(ctx, tenants.CreateTenantRequest{
//		Name:        "Acme Corp",
//		OwnerUserID: userID,
//	})
//
// Slugs are derived from the name when omitted and must be 3-63 lowercase
// characters. Reusing a slug returns domain.ErrSlugTaken.
//
// # Owners
//
// Every active tenant keeps at least one active owner. ChangeRole and
// RemoveMember run serializable transactions that lock the owner rows before
// deciding, so two concurrent demotions cannot both succeed.
//
// # Invitations
//
// Invitation tokens embed the tenant they belong to (see auth.TokenGenerator).
// AcceptInvitation scopes its transaction to that tenant, which lets a user
// who is not yet a member redeem the token without any privileged lookup.
package tenants
