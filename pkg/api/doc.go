// Package api provides the HTTP REST API for tenant administration.
//
// # Overview
//
// The API exposes the tenant directory, memberships, invitations, API keys
// and the audit trail. Every route lives under /v1 and runs behind the
// session middleware, so handlers always see a resolved session.Context.
//
// # Routes
//
//	GET    /v1/session                      current session
//	POST   /v1/session/switch               select or clear the tenant
//	POST   /v1/tenants                      create a tenant owned by the caller
//	GET    /v1/tenants                      tenants visible to the caller
//	GET    /v1/tenants/current              settings.read
//	PATCH  /v1/tenants/current              settings.write (+ billing.manage for plan/modules)
//	POST   /v1/tenants/current/deactivate   tenant.deactivate
//	GET    /v1/tenants/current/children     settings.read
//	PUT    /v1/tenants/{id}/parent          system.config
//	GET    /v1/members                      users.read
//	POST   /v1/members                      users.write
//	GET    /v1/members/{user_id}            users.read
//	PUT    /v1/members/{user_id}            roles.write
//	DELETE /v1/members/{user_id}            users.delete
//	GET    /v1/invitations                  users.read
//	POST   /v1/invitations                  invitations.write
//	DELETE /v1/invitations/{id}             invitations.write
//	POST   /v1/invitations/accept           any browser session
//	GET    /v1/api-keys                     api_keys.read
//	POST   /v1/api-keys                     api_keys.write
//	DELETE /v1/api-keys/{id}                api_keys.write
//	GET    /v1/audit                        audit.read
//
// Any change that grants, revokes or moves the owner role additionally needs
// owners.manage.
//
// # Errors
//
// Errors are mapped by httputil.WriteDomainError. A tenant the caller cannot
// see answers exactly like one that does not exist.
//
// # Usage
//
//	server := api.NewServer(api.Deps{
//		Tenants:       tenantService,
//		APIKeys:       keyStore,
//		Authenticator: authenticator,
//		Resolver:      resolver,
//		AuditStore:    auditStore,
//		Emitter:       emitter,
//		Logger:        logger,
//	})
//	http.ListenAndServe(":8080", server)
package api
