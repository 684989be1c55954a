// Package cli implements warden-admin, the operator command line for tasks
// that run outside any tenant session.
//
// # Commands
//
// migrate: apply pending schema migrations
//
//	warden-admin migrate
//
// grant-superadmin / revoke-superadmin: manage the platform role. The change
// is written to the audit log stream.
//
//	warden-admin grant-superadmin --user 6f1c...
//	warden-admin revoke-superadmin --user 6f1c...
//
// issue-token: sign a session token, for bootstrapping and local testing
//
//	warden-admin issue-token --user 6f1c...
//
// create-tenant: create a tenant with its owner, optionally under a parent
//
//	warden-admin create-tenant --name "Acme" --owner 6f1c... [--parent 0b2e...]
//
// # Configuration
//
// Commands read the same WARDEN_* environment and WARDEN_CONFIG_FILE as the
// server.
package cli
