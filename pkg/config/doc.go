// Package config loads service configuration.
//
// Values are resolved in three layers: built-in defaults, an optional YAML
// file named by WARDEN_CONFIG_FILE, then WARDEN_* environment variables.
// LoadConfig validates the result before returning it.
//
// Required settings:
//
//	WARDEN_POSTGRES_URL   connection string for the application role
//	WARDEN_JWT_SECRET     HMAC key for session tokens, at least 32 bytes
//
// Tenancy settings:
//
//	WARDEN_TENANCY_HIERARCHY_READ         parent tenants read direct children (default false)
//	WARDEN_TENANCY_SERIALIZABLE_RETRIES   retries for last-owner transactions (default 3)
//	WARDEN_TENANCY_INVITATION_TTL         invitation lifetime (default 168h)
package config
