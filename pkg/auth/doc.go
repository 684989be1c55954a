// Package auth verifies who is calling.
//
// Two credential kinds are accepted as bearer tokens:
//
//   - Session tokens: HS256 JWTs carrying the user id (sub) and a session id
//     (sid). The tenant selected for a session is kept server-side by the
//     session package, never in the token.
//   - API keys: opaque tokens bound to exactly one tenant at issuance.
//
// API key format:
//
//	wdn_<base64url(tenant uuid)>_<base64url(32 random bytes)>
//
// Keys are stored as SHA256 hashes. The embedded tenant id is used only to
// choose the isolation scope for the lookup; it carries no authority by
// itself because the hash covers the complete key.
//
// # Usage
//
//	tokens := auth.NewSessionTokens(cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer, cfg.Auth.SessionTTL)
//	keys := auth.NewPostgresAPIKeyStore(isolator, cfg.Auth.APIKeyPrefix)
//	authn := auth.NewAuthenticator(tokens, keys, cfg.Auth.APIKeyPrefix)
//
//	identity, err := authn.Authenticate(r)
//	if errors.Is(err, domain.ErrUnauthenticated) {
//		// 401
//	}
package auth
