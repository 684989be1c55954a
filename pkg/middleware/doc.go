// Package middleware provides the HTTP middleware between authentication and
// the API handlers.
//
// # Ordering
//
// Outer to inner:
//  1. SessionMiddleware authenticates the bearer credential, resolves the
//     session context and attaches it with the isolation scope
//  2. RateLimitMiddleware limits per API key, user or client IP
//  3. RequireTenant on routes that act on the current tenant
//  4. capability guards from NewPermissionMiddleware
//
// A handler behind SessionMiddleware can rely on session.MustFromContext.
//
// # Rate Limiting
//
// RateLimiter keeps token buckets in process. DistributedRateLimiter keeps
// fixed windows in Redis so every instance shares the same counts. When the
// limiter backend fails the middleware either lets the request through or
// answers 503, depending on the fail-open setting.
package middleware
