// Package jwt issues and parses zkauth session tokens.
//
// A session token is a signed JWT carrying the account ID (sub), the
// account email, and a unique token ID (jti) used for targeted
// revocation. Supported signing methods are Ed25519 (default) and HS256.
//
// The package performs no storage lookups; revocation checks belong to
// the engine, which keeps a TTL-bound marker per revoked jti.
package jwt
