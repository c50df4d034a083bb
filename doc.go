// Package zkauth provides a zero-knowledge authentication engine for
// password-manager style services: SRP-6a login with a secret-key second
// factor, a lockout state machine, device trust, and JWT session
// issuance with Redis-backed revocation.
//
// The server never sees the master password. Clients derive an SRP
// verifier and a secret key fingerprint locally and submit only those;
// login proves knowledge of the password through the SRP exchange
// without transmitting it.
//
// The package is designed for concurrent server workloads: Engine
// methods are safe to call from multiple goroutines after
// initialization through [Builder.Build].
//
// # Architecture boundaries
//
// zkauth is the public surface. It exposes [Engine], [Builder],
// [Config], the [CredentialStore] and [Mailer] integration interfaces,
// and value types (LoginResult, SessionInfo, etc.). Flow orchestration,
// cache encoding, and audit dispatch are unexported; the SRP math lives
// in the srp sub-package and performs no I/O.
//
// # What this package must NOT do
//
//   - Expose Redis clients, cache stores, or record encodings in its
//     public API.
//   - Log or persist SRP intermediates (b, S, K) beyond the TTL-bound
//     challenge cache entry.
//   - Import any sub-package that re-imports zkauth (no import cycles).
package zkauth
