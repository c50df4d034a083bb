// Package srp implements the server side of SRP-6a (RFC 5054) over the
// 3072-bit group with generator 5 and SHA-256 as the hash function.
//
// The package is pure computation: it performs no I/O, holds no mutable
// state after construction, and is safe for concurrent use. Callers are
// responsible for caching the ephemeral private value b between the
// challenge and verification steps and for discarding it afterwards.
//
// All values cross the package boundary as big-endian unsigned byte
// slices. Hash inputs that require canonical width are left-padded to
// the byte length of N; conversions never interpret a sign bit.
package srp
