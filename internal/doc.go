// Package internal holds helpers shared by the zkauth engine that are
// not part of its public API: random material generation and the
// anti-enumeration delay primitive.
package internal
