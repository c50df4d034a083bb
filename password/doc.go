// Package password provides PBKDF2-HMAC-SHA256 credential hashing for the
// password-based login path.
//
// Hashes are stored in a PHC-style encoded string that embeds the salt and
// iteration count, so stored credentials remain verifiable after the
// engine's configured cost is raised. Verification is constant-time.
package password
