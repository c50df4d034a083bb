package zkauth

import (
	"errors"
	"time"
)

// Config defines a public type used by zkauth APIs.
//
// Config instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Config struct {
	JWT           JWTConfig
	SRP           SRPConfig
	Lockout       LockoutConfig
	DeviceTrust   DeviceTrustConfig
	Registration  RegistrationConfig
	PasswordReset PasswordResetConfig
	Password      PasswordConfig
	Audit         AuditConfig
	Metrics       MetricsConfig
	Cache         CacheConfig
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig defines a public type used by zkauth APIs.
//
// JWTConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type JWTConfig struct {
	SessionTTL    time.Duration
	SigningMethod string // "ed25519" (default), "hs256" optional
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Leeway        time.Duration
}

/*
====================================
SRP CONFIG
====================================
*/

// SRPConfig defines a public type used by zkauth APIs.
//
// SRPConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type SRPConfig struct {
	ChallengeTTL time.Duration
	// MinDelay/MaxDelay bound the random response delay applied when a
	// login challenge is requested for an unknown email.
	MinDelay time.Duration
	MaxDelay time.Duration
}

/*
====================================
LOCKOUT CONFIG
====================================
*/

// LockoutConfig defines a public type used by zkauth APIs.
//
// LockoutConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type LockoutConfig struct {
	MaxFailedAttempts int
	LockDuration      time.Duration
}

/*
====================================
DEVICE TRUST CONFIG
====================================
*/

// DeviceTrustConfig defines a public type used by zkauth APIs.
//
// DeviceTrustConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type DeviceTrustConfig struct {
	TrustDuration time.Duration
}

/*
====================================
REGISTRATION CONFIG
====================================
*/

// RegistrationConfig defines a public type used by zkauth APIs.
//
// RegistrationConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type RegistrationConfig struct {
	CodeTTL              time.Duration
	CodeDigits           int
	VerificationTokenTTL time.Duration
	MinKDFIterations     int
}

/*
====================================
PASSWORD RESET CONFIG
====================================
*/

// PasswordResetConfig defines a public type used by zkauth APIs.
//
// PasswordResetConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type PasswordResetConfig struct {
	CodeTTL    time.Duration
	CodeDigits int
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig defines a public type used by zkauth APIs.
//
// PasswordConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type PasswordConfig struct {
	// Enabled turns on the PBKDF2 password login path alongside SRP.
	Enabled    bool
	Iterations int
	SaltLength int
	KeyLength  int
}

// AuditConfig defines a public type used by zkauth APIs.
//
// AuditConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig defines a public type used by zkauth APIs.
//
// MetricsConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type MetricsConfig struct {
	Enabled bool
}

/*
====================================
CACHE CONFIG
====================================
*/

// CacheConfig defines a public type used by zkauth APIs.
//
// CacheConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type CacheConfig struct {
	RedisPrefix string
}

func defaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			SessionTTL:    7 * 24 * time.Hour,
			SigningMethod: "ed25519",
			Issuer:        "zkauth",
			Leeway:        30 * time.Second,
		},
		SRP: SRPConfig{
			ChallengeTTL: 5 * time.Minute,
			MinDelay:     500 * time.Millisecond,
			MaxDelay:     1000 * time.Millisecond,
		},
		Lockout: LockoutConfig{
			MaxFailedAttempts: 5,
			LockDuration:      15 * time.Minute,
		},
		DeviceTrust: DeviceTrustConfig{
			TrustDuration: 365 * 24 * time.Hour,
		},
		Registration: RegistrationConfig{
			CodeTTL:              10 * time.Minute,
			CodeDigits:           6,
			VerificationTokenTTL: 5 * time.Minute,
			MinKDFIterations:     100_000,
		},
		PasswordReset: PasswordResetConfig{
			CodeTTL:    15 * time.Minute,
			CodeDigits: 6,
		},
		Password: PasswordConfig{
			Enabled:    false,
			Iterations: 210_000,
			SaltLength: 16,
			KeyLength:  32,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 256,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
		Cache: CacheConfig{
			RedisPrefix: "zka",
		},
	}
}

// DefaultConfig describes the defaultconfig operation and its observable behavior.
//
// DefaultConfig may return an error when input validation, dependency calls, or security checks fail.
// DefaultConfig does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func DefaultConfig() Config {
	return defaultConfig()
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.PrivateKey = cloneBytes(cfg.JWT.PrivateKey)
	out.JWT.PublicKey = cloneBytes(cfg.JWT.PublicKey)
	return out
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

// Validate describes the validate operation and its observable behavior.
//
// Validate may return an error when input validation, dependency calls, or security checks fail.
// Validate does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (c *Config) Validate() error {
	if c.JWT.SessionTTL <= 0 {
		return errors.New("JWT SessionTTL must be positive")
	}
	if c.JWT.SigningMethod != "ed25519" && c.JWT.SigningMethod != "hs256" {
		return errors.New("JWT SigningMethod must be ed25519 or hs256")
	}
	if c.SRP.ChallengeTTL <= 0 {
		return errors.New("SRP ChallengeTTL must be positive")
	}
	if c.SRP.MinDelay < 0 || c.SRP.MaxDelay < c.SRP.MinDelay {
		return errors.New("SRP delay window invalid")
	}
	if c.Lockout.MaxFailedAttempts <= 0 {
		return errors.New("Lockout MaxFailedAttempts must be positive")
	}
	if c.Lockout.LockDuration <= 0 {
		return errors.New("Lockout LockDuration must be positive")
	}
	if c.DeviceTrust.TrustDuration <= 0 {
		return errors.New("DeviceTrust TrustDuration must be positive")
	}
	if c.Registration.CodeTTL <= 0 || c.Registration.VerificationTokenTTL <= 0 {
		return errors.New("Registration TTLs must be positive")
	}
	if c.Registration.CodeDigits < 6 || c.Registration.CodeDigits > 10 {
		return errors.New("Registration CodeDigits must be between 6 and 10")
	}
	if c.Registration.MinKDFIterations <= 0 {
		return errors.New("Registration MinKDFIterations must be positive")
	}
	if c.PasswordReset.CodeTTL <= 0 {
		return errors.New("PasswordReset CodeTTL must be positive")
	}
	if c.PasswordReset.CodeDigits < 6 || c.PasswordReset.CodeDigits > 10 {
		return errors.New("PasswordReset CodeDigits must be between 6 and 10")
	}
	if c.Password.Enabled {
		// The hasher takes unsigned parameters; a negative value here
		// would wrap instead of failing.
		if c.Password.Iterations <= 0 || c.Password.SaltLength <= 0 || c.Password.KeyLength <= 0 {
			return errors.New("Password parameters must be positive when password login is enabled")
		}
	}
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be positive when audit is enabled")
	}
	if c.Cache.RedisPrefix == "" {
		return errors.New("Cache RedisPrefix must not be empty")
	}
	return nil
}
