package zkauth

import (
	"context"
	"time"
)

// AccountStatus represents the lifecycle state of an account.
type AccountStatus uint8

const (
	// AccountActive is an exported constant or variable used by the authentication engine.
	AccountActive AccountStatus = iota
	// AccountLockedTemporary is an exported constant or variable used by the authentication engine.
	AccountLockedTemporary
	// AccountLockedPermanent is an exported constant or variable used by the authentication engine.
	AccountLockedPermanent
	// AccountSuspended is an exported constant or variable used by the authentication engine.
	AccountSuspended
)

// Account is the identity anchor stored by the credential store. The
// server holds only SRP material and the secret key fingerprint; the
// master password never reaches it.
//
// SRPSalt and SRPVerifier are base64-encoded as supplied by the client.
// PasswordHash, when set, is a PHC-encoded PBKDF2 string carrying its own
// salt and iteration count; it exists only for the password-based login
// path and is independent of the SRP verifier.
type Account struct {
	ID                   string
	Email                string
	SRPSalt              string
	SRPVerifier          string
	SecretKeyFingerprint string
	KDFIterations        int
	PasswordHash         string
	Status               AccountStatus
	FailedLoginAttempts  int
	LockedUntil          *time.Time
	LastPasswordChangeAt *time.Time
	CreatedAt            time.Time
}

// Device is a client installation bound to an account. A device is
// trusted iff TrustedUntil is in the future; an expired device is simply
// untrusted, not erased.
type Device struct {
	AccountID        string
	Fingerprint      string
	Name             string
	Platform         string
	TrustedAt        time.Time
	TrustedUntil     time.Time
	LastSeenAt       time.Time
	IsCurrentSession bool
}

// AccountUpdate is a partial update applied by CredentialStore.UpdateAccount.
// Nil pointer fields are left untouched; ClearLockedUntil distinguishes
// "set LockedUntil to nil" from "leave LockedUntil alone".
type AccountUpdate struct {
	Status               *AccountStatus
	FailedLoginAttempts  *int
	LockedUntil          *time.Time
	ClearLockedUntil     bool
	SRPSalt              *string
	SRPVerifier          *string
	SecretKeyFingerprint *string
	KDFIterations        *int
	PasswordHash         *string
	LastPasswordChangeAt *time.Time
}

// DeviceUpdate is a partial update applied by CredentialStore.UpdateDevice.
type DeviceUpdate struct {
	Name             *string
	Platform         *string
	TrustedAt        *time.Time
	TrustedUntil     *time.Time
	LastSeenAt       *time.Time
	IsCurrentSession *bool
}

// CreateAccountInput is the input for CredentialStore.CreateAccount.
// ReplaceAccountID, when non-empty, names a stale non-active row for the
// same email that must be deleted in the same transaction. InitialDevice,
// when non-nil, is created (auto-trusted, current session) atomically
// with the account — a failure at any point must leave no partial state.
type CreateAccountInput struct {
	Email                string
	SRPSalt              string
	SRPVerifier          string
	SecretKeyFingerprint string
	KDFIterations        int
	PasswordHash         string
	ReplaceAccountID     string
	InitialDevice        *Device
}

// CredentialStore is the persistence interface the engine consumes for
// accounts and devices. Implementations are expected to be backed by a
// relational store; the engine never sees SQL or ORM types.
//
// Lookup methods return ErrAccountNotFound / ErrDeviceNotFound when no
// row matches.
type CredentialStore interface {
	FindAccountByEmail(ctx context.Context, email string) (*Account, error)
	FindAccountByID(ctx context.Context, id string) (*Account, error)
	CreateAccount(ctx context.Context, input CreateAccountInput) (*Account, error)
	UpdateAccount(ctx context.Context, id string, update AccountUpdate) error
	// IncrementFailedLoginAttempts atomically increments the counter and
	// returns the new value. Atomicity at the store keeps the "exactly
	// once per failed request" accounting honest under concurrency.
	IncrementFailedLoginAttempts(ctx context.Context, id string) (int, error)

	CreateDevice(ctx context.Context, device *Device) error
	FindDevice(ctx context.Context, accountID, fingerprint string) (*Device, error)
	UpdateDevice(ctx context.Context, accountID, fingerprint string, update DeviceUpdate) error
	DeleteDevice(ctx context.Context, accountID, fingerprint string) error
	ListDevices(ctx context.Context, accountID string) ([]Device, error)
	// ClearCurrentSessions resets IsCurrentSession on every device of the
	// account. Callers set the flag on a single device afterwards; the
	// two steps are deliberately not transactional (the flag is advisory
	// metadata, never an authorization input).
	ClearCurrentSessions(ctx context.Context, accountID string) error
}

// Mailer delivers notification email. Send failures are logged and
// swallowed by the engine; mail delivery never gates an auth flow.
type Mailer interface {
	Send(ctx context.Context, to, subject, body string) error
}

// SessionInfo is returned by Engine.ValidateSession for a live token.
type SessionInfo struct {
	AccountID string
	Email     string
	JTI       string
	ExpiresAt time.Time
}

// EmailAvailability is returned by Engine.EmailAvailable.
type EmailAvailability struct {
	Available bool
}

// SendCodeResult is returned by Engine.SendRegisterCode.
type SendCodeResult struct {
	ExpiresIn   time.Duration
	MaskedEmail string
}

// VerifyCodeResult is returned by Engine.VerifyRegisterCode.
type VerifyCodeResult struct {
	VerificationToken string
	ExpiresIn         time.Duration
}

// ClientMetadata describes the client installation performing a flow.
// All fields are optional display metadata.
type ClientMetadata struct {
	DeviceName string
	Platform   string
	OSVersion  string
	AppVersion string
}

// RegisterInput is the input for Engine.Register.
type RegisterInput struct {
	Email                string
	VerificationToken    string
	SRPSalt              string
	SRPVerifier          string
	SecretKeyFingerprint string
	KDFIterations        int
	ClientMetadata       ClientMetadata
}

// RegisterResult is returned by Engine.Register.
type RegisterResult struct {
	AccountID         string
	DeviceFingerprint string
}

// LoginChallengeInput is the input for Engine.LoginChallenge.
type LoginChallengeInput struct {
	Email             string
	DeviceFingerprint string
}

// LoginChallengeResult is returned by Engine.LoginChallenge. SRPB is the
// base64-encoded server public value; the paired private value stays in
// the challenge cache and never leaves the server.
type LoginChallengeResult struct {
	SRPSalt              string
	SRPB                 string
	SecretKeyFingerprint string
	KDFIterations        int
	AccountID            string
	RequiresSecretKey    bool
}

// LoginVerifyInput is the input for Engine.LoginVerify. SRPA and SRPM1
// are base64-encoded client values.
type LoginVerifyInput struct {
	AccountID            string
	DeviceFingerprint    string
	SecretKeyFingerprint string
	SRPA                 string
	SRPM1                string
	ClientMetadata       ClientMetadata
}

// PasswordLoginInput is the input for Engine.LoginVerifyPassword, the
// password-based alternative to the SRP exchange.
type PasswordLoginInput struct {
	AccountID            string
	DeviceFingerprint    string
	SecretKeyFingerprint string
	Password             string
	ClientMetadata       ClientMetadata
}

// LoginResult is returned by successful login verification. SRPM2 is the
// base64-encoded server evidence (empty on the password path). NextStep
// hints the client UI: "register_device" for a new device, "sync_vaults"
// otherwise.
type LoginResult struct {
	SessionToken string
	ExpiresIn    time.Duration
	IsNewDevice  bool
	NextStep     string
	SRPM2        string
}

// RefreshResult is returned by Engine.SessionRefresh.
type RefreshResult struct {
	SessionToken string
	ExpiresIn    time.Duration
}

// TrustDeviceInput is the input for Engine.TrustDevice.
type TrustDeviceInput struct {
	Fingerprint string
	Name        string
	Platform    string
}

// PasswordResetInput is the input for Engine.CompletePasswordReset. The
// reset replaces the full zero-knowledge credential set: SRP salt and
// verifier, secret key fingerprint, and the client KDF iteration count.
type PasswordResetInput struct {
	Email                string
	Code                 string
	SRPSalt              string
	SRPVerifier          string
	SecretKeyFingerprint string
	KDFIterations        int
}

// AccountProfile is the sanitized account view returned by
// Engine.AccountProfile.
type AccountProfile struct {
	AccountID            string
	Email                string
	Status               AccountStatus
	KDFIterations        int
	LastPasswordChangeAt *time.Time
	DeviceCount          int
	CreatedAt            time.Time
}
