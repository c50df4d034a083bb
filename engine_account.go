package zkauth

import (
	"context"
	"errors"
	"log"

	"github.com/vaultproof/zkauth/internal"
)

// InitiatePasswordReset issues a one-time reset code for the email. The
// response is identical whether or not an account exists — the only
// observable difference is whether a mail arrives.
//
// InitiatePasswordReset may return an error when input validation, dependency calls, or security checks fail.
// InitiatePasswordReset does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) InitiatePasswordReset(ctx context.Context, email string) error {
	if e == nil {
		return ErrEngineNotReady
	}

	email = normalizeEmail(email)
	if !validEmail(email) {
		return ErrInvalidInput
	}

	account, err := e.store.FindAccountByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			e.emitAudit(ctx, auditEventPasswordResetRequested, false, "", "", ErrAccountNotFound, func() map[string]string {
				return map[string]string{
					"email": maskEmail(email),
				}
			})
			return nil
		}
		return err
	}
	if account.Status != AccountActive && account.Status != AccountLockedTemporary {
		e.emitAudit(ctx, auditEventPasswordResetRequested, false, account.ID, "", ErrAccountNotActive, nil)
		return nil
	}

	code, err := internal.NewOTP(e.config.PasswordReset.CodeDigits)
	if err != nil {
		return err
	}
	if err := e.verifications.SaveResetCode(ctx, email, code, e.config.PasswordReset.CodeTTL); err != nil {
		return ErrCacheUnavailable
	}

	if err := e.mailer.Send(ctx, email, "Your password reset code", "Your password reset code is "+code); err != nil {
		log.Print("zkauth: reset code mail delivery failed")
	}

	e.metricInc(MetricPasswordResetRequest)
	e.emitAudit(ctx, auditEventPasswordResetRequested, true, account.ID, "", nil, func() map[string]string {
		return map[string]string{
			"email": maskEmail(email),
		}
	})

	return nil
}

// CompletePasswordReset replaces the account's zero-knowledge credential
// set after the reset code checks out. The new master password means a
// new SRP verifier, a new secret key fingerprint, and a new client KDF
// cost, all supplied by the client. A reset also lifts any temporary
// lock, since the attacker being locked out is now holding dead
// credentials.
//
// CompletePasswordReset may return an error when input validation, dependency calls, or security checks fail.
// CompletePasswordReset does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) CompletePasswordReset(ctx context.Context, input PasswordResetInput) error {
	if e == nil {
		return ErrEngineNotReady
	}

	email := normalizeEmail(input.Email)
	if !validEmail(email) || input.Code == "" {
		return ErrInvalidInput
	}
	if err := validateCredentialMaterial(input.SRPSalt, input.SRPVerifier, input.SecretKeyFingerprint, input.KDFIterations, e.config.Registration.MinKDFIterations); err != nil {
		return err
	}

	if err := e.verifications.ConsumeResetCode(ctx, email, input.Code); err != nil {
		switch {
		case errors.Is(err, errCodeNotFound), errors.Is(err, errCodeMismatch):
			e.metricInc(MetricPasswordResetFailure)
			e.emitAudit(ctx, auditEventPasswordResetFailed, false, "", "", ErrCodeInvalid, func() map[string]string {
				return map[string]string{
					"email": maskEmail(email),
				}
			})
			return ErrCodeInvalid
		default:
			return ErrCacheUnavailable
		}
	}

	account, err := e.store.FindAccountByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return ErrCodeInvalid
		}
		return err
	}

	now := e.now()
	active := AccountActive
	zero := 0
	err = e.store.UpdateAccount(ctx, account.ID, AccountUpdate{
		Status:               &active,
		FailedLoginAttempts:  &zero,
		ClearLockedUntil:     true,
		SRPSalt:              &input.SRPSalt,
		SRPVerifier:          &input.SRPVerifier,
		SecretKeyFingerprint: &input.SecretKeyFingerprint,
		KDFIterations:        &input.KDFIterations,
		LastPasswordChangeAt: &now,
	})
	if err != nil {
		return err
	}

	e.metricInc(MetricPasswordResetSuccess)
	e.emitAudit(ctx, auditEventPasswordResetCompleted, true, account.ID, "", nil, nil)

	return nil
}

// DeleteAccount suspends the account. The row is kept so registration can
// later replace it atomically; a suspended account cannot log in, refresh
// a session, or appear in the availability check.
//
// DeleteAccount may return an error when input validation, dependency calls, or security checks fail.
// DeleteAccount does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) DeleteAccount(ctx context.Context, accountID string) error {
	if e == nil {
		return ErrEngineNotReady
	}
	if accountID == "" {
		return ErrInvalidInput
	}

	account, err := e.store.FindAccountByID(ctx, accountID)
	if err != nil {
		return err
	}
	if account.Status == AccountSuspended {
		return ErrAccountNotActive
	}

	suspended := AccountSuspended
	err = e.store.UpdateAccount(ctx, accountID, AccountUpdate{
		Status: &suspended,
	})
	if err != nil {
		return err
	}

	e.metricInc(MetricAccountDeleted)
	e.emitAudit(ctx, auditEventAccountDeleted, true, accountID, "", nil, nil)

	return nil
}

// AccountProfile describes the accountprofile operation and its observable behavior.
//
// AccountProfile may return an error when input validation, dependency calls, or security checks fail.
// AccountProfile does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) AccountProfile(ctx context.Context, accountID string) (*AccountProfile, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	if accountID == "" {
		return nil, ErrInvalidInput
	}

	account, err := e.store.FindAccountByID(ctx, accountID)
	if err != nil {
		return nil, err
	}

	devices, err := e.store.ListDevices(ctx, accountID)
	if err != nil {
		return nil, err
	}

	return &AccountProfile{
		AccountID:            account.ID,
		Email:                account.Email,
		Status:               account.Status,
		KDFIterations:        account.KDFIterations,
		LastPasswordChangeAt: account.LastPasswordChangeAt,
		DeviceCount:          len(devices),
		CreatedAt:            account.CreatedAt,
	}, nil
}
