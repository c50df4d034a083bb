package zkauth

import (
	"context"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"log"

	"github.com/google/uuid"
	"github.com/vaultproof/zkauth/internal"
)

// LoginChallenge describes the loginchallenge operation and its observable behavior.
//
// LoginChallenge may return an error when input validation, dependency calls, or security checks fail.
// LoginChallenge does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) LoginChallenge(ctx context.Context, input LoginChallengeInput) (*LoginChallengeResult, error) {
	if e == nil || e.srpGroup == nil {
		return nil, ErrEngineNotReady
	}

	email := normalizeEmail(input.Email)
	if email == "" || input.DeviceFingerprint == "" {
		return nil, ErrInvalidInput
	}

	account, err := e.store.FindAccountByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			// Absent accounts answer on the same timing profile as
			// present ones, and with the same error.
			if delayErr := internal.RandomDelay(ctx, e.config.SRP.MinDelay, e.config.SRP.MaxDelay); delayErr != nil {
				return nil, delayErr
			}
			e.metricInc(MetricLoginFailure)
			e.emitAudit(ctx, auditEventLoginFailure, false, "", "", ErrAccountNotFound, func() map[string]string {
				return map[string]string{
					"reason": "account_not_found",
				}
			})
			return nil, ErrInvalidCredential
		}
		return nil, err
	}

	if lockErr := e.lockState(ctx, account); lockErr != nil {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, account.ID, "", lockErr, nil)
		return nil, lockErr
	}

	verifier, err := base64.StdEncoding.DecodeString(account.SRPVerifier)
	if err != nil {
		return nil, ErrInvalidCredential
	}

	b, B, err := e.srpGroup.GenerateServerKeyPair(verifier)
	if err != nil {
		return nil, err
	}

	record := &srpChallengeRecord{
		PrivateKey:        b,
		PublicKey:         B,
		DeviceFingerprint: input.DeviceFingerprint,
		CreatedAt:         e.now().Unix(),
	}
	if err := e.challenges.Save(ctx, account.ID, record, e.config.SRP.ChallengeTTL); err != nil {
		return nil, ErrCacheUnavailable
	}

	e.metricInc(MetricChallengeIssued)
	e.emitAudit(ctx, auditEventLoginChallenge, true, account.ID, "", nil, func() map[string]string {
		return map[string]string{
			"device": input.DeviceFingerprint,
		}
	})

	return &LoginChallengeResult{
		SRPSalt:              account.SRPSalt,
		SRPB:                 base64.StdEncoding.EncodeToString(B),
		SecretKeyFingerprint: account.SecretKeyFingerprint,
		KDFIterations:        account.KDFIterations,
		AccountID:            account.ID,
		RequiresSecretKey:    !e.deviceTrusted(ctx, account.ID, input.DeviceFingerprint),
	}, nil
}

// LoginVerify describes the loginverify operation and its observable behavior.
//
// LoginVerify may return an error when input validation, dependency calls, or security checks fail.
// LoginVerify does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) LoginVerify(ctx context.Context, input LoginVerifyInput) (*LoginResult, error) {
	if e == nil || e.srpGroup == nil {
		return nil, ErrEngineNotReady
	}
	if input.AccountID == "" || input.DeviceFingerprint == "" || input.SRPA == "" || input.SRPM1 == "" {
		return nil, ErrInvalidInput
	}

	account, trusted, err := e.loadVerifyTarget(ctx, input.AccountID, input.DeviceFingerprint, input.SecretKeyFingerprint)
	if err != nil {
		return nil, err
	}

	challenge, err := e.challenges.Take(ctx, account.ID)
	if err != nil {
		if errors.Is(err, errChallengeNotFound) {
			e.metricInc(MetricChallengeExpired)
			e.emitAudit(ctx, auditEventLoginFailure, false, account.ID, "", ErrChallengeExpired, nil)
			return nil, ErrChallengeExpired
		}
		return nil, ErrCacheUnavailable
	}

	A, errA := base64.StdEncoding.DecodeString(input.SRPA)
	M1, errM1 := base64.StdEncoding.DecodeString(input.SRPM1)
	verifier, errV := base64.StdEncoding.DecodeString(account.SRPVerifier)
	if errA != nil || errM1 != nil || errV != nil {
		return nil, e.failVerification(ctx, account, "srp_decode")
	}

	ok, evidence, err := e.srpGroup.VerifyClient(A, challenge.PublicKey, challenge.PrivateKey, M1, verifier)
	if err != nil || !ok {
		e.metricInc(MetricSRPVerificationFailure)
		e.emitAudit(ctx, auditEventSRPVerificationFailed, false, account.ID, "", ErrInvalidCredential, func() map[string]string {
			return map[string]string{
				"device": input.DeviceFingerprint,
			}
		})
		return nil, e.failVerification(ctx, account, "srp_mismatch")
	}

	result, err := e.finishLogin(ctx, account, input.DeviceFingerprint, trusted, input.ClientMetadata)
	if err != nil {
		return nil, err
	}
	result.SRPM2 = base64.StdEncoding.EncodeToString(evidence.M2)

	return result, nil
}

// LoginVerifyPassword is the password-based alternative to LoginVerify.
// It shares the lockout and secret-key gates with the SRP path but checks
// a PBKDF2 hash instead of running the SRP exchange, and therefore emits
// no server evidence.
func (e *Engine) LoginVerifyPassword(ctx context.Context, input PasswordLoginInput) (*LoginResult, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	if e.passwordHash == nil {
		return nil, ErrEngineNotReady
	}
	if input.AccountID == "" || input.DeviceFingerprint == "" || input.Password == "" {
		return nil, ErrInvalidInput
	}

	account, trusted, err := e.loadVerifyTarget(ctx, input.AccountID, input.DeviceFingerprint, input.SecretKeyFingerprint)
	if err != nil {
		return nil, err
	}

	if account.PasswordHash == "" {
		return nil, e.failVerification(ctx, account, "no_password_credential")
	}

	ok, err := e.passwordHash.Verify(input.Password, account.PasswordHash)
	if err != nil || !ok {
		return nil, e.failVerification(ctx, account, "password_mismatch")
	}

	return e.finishLogin(ctx, account, input.DeviceFingerprint, trusted, input.ClientMetadata)
}

// loadVerifyTarget loads the account, applies the lock classifier, and
// runs the secret-key second-factor gate for untrusted devices. The
// returned trusted flag tells finishLogin whether device bookkeeping
// applies.
func (e *Engine) loadVerifyTarget(ctx context.Context, accountID, fingerprint, secretKeyFingerprint string) (*Account, bool, error) {
	account, err := e.store.FindAccountByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			e.metricInc(MetricLoginFailure)
			e.emitAudit(ctx, auditEventLoginFailure, false, accountID, "", ErrAccountNotFound, nil)
			return nil, false, ErrInvalidCredential
		}
		return nil, false, err
	}

	if lockErr := e.lockState(ctx, account); lockErr != nil {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, account.ID, "", lockErr, nil)
		return nil, false, lockErr
	}

	trusted := e.deviceTrusted(ctx, account.ID, fingerprint)
	if !trusted {
		stored := []byte(account.SecretKeyFingerprint)
		provided := []byte(secretKeyFingerprint)
		if len(provided) == 0 || subtle.ConstantTimeCompare(stored, provided) != 1 {
			e.metricInc(MetricSecretKeyFailure)
			e.emitAudit(ctx, auditEventSecretKeyFailed, false, account.ID, "", ErrInvalidCredential, func() map[string]string {
				return map[string]string{
					"device": fingerprint,
				}
			})
			return nil, false, e.failVerification(ctx, account, "secret_key_mismatch")
		}
	}

	return account, trusted, nil
}

// failVerification applies the exactly-once failure accounting and maps
// the outcome to the caller-visible error: the lock error when this
// attempt crossed the threshold, invalid credential otherwise.
func (e *Engine) failVerification(ctx context.Context, account *Account, reason string) error {
	e.metricInc(MetricLoginFailure)
	e.emitAudit(ctx, auditEventLoginFailure, false, account.ID, "", ErrInvalidCredential, func() map[string]string {
		return map[string]string{
			"reason": reason,
		}
	})
	if lockErr := e.recordFailedAttempt(ctx, account.ID); lockErr != nil {
		return lockErr
	}
	return ErrInvalidCredential
}

func (e *Engine) finishLogin(ctx context.Context, account *Account, fingerprint string, trusted bool, meta ClientMetadata) (*LoginResult, error) {
	now := e.now()

	e.resetFailedAttempts(ctx, account)

	isNewDevice := !trusted
	nextStep := "register_device"
	if trusted {
		nextStep = "sync_vaults"
		e.touchDevice(ctx, account.ID, fingerprint)
	}

	jti := uuid.NewString()
	token, err := e.jwtManager.Issue(account.ID, account.Email, jti, now)
	if err != nil {
		return nil, err
	}

	record := &sessionRecord{
		AccountID:         account.ID,
		DeviceFingerprint: fingerprint,
		IssuedAt:          now.Unix(),
	}
	if err := e.sessions.Save(ctx, jti, record, e.jwtManager.SessionTTL()); err != nil {
		return nil, ErrCacheUnavailable
	}

	e.metricInc(MetricSessionCreated)
	e.metricInc(MetricLoginSuccess)
	e.emitAudit(ctx, auditEventLoginSuccess, true, account.ID, jti, nil, func() map[string]string {
		return map[string]string{
			"device":     fingerprint,
			"new_device": boolString(isNewDevice),
			"platform":   meta.Platform,
		}
	})

	return &LoginResult{
		SessionToken: token,
		ExpiresIn:    e.jwtManager.SessionTTL(),
		IsNewDevice:  isNewDevice,
		NextStep:     nextStep,
	}, nil
}

// touchDevice refreshes last-seen and moves the current-session flag to
// this device. Best-effort: bookkeeping failures never fail the login.
func (e *Engine) touchDevice(ctx context.Context, accountID, fingerprint string) {
	now := e.now()
	current := true

	if err := e.store.ClearCurrentSessions(ctx, accountID); err != nil {
		log.Print("zkauth: current session reset failed")
		return
	}
	err := e.store.UpdateDevice(ctx, accountID, fingerprint, DeviceUpdate{
		LastSeenAt:       &now,
		IsCurrentSession: &current,
	})
	if err != nil {
		log.Print("zkauth: device last-seen update failed")
	}
}

func boolString(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
