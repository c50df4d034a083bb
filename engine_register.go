package zkauth

import (
	"context"
	"encoding/base64"
	"errors"
	"log"
	"strings"

	"github.com/google/uuid"
	"github.com/vaultproof/zkauth/internal"
)

const verificationTokenPrefix = "vrt_"

// EmailAvailable reports whether the email can be used for a new
// registration. Only an ACTIVE account makes an email unavailable:
// suspended or stale rows are invisible here so the check cannot be used
// to enumerate account lifecycle states.
//
// EmailAvailable may return an error when input validation, dependency calls, or security checks fail.
// EmailAvailable does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) EmailAvailable(ctx context.Context, email string) (*EmailAvailability, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}

	email = normalizeEmail(email)
	if !validEmail(email) {
		return nil, ErrInvalidInput
	}

	account, err := e.store.FindAccountByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return &EmailAvailability{Available: true}, nil
		}
		return nil, err
	}

	return &EmailAvailability{Available: account.Status != AccountActive}, nil
}

// SendRegisterCode issues a one-time registration code for the email and
// delivers it by mail. A new code replaces any pending one.
//
// SendRegisterCode may return an error when input validation, dependency calls, or security checks fail.
// SendRegisterCode does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) SendRegisterCode(ctx context.Context, email string) (*SendCodeResult, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}

	email = normalizeEmail(email)
	if !validEmail(email) {
		return nil, ErrInvalidInput
	}

	if taken, err := e.emailTaken(ctx, email); err != nil {
		return nil, err
	} else if taken {
		e.emitAudit(ctx, auditEventRegisterCodeFailed, false, "", "", ErrEmailTaken, func() map[string]string {
			return map[string]string{
				"email": maskEmail(email),
			}
		})
		return nil, ErrEmailTaken
	}

	code, err := internal.NewOTP(e.config.Registration.CodeDigits)
	if err != nil {
		return nil, err
	}

	if err := e.verifications.SaveRegisterCode(ctx, email, code, e.config.Registration.CodeTTL); err != nil {
		return nil, ErrCacheUnavailable
	}

	// Mail delivery is fire-and-forget; the code is already committed.
	if err := e.mailer.Send(ctx, email, "Your verification code", "Your verification code is "+code); err != nil {
		log.Print("zkauth: register code mail delivery failed")
	}

	e.metricInc(MetricRegisterCodeSent)
	e.emitAudit(ctx, auditEventRegisterCodeSent, true, "", "", nil, func() map[string]string {
		return map[string]string{
			"email": maskEmail(email),
		}
	})

	return &SendCodeResult{
		ExpiresIn:   e.config.Registration.CodeTTL,
		MaskedEmail: maskEmail(email),
	}, nil
}

// VerifyRegisterCode exchanges a valid registration code for a short
// verification token. The code is consumed whether or not it matches;
// one guess per delivered code.
//
// VerifyRegisterCode may return an error when input validation, dependency calls, or security checks fail.
// VerifyRegisterCode does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) VerifyRegisterCode(ctx context.Context, email, code string) (*VerifyCodeResult, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}

	email = normalizeEmail(email)
	if !validEmail(email) || code == "" {
		return nil, ErrInvalidInput
	}

	if err := e.verifications.ConsumeRegisterCode(ctx, email, code); err != nil {
		switch {
		case errors.Is(err, errCodeNotFound), errors.Is(err, errCodeMismatch):
			e.metricInc(MetricRegisterCodeFailure)
			e.emitAudit(ctx, auditEventRegisterCodeFailed, false, "", "", ErrCodeInvalid, func() map[string]string {
				return map[string]string{
					"email": maskEmail(email),
				}
			})
			return nil, ErrCodeInvalid
		default:
			return nil, ErrCacheUnavailable
		}
	}

	token := verificationTokenPrefix + uuid.NewString()
	if err := e.verifications.SaveVerificationToken(ctx, token, email, e.config.Registration.VerificationTokenTTL); err != nil {
		return nil, ErrCacheUnavailable
	}

	e.emitAudit(ctx, auditEventRegisterCodeVerified, true, "", "", nil, func() map[string]string {
		return map[string]string{
			"email": maskEmail(email),
		}
	})

	return &VerifyCodeResult{
		VerificationToken: token,
		ExpiresIn:         e.config.Registration.VerificationTokenTTL,
	}, nil
}

// Register creates the account from client-derived zero-knowledge
// material. The verification token proves email ownership and is
// consumed here, so a token authorizes exactly one registration. The
// account, its first device (auto-trusted, current session), and the
// removal of any stale non-active row for the same email are one store
// transaction: failure leaves no partial state.
//
// Register may return an error when input validation, dependency calls, or security checks fail.
// Register does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) Register(ctx context.Context, input RegisterInput) (*RegisterResult, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}

	email := normalizeEmail(input.Email)
	if !validEmail(email) || input.VerificationToken == "" {
		return nil, ErrInvalidInput
	}
	if err := validateCredentialMaterial(input.SRPSalt, input.SRPVerifier, input.SecretKeyFingerprint, input.KDFIterations, e.config.Registration.MinKDFIterations); err != nil {
		return nil, err
	}

	tokenEmail, err := e.verifications.ConsumeVerificationToken(ctx, input.VerificationToken)
	if err != nil {
		if errors.Is(err, errVerificationTokenNotFound) {
			return nil, ErrVerificationTokenInvalid
		}
		return nil, ErrCacheUnavailable
	}
	if tokenEmail != email {
		return nil, ErrVerificationTokenInvalid
	}

	replaceAccountID := ""
	existing, err := e.store.FindAccountByEmail(ctx, email)
	switch {
	case err == nil && existing.Status == AccountActive:
		return nil, ErrEmailTaken
	case err == nil:
		replaceAccountID = existing.ID
	case errors.Is(err, ErrAccountNotFound):
	default:
		return nil, err
	}

	fingerprint, err := internal.NewDeviceFingerprint()
	if err != nil {
		return nil, err
	}

	now := e.now()
	device := &Device{
		Fingerprint:      fingerprint,
		Name:             input.ClientMetadata.DeviceName,
		Platform:         input.ClientMetadata.Platform,
		TrustedAt:        now,
		TrustedUntil:     now.Add(e.config.DeviceTrust.TrustDuration),
		LastSeenAt:       now,
		IsCurrentSession: true,
	}

	account, err := e.store.CreateAccount(ctx, CreateAccountInput{
		Email:                email,
		SRPSalt:              input.SRPSalt,
		SRPVerifier:          input.SRPVerifier,
		SecretKeyFingerprint: input.SecretKeyFingerprint,
		KDFIterations:        input.KDFIterations,
		ReplaceAccountID:     replaceAccountID,
		InitialDevice:        device,
	})
	if err != nil {
		return nil, err
	}

	e.metricInc(MetricAccountCreated)
	e.emitAudit(ctx, auditEventAccountCreated, true, account.ID, "", nil, func() map[string]string {
		return map[string]string{
			"email":  maskEmail(email),
			"device": fingerprint,
		}
	})

	return &RegisterResult{
		AccountID:         account.ID,
		DeviceFingerprint: fingerprint,
	}, nil
}

func (e *Engine) emailTaken(ctx context.Context, email string) (bool, error) {
	account, err := e.store.FindAccountByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return false, nil
		}
		return false, err
	}
	return account.Status == AccountActive, nil
}

func validateCredentialMaterial(salt, verifier, secretKeyFingerprint string, iterations, minIterations int) error {
	if salt == "" || verifier == "" || secretKeyFingerprint == "" {
		return ErrInvalidInput
	}
	if _, err := base64.StdEncoding.DecodeString(salt); err != nil {
		return ErrInvalidInput
	}
	if _, err := base64.StdEncoding.DecodeString(verifier); err != nil {
		return ErrInvalidInput
	}
	if iterations < minIterations {
		return ErrInvalidInput
	}
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validEmail(email string) bool {
	if len(email) < 3 || len(email) > 254 {
		return false
	}
	at := strings.IndexByte(email, '@')
	if at <= 0 || at == len(email)-1 {
		return false
	}
	return !strings.ContainsAny(email, " \t\r\n")
}

// maskEmail keeps the first character of the local part and the domain.
func maskEmail(email string) string {
	at := strings.IndexByte(email, '@')
	if at < 1 {
		return "***"
	}
	return email[:1] + "***" + email[at:]
}
