package zkauth

import (
	"context"
	"errors"
)

const (
	auditEventLoginChallenge         = "login_challenge_issued"
	auditEventLoginSuccess           = "login_success"
	auditEventLoginFailure           = "login_failure"
	auditEventSRPVerificationFailed  = "srp_verification_failed"
	auditEventSecretKeyFailed        = "secret_key_verification_failed"
	auditEventAccountLocked          = "account_locked"
	auditEventAccountUnlocked        = "account_unlocked"
	auditEventAccountCreated         = "account_created"
	auditEventAccountDeleted         = "account_deleted"
	auditEventRegisterCodeSent       = "register_code_sent"
	auditEventRegisterCodeVerified   = "register_code_verified"
	auditEventRegisterCodeFailed     = "register_code_failed"
	auditEventSessionRefreshed       = "session_refreshed"
	auditEventSessionRevoked         = "session_revoked"
	auditEventLogout                 = "logout"
	auditEventPasswordResetRequested = "password_reset_requested"
	auditEventPasswordResetCompleted = "password_reset_completed"
	auditEventPasswordResetFailed    = "password_reset_failed"
	auditEventDeviceTrusted          = "device_trusted"
	auditEventDeviceRevoked          = "device_revoked"
)

// AuditErrorCode defines a public type used by zkauth APIs.
//
// AuditErrorCode instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type AuditErrorCode string

const (
	auditErrInvalidInput      AuditErrorCode = "invalid_input"
	auditErrInvalidCredential AuditErrorCode = "invalid_credential"
	auditErrAccountNotFound   AuditErrorCode = "account_not_found"
	auditErrAccountLocked     AuditErrorCode = "account_locked"
	auditErrAccountNotActive  AuditErrorCode = "account_not_active"
	auditErrEmailTaken        AuditErrorCode = "email_taken"
	auditErrCodeInvalid       AuditErrorCode = "code_invalid"
	auditErrTokenInvalid      AuditErrorCode = "token_invalid"
	auditErrChallengeExpired  AuditErrorCode = "challenge_expired"
	auditErrSessionRevoked    AuditErrorCode = "session_revoked"
	auditErrDeviceNotFound    AuditErrorCode = "device_not_found"
	auditErrCacheUnavailable  AuditErrorCode = "cache_unavailable"
	auditErrInternal          AuditErrorCode = "internal_error"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	accountID string,
	sessionID string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		Timestamp: e.now().UTC(),
		EventType: eventType,
		AccountID: accountID,
		SessionID: sessionID,
		IP:        clientIPFromContext(ctx),
		UserAgent: userAgentFromContext(ctx),
		Success:   success,
		Metadata:  metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrInvalidInput):
		return auditErrInvalidInput
	case errors.Is(err, ErrInvalidCredential):
		return auditErrInvalidCredential
	case errors.Is(err, ErrAccountNotFound):
		return auditErrAccountNotFound
	case errors.Is(err, ErrAccountLocked):
		return auditErrAccountLocked
	case errors.Is(err, ErrAccountNotActive):
		return auditErrAccountNotActive
	case errors.Is(err, ErrEmailTaken):
		return auditErrEmailTaken
	case errors.Is(err, ErrCodeInvalid),
		errors.Is(err, ErrVerificationTokenInvalid):
		return auditErrCodeInvalid
	case errors.Is(err, ErrChallengeExpired):
		return auditErrChallengeExpired
	case errors.Is(err, ErrTokenInvalid):
		return auditErrTokenInvalid
	case errors.Is(err, ErrSessionRevoked):
		return auditErrSessionRevoked
	case errors.Is(err, ErrDeviceNotFound):
		return auditErrDeviceNotFound
	case errors.Is(err, ErrCacheUnavailable):
		return auditErrCacheUnavailable
	default:
		return auditErrInternal
	}
}
