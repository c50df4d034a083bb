package zkauth

import (
	"context"
	"errors"
	"log"

	"github.com/google/uuid"
)

// ValidateSession describes the validatesession operation and its observable behavior.
//
// ValidateSession may return an error when input validation, dependency calls, or security checks fail.
// ValidateSession does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) ValidateSession(ctx context.Context, tokenStr string) (*SessionInfo, error) {
	if e == nil || e.jwtManager == nil {
		return nil, ErrEngineNotReady
	}

	claims, err := e.jwtManager.Parse(tokenStr)
	if err != nil {
		return nil, ErrTokenInvalid
	}

	revoked, err := e.sessions.IsRevoked(ctx, claims.ID)
	if err != nil {
		return nil, ErrCacheUnavailable
	}
	if revoked {
		return nil, ErrSessionRevoked
	}

	return &SessionInfo{
		AccountID: claims.Subject,
		Email:     claims.Email,
		JTI:       claims.ID,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

// SessionRefresh revokes the presented token and issues a successor with
// a fresh jti. The revocation marker lives exactly as long as the old
// token would have, so it expires from the cache on its own.
//
// Revocation and issuance are two independent writes. Two concurrent
// refreshes of the same token can both pass the revocation check and
// each obtain a valid successor; the presented token is still dead
// afterwards either way.
//
// SessionRefresh may return an error when input validation, dependency calls, or security checks fail.
// SessionRefresh does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) SessionRefresh(ctx context.Context, tokenStr string) (*RefreshResult, error) {
	if e == nil || e.jwtManager == nil {
		return nil, ErrEngineNotReady
	}

	claims, err := e.jwtManager.Parse(tokenStr)
	if err != nil {
		return nil, ErrTokenInvalid
	}

	revoked, err := e.sessions.IsRevoked(ctx, claims.ID)
	if err != nil {
		return nil, ErrCacheUnavailable
	}
	if revoked {
		e.emitAudit(ctx, auditEventSessionRevoked, false, claims.Subject, claims.ID, ErrSessionRevoked, nil)
		return nil, ErrSessionRevoked
	}

	account, err := e.store.FindAccountByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return nil, ErrTokenInvalid
		}
		return nil, err
	}
	if lockErr := e.lockState(ctx, account); lockErr != nil {
		return nil, lockErr
	}

	now := e.now()
	remaining := claims.ExpiresAt.Time.Sub(now)
	if err := e.sessions.Revoke(ctx, claims.ID, remaining); err != nil {
		return nil, ErrCacheUnavailable
	}

	// Carry the device binding forward; a missing record only costs the
	// successor its device metadata.
	fingerprint := ""
	if old, err := e.sessions.Get(ctx, claims.ID); err == nil {
		fingerprint = old.DeviceFingerprint
	}
	if err := e.sessions.Delete(ctx, claims.ID); err != nil {
		log.Print("zkauth: stale session record delete failed")
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

	e.metricInc(MetricSessionRevoked)
	e.metricInc(MetricSessionRefreshed)
	e.emitAudit(ctx, auditEventSessionRefreshed, true, account.ID, jti, nil, func() map[string]string {
		return map[string]string{
			"previous_session": claims.ID,
		}
	})

	return &RefreshResult{
		SessionToken: token,
		ExpiresIn:    e.jwtManager.SessionTTL(),
	}, nil
}

// Logout revokes the presented token's jti only. Other sessions and
// devices of the account are unaffected.
//
// Logout may return an error when input validation, dependency calls, or security checks fail.
// Logout does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) Logout(ctx context.Context, tokenStr string) error {
	if e == nil || e.jwtManager == nil {
		return ErrEngineNotReady
	}

	claims, err := e.jwtManager.Parse(tokenStr)
	if err != nil {
		return ErrTokenInvalid
	}

	remaining := claims.ExpiresAt.Time.Sub(e.now())
	if err := e.sessions.Revoke(ctx, claims.ID, remaining); err != nil {
		return ErrCacheUnavailable
	}
	if err := e.sessions.Delete(ctx, claims.ID); err != nil {
		log.Print("zkauth: session record delete failed")
	}

	e.metricInc(MetricLogout)
	e.metricInc(MetricSessionRevoked)
	e.emitAudit(ctx, auditEventLogout, true, claims.Subject, claims.ID, nil, nil)

	return nil
}
