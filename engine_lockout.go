package zkauth

import (
	"context"
	"log"
	"strconv"
	"time"
)

// lockState classifies the account's security state at the given instant.
// It returns nil when the account may proceed with authentication.
//
// A temporary lock whose window has passed is treated as expired
// immediately; the persisted unlock happens asynchronously and
// best-effort, so a crashed write only means the next request re-runs the
// same classification.
func (e *Engine) lockState(ctx context.Context, account *Account) error {
	switch account.Status {
	case AccountActive:
		return nil
	case AccountSuspended:
		return ErrAccountNotActive
	case AccountLockedPermanent:
		return &LockedError{Permanent: true}
	case AccountLockedTemporary:
		now := e.now()
		if account.LockedUntil != nil && account.LockedUntil.After(now) {
			return &LockedError{RetryAfter: account.LockedUntil.Sub(now)}
		}
		e.unlockAsync(account.ID)
		account.Status = AccountActive
		account.FailedLoginAttempts = 0
		account.LockedUntil = nil
		return nil
	default:
		return ErrAccountNotActive
	}
}

// unlockAsync persists the expired-lock reset without blocking the
// request that observed the expiry.
func (e *Engine) unlockAsync(accountID string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		active := AccountActive
		zero := 0
		err := e.store.UpdateAccount(ctx, accountID, AccountUpdate{
			Status:              &active,
			FailedLoginAttempts: &zero,
			ClearLockedUntil:    true,
		})
		if err != nil {
			log.Print("zkauth: expired lock reset failed")
			return
		}
		e.metricInc(MetricAccountUnlocked)
		e.emitAudit(ctx, auditEventAccountUnlocked, true, accountID, "", nil, nil)
	}()
}

// recordFailedAttempt charges one failed verification against the account
// and locks it when the counter reaches the configured threshold. It
// returns non-nil exactly when this attempt triggered the lock.
func (e *Engine) recordFailedAttempt(ctx context.Context, accountID string) *LockedError {
	attempts, err := e.store.IncrementFailedLoginAttempts(ctx, accountID)
	if err != nil {
		// Counting must not mask the credential failure the caller is
		// already reporting.
		log.Print("zkauth: failed attempt increment failed")
		return nil
	}

	if attempts < e.config.Lockout.MaxFailedAttempts {
		return nil
	}

	lockedUntil := e.now().Add(e.config.Lockout.LockDuration)
	locked := AccountLockedTemporary
	err = e.store.UpdateAccount(ctx, accountID, AccountUpdate{
		Status:      &locked,
		LockedUntil: &lockedUntil,
	})
	if err != nil {
		log.Print("zkauth: account lock persist failed")
		return nil
	}

	e.metricInc(MetricAccountLocked)
	e.emitAudit(ctx, auditEventAccountLocked, true, accountID, "", nil, func() map[string]string {
		return map[string]string{
			"failed_attempts": strconv.Itoa(attempts),
		}
	})

	return &LockedError{RetryAfter: e.config.Lockout.LockDuration}
}

// resetFailedAttempts clears the counter after a fully successful
// verification. Best-effort: a failed reset never blocks the login.
func (e *Engine) resetFailedAttempts(ctx context.Context, account *Account) {
	zero := 0
	err := e.store.UpdateAccount(ctx, account.ID, AccountUpdate{
		FailedLoginAttempts: &zero,
		ClearLockedUntil:    true,
	})
	if err != nil {
		log.Print("zkauth: failed attempt reset failed")
	}
}
