package zkauth

import (
	"context"
	"errors"
	"log"
)

// deviceTrusted reports whether the fingerprint names a device of the
// account whose trust window is still open. Missing rows and store
// failures both read as untrusted; an unreachable store must never widen
// access.
func (e *Engine) deviceTrusted(ctx context.Context, accountID, fingerprint string) bool {
	if fingerprint == "" {
		return false
	}

	device, err := e.store.FindDevice(ctx, accountID, fingerprint)
	if err != nil {
		if !errors.Is(err, ErrDeviceNotFound) {
			log.Print("zkauth: device trust lookup failed")
		}
		return false
	}

	return device.TrustedUntil.After(e.now())
}

// TrustDevice creates or renews trust for a device of the account. The
// upsert is keyed by (accountID, fingerprint): re-trusting an existing
// device extends its window in place, never duplicating the row. The
// renewed device also becomes the account's current session, which
// clears the flag on every other device first.
//
// TrustDevice may return an error when input validation, dependency calls, or security checks fail.
// TrustDevice does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) TrustDevice(ctx context.Context, accountID string, input TrustDeviceInput) (*Device, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	if accountID == "" || input.Fingerprint == "" {
		return nil, ErrInvalidInput
	}

	account, err := e.store.FindAccountByID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if lockErr := e.lockState(ctx, account); lockErr != nil {
		return nil, lockErr
	}

	now := e.now()
	trustedUntil := now.Add(e.config.DeviceTrust.TrustDuration)

	// Reset-then-set: the two writes are not transactional, and a crash
	// between them leaves zero or two "current" devices. The flag is
	// advisory metadata only.
	if err := e.store.ClearCurrentSessions(ctx, accountID); err != nil {
		return nil, err
	}

	current := true
	existing, err := e.store.FindDevice(ctx, accountID, input.Fingerprint)
	switch {
	case err == nil:
		update := DeviceUpdate{
			TrustedAt:        &now,
			TrustedUntil:     &trustedUntil,
			LastSeenAt:       &now,
			IsCurrentSession: &current,
		}
		if input.Name != "" {
			update.Name = &input.Name
		}
		if input.Platform != "" {
			update.Platform = &input.Platform
		}
		if err := e.store.UpdateDevice(ctx, accountID, input.Fingerprint, update); err != nil {
			return nil, err
		}
		existing.TrustedAt = now
		existing.TrustedUntil = trustedUntil
		existing.LastSeenAt = now
		existing.IsCurrentSession = true
		if input.Name != "" {
			existing.Name = input.Name
		}
		if input.Platform != "" {
			existing.Platform = input.Platform
		}
	case errors.Is(err, ErrDeviceNotFound):
		existing = &Device{
			AccountID:        accountID,
			Fingerprint:      input.Fingerprint,
			Name:             input.Name,
			Platform:         input.Platform,
			TrustedAt:        now,
			TrustedUntil:     trustedUntil,
			LastSeenAt:       now,
			IsCurrentSession: true,
		}
		if err := e.store.CreateDevice(ctx, existing); err != nil {
			return nil, err
		}
	default:
		return nil, err
	}

	e.metricInc(MetricDeviceTrusted)
	e.emitAudit(ctx, auditEventDeviceTrusted, true, accountID, "", nil, func() map[string]string {
		return map[string]string{
			"device": input.Fingerprint,
		}
	})

	return existing, nil
}

// RevokeDevice removes the device row, returning the device to untrusted
// on its next login. Sessions already issued to it stay valid until they
// expire or are revoked individually.
//
// RevokeDevice may return an error when input validation, dependency calls, or security checks fail.
// RevokeDevice does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) RevokeDevice(ctx context.Context, accountID, fingerprint string) error {
	if e == nil {
		return ErrEngineNotReady
	}
	if accountID == "" || fingerprint == "" {
		return ErrInvalidInput
	}

	if _, err := e.store.FindDevice(ctx, accountID, fingerprint); err != nil {
		return err
	}
	if err := e.store.DeleteDevice(ctx, accountID, fingerprint); err != nil {
		return err
	}

	e.metricInc(MetricDeviceRevoked)
	e.emitAudit(ctx, auditEventDeviceRevoked, true, accountID, "", nil, func() map[string]string {
		return map[string]string{
			"device": fingerprint,
		}
	})

	return nil
}

// ListDevices describes the listdevices operation and its observable behavior.
//
// ListDevices may return an error when input validation, dependency calls, or security checks fail.
// ListDevices does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) ListDevices(ctx context.Context, accountID string) ([]Device, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	if accountID == "" {
		return nil, ErrInvalidInput
	}

	return e.store.ListDevices(ctx, accountID)
}
