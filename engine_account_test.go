package zkauth

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestPasswordResetReplacesCredentials(t *testing.T) {
	env := newTestEngine(t, nil)
	ctx := context.Background()

	oldClient := newSRPTestClient(t, "old-password")
	account := seedAccount(t, env, "alice@example.com", oldClient)

	// Lock the account first; a completed reset must lift the lock.
	lockedUntil := time.Now().Add(10 * time.Minute)
	env.store.setAccount(t, account.ID, func(a *Account) {
		a.Status = AccountLockedTemporary
		a.LockedUntil = &lockedUntil
		a.FailedLoginAttempts = 5
	})

	if err := env.engine.InitiatePasswordReset(ctx, "alice@example.com"); err != nil {
		t.Fatalf("InitiatePasswordReset failed: %v", err)
	}
	code := env.mailer.lastCode(t)

	newClient := newSRPTestClient(t, "new-password")
	newFingerprint := "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	err := env.engine.CompletePasswordReset(ctx, PasswordResetInput{
		Email:                "alice@example.com",
		Code:                 code,
		SRPSalt:              newClient.saltB64(),
		SRPVerifier:          newClient.verifierB64(),
		SecretKeyFingerprint: newFingerprint,
		KDFIterations:        650_000,
	})
	if err != nil {
		t.Fatalf("CompletePasswordReset failed: %v", err)
	}

	stored := env.store.getAccount(t, account.ID)
	if stored.SRPVerifier != newClient.verifierB64() || stored.SRPSalt != newClient.saltB64() {
		t.Fatal("expected SRP material to be replaced")
	}
	if stored.SecretKeyFingerprint != newFingerprint {
		t.Fatal("expected secret key fingerprint to be replaced")
	}
	if stored.KDFIterations != 650_000 {
		t.Fatalf("expected kdf iterations 650000, got %d", stored.KDFIterations)
	}
	if stored.Status != AccountActive || stored.LockedUntil != nil || stored.FailedLoginAttempts != 0 {
		t.Fatalf("expected reset to lift the lock, got %+v", stored)
	}
	if stored.LastPasswordChangeAt == nil {
		t.Fatal("expected lastPasswordChangeAt to be stamped")
	}

	// Old credentials are dead; the new ones authenticate.
	challenge, err := env.engine.LoginChallenge(ctx, LoginChallengeInput{
		Email:             "alice@example.com",
		DeviceFingerprint: "dev-1",
	})
	if err != nil {
		t.Fatalf("LoginChallenge failed: %v", err)
	}
	A := newClient.startAuth(t)
	m1 := newClient.computeM1(t, challenge.SRPB)
	if _, err := env.engine.LoginVerify(ctx, LoginVerifyInput{
		AccountID:            account.ID,
		DeviceFingerprint:    "dev-1",
		SecretKeyFingerprint: newFingerprint,
		SRPA:                 A,
		SRPM1:                m1,
	}); err != nil {
		t.Fatalf("login with reset credentials failed: %v", err)
	}
}

func TestPasswordResetSilentOnUnknownEmail(t *testing.T) {
	env := newTestEngine(t, nil)

	if err := env.engine.InitiatePasswordReset(context.Background(), "nobody@example.com"); err != nil {
		t.Fatalf("expected silent success for unknown email, got %v", err)
	}
	if len(env.mailer.sent) != 0 {
		t.Fatal("no mail may be sent for an unknown email")
	}
}

func TestPasswordResetSilentOnSuspendedAccount(t *testing.T) {
	env := newTestEngine(t, nil)

	client := newSRPTestClient(t, "correct-horse")
	account := seedAccount(t, env, "alice@example.com", client)
	env.store.setAccount(t, account.ID, func(a *Account) {
		a.Status = AccountSuspended
	})

	if err := env.engine.InitiatePasswordReset(context.Background(), "alice@example.com"); err != nil {
		t.Fatalf("expected silent success for suspended account, got %v", err)
	}
	if len(env.mailer.sent) != 0 {
		t.Fatal("no mail may be sent for a suspended account")
	}
}

func TestPasswordResetWrongCode(t *testing.T) {
	env := newTestEngine(t, nil)
	ctx := context.Background()

	client := newSRPTestClient(t, "correct-horse")
	seedAccount(t, env, "alice@example.com", client)

	if err := env.engine.InitiatePasswordReset(ctx, "alice@example.com"); err != nil {
		t.Fatalf("InitiatePasswordReset failed: %v", err)
	}
	code := env.mailer.lastCode(t)

	newClient := newSRPTestClient(t, "new-password")
	input := PasswordResetInput{
		Email:                "alice@example.com",
		Code:                 "000000",
		SRPSalt:              newClient.saltB64(),
		SRPVerifier:          newClient.verifierB64(),
		SecretKeyFingerprint: testSecretKeyFingerprint,
		KDFIterations:        testKDFIterations,
	}
	if err := env.engine.CompletePasswordReset(ctx, input); !errors.Is(err, ErrCodeInvalid) {
		t.Fatalf("expected ErrCodeInvalid for wrong code, got %v", err)
	}

	// One guess per code: the real one was burned by the bad guess.
	input.Code = code
	if err := env.engine.CompletePasswordReset(ctx, input); !errors.Is(err, ErrCodeInvalid) {
		t.Fatalf("expected ErrCodeInvalid after burned code, got %v", err)
	}
}

func TestDeleteAccountSuspends(t *testing.T) {
	env := newTestEngine(t, nil)
	ctx := context.Background()

	client := newSRPTestClient(t, "correct-horse")
	account := seedAccount(t, env, "alice@example.com", client)

	if err := env.engine.DeleteAccount(ctx, account.ID); err != nil {
		t.Fatalf("DeleteAccount failed: %v", err)
	}
	if got := env.store.getAccount(t, account.ID).Status; got != AccountSuspended {
		t.Fatalf("expected SUSPENDED, got %v", got)
	}

	if err := env.engine.DeleteAccount(ctx, account.ID); !errors.Is(err, ErrAccountNotActive) {
		t.Fatalf("expected ErrAccountNotActive on double delete, got %v", err)
	}

	// The email frees up for a new registration.
	avail, err := env.engine.EmailAvailable(ctx, "alice@example.com")
	if err != nil {
		t.Fatalf("EmailAvailable failed: %v", err)
	}
	if !avail.Available {
		t.Fatal("expected email to be available after delete")
	}
}

func TestAccountProfile(t *testing.T) {
	env := newTestEngine(t, nil)
	ctx := context.Background()

	client := newSRPTestClient(t, "correct-horse")
	account := seedAccount(t, env, "alice@example.com", client)

	if _, err := env.engine.TrustDevice(ctx, account.ID, TrustDeviceInput{
		Fingerprint: "dev-1",
		Name:        "Alice's Laptop",
		Platform:    "macos",
	}); err != nil {
		t.Fatalf("TrustDevice failed: %v", err)
	}

	profile, err := env.engine.AccountProfile(ctx, account.ID)
	if err != nil {
		t.Fatalf("AccountProfile failed: %v", err)
	}
	if profile.Email != "alice@example.com" || profile.Status != AccountActive {
		t.Fatalf("unexpected profile: %+v", profile)
	}
	if profile.DeviceCount != 1 {
		t.Fatalf("expected 1 device, got %d", profile.DeviceCount)
	}
	if profile.KDFIterations != testKDFIterations {
		t.Fatalf("expected kdf iterations %d, got %d", testKDFIterations, profile.KDFIterations)
	}
}
