package zkauth

import (
	"context"
	"errors"
	"testing"
	"time"
)

func failLogin(t *testing.T, env *testEnv, accountID string) error {
	t.Helper()

	_, err := env.engine.LoginVerify(context.Background(), LoginVerifyInput{
		AccountID:            accountID,
		DeviceFingerprint:    "dev-1",
		SecretKeyFingerprint: "0000000000000000000000000000000000000000000000000000000000000000",
		SRPA:                 "QUFBQQ==",
		SRPM1:                "QkJCQg==",
	})
	return err
}

func TestLockoutAfterThreshold(t *testing.T) {
	env := newTestEngine(t, nil)

	client := newSRPTestClient(t, "correct-horse")
	account := seedAccount(t, env, "alice@example.com", client)

	for i := 0; i < env.engine.config.Lockout.MaxFailedAttempts-1; i++ {
		if err := failLogin(t, env, account.ID); !errors.Is(err, ErrInvalidCredential) {
			t.Fatalf("attempt %d: expected ErrInvalidCredential, got %v", i+1, err)
		}
	}

	// The attempt that crosses the threshold reports the lock itself.
	err := failLogin(t, env, account.ID)
	var locked *LockedError
	if !errors.As(err, &locked) {
		t.Fatalf("expected LockedError at threshold, got %v", err)
	}
	if locked.Permanent {
		t.Fatal("threshold lock must be temporary")
	}
	if locked.RetryAfter != env.engine.config.Lockout.LockDuration {
		t.Fatalf("expected retry-after %v, got %v", env.engine.config.Lockout.LockDuration, locked.RetryAfter)
	}

	stored := env.store.getAccount(t, account.ID)
	if stored.Status != AccountLockedTemporary {
		t.Fatalf("expected LOCKED_TEMPORARY, got %v", stored.Status)
	}
	if stored.LockedUntil == nil {
		t.Fatal("expected lockedUntil to be set")
	}
	remaining := time.Until(*stored.LockedUntil)
	if remaining <= 0 || remaining > env.engine.config.Lockout.LockDuration {
		t.Fatalf("lockedUntil out of range: %v remaining", remaining)
	}
}

func TestLockedAccountReportsRetryAfter(t *testing.T) {
	env := newTestEngine(t, nil)

	client := newSRPTestClient(t, "correct-horse")
	account := seedAccount(t, env, "alice@example.com", client)

	lockedUntil := time.Now().Add(10 * time.Minute)
	env.store.setAccount(t, account.ID, func(a *Account) {
		a.Status = AccountLockedTemporary
		a.LockedUntil = &lockedUntil
	})

	_, err := env.engine.LoginChallenge(context.Background(), LoginChallengeInput{
		Email:             "alice@example.com",
		DeviceFingerprint: "dev-1",
	})
	var locked *LockedError
	if !errors.As(err, &locked) {
		t.Fatalf("expected LockedError, got %v", err)
	}
	if locked.RetryAfter <= 9*time.Minute || locked.RetryAfter > 10*time.Minute {
		t.Fatalf("retry-after should be close to 10m, got %v", locked.RetryAfter)
	}
	if !errors.Is(err, ErrAccountLocked) {
		t.Fatal("LockedError must unwrap to ErrAccountLocked")
	}
}

func TestExpiredLockUnlocksLazily(t *testing.T) {
	env := newTestEngine(t, nil)

	client := newSRPTestClient(t, "correct-horse")
	account := seedAccount(t, env, "alice@example.com", client)

	expired := time.Now().Add(-time.Minute)
	env.store.setAccount(t, account.ID, func(a *Account) {
		a.Status = AccountLockedTemporary
		a.LockedUntil = &expired
		a.FailedLoginAttempts = env.engine.config.Lockout.MaxFailedAttempts
	})

	// The elapsed lock must not block the challenge.
	challenge, err := env.engine.LoginChallenge(context.Background(), LoginChallengeInput{
		Email:             "alice@example.com",
		DeviceFingerprint: "dev-1",
	})
	if err != nil {
		t.Fatalf("expected elapsed lock to be ignored, got %v", err)
	}

	A := client.startAuth(t)
	m1 := client.computeM1(t, challenge.SRPB)
	result, err := env.engine.LoginVerify(context.Background(), LoginVerifyInput{
		AccountID:            account.ID,
		DeviceFingerprint:    "dev-1",
		SecretKeyFingerprint: testSecretKeyFingerprint,
		SRPA:                 A,
		SRPM1:                m1,
	})
	if err != nil {
		t.Fatalf("LoginVerify after lock expiry failed: %v", err)
	}
	if result.SessionToken == "" {
		t.Fatal("expected a session token")
	}

	if got := env.store.getAccount(t, account.ID).FailedLoginAttempts; got != 0 {
		t.Fatalf("expected counter reset after successful login, got %d", got)
	}
}

func TestPermanentLockAndSuspension(t *testing.T) {
	env := newTestEngine(t, nil)

	client := newSRPTestClient(t, "correct-horse")
	account := seedAccount(t, env, "alice@example.com", client)

	env.store.setAccount(t, account.ID, func(a *Account) {
		a.Status = AccountLockedPermanent
	})

	_, err := env.engine.LoginChallenge(context.Background(), LoginChallengeInput{
		Email:             "alice@example.com",
		DeviceFingerprint: "dev-1",
	})
	var locked *LockedError
	if !errors.As(err, &locked) || !locked.Permanent {
		t.Fatalf("expected permanent LockedError, got %v", err)
	}

	env.store.setAccount(t, account.ID, func(a *Account) {
		a.Status = AccountSuspended
	})

	_, err = env.engine.LoginChallenge(context.Background(), LoginChallengeInput{
		Email:             "alice@example.com",
		DeviceFingerprint: "dev-1",
	})
	if !errors.Is(err, ErrAccountNotActive) {
		t.Fatalf("expected ErrAccountNotActive for suspended account, got %v", err)
	}
}

func TestFailedAttemptsSurviveFailedLogins(t *testing.T) {
	env := newTestEngine(t, nil)

	client := newSRPTestClient(t, "correct-horse")
	account := seedAccount(t, env, "alice@example.com", client)

	for i := 0; i < 3; i++ {
		if err := failLogin(t, env, account.ID); !errors.Is(err, ErrInvalidCredential) {
			t.Fatalf("expected ErrInvalidCredential, got %v", err)
		}
	}

	if got := env.store.getAccount(t, account.ID).FailedLoginAttempts; got != 3 {
		t.Fatalf("expected the counter to accumulate across failures, got %d", got)
	}
}
