package zkauth

import (
	"context"
	"testing"
	"time"
)

func newAuditedEngine(t *testing.T) (*testEnv, *ChannelSink) {
	t.Helper()

	mr, rdb := newTestRedis(t)
	t.Cleanup(mr.Close)

	cfg := testConfig(t)
	cfg.Audit.Enabled = true
	cfg.Audit.DropIfFull = false

	store := newMockStore()
	mailer := &mockMailer{}
	sink := NewChannelSink(64)

	engine, err := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithCredentialStore(store).
		WithMailer(mailer).
		WithAuditSink(sink).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)

	return &testEnv{engine: engine, store: store, mailer: mailer, redis: mr}, sink
}

func awaitEvent(t *testing.T, sink *ChannelSink, eventType string) AuditEvent {
	t.Helper()

	deadline := time.After(2 * time.Second)
	for {
		select {
		case event := <-sink.Events():
			if event.EventType == eventType {
				return event
			}
		case <-deadline:
			t.Fatalf("no %q audit event arrived", eventType)
		}
	}
}

func TestAuditTrailForFailedLogin(t *testing.T) {
	env, sink := newAuditedEngine(t)

	ctx := WithClientIP(context.Background(), "203.0.113.7")
	ctx = WithUserAgent(ctx, "VaultProof/2.4 (macOS)")
	_, err := env.engine.LoginChallenge(ctx, LoginChallengeInput{
		Email:             "nobody@example.com",
		DeviceFingerprint: "dev-1",
	})
	if err == nil {
		t.Fatal("expected the challenge to fail")
	}

	event := awaitEvent(t, sink, "login_failure")
	if event.Success {
		t.Fatal("failure event must not be marked successful")
	}
	if event.Error != "account_not_found" {
		t.Fatalf("expected account_not_found error code, got %q", event.Error)
	}
	if event.IP != "203.0.113.7" {
		t.Fatalf("expected the caller IP on the event, got %q", event.IP)
	}
	if event.UserAgent != "VaultProof/2.4 (macOS)" {
		t.Fatalf("expected the caller user agent on the event, got %q", event.UserAgent)
	}
}

func TestAuditTrailForSuccessfulLogin(t *testing.T) {
	env, sink := newAuditedEngine(t)

	client := newSRPTestClient(t, "correct-horse")
	account := seedAccount(t, env, "alice@example.com", client)

	token := loginWithDevice(t, env, account, client, "dev-1")
	if token == "" {
		t.Fatal("expected a session token")
	}

	challenge := awaitEvent(t, sink, "login_challenge_issued")
	if challenge.AccountID != account.ID {
		t.Fatalf("challenge event bound to wrong account: %q", challenge.AccountID)
	}

	success := awaitEvent(t, sink, "login_success")
	if !success.Success || success.AccountID != account.ID {
		t.Fatalf("unexpected login_success event: %+v", success)
	}
	if success.SessionID == "" {
		t.Fatal("login_success must carry the session jti")
	}
	if success.Metadata["device"] != "dev-1" {
		t.Fatalf("expected device metadata, got %v", success.Metadata)
	}
}

type blockingSink struct {
	release chan struct{}
}

func (s *blockingSink) Emit(_ context.Context, _ AuditEvent) {
	<-s.release
}

func TestAuditDispatcherDropsWhenFull(t *testing.T) {
	sink := &blockingSink{release: make(chan struct{})}
	d := newAuditDispatcher(AuditConfig{
		Enabled:    true,
		BufferSize: 1,
		DropIfFull: true,
	}, sink)

	// First event occupies the worker, second fills the buffer, the rest
	// must be counted as dropped rather than blocking the caller.
	for i := 0; i < 4; i++ {
		d.Emit(context.Background(), AuditEvent{EventType: "login_failure"})
	}
	if d.Dropped() == 0 {
		t.Fatal("expected dropped events with a full buffer")
	}

	close(sink.release)
	d.Close()
}

func TestMetricsCountLoginOutcomes(t *testing.T) {
	env := newTestEngine(t, nil)

	client := newSRPTestClient(t, "correct-horse")
	account := seedAccount(t, env, "alice@example.com", client)

	if err := failLogin(t, env, account.ID); err == nil {
		t.Fatal("expected the login to fail")
	}
	loginWithDevice(t, env, account, client, "dev-1")

	snapshot := env.engine.MetricsSnapshot()
	if snapshot.Counters[MetricLoginFailure] == 0 {
		t.Fatal("expected a login failure to be counted")
	}
	if snapshot.Counters[MetricLoginSuccess] != 1 {
		t.Fatalf("expected exactly one login success, got %d", snapshot.Counters[MetricLoginSuccess])
	}
	if snapshot.Counters[MetricSessionCreated] != 1 {
		t.Fatalf("expected one session created, got %d", snapshot.Counters[MetricSessionCreated])
	}
	if snapshot.Counters[MetricChallengeIssued] != 1 {
		t.Fatalf("expected one challenge issued, got %d", snapshot.Counters[MetricChallengeIssued])
	}
}
