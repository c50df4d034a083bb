package zkauth

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"math/big"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/vaultproof/zkauth/srp"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return mr, client
}

type mockCredentialStore struct {
	mu       sync.Mutex
	accounts map[string]*Account
	byEmail  map[string]string
	devices  map[string]*Device
}

func newMockStore() *mockCredentialStore {
	return &mockCredentialStore{
		accounts: map[string]*Account{},
		byEmail:  map[string]string{},
		devices:  map[string]*Device{},
	}
}

func (m *mockCredentialStore) deviceKey(accountID, fingerprint string) string {
	return accountID + ":" + fingerprint
}

func (m *mockCredentialStore) FindAccountByEmail(_ context.Context, email string) (*Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id, ok := m.byEmail[email]
	if !ok {
		return nil, ErrAccountNotFound
	}
	copied := *m.accounts[id]
	return &copied, nil
}

func (m *mockCredentialStore) FindAccountByID(_ context.Context, id string) (*Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	account, ok := m.accounts[id]
	if !ok {
		return nil, ErrAccountNotFound
	}
	copied := *account
	return &copied, nil
}

func (m *mockCredentialStore) CreateAccount(_ context.Context, input CreateAccountInput) (*Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if input.ReplaceAccountID != "" {
		if old, ok := m.accounts[input.ReplaceAccountID]; ok {
			delete(m.byEmail, old.Email)
			delete(m.accounts, old.ID)
		}
	}
	if _, taken := m.byEmail[input.Email]; taken {
		return nil, ErrEmailTaken
	}

	account := &Account{
		ID:                   uuid.NewString(),
		Email:                input.Email,
		SRPSalt:              input.SRPSalt,
		SRPVerifier:          input.SRPVerifier,
		SecretKeyFingerprint: input.SecretKeyFingerprint,
		KDFIterations:        input.KDFIterations,
		PasswordHash:         input.PasswordHash,
		Status:               AccountActive,
		CreatedAt:            time.Now(),
	}
	m.accounts[account.ID] = account
	m.byEmail[account.Email] = account.ID

	if input.InitialDevice != nil {
		device := *input.InitialDevice
		device.AccountID = account.ID
		m.devices[m.deviceKey(account.ID, device.Fingerprint)] = &device
	}

	copied := *account
	return &copied, nil
}

func (m *mockCredentialStore) UpdateAccount(_ context.Context, id string, update AccountUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	account, ok := m.accounts[id]
	if !ok {
		return ErrAccountNotFound
	}

	if update.Status != nil {
		account.Status = *update.Status
	}
	if update.FailedLoginAttempts != nil {
		account.FailedLoginAttempts = *update.FailedLoginAttempts
	}
	if update.LockedUntil != nil {
		account.LockedUntil = update.LockedUntil
	} else if update.ClearLockedUntil {
		account.LockedUntil = nil
	}
	if update.SRPSalt != nil {
		account.SRPSalt = *update.SRPSalt
	}
	if update.SRPVerifier != nil {
		account.SRPVerifier = *update.SRPVerifier
	}
	if update.SecretKeyFingerprint != nil {
		account.SecretKeyFingerprint = *update.SecretKeyFingerprint
	}
	if update.KDFIterations != nil {
		account.KDFIterations = *update.KDFIterations
	}
	if update.PasswordHash != nil {
		account.PasswordHash = *update.PasswordHash
	}
	if update.LastPasswordChangeAt != nil {
		account.LastPasswordChangeAt = update.LastPasswordChangeAt
	}

	return nil
}

func (m *mockCredentialStore) IncrementFailedLoginAttempts(_ context.Context, id string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	account, ok := m.accounts[id]
	if !ok {
		return 0, ErrAccountNotFound
	}
	account.FailedLoginAttempts++
	return account.FailedLoginAttempts, nil
}

func (m *mockCredentialStore) CreateDevice(_ context.Context, device *Device) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	copied := *device
	m.devices[m.deviceKey(device.AccountID, device.Fingerprint)] = &copied
	return nil
}

func (m *mockCredentialStore) FindDevice(_ context.Context, accountID, fingerprint string) (*Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	device, ok := m.devices[m.deviceKey(accountID, fingerprint)]
	if !ok {
		return nil, ErrDeviceNotFound
	}
	copied := *device
	return &copied, nil
}

func (m *mockCredentialStore) UpdateDevice(_ context.Context, accountID, fingerprint string, update DeviceUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	device, ok := m.devices[m.deviceKey(accountID, fingerprint)]
	if !ok {
		return ErrDeviceNotFound
	}

	if update.Name != nil {
		device.Name = *update.Name
	}
	if update.Platform != nil {
		device.Platform = *update.Platform
	}
	if update.TrustedAt != nil {
		device.TrustedAt = *update.TrustedAt
	}
	if update.TrustedUntil != nil {
		device.TrustedUntil = *update.TrustedUntil
	}
	if update.LastSeenAt != nil {
		device.LastSeenAt = *update.LastSeenAt
	}
	if update.IsCurrentSession != nil {
		device.IsCurrentSession = *update.IsCurrentSession
	}

	return nil
}

func (m *mockCredentialStore) DeleteDevice(_ context.Context, accountID, fingerprint string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := m.deviceKey(accountID, fingerprint)
	if _, ok := m.devices[key]; !ok {
		return ErrDeviceNotFound
	}
	delete(m.devices, key)
	return nil
}

func (m *mockCredentialStore) ListDevices(_ context.Context, accountID string) ([]Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []Device
	for _, device := range m.devices {
		if device.AccountID == accountID {
			out = append(out, *device)
		}
	}
	return out, nil
}

func (m *mockCredentialStore) ClearCurrentSessions(_ context.Context, accountID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, device := range m.devices {
		if device.AccountID == accountID {
			device.IsCurrentSession = false
		}
	}
	return nil
}

// setAccount mutates stored account state directly, bypassing the engine.
func (m *mockCredentialStore) setAccount(t *testing.T, id string, mutate func(*Account)) {
	t.Helper()

	m.mu.Lock()
	defer m.mu.Unlock()

	account, ok := m.accounts[id]
	if !ok {
		t.Fatalf("no account %q in mock store", id)
	}
	mutate(account)
}

func (m *mockCredentialStore) getAccount(t *testing.T, id string) Account {
	t.Helper()

	m.mu.Lock()
	defer m.mu.Unlock()

	account, ok := m.accounts[id]
	if !ok {
		t.Fatalf("no account %q in mock store", id)
	}
	return *account
}

type mockMailer struct {
	mu    sync.Mutex
	sent  []string
	codes []string
}

func (m *mockMailer) Send(_ context.Context, to, _, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.sent = append(m.sent, to)
	fields := strings.Fields(body)
	if len(fields) > 0 {
		m.codes = append(m.codes, fields[len(fields)-1])
	}
	return nil
}

func (m *mockMailer) lastCode(t *testing.T) string {
	t.Helper()

	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.codes) == 0 {
		t.Fatal("no mail delivered")
	}
	return m.codes[len(m.codes)-1]
}

func testConfig(t *testing.T) Config {
	t.Helper()

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("ed25519.GenerateKey failed: %v", err)
	}

	cfg := DefaultConfig()
	cfg.JWT.SessionTTL = time.Hour
	cfg.JWT.PrivateKey = priv
	cfg.JWT.PublicKey = pub
	cfg.SRP.MinDelay = time.Millisecond
	cfg.SRP.MaxDelay = 2 * time.Millisecond
	return cfg
}

type testEnv struct {
	engine *Engine
	store  *mockCredentialStore
	mailer *mockMailer
	redis  *miniredis.Miniredis
}

func newTestEngine(t *testing.T, mutate func(*Config)) *testEnv {
	t.Helper()

	mr, rdb := newTestRedis(t)
	t.Cleanup(mr.Close)

	cfg := testConfig(t)
	if mutate != nil {
		mutate(&cfg)
	}

	store := newMockStore()
	mailer := &mockMailer{}

	engine, err := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithCredentialStore(store).
		WithMailer(mailer).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)

	return &testEnv{engine: engine, store: store, mailer: mailer, redis: mr}
}

// srpTestClient runs the client side of the SRP exchange for tests,
// deriving x = H(salt || password).
type srpTestClient struct {
	group    *srp.Group
	salt     []byte
	password string
	a        *big.Int
	bigA     *big.Int
}

func newSRPTestClient(t *testing.T, password string) *srpTestClient {
	t.Helper()

	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		t.Fatalf("salt generation failed: %v", err)
	}

	return &srpTestClient{
		group:    srp.NewGroup(),
		salt:     salt,
		password: password,
	}
}

func (c *srpTestClient) x() *big.Int {
	digest := sha256.Sum256(append(append([]byte{}, c.salt...), []byte(c.password)...))
	return new(big.Int).SetBytes(digest[:])
}

func (c *srpTestClient) saltB64() string {
	return base64.StdEncoding.EncodeToString(c.salt)
}

func (c *srpTestClient) verifierB64() string {
	n := c.group.N()
	v := new(big.Int).Exp(c.group.Generator(), c.x(), n)
	return base64.StdEncoding.EncodeToString(v.Bytes())
}

// startAuth draws a fresh ephemeral a and returns A base64-encoded.
func (c *srpTestClient) startAuth(t *testing.T) string {
	t.Helper()

	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		t.Fatalf("client ephemeral generation failed: %v", err)
	}
	c.a = new(big.Int).SetBytes(raw)
	c.bigA = new(big.Int).Exp(c.group.Generator(), c.a, c.group.N())
	return base64.StdEncoding.EncodeToString(c.bigA.Bytes())
}

// computeM1 derives the client evidence for the server public value B.
func (c *srpTestClient) computeM1(t *testing.T, serverB string) string {
	t.Helper()

	rawB, err := base64.StdEncoding.DecodeString(serverB)
	if err != nil {
		t.Fatalf("decode B failed: %v", err)
	}
	bigB := new(big.Int).SetBytes(rawB)
	n := c.group.N()

	uDigest := sha256.Sum256(append(c.group.Pad(c.bigA), c.group.Pad(bigB)...))
	u := new(big.Int).SetBytes(uDigest[:])

	x := c.x()
	gx := new(big.Int).Exp(c.group.Generator(), x, n)

	// S = (B - k*g^x)^(a + u*x) mod N
	base := new(big.Int).Sub(bigB, new(big.Int).Mul(c.group.Multiplier(), gx))
	base.Mod(base, n)
	exp := new(big.Int).Add(c.a, new(big.Int).Mul(u, x))
	S := new(big.Int).Exp(base, exp, n)

	K := sha256.Sum256(S.Bytes())

	m1Input := append(c.group.Pad(c.bigA), c.group.Pad(bigB)...)
	m1Input = append(m1Input, K[:]...)
	m1 := sha256.Sum256(m1Input)

	return base64.StdEncoding.EncodeToString(m1[:])
}

const (
	testSecretKeyFingerprint = "3f7a9c1e4b8d2f60517e9ab3c4d5e6f7a8b9c0d1e2f3a4b5c6d7e8f9a0b1c2d3"
	testKDFIterations        = 100_000
)

// seedAccount registers an account directly through the mock store with
// the client's SRP material.
func seedAccount(t *testing.T, env *testEnv, email string, client *srpTestClient) *Account {
	t.Helper()

	account, err := env.store.CreateAccount(context.Background(), CreateAccountInput{
		Email:                email,
		SRPSalt:              client.saltB64(),
		SRPVerifier:          client.verifierB64(),
		SecretKeyFingerprint: testSecretKeyFingerprint,
		KDFIterations:        testKDFIterations,
	})
	if err != nil {
		t.Fatalf("seed account failed: %v", err)
	}
	return account
}
