package schoolauth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/campuskit/schoolauth/password"
)

var (
	testKeyOnce sync.Once
	testPrivB64 string
	testPubB64  string
	testKeyErr  error
)

// testKeyPair generates one RSA key pair for the whole test binary.
func testKeyPair(t *testing.T) (string, string) {
	t.Helper()

	testKeyOnce.Do(func() {
		key, err := rsa.GenerateKey(rand.Reader, 2048)
		if err != nil {
			testKeyErr = err
			return
		}
		privPEM := pem.EncodeToMemory(&pem.Block{
			Type:  "RSA PRIVATE KEY",
			Bytes: x509.MarshalPKCS1PrivateKey(key),
		})
		pubDER, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
		if err != nil {
			testKeyErr = err
			return
		}
		pubPEM := pem.EncodeToMemory(&pem.Block{
			Type:  "PUBLIC KEY",
			Bytes: pubDER,
		})
		testPrivB64 = base64.StdEncoding.EncodeToString(privPEM)
		testPubB64 = base64.StdEncoding.EncodeToString(pubPEM)
	})
	if testKeyErr != nil {
		t.Fatalf("test key generation failed: %v", testKeyErr)
	}
	return testPrivB64, testPubB64
}

func testConfig(t *testing.T) Config {
	t.Helper()

	cfg := DefaultConfig()
	cfg.JWT.PrivateKey, cfg.JWT.PublicKey = testKeyPair(t)
	// Minimum argon2 work factors keep the suite fast.
	cfg.Password = PasswordConfig{
		Memory:      8 * 1024,
		Time:        1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   16,
	}
	cfg.Reset.VerifyCooldown = 0
	cfg.Audit.Enabled = false
	return cfg
}

func newTestHasher(t *testing.T) *password.Argon2 {
	t.Helper()

	hasher, err := password.NewArgon2(password.Config{
		Memory:      8 * 1024,
		Time:        1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   16,
	})
	if err != nil {
		t.Fatalf("hasher init failed: %v", err)
	}
	return hasher
}

func newTestEngine(t *testing.T, store Store, mutate ...func(*Config)) (*Engine, *captureDeliverer) {
	t.Helper()

	cfg := testConfig(t)
	for _, fn := range mutate {
		fn(&cfg)
	}

	deliverer := &captureDeliverer{}
	engine, err := New().
		WithConfig(cfg).
		WithStore(store).
		WithOTPDeliverer(deliverer).
		Build()
	if err != nil {
		t.Fatalf("engine build failed: %v", err)
	}
	t.Cleanup(engine.Close)
	return engine, deliverer
}

func seedUser(t *testing.T, store *fakeStore, hasher *password.Argon2, u User, pass string) *User {
	t.Helper()

	hash, err := hasher.Hash(pass)
	if err != nil {
		t.Fatalf("seed hash failed: %v", err)
	}
	u.PasswordHash = hash
	if u.LastPasswordChange.IsZero() {
		u.LastPasswordChange = time.Now().Add(-24 * time.Hour)
	}
	store.putUser(&u)
	return &u
}

// captureDeliverer records delivered secrets and can be told to fail.
type captureDeliverer struct {
	mu      sync.Mutex
	codes   []string
	tokens  []string
	failErr error
}

func (d *captureDeliverer) DeliverOTP(_ context.Context, _ *User, _ string, code string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.failErr != nil {
		return d.failErr
	}
	d.codes = append(d.codes, code)
	return nil
}

func (d *captureDeliverer) DeliverResetLink(_ context.Context, _ *User, _ string, token string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.failErr != nil {
		return d.failErr
	}
	d.tokens = append(d.tokens, token)
	return nil
}

func (d *captureDeliverer) lastCode(t *testing.T) string {
	t.Helper()
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.codes) == 0 {
		t.Fatal("no OTP was delivered")
	}
	return d.codes[len(d.codes)-1]
}

func (d *captureDeliverer) lastToken(t *testing.T) string {
	t.Helper()
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.tokens) == 0 {
		t.Fatal("no reset link was delivered")
	}
	return d.tokens[len(d.tokens)-1]
}

func TestEngineNilSafety(t *testing.T) {
	var engine *Engine
	ctx := context.Background()

	if _, err := engine.Login(ctx, "a@b.c", "password1"); !errors.Is(err, ErrEngineNotReady) {
		t.Fatalf("expected ErrEngineNotReady, got %v", err)
	}
	if _, err := engine.Refresh(ctx, "x"); !errors.Is(err, ErrEngineNotReady) {
		t.Fatalf("expected ErrEngineNotReady, got %v", err)
	}
	if err := engine.Logout(ctx, "x"); !errors.Is(err, ErrEngineNotReady) {
		t.Fatalf("expected ErrEngineNotReady, got %v", err)
	}
	engine.Close()
	if engine.AuditDropped() != 0 {
		t.Fatal("expected zero dropped events on nil engine")
	}
}

func TestBuilderRequiresStore(t *testing.T) {
	cfg := testConfig(t)
	if _, err := New().WithConfig(cfg).Build(); err == nil {
		t.Fatal("expected build without store to fail")
	}
}

func TestBuilderSingleUse(t *testing.T) {
	b := New().WithConfig(testConfig(t)).WithStore(newFakeStore())
	if _, err := b.Build(); err != nil {
		t.Fatalf("first build failed: %v", err)
	}
	if _, err := b.Build(); err == nil {
		t.Fatal("expected second build to fail")
	}
}
