package password

import (
	"strings"
	"testing"
)

func newTestHasher(t *testing.T) *Argon2 {
	t.Helper()

	hasher, err := NewArgon2(Config{
		Memory:      8 * 1024,
		Time:        1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   16,
	})
	if err != nil {
		t.Fatalf("NewArgon2 failed: %v", err)
	}
	return hasher
}

func TestHashVerifyRoundTrip(t *testing.T) {
	hasher := newTestHasher(t)

	hash, err := hasher.Hash("correct-horse")
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}
	if !strings.HasPrefix(hash, "$argon2id$") {
		t.Fatalf("expected PHC format, got %q", hash)
	}

	if !hasher.Verify("correct-horse", hash) {
		t.Fatal("correct password must verify")
	}
	if hasher.Verify("wrong-password", hash) {
		t.Fatal("wrong password must not verify")
	}
}

func TestHashSaltsAreUnique(t *testing.T) {
	hasher := newTestHasher(t)

	first, err := hasher.Hash("correct-horse")
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}
	second, err := hasher.Hash("correct-horse")
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}
	if first == second {
		t.Fatal("two hashes of the same password must differ")
	}
}

func TestHashRejectsShortPassword(t *testing.T) {
	hasher := newTestHasher(t)

	if _, err := hasher.Hash("short"); err == nil {
		t.Fatal("short password must be rejected")
	}
}

func TestHashCodeAllowsShortSecrets(t *testing.T) {
	hasher := newTestHasher(t)

	hash, err := hasher.HashCode("483920")
	if err != nil {
		t.Fatalf("HashCode failed: %v", err)
	}
	if !hasher.Verify("483920", hash) {
		t.Fatal("code must verify against its hash")
	}
	if hasher.Verify("000000", hash) {
		t.Fatal("wrong code must not verify")
	}

	if _, err := hasher.HashCode(""); err == nil {
		t.Fatal("empty code must be rejected")
	}
}

func TestVerifyMalformedHashIsFalse(t *testing.T) {
	hasher := newTestHasher(t)

	for _, malformed := range []string{
		"",
		"plainhash",
		"$argon2id$v=19$m=8192,t=1,p=1$notbase64!!$x",
		"$argon2i$v=19$m=8192,t=1,p=1$c2FsdHNhbHRzYWx0c2FsdA$aGFzaA",
		"$argon2id$v=18$m=8192,t=1,p=1$c2FsdHNhbHRzYWx0c2FsdA$aGFzaA",
		"$argon2id$v=19$m=1,t=1,p=1$c2FsdHNhbHRzYWx0c2FsdA$aGFzaA",
	} {
		if hasher.Verify("anything", malformed) {
			t.Fatalf("malformed hash %q must verify as false", malformed)
		}
	}
}

func TestNewArgon2RejectsWeakConfig(t *testing.T) {
	weak := []Config{
		{Memory: 1024, Time: 1, Parallelism: 1, SaltLength: 16, KeyLength: 16},
		{Memory: 8 * 1024, Time: 0, Parallelism: 1, SaltLength: 16, KeyLength: 16},
		{Memory: 8 * 1024, Time: 1, Parallelism: 0, SaltLength: 16, KeyLength: 16},
		{Memory: 8 * 1024, Time: 1, Parallelism: 1, SaltLength: 8, KeyLength: 16},
		{Memory: 8 * 1024, Time: 1, Parallelism: 1, SaltLength: 16, KeyLength: 8},
	}
	for i, cfg := range weak {
		if _, err := NewArgon2(cfg); err == nil {
			t.Fatalf("config %d should have been rejected", i)
		}
	}
}
