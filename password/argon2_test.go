package password

import (
	"errors"
	"strings"
	"testing"
)

func testHasher(t *testing.T) *Argon2 {
	t.Helper()
	a, err := NewArgon2(Config{
		Memory:      8 * 1024,
		Time:        1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
	})
	if err != nil {
		t.Fatalf("new hasher: %v", err)
	}
	return a
}

func TestHashAndVerify(t *testing.T) {
	a := testHasher(t)

	encoded, err := a.Hash("correct horse battery")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if !strings.HasPrefix(encoded, "$argon2id$") {
		t.Fatalf("unexpected encoding: %s", encoded)
	}

	if err := a.Verify("correct horse battery", encoded); err != nil {
		t.Fatalf("verify: %v", err)
	}
	if err := a.Verify("wrong password", encoded); !errors.Is(err, ErrHashMismatch) {
		t.Fatalf("want ErrHashMismatch, got %v", err)
	}
}

func TestHashesAreSalted(t *testing.T) {
	a := testHasher(t)

	first, err := a.Hash("same password")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	second, err := a.Hash("same password")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if first == second {
		t.Fatal("two hashes of the same password must differ")
	}
}

func TestVerifyMalformedEncoding(t *testing.T) {
	a := testHasher(t)
	for _, encoded := range []string{"", "plaintext", "$argon2id$v=19$broken"} {
		if err := a.Verify("whatever", encoded); err == nil {
			t.Fatalf("malformed encoding %q accepted", encoded)
		}
	}
}

func TestNewArgon2RejectsWeakParameters(t *testing.T) {
	weak := []Config{
		{Memory: 1024, Time: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32},
		{Memory: 8 * 1024, Time: 0, Parallelism: 1, SaltLength: 16, KeyLength: 32},
		{Memory: 8 * 1024, Time: 1, Parallelism: 1, SaltLength: 8, KeyLength: 32},
	}
	for i, cfg := range weak {
		if _, err := NewArgon2(cfg); err == nil {
			t.Fatalf("config %d accepted", i)
		}
	}
}
