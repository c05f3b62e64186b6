package password

import (
	"errors"
	"strings"
	"testing"
)

func fastConfig() Config {
	return Config{Memory: 8 * 1024, Time: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32}
}

func TestHashAndVerify(t *testing.T) {
	h, err := New(fastConfig())
	if err != nil {
		t.Fatalf("New error: %v", err)
	}

	encoded, err := h.Hash("correct horse")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}
	if !strings.HasPrefix(encoded, "$argon2id$v=19$m=8192,t=1,p=1$") {
		t.Fatalf("unexpected PHC prefix: %s", encoded)
	}

	ok, err := h.Verify("correct horse", encoded)
	if err != nil || !ok {
		t.Fatalf("expected match, ok=%v err=%v", ok, err)
	}
	ok, err = h.Verify("wrong horse", encoded)
	if err != nil || ok {
		t.Fatalf("expected mismatch, ok=%v err=%v", ok, err)
	}
}

func TestHashUsesFreshSalt(t *testing.T) {
	h, _ := New(fastConfig())
	a, _ := h.Hash("same")
	b, _ := h.Hash("same")
	if a == b {
		t.Fatal("expected different encodings for the same password")
	}
}

func TestHashRejectsEmpty(t *testing.T) {
	h, _ := New(fastConfig())
	if _, err := h.Hash(""); !errors.Is(err, ErrEmptyPassword) {
		t.Fatalf("expected ErrEmptyPassword, got %v", err)
	}
}

func TestNewRejectsWeakConfig(t *testing.T) {
	cfg := fastConfig()
	cfg.SaltLength = 8
	if _, err := New(cfg); !errors.Is(err, ErrWeakConfig) {
		t.Fatalf("expected ErrWeakConfig, got %v", err)
	}
}

func TestVerifyMalformed(t *testing.T) {
	h, _ := New(fastConfig())
	for _, bad := range []string{
		"",
		"plaintext",
		"$argon2i$v=19$m=8192,t=1,p=1$c2FsdA$aGFzaA",
		"$argon2id$v=16$m=8192,t=1,p=1$c2FsdA$aGFzaA",
		"$argon2id$v=19$m=8192,t=1$c2FsdA$aGFzaA",
		"$argon2id$v=19$m=8192,t=1,p=1,x=2$c2FsdA$aGFzaA",
		"$argon2id$v=19$m=8192,t=1,p=1$***$aGFzaA",
	} {
		if _, err := h.Verify("x", bad); !errors.Is(err, ErrMalformedHash) {
			t.Fatalf("%q: expected ErrMalformedHash, got %v", bad, err)
		}
	}
}

func TestNeedsRehash(t *testing.T) {
	weak, _ := New(fastConfig())
	encoded, _ := weak.Hash("pw")

	strongCfg := fastConfig()
	strongCfg.Time = 2
	strong, _ := New(strongCfg)

	if need, err := strong.NeedsRehash(encoded); err != nil || !need {
		t.Fatalf("expected rehash, need=%v err=%v", need, err)
	}
	if need, err := weak.NeedsRehash(encoded); err != nil || need {
		t.Fatalf("expected no rehash, need=%v err=%v", need, err)
	}
}
