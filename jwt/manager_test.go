package jwt

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"testing"
	"time"

	gjwt "github.com/golang-jwt/jwt/v5"
)

func newEdManager(t *testing.T) (*Manager, ed25519.PrivateKey) {
	t.Helper()
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate ed25519 key: %v", err)
	}
	m, err := NewManager(Config{AccessTTL: time.Minute, SigningMethod: MethodEd25519, PrivateKey: priv, Issuer: "multiauth"})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	return m, priv
}

func TestCreateAndParseAccess(t *testing.T) {
	m, _ := newEdManager(t)

	tok, exp, err := m.CreateAccess("u1", "s1", "a@x.test")
	if err != nil {
		t.Fatalf("create access: %v", err)
	}
	if time.Until(exp) <= 0 {
		t.Fatal("expected future expiry")
	}

	claims, err := m.ParseAccess(tok)
	if err != nil {
		t.Fatalf("parse access: %v", err)
	}
	if claims.Subject != "u1" || claims.SID != "s1" || claims.Email != "a@x.test" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestParseAccessRejectsWrongAlgorithm(t *testing.T) {
	m, _ := newEdManager(t)

	claims := SessionClaims{SID: "s1", RegisteredClaims: gjwt.RegisteredClaims{
		Subject:   "u1",
		Issuer:    "multiauth",
		ExpiresAt: gjwt.NewNumericDate(time.Now().Add(time.Minute)),
	}}
	token, err := gjwt.NewWithClaims(gjwt.SigningMethodHS256, claims).SignedString([]byte("secret-secret-secret-secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	if _, err := m.ParseAccess(token); err == nil {
		t.Fatal("expected wrong algorithm to be rejected")
	}
}

func TestParseAccessRejectsExpired(t *testing.T) {
	_, priv := newEdManager(t)
	m, err := NewManager(Config{AccessTTL: time.Minute, SigningMethod: MethodEd25519, PrivateKey: priv})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	claims := SessionClaims{SID: "s1", RegisteredClaims: gjwt.RegisteredClaims{
		Subject:   "u1",
		ExpiresAt: gjwt.NewNumericDate(time.Now().Add(-time.Minute)),
	}}
	token, _ := gjwt.NewWithClaims(gjwt.SigningMethodEdDSA, claims).SignedString(priv)
	if _, err := m.ParseAccess(token); err == nil {
		t.Fatal("expected expired token to be rejected")
	}
}

func TestSubjectUnverifiedIgnoresSignatureAndExpiry(t *testing.T) {
	claims := SessionClaims{SID: "s1", RegisteredClaims: gjwt.RegisteredClaims{
		Subject:   "owner-9",
		ExpiresAt: gjwt.NewNumericDate(time.Now().Add(-time.Hour)),
	}}
	token, _ := gjwt.NewWithClaims(gjwt.SigningMethodHS256, claims).SignedString([]byte("whatever-key"))

	sub, err := SubjectUnverified(token)
	if err != nil {
		t.Fatalf("subject unverified: %v", err)
	}
	if sub != "owner-9" {
		t.Fatalf("expected owner-9, got %q", sub)
	}
}

func TestSubjectUnverifiedRequiresSubject(t *testing.T) {
	token, _ := gjwt.NewWithClaims(gjwt.SigningMethodHS256, SessionClaims{SID: "s1"}).SignedString([]byte("k"))
	if _, err := SubjectUnverified(token); !errors.Is(err, ErrMissingSubject) {
		t.Fatalf("expected ErrMissingSubject, got %v", err)
	}
	if _, err := SubjectUnverified("not-a-token"); err == nil {
		t.Fatal("expected malformed token to fail")
	}
}

func TestNewManagerValidation(t *testing.T) {
	if _, err := NewManager(Config{AccessTTL: 0, SigningMethod: MethodHS256, PrivateKey: []byte("k")}); err == nil {
		t.Fatal("expected zero TTL to fail")
	}
	if _, err := NewManager(Config{AccessTTL: time.Minute, SigningMethod: MethodHS256}); err == nil {
		t.Fatal("expected missing hs256 key to fail")
	}
	if _, err := NewManager(Config{AccessTTL: time.Minute, SigningMethod: "rs512", PrivateKey: []byte("k")}); err == nil {
		t.Fatal("expected unsupported method to fail")
	}
}
