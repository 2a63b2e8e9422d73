package auth_test

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/bhekumuzitshuma/jobsearch/internal/auth"
)

var testSecret = []byte("test-secret-0123456789")

func mintToken(t *testing.T, secret []byte, claims jwt.MapClaims) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func TestVerifyAccessToken_RoundTrip(t *testing.T) {
	token := mintToken(t, testSecret, jwt.MapClaims{
		"sub":   "user-42",
		"email": "user42@example.com",
		"exp":   time.Now().Add(time.Hour).Unix(),
	})

	identity, err := auth.VerifyAccessToken(testSecret, token)
	if err != nil {
		t.Fatalf("VerifyAccessToken: %v", err)
	}
	if identity.ID != "user-42" || identity.Email != "user42@example.com" {
		t.Errorf("identity = %+v", identity)
	}
}

func TestVerifyAccessToken_WrongSecret(t *testing.T) {
	token := mintToken(t, []byte("some-other-secret"), jwt.MapClaims{
		"sub": "user-42",
		"exp": time.Now().Add(time.Hour).Unix(),
	})

	if _, err := auth.VerifyAccessToken(testSecret, token); err == nil {
		t.Error("token signed with a different secret must not verify")
	}
}

func TestVerifyAccessToken_Expired(t *testing.T) {
	token := mintToken(t, testSecret, jwt.MapClaims{
		"sub": "user-42",
		"exp": time.Now().Add(-time.Minute).Unix(),
	})

	if _, err := auth.VerifyAccessToken(testSecret, token); err == nil {
		t.Error("expired token must not verify")
	}
}

func TestVerifyAccessToken_MissingSubject(t *testing.T) {
	token := mintToken(t, testSecret, jwt.MapClaims{
		"email": "nobody@example.com",
		"exp":   time.Now().Add(time.Hour).Unix(),
	})

	if _, err := auth.VerifyAccessToken(testSecret, token); err == nil {
		t.Error("token without a subject must not verify")
	}
}

func TestVerifyAccessToken_RejectsUnsignedAlg(t *testing.T) {
	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{
		"sub": "user-42",
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}

	if _, err := auth.VerifyAccessToken(testSecret, unsigned); err == nil {
		t.Error("alg=none token must not verify")
	}
}

func TestVerifyAccessToken_Garbage(t *testing.T) {
	if _, err := auth.VerifyAccessToken(testSecret, "not.a.token"); err == nil {
		t.Error("garbage input must not verify")
	}
}
