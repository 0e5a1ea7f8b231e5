package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"

	"github.com/noah-isme/toko-pricing/internal/common"
)

const testSecret = "test-secret-with-enough-entropy"

func signToken(t *testing.T, alg jwa.SignatureAlgorithm, key any, subject, issuer string, exp time.Time) string {
	t.Helper()
	now := time.Now()
	token, err := jwt.NewBuilder().
		Issuer(issuer).
		Audience([]string{"storefront"}).
		Subject(subject).
		IssuedAt(now).
		NotBefore(now.Add(-time.Second)).
		Expiration(exp).
		Build()
	if err != nil {
		t.Fatalf("build token: %v", err)
	}
	signed, err := jwt.Sign(token, jwt.WithKey(alg, key))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return string(signed)
}

func TestTokenValidatorIssuerMismatch(t *testing.T) {
	now := time.Now()
	token, _ := jwt.NewBuilder().
		Issuer("other").
		Audience([]string{"aud"}).
		Subject("sub").
		IssuedAt(now).
		NotBefore(now).
		Expiration(now.Add(time.Minute)).
		Build()

	validator := TokenValidator{Issuer: "issuer", Audience: "aud", Algorithm: jwa.HS256}
	if err := validator.Validate(token, jwa.HS256, now); err == nil {
		t.Fatal("expected issuer mismatch error")
	}
}

func TestVerifierSubject(t *testing.T) {
	v := NewVerifier(testSecret, "toko", "storefront")
	token := signToken(t, jwa.HS256, []byte(testSecret), "user-42", "toko", time.Now().Add(time.Minute))

	subject, err := v.Subject(token)
	if err != nil {
		t.Fatalf("subject: %v", err)
	}
	if subject != "user-42" {
		t.Fatalf("unexpected subject %q", subject)
	}
}

func TestVerifierRejects(t *testing.T) {
	v := NewVerifier(testSecret, "toko", "storefront")
	cases := map[string]string{
		"expired":      signToken(t, jwa.HS256, []byte(testSecret), "user-1", "toko", time.Now().Add(-time.Hour)),
		"wrong secret": signToken(t, jwa.HS256, []byte("another-secret"), "user-1", "toko", time.Now().Add(time.Minute)),
		"wrong alg":    signToken(t, jwa.HS512, []byte(testSecret), "user-1", "toko", time.Now().Add(time.Minute)),
		"wrong issuer": signToken(t, jwa.HS256, []byte(testSecret), "user-1", "else", time.Now().Add(time.Minute)),
		"garbage":      "not.a.token",
	}
	for name, token := range cases {
		if _, err := v.Subject(token); err == nil {
			t.Fatalf("%s: expected rejection", name)
		}
	}
}

func TestAuthenticateIsOptional(t *testing.T) {
	mw := Middleware{Verifier: NewVerifier(testSecret, "toko", "storefront"), AccessCookie: "access_token"}
	var seen string
	var ok bool
	handler := mw.Authenticate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, ok = common.UserID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, jwa.HS256, []byte(testSecret), "user-7", "toko", time.Now().Add(time.Minute)))
	handler.ServeHTTP(httptest.NewRecorder(), req)
	if !ok || seen != "user-7" {
		t.Fatalf("expected user-7, got %q (%v)", seen, ok)
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: "access_token", Value: "bogus"})
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if ok {
		t.Fatal("invalid token must leave the request anonymous")
	}
	if rr.Code != http.StatusOK {
		t.Fatalf("expected request to proceed, got %d", rr.Code)
	}
}
