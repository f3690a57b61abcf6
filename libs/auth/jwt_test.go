package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestHS256RoundTrip(t *testing.T) {
	now := time.Now()
	claims := Claims{Sub: "user-1", BusinessID: "biz-1", Role: RoleOwner, Iat: now.Unix(), Exp: now.Add(time.Hour).Unix()}

	tok, err := SignHS256(claims, "test-secret")
	if err != nil {
		t.Fatalf("SignHS256 failed: %v", err)
	}
	parsed, err := VerifyHS256(tok, "test-secret", now)
	if err != nil {
		t.Fatalf("VerifyHS256 failed: %v", err)
	}
	if *parsed != claims {
		t.Fatalf("claims mismatch: got %+v", parsed)
	}
	if !parsed.IsBusiness() {
		t.Fatal("owner with business id should act as business")
	}
	if _, err := VerifyHS256(tok, "wrong-secret", now); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
	if _, err := VerifyHS256(tok, "test-secret", now.Add(2*time.Hour)); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
}

func TestVerifierUsesJWKS(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("rsa.GenerateKey failed: %v", err)
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"keys": []map[string]string{EncodeJWK("kid-1", &key.PublicKey)}})
	}))
	defer srv.Close()

	claims := Claims{Sub: "client-7", Role: RoleClient, Exp: time.Now().Add(time.Hour).Unix()}
	tok, err := SignRS256(claims, key, "kid-1")
	if err != nil {
		t.Fatalf("SignRS256 failed: %v", err)
	}

	v := Verifier{Secret: "unused", JWKS: NewJWKSClient(srv.URL, time.Minute)}
	parsed, err := v.Verify(context.Background(), tok)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if parsed.Sub != "client-7" || parsed.IsBusiness() {
		t.Fatalf("unexpected claims %+v", parsed)
	}

	other, _ := SignRS256(claims, key, "kid-unknown")
	if _, err := v.Verify(context.Background(), other); err == nil {
		t.Fatal("expected unknown kid to fail")
	}
}

func TestBearerToken(t *testing.T) {
	if tok, ok := BearerToken("Bearer abc"); !ok || tok != "abc" {
		t.Fatalf("unexpected %q %v", tok, ok)
	}
	for _, h := range []string{"", "Bearer ", "Basic abc"} {
		if _, ok := BearerToken(h); ok {
			t.Fatalf("expected %q to be rejected", h)
		}
	}
}
