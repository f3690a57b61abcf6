package auth

import (
	"crypto"
	"crypto/hmac"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"time"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
)

// Roles carried in the role claim.
const (
	RoleOwner  = "owner"
	RoleAdmin  = "admin"
	RoleStaff  = "staff"
	RoleClient = "client"
)

type Claims struct {
	Sub        string `json:"sub"`
	BusinessID string `json:"business_id,omitempty"`
	Role       string `json:"role"`
	Exp        int64  `json:"exp,omitempty"`
	Iat        int64  `json:"iat,omitempty"`
}

// IsBusiness reports whether the token acts on behalf of a business calendar.
func (c Claims) IsBusiness() bool {
	switch c.Role {
	case RoleOwner, RoleAdmin, RoleStaff:
		return c.BusinessID != ""
	}
	return false
}

type Header struct {
	Alg string `json:"alg"`
	Typ string `json:"typ"`
	Kid string `json:"kid,omitempty"`
}

type token struct {
	header  Header
	payload []byte
	signed  string
	sig     []byte
}

func split(raw string) (token, error) {
	parts := strings.Split(raw, ".")
	if len(parts) != 3 {
		return token{}, ErrInvalidToken
	}
	h, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return token{}, ErrInvalidToken
	}
	var header Header
	if err := json.Unmarshal(h, &header); err != nil {
		return token{}, ErrInvalidToken
	}
	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return token{}, ErrInvalidToken
	}
	sig, err := base64.RawURLEncoding.DecodeString(parts[2])
	if err != nil {
		return token{}, ErrInvalidToken
	}
	return token{header: header, payload: payload, signed: parts[0] + "." + parts[1], sig: sig}, nil
}

func (t token) claims(now time.Time) (*Claims, error) {
	var c Claims
	if err := json.Unmarshal(t.payload, &c); err != nil {
		return nil, ErrInvalidToken
	}
	if c.Sub == "" {
		return nil, ErrInvalidToken
	}
	if c.Exp > 0 && now.Unix() > c.Exp {
		return nil, ErrTokenExpired
	}
	return &c, nil
}

func ParseHeader(raw string) (*Header, error) {
	t, err := split(raw)
	if err != nil {
		return nil, err
	}
	return &t.header, nil
}

func SignHS256(claims Claims, secret string) (string, error) {
	return sign(Header{Alg: "HS256", Typ: "JWT"}, claims, func(signed string) ([]byte, error) {
		return hmacSHA256(signed, secret), nil
	})
}

// SignRS256 issues tokens for tests and local tooling.
func SignRS256(claims Claims, key *rsa.PrivateKey, kid string) (string, error) {
	return sign(Header{Alg: "RS256", Typ: "JWT", Kid: kid}, claims, func(signed string) ([]byte, error) {
		sum := sha256.Sum256([]byte(signed))
		return rsa.SignPKCS1v15(nil, key, crypto.SHA256, sum[:])
	})
}

func sign(h Header, claims Claims, signer func(string) ([]byte, error)) (string, error) {
	hj, err := json.Marshal(h)
	if err != nil {
		return "", err
	}
	pj, err := json.Marshal(claims)
	if err != nil {
		return "", err
	}
	signed := base64.RawURLEncoding.EncodeToString(hj) + "." + base64.RawURLEncoding.EncodeToString(pj)
	sig, err := signer(signed)
	if err != nil {
		return "", err
	}
	return signed + "." + base64.RawURLEncoding.EncodeToString(sig), nil
}

func VerifyHS256(raw, secret string, now time.Time) (*Claims, error) {
	if secret == "" {
		return nil, ErrInvalidToken
	}
	t, err := split(raw)
	if err != nil {
		return nil, err
	}
	if t.header.Alg != "HS256" || !hmac.Equal(t.sig, hmacSHA256(t.signed, secret)) {
		return nil, ErrInvalidToken
	}
	return t.claims(now)
}

func VerifyRS256(raw string, pub *rsa.PublicKey, now time.Time) (*Claims, error) {
	t, err := split(raw)
	if err != nil {
		return nil, err
	}
	if t.header.Alg != "RS256" || pub == nil {
		return nil, ErrInvalidToken
	}
	sum := sha256.Sum256([]byte(t.signed))
	if err := rsa.VerifyPKCS1v15(pub, crypto.SHA256, sum[:], t.sig); err != nil {
		return nil, ErrInvalidToken
	}
	return t.claims(now)
}

func hmacSHA256(data, secret string) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(data))
	return mac.Sum(nil)
}
