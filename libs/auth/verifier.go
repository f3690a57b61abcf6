package auth

import (
	"context"
	"strings"
	"time"
)

// Verifier checks bearer tokens. RS256 tokens with a kid go through JWKS when configured;
// everything else is checked against the shared HS256 secret.
type Verifier struct {
	Secret string
	JWKS   *JWKSClient
	Now    func() time.Time
}

func (v Verifier) Verify(ctx context.Context, raw string) (*Claims, error) {
	now := time.Now()
	if v.Now != nil {
		now = v.Now()
	}
	if v.JWKS != nil {
		h, err := ParseHeader(raw)
		if err != nil {
			return nil, err
		}
		if h.Alg == "RS256" && h.Kid != "" {
			pub, err := v.JWKS.Key(ctx, h.Kid)
			if err != nil {
				return nil, ErrInvalidToken
			}
			return VerifyRS256(raw, pub, now)
		}
	}
	return VerifyHS256(raw, v.Secret, now)
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, bool) {
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	tok := strings.TrimSpace(header[len(prefix):])
	return tok, tok != ""
}
