package security

import (
	"errors"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"
)

var ErrInvalidToken = errors.New("invalid token")

// SessionClaims is the payload carried by signed session tokens.
type SessionClaims struct {
	Subject    string `json:"sub"`
	TenantCode string `json:"tenant_code,omitempty"`
	Email      string `json:"email,omitempty"`
	Role       string `json:"role,omitempty"`
	Expiry     int64  `json:"exp"`
	IssuedAt   int64  `json:"iat"`
}

// TokenSigner issues and verifies HS256 session tokens.
type TokenSigner struct {
	secret []byte
	ttl    time.Duration
}

func NewTokenSigner(secret string, ttl time.Duration) *TokenSigner {
	return &TokenSigner{secret: []byte(secret), ttl: ttl}
}

func (s *TokenSigner) Sign(claims SessionClaims) (string, error) {
	now := time.Now()
	claims.IssuedAt = now.Unix()
	claims.Expiry = now.Add(s.ttl).Unix()

	signer, err := jose.NewSigner(
		jose.SigningKey{Algorithm: jose.HS256, Key: s.secret},
		(&jose.SignerOptions{}).WithType("JWT"),
	)
	if err != nil {
		return "", err
	}

	return jwt.Signed(signer).Claims(claims).Serialize()
}

func (s *TokenSigner) Verify(token string) (*SessionClaims, error) {
	parsed, err := jwt.ParseSigned(token, []jose.SignatureAlgorithm{jose.HS256})
	if err != nil {
		return nil, ErrInvalidToken
	}

	var claims SessionClaims
	if err := parsed.Claims(s.secret, &claims); err != nil {
		return nil, ErrInvalidToken
	}

	if claims.Expiry != 0 && time.Now().Unix() > claims.Expiry {
		return nil, ErrInvalidToken
	}

	return &claims, nil
}
