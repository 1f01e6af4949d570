package alert

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// webhookClaims mirrors the teacher's identity.IdentityClaims shape,
// trimmed to what a webhook receiver needs to authenticate the sender.
type webhookClaims struct {
	jwt.RegisteredClaims
	Channel string `json:"channel"`
}

// JWTTokenSource mints a short-lived signed JWT on every call, for use
// as a WebhookChannel.TokenSource, grounded on the teacher's
// identity.TokenManager.GenerateToken.
type JWTTokenSource struct {
	KeyID    string
	Secret   []byte
	Issuer   string
	Audience string
	TTL      time.Duration
}

// Token implements the func() (string, error) shape WebhookChannel
// expects.
func (s JWTTokenSource) Token() (string, error) {
	ttl := s.TTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	now := time.Now().UTC()
	claims := webhookClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   s.KeyID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			Issuer:    s.Issuer,
			Audience:  jwt.ClaimStrings{s.Audience},
		},
		Channel: "webhook",
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	token.Header["kid"] = s.KeyID
	signed, err := token.SignedString(s.Secret)
	if err != nil {
		return "", fmt.Errorf("alert: sign webhook token: %w", err)
	}
	return signed, nil
}
