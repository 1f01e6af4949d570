package alert

import (
	"context"
	"net/http"
	"strings"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentgov/governance-core/pkg/violation"
)

func TestJWTTokenSource_TokenIsValidHS256(t *testing.T) {
	src := JWTTokenSource{KeyID: "k1", Secret: []byte("shh"), Issuer: "governance-core", Audience: "webhook-receiver"}
	signed, err := src.Token()
	require.NoError(t, err)

	parsed, err := jwt.ParseWithClaims(signed, &webhookClaims{}, func(tok *jwt.Token) (any, error) {
		return src.Secret, nil
	})
	require.NoError(t, err)
	claims := parsed.Claims.(*webhookClaims)
	assert.Equal(t, "k1", claims.Subject)
	assert.Equal(t, "governance-core", claims.Issuer)
	assert.Equal(t, "webhook", claims.Channel)
	assert.Equal(t, "k1", parsed.Header["kid"])
}

func TestWebhookChannel_UsesJWTTokenSourceAsBearer(t *testing.T) {
	src := JWTTokenSource{KeyID: "k1", Secret: []byte("shh")}
	cfg := ChannelConfig{Type: ChannelWebhook, Enabled: true, MinSeverity: violation.SeverityLow}
	ch := NewWebhookChannel(cfg, "https://hooks.example/alerts", src.Token, nil)

	var gotBearer string
	ch.post = func(url, contentType, bearer string, body []byte) (*http.Response, error) {
		gotBearer = bearer
		return &http.Response{StatusCode: 200, Body: http.NoBody}, nil
	}

	outcome := ch.Send(context.Background(), Payload{ID: "p1", Title: "t", Summary: "s", Priority: violation.SeverityHigh})
	assert.True(t, outcome.Success)
	require.NotEmpty(t, gotBearer)
	assert.True(t, strings.Count(gotBearer, ".") == 2)
}
