package hub

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signToken(t *testing.T, secret, sub, name string) string {
	t.Helper()
	claims := identityClaims{
		Name: name,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func TestIdentify_QueryParams(t *testing.T) {
	v := NewVerifier("")
	r := httptest.NewRequest("GET", "/ws?id=p1&name=alice&color=red", nil)

	identity, err := v.Identify(r)
	require.NoError(t, err)
	assert.Equal(t, "p1", identity.ID)
	assert.Equal(t, "alice", identity.Name)
	assert.Equal(t, "red", identity.Color)
}

func TestIdentify_GeneratesIDWhenMissing(t *testing.T) {
	v := NewVerifier("")
	r := httptest.NewRequest("GET", "/ws?name=guest", nil)

	identity, err := v.Identify(r)
	require.NoError(t, err)
	assert.NotEmpty(t, identity.ID)
}

func TestIdentify_MissingNameRejected(t *testing.T) {
	v := NewVerifier("")
	r := httptest.NewRequest("GET", "/ws?id=p1", nil)

	_, err := v.Identify(r)
	assert.Error(t, err)
}

func TestIdentify_TokenClaimsWinOverQuery(t *testing.T) {
	v := NewVerifier("topsecret")
	token := signToken(t, "topsecret", "signed-id", "signedname")
	r := httptest.NewRequest("GET", "/ws?id=spoofed&name=spoofed&token="+token, nil)

	identity, err := v.Identify(r)
	require.NoError(t, err)
	assert.Equal(t, "signed-id", identity.ID)
	assert.Equal(t, "signedname", identity.Name)
}

func TestIdentify_BadSignatureRejected(t *testing.T) {
	v := NewVerifier("topsecret")
	token := signToken(t, "wrongsecret", "p1", "mallory")
	r := httptest.NewRequest("GET", "/ws?name=mallory&token="+token, nil)

	_, err := v.Identify(r)
	assert.Error(t, err)
}

func TestIdentify_TokenIgnoredWithoutSecret(t *testing.T) {
	v := NewVerifier("")
	token := signToken(t, "whatever", "signed-id", "signedname")
	r := httptest.NewRequest("GET", "/ws?name=guest&token="+token, nil)

	identity, err := v.Identify(r)
	require.NoError(t, err)
	assert.Equal(t, "guest", identity.Name)
}
