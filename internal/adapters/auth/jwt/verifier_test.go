package jwt

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "test-secret"

func token(t *testing.T, c Claims) string {
	t.Helper()
	s, err := Sign(secret, c)
	require.NoError(t, err)
	return s
}

func TestVerify_ValidToken(t *testing.T) {
	v := NewVerifier(secret, "isp-idp")
	tok := token(t, Claims{
		UserID: "agent-7",
		Email:  "agente@isp.test",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "isp-idp",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})

	claims, err := v.Verify(context.Background(), tok)
	require.NoError(t, err)
	assert.Equal(t, "agent-7", claims.UserID)
	assert.Equal(t, "agente@isp.test", claims.Email)
}

func TestVerify_SubjectFallback(t *testing.T) {
	v := NewVerifier(secret, "")
	tok := token(t, Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "agent-9"}})

	claims, err := v.Verify(context.Background(), tok)
	require.NoError(t, err)
	assert.Equal(t, "agent-9", claims.UserID)
}

func TestVerify_Rejections(t *testing.T) {
	v := NewVerifier(secret, "isp-idp")

	expired := token(t, Claims{UserID: "u", RegisteredClaims: jwt.RegisteredClaims{
		Issuer:    "isp-idp",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
	}})
	wrongIssuer := token(t, Claims{UserID: "u", RegisteredClaims: jwt.RegisteredClaims{Issuer: "other"}})
	noUser := token(t, Claims{RegisteredClaims: jwt.RegisteredClaims{Issuer: "isp-idp"}})
	otherKey, err := Sign("another-secret", Claims{UserID: "u", RegisteredClaims: jwt.RegisteredClaims{Issuer: "isp-idp"}})
	require.NoError(t, err)

	for name, tok := range map[string]string{
		"empty":        "  ",
		"garbage":      "not.a.jwt",
		"expired":      expired,
		"wrong issuer": wrongIssuer,
		"no user":      noUser,
		"other key":    otherKey,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := v.Verify(context.Background(), tok)
			assert.Error(t, err)
		})
	}
}

func TestVerify_NotConfigured(t *testing.T) {
	_, err := NewVerifier("", "").Verify(context.Background(), "x")
	assert.ErrorIs(t, err, ErrNotConfigured)
}
