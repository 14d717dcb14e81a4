package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/snowgate/types"
)

const testSecret = "shared-secret"

func signHMAC(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return token
}

func hmacVerifier(t *testing.T, required ...string) *jwtStrategy {
	t.Helper()
	s, err := newJWTStrategy(JWTConfig{
		Algorithm:      "HS256",
		Secret:         testSecret,
		Issuer:         "https://issuer.example.com",
		Audience:       "snowgate",
		RequiredScopes: required,
	}, nil, zap.NewNop())
	require.NoError(t, err)
	return s
}

func baseClaims() jwt.MapClaims {
	return jwt.MapClaims{
		"sub":       "user-1",
		"client_id": "cli-1",
		"iss":       "https://issuer.example.com",
		"aud":       "snowgate",
		"scope":     "read write",
		"exp":       time.Now().Add(time.Hour).Unix(),
	}
}

func TestJWTVerify_HMAC(t *testing.T) {
	v := hmacVerifier(t)

	claims, err := v.Verify(context.Background(), signHMAC(t, baseClaims()))
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.Subject)
	assert.Equal(t, "cli-1", claims.ClientID)
	assert.Equal(t, []string{"read", "write"}, claims.Scopes)
	assert.WithinDuration(t, time.Now().Add(time.Hour), claims.Expiry, time.Minute)
}

func TestJWTVerify_WrongIssuer(t *testing.T) {
	v := hmacVerifier(t)
	c := baseClaims()
	c["iss"] = "https://evil.example.com"

	_, err := v.Verify(context.Background(), signHMAC(t, c))
	require.Error(t, err)
	assert.Equal(t, types.ErrUnauthorized, types.GetErrorCode(err))
}

func TestJWTVerify_WrongAudience(t *testing.T) {
	v := hmacVerifier(t)
	c := baseClaims()
	c["aud"] = "other-service"

	_, err := v.Verify(context.Background(), signHMAC(t, c))
	require.Error(t, err)
}

func TestJWTVerify_Expired(t *testing.T) {
	v := hmacVerifier(t)
	c := baseClaims()
	c["exp"] = time.Now().Add(-time.Minute).Unix()

	_, err := v.Verify(context.Background(), signHMAC(t, c))
	require.Error(t, err)
}

func TestJWTVerify_MissingExpiry(t *testing.T) {
	v := hmacVerifier(t)
	c := baseClaims()
	delete(c, "exp")

	_, err := v.Verify(context.Background(), signHMAC(t, c))
	require.Error(t, err)
}

func TestJWTVerify_RequiredScopes(t *testing.T) {
	v := hmacVerifier(t, "admin")

	_, err := v.Verify(context.Background(), signHMAC(t, baseClaims()))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "required scopes")

	c := baseClaims()
	c["scope"] = "read admin"
	claims, err := v.Verify(context.Background(), signHMAC(t, c))
	require.NoError(t, err)
	assert.Contains(t, claims.Scopes, "admin")
}

func TestJWTVerify_TamperedSignature(t *testing.T) {
	v := hmacVerifier(t)

	other, err := jwt.NewWithClaims(jwt.SigningMethodHS256, baseClaims()).SignedString([]byte("other-secret"))
	require.NoError(t, err)

	_, err = v.Verify(context.Background(), other)
	require.Error(t, err)
}

func TestJWTStrategy_UnsupportedHMACAlgorithm(t *testing.T) {
	_, err := newJWTStrategy(JWTConfig{
		Algorithm: "ES256",
		Secret:    testSecret,
		Issuer:    "iss",
		Audience:  "aud",
	}, nil, zap.NewNop())
	require.Error(t, err)
	assert.Equal(t, types.ErrConfig, types.GetErrorCode(err))
}

func TestClaims_HasScopes(t *testing.T) {
	c := &Claims{Scopes: []string{"read", "write"}}
	assert.True(t, c.HasScopes(nil))
	assert.True(t, c.HasScopes([]string{"read"}))
	assert.False(t, c.HasScopes([]string{"read", "admin"}))
}
