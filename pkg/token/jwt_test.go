package token

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAndVerify(t *testing.T) {
	m := NewJWTManager("s3cret", 1, 7)

	access, err := m.GenerateToken(5, "budi")
	require.NoError(t, err)
	claims, err := m.VerifyTyped(access, TypeAccess)
	require.NoError(t, err)
	assert.Equal(t, uint(5), claims.UserID)
	assert.Equal(t, "budi", claims.Username)

	refresh, err := m.GenerateRefreshToken(5, "budi")
	require.NoError(t, err)
	_, err = m.VerifyTyped(refresh, TypeAccess)
	assert.ErrorIs(t, err, ErrWrongTokenType)
	assert.True(t, claims.ExpiresAt.Before(mustVerify(t, m, refresh).ExpiresAt.Time))
}

func TestVerifyRejectsForeignSecret(t *testing.T) {
	tok, err := NewJWTManager("a", 1, 1).GenerateToken(1, "x")
	require.NoError(t, err)
	_, err = NewJWTManager("b", 1, 1).VerifyToken(tok)
	assert.Error(t, err)
}

func TestVerifyRejectsExpired(t *testing.T) {
	m := NewJWTManager("s", 0, 0)
	tok, err := m.GenerateToken(1, "x")
	require.NoError(t, err)
	_, err = m.VerifyToken(tok)
	assert.Error(t, err)
}

func mustVerify(t *testing.T, m *JWTManager, tok string) *CustomClaims {
	t.Helper()
	c, err := m.VerifyToken(tok)
	require.NoError(t, err)
	return c
}
