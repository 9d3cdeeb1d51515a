package security

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateTokenRoundTrip(t *testing.T) {
	InitJWT([]byte("test-secret"))

	tokenString, err := GenerateToken("user-1", "admin", time.Hour)
	require.NoError(t, err)

	token, err := TokenAuth.Decode(tokenString)
	require.NoError(t, err)

	claims, err := token.AsMap(t.Context())
	require.NoError(t, err)

	userID, err := GetUserIDFromClaims(claims)
	require.NoError(t, err)
	assert.Equal(t, "user-1", userID)

	role, err := GetUserRoleFromClaims(claims)
	require.NoError(t, err)
	assert.Equal(t, "admin", role)
}

func TestClaimsMissing(t *testing.T) {
	_, err := GetUserIDFromClaims(jwt.MapClaims{"user_id": 42})
	assert.Error(t, err)
	_, err = GetUserRoleFromClaims(jwt.MapClaims{})
	assert.Error(t, err)
}
