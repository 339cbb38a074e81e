package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ayothedoc3/labyrinthos-contracts/internal/model"
)

func signToken(t *testing.T, secret, userID, role string) string {
	t.Helper()
	claims := Claims{
		UserID: userID,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func TestParseValidToken(t *testing.T) {
	parser := NewParser("test-secret")
	userID := uuid.New()

	principal, err := parser.Parse(signToken(t, "test-secret", userID.String(), "MANAGER"))
	require.NoError(t, err)
	assert.Equal(t, userID, principal.UserID)
	assert.Equal(t, model.RoleManager, principal.Role)
}

func TestParseRejectsWrongSecret(t *testing.T) {
	parser := NewParser("test-secret")
	_, err := parser.Parse(signToken(t, "other-secret", uuid.New().String(), "MANAGER"))
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestParseRejectsBadClaims(t *testing.T) {
	parser := NewParser("test-secret")

	_, err := parser.Parse(signToken(t, "test-secret", "not-a-uuid", "MANAGER"))
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = parser.Parse(signToken(t, "test-secret", uuid.New().String(), "SUPERUSER"))
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestParseRejectsExpiredToken(t *testing.T) {
	parser := NewParser("test-secret")
	claims := Claims{
		UserID: uuid.New().String(),
		Role:   "MANAGER",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)

	_, err = parser.Parse(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}
