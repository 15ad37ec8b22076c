package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"moments/models"
)

func testUser(role string) models.User {
	return models.User{ID: primitive.NewObjectID(), Name: "Ana", Email: "ana@example.com", Role: role}
}

func TestIssueAndParse(t *testing.T) {
	svc := NewTokenService("secret", time.Hour)
	user := testUser(models.RoleAdmin)

	token, err := svc.Issue(user)
	require.NoError(t, err)

	claims, err := svc.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, user.ID.Hex(), claims.UserID)
	assert.Equal(t, "Ana", claims.Name)

	id := claims.Identity()
	assert.Equal(t, user.ID.Hex(), id.UserID)
	assert.True(t, id.IsAdmin)

	token, err = svc.Issue(testUser(models.RoleUser))
	require.NoError(t, err)
	claims, err = svc.Parse(token)
	require.NoError(t, err)
	assert.False(t, claims.Identity().IsAdmin)
}

func TestParseExpired(t *testing.T) {
	svc := NewTokenService("secret", time.Minute)
	issuedAt := time.Now().Add(-time.Hour)
	svc.now = func() time.Time { return issuedAt }

	token, err := svc.Issue(testUser(models.RoleUser))
	require.NoError(t, err)

	svc.now = time.Now
	_, err = svc.Parse(token)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestParseRejects(t *testing.T) {
	svc := NewTokenService("secret", time.Hour)

	other, err := NewTokenService("other", time.Hour).Issue(testUser(models.RoleUser))
	require.NoError(t, err)
	_, err = svc.Parse(other)
	assert.ErrorIs(t, err, ErrInvalidToken, "wrong secret")

	_, err = svc.Parse("not-a-token")
	assert.ErrorIs(t, err, ErrInvalidToken)

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, &Claims{UserID: "x"}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = svc.Parse(none)
	assert.ErrorIs(t, err, ErrInvalidToken, "alg none")

	noUser, err := jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{
		RegisteredClaims: jwt.RegisteredClaims{Issuer: issuer},
	}).SignedString([]byte("secret"))
	require.NoError(t, err)
	_, err = svc.Parse(noUser)
	assert.ErrorIs(t, err, ErrMissingUser)
}
