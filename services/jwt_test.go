package services

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medigo-health/medigo_api/shared"
)

func newTestJWTService() *JWTService {
	return &JWTService{
		AccessTokenDuration:  15 * time.Minute,
		RefreshTokenDuration: 7 * 24 * time.Hour,
		jwtSecretKey:         "test-secret",
	}
}

func TestTokenPairRoundTrip(t *testing.T) {
	svc := newTestJWTService()

	pair, err := svc.GenerateTokenPair("user-1", "a@example.com", shared.RoleUser)
	require.NoError(t, err)
	assert.Equal(t, int64(900), pair.ExpiresIn)

	claims, err := svc.VerifyAccessToken(pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, "a@example.com", claims.Email)
	assert.Equal(t, shared.RoleUser, claims.Role)

	refreshClaims, err := svc.VerifyRefreshToken(pair.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, "user-1", refreshClaims.UserID)
}

func TestTokenTypeMismatch(t *testing.T) {
	svc := newTestJWTService()

	pair, err := svc.GenerateTokenPair("user-1", "a@example.com", shared.RoleUser)
	require.NoError(t, err)

	// A refresh token must never pass as an access token.
	_, err = svc.VerifyAccessToken(pair.RefreshToken)
	require.Error(t, err)
	appErr, ok := shared.GetAppError(err)
	require.True(t, ok)
	assert.Equal(t, shared.CodeTokenMalformed, appErr.Code)
}

func TestExpiredTokenCarriesExpiry(t *testing.T) {
	svc := newTestJWTService()
	svc.AccessTokenDuration = -time.Minute

	pair, err := svc.GenerateTokenPair("user-1", "a@example.com", shared.RoleUser)
	require.NoError(t, err)

	_, err = svc.VerifyAccessToken(pair.AccessToken)
	require.Error(t, err)

	appErr, ok := shared.GetAppError(err)
	require.True(t, ok)
	assert.Equal(t, shared.CodeTokenExpired, appErr.Code)
	assert.Equal(t, 401, appErr.StatusCode)
	require.NotNil(t, appErr.ExpiredAt)
	assert.WithinDuration(t, time.Now().Add(-time.Minute), *appErr.ExpiredAt, 5*time.Second)
}

func TestWrongSignature(t *testing.T) {
	svc := newTestJWTService()

	other := newTestJWTService()
	other.jwtSecretKey = "different-secret"

	pair, err := other.GenerateTokenPair("user-1", "a@example.com", shared.RoleUser)
	require.NoError(t, err)

	_, err = svc.VerifyAccessToken(pair.AccessToken)
	require.Error(t, err)

	appErr, ok := shared.GetAppError(err)
	require.True(t, ok)
	assert.Equal(t, shared.CodeTokenInvalidSignature, appErr.Code)
	assert.Equal(t, 401, appErr.StatusCode)
}

func TestGarbageToken(t *testing.T) {
	svc := newTestJWTService()

	_, err := svc.VerifyAccessToken("not.a.token")
	require.Error(t, err)

	appErr, ok := shared.GetAppError(err)
	require.True(t, ok)
	assert.Equal(t, shared.CodeTokenMalformed, appErr.Code)
}

func TestMissingIdentityFieldsRejected(t *testing.T) {
	svc := newTestJWTService()

	// Well-signed token with no email claim.
	claims := &CustomClaims{
		UserID:    "user-1",
		TokenType: tokenTypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)

	_, err = svc.VerifyAccessToken(token)
	require.Error(t, err)

	appErr, ok := shared.GetAppError(err)
	require.True(t, ok)
	assert.Equal(t, shared.CodePayloadMalformed, appErr.Code)
	assert.Equal(t, 403, appErr.StatusCode)
}

func TestExtractTokenFromHeader(t *testing.T) {
	svc := newTestJWTService()

	token, err := svc.ExtractTokenFromHeader("Bearer abc123")
	require.NoError(t, err)
	assert.Equal(t, "abc123", token)

	for _, header := range []string{"", "abc123", "Basic abc123", "Bearer"} {
		_, err := svc.ExtractTokenFromHeader(header)
		require.Error(t, err, "header %q", header)

		appErr, ok := shared.GetAppError(err)
		require.True(t, ok)
		assert.Equal(t, shared.CodeAuthHeaderMissing, appErr.Code)
	}
}
