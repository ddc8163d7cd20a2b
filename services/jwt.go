package services

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/alphabatem/common/context"

	"github.com/medigo-health/medigo_api/dto"
	"github.com/medigo-health/medigo_api/shared"
)

type JWTService struct {
	context.DefaultService

	AccessTokenDuration  time.Duration
	RefreshTokenDuration time.Duration
	jwtSecretKey         string
}

type CustomClaims struct {
	UserID    string `json:"user_id"`
	Email     string `json:"email"`
	Role      string `json:"role"`
	TokenType string `json:"token_type"`
	jwt.RegisteredClaims
}

const JWT_SVC = "jwt_svc"

const (
	tokenTypeAccess  = "access"
	tokenTypeRefresh = "refresh"
)

func (svc JWTService) Id() string {
	return JWT_SVC
}

func (svc *JWTService) Configure(ctx *context.Context) error {
	svc.AccessTokenDuration = 15 * time.Minute
	svc.RefreshTokenDuration = 7 * 24 * time.Hour
	svc.jwtSecretKey = os.Getenv("JWT_SECRET")
	return svc.DefaultService.Configure(ctx)
}

func (svc *JWTService) Start() error {
	if svc.jwtSecretKey == "" {
		return errors.New("JWT_SECRET is not set")
	}
	return nil
}

// VerifyAccessToken maps every parse failure onto the gateway taxonomy so
// the middleware can answer with the right status and body shape.
func (svc *JWTService) VerifyAccessToken(jwtToken string) (*CustomClaims, error) {
	return svc.verify(jwtToken, tokenTypeAccess)
}

func (svc *JWTService) VerifyRefreshToken(jwtToken string) (*CustomClaims, error) {
	return svc.verify(jwtToken, tokenTypeRefresh)
}

func (svc *JWTService) verify(jwtToken, wantType string) (*CustomClaims, error) {
	token, err := jwt.ParseWithClaims(jwtToken, &CustomClaims{}, svc.getJWTKey)
	if err != nil {
		var claims *CustomClaims
		if token != nil {
			claims, _ = token.Claims.(*CustomClaims)
		}

		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			expiredAt := time.Now()
			if claims != nil && claims.ExpiresAt != nil {
				expiredAt = claims.ExpiresAt.Time
			}
			return nil, shared.NewTokenExpired(expiredAt)
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return nil, shared.NewTokenInvalidSignature()
		default:
			return nil, shared.NewTokenMalformed(err)
		}
	}

	claims, ok := token.Claims.(*CustomClaims)
	if !ok || !token.Valid {
		return nil, shared.NewTokenMalformed(errors.New("unsupported JWT format"))
	}

	if claims.TokenType != wantType {
		return nil, shared.NewTokenMalformed(fmt.Errorf("expected %s token", wantType))
	}

	if claims.UserID == "" || claims.Email == "" {
		return nil, shared.NewPayloadMalformed()
	}

	return claims, nil
}

func (svc *JWTService) getJWTKey(token *jwt.Token) (interface{}, error) {
	if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
	}

	return []byte(svc.jwtSecretKey), nil
}

func (svc *JWTService) GenerateTokenPair(userID, email, role string) (*dto.LoginResponse, error) {
	accessToken, err := svc.sign(userID, email, role, tokenTypeAccess, svc.AccessTokenDuration)
	if err != nil {
		return nil, err
	}

	refreshToken, err := svc.sign(userID, email, role, tokenTypeRefresh, svc.RefreshTokenDuration)
	if err != nil {
		return nil, err
	}

	return &dto.LoginResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    int64(svc.AccessTokenDuration.Seconds()),
	}, nil
}

func (svc *JWTService) sign(userID, email, role, tokenType string, ttl time.Duration) (string, error) {
	now := time.Now()

	claims := &CustomClaims{
		UserID:    userID,
		Email:     email,
		Role:      role,
		TokenType: tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    "medigo",
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	tokenString, err := token.SignedString([]byte(svc.jwtSecretKey))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %v", err)
	}

	return tokenString, nil
}

func (svc *JWTService) ExtractTokenFromHeader(authHeader string) (string, error) {
	if authHeader == "" {
		return "", shared.NewAuthHeaderMissing()
	}

	if len(authHeader) < 7 || authHeader[:7] != "Bearer " {
		return "", shared.NewAuthHeaderMissing()
	}

	return authHeader[7:], nil
}
