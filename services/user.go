package services

import (
	stdContext "context"
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	"github.com/alphabatem/common/context"
	log "github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"github.com/medigo-health/medigo_api/dto"
	"github.com/medigo-health/medigo_api/model"
	"github.com/medigo-health/medigo_api/shared"
)

// AuthService owns the credential flows in front of the gateway: register,
// login (the source of the login rate-limit scope's failed attempts),
// refresh, logout and the password reset loop.
type AuthService struct {
	context.DefaultService

	sqlSvc     *PostgresService
	redisSvc   *RedisService
	jwtSvc     *JWTService
	sessionSvc *SessionService
	auditSvc   *AuditService
	emailSvc   *EmailService
}

const AUTH_SVC = "auth_svc"

const resetCodeTTL = 10 * time.Minute

func (svc AuthService) Id() string {
	return AUTH_SVC
}

func (svc *AuthService) Configure(ctx *context.Context) error {
	return svc.DefaultService.Configure(ctx)
}

func (svc *AuthService) Start() error {
	svc.sqlSvc = svc.Service(POSTGRES_SVC).(*PostgresService)
	svc.redisSvc = svc.Service(REDIS_SVC).(*RedisService)
	svc.jwtSvc = svc.Service(JWT_SVC).(*JWTService)
	svc.sessionSvc = svc.Service(SESSION_SVC).(*SessionService)
	svc.auditSvc = svc.Service(AUDIT_SVC).(*AuditService)
	svc.emailSvc = svc.Service(EMAIL_SVC).(*EmailService)
	return nil
}

func (svc *AuthService) Register(req dto.RegisterRequest) (*dto.RegisterResponse, error) {
	existing, err := svc.sqlSvc.GetUserByEmail(req.Email)
	if err != nil {
		return nil, shared.NewStoreUnavailable(err)
	}
	if existing != nil {
		return nil, shared.NewConflictError("Email already registered")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	user, err := svc.sqlSvc.CreateUser(&model.User{
		Email:        req.Email,
		Name:         req.Name,
		PasswordHash: string(hash),
		Role:         shared.RoleUser,
		IsActive:     true,
	})
	if err != nil {
		return nil, err
	}

	svc.auditSvc.Log("user_registered", user.ID, "", map[string]interface{}{"email": user.Email})

	return &dto.RegisterResponse{UserID: user.ID, Email: user.Email}, nil
}

func (svc *AuthService) Login(req dto.LoginRequest, clientIP, userAgent, fingerprint string) (*dto.LoginResponse, error) {
	user, err := svc.sqlSvc.GetUserByEmail(req.Email)
	if err != nil {
		return nil, shared.NewStoreUnavailable(err)
	}
	if user == nil || !user.IsActive {
		svc.auditSvc.Log("login_failed", "", clientIP, map[string]interface{}{"email": req.Email})
		return nil, shared.NewInvalidCredentials()
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		svc.auditSvc.Log("login_failed", user.ID, clientIP, map[string]interface{}{"email": req.Email})
		return nil, shared.NewInvalidCredentials()
	}

	session, err := svc.sessionSvc.CreateSession(user.ID, fingerprint, clientIP, userAgent)
	if err != nil {
		return nil, shared.NewStoreUnavailable(err)
	}

	resp, err := svc.jwtSvc.GenerateTokenPair(user.ID, user.Email, user.Role)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	if err := svc.sqlSvc.UpdateUserLastLogin(user.ID, now); err != nil {
		log.WithField("user_id", user.ID).Debug("Failed to update last login")
	}

	svc.auditSvc.Log("login_success", user.ID, clientIP, map[string]interface{}{
		"session_id":  session.ID,
		"fingerprint": fingerprint,
	})

	resp.SessionID = session.ID
	resp.User = dto.IdentityInfo{ID: user.ID, Email: user.Email, Name: user.Name, Role: user.Role}
	return resp, nil
}

// RefreshToken rotates the token pair. The session must still be live: a
// revoked session cannot mint fresh credentials with an old refresh token.
func (svc *AuthService) RefreshToken(req dto.RefreshTokenRequest, sessionID, clientIP string) (*dto.LoginResponse, error) {
	claims, err := svc.jwtSvc.VerifyRefreshToken(req.RefreshToken)
	if err != nil {
		svc.auditSvc.Log("refresh_failed", "", clientIP, nil)
		return nil, shared.NewRefreshFailed(err)
	}

	user, err := svc.sqlSvc.GetUserByIDAndEmail(claims.UserID, claims.Email)
	if err != nil {
		return nil, shared.NewStoreUnavailable(err)
	}
	if user == nil {
		svc.auditSvc.Log("refresh_failed", claims.UserID, clientIP, nil)
		return nil, shared.NewRefreshFailed(fmt.Errorf("user not found"))
	}

	if sessionID != "" && user.Role != shared.RoleAdmin {
		session, err := svc.sqlSvc.GetActiveSession(sessionID, user.ID)
		if err != nil {
			return nil, shared.NewStoreUnavailable(err)
		}
		if session == nil {
			svc.auditSvc.Log("refresh_failed", user.ID, clientIP, map[string]interface{}{"session_id": sessionID})
			return nil, shared.NewRefreshFailed(fmt.Errorf("session revoked"))
		}
	}

	resp, err := svc.jwtSvc.GenerateTokenPair(user.ID, user.Email, user.Role)
	if err != nil {
		return nil, err
	}

	svc.auditSvc.Log("token_refreshed", user.ID, clientIP, nil)

	resp.SessionID = sessionID
	resp.User = dto.IdentityInfo{ID: user.ID, Email: user.Email, Name: user.Name, Role: user.Role}
	return resp, nil
}

func (svc *AuthService) Logout(userID, sessionID, clientIP string) error {
	if err := svc.sessionSvc.Revoke(sessionID, userID); err != nil {
		return shared.NewSessionInvalid()
	}

	svc.auditSvc.Log("logout", userID, clientIP, map[string]interface{}{"session_id": sessionID})
	return nil
}

func (svc *AuthService) LogoutAllDevices(userID, currentSessionID, clientIP string) error {
	if err := svc.sessionSvc.RevokeAll(userID, ""); err != nil {
		return shared.NewStoreUnavailable(err)
	}

	if err := svc.redisSvc.DeleteIdentity(stdContext.Background(), userID); err != nil {
		log.WithField("user_id", userID).Debug("Failed to evict identity cache entry")
	}

	svc.auditSvc.Log("logout_all", userID, clientIP, map[string]interface{}{"session_id": currentSessionID})
	return nil
}

// ForgotPassword issues a short-lived numeric code. Response is identical
// whether or not the account exists.
func (svc *AuthService) ForgotPassword(email, clientIP string) error {
	user, err := svc.sqlSvc.GetUserByEmail(email)
	if err != nil {
		return shared.NewStoreUnavailable(err)
	}
	if user == nil {
		return nil
	}

	code, err := generateResetCode()
	if err != nil {
		return err
	}

	key := "pwreset:" + email
	if err := svc.redisSvc.Set(stdContext.Background(), key, code, resetCodeTTL); err != nil {
		return shared.NewStoreUnavailable(err)
	}

	// A delivery failure is logged but never surfaced: the response must
	// not reveal whether the account exists.
	if err := svc.emailSvc.SendPasswordResetCode(user.Email, user.Name, code, int(resetCodeTTL.Minutes())); err != nil {
		log.WithField("error", err.Error()).Warn("Failed to deliver password reset email")
	}

	svc.auditSvc.Log("password_reset_requested", user.ID, clientIP, nil)
	return nil
}

func (svc *AuthService) ResetPassword(req dto.ResetPasswordRequest, clientIP string) error {
	key := "pwreset:" + req.Email
	stored, err := svc.redisSvc.Get(stdContext.Background(), key)
	if err != nil {
		return shared.NewStoreUnavailable(err)
	}
	if stored == "" || stored != req.Code {
		svc.auditSvc.Log("password_reset_failed", "", clientIP, map[string]interface{}{"email": req.Email})
		return shared.NewBadRequestError(nil, "Invalid or expired reset code")
	}

	user, err := svc.sqlSvc.GetUserByEmail(req.Email)
	if err != nil {
		return shared.NewStoreUnavailable(err)
	}
	if user == nil {
		return shared.NewBadRequestError(nil, "Invalid or expired reset code")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	if err := svc.sqlSvc.UpdateUserPassword(user.ID, string(hash)); err != nil {
		return shared.NewStoreUnavailable(err)
	}

	_ = svc.redisSvc.Delete(stdContext.Background(), key)

	// All sessions drop on a password reset.
	if err := svc.sessionSvc.RevokeAll(user.ID, ""); err != nil {
		log.WithField("user_id", user.ID).Warn("Failed to revoke sessions after password reset")
	}

	svc.auditSvc.Log("password_reset", user.ID, clientIP, nil)
	return nil
}

func generateResetCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}
