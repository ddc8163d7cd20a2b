package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/medigo-health/medigo_api/dto"
	"github.com/medigo-health/medigo_api/shared"
)

type AuthHandler struct {
	authSvc    AuthServiceInterface
	sessionSvc SessionServiceInterface
}

func NewAuthHandler(authSvc AuthServiceInterface, sessionSvc SessionServiceInterface) *AuthHandler {
	return &AuthHandler{
		authSvc:    authSvc,
		sessionSvc: sessionSvc,
	}
}

// @Summary Register a new user
// @Description Create a new user account
// @Tags auth
// @Accept json
// @Produce json
// @Param registerRequest body dto.RegisterRequest true "Registration details"
// @Success 201 {object} shared.Response{data=dto.RegisterResponse}
// @Router /api/v1/register [post]
func (h *AuthHandler) Register(c *fiber.Ctx) error {
	var req dto.RegisterRequest
	if err := c.BodyParser(&req); err != nil {
		return err
	}

	if err := req.Validate(); err != nil {
		validationResp := dto.CreateValidationErrorResponse(err)
		return c.Status(fiber.StatusBadRequest).JSON(validationResp)
	}

	resp, err := h.authSvc.Register(req)
	if err != nil {
		return err
	}

	return shared.ResponseJSON(c, http.StatusCreated, "User registered successfully", resp)
}

// @Summary Login user
// @Description Authenticate user, open a session and return the token pair
// @Tags auth
// @Accept json
// @Produce json
// @Param loginRequest body dto.LoginRequest true "Login credentials"
// @Success 200 {object} shared.Response{data=dto.LoginResponse}
// @Router /api/v1/login [post]
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req dto.LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return err
	}

	if err := req.Validate(); err != nil {
		validationResp := dto.CreateValidationErrorResponse(err)
		return c.Status(fiber.StatusBadRequest).JSON(validationResp)
	}

	clientIP, _ := c.Locals(shared.ClientIP).(string)
	fingerprint, _ := c.Locals(shared.DeviceFingerprint).(string)
	userAgent := c.Get(fiber.HeaderUserAgent)

	resp, err := h.authSvc.Login(req, clientIP, userAgent, fingerprint)
	if err != nil {
		return err
	}

	return shared.ResponseJSON(c, http.StatusOK, "Login successful", resp)
}

// @Summary Refresh access token
// @Description Rotate the token pair using a refresh token
// @Tags auth
// @Accept json
// @Produce json
// @Param refreshRequest body dto.RefreshTokenRequest true "Refresh token"
// @Success 200 {object} shared.Response{data=dto.LoginResponse}
// @Router /api/v1/refresh [post]
func (h *AuthHandler) RefreshToken(c *fiber.Ctx) error {
	var req dto.RefreshTokenRequest
	if err := c.BodyParser(&req); err != nil {
		return err
	}

	if err := req.Validate(); err != nil {
		validationResp := dto.CreateValidationErrorResponse(err)
		return c.Status(fiber.StatusBadRequest).JSON(validationResp)
	}

	clientIP, _ := c.Locals(shared.ClientIP).(string)
	sessionID := c.Get(shared.SessionHeader)

	resp, err := h.authSvc.RefreshToken(req, sessionID, clientIP)
	if err != nil {
		return err
	}

	return shared.ResponseJSON(c, http.StatusOK, "Token refreshed successfully", resp)
}

// @Summary Logout user
// @Description Revoke the current session
// @Tags auth
// @Accept json
// @Produce json
// @Security Bearer
// @Success 200 {object} shared.Response{data=nil}
// @Router /api/v1/logout [post]
func (h *AuthHandler) Logout(c *fiber.Ctx) error {
	userID, _ := c.Locals(shared.UserID).(string)
	sessionID, _ := c.Locals(shared.SessionID).(string)
	clientIP, _ := c.Locals(shared.ClientIP).(string)

	if err := h.authSvc.Logout(userID, sessionID, clientIP); err != nil {
		return err
	}

	return shared.ResponseJSON(c, http.StatusOK, "Logged out successfully", nil)
}

// @Summary Logout all devices
// @Description Revoke every active session for the current user
// @Tags auth
// @Accept json
// @Produce json
// @Security Bearer
// @Success 200 {object} shared.Response{data=nil}
// @Router /api/v1/logout-all [post]
func (h *AuthHandler) LogoutAll(c *fiber.Ctx) error {
	userID, _ := c.Locals(shared.UserID).(string)
	sessionID, _ := c.Locals(shared.SessionID).(string)
	clientIP, _ := c.Locals(shared.ClientIP).(string)

	if err := h.authSvc.LogoutAllDevices(userID, sessionID, clientIP); err != nil {
		return err
	}

	return shared.ResponseJSON(c, http.StatusOK, "Logged out from all devices", nil)
}

// @Summary Request a password reset
// @Description Issue a short-lived reset code for the given email
// @Tags auth
// @Accept json
// @Produce json
// @Param forgotRequest body dto.ForgotPasswordRequest true "Account email"
// @Success 200 {object} shared.Response{data=nil}
// @Router /api/v1/password/forgot [post]
func (h *AuthHandler) ForgotPassword(c *fiber.Ctx) error {
	var req dto.ForgotPasswordRequest
	if err := c.BodyParser(&req); err != nil {
		return err
	}

	if err := req.Validate(); err != nil {
		validationResp := dto.CreateValidationErrorResponse(err)
		return c.Status(fiber.StatusBadRequest).JSON(validationResp)
	}

	clientIP, _ := c.Locals(shared.ClientIP).(string)
	if err := h.authSvc.ForgotPassword(req.Email, clientIP); err != nil {
		return err
	}

	return shared.ResponseJSON(c, http.StatusOK, "If the account exists, a reset code has been sent", nil)
}

// @Summary Reset password
// @Description Set a new password using a valid reset code
// @Tags auth
// @Accept json
// @Produce json
// @Param resetRequest body dto.ResetPasswordRequest true "Reset code and new password"
// @Success 200 {object} shared.Response{data=nil}
// @Router /api/v1/password/reset [post]
func (h *AuthHandler) ResetPassword(c *fiber.Ctx) error {
	var req dto.ResetPasswordRequest
	if err := c.BodyParser(&req); err != nil {
		return err
	}

	if err := req.Validate(); err != nil {
		validationResp := dto.CreateValidationErrorResponse(err)
		return c.Status(fiber.StatusBadRequest).JSON(validationResp)
	}

	clientIP, _ := c.Locals(shared.ClientIP).(string)
	if err := h.authSvc.ResetPassword(req, clientIP); err != nil {
		return err
	}

	return shared.ResponseJSON(c, http.StatusOK, "Password reset successfully", nil)
}

// @Summary List active sessions
// @Description List the current user's active sessions
// @Tags auth
// @Produce json
// @Security Bearer
// @Success 200 {object} shared.Response{data=dto.SessionListResponse}
// @Router /api/v1/sessions [get]
func (h *AuthHandler) GetSessions(c *fiber.Ctx) error {
	userID, _ := c.Locals(shared.UserID).(string)
	sessionID, _ := c.Locals(shared.SessionID).(string)

	resp, err := h.sessionSvc.ListSessions(userID, sessionID)
	if err != nil {
		return err
	}

	return shared.ResponseOK(c, resp)
}

// @Summary Revoke a session
// @Description Revoke one of the current user's sessions by id
// @Tags auth
// @Produce json
// @Security Bearer
// @Param sessionId path string true "Session ID"
// @Success 200 {object} shared.Response{data=nil}
// @Router /api/v1/sessions/{sessionId} [delete]
func (h *AuthHandler) RevokeSession(c *fiber.Ctx) error {
	userID, _ := c.Locals(shared.UserID).(string)
	sessionID := c.Params("sessionId")

	if err := h.sessionSvc.Revoke(sessionID, userID); err != nil {
		return shared.NewNotFoundError("Session not found")
	}

	return shared.ResponseJSON(c, http.StatusOK, "Session revoked", nil)
}
