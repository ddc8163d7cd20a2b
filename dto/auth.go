package dto

import "time"

type RegisterRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Name     string `json:"name" validate:"required,min=2,max=100"`
	Password string `json:"password" validate:"required,strong_password"`
}

func (r RegisterRequest) Validate() error {
	return validate.Struct(r)
}

type RegisterResponse struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

func (r LoginRequest) Validate() error {
	return validate.Struct(r)
}

type LoginResponse struct {
	AccessToken  string       `json:"access_token"`
	RefreshToken string       `json:"refresh_token"`
	ExpiresIn    int64        `json:"expires_in"`
	SessionID    string       `json:"session_id"`
	User         IdentityInfo `json:"user"`
}

type IdentityInfo struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
	Role  string `json:"role"`
}

type RefreshTokenRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

func (r RefreshTokenRequest) Validate() error {
	return validate.Struct(r)
}

type ForgotPasswordRequest struct {
	Email string `json:"email" validate:"required,email"`
}

func (r ForgotPasswordRequest) Validate() error {
	return validate.Struct(r)
}

type ResetPasswordRequest struct {
	Email       string `json:"email" validate:"required,email"`
	Code        string `json:"code" validate:"required,len=6"`
	NewPassword string `json:"new_password" validate:"required,strong_password"`
}

func (r ResetPasswordRequest) Validate() error {
	return validate.Struct(r)
}

type UserSessionInfo struct {
	SessionID    string    `json:"session_id"`
	IPAddress    string    `json:"ip_address"`
	UserAgent    string    `json:"user_agent"`
	DeviceLabel  string    `json:"device_label"`
	LastActivity time.Time `json:"last_activity"`
	ExpiresAt    time.Time `json:"expires_at"`
	Current      bool      `json:"current"`
}

type SessionListResponse struct {
	Sessions []UserSessionInfo `json:"sessions"`
}
