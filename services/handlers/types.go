package handlers

import (
	"github.com/medigo-health/medigo_api/dto"
	"github.com/medigo-health/medigo_api/model"
)

type AuthServiceInterface interface {
	Register(req dto.RegisterRequest) (*dto.RegisterResponse, error)
	Login(req dto.LoginRequest, clientIP, userAgent, fingerprint string) (*dto.LoginResponse, error)
	RefreshToken(req dto.RefreshTokenRequest, sessionID, clientIP string) (*dto.LoginResponse, error)
	Logout(userID, sessionID, clientIP string) error
	LogoutAllDevices(userID, currentSessionID, clientIP string) error
	ForgotPassword(email, clientIP string) error
	ResetPassword(req dto.ResetPasswordRequest, clientIP string) error
}

type SessionServiceInterface interface {
	ListSessions(userID, currentSessionID string) (*dto.SessionListResponse, error)
	Revoke(sessionID, userID string) error
}

type CatalogServiceInterface interface {
	ListMedicines(category, search string) ([]model.Medicine, error)
	GetMedicine(id string) (*model.Medicine, error)
	CreateMedicine(req dto.CreateMedicineRequest) (*model.Medicine, error)
	ListDoctors(specialty string) ([]model.Doctor, error)
	GetDoctor(id string) (*model.Doctor, error)
	CreateDoctor(req dto.CreateDoctorRequest) (*model.Doctor, error)
	CreateOrder(userID string, req dto.CreateOrderRequest) (*model.Order, error)
	GetUserOrders(userID string) ([]model.Order, error)
	CreateAddress(userID string, req dto.AddressRequest) (*model.Address, error)
	GetUserAddresses(userID string) ([]model.Address, error)
	UpdateAddress(userID, addressID string, req dto.AddressRequest) (*model.Address, error)
	DeleteAddress(userID, addressID string) error
}
