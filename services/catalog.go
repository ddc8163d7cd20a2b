package services

import (
	"github.com/alphabatem/common/context"

	"github.com/medigo-health/medigo_api/dto"
	"github.com/medigo-health/medigo_api/model"
	"github.com/medigo-health/medigo_api/shared"
)

// CatalogService is the business layer behind the protected surface:
// medicines, doctors, orders and delivery addresses.
type CatalogService struct {
	context.DefaultService

	sqlSvc *PostgresService
}

const CATALOG_SVC = "catalog_svc"

func (svc CatalogService) Id() string {
	return CATALOG_SVC
}

func (svc *CatalogService) Configure(ctx *context.Context) error {
	return svc.DefaultService.Configure(ctx)
}

func (svc *CatalogService) Start() error {
	svc.sqlSvc = svc.Service(POSTGRES_SVC).(*PostgresService)
	return nil
}

func (svc *CatalogService) ListMedicines(category, search string) ([]model.Medicine, error) {
	return svc.sqlSvc.ListMedicines(category, search)
}

func (svc *CatalogService) GetMedicine(id string) (*model.Medicine, error) {
	return svc.sqlSvc.GetMedicine(id)
}

func (svc *CatalogService) CreateMedicine(req dto.CreateMedicineRequest) (*model.Medicine, error) {
	return svc.sqlSvc.CreateMedicine(&model.Medicine{
		Name:                 req.Name,
		Description:          req.Description,
		Category:             req.Category,
		Manufacturer:         req.Manufacturer,
		PriceCents:           req.PriceCents,
		Stock:                req.Stock,
		RequiresPrescription: req.RequiresPrescription,
		IsActive:             true,
	})
}

func (svc *CatalogService) ListDoctors(specialty string) ([]model.Doctor, error) {
	return svc.sqlSvc.ListDoctors(specialty)
}

func (svc *CatalogService) GetDoctor(id string) (*model.Doctor, error) {
	return svc.sqlSvc.GetDoctor(id)
}

func (svc *CatalogService) CreateDoctor(req dto.CreateDoctorRequest) (*model.Doctor, error) {
	return svc.sqlSvc.CreateDoctor(&model.Doctor{
		Name:            req.Name,
		Specialty:       req.Specialty,
		LicenseNumber:   req.LicenseNumber,
		ConsultFeeCents: req.ConsultFeeCents,
		IsAvailable:     true,
	})
}

// CreateOrder prices each line from the current catalog rather than the
// client payload; prescription-only items are rejected outright until a
// prescription flow exists.
func (svc *CatalogService) CreateOrder(userID string, req dto.CreateOrderRequest) (*model.Order, error) {
	order := &model.Order{
		UserID:    userID,
		AddressID: req.AddressID,
		Status:    "pending",
	}

	var total int64
	for _, item := range req.Items {
		medicine, err := svc.sqlSvc.GetMedicine(item.MedicineID)
		if err != nil {
			return nil, shared.NewNotFoundError("Medicine not found")
		}
		if medicine.RequiresPrescription {
			return nil, shared.NewBadRequestError(nil, "Medicine requires a prescription")
		}
		if medicine.Stock < item.Quantity {
			return nil, shared.NewBadRequestError(nil, "Insufficient stock for "+medicine.Name)
		}

		lineTotal := medicine.PriceCents * int64(item.Quantity)
		total += lineTotal
		order.Items = append(order.Items, model.OrderItem{
			MedicineID: medicine.ID,
			Quantity:   item.Quantity,
			PriceCents: medicine.PriceCents,
		})
	}

	order.TotalCents = total
	return svc.sqlSvc.CreateOrder(order)
}

func (svc *CatalogService) GetUserOrders(userID string) ([]model.Order, error) {
	return svc.sqlSvc.GetUserOrders(userID)
}

func (svc *CatalogService) CreateAddress(userID string, req dto.AddressRequest) (*model.Address, error) {
	return svc.sqlSvc.CreateAddress(&model.Address{
		UserID:    userID,
		Label:     req.Label,
		Line1:     req.Line1,
		Line2:     req.Line2,
		City:      req.City,
		Province:  req.Province,
		Phone:     req.Phone,
		IsDefault: req.IsDefault,
	})
}

func (svc *CatalogService) GetUserAddresses(userID string) ([]model.Address, error) {
	return svc.sqlSvc.GetUserAddresses(userID)
}

func (svc *CatalogService) UpdateAddress(userID, addressID string, req dto.AddressRequest) (*model.Address, error) {
	address := &model.Address{
		ID:        addressID,
		UserID:    userID,
		Label:     req.Label,
		Line1:     req.Line1,
		Line2:     req.Line2,
		City:      req.City,
		Province:  req.Province,
		Phone:     req.Phone,
		IsDefault: req.IsDefault,
	}
	if err := svc.sqlSvc.UpdateAddress(address); err != nil {
		return nil, shared.NewNotFoundError("Address not found")
	}
	return address, nil
}

func (svc *CatalogService) DeleteAddress(userID, addressID string) error {
	if err := svc.sqlSvc.DeleteAddress(addressID, userID); err != nil {
		return shared.NewNotFoundError("Address not found")
	}
	return nil
}
