package dto

type CreateMedicineRequest struct {
	Name                 string `json:"name" validate:"required,min=2,max=255"`
	Description          string `json:"description"`
	Category             string `json:"category" validate:"max=100"`
	Manufacturer         string `json:"manufacturer" validate:"max=255"`
	PriceCents           int64  `json:"price_cents" validate:"required,gt=0"`
	Stock                int    `json:"stock" validate:"min=0"`
	RequiresPrescription bool   `json:"requires_prescription"`
}

func (r CreateMedicineRequest) Validate() error {
	return validate.Struct(r)
}

type CreateDoctorRequest struct {
	Name            string `json:"name" validate:"required,min=2,max=255"`
	Specialty       string `json:"specialty" validate:"required,max=100"`
	LicenseNumber   string `json:"license_number" validate:"required,max=64"`
	ConsultFeeCents int64  `json:"consult_fee_cents" validate:"required,gt=0"`
}

func (r CreateDoctorRequest) Validate() error {
	return validate.Struct(r)
}

type OrderItemRequest struct {
	MedicineID string `json:"medicine_id" validate:"required"`
	Quantity   int    `json:"quantity" validate:"required,gt=0"`
}

type CreateOrderRequest struct {
	AddressID string             `json:"address_id" validate:"required"`
	Items     []OrderItemRequest `json:"items" validate:"required,min=1,dive"`
}

func (r CreateOrderRequest) Validate() error {
	return validate.Struct(r)
}

type AddressRequest struct {
	Label     string `json:"label" validate:"max=64"`
	Line1     string `json:"line1" validate:"required,max=255"`
	Line2     string `json:"line2" validate:"max=255"`
	City      string `json:"city" validate:"required,max=100"`
	Province  string `json:"province" validate:"max=100"`
	Phone     string `json:"phone" validate:"max=32"`
	IsDefault bool   `json:"is_default"`
}

func (r AddressRequest) Validate() error {
	return validate.Struct(r)
}
