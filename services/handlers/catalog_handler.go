package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/medigo-health/medigo_api/dto"
	"github.com/medigo-health/medigo_api/shared"
)

type CatalogHandler struct {
	catalogSvc CatalogServiceInterface
}

func NewCatalogHandler(catalogSvc CatalogServiceInterface) *CatalogHandler {
	return &CatalogHandler{catalogSvc: catalogSvc}
}

// @Summary List medicines
// @Tags catalog
// @Produce json
// @Security Bearer
// @Param category query string false "Filter by category"
// @Param search query string false "Name search"
// @Success 200 {object} shared.Response{data=[]model.Medicine}
// @Router /api/v1/medicines [get]
func (h *CatalogHandler) ListMedicines(c *fiber.Ctx) error {
	medicines, err := h.catalogSvc.ListMedicines(c.Query("category"), c.Query("search"))
	if err != nil {
		return err
	}
	return shared.ResponseOK(c, medicines)
}

// @Summary Get medicine details
// @Tags catalog
// @Produce json
// @Security Bearer
// @Param id path string true "Medicine ID"
// @Success 200 {object} shared.Response{data=model.Medicine}
// @Router /api/v1/medicines/{id} [get]
func (h *CatalogHandler) GetMedicine(c *fiber.Ctx) error {
	medicine, err := h.catalogSvc.GetMedicine(c.Params("id"))
	if err != nil {
		return shared.NewNotFoundError("Medicine not found")
	}
	return shared.ResponseOK(c, medicine)
}

// @Summary Create a medicine
// @Tags admin
// @Accept json
// @Produce json
// @Security Bearer
// @Param medicineRequest body dto.CreateMedicineRequest true "Medicine details"
// @Success 201 {object} shared.Response{data=model.Medicine}
// @Router /api/v1/admin/medicines [post]
func (h *CatalogHandler) CreateMedicine(c *fiber.Ctx) error {
	var req dto.CreateMedicineRequest
	if err := c.BodyParser(&req); err != nil {
		return err
	}

	if err := req.Validate(); err != nil {
		validationResp := dto.CreateValidationErrorResponse(err)
		return c.Status(fiber.StatusBadRequest).JSON(validationResp)
	}

	medicine, err := h.catalogSvc.CreateMedicine(req)
	if err != nil {
		return err
	}
	return shared.ResponseCreated(c, medicine)
}

// @Summary List doctors
// @Tags catalog
// @Produce json
// @Security Bearer
// @Param specialty query string false "Filter by specialty"
// @Success 200 {object} shared.Response{data=[]model.Doctor}
// @Router /api/v1/doctors [get]
func (h *CatalogHandler) ListDoctors(c *fiber.Ctx) error {
	doctors, err := h.catalogSvc.ListDoctors(c.Query("specialty"))
	if err != nil {
		return err
	}
	return shared.ResponseOK(c, doctors)
}

// @Summary Get doctor details
// @Tags catalog
// @Produce json
// @Security Bearer
// @Param id path string true "Doctor ID"
// @Success 200 {object} shared.Response{data=model.Doctor}
// @Router /api/v1/doctors/{id} [get]
func (h *CatalogHandler) GetDoctor(c *fiber.Ctx) error {
	doctor, err := h.catalogSvc.GetDoctor(c.Params("id"))
	if err != nil {
		return shared.NewNotFoundError("Doctor not found")
	}
	return shared.ResponseOK(c, doctor)
}

// @Summary Create a doctor
// @Tags admin
// @Accept json
// @Produce json
// @Security Bearer
// @Param doctorRequest body dto.CreateDoctorRequest true "Doctor details"
// @Success 201 {object} shared.Response{data=model.Doctor}
// @Router /api/v1/admin/doctors [post]
func (h *CatalogHandler) CreateDoctor(c *fiber.Ctx) error {
	var req dto.CreateDoctorRequest
	if err := c.BodyParser(&req); err != nil {
		return err
	}

	if err := req.Validate(); err != nil {
		validationResp := dto.CreateValidationErrorResponse(err)
		return c.Status(fiber.StatusBadRequest).JSON(validationResp)
	}

	doctor, err := h.catalogSvc.CreateDoctor(req)
	if err != nil {
		return err
	}
	return shared.ResponseCreated(c, doctor)
}

// @Summary Place an order
// @Tags orders
// @Accept json
// @Produce json
// @Security Bearer
// @Param orderRequest body dto.CreateOrderRequest true "Order details"
// @Success 201 {object} shared.Response{data=model.Order}
// @Router /api/v1/orders [post]
func (h *CatalogHandler) CreateOrder(c *fiber.Ctx) error {
	var req dto.CreateOrderRequest
	if err := c.BodyParser(&req); err != nil {
		return err
	}

	if err := req.Validate(); err != nil {
		validationResp := dto.CreateValidationErrorResponse(err)
		return c.Status(fiber.StatusBadRequest).JSON(validationResp)
	}

	userID, _ := c.Locals(shared.UserID).(string)
	order, err := h.catalogSvc.CreateOrder(userID, req)
	if err != nil {
		return err
	}
	return shared.ResponseCreated(c, order)
}

// @Summary List the current user's orders
// @Tags orders
// @Produce json
// @Security Bearer
// @Success 200 {object} shared.Response{data=[]model.Order}
// @Router /api/v1/orders [get]
func (h *CatalogHandler) GetOrders(c *fiber.Ctx) error {
	userID, _ := c.Locals(shared.UserID).(string)
	orders, err := h.catalogSvc.GetUserOrders(userID)
	if err != nil {
		return err
	}
	return shared.ResponseOK(c, orders)
}

// @Summary Add a delivery address
// @Tags addresses
// @Accept json
// @Produce json
// @Security Bearer
// @Param addressRequest body dto.AddressRequest true "Address details"
// @Success 201 {object} shared.Response{data=model.Address}
// @Router /api/v1/addresses [post]
func (h *CatalogHandler) CreateAddress(c *fiber.Ctx) error {
	var req dto.AddressRequest
	if err := c.BodyParser(&req); err != nil {
		return err
	}

	if err := req.Validate(); err != nil {
		validationResp := dto.CreateValidationErrorResponse(err)
		return c.Status(fiber.StatusBadRequest).JSON(validationResp)
	}

	userID, _ := c.Locals(shared.UserID).(string)
	address, err := h.catalogSvc.CreateAddress(userID, req)
	if err != nil {
		return err
	}
	return shared.ResponseCreated(c, address)
}

// @Summary List the current user's addresses
// @Tags addresses
// @Produce json
// @Security Bearer
// @Success 200 {object} shared.Response{data=[]model.Address}
// @Router /api/v1/addresses [get]
func (h *CatalogHandler) GetAddresses(c *fiber.Ctx) error {
	userID, _ := c.Locals(shared.UserID).(string)
	addresses, err := h.catalogSvc.GetUserAddresses(userID)
	if err != nil {
		return err
	}
	return shared.ResponseOK(c, addresses)
}

// @Summary Update an address
// @Tags addresses
// @Accept json
// @Produce json
// @Security Bearer
// @Param id path string true "Address ID"
// @Param addressRequest body dto.AddressRequest true "Address details"
// @Success 200 {object} shared.Response{data=model.Address}
// @Router /api/v1/addresses/{id} [put]
func (h *CatalogHandler) UpdateAddress(c *fiber.Ctx) error {
	var req dto.AddressRequest
	if err := c.BodyParser(&req); err != nil {
		return err
	}

	if err := req.Validate(); err != nil {
		validationResp := dto.CreateValidationErrorResponse(err)
		return c.Status(fiber.StatusBadRequest).JSON(validationResp)
	}

	userID, _ := c.Locals(shared.UserID).(string)
	address, err := h.catalogSvc.UpdateAddress(userID, c.Params("id"), req)
	if err != nil {
		return err
	}
	return shared.ResponseOK(c, address)
}

// @Summary Delete an address
// @Tags addresses
// @Produce json
// @Security Bearer
// @Param id path string true "Address ID"
// @Success 200 {object} shared.Response{data=nil}
// @Router /api/v1/addresses/{id} [delete]
func (h *CatalogHandler) DeleteAddress(c *fiber.Ctx) error {
	userID, _ := c.Locals(shared.UserID).(string)
	if err := h.catalogSvc.DeleteAddress(userID, c.Params("id")); err != nil {
		return err
	}
	return shared.ResponseOK(c, nil)
}
