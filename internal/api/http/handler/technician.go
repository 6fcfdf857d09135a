package handler

import (
	"errors"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"

	"github.com/fieldserve/booking-core/internal/api/http/middleware"
	"github.com/fieldserve/booking-core/internal/model"
	"github.com/fieldserve/booking-core/internal/service"
)

type TechnicianHandler struct {
	svc *service.TechnicianService
}

func NewTechnicianHandler(svc *service.TechnicianService) *TechnicianHandler {
	return &TechnicianHandler{svc: svc}
}

func mapTechnicianError(c fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, service.ErrValidation):
		return badRequest(c, err.Error())
	case errors.Is(err, service.ErrNotFound):
		return notFound(c, err.Error())
	default:
		return internalError(c)
	}
}

// POST /technicians
func (h *TechnicianHandler) Create(c fiber.Ctx) error {
	businessID, valid := middleware.BusinessIDFromFiber(c)
	if !valid {
		return badRequest(c, "missing tenant context")
	}

	var req service.CreateTechnicianRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "malformed request body")
	}

	t, err := h.svc.Create(c.Context(), businessID, req)
	if err != nil {
		return mapTechnicianError(c, err)
	}
	return created(c, t)
}

// GET /technicians/:id
func (h *TechnicianHandler) Get(c fiber.Ctx) error {
	businessID, id, err := technicianScope(c)
	if err != nil {
		return badRequest(c, err.Error())
	}

	t, err := h.svc.GetByID(c.Context(), businessID, id)
	if err != nil {
		return mapTechnicianError(c, err)
	}
	return ok(c, t)
}

// GET /technicians?active=&page=&per_page=
func (h *TechnicianHandler) List(c fiber.Ctx) error {
	businessID, valid := middleware.BusinessIDFromFiber(c)
	if !valid {
		return badRequest(c, "missing tenant context")
	}

	var q struct {
		Active  bool `query:"active"`
		Page    int  `query:"page"`
		PerPage int  `query:"per_page"`
	}
	_ = c.Bind().Query(&q)

	page, err := h.svc.List(c.Context(), businessID, q.Active, q.Page, q.PerPage)
	if err != nil {
		return mapTechnicianError(c, err)
	}
	return ok(c, page)
}

// PATCH /technicians/:id/active
func (h *TechnicianHandler) SetActive(c fiber.Ctx) error {
	businessID, id, err := technicianScope(c)
	if err != nil {
		return badRequest(c, err.Error())
	}

	var body struct {
		Active bool `json:"active"`
	}
	if err := c.Bind().JSON(&body); err != nil {
		return badRequest(c, "malformed request body")
	}

	if err := h.svc.SetActive(c.Context(), businessID, id, body.Active); err != nil {
		return mapTechnicianError(c, err)
	}
	return noContent(c)
}

// POST /technicians/:id/skills
func (h *TechnicianHandler) AssignSkill(c fiber.Ctx) error {
	businessID, id, err := technicianScope(c)
	if err != nil {
		return badRequest(c, err.Error())
	}

	var req service.AssignSkillRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "malformed request body")
	}

	if err := h.svc.AssignSkill(c.Context(), businessID, id, req); err != nil {
		return mapTechnicianError(c, err)
	}
	return noContent(c)
}

// PUT /business-hours
func (h *TechnicianHandler) UpsertHours(c fiber.Ctx) error {
	businessID, valid := middleware.BusinessIDFromFiber(c)
	if !valid {
		return badRequest(c, "missing tenant context")
	}

	var bh model.BusinessHours
	if err := c.Bind().JSON(&bh); err != nil {
		return badRequest(c, "malformed request body")
	}

	saved, err := h.svc.UpsertHours(c.Context(), businessID, bh)
	if err != nil {
		return mapTechnicianError(c, err)
	}
	return ok(c, saved)
}

// GET /business-hours?location_id=
func (h *TechnicianHandler) ListHours(c fiber.Ctx) error {
	businessID, valid := middleware.BusinessIDFromFiber(c)
	if !valid {
		return badRequest(c, "missing tenant context")
	}

	locationID, err := uuid.Parse(c.Query("location_id"))
	if err != nil {
		return badRequest(c, "invalid location_id")
	}

	items, err := h.svc.ListHours(c.Context(), businessID, locationID)
	if err != nil {
		return mapTechnicianError(c, err)
	}
	return ok(c, items)
}

func technicianScope(c fiber.Ctx) (uuid.UUID, uuid.UUID, error) {
	businessID, valid := middleware.BusinessIDFromFiber(c)
	if !valid {
		return uuid.Nil, uuid.Nil, errors.New("missing tenant context")
	}
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return uuid.Nil, uuid.Nil, errors.New("invalid technician id")
	}
	return businessID, id, nil
}
