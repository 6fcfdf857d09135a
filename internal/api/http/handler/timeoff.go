package handler

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"

	"github.com/fieldserve/booking-core/internal/api/http/middleware"
	"github.com/fieldserve/booking-core/internal/service"
)

type TimeOffHandler struct {
	svc *service.TimeOffService
}

func NewTimeOffHandler(svc *service.TimeOffService) *TimeOffHandler {
	return &TimeOffHandler{svc: svc}
}

func mapTimeOffError(c fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, service.ErrValidation):
		return badRequest(c, err.Error())
	case errors.Is(err, service.ErrNotFound):
		return notFound(c, err.Error())
	case errors.Is(err, service.ErrTimeOffOverlap):
		return conflict(c, err.Error())
	case errors.Is(err, service.ErrInvalidTransition):
		return unprocessable(c, err.Error())
	default:
		return internalError(c)
	}
}

// POST /time-off
func (h *TimeOffHandler) Request(c fiber.Ctx) error {
	businessID, valid := middleware.BusinessIDFromFiber(c)
	if !valid {
		return badRequest(c, "missing tenant context")
	}

	var req service.TimeOffRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "malformed request body")
	}

	to, err := h.svc.Request(c.Context(), businessID, req)
	if err != nil {
		return mapTimeOffError(c, err)
	}
	return created(c, to)
}

// POST /time-off/:id/approve
func (h *TimeOffHandler) Approve(c fiber.Ctx) error {
	businessID, id, err := timeOffScope(c)
	if err != nil {
		return badRequest(c, err.Error())
	}

	to, err := h.svc.Approve(c.Context(), businessID, id)
	if err != nil {
		return mapTimeOffError(c, err)
	}
	return ok(c, to)
}

// POST /time-off/:id/deny
func (h *TimeOffHandler) Deny(c fiber.Ctx) error {
	businessID, id, err := timeOffScope(c)
	if err != nil {
		return badRequest(c, err.Error())
	}

	to, err := h.svc.Deny(c.Context(), businessID, id)
	if err != nil {
		return mapTimeOffError(c, err)
	}
	return ok(c, to)
}

// GET /technicians/:id/time-off?from=&to=
func (h *TimeOffHandler) ListByTechnician(c fiber.Ctx) error {
	businessID, techID, err := timeOffScope(c)
	if err != nil {
		return badRequest(c, err.Error())
	}

	var q struct {
		From string `query:"from"`
		To   string `query:"to"`
	}
	_ = c.Bind().Query(&q)

	from, err := time.Parse(time.RFC3339, q.From)
	if err != nil {
		return badRequest(c, "from must be RFC3339")
	}
	to, err := time.Parse(time.RFC3339, q.To)
	if err != nil {
		return badRequest(c, "to must be RFC3339")
	}

	items, err := h.svc.ListByTechnician(c.Context(), businessID, techID, from, to)
	if err != nil {
		return mapTimeOffError(c, err)
	}
	return ok(c, items)
}

func timeOffScope(c fiber.Ctx) (uuid.UUID, uuid.UUID, error) {
	businessID, valid := middleware.BusinessIDFromFiber(c)
	if !valid {
		return uuid.Nil, uuid.Nil, errors.New("missing tenant context")
	}
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return uuid.Nil, uuid.Nil, errors.New("invalid id")
	}
	return businessID, id, nil
}
