package handler

import (
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"

	"github.com/fieldserve/booking-core/internal/api/http/middleware"
	"github.com/fieldserve/booking-core/internal/service"
)

type AvailabilityHandler struct {
	engine *service.AvailabilityService
	cache  *service.AvailabilityCacheService
}

func NewAvailabilityHandler(engine *service.AvailabilityService, cache *service.AvailabilityCacheService) *AvailabilityHandler {
	return &AvailabilityHandler{engine: engine, cache: cache}
}

// GET /availability?service_id=&date=
// Расклад дня по слотам, через кэш.
func (h *AvailabilityHandler) Day(c fiber.Ctx) error {
	businessID, valid := middleware.BusinessIDFromFiber(c)
	if !valid {
		return badRequest(c, "missing tenant context")
	}

	var q struct {
		ServiceID string `query:"service_id"`
		Date      string `query:"date"`
	}
	_ = c.Bind().Query(&q)

	serviceID, err := uuid.Parse(q.ServiceID)
	if err != nil {
		return badRequest(c, "invalid service_id")
	}
	date, err := time.Parse("2006-01-02", q.Date)
	if err != nil {
		return badRequest(c, "date must be YYYY-MM-DD")
	}

	day, err := h.cache.GetOrCompute(c.Context(), businessID, serviceID, date)
	if err != nil {
		return mapBookingError(c, err)
	}
	return ok(c, day)
}

// GET /availability/technicians?service_id=&starts_at=
// Свободные квалифицированные техники на конкретное время, мимо кэша.
func (h *AvailabilityHandler) Technicians(c fiber.Ctx) error {
	businessID, valid := middleware.BusinessIDFromFiber(c)
	if !valid {
		return badRequest(c, "missing tenant context")
	}

	var q struct {
		ServiceID string `query:"service_id"`
		StartsAt  string `query:"starts_at"`
	}
	_ = c.Bind().Query(&q)

	serviceID, err := uuid.Parse(q.ServiceID)
	if err != nil {
		return badRequest(c, "invalid service_id")
	}
	startsAt, err := time.Parse(time.RFC3339, q.StartsAt)
	if err != nil {
		return badRequest(c, "starts_at must be RFC3339")
	}

	ids, err := h.engine.FindAvailableTechniciansAt(c.Context(), businessID, serviceID, startsAt)
	if err != nil {
		return mapBookingError(c, err)
	}
	return ok(c, fiber.Map{"technician_ids": ids})
}
