package handler

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"

	"github.com/fieldserve/booking-core/internal/api/http/middleware"
	"github.com/fieldserve/booking-core/internal/model"
	"github.com/fieldserve/booking-core/internal/repository"
	"github.com/fieldserve/booking-core/internal/service"
)

const headerIdempotencyKey = "Idempotency-Key"

type BookingHandler struct {
	svc *service.BookingService
}

func NewBookingHandler(svc *service.BookingService) *BookingHandler {
	return &BookingHandler{svc: svc}
}

func mapBookingError(c fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, service.ErrValidation):
		return badRequest(c, err.Error())
	case errors.Is(err, service.ErrNotFound):
		return notFound(c, err.Error())
	case errors.Is(err, service.ErrSlotUnavailable):
		return conflict(c, err.Error())
	case errors.Is(err, service.ErrIdempotencyConflict):
		return conflict(c, err.Error())
	case errors.Is(err, service.ErrInvalidTransition):
		return unprocessable(c, err.Error())
	default:
		return internalError(c)
	}
}

// POST /bookings
func (h *BookingHandler) Create(c fiber.Ctx) error {
	businessID, valid := middleware.BusinessIDFromFiber(c)
	if !valid {
		return badRequest(c, "missing tenant context")
	}

	key := c.Get(headerIdempotencyKey)
	if key == "" {
		return badRequest(c, "Idempotency-Key header is required")
	}

	var req service.CreateBookingRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "malformed request body")
	}
	req.IdempotencyKey = key

	b, err := h.svc.Create(c.Context(), businessID, req)
	if err != nil {
		return mapBookingError(c, err)
	}
	return created(c, b)
}

// GET /bookings/:id
func (h *BookingHandler) Get(c fiber.Ctx) error {
	businessID, id, err := bookingScope(c)
	if err != nil {
		return badRequest(c, err.Error())
	}

	b, err := h.svc.GetByID(c.Context(), businessID, id)
	if err != nil {
		return mapBookingError(c, err)
	}
	return ok(c, b)
}

// GET /bookings
func (h *BookingHandler) List(c fiber.Ctx) error {
	businessID, valid := middleware.BusinessIDFromFiber(c)
	if !valid {
		return badRequest(c, "missing tenant context")
	}

	var q struct {
		TechnicianID string `query:"technician_id"`
		Status       string `query:"status"`
		From         string `query:"from"`
		To           string `query:"to"`
		Page         int    `query:"page"`
		PerPage      int    `query:"per_page"`
	}
	_ = c.Bind().Query(&q)

	var f repository.BookingFilter
	if q.TechnicianID != "" {
		id, err := uuid.Parse(q.TechnicianID)
		if err != nil {
			return badRequest(c, "invalid technician_id")
		}
		f.TechnicianID = &id
	}
	if q.Status != "" {
		status := model.BookingStatus(q.Status)
		f.Status = &status
	}
	if q.From != "" {
		if t, err := time.Parse(time.RFC3339, q.From); err == nil {
			f.From = &t
		}
	}
	if q.To != "" {
		if t, err := time.Parse(time.RFC3339, q.To); err == nil {
			f.To = &t
		}
	}

	page, err := h.svc.List(c.Context(), businessID, f, q.Page, q.PerPage)
	if err != nil {
		return mapBookingError(c, err)
	}
	return ok(c, page)
}

// GET /bookings/:id/events
func (h *BookingHandler) Events(c fiber.Ctx) error {
	businessID, id, err := bookingScope(c)
	if err != nil {
		return badRequest(c, err.Error())
	}

	events, err := h.svc.ListEvents(c.Context(), businessID, id)
	if err != nil {
		return mapBookingError(c, err)
	}
	return ok(c, events)
}

// POST /bookings/:id/confirm
func (h *BookingHandler) Confirm(c fiber.Ctx) error {
	businessID, id, err := bookingScope(c)
	if err != nil {
		return badRequest(c, err.Error())
	}

	var body struct {
		ScheduledAt  time.Time `json:"scheduled_at"`
		TechnicianID *string   `json:"technician_id,omitempty"`
	}
	if err := c.Bind().JSON(&body); err != nil {
		return badRequest(c, "malformed request body")
	}
	if body.ScheduledAt.IsZero() {
		return badRequest(c, "scheduled_at is required")
	}

	var techID *uuid.UUID
	if body.TechnicianID != nil {
		parsed, err := uuid.Parse(*body.TechnicianID)
		if err != nil {
			return badRequest(c, "invalid technician_id")
		}
		techID = &parsed
	}

	b, err := h.svc.Confirm(c.Context(), businessID, id, body.ScheduledAt, techID)
	if err != nil {
		return mapBookingError(c, err)
	}
	return ok(c, b)
}

// POST /bookings/:id/start
func (h *BookingHandler) Start(c fiber.Ctx) error {
	businessID, id, err := bookingScope(c)
	if err != nil {
		return badRequest(c, err.Error())
	}

	b, err := h.svc.Start(c.Context(), businessID, id)
	if err != nil {
		return mapBookingError(c, err)
	}
	return ok(c, b)
}

// POST /bookings/:id/complete
func (h *BookingHandler) Complete(c fiber.Ctx) error {
	businessID, id, err := bookingScope(c)
	if err != nil {
		return badRequest(c, err.Error())
	}

	var body struct {
		CompletedAt *time.Time `json:"completed_at,omitempty"`
	}
	_ = c.Bind().JSON(&body)

	completedAt := time.Now()
	if body.CompletedAt != nil {
		completedAt = *body.CompletedAt
	}

	b, err := h.svc.Complete(c.Context(), businessID, id, completedAt)
	if err != nil {
		return mapBookingError(c, err)
	}
	return ok(c, b)
}

// POST /bookings/:id/cancel
func (h *BookingHandler) Cancel(c fiber.Ctx) error {
	businessID, id, err := bookingScope(c)
	if err != nil {
		return badRequest(c, err.Error())
	}

	var body struct {
		Reason string `json:"reason,omitempty"`
	}
	_ = c.Bind().JSON(&body)

	b, err := h.svc.Cancel(c.Context(), businessID, id, body.Reason)
	if err != nil {
		return mapBookingError(c, err)
	}
	return ok(c, b)
}

// POST /bookings/:id/no-show
func (h *BookingHandler) NoShow(c fiber.Ctx) error {
	businessID, id, err := bookingScope(c)
	if err != nil {
		return badRequest(c, err.Error())
	}

	b, err := h.svc.NoShow(c.Context(), businessID, id)
	if err != nil {
		return mapBookingError(c, err)
	}
	return ok(c, b)
}

// bookingScope достаёт тенанта и ID брони из запроса.
func bookingScope(c fiber.Ctx) (uuid.UUID, uuid.UUID, error) {
	businessID, valid := middleware.BusinessIDFromFiber(c)
	if !valid {
		return uuid.Nil, uuid.Nil, errors.New("missing tenant context")
	}
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return uuid.Nil, uuid.Nil, errors.New("invalid booking id")
	}
	return businessID, id, nil
}
