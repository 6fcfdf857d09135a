package router

import (
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"

	"github.com/fieldserve/booking-core/internal/api/http/handler"
	"github.com/fieldserve/booking-core/internal/api/http/middleware"
	"github.com/fieldserve/booking-core/internal/service"
)

// Router собирает маршруты ядра. Все доменные маршруты тенантные:
// требуют X-Business-ID.
type Router struct {
	bookings     *service.BookingService
	availability *service.AvailabilityService
	cache        *service.AvailabilityCacheService
	timeOff      *service.TimeOffService
	technicians  *service.TechnicianService
}

func NewRouter(
	bookings *service.BookingService,
	availability *service.AvailabilityService,
	cache *service.AvailabilityCacheService,
	timeOff *service.TimeOffService,
	technicians *service.TechnicianService,
) *Router {
	return &Router{
		bookings:     bookings,
		availability: availability,
		cache:        cache,
		timeOff:      timeOff,
		technicians:  technicians,
	}
}

func (r *Router) Register(app *fiber.App) {
	app.Get(healthcheck.LivenessEndpoint, healthcheck.New())
	app.Get(healthcheck.ReadinessEndpoint, healthcheck.New())

	bookingH := handler.NewBookingHandler(r.bookings)
	availabilityH := handler.NewAvailabilityHandler(r.availability, r.cache)
	timeOffH := handler.NewTimeOffHandler(r.timeOff)
	technicianH := handler.NewTechnicianHandler(r.technicians)

	api := app.Group("/api/v1", middleware.Tenant())

	bookings := api.Group("/bookings")
	bookings.Post("/", bookingH.Create)
	bookings.Get("/", bookingH.List)
	bookings.Get("/:id", bookingH.Get)
	bookings.Get("/:id/events", bookingH.Events)
	bookings.Post("/:id/confirm", bookingH.Confirm)
	bookings.Post("/:id/start", bookingH.Start)
	bookings.Post("/:id/complete", bookingH.Complete)
	bookings.Post("/:id/cancel", bookingH.Cancel)
	bookings.Post("/:id/no-show", bookingH.NoShow)

	availability := api.Group("/availability")
	availability.Get("/", availabilityH.Day)
	availability.Get("/technicians", availabilityH.Technicians)

	timeOff := api.Group("/time-off")
	timeOff.Post("/", timeOffH.Request)
	timeOff.Post("/:id/approve", timeOffH.Approve)
	timeOff.Post("/:id/deny", timeOffH.Deny)

	technicians := api.Group("/technicians")
	technicians.Post("/", technicianH.Create)
	technicians.Get("/", technicianH.List)
	technicians.Get("/:id", technicianH.Get)
	technicians.Patch("/:id/active", technicianH.SetActive)
	technicians.Post("/:id/skills", technicianH.AssignSkill)
	technicians.Get("/:id/time-off", timeOffH.ListByTechnician)

	api.Put("/business-hours", technicianH.UpsertHours)
	api.Get("/business-hours", technicianH.ListHours)
}
