package middleware

import (
	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"

	"github.com/fieldserve/booking-core/pkg/reqctx"
)

const (
	HeaderBusinessID = "X-Business-ID"
	HeaderActor      = "X-Actor"

	LocalsBusinessID = "business_id"
)

// Tenant reads the tenant id from the X-Business-ID header and the acting
// identity from X-Actor, and attaches both to the request context. The
// core trusts the gateway in front of it to have authenticated the caller;
// here only the shape of the headers is checked.
func Tenant() fiber.Handler {
	return func(c fiber.Ctx) error {
		idStr := c.Get(HeaderBusinessID)
		if idStr == "" {
			return fiber.NewError(fiber.StatusBadRequest, "X-Business-ID header is required")
		}
		businessID, err := uuid.Parse(idStr)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid X-Business-ID value")
		}

		c.Locals(LocalsBusinessID, businessID)

		ctx := reqctx.WithBusinessID(c.Context(), businessID)
		if actor := c.Get(HeaderActor); actor != "" {
			ctx = reqctx.WithActor(ctx, actor)
		}
		c.SetContext(ctx)

		return c.Next()
	}
}

// BusinessIDFromFiber retrieves the tenant id stored by Tenant.
func BusinessIDFromFiber(c fiber.Ctx) (uuid.UUID, bool) {
	id, ok := c.Locals(LocalsBusinessID).(uuid.UUID)
	return id, ok
}
