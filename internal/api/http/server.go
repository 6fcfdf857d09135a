package http

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/logger"
	recoverer "github.com/gofiber/fiber/v3/middleware/recover"

	"github.com/fieldserve/booking-core/internal/api/http/middleware"
	"github.com/fieldserve/booking-core/internal/api/http/router"
	"github.com/fieldserve/booking-core/internal/config"
)

// Server — HTTP-обвязка ядра.
type Server struct {
	app *fiber.App
	cfg config.ServerConfig
	log *slog.Logger
}

func NewServer(cfg config.ServerConfig, r *router.Router, log *slog.Logger) *Server {
	app := fiber.New(fiber.Config{
		AppName: "booking-core",
	})

	app.Use(middleware.RequestID())
	app.Use(recoverer.New())
	app.Use(logger.New(logger.Config{
		Format: "${ip} - [${time}] ${method} ${url} ${status}\n",
	}))

	r.Register(app)

	return &Server{app: app, cfg: cfg, log: log}
}

// Listen блокирует до остановки сервера.
func (s *Server) Listen() error {
	addr := fmt.Sprintf(":%d", s.cfg.Port)
	s.log.Info("HTTP server listening", "addr", addr)
	return s.app.Listen(addr)
}

// Shutdown — graceful-остановка с дедлайном из ctx.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}
