package main

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/dukex/warden/pkg/services"
	"github.com/dukex/warden/pkg/web"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"
)

const shutdownTimeout = 10 * time.Second

type API struct {
	logger   *slog.Logger
	engine   *services.Engine
	validate *validator.Validate
}

func NewAPI(logger *slog.Logger, engine *services.Engine) *API {
	return &API{
		logger:   logger,
		engine:   engine,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (a *API) App() *fiber.App {
	handlers := web.NewAPIHandlers(a.engine, a.validate)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Warden API")
	})

	handlers.Routes(app)

	return app
}

// Start serves the API until ctx is cancelled.
func (a *API) Start(ctx context.Context, port int) error {
	app := a.App()

	go func() {
		<-ctx.Done()

		a.logger.Info("Shutting down Warden API")

		if err := app.ShutdownWithTimeout(shutdownTimeout); err != nil {
			a.logger.Error("Failed to shut down API", "error", err)
		}
	}()

	return app.Listen(":" + strconv.Itoa(port))
}
