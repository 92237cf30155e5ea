// Package main provides the botrelay callback server.
package main

import (
	"log/slog"
	"strconv"

	"github.com/dukex/botrelay/pkg/cache"
	"github.com/dukex/botrelay/pkg/persistence"
	"github.com/dukex/botrelay/pkg/web"
	"github.com/dukex/botrelay/pkg/wecom"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"
)

type API struct {
	logger      *slog.Logger
	persistence persistence.Persistence
	answers     cache.AnswerCache
	crypt       *wecom.Crypt
	placeholder string
	validate    *validator.Validate
}

func NewAPI(
	logger *slog.Logger,
	persistence persistence.Persistence,
	answers cache.AnswerCache,
	crypt *wecom.Crypt,
	placeholder string,
) *API {
	return &API{
		logger:      logger,
		persistence: persistence,
		answers:     answers,
		crypt:       crypt,
		placeholder: placeholder,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (a *API) App() *fiber.App {
	gateway := web.NewGateway(a.persistence, a.answers, a.crypt, a.validate, a.placeholder, a.logger)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("botrelay API")
	})

	app.Get("/callback", gateway.VerifyURL)
	app.Post("/callback", gateway.Callback)

	app.Get("/health", gateway.HealthCheck)

	return app
}

func (a *API) Start(port int) error {
	app := a.App()

	return app.Listen(":" + strconv.Itoa(port))
}
