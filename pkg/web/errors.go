package web

import (
	"errors"

	"github.com/dukex/botrelay/pkg/wecom"
	"github.com/gofiber/fiber/v3"
	"github.com/moogar0880/problems"
)

func badRequest(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(400).
		WithInstance(c.Path()).
		WithType("validation_error").
		WithDetail(detail)

	return c.Status(fiber.StatusBadRequest).JSON(problem)
}

func unauthorized(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(401).
		WithInstance(c.Path()).
		WithType("signature_error").
		WithDetail(detail)

	return c.Status(fiber.StatusUnauthorized).JSON(problem)
}

func notFound(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(404).
		WithInstance(c.Path()).
		WithType("not_found").
		WithDetail(detail)

	return c.Status(fiber.StatusNotFound).JSON(problem)
}

func internalError(c fiber.Ctx, err error) error {
	problem := problems.NewStatusProblem(500).
		WithInstance(c.Path()).
		WithType("internal_error").
		WithError(err)

	return c.Status(fiber.StatusInternalServerError).JSON(problem)
}

// handleCryptError maps envelope failures to problems. Only a bad signature is an auth failure.
func handleCryptError(c fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, wecom.ErrInvalidSignature), errors.Is(err, wecom.ErrReceiveIDMismatch):
		return unauthorized(c, err.Error())
	case errors.Is(err, wecom.ErrInvalidCiphertext),
		errors.Is(err, wecom.ErrInvalidPadding),
		errors.Is(err, wecom.ErrMalformedFrame):
		return badRequest(c, "Invalid encrypted payload: "+err.Error())
	default:
		return internalError(c, err)
	}
}
