package web

import (
	"errors"

	"github.com/dukex/warden/pkg/services"
	"github.com/gofiber/fiber/v3"
	"github.com/moogar0880/problems"
)

// Problem is an RFC 7807 body with the structured details of an engine error.
type Problem struct {
	*problems.Problem

	Details map[string]any `json:"details,omitempty"`
}

func badRequest(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(400).
		WithInstance(c.Path()).
		WithType("validation_error").
		WithDetail(detail)

	return c.Status(fiber.StatusBadRequest).JSON(problem)
}

func internalError(c fiber.Ctx, err error) error {
	problem := problems.NewStatusProblem(500).
		WithInstance(c.Path()).
		WithType("internal_error").
		WithError(err)

	return c.Status(fiber.StatusInternalServerError).JSON(problem)
}

// handleServiceError maps engine errors onto problem responses.
func handleServiceError(c fiber.Ctx, err error) error {
	var status int

	var kind string

	switch {
	case errors.Is(err, services.ErrParseFailure):
		status, kind = fiber.StatusUnprocessableEntity, "parse_failure"
	case errors.Is(err, services.ErrPolicyViolation):
		status, kind = fiber.StatusUnprocessableEntity, "policy_violation"
	case errors.Is(err, services.ErrResolution):
		status, kind = fiber.StatusUnprocessableEntity, "resolution_failure"
	case services.IsValidationError(err):
		status, kind = fiber.StatusBadRequest, "validation_error"
	case services.IsAuthorizationError(err):
		status, kind = fiber.StatusForbidden, "authorization_failure"
	case services.IsNotFoundError(err):
		status, kind = fiber.StatusNotFound, "not_found"
	case services.IsConflictError(err):
		status, kind = fiber.StatusConflict, "conflict"
	case errors.Is(err, services.ErrExecution):
		status, kind = fiber.StatusBadGateway, "execution_failure"
	default:
		return internalError(c, err)
	}

	problem := Problem{
		Problem: problems.NewStatusProblem(status).
			WithInstance(c.Path()).
			WithType(kind).
			WithDetail(err.Error()),
	}

	var engineErr *services.EngineError
	if errors.As(err, &engineErr) {
		problem.Details = engineErr.Details
	}

	return c.Status(status).JSON(problem)
}
