// Package web exposes the engine over a REST API.
package web

import (
	"net/http"
	"strconv"
	"time"

	"github.com/dukex/warden/pkg/services"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
)

type APIHandlers struct {
	engine    *services.Engine
	validator *validator.Validate
}

func NewAPIHandlers(engine *services.Engine, validator *validator.Validate) *APIHandlers {
	return &APIHandlers{
		engine:    engine,
		validator: validator,
	}
}

// Routes mounts every workspace endpoint on router.
func (h *APIHandlers) Routes(router fiber.Router) {
	router.Get("/health", h.HealthCheck)

	w := router.Group("/workspaces/:workspaceId")

	w.Post("/plans", h.SubmitPlan)
	w.Get("/plans/:planId", h.GetPlan)
	w.Post("/plans/:planId/approve", h.ApprovePlan)
	w.Post("/plans/:planId/deny", h.DenyPlan)
	w.Post("/plans/:planId/dry-run", h.DryRunPlan)

	w.Get("/audit", h.GetAudit)
	w.Post("/audit/:runId/rollback", h.RollbackAudit)

	w.Get("/policy", h.GetPolicy)
	w.Put("/policy", h.UpdatePolicy)
	w.Delete("/policy", h.ResetPolicy)

	w.Get("/workflows", h.ListWorkflows)
	w.Put("/workflows/:name", h.SaveWorkflow)
	w.Post("/workflows/:name/run", h.RunWorkflow)
	w.Delete("/workflows/:name", h.RemoveWorkflow)
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	storageCheck, ok := h.engine.HealthCheck(c.Context())

	status := "unhealthy"
	message := "Warden API is unhealthy"
	httpStatus := http.StatusInternalServerError

	if ok {
		status = "healthy"
		message = "Warden API is healthy"
		httpStatus = http.StatusOK
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":  status,
		"message": message,
		"checkers": fiber.Map{
			"storage": storageCheck,
		},
		"timestamp": time.Now().UTC(),
	})
}

func (h *APIHandlers) SubmitPlan(c fiber.Ctx) error {
	var req SubmitPlanRequest
	if ok, err := h.bind(c, &req); !ok {
		return err
	}

	result, err := h.engine.Submit(c.Context(), services.PlanRequest{
		WorkspaceID: c.Params("workspaceId"),
		OwnerID:     req.OwnerID,
		ChannelID:   req.ChannelID,
		RequestText: req.RequestText,
		Source:      req.Source,
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	if result.AwaitingApproval {
		return c.Status(fiber.StatusAccepted).JSON(result)
	}

	return c.JSON(result)
}

func (h *APIHandlers) GetPlan(c fiber.Ctx) error {
	plan, err := h.engine.GetPlan(c.Context(), c.Params("workspaceId"), c.Params("planId"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(plan)
}

func (h *APIHandlers) ApprovePlan(c fiber.Ctx) error {
	var req ActorRequest
	if ok, err := h.bind(c, &req); !ok {
		return err
	}

	result, err := h.engine.ApprovePlan(c.Context(), c.Params("workspaceId"), c.Params("planId"), req.ActorID)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(result)
}

func (h *APIHandlers) DenyPlan(c fiber.Ctx) error {
	var req ActorRequest
	if ok, err := h.bind(c, &req); !ok {
		return err
	}

	err := h.engine.DenyPlan(c.Context(), c.Params("workspaceId"), c.Params("planId"), req.ActorID)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) DryRunPlan(c fiber.Ctx) error {
	var req ActorRequest
	if ok, err := h.bind(c, &req); !ok {
		return err
	}

	result, err := h.engine.DryRunPlan(c.Context(), c.Params("workspaceId"), c.Params("planId"), req.ActorID)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(result)
}

func (h *APIHandlers) GetAudit(c fiber.Ctx) error {
	limit := 0

	if limitStr := c.Query("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil {
			return badRequest(c, "Invalid query parameters: "+err.Error())
		}

		limit = parsed
	}

	entries, err := h.engine.GetAudit(c.Context(), c.Params("workspaceId"), limit)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(AuditResponse{Entries: entries})
}

func (h *APIHandlers) RollbackAudit(c fiber.Ctx) error {
	var req ActorRequest
	if ok, err := h.bind(c, &req); !ok {
		return err
	}

	summary, err := h.engine.RollbackAudit(c.Context(), c.Params("workspaceId"), c.Params("runId"), req.ActorID)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(summary)
}

func (h *APIHandlers) GetPolicy(c fiber.Ctx) error {
	pol, err := h.engine.GetPolicy(c.Context(), c.Params("workspaceId"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(pol)
}

func (h *APIHandlers) UpdatePolicy(c fiber.Ctx) error {
	var req UpdatePolicyRequest
	if ok, err := h.bind(c, &req); !ok {
		return err
	}

	saved, err := h.engine.UpdatePolicy(c.Context(), c.Params("workspaceId"), req.ActorID, req.Policy)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(saved)
}

// ResetPolicy restores the default policy and returns it.
func (h *APIHandlers) ResetPolicy(c fiber.Ctx) error {
	var req ActorRequest
	if ok, err := h.bind(c, &req); !ok {
		return err
	}

	pol, err := h.engine.ResetPolicy(c.Context(), c.Params("workspaceId"), req.ActorID)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(pol)
}

func (h *APIHandlers) ListWorkflows(c fiber.Ctx) error {
	templates, err := h.engine.ListWorkflows(c.Context(), c.Params("workspaceId"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(WorkflowsResponse{Workflows: templates})
}

func (h *APIHandlers) SaveWorkflow(c fiber.Ctx) error {
	var req SaveWorkflowRequest
	if ok, err := h.bind(c, &req); !ok {
		return err
	}

	saved, err := h.engine.SaveWorkflow(c.Context(), services.WorkflowRequest{
		WorkspaceID: c.Params("workspaceId"),
		Name:        c.Params("name"),
		RequestText: req.RequestText,
		ActorID:     req.ActorID,
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(saved)
}

func (h *APIHandlers) RunWorkflow(c fiber.Ctx) error {
	var req RunWorkflowRequest
	if ok, err := h.bind(c, &req); !ok {
		return err
	}

	result, err := h.engine.RunWorkflow(c.Context(), services.RunWorkflowRequest{
		WorkspaceID: c.Params("workspaceId"),
		Name:        c.Params("name"),
		ActorID:     req.ActorID,
		ChannelID:   req.ChannelID,
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	if result.AwaitingApproval {
		return c.Status(fiber.StatusAccepted).JSON(result)
	}

	return c.JSON(result)
}

func (h *APIHandlers) RemoveWorkflow(c fiber.Ctx) error {
	var req ActorRequest
	if ok, err := h.bind(c, &req); !ok {
		return err
	}

	err := h.engine.RemoveWorkflow(c.Context(), c.Params("workspaceId"), c.Params("name"), req.ActorID)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

// bind decodes and validates the JSON body. When it reports false the problem response
// has already been written.
func (h *APIHandlers) bind(c fiber.Ctx, out any) (bool, error) {
	if err := c.Bind().JSON(out); err != nil {
		return false, badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(out); err != nil {
		return false, badRequest(c, err.Error())
	}

	return true, nil
}
