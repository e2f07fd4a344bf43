package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/dukex/warden/pkg/models"
	"github.com/dukex/warden/pkg/store"
)

// WorkflowRequest saves request text under a name.
type WorkflowRequest struct {
	WorkspaceID string `json:"workspace_id" validate:"required"`
	Name        string `json:"name" validate:"required"`
	RequestText string `json:"request_text" validate:"required,max=2000"`
	ActorID     string `json:"actor_id" validate:"required"`
}

// RunWorkflowRequest submits a saved workflow.
type RunWorkflowRequest struct {
	WorkspaceID string `json:"workspace_id" validate:"required"`
	Name        string `json:"name" validate:"required"`
	ActorID     string `json:"actor_id" validate:"required"`
	ChannelID   string `json:"channel_id"`
}

// SaveWorkflow creates or replaces a named template. Only administrators may save. The
// text must contain at least one supported action; policy is only checked when the
// workflow runs.
func (e *Engine) SaveWorkflow(ctx context.Context, req WorkflowRequest) (models.WorkflowTemplate, error) {
	const op = "SaveWorkflow"

	if err := validate.Struct(req); err != nil {
		return models.WorkflowTemplate{}, newError(op, ErrInvalidRequest, err.Error(), nil)
	}

	if err := e.administrator(ctx, op, req.WorkspaceID, req.ActorID, "manage workflows"); err != nil {
		return models.WorkflowTemplate{}, err
	}

	slug, err := store.Slug(req.Name)
	if err != nil {
		return models.WorkflowTemplate{}, newError(op, ErrInvalidWorkflowName, err.Error(), nil)
	}

	if parsed := e.parse(req.RequestText); len(parsed.Actions) == 0 {
		return models.WorkflowTemplate{}, newError(op, ErrParseFailure, "no supported actions found in request",
			map[string]any{"unsupported_clauses": parsed.UnsupportedClauses})
	}

	now := e.now()
	key := store.Key{WorkspaceID: req.WorkspaceID, ID: slug}

	err = e.workflows.Put(ctx, key, models.WorkflowTemplate{
		RequestText: req.RequestText,
		CreatedBy:   req.ActorID,
		CreatedAt:   now,
		UpdatedBy:   req.ActorID,
		UpdatedAt:   now,
	})
	if err != nil {
		return models.WorkflowTemplate{}, fmt.Errorf("failed to save workflow: %w", err)
	}

	e.logger.InfoContext(ctx, "Workflow saved", "workspace_id", req.WorkspaceID, "workflow", slug)

	return e.workflow(ctx, op, req.WorkspaceID, slug)
}

// RunWorkflow submits the saved request text exactly like a manual request.
func (e *Engine) RunWorkflow(ctx context.Context, req RunWorkflowRequest) (*SubmitResult, error) {
	const op = "RunWorkflow"

	if err := validate.Struct(req); err != nil {
		return nil, newError(op, ErrInvalidRequest, err.Error(), nil)
	}

	tmpl, err := e.workflow(ctx, op, req.WorkspaceID, req.Name)
	if err != nil {
		return nil, err
	}

	return e.Submit(ctx, PlanRequest{
		WorkspaceID: req.WorkspaceID,
		OwnerID:     req.ActorID,
		ChannelID:   req.ChannelID,
		RequestText: tmpl.RequestText,
		Source:      models.SourceWorkflow,
	})
}

// RemoveWorkflow deletes a named template. Only administrators may remove one.
func (e *Engine) RemoveWorkflow(ctx context.Context, workspaceID, name, actorID string) error {
	const op = "RemoveWorkflow"

	if err := e.administrator(ctx, op, workspaceID, actorID, "manage workflows"); err != nil {
		return err
	}

	err := e.workflows.Delete(ctx, store.Key{WorkspaceID: workspaceID, ID: name})
	if err != nil {
		return workflowError(op, name, err)
	}

	e.logger.InfoContext(ctx, "Workflow removed", "workspace_id", workspaceID, "workflow", name, "actor_id", actorID)

	return nil
}

// ListWorkflows returns the templates of a workspace sorted by name.
func (e *Engine) ListWorkflows(ctx context.Context, workspaceID string) ([]models.WorkflowTemplate, error) {
	templates, err := e.workflows.List(ctx, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("failed to list workflows: %w", err)
	}

	return templates, nil
}

func (e *Engine) workflow(ctx context.Context, op, workspaceID, name string) (models.WorkflowTemplate, error) {
	tmpl, err := e.workflows.Get(ctx, store.Key{WorkspaceID: workspaceID, ID: name})
	if err != nil {
		return models.WorkflowTemplate{}, workflowError(op, name, err)
	}

	return tmpl, nil
}

func workflowError(op, name string, err error) error {
	switch {
	case errors.Is(err, store.ErrInvalidName):
		return newError(op, ErrInvalidWorkflowName, err.Error(), nil)
	case errors.Is(err, store.ErrNotFound):
		return newError(op, ErrWorkflowNotFound, fmt.Sprintf("no workflow named %q", name), nil)
	default:
		return fmt.Errorf("failed to load workflow: %w", err)
	}
}
