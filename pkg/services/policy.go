package services

import (
	"context"
	"fmt"

	"github.com/dukex/warden/pkg/models"
	"github.com/dukex/warden/pkg/policy"
	"github.com/dukex/warden/pkg/workspace"
)

// GetPolicy returns the workspace policy, or the default when none was saved.
func (e *Engine) GetPolicy(ctx context.Context, workspaceID string) (models.Policy, error) {
	pol, err := e.policies.Get(ctx, workspaceID)
	if err != nil {
		return models.Policy{}, fmt.Errorf("failed to load policy: %w", err)
	}

	return pol, nil
}

// UpdatePolicy replaces the workspace policy. Only the workspace owner and members with
// the administrator capability may change it.
func (e *Engine) UpdatePolicy(ctx context.Context, workspaceID, actorID string, pol models.Policy) (models.Policy, error) {
	const op = "UpdatePolicy"

	if err := e.administrator(ctx, op, workspaceID, actorID, "change the policy"); err != nil {
		return models.Policy{}, err
	}

	if err := policy.Check(pol); err != nil {
		return models.Policy{}, newError(op, ErrInvalidPolicy, err.Error(), nil)
	}

	saved, err := e.policies.Put(ctx, workspaceID, pol)
	if err != nil {
		return models.Policy{}, fmt.Errorf("failed to save policy: %w", err)
	}

	e.logger.InfoContext(ctx, "Policy updated",
		"workspace_id", workspaceID, "actor_id", actorID, "enabled", saved.Enabled,
		"require_approval", saved.RequireApproval, "max_actions_per_run", saved.MaxActionsPerRun)

	return saved, nil
}

// ResetPolicy drops the stored policy so the workspace falls back to the default. The
// same members who may update the policy may reset it.
func (e *Engine) ResetPolicy(ctx context.Context, workspaceID, actorID string) (models.Policy, error) {
	const op = "ResetPolicy"

	if err := e.administrator(ctx, op, workspaceID, actorID, "change the policy"); err != nil {
		return models.Policy{}, err
	}

	if err := e.policies.Reset(ctx, workspaceID); err != nil {
		return models.Policy{}, fmt.Errorf("failed to reset policy: %w", err)
	}

	e.logger.InfoContext(ctx, "Policy reset to default", "workspace_id", workspaceID, "actor_id", actorID)

	return policy.Default(), nil
}

// SeedPolicy stores operator-supplied configuration without an acting member.
func (e *Engine) SeedPolicy(ctx context.Context, workspaceID string, pol models.Policy) (models.Policy, error) {
	if err := policy.Check(pol); err != nil {
		return models.Policy{}, newError("SeedPolicy", ErrInvalidPolicy, err.Error(), nil)
	}

	saved, err := e.policies.Put(ctx, workspaceID, pol)
	if err != nil {
		return models.Policy{}, fmt.Errorf("failed to save policy: %w", err)
	}

	return saved, nil
}

// administrator fails unless actorID holds the administrator permission. Policy and
// workflow templates share this gate.
func (e *Engine) administrator(ctx context.Context, op, workspaceID, actorID, what string) error {
	actor, _, err := e.identities(ctx, op, workspaceID, actorID)
	if err != nil {
		return err
	}

	if !actor.Holds(workspace.PermAdministrator) {
		return newError(op, ErrAuthorization, "only administrators can "+what, nil)
	}

	return nil
}
