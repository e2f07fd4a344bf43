package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dukex/warden/pkg/events"
	"github.com/dukex/warden/pkg/models"
	"github.com/dukex/warden/pkg/store"
)

const defaultAuditLimit = 10

// RollbackSummary reports a manual rollback.
type RollbackSummary struct {
	RunID          string   `json:"run_id"`
	RollbackStatus string   `json:"rollback_status"`
	Attempted      int      `json:"attempted"`
	Failures       []string `json:"failures,omitempty"`
	Summary        string   `json:"summary"`
}

// GetAudit lists the most recent audit entries of a workspace, newest first. The limit
// defaults to 10 and never exceeds the audit log capacity.
func (e *Engine) GetAudit(ctx context.Context, workspaceID string, limit int) ([]models.AuditEntry, error) {
	if limit <= 0 {
		limit = defaultAuditLimit
	}

	limit = min(limit, store.DefaultAuditCap)

	entries, err := e.audit.List(ctx, workspaceID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit entries: %w", err)
	}

	return entries, nil
}

// RollbackAudit compensates the stored rollback steps of a past run, best effort and in
// stored order. An entry can be rolled back at most once, automatically or manually.
func (e *Engine) RollbackAudit(ctx context.Context, workspaceID, runID, actorID string) (*RollbackSummary, error) {
	const op = "RollbackAudit"

	key := store.Key{WorkspaceID: workspaceID, ID: runID}

	entry, err := e.audit.Get(ctx, key)
	if err != nil {
		return nil, auditError(op, runID, err)
	}

	if err := rollbackable(op, entry); err != nil {
		return nil, err
	}

	actor, agent, err := e.identities(ctx, op, workspaceID, actorID)
	if err != nil {
		return nil, err
	}

	applied := make([]models.Action, 0, len(entry.Actions))
	for _, action := range entry.Actions {
		if action.Success {
			applied = append(applied, models.Action{Type: action.Type})
		}
	}

	if err := baseline(op, actor, agent, applied); err != nil {
		return nil, err
	}

	status := models.RollbackStatusManualPrefix + e.now().Format(time.RFC3339)

	// Claim the entry before compensating so concurrent requests cannot both apply it.
	entry, err = e.audit.Update(ctx, key, func(current *models.AuditEntry) error {
		if err := rollbackable(op, *current); err != nil {
			return err
		}

		current.RollbackStatus = &status

		return nil
	})
	if err != nil {
		return nil, auditError(op, runID, err)
	}

	failures := e.runner.Compensate(ctx, workspaceID, entry.RollbackSteps)

	if len(failures) > 0 {
		_, err := e.audit.Update(ctx, key, func(current *models.AuditEntry) error {
			current.RollbackFailures = append(current.RollbackFailures, failures...)

			return nil
		})
		if err != nil {
			e.logger.ErrorContext(ctx, "Failed to record rollback failures",
				"workspace_id", workspaceID, "run_id", runID, "error", err)
		}
	}

	summary := &RollbackSummary{
		RunID:          runID,
		RollbackStatus: status,
		Attempted:      len(entry.RollbackSteps),
		Failures:       failures,
		Summary:        fmt.Sprintf("rolled back %d step(s)", len(entry.RollbackSteps)),
	}

	if len(failures) > 0 {
		summary.Summary = fmt.Sprintf("rolled back %d of %d step(s); %d could not be undone",
			len(entry.RollbackSteps)-len(failures), len(entry.RollbackSteps), len(failures))
	}

	e.logger.InfoContext(ctx, "Run rolled back manually",
		"workspace_id", workspaceID, "run_id", runID, "steps", len(entry.RollbackSteps), "failures", len(failures))

	e.publish(ctx, workspaceID, events.AuditRolledBack{
		BaseEvent:      events.NewBaseEvent(events.AuditRolledBackEvent, workspaceID),
		RunID:          runID,
		RolledBackBy:   actorID,
		RollbackStatus: status,
		Failures:       failures,
	})

	return summary, nil
}

func rollbackable(op string, entry models.AuditEntry) error {
	if entry.RollbackStatus != nil {
		return newError(op, ErrAlreadyRolledBack, fmt.Sprintf("%s is already %s", entry.ID, *entry.RollbackStatus), nil)
	}

	switch entry.Status {
	case models.AuditDryRun, models.AuditCancelled:
		return newError(op, ErrNothingToRollback, fmt.Sprintf("%s was a %s run", entry.ID, entry.Status), nil)
	case models.AuditSuccess, models.AuditFailed:
	}

	if len(entry.RollbackSteps) == 0 {
		return newError(op, ErrNothingToRollback, entry.ID+" made no reversible changes", nil)
	}

	return nil
}

func auditError(op, runID string, err error) error {
	var engineErr *EngineError
	if errors.As(err, &engineErr) {
		return engineErr
	}

	if errors.Is(err, store.ErrNotFound) {
		return newError(op, ErrAuditNotFound, "no audit entry "+runID, nil)
	}

	return fmt.Errorf("failed to update audit entry: %w", err)
}
