// Package runner executes plans step by step and compensates already-applied steps in
// reverse order when a step fails.
//
// Rollback is advisory. Compensation failures are recorded on the result and logged,
// never returned, so they cannot mask the failure that triggered them.
package runner

import (
	"context"
	"log/slog"
	"slices"
	"time"

	"github.com/dukex/warden/pkg/executor"
	"github.com/dukex/warden/pkg/models"
	"github.com/dukex/warden/pkg/otelhelper"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// RunIDPrefix distinguishes run ids from other opaque ids.
const RunIDPrefix = "run_"

// Runner drives plans through the executor.
type Runner struct {
	executor *executor.Executor
	tracer   trace.Tracer
	logger   *slog.Logger
	now      func() time.Time
}

// Option configures a Runner.
type Option func(*Runner)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(r *Runner) { r.now = now }
}

// New creates a runner.
func New(exec *executor.Executor, tracer trace.Tracer, logger *slog.Logger, opts ...Option) *Runner {
	r := &Runner{
		executor: exec,
		tracer:   tracer,
		logger:   logger.With("module", "runner"),
		now:      func() time.Time { return time.Now().UTC() },
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Run executes plan actions strictly in order and stops at the first failure. When a
// real run fails, the rollback steps captured so far are applied in reverse order.
func (r *Runner) Run(ctx context.Context, plan *models.Plan, ec executor.Context, dryRun bool) models.RunResult {
	result := models.RunResult{
		RunID:     RunIDPrefix + uuid.NewString(),
		PlanID:    plan.ID,
		DryRun:    dryRun,
		State:     models.RunPending,
		StartedAt: r.now(),
		Results:   make([]models.ActionStepResult, 0, len(plan.Actions)),
	}

	ctx, span := otelhelper.StartSpan(ctx, r.tracer, "runner.run",
		attribute.String(otelhelper.WorkspaceIDKey, plan.WorkspaceID),
		attribute.String(otelhelper.PlanIDKey, plan.ID),
		attribute.String(otelhelper.RunIDKey, result.RunID),
		attribute.String(otelhelper.PlanSourceKey, string(plan.Source)),
		attribute.String(otelhelper.ActorIDKey, ec.Actor.ID),
		attribute.Bool(otelhelper.DryRunKey, dryRun),
	)
	defer span.End()

	logger := r.logger.With("workspace_id", plan.WorkspaceID, "plan_id", plan.ID, "run_id", result.RunID)

	ec.DryRun = dryRun
	if dryRun && ec.Simulation == nil {
		ec.Simulation = executor.NewSimulation()
	}

	result.State = models.RunExecuting
	result.OK = len(plan.Actions) > 0

	// applied holds rollback steps in execution order.
	applied := make([]models.RollbackStep, 0, len(plan.Actions))

	for i, action := range plan.Actions {
		stepCtx, stepSpan := otelhelper.StartSpan(ctx, r.tracer, "runner.step",
			attribute.String(otelhelper.ActionTypeKey, string(action.Type)),
			attribute.Int(otelhelper.StepIndexKey, i),
		)

		step := r.executor.Execute(stepCtx, action, ec)
		result.Results = append(result.Results, step)

		if step.RollbackStep != nil {
			applied = append(applied, *step.RollbackStep)
		}

		if !step.Success {
			otelhelper.SetFailure(stepSpan, string(step.Failure), step.Message)
			stepSpan.End()

			logger.InfoContext(ctx, "Step failed, halting run",
				"step", i, "action_type", action.Type, "failure", step.Failure, "message", step.Message)

			result.OK = false

			break
		}

		stepSpan.End()
	}

	slices.Reverse(applied)
	result.RollbackSteps = applied

	if result.OK {
		result.State = models.RunCompleted
	} else {
		result.State = models.RunFailed
	}

	if !result.OK && !dryRun && len(applied) > 0 {
		result.RollbackFailures = r.Compensate(ctx, plan.WorkspaceID, applied)
		result.RolledBack = true
		result.State = models.RunRolledBack

		logger.WarnContext(ctx, "Run rolled back",
			"compensated", len(applied), "compensation_failures", len(result.RollbackFailures))
	}

	result.FinishedAt = r.now()

	span.SetAttributes(attribute.String(otelhelper.RunStateKey, string(result.State)))

	return result
}

// Compensate applies steps in the given order, continuing past failures. It returns one
// message per failed compensation.
//
// A recreated resource gets a new id. Later steps that name the deleted id are
// rewritten to the new one before they are applied.
func (r *Runner) Compensate(ctx context.Context, workspaceID string, steps []models.RollbackStep) []string {
	var failures []string

	ids := make(map[string]string)

	for _, step := range steps {
		step = remap(step, ids)

		stepCtx, span := otelhelper.StartSpan(ctx, r.tracer, "runner.compensate",
			attribute.String(otelhelper.WorkspaceIDKey, workspaceID),
			attribute.String(otelhelper.RollbackKindKey, string(step.Kind)),
		)

		newID, err := r.executor.Compensate(stepCtx, workspaceID, step)
		if newID != "" && step.ResourceID != "" {
			ids[step.ResourceID] = newID
		}

		if err != nil {
			otelhelper.SetError(span, err, attribute.String("warden.resource.id", step.ResourceID))
			r.logger.ErrorContext(ctx, "Compensation failed",
				"workspace_id", workspaceID, "rollback_kind", step.Kind, "resource_id", step.ResourceID, "error", err)

			failures = append(failures, executor.Truncate(err.Error(), executor.MaxMessageLength))
		}

		span.End()
	}

	return failures
}

// remap returns a copy of step with every id found in ids replaced. The snapshot is
// copied too so the caller's steps stay untouched.
func remap(step models.RollbackStep, ids map[string]string) models.RollbackStep {
	if len(ids) == 0 {
		return step
	}

	swap := func(id string) string {
		if next, ok := ids[id]; ok {
			return next
		}

		return id
	}

	step.ResourceID = swap(step.ResourceID)
	step.TargetID = swap(step.TargetID)

	if step.Snapshot == nil {
		return step
	}

	snap := *step.Snapshot
	snap.ParentID = swap(snap.ParentID)

	snap.Overwrites = slices.Clone(snap.Overwrites)
	for i := range snap.Overwrites {
		snap.Overwrites[i].TargetID = swap(snap.Overwrites[i].TargetID)
	}

	snap.ChannelOverwrites = slices.Clone(snap.ChannelOverwrites)
	for i := range snap.ChannelOverwrites {
		snap.ChannelOverwrites[i].ChannelID = swap(snap.ChannelOverwrites[i].ChannelID)
	}

	step.Snapshot = &snap

	return step
}
