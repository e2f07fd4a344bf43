package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dukex/warden/pkg/authz"
	"github.com/dukex/warden/pkg/eventbus"
	"github.com/dukex/warden/pkg/events"
	"github.com/dukex/warden/pkg/executor"
	"github.com/dukex/warden/pkg/models"
	"github.com/dukex/warden/pkg/parser"
	"github.com/dukex/warden/pkg/persistence"
	"github.com/dukex/warden/pkg/policy"
	"github.com/dukex/warden/pkg/runner"
	"github.com/dukex/warden/pkg/store"
	"github.com/dukex/warden/pkg/workspace"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Dependencies are the collaborators an Engine drives. Parser defaults to parser.Parse
// and Publisher may be nil.
type Dependencies struct {
	Client    workspace.Client
	Storage   persistence.KV
	Parser    parser.Func
	Runner    *runner.Runner
	Pending   *store.PendingPlans
	Audit     *store.AuditLog
	Workflows *store.Workflows
	Policies  *store.Policies
	Publisher eventbus.EventPublisher

	// AgentID is the member id of the service identity that performs mutations.
	AgentID string
}

// Engine coordinates parsing, policy, the capability baseline, approval, execution and
// the audit trail. Plans for the same workspace are not serialized against each other.
type Engine struct {
	client    workspace.Client
	storage   persistence.KV
	parse     parser.Func
	runner    *runner.Runner
	pending   *store.PendingPlans
	audit     *store.AuditLog
	workflows *store.Workflows
	policies  *store.Policies
	publisher eventbus.EventPublisher
	agentID   string
	logger    *slog.Logger
	now       func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func NewEngine(deps Dependencies, logger *slog.Logger, opts ...Option) *Engine {
	e := &Engine{
		client:    deps.Client,
		storage:   deps.Storage,
		parse:     deps.Parser,
		runner:    deps.Runner,
		pending:   deps.Pending,
		audit:     deps.Audit,
		workflows: deps.Workflows,
		policies:  deps.Policies,
		publisher: deps.Publisher,
		agentID:   deps.AgentID,
		logger:    logger.With("module", "engine"),
		now:       func() time.Time { return time.Now().UTC() },
	}

	if e.parse == nil {
		e.parse = parser.Parse
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// HealthCheck checks the health of the storage layer.
func (e *Engine) HealthCheck(ctx context.Context) (string, bool) {
	if e.storage == nil {
		return "Storage layer not initialized", false
	}

	err := e.storage.HealthCheck(ctx)
	if err != nil {
		return "Storage layer is unhealthy: " + err.Error(), false
	}

	return "Storage layer is healthy", true
}

// PlanRequest asks for a plan built from free text.
type PlanRequest struct {
	WorkspaceID string            `json:"workspace_id" validate:"required"`
	OwnerID     string            `json:"owner_id" validate:"required"`
	ChannelID   string            `json:"channel_id"`
	RequestText string            `json:"request_text" validate:"required,max=2000"`
	Source      models.PlanSource `json:"source" validate:"omitempty,oneof=manual auto workflow"`
}

// SubmitResult is either a plan waiting for approval or the run it produced.
type SubmitResult struct {
	Plan             *models.Plan      `json:"plan"`
	AwaitingApproval bool              `json:"awaiting_approval"`
	Run              *models.RunResult `json:"run,omitempty"`
}

// CreatePlan parses the request, validates it against the workspace policy and checks
// that both the owner and the service identity hold the capabilities it needs. Nothing
// is stored or executed.
func (e *Engine) CreatePlan(ctx context.Context, req PlanRequest) (*models.Plan, error) {
	plan, _, err := e.createPlan(ctx, req)

	return plan, err
}

func (e *Engine) createPlan(ctx context.Context, req PlanRequest) (*models.Plan, models.Policy, error) {
	const op = "CreatePlan"

	if err := validate.Struct(req); err != nil {
		return nil, models.Policy{}, newError(op, ErrInvalidRequest, err.Error(), nil)
	}

	if req.Source == "" {
		req.Source = models.SourceManual
	}

	parsed := e.parse(req.RequestText)
	if len(parsed.Actions) == 0 {
		return nil, models.Policy{}, newError(op, ErrParseFailure, "no supported actions found in request",
			map[string]any{"unsupported_clauses": parsed.UnsupportedClauses})
	}

	for i, action := range parsed.Actions {
		if err := models.ValidateArgs(action); err != nil {
			return nil, models.Policy{}, newError(op, ErrParseFailure, fmt.Sprintf("step %d: %v", i+1, err),
				map[string]any{"step": i + 1, "action_type": action.Type})
		}
	}

	pol, err := e.policies.Get(ctx, req.WorkspaceID)
	if err != nil {
		return nil, models.Policy{}, fmt.Errorf("failed to load policy: %w", err)
	}

	validation := policy.Validate(parsed, pol)
	if !validation.OK {
		message, details := violation(validation, pol, len(parsed.Actions))

		e.logger.InfoContext(ctx, "Plan rejected by policy",
			"workspace_id", req.WorkspaceID, "owner_id", req.OwnerID, "blocked_types", validation.BlockedTypes)

		return nil, models.Policy{}, newError(op, ErrPolicyViolation, message, details)
	}

	actor, agent, err := e.identities(ctx, op, req.WorkspaceID, req.OwnerID)
	if err != nil {
		return nil, models.Policy{}, err
	}

	if err := baseline(op, actor, agent, validation.AcceptedActions); err != nil {
		return nil, models.Policy{}, err
	}

	plan := &models.Plan{
		ID:          models.PlanIDPrefix + uuid.NewString(),
		WorkspaceID: req.WorkspaceID,
		OwnerID:     req.OwnerID,
		ChannelID:   req.ChannelID,
		RequestText: req.RequestText,
		Source:      req.Source,
		Risk:        parsed.Risk,
		Actions:     validation.AcceptedActions,
		Warnings:    validation.Warnings,
		CreatedAt:   e.now(),
	}

	e.logger.InfoContext(ctx, "Plan created",
		"workspace_id", plan.WorkspaceID, "plan_id", plan.ID, "actions", len(plan.Actions), "risk", plan.Risk)

	return plan, pol, nil
}

// Submit creates a plan and runs it right away, or parks it for owner approval when the
// workspace policy requires approval.
func (e *Engine) Submit(ctx context.Context, req PlanRequest) (*SubmitResult, error) {
	plan, pol, err := e.createPlan(ctx, req)
	if err != nil {
		return nil, err
	}

	if pol.RequireApproval {
		if err := e.pending.Put(ctx, planKey(plan.WorkspaceID, plan.ID), plan); err != nil {
			return nil, fmt.Errorf("failed to store pending plan: %w", err)
		}

		e.publish(ctx, plan.WorkspaceID, planCreated(plan, true))

		return &SubmitResult{Plan: plan, AwaitingApproval: true}, nil
	}

	e.publish(ctx, plan.WorkspaceID, planCreated(plan, false))

	result, err := e.RunPlan(ctx, plan, false)
	if err != nil {
		return nil, err
	}

	return &SubmitResult{Plan: plan, Run: &result}, nil
}

// RunPlan executes plan, records the run in the audit log and publishes the outcome.
// Step failures are reported in the result, not as an error.
func (e *Engine) RunPlan(ctx context.Context, plan *models.Plan, dryRun bool) (models.RunResult, error) {
	ec, err := e.executionContext(ctx, plan)
	if err != nil {
		return models.RunResult{}, err
	}

	result := e.runner.Run(ctx, plan, ec, dryRun)

	e.record(ctx, plan, result)
	e.publish(ctx, plan.WorkspaceID, events.NewRunFinished(plan.WorkspaceID, result))

	if err := RunError(result); err != nil {
		e.logger.InfoContext(ctx, "Run did not complete",
			"workspace_id", plan.WorkspaceID, "plan_id", plan.ID, "run_id", result.RunID, "error", err)
	}

	return result, nil
}

// GetPlan returns a pending plan.
func (e *Engine) GetPlan(ctx context.Context, workspaceID, planID string) (*models.Plan, error) {
	plan, err := e.pending.Get(ctx, planKey(workspaceID, planID))
	if err != nil {
		return nil, pendingError("GetPlan", planID, err)
	}

	return plan, nil
}

// ApprovePlan re-checks the current policy and the capability baseline, consumes the
// pending plan and runs it. Only the plan owner may approve. A plan the policy now
// rejects stays pending until it expires or is denied.
func (e *Engine) ApprovePlan(ctx context.Context, workspaceID, planID, actorID string) (models.RunResult, error) {
	const op = "ApprovePlan"

	plan, err := e.ownedPlan(ctx, op, workspaceID, planID, actorID)
	if err != nil {
		return models.RunResult{}, err
	}

	pol, err := e.policies.Get(ctx, workspaceID)
	if err != nil {
		return models.RunResult{}, fmt.Errorf("failed to load policy: %w", err)
	}

	if validation := policy.Validate(models.ParsedPlan{Actions: plan.Actions}, pol); !validation.OK {
		message, details := violation(validation, pol, len(plan.Actions))

		e.logger.InfoContext(ctx, "Approval rejected by policy",
			"workspace_id", workspaceID, "plan_id", planID, "blocked_types", validation.BlockedTypes)

		return models.RunResult{}, newError(op, ErrPolicyViolation, message, details)
	}

	actor, agent, err := e.identities(ctx, op, workspaceID, actorID)
	if err != nil {
		return models.RunResult{}, err
	}

	if err := baseline(op, actor, agent, plan.Actions); err != nil {
		return models.RunResult{}, err
	}

	plan, err = e.pending.Take(ctx, planKey(workspaceID, planID))
	if err != nil {
		return models.RunResult{}, pendingError(op, planID, err)
	}

	return e.RunPlan(ctx, plan, false)
}

// DenyPlan discards a pending plan and records it as cancelled.
func (e *Engine) DenyPlan(ctx context.Context, workspaceID, planID, actorID string) error {
	const op = "DenyPlan"

	if _, err := e.ownedPlan(ctx, op, workspaceID, planID, actorID); err != nil {
		return err
	}

	plan, err := e.pending.Take(ctx, planKey(workspaceID, planID))
	if err != nil {
		return pendingError(op, planID, err)
	}

	now := e.now()
	actions := make([]models.AuditActionSummary, 0, len(plan.Actions))

	for _, action := range plan.Actions {
		actions = append(actions, models.AuditActionSummary{Type: action.Type, Summary: "not run"})
	}

	entry := models.AuditEntry{
		ID:          runner.RunIDPrefix + uuid.NewString(),
		PlanID:      plan.ID,
		RequestText: plan.RequestText,
		Status:      models.AuditCancelled,
		Risk:        plan.Risk,
		CreatedBy:   plan.OwnerID,
		CreatedAt:   now,
		FinishedAt:  now,
		Actions:     actions,
	}

	if err := e.audit.Append(ctx, workspaceID, entry); err != nil {
		e.logger.ErrorContext(ctx, "Failed to record denied plan", "workspace_id", workspaceID, "plan_id", planID, "error", err)
	}

	e.logger.InfoContext(ctx, "Plan denied", "workspace_id", workspaceID, "plan_id", planID)

	e.publish(ctx, workspaceID, events.PlanDenied{
		BaseEvent: events.NewBaseEvent(events.PlanDeniedEvent, workspaceID),
		PlanID:    planID,
		DeniedBy:  actorID,
	})

	return nil
}

// DryRunPlan simulates a pending plan. The plan stays pending.
func (e *Engine) DryRunPlan(ctx context.Context, workspaceID, planID, actorID string) (models.RunResult, error) {
	plan, err := e.ownedPlan(ctx, "DryRunPlan", workspaceID, planID, actorID)
	if err != nil {
		return models.RunResult{}, err
	}

	return e.RunPlan(ctx, plan, true)
}

// SweepPending drops expired pending plans.
func (e *Engine) SweepPending(ctx context.Context) (int, error) {
	return e.pending.Sweep(ctx)
}

func (e *Engine) ownedPlan(ctx context.Context, op, workspaceID, planID, actorID string) (*models.Plan, error) {
	plan, err := e.pending.Get(ctx, planKey(workspaceID, planID))
	if err != nil {
		return nil, pendingError(op, planID, err)
	}

	if plan.OwnerID != actorID {
		return nil, newError(op, ErrNotPlanOwner, "only the member who made the request can act on "+planID, nil)
	}

	return plan, nil
}

func (e *Engine) executionContext(ctx context.Context, plan *models.Plan) (executor.Context, error) {
	const op = "RunPlan"

	ws, err := e.client.Workspace(ctx, plan.WorkspaceID)
	if err != nil {
		return executor.Context{}, workspaceError(op, plan.WorkspaceID, err)
	}

	actor, agent, err := e.identities(ctx, op, plan.WorkspaceID, plan.OwnerID)
	if err != nil {
		return executor.Context{}, err
	}

	ec := executor.Context{
		WorkspaceID: plan.WorkspaceID,
		Workspace:   ws,
		Actor:       actor,
		Agent:       agent,
	}

	if plan.ChannelID != "" {
		channel, err := e.client.Channel(ctx, plan.WorkspaceID, plan.ChannelID)
		if err != nil {
			return executor.Context{}, newError(op, ErrExecution,
				executor.Truncate("could not load origin channel: "+err.Error(), executor.MaxMessageLength), nil)
		}

		if channel != nil {
			ec.Fallback = channel
		}
	}

	return ec, nil
}

func (e *Engine) identities(ctx context.Context, op, workspaceID, actorID string) (authz.Identity, authz.Identity, error) {
	actor, err := authz.IdentityOf(ctx, e.client, workspaceID, actorID)
	if err != nil {
		return authz.Identity{}, authz.Identity{}, identityError(op, workspaceID, "requesting member", err)
	}

	agent, err := authz.IdentityOf(ctx, e.client, workspaceID, e.agentID)
	if err != nil {
		return authz.Identity{}, authz.Identity{}, identityError(op, workspaceID, "service identity", err)
	}

	return actor, agent, nil
}

func (e *Engine) record(ctx context.Context, plan *models.Plan, result models.RunResult) {
	status := models.AuditSuccess

	switch {
	case result.DryRun:
		status = models.AuditDryRun
	case !result.OK:
		status = models.AuditFailed
	}

	entry := models.AuditEntry{
		ID:               result.RunID,
		PlanID:           plan.ID,
		RequestText:      plan.RequestText,
		Status:           status,
		Risk:             plan.Risk,
		CreatedBy:        plan.OwnerID,
		CreatedAt:        result.StartedAt,
		FinishedAt:       result.FinishedAt,
		Actions:          models.Summarize(result.Results),
		RollbackFailures: result.RollbackFailures,
	}

	if !result.DryRun {
		entry.RollbackSteps = result.RollbackSteps
	}

	if result.RolledBack {
		auto := models.RollbackStatusAuto
		entry.RollbackStatus = &auto
	}

	if err := e.audit.Append(ctx, plan.WorkspaceID, entry); err != nil {
		e.logger.ErrorContext(ctx, "Failed to record audit entry",
			"workspace_id", plan.WorkspaceID, "plan_id", plan.ID, "run_id", result.RunID, "error", err)
	}
}

func (e *Engine) publish(ctx context.Context, workspaceID string, event eventbus.Event) {
	if e.publisher == nil {
		return
	}

	if err := e.publisher.Publish(ctx, workspaceID, event); err != nil {
		e.logger.WarnContext(ctx, "Failed to publish event",
			"workspace_id", workspaceID, "event_type", event.GetType(), "error", err)
	}
}

func planCreated(plan *models.Plan, awaitingApproval bool) events.PlanCreated {
	types := make([]string, 0, len(plan.Actions))
	for _, action := range plan.Actions {
		types = append(types, string(action.Type))
	}

	return events.PlanCreated{
		BaseEvent:        events.NewBaseEvent(events.PlanCreatedEvent, plan.WorkspaceID),
		PlanID:           plan.ID,
		OwnerID:          plan.OwnerID,
		Source:           plan.Source,
		Risk:             plan.Risk,
		ActionTypes:      types,
		AwaitingApproval: awaitingApproval,
	}
}

func planKey(workspaceID, planID string) store.Key {
	return store.Key{WorkspaceID: workspaceID, ID: planID}
}

func pendingError(op, planID string, err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return newError(op, ErrPlanNotFound, planID+" is not pending; it may have expired", nil)
	}

	return fmt.Errorf("failed to load pending plan: %w", err)
}

func workspaceError(op, workspaceID string, err error) error {
	if errors.Is(err, workspace.ErrUnknownWorkspace) {
		return newError(op, ErrResolution, "unknown workspace "+workspaceID, nil)
	}

	return newError(op, ErrExecution,
		executor.Truncate("could not load workspace: "+err.Error(), executor.MaxMessageLength), nil)
}

func identityError(op, workspaceID, who string, err error) error {
	if errors.Is(err, authz.ErrUnknownIdentity) {
		return newError(op, ErrAuthorization, who+" is not a member of this workspace", nil)
	}

	return workspaceError(op, workspaceID, err)
}

func baseline(op string, actor, agent authz.Identity, actions []models.Action) error {
	b := authz.Check(actor, agent, actions)
	if b.OK {
		return nil
	}

	parts := make([]string, 0, 2)
	if len(b.MissingActorCapabilities) > 0 {
		parts = append(parts, "you are missing "+strings.Join(b.MissingActorCapabilities, ", "))
	}

	if len(b.MissingAgentCapabilities) > 0 {
		parts = append(parts, "the service identity is missing "+strings.Join(b.MissingAgentCapabilities, ", "))
	}

	return newError(op, ErrAuthorization, strings.Join(parts, "; "), map[string]any{
		"missing_actor_capabilities": b.MissingActorCapabilities,
		"missing_agent_capabilities": b.MissingAgentCapabilities,
	})
}

func violation(v policy.Validation, pol models.Policy, count int) (string, map[string]any) {
	parts := make([]string, 0, 3)

	if !pol.Enabled {
		parts = append(parts, "guarded actions are disabled in this workspace")
	}

	blocked := make([]string, 0, len(v.BlockedTypes))
	for _, t := range v.BlockedTypes {
		blocked = append(blocked, string(t))
	}

	if len(blocked) > 0 {
		parts = append(parts, "blocked action types: "+strings.Join(blocked, ", "))
	}

	if count > pol.MaxActionsPerRun {
		parts = append(parts, fmt.Sprintf("plan has %d actions but at most %d are allowed per run", count, pol.MaxActionsPerRun))
	}

	if len(parts) == 0 {
		parts = append(parts, "no allowed actions in request")
	}

	return strings.Join(parts, "; "), map[string]any{
		"enabled":             pol.Enabled,
		"blocked_types":       blocked,
		"action_count":        count,
		"max_actions_per_run": pol.MaxActionsPerRun,
	}
}
