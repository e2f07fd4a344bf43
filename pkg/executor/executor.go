// Package executor applies single actions to a workspace and captures the compensating
// rollback step of every mutation it performs.
//
// Execute never returns an error and never panics: every failure becomes an
// unsuccessful ActionStepResult so the runner can apply one halt-and-rollback rule.
// Compensation is best effort. The platform has no multi-resource transactions, so a
// rollback restores what it can and reports the rest.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/dukex/warden/pkg/authz"
	"github.com/dukex/warden/pkg/models"
	"github.com/dukex/warden/pkg/resolver"
	"github.com/dukex/warden/pkg/workspace"
)

// MaxMessageLength bounds the failure detail carried by a step result.
const MaxMessageLength = 180

// Context bundles everything a step needs besides the action itself.
type Context struct {
	WorkspaceID string
	Workspace   *workspace.Workspace
	Actor       authz.Identity
	Agent       authz.Identity

	// Fallback is returned for empty or "current" channel references.
	Fallback workspace.Entity

	DryRun bool

	// Simulation lets later dry-run steps see what earlier steps would have created,
	// renamed, moved or deleted.
	Simulation *Simulation
}

// Executor executes actions against a workspace client.
type Executor struct {
	client   workspace.Client
	resolver *resolver.Resolver
	logger   *slog.Logger
}

// New creates an executor for client.
func New(client workspace.Client, logger *slog.Logger) *Executor {
	return &Executor{
		client:   client,
		resolver: resolver.New(client),
		logger:   logger.With("module", "executor"),
	}
}

// outcome is what a category branch produces on success.
type outcome struct {
	summary  string
	rollback *models.RollbackStep
}

// stepError is a classified branch failure.
type stepError struct {
	kind    models.FailureKind
	summary string
	err     error
}

func (e *stepError) Error() string {
	if e.err == nil {
		return e.summary
	}

	return e.summary + ": " + e.err.Error()
}

func (e *stepError) Unwrap() error {
	return e.err
}

func invalidArgs(format string, args ...any) *stepError {
	return &stepError{kind: models.FailureInvalidArguments, summary: fmt.Sprintf(format, args...)}
}

func unresolved(kind workspace.Kind, reference string) *stepError {
	if strings.TrimSpace(reference) == "" {
		return &stepError{kind: models.FailureResolution, summary: fmt.Sprintf("no %s given", kind)}
	}

	return &stepError{kind: models.FailureResolution, summary: fmt.Sprintf("%s not found: %q", kind, reference)}
}

func forbidden(format string, args ...any) *stepError {
	return &stepError{kind: models.FailureAuthorization, summary: fmt.Sprintf(format, args...)}
}

func denied(err error) *stepError {
	return &stepError{kind: models.FailureAuthorization, summary: "not allowed", err: err}
}

func platform(summary string, err error) *stepError {
	return &stepError{kind: models.FailureExecution, summary: summary, err: err}
}

// Execute runs one action. On a dry run it resolves targets and reports what would
// happen without calling any mutating operation and without a rollback step.
func (e *Executor) Execute(ctx context.Context, action models.Action, ec Context) (result models.ActionStepResult) {
	result.Type = action.Type

	defer func() {
		if r := recover(); r != nil {
			e.logger.ErrorContext(ctx, "Step panicked", "action_type", action.Type, "panic", r)
			result = failure(action.Type, &stepError{kind: models.FailureExecution, summary: "internal error", err: fmt.Errorf("%v", r)})
		}
	}()

	if !action.Type.Valid() {
		return failure(action.Type, invalidArgs("unknown action type %q", action.Type))
	}

	if err := models.ValidateArgs(action); err != nil {
		return failure(action.Type, &stepError{kind: models.FailureInvalidArguments, summary: err.Error()})
	}

	if ec.Workspace == nil {
		ws, err := e.client.Workspace(ctx, ec.WorkspaceID)
		if err != nil {
			return failure(action.Type, platform("workspace unavailable", err))
		}

		ec.Workspace = ws
	}

	out, err := e.dispatch(ctx, action, ec)
	if err != nil {
		e.logger.DebugContext(ctx, "Step failed",
			"workspace_id", ec.WorkspaceID, "action_type", action.Type, "dry_run", ec.DryRun, "error", err)

		return failure(action.Type, err)
	}

	if ec.DryRun {
		out.rollback = nil
	}

	e.logger.DebugContext(ctx, "Step succeeded",
		"workspace_id", ec.WorkspaceID, "action_type", action.Type, "dry_run", ec.DryRun, "summary", out.summary)

	return models.ActionStepResult{
		Type:         action.Type,
		Success:      true,
		Summary:      out.summary,
		RollbackStep: out.rollback,
	}
}

func (e *Executor) dispatch(ctx context.Context, action models.Action, ec Context) (outcome, *stepError) {
	switch action.Type {
	case models.ActionCreateChannel:
		return e.createChannel(ctx, action, ec, false)
	case models.ActionCreateCategory:
		return e.createChannel(ctx, action, ec, true)
	case models.ActionCreateRole:
		return e.createRole(ctx, action, ec)
	case models.ActionDeleteChannel:
		return e.deleteChannel(ctx, action, ec)
	case models.ActionDeleteRole:
		return e.deleteRole(ctx, action, ec)
	case models.ActionRenameChannel:
		return e.renameChannel(ctx, action, ec)
	case models.ActionRenameRole:
		return e.roleAttribute(ctx, action, ec, workspace.AttrName)
	case models.ActionMoveChannel:
		return e.moveChannel(ctx, action, ec)
	case models.ActionSetTopic:
		return e.channelAttribute(ctx, action, ec, workspace.AttrTopic)
	case models.ActionSetNSFW:
		return e.channelAttribute(ctx, action, ec, workspace.AttrNSFW)
	case models.ActionSetSlowmode:
		return e.channelAttribute(ctx, action, ec, workspace.AttrSlowmode)
	case models.ActionSetRoleColor:
		return e.roleAttribute(ctx, action, ec, workspace.AttrColor)
	case models.ActionSetRoleMentionable:
		return e.roleAttribute(ctx, action, ec, workspace.AttrMentionable)
	case models.ActionSetRoleHoist:
		return e.roleAttribute(ctx, action, ec, workspace.AttrHoist)
	case models.ActionAddRole:
		return e.membership(ctx, action, ec, true)
	case models.ActionRemoveRole:
		return e.membership(ctx, action, ec, false)
	case models.ActionLockChannel,
		models.ActionUnlockChannel,
		models.ActionGrantAccess,
		models.ActionRevokeAccess,
		models.ActionHideChannel,
		models.ActionRevealChannel:
		return e.overwrite(ctx, action, ec)
	}

	return outcome{}, invalidArgs("unknown action type %q", action.Type)
}

func failure(t models.ActionType, err error) models.ActionStepResult {
	result := models.ActionStepResult{Type: t, Failure: models.FailureExecution, Summary: "failed"}

	var se *stepError
	if errors.As(err, &se) {
		result.Failure = se.kind
		result.Summary = Truncate(se.summary, MaxMessageLength)
	}

	result.Message = Truncate(err.Error(), MaxMessageLength)

	return result
}

// Truncate shortens s to at most n runes, marking the cut with an ellipsis.
func Truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}

	runes := []rune(s)

	return string(runes[:n-1]) + "…"
}

func (e *Executor) resolve(
	ctx context.Context,
	ec Context,
	kind workspace.Kind,
	reference string,
	fallback workspace.Entity,
) (workspace.Entity, *stepError) {
	if renamed := ec.Simulation.renamedTo(ec.DryRun, kind, reference); renamed != nil {
		return renamed, nil
	}

	entity, err := e.resolver.Resolve(ctx, ec.WorkspaceID, kind, reference, fallback)
	if err != nil {
		return nil, platform("lookup failed", err)
	}

	if entity != nil {
		entity = ec.Simulation.overlay(ec.DryRun, entity, reference)
	}

	if entity == nil {
		if sim := ec.Simulation.lookup(ec.DryRun, kind, reference); sim != nil {
			return sim, nil
		}

		return nil, unresolved(kind, reference)
	}

	return entity, nil
}

func (e *Executor) resolveChannel(ctx context.Context, ec Context, reference string) (*workspace.Channel, *stepError) {
	entity, err := e.resolve(ctx, ec, workspace.KindChannel, reference, ec.Fallback)
	if err != nil {
		return nil, err
	}

	return entity.(*workspace.Channel), nil
}

func (e *Executor) resolveRole(ctx context.Context, ec Context, reference string) (*workspace.Role, *stepError) {
	entity, err := e.resolve(ctx, ec, workspace.KindRole, reference, nil)
	if err != nil {
		return nil, err
	}

	return entity.(*workspace.Role), nil
}

func (e *Executor) resolveMember(ctx context.Context, ec Context, reference string) (*workspace.Member, *stepError) {
	entity, err := e.resolve(ctx, ec, workspace.KindMember, reference, nil)
	if err != nil {
		return nil, err
	}

	return entity.(*workspace.Member), nil
}

// resolveChannelOrCategory prefers a text channel and falls back to a category of the
// same name.
func (e *Executor) resolveChannelOrCategory(ctx context.Context, ec Context, reference string) (*workspace.Channel, *stepError) {
	channel, serr := e.resolveChannel(ctx, ec, reference)
	if serr == nil || strings.TrimSpace(reference) == "" {
		return channel, serr
	}

	entity, cerr := e.resolve(ctx, ec, workspace.KindCategory, reference, nil)
	if cerr != nil {
		return nil, serr
	}

	return entity.(*workspace.Channel), nil
}
