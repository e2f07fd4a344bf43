package models

import (
	"time"

	"github.com/dukex/warden/pkg/workspace"
)

// RollbackKind selects the compensation strategy of a RollbackStep.
type RollbackKind string

const (
	// RollbackDeleteResource undoes a creation.
	RollbackDeleteResource RollbackKind = "delete_resource"
	// RollbackRecreateResource undoes a deletion from a pre-deletion snapshot.
	RollbackRecreateResource RollbackKind = "recreate_resource"
	// RollbackRestoreAttributes restores prior attribute values.
	RollbackRestoreAttributes RollbackKind = "restore_attributes"
	// RollbackRestorePermissionOverwrite restores or removes a channel overwrite.
	RollbackRestorePermissionOverwrite RollbackKind = "restore_permission_overwrite"
	// RollbackReverseMembership re-adds or removes a role from a member.
	RollbackReverseMembership RollbackKind = "reverse_membership"
)

// ResourceSnapshot captures what is needed to recreate a deleted channel or role.
type ResourceSnapshot struct {
	Kind        workspace.Kind        `json:"kind"`
	Name        string                `json:"name"`
	ParentID    string                `json:"parent_id,omitempty"`
	Topic       string                `json:"topic,omitempty"`
	NSFW        bool                  `json:"nsfw,omitempty"`
	Slowmode    int                   `json:"slowmode,omitempty"`
	Overwrites  []workspace.Overwrite `json:"overwrites,omitempty"`
	Position    int                   `json:"position,omitempty"`
	Color       int                   `json:"color,omitempty"`
	Mentionable bool                  `json:"mentionable,omitempty"`
	Hoist       bool                  `json:"hoist,omitempty"`
	Permissions workspace.Permission  `json:"permissions,omitempty"`
	MemberIDs   []string              `json:"member_ids,omitempty"`

	// ChannelOverwrites are the channel overwrites that named a deleted role.
	ChannelOverwrites []ChannelOverwrite `json:"channel_overwrites,omitempty"`
}

// ChannelOverwrite is a permission overwrite together with the channel it sits on.
type ChannelOverwrite struct {
	ChannelID string              `json:"channel_id"`
	Overwrite workspace.Overwrite `json:"overwrite"`
}

// RollbackStep is the compensating descriptor captured when a step succeeds. Which
// fields are meaningful depends on Kind.
type RollbackStep struct {
	Kind         RollbackKind   `json:"kind"`
	ResourceKind workspace.Kind `json:"resource_kind"`
	ResourceID   string         `json:"resource_id"`
	Summary      string         `json:"summary"`

	Snapshot *ResourceSnapshot `json:"snapshot,omitempty"`

	PriorAttributes workspace.Attributes `json:"prior_attributes,omitempty"`

	TargetID     string                    `json:"target_id,omitempty"`
	TargetType   workspace.OverwriteTarget `json:"target_type,omitempty"`
	PriorAllow   workspace.Permission      `json:"prior_allow,omitempty"`
	PriorDeny    workspace.Permission      `json:"prior_deny,omitempty"`
	HadOverwrite bool                      `json:"had_overwrite,omitempty"`

	MemberID    string `json:"member_id,omitempty"`
	ShouldReAdd bool   `json:"should_re_add,omitempty"`
}

// FailureKind classifies why a step failed.
type FailureKind string

const (
	FailureInvalidArguments FailureKind = "invalid_arguments"
	FailureResolution       FailureKind = "resolution"
	FailureAuthorization    FailureKind = "authorization"
	FailureExecution        FailureKind = "execution"
)

// ActionStepResult is the outcome of one executed (or simulated) action.
type ActionStepResult struct {
	Type         ActionType    `json:"type"`
	Success      bool          `json:"success"`
	Summary      string        `json:"summary"`
	Message      string        `json:"message,omitempty"`
	Failure      FailureKind   `json:"failure,omitempty"`
	RollbackStep *RollbackStep `json:"rollback_step,omitempty"`
}

// RunState tracks a run through Pending -> Executing -> Completed|Failed -> RolledBack.
type RunState string

const (
	RunPending    RunState = "pending"
	RunExecuting  RunState = "executing"
	RunCompleted  RunState = "completed"
	RunFailed     RunState = "failed"
	RunRolledBack RunState = "rolled_back"
)

// RunResult is the outcome of running a plan. RollbackSteps is in application order,
// which is the reverse of execution order.
type RunResult struct {
	RunID            string             `json:"run_id"`
	PlanID           string             `json:"plan_id"`
	DryRun           bool               `json:"dry_run"`
	OK               bool               `json:"ok"`
	RolledBack       bool               `json:"rolled_back"`
	State            RunState           `json:"state"`
	StartedAt        time.Time          `json:"started_at"`
	FinishedAt       time.Time          `json:"finished_at"`
	Results          []ActionStepResult `json:"results"`
	RollbackSteps    []RollbackStep     `json:"rollback_steps,omitempty"`
	RollbackFailures []string           `json:"rollback_failures,omitempty"`
}

// AuditStatus is the terminal status recorded for a run.
type AuditStatus string

const (
	AuditSuccess   AuditStatus = "success"
	AuditDryRun    AuditStatus = "dry_run"
	AuditFailed    AuditStatus = "failed"
	AuditCancelled AuditStatus = "cancelled"
)

// RollbackStatusAuto marks an entry whose run was compensated automatically.
const RollbackStatusAuto = "auto_rollback_applied"

// RollbackStatusManualPrefix prefixes the timestamp of a manual rollback.
const RollbackStatusManualPrefix = "manual:"

// AuditActionSummary is the condensed form of an ActionStepResult kept in the audit log.
type AuditActionSummary struct {
	Type    ActionType `json:"type"`
	Success bool       `json:"success"`
	Summary string     `json:"summary"`
	Message string     `json:"message,omitempty"`
}

// AuditEntry is the durable record of one completed, failed or cancelled run.
type AuditEntry struct {
	ID               string               `json:"id"`
	PlanID           string               `json:"plan_id"`
	RequestText      string               `json:"request_text"`
	Status           AuditStatus          `json:"status"`
	Risk             Risk                 `json:"risk"`
	CreatedBy        string               `json:"created_by"`
	CreatedAt        time.Time            `json:"created_at"`
	FinishedAt       time.Time            `json:"finished_at"`
	Actions          []AuditActionSummary `json:"actions"`
	RollbackSteps    []RollbackStep       `json:"rollback_steps,omitempty"`
	RollbackFailures []string             `json:"rollback_failures,omitempty"`
	RollbackStatus   *string              `json:"rollback_status,omitempty"`
}

// Summarize condenses step results for the audit log.
func Summarize(results []ActionStepResult) []AuditActionSummary {
	out := make([]AuditActionSummary, 0, len(results))
	for _, r := range results {
		out = append(out, AuditActionSummary{
			Type:    r.Type,
			Success: r.Success,
			Summary: r.Summary,
			Message: r.Message,
		})
	}

	return out
}
