package models

import (
	"time"
)

// PlanIDPrefix distinguishes plan ids from other opaque ids.
const PlanIDPrefix = "plan_"

// PlanSource records how a plan was requested.
type PlanSource string

const (
	SourceManual   PlanSource = "manual"
	SourceAuto     PlanSource = "auto"
	SourceWorkflow PlanSource = "workflow"
)

// Plan is a policy-filtered set of actions derived from one request. Plans live only in
// memory; they are consumed by execution, denial or TTL expiry. ChannelID is the channel
// the request came from; it stands in for steps that name no channel.
type Plan struct {
	ID          string     `json:"id"`
	WorkspaceID string     `json:"workspace_id"`
	OwnerID     string     `json:"owner_id"`
	ChannelID   string     `json:"channel_id,omitempty"`
	RequestText string     `json:"request_text"`
	Source      PlanSource `json:"source"`
	Risk        Risk       `json:"risk"`
	Actions     []Action   `json:"actions"`
	Warnings    []string   `json:"warnings,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// Policy gates which actions may run in a workspace.
type Policy struct {
	Enabled            bool         `json:"enabled"              yaml:"enabled"`
	RequireApproval    bool         `json:"require_approval"     yaml:"require_approval"`
	MaxActionsPerRun   int          `json:"max_actions_per_run"  yaml:"max_actions_per_run"  validate:"min=1,max=12"`
	AllowedActionTypes []ActionType `json:"allowed_action_types" yaml:"allowed_action_types" validate:"dive,required"`
}

// Allows reports whether t is present in the allowed set.
func (p Policy) Allows(t ActionType) bool {
	for _, allowed := range p.AllowedActionTypes {
		if allowed == t {
			return true
		}
	}

	return false
}

// WorkflowTemplate is a named, reusable request text.
type WorkflowTemplate struct {
	Name        string    `json:"name"`
	RequestText string    `json:"request_text"`
	CreatedBy   string    `json:"created_by"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedBy   string    `json:"updated_by"`
	UpdatedAt   time.Time `json:"updated_at"`
}
