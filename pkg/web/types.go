package web

import "github.com/dukex/warden/pkg/models"

// SubmitPlanRequest is the body of POST /workspaces/:workspaceId/plans.
type SubmitPlanRequest struct {
	OwnerID     string            `json:"owner_id"     validate:"required"`
	ChannelID   string            `json:"channel_id"`
	RequestText string            `json:"request_text" validate:"required,max=2000"`
	Source      models.PlanSource `json:"source"       validate:"omitempty,oneof=manual auto workflow"`
}

// ActorRequest names the member acting on a plan or an audit entry.
type ActorRequest struct {
	ActorID string `json:"actor_id" validate:"required"`
}

// UpdatePolicyRequest is the body of PUT /workspaces/:workspaceId/policy.
type UpdatePolicyRequest struct {
	ActorID string        `json:"actor_id" validate:"required"`
	Policy  models.Policy `json:"policy"`
}

// SaveWorkflowRequest is the body of PUT /workspaces/:workspaceId/workflows/:name.
type SaveWorkflowRequest struct {
	ActorID     string `json:"actor_id"     validate:"required"`
	RequestText string `json:"request_text" validate:"required,max=2000"`
}

// RunWorkflowRequest is the body of POST /workspaces/:workspaceId/workflows/:name/run.
type RunWorkflowRequest struct {
	ActorID   string `json:"actor_id"   validate:"required"`
	ChannelID string `json:"channel_id"`
}

// AuditResponse lists audit entries, most recent first.
type AuditResponse struct {
	Entries []models.AuditEntry `json:"entries"`
}

// WorkflowsResponse lists the saved workflows of a workspace.
type WorkflowsResponse struct {
	Workflows []models.WorkflowTemplate `json:"workflows"`
}
