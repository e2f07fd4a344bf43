// Package events defines the lifecycle notifications the engine publishes.
package events

import (
	"time"

	"github.com/dukex/warden/pkg/models"
	"github.com/google/uuid"
)

type EventType string

// Topic carries every engine event; consumers filter on EventTypeMetadataKey.
const Topic = "warden.events"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	PlanCreatedEvent     EventType = "plan.created"
	PlanDeniedEvent      EventType = "plan.denied"
	RunFinishedEvent     EventType = "run.finished"
	AuditRolledBackEvent EventType = "audit.rolled_back"
)

type BaseEvent struct {
	ID          string         `json:"id"`
	Type        EventType      `json:"type"`
	Timestamp   time.Time      `json:"timestamp"`
	WorkspaceID string         `json:"workspace_id"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// PlanCreated is published for every plan that passed policy and the capability
// baseline, whether it runs immediately or waits for approval.
type PlanCreated struct {
	BaseEvent

	PlanID           string            `json:"plan_id"`
	OwnerID          string            `json:"owner_id"`
	Source           models.PlanSource `json:"source"`
	Risk             models.Risk       `json:"risk"`
	ActionTypes      []string          `json:"action_types"`
	AwaitingApproval bool              `json:"awaiting_approval"`
}

func (e PlanCreated) GetType() EventType {
	return PlanCreatedEvent
}

type PlanDenied struct {
	BaseEvent

	PlanID   string `json:"plan_id"`
	DeniedBy string `json:"denied_by"`
}

func (e PlanDenied) GetType() EventType {
	return PlanDeniedEvent
}

type RunFinished struct {
	BaseEvent

	RunID            string          `json:"run_id"`
	PlanID           string          `json:"plan_id"`
	State            models.RunState `json:"state"`
	DryRun           bool            `json:"dry_run"`
	OK               bool            `json:"ok"`
	RolledBack       bool            `json:"rolled_back"`
	StepsExecuted    int             `json:"steps_executed"`
	RollbackFailures int             `json:"rollback_failures"`
	DurationMs       int64           `json:"duration_ms"`
}

func (e RunFinished) GetType() EventType {
	return RunFinishedEvent
}

type AuditRolledBack struct {
	BaseEvent

	RunID          string   `json:"run_id"`
	RolledBackBy   string   `json:"rolled_back_by"`
	RollbackStatus string   `json:"rollback_status"`
	Failures       []string `json:"failures,omitempty"`
}

func (e AuditRolledBack) GetType() EventType {
	return AuditRolledBackEvent
}

func NewBaseEvent(eventType EventType, workspaceID string) BaseEvent {
	return BaseEvent{
		ID:          uuid.New().String(),
		Type:        eventType,
		Timestamp:   time.Now().UTC(),
		WorkspaceID: workspaceID,
		Metadata:    make(map[string]any),
	}
}

// NewRunFinished summarizes result as a RunFinished event.
func NewRunFinished(workspaceID string, result models.RunResult) RunFinished {
	return RunFinished{
		BaseEvent:        NewBaseEvent(RunFinishedEvent, workspaceID),
		RunID:            result.RunID,
		PlanID:           result.PlanID,
		State:            result.State,
		DryRun:           result.DryRun,
		OK:               result.OK,
		RolledBack:       result.RolledBack,
		StepsExecuted:    len(result.Results),
		RollbackFailures: len(result.RollbackFailures),
		DurationMs:       result.FinishedAt.Sub(result.StartedAt).Milliseconds(),
	}
}
