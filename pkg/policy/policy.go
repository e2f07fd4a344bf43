// Package policy validates parsed plans against a workspace's action policy.
package policy

import (
	"fmt"
	"slices"
	"strings"

	"github.com/dukex/warden/pkg/models"
	"github.com/go-playground/validator/v10"
)

const (
	// MinActionsPerRun and MaxActionsPerRun bound Policy.MaxActionsPerRun.
	MinActionsPerRun = 1
	MaxActionsPerRun = 12

	defaultActionsPerRun = 8
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validation is the outcome of checking a plan against a policy.
type Validation struct {
	OK              bool                `json:"ok"`
	AcceptedActions []models.Action     `json:"accepted_actions"`
	BlockedTypes    []models.ActionType `json:"blocked_types,omitempty"`
	Warnings        []string            `json:"warnings,omitempty"`
}

// Default returns the policy applied to workspaces that never configured one: enabled,
// approval required, and every non-destructive action type allowed.
func Default() models.Policy {
	allowed := make([]models.ActionType, 0)

	for _, t := range models.AllActionTypes() {
		if t.Category() != models.CategoryDeletion {
			allowed = append(allowed, t)
		}
	}

	return models.Policy{
		Enabled:            true,
		RequireApproval:    true,
		MaxActionsPerRun:   defaultActionsPerRun,
		AllowedActionTypes: allowed,
	}
}

// Normalize clamps the action cap into range and drops unknown or duplicate action types.
func Normalize(p models.Policy) models.Policy {
	p.MaxActionsPerRun = max(MinActionsPerRun, min(MaxActionsPerRun, p.MaxActionsPerRun))

	allowed := make([]models.ActionType, 0, len(p.AllowedActionTypes))
	for _, t := range p.AllowedActionTypes {
		if t.Valid() && !slices.Contains(allowed, t) {
			allowed = append(allowed, t)
		}
	}

	p.AllowedActionTypes = allowed

	return p
}

// Check reports structural problems in an administrator-supplied policy.
func Check(p models.Policy) error {
	if err := validate.Struct(p); err != nil {
		return fmt.Errorf("invalid policy: %w", err)
	}

	unknown := make([]string, 0)
	for _, t := range p.AllowedActionTypes {
		if !t.Valid() {
			unknown = append(unknown, string(t))
		}
	}

	if len(unknown) > 0 {
		return fmt.Errorf("invalid policy: unknown action types %s", strings.Join(unknown, ", "))
	}

	return nil
}

// Validate partitions plan actions into accepted and blocked. The plan is only OK when
// the policy is enabled, nothing is blocked, at least one action is accepted and the
// plan fits the per-run cap. Plans are never silently trimmed to fit.
func Validate(plan models.ParsedPlan, p models.Policy) Validation {
	v := Validation{
		AcceptedActions: make([]models.Action, 0, len(plan.Actions)),
		Warnings:        slices.Clone(plan.Warnings),
	}

	for _, action := range plan.Actions {
		if p.Allows(action.Type) {
			v.AcceptedActions = append(v.AcceptedActions, action)

			continue
		}

		if !slices.Contains(v.BlockedTypes, action.Type) {
			v.BlockedTypes = append(v.BlockedTypes, action.Type)
		}
	}

	if !p.Enabled {
		v.Warnings = append(v.Warnings, "guarded actions are disabled in this workspace")
	}

	if len(v.BlockedTypes) > 0 {
		names := make([]string, 0, len(v.BlockedTypes))
		for _, t := range v.BlockedTypes {
			names = append(names, string(t))
		}

		v.Warnings = append(v.Warnings, "blocked by policy: "+strings.Join(names, ", "))
	}

	if len(plan.Actions) > p.MaxActionsPerRun {
		v.Warnings = append(v.Warnings,
			fmt.Sprintf("plan has %d actions, policy allows at most %d per run", len(plan.Actions), p.MaxActionsPerRun))
	}

	if len(v.AcceptedActions) == 0 {
		v.Warnings = append(v.Warnings, "no allowed actions in request")
	}

	v.OK = p.Enabled &&
		len(v.AcceptedActions) > 0 &&
		len(v.BlockedTypes) == 0 &&
		len(plan.Actions) <= p.MaxActionsPerRun

	return v
}
