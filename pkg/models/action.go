package models

// ActionType is the closed set of administrative mutations the engine understands.
type ActionType string

const (
	ActionCreateChannel      ActionType = "create_channel"
	ActionCreateCategory     ActionType = "create_category"
	ActionCreateRole         ActionType = "create_role"
	ActionDeleteChannel      ActionType = "delete_channel"
	ActionDeleteRole         ActionType = "delete_role"
	ActionRenameChannel      ActionType = "rename_channel"
	ActionRenameRole         ActionType = "rename_role"
	ActionMoveChannel        ActionType = "move_channel"
	ActionSetTopic           ActionType = "set_topic"
	ActionSetNSFW            ActionType = "set_nsfw"
	ActionSetSlowmode        ActionType = "set_slowmode"
	ActionSetRoleColor       ActionType = "set_role_color"
	ActionSetRoleMentionable ActionType = "set_role_mentionable"
	ActionSetRoleHoist       ActionType = "set_role_hoist"
	ActionAddRole            ActionType = "add_role"
	ActionRemoveRole         ActionType = "remove_role"
	ActionLockChannel        ActionType = "lock_channel"
	ActionUnlockChannel      ActionType = "unlock_channel"
	ActionGrantAccess        ActionType = "grant_access"
	ActionRevokeAccess       ActionType = "revoke_access"
	ActionHideChannel        ActionType = "hide_channel"
	ActionRevealChannel      ActionType = "reveal_channel"
)

// ActionCategory groups action types by their execution contract.
type ActionCategory string

const (
	CategoryCreation   ActionCategory = "creation"
	CategoryDeletion   ActionCategory = "deletion"
	CategoryAttribute  ActionCategory = "attribute"
	CategoryMembership ActionCategory = "membership"
	CategoryOverwrite  ActionCategory = "overwrite"
)

var actionCategories = map[ActionType]ActionCategory{
	ActionCreateChannel:      CategoryCreation,
	ActionCreateCategory:     CategoryCreation,
	ActionCreateRole:         CategoryCreation,
	ActionDeleteChannel:      CategoryDeletion,
	ActionDeleteRole:         CategoryDeletion,
	ActionRenameChannel:      CategoryAttribute,
	ActionRenameRole:         CategoryAttribute,
	ActionMoveChannel:        CategoryAttribute,
	ActionSetTopic:           CategoryAttribute,
	ActionSetNSFW:            CategoryAttribute,
	ActionSetSlowmode:        CategoryAttribute,
	ActionSetRoleColor:       CategoryAttribute,
	ActionSetRoleMentionable: CategoryAttribute,
	ActionSetRoleHoist:       CategoryAttribute,
	ActionAddRole:            CategoryMembership,
	ActionRemoveRole:         CategoryMembership,
	ActionLockChannel:        CategoryOverwrite,
	ActionUnlockChannel:      CategoryOverwrite,
	ActionGrantAccess:        CategoryOverwrite,
	ActionRevokeAccess:       CategoryOverwrite,
	ActionHideChannel:        CategoryOverwrite,
	ActionRevealChannel:      CategoryOverwrite,
}

// AllActionTypes lists every action type in declaration order.
func AllActionTypes() []ActionType {
	return []ActionType{
		ActionCreateChannel, ActionCreateCategory, ActionCreateRole,
		ActionDeleteChannel, ActionDeleteRole,
		ActionRenameChannel, ActionRenameRole, ActionMoveChannel,
		ActionSetTopic, ActionSetNSFW, ActionSetSlowmode,
		ActionSetRoleColor, ActionSetRoleMentionable, ActionSetRoleHoist,
		ActionAddRole, ActionRemoveRole,
		ActionLockChannel, ActionUnlockChannel,
		ActionGrantAccess, ActionRevokeAccess,
		ActionHideChannel, ActionRevealChannel,
	}
}

// Valid reports whether t is a known action type.
func (t ActionType) Valid() bool {
	_, ok := actionCategories[t]

	return ok
}

// Category returns the execution category of t, or "" for unknown types.
func (t ActionType) Category() ActionCategory {
	return actionCategories[t]
}

// Action is one requested mutation with loosely typed arguments.
type Action struct {
	Type ActionType     `json:"type" validate:"required"`
	Args map[string]any `json:"args,omitempty"`
}

// Arg returns the string form of a named argument, or "" when absent.
func (a Action) Arg(name string) string {
	if v, ok := a.Args[name].(string); ok {
		return v
	}

	return ""
}

// Risk is the parser-assigned severity of a request.
type Risk string

const (
	RiskLow    Risk = "low"
	RiskMedium Risk = "medium"
	RiskHigh   Risk = "high"
)

// ParsedPlan is the output of the request parser. It is never mutated after parsing.
type ParsedPlan struct {
	Actions            []Action `json:"actions"`
	Risk               Risk     `json:"risk"`
	Warnings           []string `json:"warnings,omitempty"`
	UnsupportedClauses []string `json:"unsupported_clauses,omitempty"`
}
