package models

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// JSONSchema represents a JSON Schema for action argument validation.
type JSONSchema struct {
	Type                 string               `json:"type"`
	Properties           map[string]*Property `json:"properties,omitempty"`
	Required             []string             `json:"required,omitempty"`
	Title                string               `json:"title,omitempty"`
	Description          string               `json:"description,omitempty"`
	AdditionalProperties bool                 `json:"additionalProperties"`
}

// Property represents a JSON Schema property.
type Property struct {
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
	MinLength   *int   `json:"minLength,omitempty"`
	MaxLength   *int   `json:"maxLength,omitempty"`
	Minimum     *int   `json:"minimum,omitempty"`
	Maximum     *int   `json:"maximum,omitempty"`
	Pattern     string `json:"pattern,omitempty"`
}

const (
	// MaxNameLength bounds channel, category and role names.
	MaxNameLength = 100
	// MaxTopicLength bounds channel topics.
	MaxTopicLength = 1024
	// MaxSlowmodeSeconds is the largest slowmode the platform accepts.
	MaxSlowmodeSeconds = 21600
)

func intPtr(v int) *int { return &v }

func reference(description string) *Property {
	return &Property{Type: "string", Description: description, MinLength: intPtr(1), MaxLength: intPtr(200)}
}

func nameProperty() *Property {
	return &Property{Type: "string", Description: "New name", MinLength: intPtr(1), MaxLength: intPtr(MaxNameLength)}
}

func flag() *Property {
	return &Property{Type: "boolean", Description: "Desired state"}
}

func object(required []string, props map[string]*Property) *JSONSchema {
	return &JSONSchema{
		Type:                 "object",
		Properties:           props,
		Required:             required,
		AdditionalProperties: true,
	}
}

var argSchemas = map[ActionType]*JSONSchema{
	ActionCreateChannel: object([]string{"name"}, map[string]*Property{
		"name":     nameProperty(),
		"category": reference("Category to create the channel under"),
		"topic":    {Type: "string", MaxLength: intPtr(MaxTopicLength)},
	}),
	ActionCreateCategory: object([]string{"name"}, map[string]*Property{
		"name": nameProperty(),
	}),
	ActionCreateRole: object([]string{"name"}, map[string]*Property{
		"name":  nameProperty(),
		"color": {Type: "string", Pattern: `^#?[0-9a-fA-F]{6}$`},
	}),
	ActionDeleteChannel: object([]string{"channel"}, map[string]*Property{
		"channel": reference("Channel to delete"),
	}),
	ActionDeleteRole: object([]string{"role"}, map[string]*Property{
		"role": reference("Role to delete"),
	}),
	ActionRenameChannel: object([]string{"name"}, map[string]*Property{
		"channel": reference("Channel to rename"),
		"name":    nameProperty(),
	}),
	ActionRenameRole: object([]string{"role", "name"}, map[string]*Property{
		"role": reference("Role to rename"),
		"name": nameProperty(),
	}),
	ActionMoveChannel: object([]string{"category"}, map[string]*Property{
		"channel":  reference("Channel to move"),
		"category": reference("Destination category"),
	}),
	ActionSetTopic: object([]string{"topic"}, map[string]*Property{
		"channel": reference("Channel to edit"),
		"topic":   {Type: "string", MaxLength: intPtr(MaxTopicLength)},
	}),
	ActionSetNSFW: object([]string{"enabled"}, map[string]*Property{
		"channel": reference("Channel to edit"),
		"enabled": flag(),
	}),
	ActionSetSlowmode: object([]string{"seconds"}, map[string]*Property{
		"channel": reference("Channel to edit"),
		"seconds": {Type: "integer", Minimum: intPtr(0), Maximum: intPtr(MaxSlowmodeSeconds)},
	}),
	ActionSetRoleColor: object([]string{"role", "color"}, map[string]*Property{
		"role":  reference("Role to edit"),
		"color": {Type: "string", Pattern: `^#?[0-9a-fA-F]{6}$`},
	}),
	ActionSetRoleMentionable: object([]string{"role", "enabled"}, map[string]*Property{
		"role":    reference("Role to edit"),
		"enabled": flag(),
	}),
	ActionSetRoleHoist: object([]string{"role", "enabled"}, map[string]*Property{
		"role":    reference("Role to edit"),
		"enabled": flag(),
	}),
	ActionAddRole: object([]string{"role", "member"}, map[string]*Property{
		"role":   reference("Role to grant"),
		"member": reference("Member receiving the role"),
	}),
	ActionRemoveRole: object([]string{"role", "member"}, map[string]*Property{
		"role":   reference("Role to revoke"),
		"member": reference("Member losing the role"),
	}),
	ActionLockChannel: object(nil, map[string]*Property{
		"channel": reference("Channel to lock"),
		"target":  reference("Role or member; defaults to everyone"),
	}),
	ActionUnlockChannel: object(nil, map[string]*Property{
		"channel": reference("Channel to unlock"),
		"target":  reference("Role or member; defaults to everyone"),
	}),
	ActionGrantAccess: object([]string{"target"}, map[string]*Property{
		"channel": reference("Channel to open"),
		"target":  reference("Role or member gaining access"),
	}),
	ActionRevokeAccess: object([]string{"target"}, map[string]*Property{
		"channel": reference("Channel to close"),
		"target":  reference("Role or member losing access"),
	}),
	ActionHideChannel: object(nil, map[string]*Property{
		"channel": reference("Channel to hide"),
		"target":  reference("Role or member; defaults to everyone"),
	}),
	ActionRevealChannel: object(nil, map[string]*Property{
		"channel": reference("Channel to reveal"),
		"target":  reference("Role or member; defaults to everyone"),
	}),
}

// ArgsSchema returns the argument schema of t, or nil for unknown types.
func ArgsSchema(t ActionType) *JSONSchema {
	return argSchemas[t]
}

// ValidateArgs checks action arguments against the schema of their action type.
func ValidateArgs(action Action) error {
	schema := ArgsSchema(action.Type)
	if schema == nil {
		return fmt.Errorf("unknown action type %q", action.Type)
	}

	args := action.Args
	if args == nil {
		args = map[string]any{}
	}

	result, err := gojsonschema.Validate(gojsonschema.NewGoLoader(schema), gojsonschema.NewGoLoader(args))
	if err != nil {
		return fmt.Errorf("failed to validate arguments: %w", err)
	}

	if !result.Valid() {
		messages := make([]string, 0, len(result.Errors()))
		for _, resultErr := range result.Errors() {
			messages = append(messages, resultErr.String())
		}

		return fmt.Errorf("invalid arguments for %s: %s", action.Type, strings.Join(messages, "; "))
	}

	return nil
}
