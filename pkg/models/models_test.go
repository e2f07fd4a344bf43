package models_test

import (
	"testing"

	"github.com/dukex/warden/pkg/models"
	"github.com/stretchr/testify/assert"
)

func TestActionTypes(t *testing.T) {
	for _, actionType := range models.AllActionTypes() {
		assert.True(t, actionType.Valid(), actionType)
		assert.NotEmpty(t, actionType.Category(), actionType)
		assert.NotNil(t, models.ArgsSchema(actionType), actionType)
	}

	assert.False(t, models.ActionType("ban_member").Valid())
	assert.Equal(t, models.CategoryDeletion, models.ActionDeleteRole.Category())
}

func TestPolicyAllows(t *testing.T) {
	pol := models.Policy{AllowedActionTypes: []models.ActionType{models.ActionLockChannel}}

	assert.True(t, pol.Allows(models.ActionLockChannel))
	assert.False(t, pol.Allows(models.ActionUnlockChannel))
}

func TestValidateArgs(t *testing.T) {
	tests := []struct {
		name    string
		action  models.Action
		wantErr string
	}{
		{
			name:   "create channel",
			action: models.Action{Type: models.ActionCreateChannel, Args: map[string]any{"name": "mod-log", "category": "Staff"}},
		},
		{
			name:   "lock without arguments",
			action: models.Action{Type: models.ActionLockChannel},
		},
		{
			name:   "slowmode from json",
			action: models.Action{Type: models.ActionSetSlowmode, Args: map[string]any{"seconds": float64(30)}},
		},
		{
			name:    "missing name",
			action:  models.Action{Type: models.ActionCreateRole, Args: map[string]any{}},
			wantErr: "name",
		},
		{
			name:    "slowmode out of range",
			action:  models.Action{Type: models.ActionSetSlowmode, Args: map[string]any{"seconds": 999999}},
			wantErr: "invalid arguments for set_slowmode",
		},
		{
			name:    "bad color",
			action:  models.Action{Type: models.ActionSetRoleColor, Args: map[string]any{"role": "Members", "color": "red"}},
			wantErr: "color",
		},
		{
			name:    "unknown type",
			action:  models.Action{Type: "ban_member"},
			wantErr: "unknown action type",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := models.ValidateArgs(tt.action)
			if tt.wantErr == "" {
				assert.NoError(t, err)

				return
			}

			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestActionArg(t *testing.T) {
	action := models.Action{Args: map[string]any{"name": "general", "seconds": 5}}

	assert.Equal(t, "general", action.Arg("name"))
	assert.Empty(t, action.Arg("seconds"))
	assert.Empty(t, action.Arg("missing"))
}
