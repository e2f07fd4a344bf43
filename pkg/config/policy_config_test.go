package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/dukex/warden/pkg/config"
	"github.com/dukex/warden/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validPolicies = `
workspaces:
  guild-2:
    enabled: true
    require_approval: false
    max_actions_per_run: 4
    allowed_action_types: [lock_channel, unlock_channel]
  guild-1:
    enabled: true
    require_approval: true
    max_actions_per_run: 8
    allowed_action_types: [create_channel]
`

func TestParsePolicyFile(t *testing.T) {
	file, err := config.ParsePolicyFile([]byte(validPolicies))
	require.NoError(t, err)

	assert.Equal(t, []string{"guild-1", "guild-2"}, file.WorkspaceIDs())
	assert.Equal(t, models.Policy{
		Enabled:            true,
		RequireApproval:    false,
		MaxActionsPerRun:   4,
		AllowedActionTypes: []models.ActionType{models.ActionLockChannel, models.ActionUnlockChannel},
	}, file.Workspaces["guild-2"])
}

func TestParsePolicyFile_Errors(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		wantErr string
	}{
		{name: "not yaml", data: "workspaces: [", wantErr: "failed to parse YAML config"},
		{name: "empty", data: "workspaces: {}", wantErr: config.ErrNoPolicies.Error()},
		{
			name:    "cap out of range",
			data:    "workspaces:\n  guild-1:\n    max_actions_per_run: 20\n",
			wantErr: "workspace guild-1",
		},
		{
			name:    "unknown action type",
			data:    "workspaces:\n  guild-1:\n    max_actions_per_run: 2\n    allowed_action_types: [ban_member]\n",
			wantErr: "ban_member",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := config.ParsePolicyFile([]byte(tt.data))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadPolicyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policies.yaml")
	require.NoError(t, os.WriteFile(path, []byte(validPolicies), 0o600))

	file, err := config.LoadPolicyFile(path)
	require.NoError(t, err)
	assert.Len(t, file.Workspaces, 2)

	_, err = config.LoadPolicyFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
