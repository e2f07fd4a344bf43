package runner_test

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/dukex/warden/pkg/authz"
	"github.com/dukex/warden/pkg/executor"
	"github.com/dukex/warden/pkg/models"
	"github.com/dukex/warden/pkg/otelhelper"
	"github.com/dukex/warden/pkg/runner"
	"github.com/dukex/warden/pkg/testutil"
	"github.com/dukex/warden/pkg/workspace"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setup(t *testing.T) (*workspace.Memory, *runner.Runner, executor.Context) {
	t.Helper()

	mem := testutil.NewWorkspace()

	actor, err := authz.IdentityOf(t.Context(), mem, testutil.WorkspaceID, testutil.AliceID)
	require.NoError(t, err)

	agent, err := authz.IdentityOf(t.Context(), mem, testutil.WorkspaceID, testutil.AgentID)
	require.NoError(t, err)

	general, err := mem.Channel(t.Context(), testutil.WorkspaceID, testutil.GeneralChannelID)
	require.NoError(t, err)

	logger := testutil.Logger()
	r := runner.New(executor.New(mem, logger), otelhelper.NoopTracer(), logger)

	return mem, r, executor.Context{
		WorkspaceID: testutil.WorkspaceID,
		Actor:       actor,
		Agent:       agent,
		Fallback:    general,
	}
}

func ops(calls []workspace.Call) []string {
	out := make([]string, 0, len(calls))
	for _, c := range calls {
		out = append(out, c.Op)
	}

	return out
}

func TestRun_AllStepsSucceed(t *testing.T) {
	mem, r, ec := setup(t)

	plan := testutil.CreateTestPlan(
		testutil.Act(models.ActionCreateCategory, "name", "Staff"),
		testutil.Act(models.ActionCreateChannel, "name", "mod-log", "category", "Staff"),
	)

	result := r.Run(t.Context(), plan, ec, false)

	assert.True(t, result.OK)
	assert.False(t, result.RolledBack)
	assert.Equal(t, models.RunCompleted, result.State)
	assert.True(t, strings.HasPrefix(result.RunID, runner.RunIDPrefix))
	assert.Equal(t, plan.ID, result.PlanID)
	require.Len(t, result.Results, 2)
	require.Len(t, result.RollbackSteps, 2)

	// Application order: the channel goes before the category that contains it.
	assert.Equal(t, "delete channel mod-log under Staff", result.RollbackSteps[0].Summary)
	assert.Equal(t, "delete category Staff", result.RollbackSteps[1].Summary)
	assert.Equal(t, []string{"create_channel", "create_channel"}, ops(mem.Calls()))
}

func TestRun_FailedMembershipRollsBackEarlierSteps(t *testing.T) {
	mem, r, ec := setup(t)

	plan := testutil.CreateTestPlan(
		testutil.Act(models.ActionCreateRole, "name", "Helpers"),
		testutil.Act(models.ActionRenameChannel, "channel", "general", "name", "lobby"),
		testutil.Act(models.ActionAddRole, "role", "Members", "member", "carol"),
	)

	result := r.Run(t.Context(), plan, ec, false)

	assert.False(t, result.OK)
	assert.True(t, result.RolledBack)
	assert.Equal(t, models.RunRolledBack, result.State)
	assert.Empty(t, result.RollbackFailures)

	require.Len(t, result.Results, 3)
	assert.True(t, result.Results[0].Success)
	assert.True(t, result.Results[1].Success)
	assert.False(t, result.Results[2].Success)
	assert.Equal(t, models.FailureAuthorization, result.Results[2].Failure)
	assert.Contains(t, result.Results[2].Message, "carol")

	require.Len(t, result.RollbackSteps, 2)
	assert.Equal(t, models.RollbackRestoreAttributes, result.RollbackSteps[0].Kind)
	assert.Equal(t, models.RollbackDeleteResource, result.RollbackSteps[1].Kind)

	assert.Equal(t,
		[]string{"create_role", "set_attributes", "set_attributes", "delete_role"},
		ops(mem.Calls()))

	general, err := mem.Channel(t.Context(), testutil.WorkspaceID, testutil.GeneralChannelID)
	require.NoError(t, err)
	assert.Equal(t, "general", general.Name)

	roles, err := mem.Roles(t.Context(), testutil.WorkspaceID)
	require.NoError(t, err)

	for _, role := range roles {
		assert.NotEqual(t, "Helpers", role.Name)
	}
}

func TestRun_RollbackFollowsRecreatedChannel(t *testing.T) {
	mem, r, ec := setup(t)

	plan := testutil.CreateTestPlan(
		testutil.Act(models.ActionSetTopic, "channel", "general", "topic", "changed"),
		testutil.Act(models.ActionDeleteChannel, "channel", "general"),
		testutil.Act(models.ActionAddRole, "role", "Members", "member", "carol"),
	)

	result := r.Run(t.Context(), plan, ec, false)

	assert.True(t, result.RolledBack)
	assert.Empty(t, result.RollbackFailures)

	channels, err := mem.Channels(t.Context(), testutil.WorkspaceID)
	require.NoError(t, err)

	var general *workspace.Channel
	for _, c := range channels {
		if c.Name == "general" {
			general = c
		}
	}

	require.NotNil(t, general)
	assert.NotEqual(t, testutil.GeneralChannelID, general.ID)
	assert.Equal(t, "Say hi", general.Topic)
	assert.Equal(t, testutil.CommunityCategoryID, general.ParentID)

	// The recorded steps keep the ids the run saw.
	require.Len(t, result.RollbackSteps, 2)
	assert.Equal(t, testutil.GeneralChannelID, result.RollbackSteps[0].ResourceID)
	assert.Equal(t, testutil.GeneralChannelID, result.RollbackSteps[1].ResourceID)
}

func TestRun_RollbackFollowsRecreatedRole(t *testing.T) {
	mem, r, ec := setup(t)

	plan := testutil.CreateTestPlan(
		testutil.Act(models.ActionRemoveRole, "role", "Members", "member", "bob"),
		testutil.Act(models.ActionDeleteRole, "role", "Members"),
		testutil.Act(models.ActionAddRole, "role", "Moderators", "member", "carol"),
	)

	result := r.Run(t.Context(), plan, ec, false)

	assert.True(t, result.RolledBack)
	assert.Empty(t, result.RollbackFailures)

	roles, err := mem.Roles(t.Context(), testutil.WorkspaceID)
	require.NoError(t, err)

	var members *workspace.Role
	for _, role := range roles {
		if role.Name == "Members" {
			members = role
		}
	}

	require.NotNil(t, members)

	bob, err := mem.Member(t.Context(), testutil.WorkspaceID, testutil.BobID)
	require.NoError(t, err)
	assert.True(t, bob.HasRole(members.ID))
}

func TestRun_RollbackRestoresOverwritesAcrossRecreatedResources(t *testing.T) {
	mem, r, ec := setup(t)

	require.NoError(t, mem.SetPermissionOverwrite(t.Context(), testutil.WorkspaceID, testutil.AnnouncementsID, workspace.Overwrite{
		TargetID:   testutil.MembersRoleID,
		TargetType: workspace.OverwriteRole,
		Deny:       workspace.PermSendMessages,
	}))

	plan := testutil.CreateTestPlan(
		testutil.Act(models.ActionDeleteRole, "role", "Members"),
		testutil.Act(models.ActionDeleteChannel, "channel", "announcements"),
		testutil.Act(models.ActionSetTopic, "channel", "ghost", "topic", "x"),
	)

	result := r.Run(t.Context(), plan, ec, false)

	assert.True(t, result.RolledBack)
	assert.Empty(t, result.RollbackFailures)

	channels, err := mem.Channels(t.Context(), testutil.WorkspaceID)
	require.NoError(t, err)

	var announcements *workspace.Channel
	for _, c := range channels {
		if c.Name == "announcements" {
			announcements = c
		}
	}

	require.NotNil(t, announcements)

	roles, err := mem.Roles(t.Context(), testutil.WorkspaceID)
	require.NoError(t, err)

	var members *workspace.Role
	for _, role := range roles {
		if role.Name == "Members" {
			members = role
		}
	}

	require.NotNil(t, members)

	overwrite, err := mem.PermissionOverwrite(t.Context(), testutil.WorkspaceID, announcements.ID, members.ID)
	require.NoError(t, err)
	require.NotNil(t, overwrite)
	assert.Equal(t, workspace.PermSendMessages, overwrite.Deny)
}

func TestRun_DryRunMatchesRealRun(t *testing.T) {
	tests := []struct {
		name    string
		actions []models.Action
		want    []bool
	}{
		{
			name: "rename then refer to the new name",
			actions: []models.Action{
				testutil.Act(models.ActionRenameChannel, "channel", "announcements", "name", "news"),
				testutil.Act(models.ActionSetTopic, "channel", "news", "topic", "read me"),
			},
			want: []bool{true, true},
		},
		{
			name: "rename then refer to the old name",
			actions: []models.Action{
				testutil.Act(models.ActionRenameChannel, "channel", "announcements", "name", "news"),
				testutil.Act(models.ActionSetTopic, "channel", "announcements", "topic", "read me"),
			},
			want: []bool{true, false},
		},
		{
			name: "delete then refer to the channel",
			actions: []models.Action{
				testutil.Act(models.ActionDeleteChannel, "channel", "announcements"),
				testutil.Act(models.ActionSetTopic, "channel", "announcements", "topic", "read me"),
			},
			want: []bool{true, false},
		},
		{
			name: "rename role then grant it",
			actions: []models.Action{
				testutil.Act(models.ActionRenameRole, "role", "Members", "name", "Regulars"),
				testutil.Act(models.ActionAddRole, "role", "Regulars", "member", "dave"),
			},
			want: []bool{true, true},
		},
		{
			name: "delete role then grant it",
			actions: []models.Action{
				testutil.Act(models.ActionDeleteRole, "role", "Members"),
				testutil.Act(models.ActionAddRole, "role", "Members", "member", "dave"),
			},
			want: []bool{true, false},
		},
		{
			name: "move then move again",
			actions: []models.Action{
				testutil.Act(models.ActionMoveChannel, "channel", "announcements", "category", "Community"),
				testutil.Act(models.ActionRenameChannel, "channel", "announcements", "name", "news"),
				testutil.Act(models.ActionMoveChannel, "channel", "news", "category", "Community"),
			},
			want: []bool{true, true, true},
		},
	}

	success := func(result models.RunResult) []bool {
		out := make([]bool, 0, len(result.Results))
		for _, step := range result.Results {
			out = append(out, step.Success)
		}

		return out
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, dryRunner, dryEC := setup(t)
			dry := dryRunner.Run(t.Context(), testutil.CreateTestPlan(tt.actions...), dryEC, true)

			_, liveRunner, liveEC := setup(t)
			live := liveRunner.Run(t.Context(), testutil.CreateTestPlan(tt.actions...), liveEC, false)

			assert.Equal(t, tt.want, success(live))
			assert.Equal(t, success(live), success(dry))
			assert.Equal(t, live.OK, dry.OK)
		})
	}
}

func TestRun_ReverseOrderCompensationStopsAtFailure(t *testing.T) {
	for failAt := 1; failAt <= 4; failAt++ {
		t.Run("fail at step "+string(rune('0'+failAt)), func(t *testing.T) {
			mem, r, ec := setup(t)

			actions := make([]models.Action, 0, 4)
			for i := 1; i <= 4; i++ {
				name := "room-" + string(rune('0'+i))
				if i == failAt {
					name = "ghost"
					actions = append(actions, testutil.Act(models.ActionSetTopic, "channel", name, "topic", "x"))

					continue
				}

				actions = append(actions, testutil.Act(models.ActionCreateChannel, "name", name))
			}

			result := r.Run(t.Context(), testutil.CreateTestPlan(actions...), ec, false)

			assert.False(t, result.OK)
			assert.Len(t, result.Results, failAt, "no step runs after the failure")
			require.Len(t, result.RollbackSteps, failAt-1)

			for i, step := range result.RollbackSteps {
				assert.Equal(t, "delete channel room-"+string(rune('0'+failAt-1-i)), step.Summary)
			}

			assert.Equal(t, failAt > 1, result.RolledBack)

			channels, err := mem.Channels(t.Context(), testutil.WorkspaceID)
			require.NoError(t, err)
			assert.Len(t, channels, 4, "every created channel was removed again")
		})
	}
}

func TestRun_CompensationFailuresAreRecorded(t *testing.T) {
	mem, r, ec := setup(t)
	mem.FailOn("delete_role", errors.New("missing access"))

	plan := testutil.CreateTestPlan(
		testutil.Act(models.ActionCreateRole, "name", "Helpers"),
		testutil.Act(models.ActionCreateChannel, "name", "helpers"),
		testutil.Act(models.ActionDeleteChannel, "channel", "nowhere"),
	)

	result := r.Run(t.Context(), plan, ec, false)

	assert.False(t, result.OK)
	assert.True(t, result.RolledBack)
	require.Len(t, result.RollbackFailures, 1)
	assert.Contains(t, result.RollbackFailures[0], "delete role Helpers")
	assert.Contains(t, result.RollbackFailures[0], "missing access")

	assert.Equal(t, []string{"create_role", "create_channel", "delete_channel"}, ops(mem.Calls()),
		"the channel is still compensated after the role fails")
}

func TestRun_DryRun(t *testing.T) {
	mem, r, ec := setup(t)

	plan := testutil.CreateTestPlan(
		testutil.Act(models.ActionCreateCategory, "name", "Staff"),
		testutil.Act(models.ActionCreateChannel, "name", "mod-log", "category", "Staff"),
		testutil.Act(models.ActionLockChannel, "channel", "announcements"),
	)

	result := r.Run(t.Context(), plan, ec, true)

	assert.True(t, result.OK)
	assert.True(t, result.DryRun)
	assert.Empty(t, result.RollbackSteps)
	assert.Empty(t, mem.Calls())

	for _, step := range result.Results {
		assert.True(t, strings.HasPrefix(step.Summary, "would "), step.Summary)
		assert.Nil(t, step.RollbackStep)
	}
}

func TestRun_DryRunFailureIsNotRolledBack(t *testing.T) {
	mem, r, ec := setup(t)

	plan := testutil.CreateTestPlan(
		testutil.Act(models.ActionCreateRole, "name", "Helpers"),
		testutil.Act(models.ActionAddRole, "role", "Members", "member", "carol"),
	)

	result := r.Run(t.Context(), plan, ec, true)

	assert.False(t, result.OK)
	assert.False(t, result.RolledBack)
	assert.Equal(t, models.RunFailed, result.State)
	assert.Empty(t, mem.Calls())
}

func TestRun_EmptyPlanIsNotOK(t *testing.T) {
	_, r, ec := setup(t)

	result := r.Run(t.Context(), testutil.CreateTestPlan(), ec, false)

	assert.False(t, result.OK)
	assert.False(t, result.RolledBack)
	assert.Empty(t, result.Results)
}

func TestRun_UsesClock(t *testing.T) {
	mem := testutil.NewWorkspace()
	fixed := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	logger := testutil.Logger()

	r := runner.New(executor.New(mem, logger), otelhelper.NoopTracer(), logger,
		runner.WithClock(func() time.Time { return fixed }))

	result := r.Run(t.Context(), testutil.CreateTestPlan(), executor.Context{WorkspaceID: testutil.WorkspaceID}, true)

	assert.Equal(t, fixed, result.StartedAt)
	assert.Equal(t, fixed, result.FinishedAt)
}
