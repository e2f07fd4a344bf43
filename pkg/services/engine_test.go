package services_test

import (
	"errors"
	"testing"
	"time"

	"github.com/dukex/warden/pkg/events"
	"github.com/dukex/warden/pkg/executor"
	"github.com/dukex/warden/pkg/mocks"
	"github.com/dukex/warden/pkg/models"
	"github.com/dukex/warden/pkg/otelhelper"
	"github.com/dukex/warden/pkg/persistence/file"
	"github.com/dukex/warden/pkg/policy"
	"github.com/dukex/warden/pkg/runner"
	"github.com/dukex/warden/pkg/services"
	"github.com/dukex/warden/pkg/store"
	"github.com/dukex/warden/pkg/testutil"
	"github.com/dukex/warden/pkg/workspace"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	mem    *workspace.Memory
	bus    *mocks.MockEventBus
	engine *services.Engine
	audit  *store.AuditLog
	now    time.Time
}

func (f *fixture) clock() time.Time { return f.now }

func (f *fixture) ops() []string {
	calls := f.mem.Calls()

	out := make([]string, 0, len(calls))
	for _, c := range calls {
		out = append(out, c.Op)
	}

	return out
}

// newFixture builds an engine over the seeded test workspace. A nil policy keeps the
// workspace default.
func newFixture(t *testing.T, pol *models.Policy) *fixture {
	t.Helper()

	f := &fixture{
		mem: testutil.NewWorkspace(),
		bus: &mocks.MockEventBus{},
		now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
	f.bus.On("Publish", mock.Anything, testutil.WorkspaceID, mock.Anything).Return(nil)

	logger := testutil.Logger()
	kv := file.NewPersistence(t.TempDir())
	policies := store.NewPolicies(kv)
	f.audit = store.NewAuditLog(kv, logger, store.DefaultAuditCap)

	if pol != nil {
		_, err := policies.Put(t.Context(), testutil.WorkspaceID, *pol)
		require.NoError(t, err)
	}

	f.engine = services.NewEngine(services.Dependencies{
		Client:    f.mem,
		Storage:   kv,
		Runner:    runner.New(executor.New(f.mem, logger), otelhelper.NoopTracer(), logger, runner.WithClock(f.clock)),
		Pending:   store.NewPendingPlans(logger, store.WithPendingClock(f.clock)),
		Audit:     f.audit,
		Workflows: store.NewWorkflows(kv, logger, store.DefaultWorkflowCap),
		Policies:  policies,
		Publisher: f.bus,
		AgentID:   testutil.AgentID,
	}, logger, services.WithClock(f.clock))

	return f
}

func permissive() *models.Policy {
	pol := testutil.PermissivePolicy()

	return &pol
}

func request(owner, text string) services.PlanRequest {
	return services.PlanRequest{
		WorkspaceID: testutil.WorkspaceID,
		OwnerID:     owner,
		ChannelID:   testutil.GeneralChannelID,
		RequestText: text,
	}
}

func engineError(t *testing.T, err error) *services.EngineError {
	t.Helper()

	var engineErr *services.EngineError
	require.ErrorAs(t, err, &engineErr)

	return engineErr
}

func TestSubmit_AllowedPlanRunsImmediately(t *testing.T) {
	f := newFixture(t, &models.Policy{
		Enabled:            true,
		RequireApproval:    false,
		MaxActionsPerRun:   8,
		AllowedActionTypes: []models.ActionType{models.ActionCreateChannel},
	})

	result, err := f.engine.Submit(t.Context(), request(testutil.AliceID, "create channel general-chat"))
	require.NoError(t, err)

	assert.False(t, result.AwaitingApproval)
	require.Len(t, result.Plan.Actions, 1)
	assert.Equal(t, models.SourceManual, result.Plan.Source)

	require.NotNil(t, result.Run)
	assert.True(t, result.Run.OK)
	assert.Equal(t, models.RunCompleted, result.Run.State)
	assert.Equal(t, []string{"create_channel"}, f.ops())

	entries, err := f.engine.GetAudit(t.Context(), testutil.WorkspaceID, 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, models.AuditSuccess, entries[0].Status)
	assert.Equal(t, result.Run.RunID, entries[0].ID)
	assert.Len(t, entries[0].RollbackSteps, 1)
	assert.Nil(t, entries[0].RollbackStatus)

	assert.Equal(t, []events.EventType{events.PlanCreatedEvent, events.RunFinishedEvent}, f.bus.PublishedTypes())
}

func TestSubmit_BlockedTypeRejectsPlan(t *testing.T) {
	f := newFixture(t, &models.Policy{
		Enabled:            true,
		RequireApproval:    false,
		MaxActionsPerRun:   8,
		AllowedActionTypes: []models.ActionType{models.ActionCreateChannel},
	})

	result, err := f.engine.Submit(t.Context(),
		request(testutil.AliceID, "create channel general-chat then delete role Admins"))
	require.Error(t, err)
	assert.Nil(t, result)

	require.ErrorIs(t, err, services.ErrPolicyViolation)
	assert.True(t, services.IsValidationError(err))
	assert.Contains(t, err.Error(), "delete_role")
	assert.Equal(t, []string{"delete_role"}, engineError(t, err).Details["blocked_types"])

	assert.Empty(t, f.mem.Calls())
	assert.Empty(t, f.bus.Published())

	entries, err := f.engine.GetAudit(t.Context(), testutil.WorkspaceID, 10)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestSubmit_FailedStepRollsBack(t *testing.T) {
	f := newFixture(t, permissive())

	result, err := f.engine.Submit(t.Context(), request(testutil.AliceID,
		"create role Helpers then rename channel general to lobby then add role Members to carol"))
	require.NoError(t, err)
	require.NotNil(t, result.Run)

	run := result.Run
	assert.False(t, run.OK)
	assert.True(t, run.RolledBack)
	assert.Equal(t, models.RunRolledBack, run.State)
	require.Len(t, run.RollbackSteps, 2)
	assert.Equal(t, models.RollbackRestoreAttributes, run.RollbackSteps[0].Kind)
	assert.Equal(t, models.RollbackDeleteResource, run.RollbackSteps[1].Kind)

	runErr := services.RunError(*run)
	require.ErrorIs(t, runErr, services.ErrAuthorization)
	assert.Equal(t, 3, engineError(t, runErr).Details["step"])

	general, err := f.mem.Channel(t.Context(), testutil.WorkspaceID, testutil.GeneralChannelID)
	require.NoError(t, err)
	assert.Equal(t, "general", general.Name)

	entries, err := f.engine.GetAudit(t.Context(), testutil.WorkspaceID, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, models.AuditFailed, entries[0].Status)
	require.NotNil(t, entries[0].RollbackStatus)
	assert.Equal(t, models.RollbackStatusAuto, *entries[0].RollbackStatus)

	_, err = f.engine.RollbackAudit(t.Context(), testutil.WorkspaceID, run.RunID, testutil.AliceID)
	require.ErrorIs(t, err, services.ErrAlreadyRolledBack)
	assert.True(t, services.IsConflictError(err))
}

func TestSubmit_Rejections(t *testing.T) {
	tests := []struct {
		name  string
		req   services.PlanRequest
		want  error
		check func(t *testing.T, err error)
	}{
		{
			name: "empty request text",
			req:  request(testutil.AliceID, ""),
			want: services.ErrInvalidRequest,
		},
		{
			name: "unknown source",
			req: services.PlanRequest{
				WorkspaceID: testutil.WorkspaceID, OwnerID: testutil.AliceID,
				RequestText: "create channel news", Source: "cron",
			},
			want: services.ErrInvalidRequest,
		},
		{
			name: "nothing recognized",
			req:  request(testutil.AliceID, "play some music"),
			want: services.ErrParseFailure,
			check: func(t *testing.T, err error) {
				t.Helper()
				assert.Equal(t, []string{"play some music"}, engineError(t, err).Details["unsupported_clauses"])
			},
		},
		{
			name: "plan over the action cap",
			req: request(testutil.AliceID, "create channel a, create channel b, create channel c, "+
				"create channel d, create channel e, create channel f, create channel g, "+
				"create channel h, create channel i, create channel j, create channel k, "+
				"create channel l, create channel m"),
			want: services.ErrPolicyViolation,
		},
		{
			name: "requester lacks capabilities",
			req:  request(testutil.BobID, "create channel news"),
			want: services.ErrAuthorization,
			check: func(t *testing.T, err error) {
				t.Helper()
				assert.Equal(t, []string{"manage channels"},
					engineError(t, err).Details["missing_actor_capabilities"])
			},
		},
		{
			name: "requester is not a member",
			req:  request("999", "create channel news"),
			want: services.ErrAuthorization,
		},
		{
			name: "unknown workspace",
			req: services.PlanRequest{
				WorkspaceID: "guild-404", OwnerID: testutil.AliceID, RequestText: "create channel news",
			},
			want: services.ErrResolution,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, permissive())

			result, err := f.engine.Submit(t.Context(), tt.req)
			require.ErrorIs(t, err, tt.want)
			assert.Nil(t, result)
			assert.Empty(t, f.mem.Calls())

			if tt.check != nil {
				tt.check(t, err)
			}
		})
	}
}

func TestCreatePlan_StoresNothing(t *testing.T) {
	f := newFixture(t, nil)

	plan, err := f.engine.CreatePlan(t.Context(), request(testutil.AliceID, "please lock announcements, create role Helpers"))
	require.NoError(t, err)

	assert.True(t, len(plan.ID) > len(models.PlanIDPrefix))
	assert.Equal(t, testutil.GeneralChannelID, plan.ChannelID)
	assert.Equal(t, f.now, plan.CreatedAt)
	require.Len(t, plan.Actions, 2)
	assert.Equal(t, models.ActionLockChannel, plan.Actions[0].Type)
	assert.Equal(t, models.RiskHigh, plan.Risk)

	_, err = f.engine.GetPlan(t.Context(), testutil.WorkspaceID, plan.ID)
	require.ErrorIs(t, err, services.ErrPlanNotFound)
	assert.Empty(t, f.mem.Calls())
	assert.Empty(t, f.bus.Published())
}

func TestApprovalFlow(t *testing.T) {
	f := newFixture(t, nil)

	submitted, err := f.engine.Submit(t.Context(), request(testutil.AliceID, "create channel mod-log"))
	require.NoError(t, err)
	require.True(t, submitted.AwaitingApproval)
	assert.Nil(t, submitted.Run)
	assert.Empty(t, f.mem.Calls())

	planID := submitted.Plan.ID

	pending, err := f.engine.GetPlan(t.Context(), testutil.WorkspaceID, planID)
	require.NoError(t, err)
	assert.Equal(t, submitted.Plan.RequestText, pending.RequestText)

	_, err = f.engine.ApprovePlan(t.Context(), testutil.WorkspaceID, planID, testutil.CarolID)
	require.ErrorIs(t, err, services.ErrNotPlanOwner)
	assert.True(t, services.IsAuthorizationError(err))

	dry, err := f.engine.DryRunPlan(t.Context(), testutil.WorkspaceID, planID, testutil.AliceID)
	require.NoError(t, err)
	assert.True(t, dry.OK)
	assert.True(t, dry.DryRun)
	assert.Empty(t, f.mem.Calls())

	_, err = f.engine.GetPlan(t.Context(), testutil.WorkspaceID, planID)
	require.NoError(t, err, "a dry run keeps the plan pending")

	run, err := f.engine.ApprovePlan(t.Context(), testutil.WorkspaceID, planID, testutil.AliceID)
	require.NoError(t, err)
	assert.True(t, run.OK)
	assert.False(t, run.DryRun)
	assert.Equal(t, []string{"create_channel"}, f.ops())

	_, err = f.engine.ApprovePlan(t.Context(), testutil.WorkspaceID, planID, testutil.AliceID)
	require.ErrorIs(t, err, services.ErrPlanNotFound)
	assert.True(t, services.IsNotFoundError(err))

	entries, err := f.engine.GetAudit(t.Context(), testutil.WorkspaceID, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, models.AuditSuccess, entries[0].Status)
	assert.Equal(t, models.AuditDryRun, entries[1].Status)
	assert.Empty(t, entries[1].RollbackSteps)

	_, err = f.engine.RollbackAudit(t.Context(), testutil.WorkspaceID, entries[1].ID, testutil.AliceID)
	require.ErrorIs(t, err, services.ErrNothingToRollback)

	assert.Equal(t, []events.EventType{
		events.PlanCreatedEvent,
		events.RunFinishedEvent,
		events.RunFinishedEvent,
	}, f.bus.PublishedTypes())
}

func TestApprovePlan_RechecksCapabilities(t *testing.T) {
	f := newFixture(t, nil)

	submitted, err := f.engine.Submit(t.Context(), request(testutil.AliceID, "create channel mod-log"))
	require.NoError(t, err)

	require.NoError(t, f.mem.SetMembership(t.Context(), testutil.WorkspaceID, testutil.ModeratorsRoleID, testutil.AliceID, false))

	_, err = f.engine.ApprovePlan(t.Context(), testutil.WorkspaceID, submitted.Plan.ID, testutil.AliceID)
	require.ErrorIs(t, err, services.ErrAuthorization)

	_, err = f.engine.GetPlan(t.Context(), testutil.WorkspaceID, submitted.Plan.ID)
	require.NoError(t, err, "a refused approval keeps the plan pending")
}

func TestApprovePlan_RechecksPolicy(t *testing.T) {
	tests := []struct {
		name   string
		policy models.Policy
	}{
		{
			name: "action type no longer allowed",
			policy: models.Policy{
				Enabled:            true,
				RequireApproval:    true,
				MaxActionsPerRun:   4,
				AllowedActionTypes: []models.ActionType{models.ActionLockChannel},
			},
		},
		{
			name: "guarded actions disabled",
			policy: models.Policy{
				Enabled:            false,
				RequireApproval:    true,
				MaxActionsPerRun:   4,
				AllowedActionTypes: []models.ActionType{models.ActionCreateChannel},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, nil)

			submitted, err := f.engine.Submit(t.Context(), request(testutil.AliceID, "create channel mod-log"))
			require.NoError(t, err)
			require.True(t, submitted.AwaitingApproval)

			_, err = f.engine.UpdatePolicy(t.Context(), testutil.WorkspaceID, testutil.OwnerID, tt.policy)
			require.NoError(t, err)

			_, err = f.engine.ApprovePlan(t.Context(), testutil.WorkspaceID, submitted.Plan.ID, testutil.AliceID)
			require.ErrorIs(t, err, services.ErrPolicyViolation)
			assert.Empty(t, f.mem.Calls())

			_, err = f.engine.GetPlan(t.Context(), testutil.WorkspaceID, submitted.Plan.ID)
			require.NoError(t, err, "a refused approval keeps the plan pending")
		})
	}
}

func TestDenyPlan(t *testing.T) {
	f := newFixture(t, nil)

	submitted, err := f.engine.Submit(t.Context(), request(testutil.AliceID, "create channel mod-log then lock announcements"))
	require.NoError(t, err)

	planID := submitted.Plan.ID

	err = f.engine.DenyPlan(t.Context(), testutil.WorkspaceID, planID, testutil.BobID)
	require.ErrorIs(t, err, services.ErrNotPlanOwner)

	require.NoError(t, f.engine.DenyPlan(t.Context(), testutil.WorkspaceID, planID, testutil.AliceID))

	_, err = f.engine.GetPlan(t.Context(), testutil.WorkspaceID, planID)
	require.ErrorIs(t, err, services.ErrPlanNotFound)
	assert.Empty(t, f.mem.Calls())

	entries, err := f.engine.GetAudit(t.Context(), testutil.WorkspaceID, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	cancelled := entries[0]
	assert.Equal(t, models.AuditCancelled, cancelled.Status)
	assert.Equal(t, planID, cancelled.PlanID)
	require.Len(t, cancelled.Actions, 2)
	assert.Equal(t, "not run", cancelled.Actions[0].Summary)
	assert.False(t, cancelled.Actions[0].Success)

	_, err = f.engine.RollbackAudit(t.Context(), testutil.WorkspaceID, cancelled.ID, testutil.AliceID)
	require.ErrorIs(t, err, services.ErrNothingToRollback)

	assert.Equal(t, []events.EventType{events.PlanCreatedEvent, events.PlanDeniedEvent}, f.bus.PublishedTypes())
}

func TestPendingPlanExpires(t *testing.T) {
	f := newFixture(t, nil)

	submitted, err := f.engine.Submit(t.Context(), request(testutil.AliceID, "create channel mod-log"))
	require.NoError(t, err)

	f.now = f.now.Add(store.DefaultPlanTTL)

	_, err = f.engine.ApprovePlan(t.Context(), testutil.WorkspaceID, submitted.Plan.ID, testutil.AliceID)
	require.ErrorIs(t, err, services.ErrPlanNotFound)
	assert.Empty(t, f.mem.Calls())

	swept, err := f.engine.SweepPending(t.Context())
	require.NoError(t, err)
	assert.Zero(t, swept, "the lazy lookup already dropped the plan")
}

func TestRollbackAudit(t *testing.T) {
	f := newFixture(t, permissive())

	result, err := f.engine.Submit(t.Context(),
		request(testutil.AliceID, "create channel mod-log then set topic of general to Be kind"))
	require.NoError(t, err)
	require.True(t, result.Run.OK)

	runID := result.Run.RunID

	_, err = f.engine.RollbackAudit(t.Context(), testutil.WorkspaceID, "run_missing", testutil.AliceID)
	require.ErrorIs(t, err, services.ErrAuditNotFound)

	_, err = f.engine.RollbackAudit(t.Context(), testutil.WorkspaceID, runID, testutil.BobID)
	require.ErrorIs(t, err, services.ErrAuthorization)

	f.mem.ResetCalls()

	summary, err := f.engine.RollbackAudit(t.Context(), testutil.WorkspaceID, runID, testutil.AliceID)
	require.NoError(t, err)

	assert.Equal(t, runID, summary.RunID)
	assert.Equal(t, 2, summary.Attempted)
	assert.Empty(t, summary.Failures)
	assert.Equal(t, "manual:2025-06-01T12:00:00Z", summary.RollbackStatus)
	assert.Equal(t, []string{"set_attributes", "delete_channel"}, f.ops())

	general, err := f.mem.Channel(t.Context(), testutil.WorkspaceID, testutil.GeneralChannelID)
	require.NoError(t, err)
	assert.Equal(t, "Say hi", general.Topic)

	entry, err := f.audit.Get(t.Context(), store.Key{WorkspaceID: testutil.WorkspaceID, ID: runID})
	require.NoError(t, err)
	require.NotNil(t, entry.RollbackStatus)
	assert.Equal(t, summary.RollbackStatus, *entry.RollbackStatus)

	_, err = f.engine.RollbackAudit(t.Context(), testutil.WorkspaceID, runID, testutil.AliceID)
	require.ErrorIs(t, err, services.ErrAlreadyRolledBack)

	assert.Contains(t, f.bus.PublishedTypes(), events.AuditRolledBackEvent)
}

func TestRollbackAudit_FollowsRecreatedResources(t *testing.T) {
	f := newFixture(t, permissive())

	run, err := f.engine.RunPlan(t.Context(), testutil.CreateTestPlan(
		testutil.Act(models.ActionRemoveRole, "role", "Members", "member", "bob"),
		testutil.Act(models.ActionSetTopic, "channel", "general", "topic", "changed"),
		testutil.Act(models.ActionDeleteChannel, "channel", "general"),
		testutil.Act(models.ActionDeleteRole, "role", "Members"),
	), false)
	require.NoError(t, err)
	require.True(t, run.OK)

	summary, err := f.engine.RollbackAudit(t.Context(), testutil.WorkspaceID, run.RunID, testutil.AliceID)
	require.NoError(t, err)
	assert.Equal(t, 4, summary.Attempted)
	assert.Empty(t, summary.Failures)

	channels, err := f.mem.Channels(t.Context(), testutil.WorkspaceID)
	require.NoError(t, err)

	var general *workspace.Channel
	for _, c := range channels {
		if c.Name == "general" {
			general = c
		}
	}

	require.NotNil(t, general)
	assert.Equal(t, "Say hi", general.Topic)

	roles, err := f.mem.Roles(t.Context(), testutil.WorkspaceID)
	require.NoError(t, err)

	var members *workspace.Role
	for _, role := range roles {
		if role.Name == "Members" {
			members = role
		}
	}

	require.NotNil(t, members)

	bob, err := f.mem.Member(t.Context(), testutil.WorkspaceID, testutil.BobID)
	require.NoError(t, err)
	assert.True(t, bob.HasRole(members.ID))
}

func TestRollbackAudit_RecordsFailures(t *testing.T) {
	f := newFixture(t, permissive())

	result, err := f.engine.Submit(t.Context(), request(testutil.AliceID, "create role Helpers then create channel helpers"))
	require.NoError(t, err)
	require.True(t, result.Run.OK)

	f.mem.FailOn("delete_role", errors.New("missing access"))

	summary, err := f.engine.RollbackAudit(t.Context(), testutil.WorkspaceID, result.Run.RunID, testutil.AliceID)
	require.NoError(t, err)
	require.Len(t, summary.Failures, 1)
	assert.Contains(t, summary.Failures[0], "missing access")
	assert.Contains(t, summary.Summary, "could not be undone")

	entry, err := f.audit.Get(t.Context(), store.Key{WorkspaceID: testutil.WorkspaceID, ID: result.Run.RunID})
	require.NoError(t, err)
	assert.Equal(t, summary.Failures, entry.RollbackFailures)
}

func TestGetAudit_Limit(t *testing.T) {
	f := newFixture(t, permissive())

	for range 12 {
		_, err := f.engine.Submit(t.Context(), request(testutil.AliceID, "set topic of general to hello"))
		require.NoError(t, err)
	}

	entries, err := f.engine.GetAudit(t.Context(), testutil.WorkspaceID, 0)
	require.NoError(t, err)
	assert.Len(t, entries, 10)

	entries, err = f.engine.GetAudit(t.Context(), testutil.WorkspaceID, 3)
	require.NoError(t, err)
	assert.Len(t, entries, 3)

	entries, err = f.engine.GetAudit(t.Context(), testutil.WorkspaceID, 500)
	require.NoError(t, err)
	assert.Len(t, entries, 12)
}

func TestWorkflows(t *testing.T) {
	f := newFixture(t, permissive())

	saved, err := f.engine.SaveWorkflow(t.Context(), services.WorkflowRequest{
		WorkspaceID: testutil.WorkspaceID,
		Name:        "Weekly Lockdown",
		RequestText: "lock announcements",
		ActorID:     testutil.OwnerID,
	})
	require.NoError(t, err)
	assert.Equal(t, "weekly-lockdown", saved.Name)
	assert.Equal(t, testutil.OwnerID, saved.CreatedBy)

	_, err = f.engine.SaveWorkflow(t.Context(), services.WorkflowRequest{
		WorkspaceID: testutil.WorkspaceID, Name: "music", RequestText: "play some music", ActorID: testutil.OwnerID,
	})
	require.ErrorIs(t, err, services.ErrParseFailure)

	_, err = f.engine.SaveWorkflow(t.Context(), services.WorkflowRequest{
		WorkspaceID: testutil.WorkspaceID, Name: "!!!", RequestText: "lock announcements", ActorID: testutil.OwnerID,
	})
	require.ErrorIs(t, err, services.ErrInvalidWorkflowName)

	templates, err := f.engine.ListWorkflows(t.Context(), testutil.WorkspaceID)
	require.NoError(t, err)
	require.Len(t, templates, 1)

	result, err := f.engine.RunWorkflow(t.Context(), services.RunWorkflowRequest{
		WorkspaceID: testutil.WorkspaceID,
		Name:        "Weekly Lockdown",
		ActorID:     testutil.AliceID,
	})
	require.NoError(t, err)
	assert.Equal(t, models.SourceWorkflow, result.Plan.Source)
	require.NotNil(t, result.Run)
	assert.True(t, result.Run.OK)

	require.NoError(t, f.engine.RemoveWorkflow(t.Context(), testutil.WorkspaceID, "weekly-lockdown", testutil.CarolID))

	err = f.engine.RemoveWorkflow(t.Context(), testutil.WorkspaceID, "weekly-lockdown", testutil.OwnerID)
	require.ErrorIs(t, err, services.ErrWorkflowNotFound)

	_, err = f.engine.RunWorkflow(t.Context(), services.RunWorkflowRequest{
		WorkspaceID: testutil.WorkspaceID, Name: "weekly-lockdown", ActorID: testutil.AliceID,
	})
	require.ErrorIs(t, err, services.ErrWorkflowNotFound)
}

func TestWorkflows_RequireAdministrator(t *testing.T) {
	f := newFixture(t, permissive())

	_, err := f.engine.SaveWorkflow(t.Context(), services.WorkflowRequest{
		WorkspaceID: testutil.WorkspaceID, Name: "lockdown", RequestText: "lock announcements", ActorID: testutil.OwnerID,
	})
	require.NoError(t, err)

	for _, actorID := range []string{testutil.AliceID, testutil.BobID, "100000000000000099"} {
		t.Run(actorID, func(t *testing.T) {
			_, err := f.engine.SaveWorkflow(t.Context(), services.WorkflowRequest{
				WorkspaceID: testutil.WorkspaceID, Name: "lockdown", RequestText: "unlock announcements", ActorID: actorID,
			})
			require.Error(t, err)
			assert.True(t, services.IsAuthorizationError(err))

			err = f.engine.RemoveWorkflow(t.Context(), testutil.WorkspaceID, "lockdown", actorID)
			require.Error(t, err)
			assert.True(t, services.IsAuthorizationError(err))
		})
	}

	templates, err := f.engine.ListWorkflows(t.Context(), testutil.WorkspaceID)
	require.NoError(t, err)
	require.Len(t, templates, 1)
	assert.Equal(t, "lock announcements", templates[0].RequestText)
	assert.Equal(t, testutil.OwnerID, templates[0].UpdatedBy)
}

func TestPolicy(t *testing.T) {
	f := newFixture(t, nil)

	pol, err := f.engine.GetPolicy(t.Context(), testutil.WorkspaceID)
	require.NoError(t, err)
	assert.Equal(t, policy.Default(), pol)

	next := models.Policy{
		Enabled:            true,
		RequireApproval:    false,
		MaxActionsPerRun:   4,
		AllowedActionTypes: []models.ActionType{models.ActionCreateChannel, models.ActionCreateChannel},
	}

	_, err = f.engine.UpdatePolicy(t.Context(), testutil.WorkspaceID, testutil.AliceID, next)
	require.ErrorIs(t, err, services.ErrAuthorization)

	saved, err := f.engine.UpdatePolicy(t.Context(), testutil.WorkspaceID, testutil.OwnerID, next)
	require.NoError(t, err)
	assert.Equal(t, []models.ActionType{models.ActionCreateChannel}, saved.AllowedActionTypes)

	_, err = f.engine.UpdatePolicy(t.Context(), testutil.WorkspaceID, testutil.CarolID, models.Policy{MaxActionsPerRun: 0})
	require.ErrorIs(t, err, services.ErrInvalidPolicy)

	_, err = f.engine.UpdatePolicy(t.Context(), testutil.WorkspaceID, testutil.CarolID, models.Policy{
		MaxActionsPerRun: 2, AllowedActionTypes: []models.ActionType{"ban_member"},
	})
	require.ErrorIs(t, err, services.ErrInvalidPolicy)

	pol, err = f.engine.GetPolicy(t.Context(), testutil.WorkspaceID)
	require.NoError(t, err)
	assert.Equal(t, saved, pol)

	_, err = f.engine.ResetPolicy(t.Context(), testutil.WorkspaceID, testutil.AliceID)
	require.ErrorIs(t, err, services.ErrAuthorization)

	reset, err := f.engine.ResetPolicy(t.Context(), testutil.WorkspaceID, testutil.OwnerID)
	require.NoError(t, err)
	assert.Equal(t, policy.Default(), reset)

	pol, err = f.engine.GetPolicy(t.Context(), testutil.WorkspaceID)
	require.NoError(t, err)
	assert.Equal(t, policy.Default(), pol)
}

func TestSeedPolicy(t *testing.T) {
	f := newFixture(t, nil)

	seeded, err := f.engine.SeedPolicy(t.Context(), "guild-unmanaged", models.Policy{
		Enabled:            true,
		MaxActionsPerRun:   3,
		AllowedActionTypes: []models.ActionType{models.ActionLockChannel},
	})
	require.NoError(t, err, "operator policies do not need a workspace member")
	assert.Equal(t, 3, seeded.MaxActionsPerRun)

	pol, err := f.engine.GetPolicy(t.Context(), "guild-unmanaged")
	require.NoError(t, err)
	assert.Equal(t, seeded, pol)

	_, err = f.engine.SeedPolicy(t.Context(), testutil.WorkspaceID, models.Policy{MaxActionsPerRun: 40})
	require.ErrorIs(t, err, services.ErrInvalidPolicy)
}

func TestHealthCheck(t *testing.T) {
	kv := &mocks.MockKV{}
	kv.On("HealthCheck", mock.Anything).Return(errors.New("disk full")).Once()
	kv.On("HealthCheck", mock.Anything).Return(nil).Once()

	engine := services.NewEngine(services.Dependencies{Storage: kv}, testutil.Logger())

	message, ok := engine.HealthCheck(t.Context())
	assert.False(t, ok)
	assert.Contains(t, message, "disk full")

	message, ok = engine.HealthCheck(t.Context())
	assert.True(t, ok)
	assert.Equal(t, "Storage layer is healthy", message)

	kv.AssertExpectations(t)
}
