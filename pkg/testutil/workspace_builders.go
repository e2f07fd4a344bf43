// Package testutil provides test data builders and utilities for testing.
package testutil

import (
	"log/slog"
	"os"
	"time"

	"github.com/dukex/warden/pkg/models"
	"github.com/dukex/warden/pkg/workspace"
)

// Identifiers of the seeded test workspace.
const (
	WorkspaceID = "guild-1"

	EveryoneRoleID   = "200000000000000000"
	AdminsRoleID     = "200000000000000005"
	WardenRoleID     = "200000000000000004"
	ModeratorsRoleID = "200000000000000003"
	IntegrationID    = "200000000000000002"
	MembersRoleID    = "200000000000000001"

	OwnerID = "100000000000000001"
	AliceID = "100000000000000002"
	AgentID = "100000000000000003"
	BobID   = "100000000000000004"
	CarolID = "100000000000000005"
	DaveID  = "100000000000000006"

	CommunityCategoryID = "300000000000000001"
	GeneralChannelID    = "300000000000000002"
	AnnouncementsID     = "300000000000000003"
	GeneralArchiveID    = "300000000000000004"
)

// NewWorkspace returns a Memory client seeded with a small but complete workspace:
//
//	roles (highest first): Admins, Warden (service identity), Moderators, Integration Bot (managed), Members, @everyone
//	members: owner (Admins), alice (Moderators), warden (Warden), bob (Members), carol (Admins), dave
//	channels: Community (category), general (in Community), announcements, general-archive
func NewWorkspace() *workspace.Memory {
	mem := workspace.NewMemory()
	mem.Seed(
		workspace.Workspace{
			ID:             WorkspaceID,
			Name:           "Test Guild",
			OwnerID:        OwnerID,
			EveryoneRoleID: EveryoneRoleID,
		},
		[]*workspace.Channel{
			{ID: CommunityCategoryID, Name: "Community", IsCategory: true, Position: 0},
			{ID: GeneralChannelID, Name: "general", ParentID: CommunityCategoryID, Topic: "Say hi", Position: 1},
			{ID: AnnouncementsID, Name: "announcements", Position: 2},
			{ID: GeneralArchiveID, Name: "general-archive", Position: 3},
		},
		[]*workspace.Role{
			{ID: EveryoneRoleID, Name: "@everyone", Position: 0, Permissions: workspace.PermViewChannel | workspace.PermSendMessages},
			{ID: MembersRoleID, Name: "Members", Position: 1},
			{ID: IntegrationID, Name: "Integration Bot", Position: 2, Managed: true},
			{ID: ModeratorsRoleID, Name: "Moderators", Position: 3, Permissions: workspace.PermManageChannels | workspace.PermManageRoles},
			{ID: WardenRoleID, Name: "Warden", Position: 4, Permissions: workspace.PermManageChannels | workspace.PermManageRoles},
			{ID: AdminsRoleID, Name: "Admins", Position: 5, Permissions: workspace.PermAdministrator},
		},
		[]*workspace.Member{
			{ID: OwnerID, Username: "owner", RoleIDs: []string{AdminsRoleID}},
			{ID: AliceID, Username: "alice", DisplayName: "Alice Mod", RoleIDs: []string{ModeratorsRoleID}},
			{ID: AgentID, Username: "warden", RoleIDs: []string{WardenRoleID}},
			{ID: BobID, Username: "bob", RoleIDs: []string{MembersRoleID}},
			{ID: CarolID, Username: "carol", RoleIDs: []string{AdminsRoleID}},
			{ID: DaveID, Username: "dave"},
		},
	)

	return mem
}

// Act builds an action with the given arguments given as key/value pairs.
func Act(actionType models.ActionType, kv ...any) models.Action {
	args := make(map[string]any, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		key, _ := kv[i].(string)
		args[key] = kv[i+1]
	}

	return models.Action{Type: actionType, Args: args}
}

// CreateTestPlan creates a plan owned by alice in the test workspace.
func CreateTestPlan(actions ...models.Action) *models.Plan {
	return &models.Plan{
		ID:          models.PlanIDPrefix + "test",
		WorkspaceID: WorkspaceID,
		OwnerID:     AliceID,
		RequestText: "test request",
		Source:      models.SourceManual,
		Risk:        models.RiskMedium,
		Actions:     actions,
		CreatedAt:   time.Now().UTC(),
	}
}

// PermissivePolicy allows every action type without approval.
func PermissivePolicy() models.Policy {
	return models.Policy{
		Enabled:            true,
		RequireApproval:    false,
		MaxActionsPerRun:   12,
		AllowedActionTypes: models.AllActionTypes(),
	}
}

// Logger returns a logger that only reports errors.
func Logger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}
