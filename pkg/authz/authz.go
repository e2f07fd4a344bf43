// Package authz checks that both the requesting actor and the service identity hold the
// platform capabilities a plan needs, and that mutated roles and members sit below both
// of them in the role hierarchy.
package authz

import (
	"context"
	"errors"
	"fmt"

	"github.com/dukex/warden/pkg/models"
	"github.com/dukex/warden/pkg/workspace"
)

var (
	// ErrUnknownIdentity is returned when an actor or agent is not a workspace member.
	ErrUnknownIdentity = errors.New("identity is not a workspace member")

	// ErrProtectedTarget is returned for the everyone role and platform-managed roles.
	ErrProtectedTarget = errors.New("target is protected")

	// ErrHierarchy is returned when an identity does not outrank the target.
	ErrHierarchy = errors.New("target is not below identity in the role hierarchy")
)

var required = map[models.ActionType]workspace.Permission{
	models.ActionCreateChannel:      workspace.PermManageChannels,
	models.ActionCreateCategory:     workspace.PermManageChannels,
	models.ActionCreateRole:         workspace.PermManageRoles,
	models.ActionDeleteChannel:      workspace.PermManageChannels,
	models.ActionDeleteRole:         workspace.PermManageRoles,
	models.ActionRenameChannel:      workspace.PermManageChannels,
	models.ActionRenameRole:         workspace.PermManageRoles,
	models.ActionMoveChannel:        workspace.PermManageChannels,
	models.ActionSetTopic:           workspace.PermManageChannels,
	models.ActionSetNSFW:            workspace.PermManageChannels,
	models.ActionSetSlowmode:        workspace.PermManageChannels,
	models.ActionSetRoleColor:       workspace.PermManageRoles,
	models.ActionSetRoleMentionable: workspace.PermManageRoles,
	models.ActionSetRoleHoist:       workspace.PermManageRoles,
	models.ActionAddRole:            workspace.PermManageRoles,
	models.ActionRemoveRole:         workspace.PermManageRoles,
	models.ActionLockChannel:        workspace.PermManageChannels | workspace.PermManageRoles,
	models.ActionUnlockChannel:      workspace.PermManageChannels | workspace.PermManageRoles,
	models.ActionGrantAccess:        workspace.PermManageChannels | workspace.PermManageRoles,
	models.ActionRevokeAccess:       workspace.PermManageChannels | workspace.PermManageRoles,
	models.ActionHideChannel:        workspace.PermManageChannels | workspace.PermManageRoles,
	models.ActionRevealChannel:      workspace.PermManageChannels | workspace.PermManageRoles,
}

// Required returns the capabilities an action type needs.
func Required(t models.ActionType) workspace.Permission {
	return required[t]
}

// Identity is a member's effective authority in a workspace.
type Identity struct {
	ID           string
	IsOwner      bool
	Rank         int
	Capabilities workspace.Permission
}

// Holds reports whether the identity has every capability in perm.
func (i Identity) Holds(perm workspace.Permission) bool {
	if i.IsOwner || i.Capabilities.Has(workspace.PermAdministrator) {
		return true
	}

	return i.Capabilities.Has(perm)
}

// IdentityOf computes the effective capabilities and rank of memberID. Rank is the
// highest position among the member's roles; everyone-role permissions always apply.
func IdentityOf(ctx context.Context, client workspace.Client, workspaceID, memberID string) (Identity, error) {
	ws, err := client.Workspace(ctx, workspaceID)
	if err != nil {
		return Identity{}, err
	}

	member, err := client.Member(ctx, workspaceID, memberID)
	if err != nil {
		return Identity{}, err
	}

	if member == nil {
		return Identity{}, fmt.Errorf("%s: %w", memberID, ErrUnknownIdentity)
	}

	roles, err := client.Roles(ctx, workspaceID)
	if err != nil {
		return Identity{}, err
	}

	id := Identity{ID: memberID, IsOwner: ws.OwnerID == memberID}

	for _, role := range roles {
		if role.ID == ws.EveryoneRoleID || member.HasRole(role.ID) {
			id.Capabilities |= role.Permissions
			id.Rank = max(id.Rank, role.Position)
		}
	}

	return id, nil
}

// Baseline is the result of a capability check.
type Baseline struct {
	OK                       bool     `json:"ok"`
	MissingActorCapabilities []string `json:"missing_actor_capabilities,omitempty"`
	MissingAgentCapabilities []string `json:"missing_agent_capabilities,omitempty"`
}

// Check unions the capabilities required by every action and verifies that both actor
// and agent hold all of them.
func Check(actor, agent Identity, actions []models.Action) Baseline {
	var needed workspace.Permission
	for _, action := range actions {
		needed |= Required(action.Type)
	}

	b := Baseline{
		MissingActorCapabilities: missing(actor, needed),
		MissingAgentCapabilities: missing(agent, needed),
	}
	b.OK = len(b.MissingActorCapabilities) == 0 && len(b.MissingAgentCapabilities) == 0

	return b
}

func missing(id Identity, needed workspace.Permission) []string {
	if id.Holds(needed) {
		return nil
	}

	var lacking workspace.Permission

	for _, perm := range []workspace.Permission{
		workspace.PermViewChannel,
		workspace.PermSendMessages,
		workspace.PermManageChannels,
		workspace.PermManageRoles,
	} {
		if needed.Has(perm) && !id.Holds(perm) {
			lacking |= perm
		}
	}

	return lacking.Names()
}

// TargetError names the entity that failed a hierarchy check.
type TargetError struct {
	Identity string
	Target   string
	Err      error
}

func (e *TargetError) Error() string {
	if e.Identity == "" {
		return fmt.Sprintf("%s: %v", e.Target, e.Err)
	}

	return fmt.Sprintf("%s cannot manage %s: %v", e.Identity, e.Target, e.Err)
}

func (e *TargetError) Unwrap() error {
	return e.Err
}

// CheckRoleTarget rejects the everyone role, managed roles, and roles at or above the
// actor (unless owner) or the agent.
func CheckRoleTarget(ws *workspace.Workspace, actor, agent Identity, role *workspace.Role) error {
	target := "role " + role.Name

	if role.ID == ws.EveryoneRoleID {
		return &TargetError{Target: target, Err: fmt.Errorf("the everyone role: %w", ErrProtectedTarget)}
	}

	if role.Managed {
		return &TargetError{Target: target, Err: fmt.Errorf("managed by an integration: %w", ErrProtectedTarget)}
	}

	return checkRank(actor, agent, target, role.Position)
}

// CheckMemberTarget rejects members whose top role is not below both identities.
// The workspace owner can never be targeted.
func CheckMemberTarget(ws *workspace.Workspace, actor, agent Identity, member *workspace.Member, memberRank int) error {
	target := "member " + member.EntityName()

	if member.ID == ws.OwnerID {
		return &TargetError{Target: target, Err: fmt.Errorf("the workspace owner: %w", ErrProtectedTarget)}
	}

	return checkRank(actor, agent, target, memberRank)
}

func checkRank(actor, agent Identity, target string, rank int) error {
	if !actor.IsOwner && actor.Rank <= rank {
		return &TargetError{Identity: "requesting member", Target: target, Err: ErrHierarchy}
	}

	if agent.Rank <= rank {
		return &TargetError{Identity: "service identity", Target: target, Err: ErrHierarchy}
	}

	return nil
}

// MemberRank returns the highest role position held by member.
func MemberRank(roles []*workspace.Role, member *workspace.Member) int {
	rank := 0

	for _, role := range roles {
		if member.HasRole(role.ID) {
			rank = max(rank, role.Position)
		}
	}

	return rank
}
