package executor

import (
	"context"
	"fmt"

	"github.com/dukex/warden/pkg/authz"
	"github.com/dukex/warden/pkg/models"
	"github.com/dukex/warden/pkg/workspace"
)

func (e *Executor) membership(ctx context.Context, action models.Action, ec Context, present bool) (outcome, *stepError) {
	role, serr := e.resolveRole(ctx, ec, action.Arg("role"))
	if serr != nil {
		return outcome{}, serr
	}

	member, serr := e.resolveMember(ctx, ec, action.Arg("member"))
	if serr != nil {
		return outcome{}, serr
	}

	if err := authz.CheckRoleTarget(ec.Workspace, ec.Actor, ec.Agent, role); err != nil {
		return outcome{}, denied(err)
	}

	roles, err := e.client.Roles(ctx, ec.WorkspaceID)
	if err != nil {
		return outcome{}, platform("could not list roles", err)
	}

	if err := authz.CheckMemberTarget(ec.Workspace, ec.Actor, ec.Agent, member, authz.MemberRank(roles, member)); err != nil {
		return outcome{}, denied(err)
	}

	verb, done, prep, undo := "add", "added", "to", "remove"
	if !present {
		verb, done, prep, undo = "remove", "removed", "from", "re-add"
	}

	label := fmt.Sprintf("role %s %s %s", role.Name, prep, member.EntityName())

	if role.ID != "" && member.HasRole(role.ID) == present {
		state := "already has"
		if !present {
			state = "does not have"
		}

		return outcome{summary: fmt.Sprintf("%s %s role %s", member.EntityName(), state, role.Name)}, nil
	}

	if ec.DryRun {
		return outcome{summary: fmt.Sprintf("would %s %s", verb, label)}, nil
	}

	if err := e.client.SetMembership(ctx, ec.WorkspaceID, role.ID, member.ID, present); err != nil {
		return outcome{}, platform(fmt.Sprintf("could not %s %s", verb, label), err)
	}

	return outcome{
		summary: done + " " + label,
		rollback: &models.RollbackStep{
			Kind:         models.RollbackReverseMembership,
			ResourceKind: workspace.KindRole,
			ResourceID:   role.ID,
			MemberID:     member.ID,
			ShouldReAdd:  !present,
			Summary:      fmt.Sprintf("%s role %s for %s", undo, role.Name, member.EntityName()),
		},
	}, nil
}
