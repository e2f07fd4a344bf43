package executor

import (
	"context"
	"slices"

	"github.com/dukex/warden/pkg/authz"
	"github.com/dukex/warden/pkg/models"
	"github.com/dukex/warden/pkg/workspace"
)

func (e *Executor) deleteChannel(ctx context.Context, action models.Action, ec Context) (outcome, *stepError) {
	ref := action.Arg("channel")

	channel, serr := e.resolveChannel(ctx, ec, ref)
	if serr != nil {
		// Categories never resolve as channels; name them explicitly so the refusal is clear.
		if cat, _ := e.resolver.Resolve(ctx, ec.WorkspaceID, workspace.KindCategory, ref, nil); cat != nil {
			return outcome{}, forbidden("deleting categories is not allowed: %s", cat.EntityName())
		}

		return outcome{}, serr
	}

	label := "channel #" + channel.Name

	if ec.DryRun {
		ec.Simulation.remove(channel)

		return outcome{summary: "would delete " + label}, nil
	}

	snapshot := &models.ResourceSnapshot{
		Kind:       workspace.KindChannel,
		Name:       channel.Name,
		ParentID:   channel.ParentID,
		Topic:      channel.Topic,
		NSFW:       channel.NSFW,
		Slowmode:   channel.Slowmode,
		Overwrites: slices.Clone(channel.Overwrites),
	}

	if err := e.client.DeleteChannel(ctx, ec.WorkspaceID, channel.ID); err != nil {
		return outcome{}, platform("could not delete "+label, err)
	}

	return outcome{
		summary: "deleted " + label,
		rollback: &models.RollbackStep{
			Kind:         models.RollbackRecreateResource,
			ResourceKind: workspace.KindChannel,
			ResourceID:   channel.ID,
			Summary:      "recreate " + label,
			Snapshot:     snapshot,
		},
	}, nil
}

func (e *Executor) deleteRole(ctx context.Context, action models.Action, ec Context) (outcome, *stepError) {
	role, serr := e.resolveRole(ctx, ec, action.Arg("role"))
	if serr != nil {
		return outcome{}, serr
	}

	if err := authz.CheckRoleTarget(ec.Workspace, ec.Actor, ec.Agent, role); err != nil {
		return outcome{}, denied(err)
	}

	label := "role " + role.Name

	if ec.DryRun {
		ec.Simulation.remove(role)

		return outcome{summary: "would delete " + label}, nil
	}

	members, err := e.client.Members(ctx, ec.WorkspaceID)
	if err != nil {
		return outcome{}, platform("could not list members", err)
	}

	channels, err := e.client.Channels(ctx, ec.WorkspaceID)
	if err != nil {
		return outcome{}, platform("could not list channels", err)
	}

	snapshot := &models.ResourceSnapshot{
		Kind:        workspace.KindRole,
		Name:        role.Name,
		Position:    role.Position,
		Color:       role.Color,
		Mentionable: role.Mentionable,
		Hoist:       role.Hoist,
		Permissions: role.Permissions,
	}

	for _, m := range members {
		if m.HasRole(role.ID) {
			snapshot.MemberIDs = append(snapshot.MemberIDs, m.ID)
		}
	}

	// The platform drops overwrites naming a deleted role.
	for _, c := range channels {
		for _, o := range c.Overwrites {
			if o.TargetID == role.ID {
				snapshot.ChannelOverwrites = append(snapshot.ChannelOverwrites, models.ChannelOverwrite{ChannelID: c.ID, Overwrite: o})
			}
		}
	}

	if err := e.client.DeleteRole(ctx, ec.WorkspaceID, role.ID); err != nil {
		return outcome{}, platform("could not delete "+label, err)
	}

	return outcome{
		summary: "deleted " + label,
		rollback: &models.RollbackStep{
			Kind:         models.RollbackRecreateResource,
			ResourceKind: workspace.KindRole,
			ResourceID:   role.ID,
			Summary:      "recreate " + label,
			Snapshot:     snapshot,
		},
	}, nil
}
