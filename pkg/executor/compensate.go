package executor

import (
	"context"
	"errors"
	"fmt"

	"github.com/dukex/warden/pkg/models"
	"github.com/dukex/warden/pkg/workspace"
)

// ErrUnknownRollback is returned for rollback steps of an unknown kind.
var ErrUnknownRollback = errors.New("unknown rollback step")

// Compensate applies one rollback step. Resources that are already gone count as
// compensated. When the step recreates a deleted resource, the new id is returned.
func (e *Executor) Compensate(ctx context.Context, workspaceID string, step models.RollbackStep) (string, error) {
	var (
		id  string
		err error
	)

	switch step.Kind {
	case models.RollbackDeleteResource:
		err = e.deleteResource(ctx, workspaceID, step)
	case models.RollbackRecreateResource:
		id, err = e.recreateResource(ctx, workspaceID, step)
	case models.RollbackRestoreAttributes:
		err = e.client.SetAttributes(ctx, workspaceID, step.ResourceKind, step.ResourceID, step.PriorAttributes)
	case models.RollbackRestorePermissionOverwrite:
		if step.HadOverwrite {
			err = e.client.SetPermissionOverwrite(ctx, workspaceID, step.ResourceID, workspace.Overwrite{
				TargetID:   step.TargetID,
				TargetType: step.TargetType,
				Allow:      step.PriorAllow,
				Deny:       step.PriorDeny,
			})
		} else {
			err = e.client.DeletePermissionOverwrite(ctx, workspaceID, step.ResourceID, step.TargetID)
		}
	case models.RollbackReverseMembership:
		err = e.client.SetMembership(ctx, workspaceID, step.ResourceID, step.MemberID, step.ShouldReAdd)
	default:
		err = fmt.Errorf("%w: %q", ErrUnknownRollback, step.Kind)
	}

	if err != nil {
		return id, fmt.Errorf("%s: %w", step.Summary, err)
	}

	return id, nil
}

func (e *Executor) deleteResource(ctx context.Context, workspaceID string, step models.RollbackStep) error {
	switch step.ResourceKind {
	case workspace.KindChannel, workspace.KindCategory:
		channel, err := e.client.Channel(ctx, workspaceID, step.ResourceID)
		if err != nil || channel == nil {
			return err
		}

		return e.client.DeleteChannel(ctx, workspaceID, step.ResourceID)
	case workspace.KindRole:
		role, err := e.client.Role(ctx, workspaceID, step.ResourceID)
		if err != nil || role == nil {
			return err
		}

		return e.client.DeleteRole(ctx, workspaceID, step.ResourceID)
	case workspace.KindMember:
	}

	return fmt.Errorf("cannot delete a %s", step.ResourceKind)
}

func (e *Executor) recreateResource(ctx context.Context, workspaceID string, step models.RollbackStep) (string, error) {
	snap := step.Snapshot
	if snap == nil {
		return "", errors.New("rollback step has no snapshot")
	}

	switch snap.Kind {
	case workspace.KindChannel, workspace.KindCategory:
		channel, err := e.client.CreateChannel(ctx, workspaceID, workspace.ChannelSpec{
			Name:       snap.Name,
			IsCategory: snap.Kind == workspace.KindCategory,
			ParentID:   snap.ParentID,
			Topic:      snap.Topic,
			NSFW:       snap.NSFW,
			Slowmode:   snap.Slowmode,
			Overwrites: snap.Overwrites,
		})
		if err != nil {
			return "", err
		}

		return channel.ID, nil
	case workspace.KindRole:
		role, err := e.client.CreateRole(ctx, workspaceID, workspace.RoleSpec{
			Name:        snap.Name,
			Color:       snap.Color,
			Mentionable: snap.Mentionable,
			Hoist:       snap.Hoist,
			Permissions: snap.Permissions,
			Position:    snap.Position,
		})
		if err != nil {
			return "", err
		}

		// The recreated role has a new id; re-grant it and point its overwrites at it.
		var errs []error
		for _, memberID := range snap.MemberIDs {
			if err := e.client.SetMembership(ctx, workspaceID, role.ID, memberID, true); err != nil {
				errs = append(errs, fmt.Errorf("member %s: %w", memberID, err))
			}
		}

		for _, co := range snap.ChannelOverwrites {
			overwrite := co.Overwrite
			overwrite.TargetID = role.ID

			if err := e.client.SetPermissionOverwrite(ctx, workspaceID, co.ChannelID, overwrite); err != nil {
				errs = append(errs, fmt.Errorf("overwrite on channel %s: %w", co.ChannelID, err))
			}
		}

		return role.ID, errors.Join(errs...)
	case workspace.KindMember:
	}

	return "", fmt.Errorf("cannot recreate a %s", snap.Kind)
}
