package executor

import (
	"context"
	"fmt"

	"github.com/dukex/warden/pkg/models"
	"github.com/dukex/warden/pkg/resolver"
	"github.com/dukex/warden/pkg/workspace"
)

// overwriteEdit describes how an overwrite action changes the target's allow and deny
// bits on a channel.
type overwriteEdit struct {
	allow, deny     workspace.Permission
	clearAllow      workspace.Permission
	clearDeny       workspace.Permission
	defaultEveryone bool
	verb, past      string
}

var overwriteEdits = map[models.ActionType]overwriteEdit{
	models.ActionLockChannel: {
		deny: workspace.PermSendMessages, clearAllow: workspace.PermSendMessages,
		defaultEveryone: true, verb: "lock", past: "locked",
	},
	models.ActionUnlockChannel: {
		clearDeny:       workspace.PermSendMessages,
		defaultEveryone: true, verb: "unlock", past: "unlocked",
	},
	models.ActionGrantAccess: {
		allow: workspace.PermViewChannel, clearDeny: workspace.PermViewChannel,
		verb: "grant access to", past: "granted access to",
	},
	models.ActionRevokeAccess: {
		deny: workspace.PermViewChannel, clearAllow: workspace.PermViewChannel,
		verb: "revoke access to", past: "revoked access to",
	},
	models.ActionHideChannel: {
		deny: workspace.PermViewChannel, clearAllow: workspace.PermViewChannel,
		defaultEveryone: true, verb: "hide", past: "hid",
	},
	models.ActionRevealChannel: {
		clearDeny:       workspace.PermViewChannel,
		defaultEveryone: true, verb: "reveal", past: "revealed",
	},
}

func (e *Executor) overwrite(ctx context.Context, action models.Action, ec Context) (outcome, *stepError) {
	edit, ok := overwriteEdits[action.Type]
	if !ok {
		return outcome{}, invalidArgs("unknown action type %q", action.Type)
	}

	channel, serr := e.resolveChannelOrCategory(ctx, ec, action.Arg("channel"))
	if serr != nil {
		return outcome{}, serr
	}

	ref := action.Arg("target")
	if ref == "" && edit.defaultEveryone {
		ref = "everyone"
	}

	target, serr := e.resolve(ctx, ec, resolver.KindPermissionTarget, ref, nil)
	if serr != nil {
		return outcome{}, serr
	}

	targetType := workspace.OverwriteRole
	if target.EntityKind() == workspace.KindMember {
		targetType = workspace.OverwriteMember
	}

	label := fmt.Sprintf("%s %s for %s", channel.EntityKind(), channel.Name, target.EntityName())

	var prior *workspace.Overwrite

	if channel.ID != "" {
		var err error

		prior, err = e.client.PermissionOverwrite(ctx, ec.WorkspaceID, channel.ID, target.EntityID())
		if err != nil {
			return outcome{}, platform("could not read overwrite on "+label, err)
		}
	}

	next := workspace.Overwrite{TargetID: target.EntityID(), TargetType: targetType}
	if prior != nil {
		next.Allow, next.Deny = prior.Allow, prior.Deny
	}

	next.Allow = (next.Allow &^ edit.clearAllow) | edit.allow
	next.Deny = (next.Deny &^ edit.clearDeny) | edit.deny

	empty := next.Allow == 0 && next.Deny == 0
	if (prior == nil && empty) || (prior != nil && prior.Allow == next.Allow && prior.Deny == next.Deny) {
		return outcome{summary: fmt.Sprintf("%s already in the requested state", label)}, nil
	}

	if ec.DryRun {
		return outcome{summary: fmt.Sprintf("would %s %s", edit.verb, label)}, nil
	}

	var err error
	if empty {
		err = e.client.DeletePermissionOverwrite(ctx, ec.WorkspaceID, channel.ID, next.TargetID)
	} else {
		err = e.client.SetPermissionOverwrite(ctx, ec.WorkspaceID, channel.ID, next)
	}

	if err != nil {
		return outcome{}, platform(fmt.Sprintf("could not %s %s", edit.verb, label), err)
	}

	rollback := &models.RollbackStep{
		Kind:         models.RollbackRestorePermissionOverwrite,
		ResourceKind: channel.EntityKind(),
		ResourceID:   channel.ID,
		TargetID:     next.TargetID,
		TargetType:   targetType,
		HadOverwrite: prior != nil,
		Summary:      "restore permissions on " + label,
	}

	if prior != nil {
		rollback.PriorAllow, rollback.PriorDeny = prior.Allow, prior.Deny
	}

	return outcome{summary: fmt.Sprintf("%s %s", edit.past, label), rollback: rollback}, nil
}
