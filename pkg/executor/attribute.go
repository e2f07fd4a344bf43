package executor

import (
	"context"
	"fmt"

	"github.com/dukex/warden/pkg/authz"
	"github.com/dukex/warden/pkg/models"
	"github.com/dukex/warden/pkg/workspace"
)

type change struct {
	entity  workspace.Entity
	label   string
	attr    workspace.Attribute
	current any
	desired any
	// shown is how the desired value is described in summaries.
	shown string
}

func (e *Executor) applyChange(ctx context.Context, ec Context, c change) (outcome, *stepError) {
	if c.shown == "" {
		c.shown = fmt.Sprintf("%v", c.desired)
	}

	if workspace.Equal(c.current, c.desired) {
		return outcome{summary: fmt.Sprintf("%s already has %s %s", c.label, c.attr, c.shown)}, nil
	}

	if ec.DryRun {
		ec.Simulation.set(c.entity, c.attr, c.desired)

		return outcome{summary: fmt.Sprintf("would set %s of %s to %s", c.attr, c.label, c.shown)}, nil
	}

	kind := c.entity.EntityKind()

	err := e.client.SetAttributes(ctx, ec.WorkspaceID, kind, c.entity.EntityID(), workspace.Attributes{c.attr: c.desired})
	if err != nil {
		return outcome{}, platform(fmt.Sprintf("could not update %s", c.label), err)
	}

	return outcome{
		summary: fmt.Sprintf("set %s of %s to %s", c.attr, c.label, c.shown),
		rollback: &models.RollbackStep{
			Kind:            models.RollbackRestoreAttributes,
			ResourceKind:    kind,
			ResourceID:      c.entity.EntityID(),
			Summary:         fmt.Sprintf("restore %s of %s", c.attr, c.label),
			PriorAttributes: workspace.Attributes{c.attr: c.current},
		},
	}, nil
}

func (e *Executor) renameChannel(ctx context.Context, action models.Action, ec Context) (outcome, *stepError) {
	name, serr := requiredName(action)
	if serr != nil {
		return outcome{}, serr
	}

	channel, serr := e.resolveChannelOrCategory(ctx, ec, action.Arg("channel"))
	if serr != nil {
		return outcome{}, serr
	}

	if !channel.IsCategory {
		name = channelName(name)
	}

	return e.applyChange(ctx, ec, change{
		entity:  channel,
		label:   fmt.Sprintf("%s %s", channel.EntityKind(), channel.Name),
		attr:    workspace.AttrName,
		current: channel.Name,
		desired: name,
	})
}

func (e *Executor) moveChannel(ctx context.Context, action models.Action, ec Context) (outcome, *stepError) {
	channel, serr := e.resolveChannel(ctx, ec, action.Arg("channel"))
	if serr != nil {
		return outcome{}, serr
	}

	category, serr := e.resolve(ctx, ec, workspace.KindCategory, action.Arg("category"), nil)
	if serr != nil {
		return outcome{}, serr
	}

	return e.applyChange(ctx, ec, change{
		entity:  channel,
		label:   "channel #" + channel.Name,
		attr:    workspace.AttrParent,
		current: channel.ParentID,
		desired: category.EntityID(),
		shown:   category.EntityName(),
	})
}

func (e *Executor) channelAttribute(
	ctx context.Context,
	action models.Action,
	ec Context,
	attr workspace.Attribute,
) (outcome, *stepError) {
	channel, serr := e.resolveChannel(ctx, ec, action.Arg("channel"))
	if serr != nil {
		return outcome{}, serr
	}

	desired, err := desiredValue(action, attr)
	if err != nil {
		return outcome{}, invalidArgs("%v", err)
	}

	current, err := workspace.ChannelAttribute(channel, attr)
	if err != nil {
		return outcome{}, invalidArgs("%v", err)
	}

	return e.applyChange(ctx, ec, change{
		entity:  channel,
		label:   "channel #" + channel.Name,
		attr:    attr,
		current: current,
		desired: desired,
	})
}

func (e *Executor) roleAttribute(
	ctx context.Context,
	action models.Action,
	ec Context,
	attr workspace.Attribute,
) (outcome, *stepError) {
	role, serr := e.resolveRole(ctx, ec, action.Arg("role"))
	if serr != nil {
		return outcome{}, serr
	}

	if err := authz.CheckRoleTarget(ec.Workspace, ec.Actor, ec.Agent, role); err != nil {
		return outcome{}, denied(err)
	}

	desired, err := desiredValue(action, attr)
	if err != nil {
		return outcome{}, invalidArgs("%v", err)
	}

	current, err := workspace.RoleAttribute(role, attr)
	if err != nil {
		return outcome{}, invalidArgs("%v", err)
	}

	shown := ""
	if color, ok := desired.(int); ok && attr == workspace.AttrColor {
		shown = fmt.Sprintf("#%06x", color)
	}

	return e.applyChange(ctx, ec, change{
		entity:  role,
		label:   "role " + role.Name,
		attr:    attr,
		current: current,
		desired: desired,
		shown:   shown,
	})
}

func desiredValue(action models.Action, attr workspace.Attribute) (any, error) {
	switch attr {
	case workspace.AttrName:
		name, serr := requiredName(action)
		if serr != nil {
			return nil, serr
		}

		return name, nil
	case workspace.AttrTopic:
		return action.Arg("topic"), nil
	case workspace.AttrNSFW, workspace.AttrMentionable, workspace.AttrHoist:
		return workspace.AsBool(action.Args["enabled"])
	case workspace.AttrSlowmode:
		return workspace.AsInt(action.Args["seconds"])
	case workspace.AttrColor:
		return parseColor(action.Arg("color"))
	case workspace.AttrParent:
	}

	return nil, fmt.Errorf("attribute %q cannot be set directly", attr)
}
