package executor

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/dukex/warden/pkg/models"
	"github.com/dukex/warden/pkg/workspace"
)

// channelName applies the platform's naming rules for text channels.
func channelName(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(name)), "-")
}

func requiredName(action models.Action) (string, *stepError) {
	name := strings.TrimSpace(action.Arg("name"))
	if name == "" {
		return "", invalidArgs("a name is required")
	}

	if len([]rune(name)) > models.MaxNameLength {
		name = string([]rune(name)[:models.MaxNameLength])
	}

	return name, nil
}

func parseColor(value string) (int, error) {
	c, err := strconv.ParseInt(strings.TrimPrefix(strings.TrimSpace(value), "#"), 16, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid color %q", value)
	}

	return int(c), nil
}

func (e *Executor) createChannel(ctx context.Context, action models.Action, ec Context, category bool) (outcome, *stepError) {
	name, serr := requiredName(action)
	if serr != nil {
		return outcome{}, serr
	}

	kind := workspace.KindCategory
	if !category {
		kind = workspace.KindChannel
		name = channelName(name)
	}

	spec := workspace.ChannelSpec{Name: name, IsCategory: category, Topic: action.Arg("topic")}
	label := fmt.Sprintf("%s %s", kind, name)

	if !category && action.Arg("category") != "" {
		parent, serr := e.resolve(ctx, ec, workspace.KindCategory, action.Arg("category"), nil)
		if serr != nil {
			return outcome{}, serr
		}

		spec.ParentID = parent.EntityID()
		label += " under " + parent.EntityName()
	}

	if ec.DryRun {
		ec.Simulation.add(kind, name)

		return outcome{summary: "would create " + label}, nil
	}

	created, err := e.client.CreateChannel(ctx, ec.WorkspaceID, spec)
	if err != nil {
		return outcome{}, platform("could not create "+label, err)
	}

	return outcome{
		summary: "created " + label,
		rollback: &models.RollbackStep{
			Kind:         models.RollbackDeleteResource,
			ResourceKind: kind,
			ResourceID:   created.ID,
			Summary:      "delete " + label,
		},
	}, nil
}

func (e *Executor) createRole(ctx context.Context, action models.Action, ec Context) (outcome, *stepError) {
	name, serr := requiredName(action)
	if serr != nil {
		return outcome{}, serr
	}

	spec := workspace.RoleSpec{Name: name}

	if raw := action.Arg("color"); raw != "" {
		color, err := parseColor(raw)
		if err != nil {
			return outcome{}, invalidArgs("%v", err)
		}

		spec.Color = color
	}

	label := "role " + name

	if ec.DryRun {
		ec.Simulation.add(workspace.KindRole, name)

		return outcome{summary: "would create " + label}, nil
	}

	created, err := e.client.CreateRole(ctx, ec.WorkspaceID, spec)
	if err != nil {
		return outcome{}, platform("could not create "+label, err)
	}

	return outcome{
		summary: "created " + label,
		rollback: &models.RollbackStep{
			Kind:         models.RollbackDeleteResource,
			ResourceKind: workspace.KindRole,
			ResourceID:   created.ID,
			Summary:      "delete " + label,
		},
	}, nil
}
