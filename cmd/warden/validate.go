package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/dukex/warden/pkg/config"
	cli "github.com/urfave/cli/v3"
)

func NewValidatePolicyCommand() *cli.Command {
	return &cli.Command{
		Name:    "validate-policy",
		Aliases: []string{"v"},
		Usage:   "Check a YAML policy file without starting the server",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "policy-file",
				Aliases:  []string{"f"},
				Usage:    "Path to the policy file",
				Required: true,
				Sources:  cli.EnvVars("POLICY_FILE"),
			},
		},
		Action: func(_ context.Context, command *cli.Command) error {
			file, err := config.LoadPolicyFile(command.String("policy-file"))
			if err != nil {
				return err
			}

			out := command.Root().Writer

			_, _ = fmt.Fprintln(out, "Policy Validation Results:")
			_, _ = fmt.Fprintln(out, "==========================")

			for _, workspaceID := range file.WorkspaceIDs() {
				pol := file.Workspaces[workspaceID]

				types := make([]string, 0, len(pol.AllowedActionTypes))
				for _, t := range pol.AllowedActionTypes {
					types = append(types, string(t))
				}

				_, _ = fmt.Fprintf(out, "%s: enabled=%t approval=%t max_actions=%d allowed=[%s]\n",
					workspaceID, pol.Enabled, pol.RequireApproval, pol.MaxActionsPerRun, strings.Join(types, ", "))
			}

			return nil
		},
	}
}
