package main

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/dukex/warden/pkg/models"
	"github.com/dukex/warden/pkg/parser"
	"github.com/dukex/warden/pkg/policy"
	cli "github.com/urfave/cli/v3"
)

var ErrNoRequestText = errors.New("request text is required")

// preview is what parse prints: the parsed actions and how the default policy treats them.
type preview struct {
	Parsed     models.ParsedPlan `json:"parsed"`
	Validation policy.Validation `json:"validation"`
}

func NewParseCommand() *cli.Command {
	return &cli.Command{
		Name:      "parse",
		Usage:     "Show the actions a request would produce under the default policy",
		ArgsUsage: "<request text>",
		Action: func(_ context.Context, command *cli.Command) error {
			text := strings.TrimSpace(strings.Join(command.Args().Slice(), " "))
			if text == "" {
				return ErrNoRequestText
			}

			parsed := parser.Parse(text)

			encoder := json.NewEncoder(command.Root().Writer)
			encoder.SetIndent("", "  ")

			return encoder.Encode(preview{
				Parsed:     parsed,
				Validation: policy.Validate(parsed, policy.Default()),
			})
		},
	}
}
