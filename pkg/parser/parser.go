// Package parser is the default rule-based request parser. It splits a request into
// clauses and matches each clause against a fixed phrase table, one or more phrases
// per action type. Clauses that match nothing are reported, never guessed at.
package parser

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/dukex/warden/pkg/models"
)

// Func turns request text into a parsed plan. The engine accepts any Func.
type Func func(text string) models.ParsedPlan

var (
	separatorPattern = regexp.MustCompile(`(?i)\s*(?:\band then\b|\bthen\b|;|,|\n)\s*`)
	fillerPattern    = regexp.MustCompile(`(?i)^(?:please\s+|also\s+|and\s+)+`)
)

// phrase binds one clause pattern to an action type. Named groups become arguments;
// fixed arguments are added on every match.
type phrase struct {
	action  models.ActionType
	pattern *regexp.Regexp
	fixed   map[string]any
}

func rule(action models.ActionType, pattern string) phrase {
	return phrase{action: action, pattern: regexp.MustCompile(`(?i)^` + pattern + `$`)}
}

func ruleWith(action models.ActionType, pattern string, fixed map[string]any) phrase {
	p := rule(action, pattern)
	p.fixed = fixed

	return p
}

// overwriteRule matches "<verb> [the|this] [channel] [<channel>] [for|from <target>]".
func overwriteRule(action models.ActionType, verb string) phrase {
	return rule(action,
		verb+`(?:\s+(?:the|this))?(?:\s+channel)?(?:\s+(?P<channel>.+?))??(?:\s+(?:for|from)\s+(?P<target>.+))?`)
}

// Order matters: phrases that share a verb with a broader phrase come first.
var phrases = []phrase{
	rule(models.ActionGrantAccess, `(?:grant|give)\s+(?P<target>.+?)\s+access\s+to\s+(?P<channel>.+)`),
	rule(models.ActionGrantAccess, `(?:grant|give|allow)\s+access\s+to\s+(?P<channel>.+?)\s+(?:for|to)\s+(?P<target>.+)`),
	rule(models.ActionRevokeAccess, `(?:revoke|remove|deny)\s+access\s+to\s+(?P<channel>.+?)\s+(?:from|for)\s+(?P<target>.+)`),
	rule(models.ActionRevokeAccess, `(?:revoke|remove)\s+(?P<target>.+?)(?:'s)?\s+access\s+to\s+(?P<channel>.+)`),

	rule(models.ActionAddRole, `(?:give|assign)\s+(?P<member>\S+)\s+(?:the\s+)?(?P<role>.+?)\s+role`),
	rule(models.ActionAddRole, `(?:add|give|assign|grant)\s+(?:the\s+)?(?:role\s+)?(?P<role>.+?)\s+(?:role\s+)?to\s+(?P<member>.+)`),
	rule(models.ActionRemoveRole, `(?:remove|take|revoke)\s+(?:the\s+)?(?:role\s+)?(?P<role>.+?)\s+(?:role\s+)?from\s+(?P<member>.+)`),

	rule(models.ActionDeleteChannel, `(?:delete|remove)\s+(?:the\s+)?channel\s+(?P<channel>.+)`),
	rule(models.ActionDeleteRole, `(?:delete|remove)\s+(?:the\s+)?role\s+(?P<role>.+)`),

	rule(models.ActionRenameChannel, `rename\s+(?:this\s+)?channel\s+to\s+(?P<name>.+)`),
	rule(models.ActionRenameChannel, `rename\s+(?:the\s+)?channel\s+(?P<channel>.+?)\s+to\s+(?P<name>.+)`),
	rule(models.ActionRenameRole, `rename\s+(?:the\s+)?role\s+(?P<role>.+?)\s+to\s+(?P<name>.+)`),
	rule(models.ActionMoveChannel,
		`move\s+(?:the\s+)?(?:channel\s+)?(?P<channel>.+?)\s+(?:to|into|under)\s+(?:the\s+)?(?:category\s+)?(?P<category>.+)`),

	rule(models.ActionSetTopic, `set\s+(?:the\s+)?topic\s+(?:(?:of|for|in)\s+(?P<channel>.+?)\s+)?to\s+(?P<topic>.+)`),
	rule(models.ActionSetNSFW, `(?:mark|set)\s+(?P<channel>.+?)\s+(?:as\s+)?(?P<enabled>nsfw|sfw)`),
	rule(models.ActionSetNSFW, `(?P<enabled>enable|disable)\s+nsfw(?:\s+(?:on|in|for)\s+(?P<channel>.+))?`),
	rule(models.ActionSetSlowmode,
		`set\s+slowmode\s+(?:(?:on|in|for)\s+(?P<channel>.+?)\s+)?to\s+(?P<seconds>\d+)\s*(?:s|secs?|seconds?)?`),
	ruleWith(models.ActionSetSlowmode,
		`(?:disable|remove|turn\s+off)\s+slowmode(?:\s+(?:on|in|for)\s+(?P<channel>.+))?`, map[string]any{"seconds": 0}),
	rule(models.ActionSetRoleColor,
		`(?:set|change)\s+(?:the\s+)?colou?r\s+of\s+(?:role\s+)?(?P<role>.+?)\s+to\s+(?P<color>#?[0-9a-f]{6})`),
	rule(models.ActionSetRoleMentionable, `make\s+(?:role\s+)?(?P<role>.+?)\s+(?P<enabled>mentionable|unmentionable)`),
	rule(models.ActionSetRoleHoist, `(?P<enabled>hoist|unhoist)\s+(?:role\s+)?(?P<role>.+)`),

	overwriteRule(models.ActionLockChannel, `lock(?:\s+down)?`),
	overwriteRule(models.ActionUnlockChannel, `unlock`),
	overwriteRule(models.ActionHideChannel, `hide`),
	overwriteRule(models.ActionRevealChannel, `(?:reveal|unhide|show)`),

	rule(models.ActionCreateCategory, `(?:create|make|add)\s+(?:a\s+|the\s+)?(?:new\s+)?category\s+(?:(?:called|named)\s+)?(?P<name>.+)`),
	rule(models.ActionCreateChannel,
		`(?:create|make|add)\s+(?:a\s+|the\s+)?(?:new\s+)?(?:text\s+)?channel\s+(?:(?:called|named)\s+)?(?P<name>.+?)`+
			`(?:\s+(?:under|in)\s+(?:the\s+)?(?:category\s+)?(?P<category>.+))?`),
	rule(models.ActionCreateRole,
		`(?:create|make|add)\s+(?:a\s+|an\s+|the\s+)?(?:new\s+)?role\s+(?:(?:called|named)\s+)?(?P<name>.+?)`+
			`(?:\s+with\s+(?:the\s+)?colou?r\s+(?P<color>#?[0-9a-f]{6}))?`),
	rule(models.ActionCreateRole, `(?:create|make|add)\s+(?:a\s+|an\s+|the\s+)?(?:new\s+)?(?P<name>.+?)\s+role`),
}

var flagWords = map[string]bool{
	"nsfw": true, "enable": true, "mentionable": true, "hoist": true,
	"sfw": false, "disable": false, "unmentionable": false, "unhoist": false,
}

// Split breaks a request into trimmed, non-empty clauses.
func Split(text string) []string {
	parts := separatorPattern.Split(text, -1)
	clauses := make([]string, 0, len(parts))

	for _, part := range parts {
		clause := strings.TrimSpace(part)
		clause = fillerPattern.ReplaceAllString(clause, "")
		clause = strings.TrimRight(clause, ".!? ")

		if clause != "" {
			clauses = append(clauses, clause)
		}
	}

	return clauses
}

// Match returns the action described by clause, or false when no phrase matches.
func Match(clause string) (models.Action, bool) {
	for _, p := range phrases {
		groups := p.pattern.FindStringSubmatch(clause)
		if groups == nil {
			continue
		}

		args := make(map[string]any, len(groups)+len(p.fixed))
		for name, value := range p.fixed {
			args[name] = value
		}

		for i, name := range p.pattern.SubexpNames() {
			value := strings.TrimSpace(groups[i])
			if name == "" || value == "" {
				continue
			}

			converted, err := convert(name, value)
			if err != nil {
				return models.Action{}, false
			}

			args[name] = converted
		}

		return models.Action{Type: p.action, Args: args}, true
	}

	return models.Action{}, false
}

func convert(name, value string) (any, error) {
	switch name {
	case "enabled":
		enabled, ok := flagWords[strings.ToLower(value)]
		if !ok {
			return nil, fmt.Errorf("unknown flag word %q", value)
		}

		return enabled, nil
	case "seconds":
		return strconv.Atoi(value)
	default:
		return value, nil
	}
}

// Parse splits text into clauses and maps each recognized clause to one action.
func Parse(text string) models.ParsedPlan {
	plan := models.ParsedPlan{Actions: []models.Action{}}

	for _, clause := range Split(text) {
		action, ok := Match(clause)
		if !ok {
			plan.UnsupportedClauses = append(plan.UnsupportedClauses, clause)

			continue
		}

		plan.Actions = append(plan.Actions, action)
	}

	plan.Risk = Classify(plan.Actions)

	if len(plan.Actions) > 0 && len(plan.UnsupportedClauses) > 0 {
		plan.Warnings = append(plan.Warnings,
			fmt.Sprintf("ignored %d unsupported clause(s): %s",
				len(plan.UnsupportedClauses), strings.Join(plan.UnsupportedClauses, "; ")))
	}

	return plan
}

// Classify rates a list of actions: deletions, membership and permission changes are
// high risk, attribute changes medium, and creations low.
func Classify(actions []models.Action) models.Risk {
	risk := models.RiskLow

	for _, action := range actions {
		switch action.Type.Category() {
		case models.CategoryDeletion, models.CategoryMembership, models.CategoryOverwrite:
			return models.RiskHigh
		case models.CategoryAttribute:
			risk = models.RiskMedium
		case models.CategoryCreation:
		}
	}

	return risk
}

var _ Func = Parse
