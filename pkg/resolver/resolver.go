// Package resolver turns free-form references (mentions, ids, name fragments) into live
// workspace entities.
//
// Ambiguous names are not reported: at whichever match tier first yields candidates, the
// first candidate in the client's iteration order wins.
package resolver

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/dukex/warden/pkg/workspace"
)

// KindPermissionTarget resolves to the everyone role, a role or a member.
const KindPermissionTarget workspace.Kind = "permission_target"

var (
	mentionPattern = regexp.MustCompile(`^<(#|@&|@!?)(\d+)>$`)
	numericPattern = regexp.MustCompile(`^\d{5,}$`)
	stripPattern   = regexp.MustCompile(`[^\w\s.\-]+`)
	spacePattern   = regexp.MustCompile(`\s+`)

	everyoneTokens = map[string]bool{"everyone": true, "@everyone": true, "all": true}
	currentTokens  = map[string]bool{"": true, "current": true, "this": true, "here": true, "this channel": true}
)

// Resolver resolves references against a workspace client.
type Resolver struct {
	client workspace.Client
}

// New creates a resolver backed by client.
func New(client workspace.Client) *Resolver {
	return &Resolver{client: client}
}

// Normalize lowercases a name, strips a leading @ or #, and removes punctuation other
// than dots and dashes.
func Normalize(name string) string {
	n := strings.TrimSpace(strings.ToLower(name))
	n = strings.TrimLeft(n, "@#")
	n = stripPattern.ReplaceAllString(n, "")
	n = spacePattern.ReplaceAllString(n, " ")

	return strings.TrimSpace(n)
}

// IsNameReference reports whether reference is matched against entity names rather
// than resolved by id, mention or the current-channel fallback.
func IsNameReference(reference string) bool {
	ref := strings.TrimSpace(reference)
	if currentTokens[strings.ToLower(ref)] || everyoneTokens[strings.ToLower(ref)] {
		return false
	}

	return !numericPattern.MatchString(ref) && !mentionPattern.MatchString(ref)
}

// Resolve returns the entity of the given kind named by reference, or nil when nothing
// matches. An empty or "current" reference returns fallback without any lookup.
func (r *Resolver) Resolve(
	ctx context.Context,
	workspaceID string,
	kind workspace.Kind,
	reference string,
	fallback workspace.Entity,
) (workspace.Entity, error) {
	ref := strings.TrimSpace(reference)
	if currentTokens[strings.ToLower(ref)] {
		if fallback != nil && kindMatches(kind, fallback) {
			return fallback, nil
		}

		if ref == "" {
			return nil, nil
		}
	}

	switch kind {
	case workspace.KindChannel, workspace.KindCategory:
		return r.resolveChannel(ctx, workspaceID, kind, ref)
	case workspace.KindRole:
		return r.resolveRole(ctx, workspaceID, ref)
	case workspace.KindMember:
		return r.resolveMember(ctx, workspaceID, ref)
	case KindPermissionTarget:
		return r.resolvePermissionTarget(ctx, workspaceID, ref)
	}

	return nil, fmt.Errorf("unsupported entity kind %q", kind)
}

func (r *Resolver) resolveChannel(ctx context.Context, workspaceID string, kind workspace.Kind, ref string) (workspace.Entity, error) {
	if id, ok := structuralID(ref, "#"); ok {
		c, err := r.client.Channel(ctx, workspaceID, id)
		if err != nil || c == nil {
			return nil, err
		}

		if c.EntityKind() != kind {
			return nil, nil
		}

		return c, nil
	}

	channels, err := r.client.Channels(ctx, workspaceID)
	if err != nil {
		return nil, err
	}

	candidates := make([]workspace.Entity, 0, len(channels))
	for _, c := range channels {
		if c.EntityKind() == kind {
			candidates = append(candidates, c)
		}
	}

	return byName(candidates, ref), nil
}

func (r *Resolver) resolveRole(ctx context.Context, workspaceID, ref string) (workspace.Entity, error) {
	if id, ok := structuralID(ref, "@&"); ok {
		role, err := r.client.Role(ctx, workspaceID, id)
		if err != nil || role == nil {
			return nil, err
		}

		return role, nil
	}

	roles, err := r.client.Roles(ctx, workspaceID)
	if err != nil {
		return nil, err
	}

	candidates := make([]workspace.Entity, 0, len(roles))
	for _, role := range roles {
		candidates = append(candidates, role)
	}

	return byName(candidates, ref), nil
}

func (r *Resolver) resolveMember(ctx context.Context, workspaceID, ref string) (workspace.Entity, error) {
	if id, ok := structuralID(ref, "@", "@!"); ok {
		member, err := r.client.Member(ctx, workspaceID, id)
		if err != nil || member == nil {
			return nil, err
		}

		return member, nil
	}

	members, err := r.client.Members(ctx, workspaceID)
	if err != nil {
		return nil, err
	}

	// Usernames are tried before display names at every tier.
	byUsername := make([]workspace.Entity, 0, len(members))
	byDisplay := make([]workspace.Entity, 0, len(members))

	for _, m := range members {
		byUsername = append(byUsername, usernameView{m})
		byDisplay = append(byDisplay, m)
	}

	needle := Normalize(ref)
	if needle == "" {
		return nil, nil
	}

	for _, tier := range tiers {
		if found := firstMatch(byUsername, needle, tier); found != nil {
			return found.(usernameView).Member, nil
		}

		if found := firstMatch(byDisplay, needle, tier); found != nil {
			return found, nil
		}
	}

	return nil, nil
}

func (r *Resolver) resolvePermissionTarget(ctx context.Context, workspaceID, ref string) (workspace.Entity, error) {
	if everyoneTokens[strings.ToLower(ref)] {
		ws, err := r.client.Workspace(ctx, workspaceID)
		if err != nil {
			return nil, err
		}

		role, err := r.client.Role(ctx, workspaceID, ws.EveryoneRoleID)
		if err != nil || role == nil {
			return nil, err
		}

		return role, nil
	}

	if m := mentionPattern.FindStringSubmatch(ref); m != nil && m[1] != "@&" {
		return r.resolveMember(ctx, workspaceID, ref)
	}

	role, err := r.resolveRole(ctx, workspaceID, ref)
	if err != nil || role != nil {
		return role, err
	}

	return r.resolveMember(ctx, workspaceID, ref)
}

// structuralID extracts an id from mention syntax with one of the given sigils, or from
// a bare numeric id.
func structuralID(ref string, sigils ...string) (string, bool) {
	if numericPattern.MatchString(ref) {
		return ref, true
	}

	m := mentionPattern.FindStringSubmatch(ref)
	if m == nil {
		return "", false
	}

	for _, sigil := range sigils {
		if m[1] == sigil {
			return m[2], true
		}
	}

	return "", false
}

type matchTier int

const (
	tierExact matchTier = iota
	tierPrefix
	tierSubstring
)

var tiers = []matchTier{tierExact, tierPrefix, tierSubstring}

func byName(candidates []workspace.Entity, ref string) workspace.Entity {
	needle := Normalize(ref)
	if needle == "" {
		return nil
	}

	for _, tier := range tiers {
		if found := firstMatch(candidates, needle, tier); found != nil {
			return found
		}
	}

	return nil
}

func firstMatch(candidates []workspace.Entity, needle string, tier matchTier) workspace.Entity {
	for _, c := range candidates {
		name := Normalize(c.EntityName())

		var ok bool

		switch tier {
		case tierExact:
			ok = name == needle
		case tierPrefix:
			ok = strings.HasPrefix(name, needle)
		case tierSubstring:
			ok = strings.Contains(name, needle)
		}

		if ok {
			return c
		}
	}

	return nil
}

func kindMatches(kind workspace.Kind, e workspace.Entity) bool {
	if kind == KindPermissionTarget {
		return e.EntityKind() == workspace.KindRole || e.EntityKind() == workspace.KindMember
	}

	return e.EntityKind() == kind
}

type usernameView struct {
	*workspace.Member
}

func (u usernameView) EntityName() string { return u.Username }
