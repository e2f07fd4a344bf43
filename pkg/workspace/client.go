// Package workspace defines the capability interface the engine consumes to read and
// mutate a managed workspace (channels, roles, members and permission overwrites).
package workspace

import (
	"context"
	"errors"
	"time"
)

// ErrUnknownWorkspace is returned when a client does not manage the requested workspace.
var ErrUnknownWorkspace = errors.New("unknown workspace")

// Kind identifies the type of a workspace entity.
type Kind string

const (
	KindChannel  Kind = "channel"
	KindCategory Kind = "category"
	KindRole     Kind = "role"
	KindMember   Kind = "member"
)

// Permission is a bitset of platform capabilities.
type Permission uint64

const (
	PermViewChannel Permission = 1 << iota
	PermSendMessages
	PermManageChannels
	PermManageRoles
	PermAdministrator
)

var permissionNames = []struct {
	perm Permission
	name string
}{
	{PermViewChannel, "view channel"},
	{PermSendMessages, "send messages"},
	{PermManageChannels, "manage channels"},
	{PermManageRoles, "manage roles"},
	{PermAdministrator, "administrator"},
}

// Has reports whether every bit of other is present in p.
func (p Permission) Has(other Permission) bool {
	return p&other == other
}

// Names lists the human-readable name of every capability set in p.
func (p Permission) Names() []string {
	names := make([]string, 0)

	for _, pn := range permissionNames {
		if p&pn.perm != 0 {
			names = append(names, pn.name)
		}
	}

	return names
}

// Workspace is the identity of a managed workspace.
type Workspace struct {
	ID             string `json:"id" yaml:"id"`
	Name           string `json:"name" yaml:"name"`
	OwnerID        string `json:"owner_id" yaml:"owner_id"`
	EveryoneRoleID string `json:"everyone_role_id" yaml:"everyone_role_id"`
}

// Entity is anything the resolver can return.
type Entity interface {
	EntityID() string
	EntityName() string
	EntityKind() Kind
}

// Channel is a text channel or a category.
type Channel struct {
	ID         string      `json:"id" yaml:"id"`
	Name       string      `json:"name" yaml:"name"`
	IsCategory bool        `json:"is_category,omitempty" yaml:"is_category"`
	ParentID   string      `json:"parent_id,omitempty" yaml:"parent_id"`
	Topic      string      `json:"topic,omitempty" yaml:"topic"`
	NSFW       bool        `json:"nsfw,omitempty" yaml:"nsfw"`
	Slowmode   int         `json:"slowmode,omitempty" yaml:"slowmode"`
	Position   int         `json:"position" yaml:"position"`
	Overwrites []Overwrite `json:"overwrites,omitempty" yaml:"overwrites"`
}

func (c *Channel) EntityID() string   { return c.ID }
func (c *Channel) EntityName() string { return c.Name }

func (c *Channel) EntityKind() Kind {
	if c.IsCategory {
		return KindCategory
	}

	return KindChannel
}

// Role is a position in the workspace role hierarchy.
type Role struct {
	ID          string     `json:"id" yaml:"id"`
	Name        string     `json:"name" yaml:"name"`
	Color       int        `json:"color,omitempty" yaml:"color"`
	Mentionable bool       `json:"mentionable,omitempty" yaml:"mentionable"`
	Hoist       bool       `json:"hoist,omitempty" yaml:"hoist"`
	Managed     bool       `json:"managed,omitempty" yaml:"managed"`
	Position    int        `json:"position" yaml:"position"`
	Permissions Permission `json:"permissions" yaml:"permissions"`
}

func (r *Role) EntityID() string   { return r.ID }
func (r *Role) EntityName() string { return r.Name }
func (r *Role) EntityKind() Kind   { return KindRole }

// Member is a workspace participant, including the service identity itself.
type Member struct {
	ID          string   `json:"id" yaml:"id"`
	Username    string   `json:"username" yaml:"username"`
	DisplayName string   `json:"display_name,omitempty" yaml:"display_name"`
	RoleIDs     []string `json:"role_ids,omitempty" yaml:"role_ids"`
}

func (m *Member) EntityID() string { return m.ID }

func (m *Member) EntityName() string {
	if m.DisplayName != "" {
		return m.DisplayName
	}

	return m.Username
}

func (m *Member) EntityKind() Kind { return KindMember }

// HasRole reports whether the member currently holds roleID.
func (m *Member) HasRole(roleID string) bool {
	for _, id := range m.RoleIDs {
		if id == roleID {
			return true
		}
	}

	return false
}

// OverwriteTarget distinguishes role and member overwrites.
type OverwriteTarget string

const (
	OverwriteRole   OverwriteTarget = "role"
	OverwriteMember OverwriteTarget = "member"
)

// Overwrite is a per-channel permission override for one role or member.
type Overwrite struct {
	TargetID   string          `json:"target_id" yaml:"target_id"`
	TargetType OverwriteTarget `json:"target_type" yaml:"target_type"`
	Allow      Permission      `json:"allow" yaml:"allow"`
	Deny       Permission      `json:"deny" yaml:"deny"`
}

// ChannelSpec describes a channel or category to create.
type ChannelSpec struct {
	Name       string
	IsCategory bool
	ParentID   string
	Topic      string
	NSFW       bool
	Slowmode   int
	Overwrites []Overwrite
}

// RoleSpec describes a role to create. A zero Position places the role directly above
// the everyone role.
type RoleSpec struct {
	Name        string
	Color       int
	Mentionable bool
	Hoist       bool
	Permissions Permission
	Position    int
}

// AuditRecord is a platform-side audit event.
type AuditRecord struct {
	ID        string    `json:"id"`
	EventType string    `json:"event_type"`
	TargetID  string    `json:"target_id"`
	ActorID   string    `json:"actor_id"`
	CreatedAt time.Time `json:"created_at"`
}

// Client is the capability interface every workspace backend must implement.
// Lookups return a nil entity and a nil error when nothing matches.
type Client interface {
	Workspace(ctx context.Context, workspaceID string) (*Workspace, error)

	Channels(ctx context.Context, workspaceID string) ([]*Channel, error)
	Roles(ctx context.Context, workspaceID string) ([]*Role, error)
	Members(ctx context.Context, workspaceID string) ([]*Member, error)

	Channel(ctx context.Context, workspaceID, channelID string) (*Channel, error)
	Role(ctx context.Context, workspaceID, roleID string) (*Role, error)
	Member(ctx context.Context, workspaceID, memberID string) (*Member, error)

	CreateChannel(ctx context.Context, workspaceID string, spec ChannelSpec) (*Channel, error)
	CreateRole(ctx context.Context, workspaceID string, spec RoleSpec) (*Role, error)
	DeleteChannel(ctx context.Context, workspaceID, channelID string) error
	DeleteRole(ctx context.Context, workspaceID, roleID string) error

	SetAttributes(ctx context.Context, workspaceID string, kind Kind, id string, attrs Attributes) error
	SetMembership(ctx context.Context, workspaceID, roleID, memberID string, present bool) error

	PermissionOverwrite(ctx context.Context, workspaceID, channelID, targetID string) (*Overwrite, error)
	SetPermissionOverwrite(ctx context.Context, workspaceID, channelID string, overwrite Overwrite) error
	DeletePermissionOverwrite(ctx context.Context, workspaceID, channelID, targetID string) error

	RecentAuditRecord(ctx context.Context, workspaceID, eventType, targetID string) (*AuditRecord, error)
}
