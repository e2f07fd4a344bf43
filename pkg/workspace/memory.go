package workspace

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"sync"
	"time"
)

// ErrEntityNotFound is returned by Memory when a mutation targets a missing entity.
var ErrEntityNotFound = errors.New("entity not found")

// Call records one mutating request served by Memory.
type Call struct {
	Op       string
	TargetID string
}

type memoryState struct {
	workspace Workspace
	channels  []*Channel
	roles     []*Role
	members   []*Member
	audit     []AuditRecord
}

// Memory is an in-memory Client. Entities are returned as copies so callers never
// observe later mutations through a previously returned pointer.
type Memory struct {
	mu     sync.Mutex
	state  map[string]*memoryState
	calls  []Call
	failOn map[string]error
	nextID uint64
}

// NewMemory creates an empty in-memory workspace client.
func NewMemory() *Memory {
	return &Memory{
		state:  make(map[string]*memoryState),
		failOn: make(map[string]error),
		nextID: 900000000000000000,
	}
}

// Seed registers a workspace and its initial entities.
func (m *Memory) Seed(ws Workspace, channels []*Channel, roles []*Role, members []*Member) {
	m.mu.Lock()
	defer m.mu.Unlock()

	st := &memoryState{workspace: ws}
	for _, c := range channels {
		st.channels = append(st.channels, cloneChannel(c))
	}

	for _, r := range roles {
		cp := *r
		st.roles = append(st.roles, &cp)
	}

	for _, mem := range members {
		st.members = append(st.members, cloneMember(mem))
	}

	m.state[ws.ID] = st
}

// FailOn makes every subsequent call to op fail with err. A nil err clears it.
func (m *Memory) FailOn(op string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err == nil {
		delete(m.failOn, op)

		return
	}

	m.failOn[op] = err
}

// Calls returns the mutating calls served so far, in order.
func (m *Memory) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()

	return slices.Clone(m.calls)
}

// ResetCalls clears the call log.
func (m *Memory) ResetCalls() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls = nil
}

func (m *Memory) begin(workspaceID, op, targetID string) (*memoryState, error) {
	st, ok := m.state[workspaceID]
	if !ok {
		return nil, fmt.Errorf("%s: %w", workspaceID, ErrUnknownWorkspace)
	}

	if err, ok := m.failOn[op]; ok {
		return nil, err
	}

	m.calls = append(m.calls, Call{Op: op, TargetID: targetID})

	return st, nil
}

func (m *Memory) lookup(workspaceID string) (*memoryState, error) {
	st, ok := m.state[workspaceID]
	if !ok {
		return nil, fmt.Errorf("%s: %w", workspaceID, ErrUnknownWorkspace)
	}

	return st, nil
}

func (m *Memory) newID() string {
	m.nextID++

	return strconv.FormatUint(m.nextID, 10)
}

func (m *Memory) Workspace(_ context.Context, workspaceID string) (*Workspace, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	st, err := m.lookup(workspaceID)
	if err != nil {
		return nil, err
	}

	ws := st.workspace

	return &ws, nil
}

func (m *Memory) Channels(_ context.Context, workspaceID string) ([]*Channel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	st, err := m.lookup(workspaceID)
	if err != nil {
		return nil, err
	}

	out := make([]*Channel, 0, len(st.channels))
	for _, c := range st.channels {
		out = append(out, cloneChannel(c))
	}

	return out, nil
}

func (m *Memory) Roles(_ context.Context, workspaceID string) ([]*Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	st, err := m.lookup(workspaceID)
	if err != nil {
		return nil, err
	}

	out := make([]*Role, 0, len(st.roles))
	for _, r := range st.roles {
		cp := *r
		out = append(out, &cp)
	}

	return out, nil
}

func (m *Memory) Members(_ context.Context, workspaceID string) ([]*Member, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	st, err := m.lookup(workspaceID)
	if err != nil {
		return nil, err
	}

	out := make([]*Member, 0, len(st.members))
	for _, mem := range st.members {
		out = append(out, cloneMember(mem))
	}

	return out, nil
}

func (m *Memory) Channel(_ context.Context, workspaceID, channelID string) (*Channel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	st, err := m.lookup(workspaceID)
	if err != nil {
		return nil, err
	}

	if c := st.channel(channelID); c != nil {
		return cloneChannel(c), nil
	}

	return nil, nil
}

func (m *Memory) Role(_ context.Context, workspaceID, roleID string) (*Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	st, err := m.lookup(workspaceID)
	if err != nil {
		return nil, err
	}

	if r := st.role(roleID); r != nil {
		cp := *r

		return &cp, nil
	}

	return nil, nil
}

func (m *Memory) Member(_ context.Context, workspaceID, memberID string) (*Member, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	st, err := m.lookup(workspaceID)
	if err != nil {
		return nil, err
	}

	if mem := st.member(memberID); mem != nil {
		return cloneMember(mem), nil
	}

	return nil, nil
}

func (m *Memory) CreateChannel(_ context.Context, workspaceID string, spec ChannelSpec) (*Channel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	st, err := m.begin(workspaceID, "create_channel", spec.Name)
	if err != nil {
		return nil, err
	}

	c := &Channel{
		ID:         m.newID(),
		Name:       spec.Name,
		IsCategory: spec.IsCategory,
		ParentID:   spec.ParentID,
		Topic:      spec.Topic,
		NSFW:       spec.NSFW,
		Slowmode:   spec.Slowmode,
		Position:   len(st.channels),
		Overwrites: slices.Clone(spec.Overwrites),
	}
	st.channels = append(st.channels, c)
	st.record("channel_create", c.ID)

	return cloneChannel(c), nil
}

func (m *Memory) CreateRole(_ context.Context, workspaceID string, spec RoleSpec) (*Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	st, err := m.begin(workspaceID, "create_role", spec.Name)
	if err != nil {
		return nil, err
	}

	// Roles at or above the requested position move up by one.
	pos := max(spec.Position, 1)
	for _, r := range st.roles {
		if r.ID != st.workspace.EveryoneRoleID && r.Position >= pos {
			r.Position++
		}
	}

	r := &Role{
		ID:          m.newID(),
		Name:        spec.Name,
		Color:       spec.Color,
		Mentionable: spec.Mentionable,
		Hoist:       spec.Hoist,
		Position:    pos,
		Permissions: spec.Permissions,
	}
	st.roles = append(st.roles, r)
	st.record("role_create", r.ID)

	cp := *r

	return &cp, nil
}

func (m *Memory) DeleteChannel(_ context.Context, workspaceID, channelID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	st, err := m.begin(workspaceID, "delete_channel", channelID)
	if err != nil {
		return err
	}

	idx := slices.IndexFunc(st.channels, func(c *Channel) bool { return c.ID == channelID })
	if idx < 0 {
		return fmt.Errorf("channel %s: %w", channelID, ErrEntityNotFound)
	}

	st.channels = slices.Delete(st.channels, idx, idx+1)
	st.record("channel_delete", channelID)

	return nil
}

func (m *Memory) DeleteRole(_ context.Context, workspaceID, roleID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	st, err := m.begin(workspaceID, "delete_role", roleID)
	if err != nil {
		return err
	}

	idx := slices.IndexFunc(st.roles, func(r *Role) bool { return r.ID == roleID })
	if idx < 0 {
		return fmt.Errorf("role %s: %w", roleID, ErrEntityNotFound)
	}

	st.roles = slices.Delete(st.roles, idx, idx+1)

	for _, mem := range st.members {
		mem.RoleIDs = slices.DeleteFunc(mem.RoleIDs, func(id string) bool { return id == roleID })
	}

	for _, c := range st.channels {
		c.Overwrites = slices.DeleteFunc(c.Overwrites, func(o Overwrite) bool { return o.TargetID == roleID })
	}

	st.record("role_delete", roleID)

	return nil
}

func (m *Memory) SetAttributes(_ context.Context, workspaceID string, kind Kind, id string, attrs Attributes) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	st, err := m.begin(workspaceID, "set_attributes", id)
	if err != nil {
		return err
	}

	switch kind {
	case KindChannel, KindCategory:
		c := st.channel(id)
		if c == nil {
			return fmt.Errorf("channel %s: %w", id, ErrEntityNotFound)
		}

		if err := ApplyChannel(c, attrs); err != nil {
			return err
		}

		st.record("channel_update", id)
	case KindRole:
		r := st.role(id)
		if r == nil {
			return fmt.Errorf("role %s: %w", id, ErrEntityNotFound)
		}

		if err := ApplyRole(r, attrs); err != nil {
			return err
		}

		st.record("role_update", id)
	default:
		return fmt.Errorf("cannot set attributes on %s", kind)
	}

	return nil
}

func (m *Memory) SetMembership(_ context.Context, workspaceID, roleID, memberID string, present bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	st, err := m.begin(workspaceID, "set_membership", memberID)
	if err != nil {
		return err
	}

	if st.role(roleID) == nil {
		return fmt.Errorf("role %s: %w", roleID, ErrEntityNotFound)
	}

	mem := st.member(memberID)
	if mem == nil {
		return fmt.Errorf("member %s: %w", memberID, ErrEntityNotFound)
	}

	mem.RoleIDs = slices.DeleteFunc(mem.RoleIDs, func(id string) bool { return id == roleID })
	if present {
		mem.RoleIDs = append(mem.RoleIDs, roleID)
	}

	st.record("member_role_update", memberID)

	return nil
}

func (m *Memory) PermissionOverwrite(_ context.Context, workspaceID, channelID, targetID string) (*Overwrite, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	st, err := m.lookup(workspaceID)
	if err != nil {
		return nil, err
	}

	c := st.channel(channelID)
	if c == nil {
		return nil, fmt.Errorf("channel %s: %w", channelID, ErrEntityNotFound)
	}

	for _, ow := range c.Overwrites {
		if ow.TargetID == targetID {
			cp := ow

			return &cp, nil
		}
	}

	return nil, nil
}

func (m *Memory) SetPermissionOverwrite(_ context.Context, workspaceID, channelID string, overwrite Overwrite) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	st, err := m.begin(workspaceID, "set_permission_overwrite", channelID)
	if err != nil {
		return err
	}

	c := st.channel(channelID)
	if c == nil {
		return fmt.Errorf("channel %s: %w", channelID, ErrEntityNotFound)
	}

	idx := slices.IndexFunc(c.Overwrites, func(ow Overwrite) bool { return ow.TargetID == overwrite.TargetID })
	if idx >= 0 {
		c.Overwrites[idx] = overwrite
	} else {
		c.Overwrites = append(c.Overwrites, overwrite)
	}

	st.record("channel_overwrite_update", channelID)

	return nil
}

func (m *Memory) DeletePermissionOverwrite(_ context.Context, workspaceID, channelID, targetID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	st, err := m.begin(workspaceID, "delete_permission_overwrite", channelID)
	if err != nil {
		return err
	}

	c := st.channel(channelID)
	if c == nil {
		return fmt.Errorf("channel %s: %w", channelID, ErrEntityNotFound)
	}

	c.Overwrites = slices.DeleteFunc(c.Overwrites, func(ow Overwrite) bool { return ow.TargetID == targetID })
	st.record("channel_overwrite_delete", channelID)

	return nil
}

func (m *Memory) RecentAuditRecord(_ context.Context, workspaceID, eventType, targetID string) (*AuditRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	st, err := m.lookup(workspaceID)
	if err != nil {
		return nil, err
	}

	for i := len(st.audit) - 1; i >= 0; i-- {
		rec := st.audit[i]
		if rec.EventType == eventType && (targetID == "" || rec.TargetID == targetID) {
			return &rec, nil
		}
	}

	return nil, nil
}

func (st *memoryState) channel(id string) *Channel {
	for _, c := range st.channels {
		if c.ID == id {
			return c
		}
	}

	return nil
}

func (st *memoryState) role(id string) *Role {
	for _, r := range st.roles {
		if r.ID == id {
			return r
		}
	}

	return nil
}

func (st *memoryState) member(id string) *Member {
	for _, mem := range st.members {
		if mem.ID == id {
			return mem
		}
	}

	return nil
}

func (st *memoryState) record(eventType, targetID string) {
	st.audit = append(st.audit, AuditRecord{
		ID:        strconv.Itoa(len(st.audit) + 1),
		EventType: eventType,
		TargetID:  targetID,
		CreatedAt: time.Now().UTC(),
	})
}

func cloneChannel(c *Channel) *Channel {
	cp := *c
	cp.Overwrites = slices.Clone(c.Overwrites)

	return &cp
}

func cloneMember(mem *Member) *Member {
	cp := *mem
	cp.RoleIDs = slices.Clone(mem.RoleIDs)

	return &cp
}

var _ Client = (*Memory)(nil)
