package executor

import (
	"sync"

	"github.com/dukex/warden/pkg/resolver"
	"github.com/dukex/warden/pkg/workspace"
)

// Simulation remembers what earlier steps of a dry run would have changed, so later
// steps resolve references the way they would in a real run.
type Simulation struct {
	mu sync.Mutex

	// created maps normalized names of would-be resources to their display names.
	created map[workspace.Kind]map[string]string

	// The remaining maps are keyed by the id of a live entity.
	renamed map[string]renamedEntity
	parents map[string]string
	deleted map[string]bool
}

type renamedEntity struct {
	entity workspace.Entity
	name   string
}

// NewSimulation returns an empty simulation for one dry run.
func NewSimulation() *Simulation {
	return &Simulation{
		created: make(map[workspace.Kind]map[string]string),
		renamed: make(map[string]renamedEntity),
		parents: make(map[string]string),
		deleted: make(map[string]bool),
	}
}

func (s *Simulation) add(kind workspace.Kind, name string) {
	if s == nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.addLocked(kind, name)
}

func (s *Simulation) addLocked(kind workspace.Kind, name string) {
	if s.created[kind] == nil {
		s.created[kind] = make(map[string]string)
	}

	s.created[kind][resolver.Normalize(name)] = name
}

// set records an attribute change. Only names and parents affect later resolution.
func (s *Simulation) set(entity workspace.Entity, attr workspace.Attribute, value any) {
	if s == nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id := entity.EntityID()

	switch attr {
	case workspace.AttrName:
		name, _ := value.(string)

		if id == "" {
			delete(s.created[entity.EntityKind()], resolver.Normalize(entity.EntityName()))
			s.addLocked(entity.EntityKind(), name)

			return
		}

		live := entity
		if prev, ok := s.renamed[id]; ok {
			live = prev.entity
		}

		s.renamed[id] = renamedEntity{entity: live, name: name}
	case workspace.AttrParent:
		if id != "" {
			s.parents[id], _ = value.(string)
		}
	default:
	}
}

// remove records a deletion.
func (s *Simulation) remove(entity workspace.Entity) {
	if s == nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if entity.EntityID() == "" {
		delete(s.created[entity.EntityKind()], resolver.Normalize(entity.EntityName()))

		return
	}

	s.deleted[entity.EntityID()] = true
}

// renamedTo returns the live entity an earlier dry-run step renamed to reference.
func (s *Simulation) renamedTo(dryRun bool, kind workspace.Kind, reference string) workspace.Entity {
	if s == nil || !dryRun || !resolver.IsNameReference(reference) {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	needle := resolver.Normalize(reference)

	for id, r := range s.renamed {
		if s.deleted[id] || resolver.Normalize(r.name) != needle || !kindOf(kind, r.entity) {
			continue
		}

		return s.viewLocked(r.entity)
	}

	return nil
}

// overlay applies the simulated changes to a live entity. It returns nil when the
// entity was deleted, or when it was found by a name an earlier step renamed away.
func (s *Simulation) overlay(dryRun bool, entity workspace.Entity, reference string) workspace.Entity {
	if s == nil || !dryRun {
		return entity
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id := entity.EntityID()
	if s.deleted[id] {
		return nil
	}

	if r, ok := s.renamed[id]; ok && resolver.IsNameReference(reference) &&
		resolver.Normalize(r.name) != resolver.Normalize(reference) {
		return nil
	}

	return s.viewLocked(entity)
}

func (s *Simulation) viewLocked(entity workspace.Entity) workspace.Entity {
	id := entity.EntityID()
	r, renamed := s.renamed[id]
	parent, moved := s.parents[id]

	if !renamed && !moved {
		return entity
	}

	switch e := entity.(type) {
	case *workspace.Channel:
		cp := *e
		if renamed {
			cp.Name = r.name
		}

		if moved {
			cp.ParentID = parent
		}

		return &cp
	case *workspace.Role:
		cp := *e
		if renamed {
			cp.Name = r.name
		}

		return &cp
	}

	return entity
}

// lookup returns a placeholder entity for a resource created earlier in the same dry run.
func (s *Simulation) lookup(dryRun bool, kind workspace.Kind, reference string) workspace.Entity {
	if s == nil || !dryRun {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if kind == resolver.KindPermissionTarget {
		kind = workspace.KindRole
	}

	name, ok := s.created[kind][resolver.Normalize(reference)]
	if !ok {
		return nil
	}

	switch kind {
	case workspace.KindChannel:
		return &workspace.Channel{Name: name}
	case workspace.KindCategory:
		return &workspace.Channel{Name: name, IsCategory: true}
	case workspace.KindRole:
		return &workspace.Role{Name: name, Position: 1}
	}

	return nil
}

func kindOf(kind workspace.Kind, entity workspace.Entity) bool {
	if kind == resolver.KindPermissionTarget {
		return entity.EntityKind() == workspace.KindRole || entity.EntityKind() == workspace.KindMember
	}

	return entity.EntityKind() == kind
}
