package metadata

import (
	"sort"
	"sync"
)

type Registry struct {
	mu                sync.RWMutex
	entities          map[string]*Entity
	entitiesByTable   map[string]*Entity
	relationsBySource map[string][]*Relation          // keyed by source entity name
	relations         map[string]map[string]*Relation // source entity -> relation name
	attributes        map[string]AttributeTable       // source entity -> dispatch table
}

func NewRegistry() *Registry {
	return &Registry{
		entities:          make(map[string]*Entity),
		entitiesByTable:   make(map[string]*Entity),
		relationsBySource: make(map[string][]*Relation),
		relations:         make(map[string]map[string]*Relation),
		attributes:        make(map[string]AttributeTable),
	}
}

// GetEntity returns the entity with the given name, or nil.
func (r *Registry) GetEntity(name string) *Entity {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.entities[name]
}

// EntityByTable returns the entity mapped to the given table, or nil.
func (r *Registry) EntityByTable(table string) *Entity {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.entitiesByTable[table]
}

// AllEntities returns all registered entities sorted by name.
func (r *Registry) AllEntities() []*Entity {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entities := make([]*Entity, 0, len(r.entities))
	for _, e := range r.entities {
		entities = append(entities, e)
	}
	sort.Slice(entities, func(i, j int) bool { return entities[i].Name < entities[j].Name })
	return entities
}

// Relation returns the relation declared on entity under name, or nil.
func (r *Registry) Relation(entity, name string) *Relation {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.relations[entity][name]
}

// RelationsFor returns all relations whose source is the given entity.
func (r *Registry) RelationsFor(entity string) []*Relation {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.relationsBySource[entity]
}

// AllRelations returns all registered relations.
func (r *Registry) AllRelations() []*Relation {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var relations []*Relation
	for _, rels := range r.relationsBySource {
		relations = append(relations, rels...)
	}
	return relations
}

// Attribute resolves name against the entity's dispatch table.
func (r *Registry) Attribute(entity, name string) (Attribute, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.attributes[entity][name]
	return a, ok
}

// Load replaces all entities and relations in the registry and rebuilds
// the per-entity attribute tables. Relations are normalised and missing
// foreign keys filled in before they are published.
func (r *Registry) Load(entities []*Entity, relations []*Relation) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.entities = make(map[string]*Entity, len(entities))
	r.entitiesByTable = make(map[string]*Entity, len(entities))
	for _, e := range entities {
		r.entities[e.Name] = e
		r.entitiesByTable[e.Table] = e
		for i := range e.Fields {
			// Broken expressions are reported when evaluated.
			_ = e.Fields[i].Compile()
		}
	}

	r.relationsBySource = make(map[string][]*Relation)
	r.relations = make(map[string]map[string]*Relation)
	for _, rel := range relations {
		rel.normalize()
		rel.applyDefaults(r.entities[rel.Source], r.entities[rel.Target])
		r.relationsBySource[rel.Source] = append(r.relationsBySource[rel.Source], rel)
		if r.relations[rel.Source] == nil {
			r.relations[rel.Source] = make(map[string]*Relation)
		}
		r.relations[rel.Source][rel.Name] = rel
	}

	r.attributes = make(map[string]AttributeTable, len(entities))
	for _, e := range entities {
		r.attributes[e.Name] = buildAttributeTable(e, r.relationsBySource[e.Name])
	}
}
