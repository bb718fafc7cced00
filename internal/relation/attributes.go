package relation

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"rocket-relations/internal/metadata"
	"rocket-relations/internal/record"
	"rocket-relations/internal/store"
)

// Mode selects how SetAttributes writes collection relations.
type Mode string

const (
	// ModeSet replaces the related set.
	ModeSet Mode = "set"
	// ModeAdd links the given records in addition to the existing ones.
	ModeAdd Mode = "add"
)

// ParseMode maps "" to ModeSet and rejects anything but set/add.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", ModeSet:
		return ModeSet, nil
	case ModeAdd:
		return ModeAdd, nil
	}
	return "", fmt.Errorf("unknown write mode %q", s)
}

// Manager builds relation handles and routes attribute reads and writes
// to fields or relations. It is the lazy relation loader of its Repo.
type Manager struct {
	reg      *metadata.Registry
	repo     *record.Repo
	schema   *store.Inspector
	resolver *Resolver
	logger   *zap.Logger
}

// NewManager creates a Manager and installs it as repo's relation loader.
func NewManager(repo *record.Repo, schema *store.Inspector, logger *zap.Logger) *Manager {
	m := &Manager{
		reg:      repo.Registry(),
		repo:     repo,
		schema:   schema,
		resolver: NewResolver(schema),
		logger:   logger,
	}
	repo.SetLoader(m)
	return m
}

func (m *Manager) Repo() *record.Repo { return m.repo }

// Tx runs fn with a Manager whose Repo and schema lookups are bound to one
// transaction.
func (m *Manager) Tx(ctx context.Context, fn func(tx *Manager) error) error {
	return m.repo.Tx(ctx, func(repo *record.Repo) error {
		return fn(NewManager(repo, m.schema.With(repo.Querier()), m.logger))
	})
}

// HandleFor returns the handle of the named relation of owner. The field
// correspondence is resolved on every call.
func (m *Manager) HandleFor(ctx context.Context, owner *record.Record, name string) (Handle, error) {
	entity := owner.Entity()
	rel := m.reg.Relation(entity.Name, name)
	if rel == nil {
		return nil, &UndeclaredRelationError{Entity: entity.Name, Relation: name}
	}
	if !rel.Kind.Supported() {
		return nil, &UnsupportedRelationError{Entity: entity.Name, Relation: name, Kind: rel.Kind}
	}
	related := m.reg.GetEntity(rel.Target)
	if related == nil {
		return nil, schemaErrorf(rel, "target entity %q is not defined", rel.Target)
	}
	b := base{m: m, owner: owner, rel: rel, related: related}

	if rel.Kind == metadata.ManyToMany {
		jm, err := m.resolver.ResolveJunction(ctx, entity, related, rel)
		if err != nil {
			return nil, err
		}
		return &ManyToMany{base: b, jm: jm}, nil
	}
	fm, err := m.resolver.Resolve(ctx, entity, related, rel)
	if err != nil {
		return nil, err
	}
	switch rel.Kind {
	case metadata.HasOne:
		return &HasOne{base: b, fm: fm}, nil
	case metadata.BelongsTo:
		return &BelongsTo{base: b, fm: fm}, nil
	default:
		return &HasMany{base: b, fm: fm}, nil
	}
}

// LoadRelated fills the owner's cache slot for name from storage.
func (m *Manager) LoadRelated(ctx context.Context, owner *record.Record, name string) error {
	h, err := m.HandleFor(ctx, owner, name)
	if err != nil {
		return err
	}
	switch h := h.(type) {
	case *HasOne:
		rec, err := h.query(ctx)
		if err != nil {
			return err
		}
		owner.SetRelated(name, rec)
	case *BelongsTo:
		rec, err := h.query(ctx)
		if err != nil {
			return err
		}
		owner.SetRelated(name, rec)
	case CollectionHandle:
		recs, err := h.GetAll(ctx)
		if err != nil {
			return err
		}
		owner.SetRelated(name, recs)
	}
	return nil
}

// SetAttributes writes values onto owner. Fields and virtual properties
// are assigned first, then relations, each group in name order. Has-one
// and collection relations are persisted; belongs-to relations only
// assign the owner's foreign-key fields. The result is false when a
// persisting write reported failure.
func (m *Manager) SetAttributes(ctx context.Context, owner *record.Record, values map[string]any, mode Mode) (bool, error) {
	entity := owner.Entity()
	var plain, relations []string
	for name := range values {
		attr, ok := m.reg.Attribute(entity.Name, name)
		if !ok && !entity.IsPrimaryKey(name) {
			return false, &UnknownAttributeError{Entity: entity.Name, Attribute: name}
		}
		if ok && attr.Kind == metadata.AttrRelation {
			relations = append(relations, name)
		} else {
			plain = append(plain, name)
		}
	}
	sort.Strings(plain)
	sort.Strings(relations)

	for _, name := range plain {
		if err := owner.Set(name, values[name]); err != nil {
			return false, err
		}
	}
	success := true
	for _, name := range relations {
		ok, err := m.setRelation(ctx, owner, name, values[name], mode, true)
		if err != nil {
			return false, fmt.Errorf("set %s.%s: %w", entity.Name, name, err)
		}
		success = success && ok
	}
	return success, nil
}

// SetRelated writes one relation of owner from a record, a key or a list of
// them. Unlike SetAttributes it persists belongs-to relations too.
func (m *Manager) SetRelated(ctx context.Context, owner *record.Record, name string, value any, mode Mode) (bool, error) {
	return m.setRelation(ctx, owner, name, value, mode, false)
}

func (m *Manager) setRelation(ctx context.Context, owner *record.Record, name string, value any, mode Mode, assignOnly bool) (bool, error) {
	h, err := m.HandleFor(ctx, owner, name)
	if err != nil {
		return false, err
	}
	switch h := h.(type) {
	case *HasOne:
		rec, err := h.optional(ctx, value)
		if err != nil {
			return false, err
		}
		return h.Set(ctx, rec)
	case *BelongsTo:
		rec, err := h.optional(ctx, value)
		if err != nil {
			return false, err
		}
		if !assignOnly {
			return h.Set(ctx, rec)
		}
		return true, h.Assign(ctx, rec)
	case CollectionHandle:
		items := sequence(value)
		if mode != ModeAdd {
			return h.Set(ctx, items)
		}
		b := baseOf(h)
		success := true
		for _, item := range items {
			rec, err := b.lookup(ctx, item)
			if err != nil {
				return false, err
			}
			ok, err := h.Add(ctx, rec, -1)
			if err != nil {
				return false, err
			}
			success = success && ok
		}
		return success, nil
	}
	return false, &UnsupportedRelationError{Entity: owner.Entity().Name, Relation: name}
}

// GetAttributes reads the named fields, virtual properties and relations
// of owner. Relations come from the owner's cache and are loaded when
// absent.
func (m *Manager) GetAttributes(ctx context.Context, owner *record.Record, names []string) (map[string]any, error) {
	entity := owner.Entity()
	out := make(map[string]any, len(names))
	for _, name := range names {
		attr, ok := m.reg.Attribute(entity.Name, name)
		if !ok {
			if entity.IsPrimaryKey(name) {
				out[name] = owner.Get(name)
				continue
			}
			return nil, &UnknownAttributeError{Entity: entity.Name, Attribute: name}
		}
		if attr.Kind != metadata.AttrRelation {
			v, err := owner.Value(name)
			if err != nil {
				return nil, err
			}
			out[name] = v
			continue
		}
		if _, loaded := owner.Cached(name); !loaded {
			if err := m.LoadRelated(ctx, owner, name); err != nil {
				return nil, err
			}
		}
		v, _ := owner.Cached(name)
		out[name] = v
	}
	return out, nil
}

// optional looks up value unless it is nil.
func (b *base) optional(ctx context.Context, value any) (*record.Record, error) {
	if value == nil {
		return nil, nil
	}
	return b.lookup(ctx, value)
}

func baseOf(h CollectionHandle) *base {
	switch h := h.(type) {
	case *HasMany:
		return &h.base
	case *ManyToMany:
		return &h.base
	}
	return nil
}

// sequence reads value as a list of items; anything but a slice is one
// item. record.Key is a single composite key, not a list.
func sequence(value any) []any {
	switch v := value.(type) {
	case nil:
		return []any{}
	case record.Key:
		return []any{v}
	case []any:
		return v
	case []*record.Record:
		out := make([]any, len(v))
		for i, rec := range v {
			out[i] = rec
		}
		return out
	case []map[string]any:
		out := make([]any, len(v))
		for i, m := range v {
			out[i] = m
		}
		return out
	}
	return []any{value}
}
