package engine

import (
	"context"
	"fmt"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"rocket-relations/internal/metadata"
	"rocket-relations/internal/record"
	"rocket-relations/internal/relation"
)

type Handler struct {
	manager  *relation.Manager
	registry *metadata.Registry
	logger   *zap.Logger
}

func NewHandler(m *relation.Manager, logger *zap.Logger) *Handler {
	return &Handler{manager: m, registry: m.Repo().Registry(), logger: logger}
}

// Create handles POST /api/:entity. Fields and belongs-to relations are
// written before the insert, every other relation after it.
func (h *Handler) Create(c *fiber.Ctx) error {
	entity, err := h.resolveEntity(c)
	if err != nil {
		return err
	}
	body, err := decodeObject(c)
	if err != nil {
		return err
	}
	before, after := h.splitValues(entity, body)

	var rec *record.Record
	var ok bool
	err = h.manager.Tx(c.Context(), func(tx *relation.Manager) error {
		rec = tx.Repo().NewRecord(entity)
		if _, err := tx.SetAttributes(c.Context(), rec, before, relation.ModeSet); err != nil {
			return err
		}
		saved, err := rec.Save(c.Context())
		if err != nil {
			return err
		}
		if !saved {
			return fmt.Errorf("insert %s: no row written", entity.Name)
		}
		ok, err = tx.SetAttributes(c.Context(), rec, after, relation.ModeSet)
		return err
	})
	if err != nil {
		return err
	}

	h.logger.Info("record created",
		zap.String("entity", entity.Name),
		zap.Stringer("key", rec.PrimaryKey()),
		zap.String("subject", subject(c)),
	)
	return c.Status(201).JSON(fiber.Map{"data": rec, "meta": fiber.Map{"ok": ok}})
}

// Get handles GET /api/:entity/:id. ?fields=a,b,rel selects attributes,
// loading the named relations.
func (h *Handler) Get(c *fiber.Ctx) error {
	entity, err := h.resolveEntity(c)
	if err != nil {
		return err
	}
	rec, err := h.find(c.Context(), h.manager, entity, c.Params("id"))
	if err != nil {
		return err
	}

	fields := splitAndTrim(c.Query("fields"))
	if len(fields) == 0 {
		return c.JSON(fiber.Map{"data": rec})
	}
	attrs, err := h.manager.GetAttributes(c.Context(), rec, fields)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": attrs})
}

// Patch handles PATCH /api/:entity/:id?mode=set|add.
func (h *Handler) Patch(c *fiber.Ctx) error {
	entity, err := h.resolveEntity(c)
	if err != nil {
		return err
	}
	mode, err := relation.ParseMode(c.Query("mode"))
	if err != nil {
		return NewAppError("INVALID_MODE", 400, err.Error())
	}
	body, err := decodeObject(c)
	if err != nil {
		return err
	}

	var rec *record.Record
	var ok bool
	err = h.manager.Tx(c.Context(), func(tx *relation.Manager) error {
		rec, err = h.find(c.Context(), tx, entity, c.Params("id"))
		if err != nil {
			return err
		}
		if ok, err = tx.SetAttributes(c.Context(), rec, body, mode); err != nil {
			return err
		}
		updated, err := rec.Update(c.Context())
		ok = ok && updated
		return err
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": rec, "meta": fiber.Map{"ok": ok}})
}

// Delete handles DELETE /api/:entity/:id
func (h *Handler) Delete(c *fiber.Ctx) error {
	entity, err := h.resolveEntity(c)
	if err != nil {
		return err
	}
	id := c.Params("id")
	rec, err := h.find(c.Context(), h.manager, entity, id)
	if err != nil {
		return err
	}
	deleted, err := rec.Delete(c.Context())
	if err != nil {
		return err
	}
	if !deleted {
		return NotFoundError(entity.Name, id)
	}

	h.logger.Info("record deleted",
		zap.String("entity", entity.Name),
		zap.String("id", id),
		zap.String("subject", subject(c)),
	)
	return c.JSON(fiber.Map{"data": fiber.Map{"id": id}})
}

// GetRelation handles GET /api/:entity/:id/rel/:relation
func (h *Handler) GetRelation(c *fiber.Ctx) error {
	rh, err := h.handle(c.Context(), h.manager, c)
	if err != nil {
		return err
	}
	switch rh := rh.(type) {
	case relation.SingleHandle:
		rec, err := rh.Get(c.Context())
		if err != nil {
			return err
		}
		return c.JSON(fiber.Map{"data": rec})
	case relation.CollectionHandle:
		recs, err := rh.GetAll(c.Context())
		if err != nil {
			return err
		}
		return c.JSON(fiber.Map{"data": recs})
	}
	return fmt.Errorf("relation %s: unexpected handle %T", rh.Relation().Name, rh)
}

// GetRelated handles GET /api/:entity/:id/rel/:relation/:key
func (h *Handler) GetRelated(c *fiber.Ctx) error {
	rh, err := h.handle(c.Context(), h.manager, c)
	if err != nil {
		return err
	}
	if !rh.Relation().IsCollection() {
		return NewAppError("NOT_A_COLLECTION", 400, fmt.Sprintf("relation %s holds a single record", rh.Relation().Name))
	}
	coll := rh.(relation.CollectionHandle)
	target := h.registry.GetEntity(rh.Relation().Target)
	key, err := parseKey(target, c.Params("key"))
	if err != nil {
		return err
	}
	rec, err := coll.GetByKey(c.Context(), key)
	if err != nil {
		return err
	}
	if rec == nil {
		return NotFoundError(target.Name, c.Params("key"))
	}
	return c.JSON(fiber.Map{"data": rec})
}

// SetRelation handles PUT /api/:entity/:id/rel/:relation. The body is a key,
// a list of keys or null.
func (h *Handler) SetRelation(c *fiber.Ctx) error {
	return h.writeRelation(c, relation.ModeSet)
}

// AddRelation handles POST /api/:entity/:id/rel/:relation for collections.
func (h *Handler) AddRelation(c *fiber.Ctx) error {
	return h.writeRelation(c, relation.ModeAdd)
}

func (h *Handler) writeRelation(c *fiber.Ctx, mode relation.Mode) error {
	value, err := decodeJSON(c.Body())
	if err != nil {
		return InvalidPayloadError("Invalid JSON body")
	}

	var rh relation.Handle
	var ok bool
	err = h.manager.Tx(c.Context(), func(tx *relation.Manager) error {
		rh, err = h.handle(c.Context(), tx, c)
		if err != nil {
			return err
		}
		if mode == relation.ModeAdd && !rh.Relation().IsCollection() {
			return NewAppError("NOT_A_COLLECTION", 400, fmt.Sprintf("relation %s holds a single record", rh.Relation().Name))
		}
		ok, err = tx.SetRelated(c.Context(), rh.Owner(), rh.Relation().Name, value, mode)
		return err
	})
	if err != nil {
		return err
	}

	v, _ := rh.Owner().Cached(rh.Relation().Name)
	h.logger.Debug("relation written",
		zap.String("entity", rh.Owner().Entity().Name),
		zap.Stringer("key", rh.Owner().PrimaryKey()),
		zap.String("relation", rh.Relation().Name),
		zap.String("mode", string(mode)),
		zap.Bool("ok", ok),
	)
	return c.JSON(fiber.Map{"data": v, "meta": fiber.Map{"ok": ok}})
}

func (h *Handler) handle(ctx context.Context, m *relation.Manager, c *fiber.Ctx) (relation.Handle, error) {
	entity, err := h.resolveEntity(c)
	if err != nil {
		return nil, err
	}
	owner, err := h.find(ctx, m, entity, c.Params("id"))
	if err != nil {
		return nil, err
	}
	return m.HandleFor(ctx, owner, c.Params("relation"))
}

func (h *Handler) find(ctx context.Context, m *relation.Manager, entity *metadata.Entity, id string) (*record.Record, error) {
	key, err := parseKey(entity, id)
	if err != nil {
		return nil, err
	}
	rec, err := m.Repo().FindByKey(ctx, entity, key, nil)
	if err != nil {
		return nil, fmt.Errorf("get %s/%s: %w", entity.Name, id, err)
	}
	if rec == nil {
		return nil, NotFoundError(entity.Name, id)
	}
	return rec, nil
}

func (h *Handler) resolveEntity(c *fiber.Ctx) (*metadata.Entity, error) {
	name := c.Params("entity")
	entity := h.registry.GetEntity(name)
	if entity == nil {
		return nil, UnknownEntityError(name)
	}
	return entity, nil
}

// splitValues separates what must be set before a new record is inserted
// (fields, belongs-to relations, unknown names) from relations that need
// the owner's key.
func (h *Handler) splitValues(entity *metadata.Entity, body map[string]any) (before, after map[string]any) {
	before = make(map[string]any)
	after = make(map[string]any)
	for name, v := range body {
		attr, ok := h.registry.Attribute(entity.Name, name)
		if ok && attr.Kind == metadata.AttrRelation && attr.Relation.Kind != metadata.BelongsTo {
			after[name] = v
			continue
		}
		before[name] = v
	}
	return before, after
}

func subject(c *fiber.Ctx) string {
	s, _ := c.Locals("subject").(string)
	return s
}
