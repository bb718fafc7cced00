package admin

import (
	"context"
	"fmt"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"rocket-relations/internal/engine"
	"rocket-relations/internal/metadata"
	"rocket-relations/internal/store"
)

type Handler struct {
	store     *store.Store
	registry  *metadata.Registry
	migrator  *store.Migrator
	inspector *store.Inspector
	logger    *zap.Logger
}

func NewHandler(s *store.Store, reg *metadata.Registry, mig *store.Migrator, in *store.Inspector, logger *zap.Logger) *Handler {
	return &Handler{store: s, registry: reg, migrator: mig, inspector: in, logger: logger}
}

func RegisterAdminRoutes(app *fiber.App, h *Handler, middleware ...fiber.Handler) {
	admin := app.Group("/api/_admin", middleware...)

	admin.Get("/entities", h.ListEntities)
	admin.Get("/entities/:name", h.GetEntity)
	admin.Get("/relations", h.ListRelations)
	admin.Post("/schema", h.ApplySchema)
	admin.Post("/reload", h.Reload)
}

// Sync reloads the registry from the system tables, migrates the tables it
// declares and drops cached table descriptions.
func (h *Handler) Sync(ctx context.Context) error {
	if err := metadata.LoadAll(ctx, h.store.DB, h.registry, h.logger); err != nil {
		return fmt.Errorf("reload registry: %w", err)
	}
	if err := h.migrator.MigrateAll(ctx, h.registry); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	h.inspector.Invalidate()
	return nil
}

// --- Metadata Endpoints ---

func (h *Handler) ListEntities(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"data": h.registry.AllEntities()})
}

func (h *Handler) GetEntity(c *fiber.Ctx) error {
	name := c.Params("name")
	entity := h.registry.GetEntity(name)
	if entity == nil {
		return engine.UnknownEntityError(name)
	}
	return c.JSON(fiber.Map{"data": fiber.Map{
		"entity":    entity,
		"relations": h.registry.RelationsFor(name),
	}})
}

func (h *Handler) ListRelations(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"data": h.registry.AllRelations()})
}

// ApplySchema handles POST /api/_admin/schema. The body is a YAML or JSON
// schema document; its definitions are stored, then everything is synced.
func (h *Handler) ApplySchema(c *fiber.Ctx) error {
	schema, err := metadata.ParseSchema(c.Body())
	if err != nil {
		return engine.InvalidPayloadError(err.Error())
	}
	if details := validateSchema(schema); len(details) > 0 {
		return &engine.AppError{Code: "VALIDATION_FAILED", Status: 422, Message: "Validation failed", Details: details}
	}

	if err := h.store.SaveDefinitions(c.Context(), schema.Entities, schema.Relations); err != nil {
		return fmt.Errorf("save definitions: %w", err)
	}
	if err := h.Sync(c.Context()); err != nil {
		return err
	}

	h.logger.Info("schema applied",
		zap.Int("entities", len(schema.Entities)),
		zap.Int("relations", len(schema.Relations)),
	)
	return c.JSON(fiber.Map{"data": fiber.Map{
		"entities":  len(h.registry.AllEntities()),
		"relations": len(h.registry.AllRelations()),
	}})
}

// Reload handles POST /api/_admin/reload
func (h *Handler) Reload(c *fiber.Ctx) error {
	if err := h.Sync(c.Context()); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"reloaded": true}})
}

// --- Validation ---

func validateSchema(s *metadata.Schema) []engine.ErrorDetail {
	var details []engine.ErrorDetail
	for _, e := range s.Entities {
		if err := validateEntity(e); err != nil {
			details = append(details, engine.ErrorDetail{Field: e.Name, Message: err.Error()})
		}
	}
	for _, r := range s.Relations {
		if err := validateRelation(r); err != nil {
			details = append(details, engine.ErrorDetail{Field: r.Source + "." + r.Name, Message: err.Error()})
		}
	}
	return details
}

func validateEntity(e *metadata.Entity) error {
	if len(e.Fields) == 0 {
		return fmt.Errorf("entity must have at least one field")
	}
	if len(e.PrimaryKey.Columns()) == 0 {
		return fmt.Errorf("primary key is required")
	}
	if e.PrimaryKey.IsComposite() && e.PrimaryKey.Generated {
		return fmt.Errorf("composite primary keys cannot be generated")
	}
	for _, col := range e.PrimaryKey.Columns() {
		if f := e.GetField(col); f != nil && f.Virtual {
			return fmt.Errorf("primary key column %s cannot be virtual", col)
		}
	}
	return nil
}

func validateRelation(r *metadata.Relation) error {
	if r.Name == "" {
		return fmt.Errorf("relation name is required")
	}
	if !metadata.ParseRelationKind(string(r.Kind)).Supported() {
		return fmt.Errorf("invalid relation kind: %s", r.Kind)
	}
	return nil
}
