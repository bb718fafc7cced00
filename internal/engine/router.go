package engine

import "github.com/gofiber/fiber/v2"

func RegisterDynamicRoutes(app *fiber.App, h *Handler, middleware ...fiber.Handler) {
	api := app.Group("/api", middleware...)

	api.Post("/:entity", h.Create)
	api.Get("/:entity/:id", h.Get)
	api.Patch("/:entity/:id", h.Patch)
	api.Delete("/:entity/:id", h.Delete)

	api.Get("/:entity/:id/rel/:relation", h.GetRelation)
	api.Get("/:entity/:id/rel/:relation/:key", h.GetRelated)
	api.Put("/:entity/:id/rel/:relation", h.SetRelation)
	api.Post("/:entity/:id/rel/:relation", h.AddRelation)
}
