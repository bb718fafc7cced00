package admin

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"rocket-relations/internal/config"
	"rocket-relations/internal/engine"
	"rocket-relations/internal/metadata"
	"rocket-relations/internal/store"
)

const schemaDoc = `
entities:
  - name: author
    table: authors
    primary_key: {field: id, type: int, generated: true}
    fields:
      - {name: id, type: int}
      - {name: name, type: string}
  - name: book
    table: books
    primary_key: {field: id, type: int, generated: true}
    fields:
      - {name: id, type: int}
      - {name: author_id, type: int, references: authors.id}
relations:
  - {name: books, kind: has_many, source: author, target: book}
`

func testAdmin(t *testing.T) (*fiber.App, *store.Store, *metadata.Registry) {
	t.Helper()
	ctx := context.Background()
	logger := zaptest.NewLogger(t)
	s, err := store.New(ctx, config.DatabaseConfig{Driver: "sqlite", Path: t.TempDir(), Name: "admin"})
	require.NoError(t, err)
	t.Cleanup(s.Close)
	require.NoError(t, s.Bootstrap(ctx))

	reg := metadata.NewRegistry()
	h := NewHandler(s, reg, store.NewMigrator(s, logger), store.NewInspector(s.DB, s.Dialect), logger)
	app := fiber.New(fiber.Config{ErrorHandler: engine.NewErrorHandler(logger)})
	RegisterAdminRoutes(app, h)
	return app, s, reg
}

func post(t *testing.T, app *fiber.App, path, body string) (int, map[string]any) {
	t.Helper()
	req, _ := http.NewRequest("POST", path, strings.NewReader(body))
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var out map[string]any
	require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	return resp.StatusCode, out
}

func TestApplySchema(t *testing.T) {
	app, s, reg := testAdmin(t)

	status, out := post(t, app, "/api/_admin/schema", schemaDoc)
	require.Equal(t, 200, status, out)
	assert.NotNil(t, reg.GetEntity("book"))
	assert.NotNil(t, reg.Relation("author", "books"))

	books, err := store.NewInspector(s.DB, s.Dialect).Table(context.Background(), "books")
	require.NoError(t, err)
	assert.Equal(t, store.ForeignKeyRef{Table: "authors", Column: "id"}, books.ForeignKeys["author_id"])

	// A reload rebuilds the registry from the stored definitions.
	status, _ = post(t, app, "/api/_admin/reload", "")
	require.Equal(t, 200, status)
	assert.Len(t, reg.AllEntities(), 2)

	req, _ := http.NewRequest("GET", "/api/_admin/entities/author", nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
}

func TestApplySchema_Rejects(t *testing.T) {
	app, _, reg := testAdmin(t)

	status, _ := post(t, app, "/api/_admin/schema", "entities: [")
	assert.Equal(t, 400, status)

	status, out := post(t, app, "/api/_admin/schema", `
entities:
  - name: thing
    fields: [{name: id, type: int}]
  - name: other
    primary_key: {field: id}
    fields: [{name: id, type: int}]
relations:
  - {name: link, kind: polymorphic, source: other, target: thing}
`)
	assert.Equal(t, 422, status)
	errBody, _ := out["error"].(map[string]any)
	assert.Len(t, errBody["details"], 2)
	assert.Empty(t, reg.AllEntities())
}
