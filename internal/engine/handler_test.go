package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"rocket-relations/internal/config"
	"rocket-relations/internal/metadata"
	"rocket-relations/internal/record"
	"rocket-relations/internal/relation"
	"rocket-relations/internal/store"
)

const testSchema = `
entities:
  - name: user
    table: users
    primary_key: {field: id, type: int, generated: true}
    fields:
      - {name: id, type: int}
      - {name: username, type: string, unique: true}
  - name: post
    table: posts
    primary_key: {field: id, type: int, generated: true}
    fields:
      - {name: id, type: int}
      - {name: title, type: string}
      - {name: author_id, type: int, references: users.id, on_delete: cascade}
  - name: tag
    table: tags
    primary_key: {field: code, type: string}
    fields:
      - {name: code, type: string}
  - name: seat
    table: seats
    primary_key: {fields: [row_no, seat_no]}
    fields:
      - {name: row_no, type: int}
      - {name: seat_no, type: int}
relations:
  - {name: posts, kind: has_many, source: user, target: post, foreign_key: author_id}
  - {name: author, kind: belongs_to, source: post, target: user, foreign_key: author_id}
  - {name: tags, kind: many_many, source: post, target: tag, foreign_key: "post_tag(post_id, tag_code)"}
`

func testApp(t *testing.T) (*fiber.App, *relation.Manager) {
	t.Helper()
	ctx := context.Background()
	logger := zaptest.NewLogger(t)

	s, err := store.New(ctx, config.DatabaseConfig{Driver: "sqlite", Path: t.TempDir(), Name: "engine"})
	require.NoError(t, err)
	t.Cleanup(s.Close)

	schema, err := metadata.ParseSchema([]byte(testSchema))
	require.NoError(t, err)
	reg := metadata.NewRegistry()
	schema.Apply(reg)
	require.NoError(t, store.NewMigrator(s, logger).MigrateAll(ctx, reg))

	m := relation.NewManager(record.NewRepo(s, reg, logger), store.NewInspector(s.DB, s.Dialect), logger)
	app := fiber.New(fiber.Config{ErrorHandler: NewErrorHandler(logger)})
	RegisterDynamicRoutes(app, NewHandler(m, logger))
	return app, m
}

type response struct {
	Data  json.RawMessage `json:"data"`
	Meta  map[string]any  `json:"meta"`
	Error *AppError       `json:"error"`
}

func call(t *testing.T, app *fiber.App, method, path string, body any) (int, response) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out response
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	return resp.StatusCode, out
}

func decode[T any](t *testing.T, raw json.RawMessage) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(raw, &v), string(raw))
	return v
}

func TestHandler_RecordLifecycle(t *testing.T) {
	app, _ := testApp(t)

	status, resp := call(t, app, "POST", "/api/user", map[string]any{"username": "ada"})
	require.Equal(t, 201, status, resp.Error)
	user := decode[map[string]any](t, resp.Data)
	assert.EqualValues(t, 1, user["id"])

	status, resp = call(t, app, "POST", "/api/post", map[string]any{"title": "first", "author": 1})
	require.Equal(t, 201, status, resp.Error)
	post := decode[map[string]any](t, resp.Data)
	assert.EqualValues(t, 1, post["author_id"], "belongs-to is assigned before insert")

	status, resp = call(t, app, "GET", "/api/user/1?fields=username,posts", nil)
	require.Equal(t, 200, status)
	attrs := decode[map[string]any](t, resp.Data)
	assert.Equal(t, "ada", attrs["username"])
	assert.Len(t, attrs["posts"], 1)

	status, resp = call(t, app, "PATCH", "/api/user/1", map[string]any{"username": "ada l."})
	require.Equal(t, 200, status, resp.Error)
	assert.Equal(t, true, resp.Meta["ok"])
	status, resp = call(t, app, "GET", "/api/user/1", nil)
	require.Equal(t, 200, status)
	assert.Equal(t, "ada l.", decode[map[string]any](t, resp.Data)["username"])

	status, _ = call(t, app, "DELETE", "/api/user/1", nil)
	assert.Equal(t, 200, status)
	status, resp = call(t, app, "GET", "/api/post/1", nil)
	assert.Equal(t, 404, status)
	assert.Equal(t, "NOT_FOUND", resp.Error.Code)
}

func TestHandler_CreateWithCollections(t *testing.T) {
	app, _ := testApp(t)
	call(t, app, "POST", "/api/user", map[string]any{"username": "ada"})
	call(t, app, "POST", "/api/tag", map[string]any{"code": "go"})
	call(t, app, "POST", "/api/tag", map[string]any{"code": "sql"})

	status, resp := call(t, app, "POST", "/api/post", map[string]any{
		"title":  "tagged",
		"author": 1,
		"tags":   []any{"go", "sql"},
	})
	require.Equal(t, 201, status, resp.Error)

	status, resp = call(t, app, "GET", "/api/post/1/rel/tags", nil)
	require.Equal(t, 200, status)
	assert.Len(t, decode[[]map[string]any](t, resp.Data), 2)

	status, resp = call(t, app, "GET", "/api/post/1/rel/tags/sql", nil)
	require.Equal(t, 200, status)
	assert.Equal(t, "sql", decode[map[string]any](t, resp.Data)["code"])
}

func TestHandler_RelationEndpoints(t *testing.T) {
	app, _ := testApp(t)
	call(t, app, "POST", "/api/user", map[string]any{"username": "ada"})
	call(t, app, "POST", "/api/user", map[string]any{"username": "bob"})
	for _, title := range []string{"a", "b", "c"} {
		status, resp := call(t, app, "POST", "/api/post", map[string]any{"title": title, "author": 1})
		require.Equal(t, 201, status, resp.Error)
	}

	status, resp := call(t, app, "PUT", "/api/user/1/rel/posts", []any{2, 3})
	require.Equal(t, 200, status, resp.Error)
	assert.Equal(t, true, resp.Meta["ok"])
	assert.Len(t, decode[[]map[string]any](t, resp.Data), 2)

	status, _ = call(t, app, "GET", "/api/post/1", nil)
	assert.Equal(t, 404, status, "dropped post is deleted")

	status, resp = call(t, app, "POST", "/api/user/2/rel/posts", 3)
	require.Equal(t, 200, status, resp.Error)
	status, resp = call(t, app, "GET", "/api/user/2/rel/posts/3", nil)
	require.Equal(t, 200, status)
	assert.EqualValues(t, 2, decode[map[string]any](t, resp.Data)["author_id"])

	status, resp = call(t, app, "GET", "/api/post/3/rel/author", nil)
	require.Equal(t, 200, status)
	assert.Equal(t, "bob", decode[map[string]any](t, resp.Data)["username"])

	status, resp = call(t, app, "PUT", "/api/post/3/rel/author", 1)
	require.Equal(t, 200, status, resp.Error)
	status, resp = call(t, app, "GET", "/api/post/3", nil)
	require.Equal(t, 200, status)
	assert.EqualValues(t, 1, decode[map[string]any](t, resp.Data)["author_id"], "belongs-to PUT persists the owner")

	status, resp = call(t, app, "POST", "/api/post/3/rel/author", 2)
	assert.Equal(t, 400, status)
	assert.Equal(t, "NOT_A_COLLECTION", resp.Error.Code)
}

func TestHandler_Errors(t *testing.T) {
	app, _ := testApp(t)
	call(t, app, "POST", "/api/user", map[string]any{"username": "ada"})

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		status int
		code   string
	}{
		{"unknown entity", "GET", "/api/ghost/1", nil, 404, "UNKNOWN_ENTITY"},
		{"bad id", "GET", "/api/user/abc", nil, 400, "INVALID_PAYLOAD"},
		{"unknown relation", "GET", "/api/user/1/rel/friends", nil, 404, "UNKNOWN_RELATION"},
		{"unknown field", "PATCH", "/api/user/1", map[string]any{"shoe_size": 44}, 400, "UNKNOWN_FIELD"},
		{"bad mode", "PATCH", "/api/user/1?mode=merge", map[string]any{}, 400, "INVALID_MODE"},
		{"missing related key", "PUT", "/api/user/1/rel/posts", []any{99}, 409, "RELATION_CONSTRAINT"},
		{"duplicate value", "POST", "/api/user", map[string]any{"username": "ada"}, 409, "CONFLICT"},
		{"not an object", "POST", "/api/user", []any{1}, 400, "INVALID_PAYLOAD"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			status, resp := call(t, app, tc.method, tc.path, tc.body)
			assert.Equal(t, tc.status, status)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tc.code, resp.Error.Code)
		})
	}
}

func TestParseKey(t *testing.T) {
	seat := &metadata.Entity{
		Name:       "seat",
		PrimaryKey: metadata.PrimaryKey{Fields: []string{"row_no", "seat_no"}},
		Fields:     []metadata.Field{{Name: "row_no", Type: "int"}, {Name: "seat_no", Type: "int"}},
	}
	key, err := parseKey(seat, "3, 7")
	require.NoError(t, err)
	assert.Equal(t, record.Key{int64(3), int64(7)}, key)

	_, err = parseKey(seat, "3")
	assert.Error(t, err)

	tag := &metadata.Entity{Name: "tag", PrimaryKey: metadata.PrimaryKey{Field: "code", Type: "string"}}
	key, err = parseKey(tag, "go")
	require.NoError(t, err)
	assert.Equal(t, record.Key{"go"}, key)
}

func TestToAppError(t *testing.T) {
	assert.Nil(t, ToAppError(assert.AnError))
	assert.Equal(t, "SCHEMA_ERROR", ToAppError(&relation.SchemaError{Reason: "x"}).Code)
	assert.Equal(t, "UNSUPPORTED_RELATION", ToAppError(&relation.UnsupportedRelationError{}).Code)
	assert.Equal(t, 404, ToAppError(store.ErrNotFound).Status)
}
