package metadata

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseForeignKey(t *testing.T) {
	fk := ParseForeignKey("author_id")
	assert.Equal(t, ForeignKey{{Column: "author_id"}}, fk)

	fk = ParseForeignKey(" zone , position ")
	assert.Equal(t, []string{"zone", "position"}, fk.Columns())

	fk = ParseForeignKey("owner_zone:zone, owner_pos:position")
	assert.Equal(t, ForeignKey{
		{Column: "owner_zone", References: "zone"},
		{Column: "owner_pos", References: "position"},
	}, fk)
	assert.Equal(t, "owner_zone:zone, owner_pos:position", fk.String())

	assert.Empty(t, ParseForeignKey(" , "))
}

func TestParseJunction(t *testing.T) {
	table, cols, ok := ParseJunction("post_tag(post_id, tag_id)")
	require.True(t, ok)
	assert.Equal(t, "post_tag", table)
	assert.Equal(t, []string{"post_id", "tag_id"}, cols.Columns())

	_, _, ok = ParseJunction("post_id")
	assert.False(t, ok)
	_, _, ok = ParseJunction("(a, b)")
	assert.False(t, ok)
}

func TestForeignKey_UnmarshalJSON(t *testing.T) {
	var rel Relation
	err := json.Unmarshal([]byte(`{"name":"items","kind":"has_many","foreign_key":["a", {"column":"b","references":"y"}]}`), &rel)
	require.NoError(t, err)
	assert.Equal(t, ForeignKey{{Column: "a"}, {Column: "b", References: "y"}}, rel.ForeignKey)

	err = json.Unmarshal([]byte(`{"foreign_key":"a:x, b"}`), &rel)
	require.NoError(t, err)
	assert.Equal(t, ForeignKey{{Column: "a", References: "x"}, {Column: "b"}}, rel.ForeignKey)

	b, err := json.Marshal(rel.ForeignKey)
	require.NoError(t, err)
	assert.JSONEq(t, `"a:x, b"`, string(b))
}

func TestRelationKind(t *testing.T) {
	assert.Equal(t, HasOne, ParseRelationKind("has_one"))
	assert.Equal(t, BelongsTo, ParseRelationKind("BELONGS_TO"))
	assert.Equal(t, HasMany, ParseRelationKind("one_to_many"))
	assert.Equal(t, ManyToMany, ParseRelationKind("many_many"))
	assert.False(t, ParseRelationKind("stat").Supported())
	assert.True(t, ManyToMany.Supported())
}

const schemaYAML = `
entities:
  - name: user
    table: users
    primary_key: {field: id, type: int, generated: true}
    fields:
      - {name: id, type: int}
      - {name: username, type: string}
      - {name: nickname, type: string, virtual: true}
  - name: post
    table: posts
    primary_key: {field: id, type: int, generated: true}
    fields:
      - {name: id, type: int}
      - {name: title, type: string}
      - {name: author_id, type: int, references: users.id}
  - name: tag
    table: tags
    primary_key: {field: id, type: int, generated: true}
    fields:
      - {name: id, type: int}
relations:
  - {name: posts, kind: has_many, source: user, target: post, foreign_key: author_id}
  - {name: author, kind: belongs_to, source: post, target: user}
  - name: tags
    kind: many_many
    source: post
    target: tag
    foreign_key: "post_tag(post_id, tag_id)"
  - name: slots
    kind: has_many
    source: user
    target: post
    foreign_key:
      author_id: id
`

func TestParseSchema_AndRegistry(t *testing.T) {
	s, err := ParseSchema([]byte(schemaYAML))
	require.NoError(t, err)
	require.Len(t, s.Entities, 3)
	require.Len(t, s.Relations, 4)

	reg := NewRegistry()
	s.Apply(reg)

	assert.Equal(t, "posts", reg.GetEntity("post").Table)
	assert.Equal(t, "post", reg.EntityByTable("posts").Name)

	posts := reg.Relation("user", "posts")
	require.NotNil(t, posts)
	assert.Equal(t, HasMany, posts.Kind)
	assert.Equal(t, []string{"author_id"}, posts.ForeignKey.Columns())

	author := reg.Relation("post", "author")
	require.NotNil(t, author)
	assert.Equal(t, BelongsTo, author.Kind)
	assert.Equal(t, []string{"author_id"}, author.ForeignKey.Columns(), "default belongs-to key")
	assert.True(t, posts.IsCollection())
	assert.False(t, author.IsCollection())

	tags := reg.Relation("post", "tags")
	require.NotNil(t, tags)
	assert.Equal(t, "post_tag", tags.JoinTable)
	assert.Equal(t, []string{"post_id", "tag_id"}, tags.JoinForeignKey.Columns())
	assert.Empty(t, tags.ForeignKey)

	slots := reg.Relation("user", "slots")
	assert.Equal(t, ForeignKey{{Column: "author_id", References: "id"}}, slots.ForeignKey)

	assert.Nil(t, reg.Relation("user", "missing"))
	assert.Len(t, reg.RelationsFor("user"), 2)
}

func TestParseSchema_UnknownEntity(t *testing.T) {
	_, err := ParseSchema([]byte(`
entities:
  - {name: user, table: users}
relations:
  - {name: posts, kind: has_many, source: user, target: post}
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown target entity "post"`)
}

func TestParseSchema_Expressions(t *testing.T) {
	s, err := ParseSchema([]byte(`
entities:
  - name: user
    fields:
      - {name: first, type: string}
      - {name: last, type: string}
      - {name: full, virtual: true, expression: 'first + " " + last'}
`))
	require.NoError(t, err)
	full := s.Entities[0].GetField("full")
	require.True(t, full.IsComputed())
	v, err := full.Evaluate(map[string]any{"first": "Ada", "last": "Lovelace"})
	require.NoError(t, err)
	assert.Equal(t, "Ada Lovelace", v)
	assert.False(t, s.Entities[0].GetField("first").IsComputed())

	_, err = ParseSchema([]byte(`
entities:
  - name: user
    fields: [{name: full, virtual: true, expression: "first +"}]
`))
	assert.ErrorContains(t, err, "compile expression")

	_, err = ParseSchema([]byte(`
entities:
  - name: user
    fields: [{name: full, type: string, expression: "1"}]
`))
	assert.ErrorContains(t, err, "only virtual fields")
}

func TestRegistry_AttributeTable(t *testing.T) {
	s, err := ParseSchema([]byte(schemaYAML))
	require.NoError(t, err)
	reg := NewRegistry()
	s.Apply(reg)

	a, ok := reg.Attribute("user", "username")
	require.True(t, ok)
	assert.Equal(t, AttrColumn, a.Kind)

	a, ok = reg.Attribute("user", "nickname")
	require.True(t, ok)
	assert.Equal(t, AttrVirtual, a.Kind)

	a, ok = reg.Attribute("user", "posts")
	require.True(t, ok)
	assert.Equal(t, AttrRelation, a.Kind)
	assert.Equal(t, "posts", a.Relation.Name)

	_, ok = reg.Attribute("user", "nope")
	assert.False(t, ok)
}

func TestDefaults_ManyToMany(t *testing.T) {
	user := &Entity{Name: "user", Table: "users", PrimaryKey: PrimaryKey{Field: "id"}}
	group := &Entity{Name: "groups", Table: "groups", PrimaryKey: PrimaryKey{Fields: []string{"org", "code"}}}
	rel := &Relation{Name: "groups", Kind: ManyToMany, Source: "user", Target: "groups"}

	reg := NewRegistry()
	reg.Load([]*Entity{user, group}, []*Relation{rel})

	assert.Equal(t, "users_groups", rel.JoinTable)
	assert.Equal(t, []string{"user_id", "group_org", "group_code"}, rel.JoinForeignKey.Columns())
}

func TestDefaults_HasManyCompositeOwner(t *testing.T) {
	shelf := &Entity{Name: "BookShelf", Table: "shelves", PrimaryKey: PrimaryKey{Fields: []string{"room", "number"}}}
	book := &Entity{Name: "book", Table: "books", PrimaryKey: PrimaryKey{Field: "id"}}
	rel := &Relation{Name: "books", Kind: HasMany, Source: "BookShelf", Target: "book"}

	NewRegistry().Load([]*Entity{shelf, book}, []*Relation{rel})
	assert.Equal(t, []string{"book_shelf_room", "book_shelf_number"}, rel.ForeignKey.Columns())
}

func TestField_Reference(t *testing.T) {
	table, col, ok := Field{References: "public.users.id"}.Reference()
	require.True(t, ok)
	assert.Equal(t, "public.users", table)
	assert.Equal(t, "id", col)

	_, _, ok = Field{References: "users"}.Reference()
	assert.False(t, ok)
}
