package relation

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rocket-relations/internal/metadata"
	"rocket-relations/internal/store"
)

type fakeSchema map[string]*store.TableSchema

func (f fakeSchema) Table(_ context.Context, name string) (*store.TableSchema, error) {
	t, ok := f[name]
	if !ok {
		return nil, fmt.Errorf("describe %s: %w", name, store.ErrTableNotFound)
	}
	return t, nil
}

func table(name string, pk []string, cols ...string) *store.TableSchema {
	return &store.TableSchema{Name: name, Columns: cols, PrimaryKey: pk, ForeignKeys: map[string]store.ForeignKeyRef{}}
}

func entity(name, tbl string, pk ...string) *metadata.Entity {
	e := &metadata.Entity{Name: name, Table: tbl}
	if len(pk) == 1 {
		e.PrimaryKey.Field = pk[0]
	} else {
		e.PrimaryKey.Fields = pk
	}
	return e
}

func TestResolve_TwoTables(t *testing.T) {
	ctx := context.Background()

	users := table("users", []string{"id"}, "id", "username")
	posts := table("posts", []string{"id"}, "id", "author_id", "editor_login")
	posts.ForeignKeys["author_id"] = store.ForeignKeyRef{Table: "users", Column: "id"}
	orgs := table("orgs", []string{"region", "code"}, "region", "code", "name")
	units := table("units", []string{"id"}, "id", "org_region", "org_code")
	r := NewResolver(fakeSchema{"users": users, "posts": posts, "orgs": orgs, "units": units})

	user := entity("user", "users", "id")
	post := entity("post", "posts", "id")
	org := entity("org", "orgs", "region", "code")
	unit := entity("unit", "units", "id")

	tests := []struct {
		name           string
		owner, related *metadata.Entity
		rel            *metadata.Relation
		want           FieldMap
	}{
		{
			name:  "has many through constraint",
			owner: user, related: post,
			rel:  &metadata.Relation{Name: "posts", Kind: metadata.HasMany, ForeignKey: metadata.ParseForeignKey("author_id")},
			want: FieldMap{{From: "author_id", To: "id"}},
		},
		{
			name:  "explicit referenced column",
			owner: user, related: post,
			rel:  &metadata.Relation{Name: "edited", Kind: metadata.HasMany, ForeignKey: metadata.ParseForeignKey("editor_login:username")},
			want: FieldMap{{From: "editor_login", To: "username"}},
		},
		{
			name:  "belongs to maps owner to related",
			owner: post, related: user,
			rel:  &metadata.Relation{Name: "author", Kind: metadata.BelongsTo, ForeignKey: metadata.ParseForeignKey("author_id")},
			want: FieldMap{{From: "author_id", To: "id"}},
		},
		{
			name:  "composite key by position",
			owner: org, related: unit,
			rel:  &metadata.Relation{Name: "units", Kind: metadata.HasMany, ForeignKey: metadata.ParseForeignKey("org_region, org_code")},
			want: FieldMap{{From: "org_region", To: "region"}, {From: "org_code", To: "code"}},
		},
		{
			name:  "single key broadcast",
			owner: user, related: post,
			rel:  &metadata.Relation{Name: "pair", Kind: metadata.HasOne, ForeignKey: metadata.ParseForeignKey("author_id, editor_login")},
			want: FieldMap{{From: "author_id", To: "id"}, {From: "editor_login", To: "id"}},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := r.Resolve(ctx, tc.owner, tc.related, tc.rel)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestResolve_SchemaErrors(t *testing.T) {
	ctx := context.Background()
	users := table("users", []string{"id"}, "id")
	posts := table("posts", []string{"id"}, "id", "author_id")
	orgs := table("orgs", []string{"region", "code"}, "region", "code")
	units := table("units", []string{"id"}, "id", "a", "b", "c")
	r := NewResolver(fakeSchema{"users": users, "posts": posts, "orgs": orgs, "units": units})

	user := entity("user", "users", "id")
	post := entity("post", "posts", "id")
	org := entity("org", "orgs", "region", "code")
	unit := entity("unit", "units", "id")

	for name, tc := range map[string]struct {
		owner, related *metadata.Entity
		fk             string
	}{
		"missing fk column":         {user, post, "writer_id"},
		"missing referenced column": {user, post, "author_id:login"},
		"beyond composite key":      {org, unit, "a, b, c"},
		"duplicate column":          {user, post, "author_id, author_id"},
		"missing table":             {user, entity("ghost", "ghosts", "id"), "user_id"},
		"no columns":                {user, post, ""},
	} {
		t.Run(name, func(t *testing.T) {
			rel := &metadata.Relation{Name: "r", Source: tc.owner.Name, Kind: metadata.HasMany, ForeignKey: metadata.ParseForeignKey(tc.fk)}
			_, err := r.Resolve(ctx, tc.owner, tc.related, rel)
			require.Error(t, err)
			assert.True(t, IsSchemaError(err), err.Error())
			assert.ErrorIs(t, err, ErrSchema)
		})
	}
}

func TestResolveJunction(t *testing.T) {
	ctx := context.Background()
	posts := table("posts", []string{"id"}, "id")
	tags := table("tags", []string{"id"}, "id")
	users := table("users", []string{"id"}, "id")

	constrained := table("post_tag", []string{"post_id", "tag_id"}, "tag_id", "post_id")
	constrained.ForeignKeys["tag_id"] = store.ForeignKeyRef{Table: `"public"."Tags"`, Column: "id"}
	constrained.ForeignKeys["post_id"] = store.ForeignKeyRef{Table: "public.posts", Column: "id"}

	bare := table("post_label", nil, "p", "l")

	friends := table("friends", []string{"user_id", "friend_id"}, "user_id", "friend_id")
	friends.ForeignKeys["user_id"] = store.ForeignKeyRef{Table: "users", Column: "id"}
	friends.ForeignKeys["friend_id"] = store.ForeignKeyRef{Table: "users", Column: "id"}

	onlyOwner := table("post_only", nil, "post_id")

	r := NewResolver(fakeSchema{
		"posts": posts, "tags": tags, "users": users,
		"post_tag": constrained, "post_label": bare, "friends": friends, "post_only": onlyOwner,
	})
	post := entity("post", "posts", "id")
	tag := entity("tag", "tags", "id")
	user := entity("user", "users", "id")

	rel := func(table, cols string) *metadata.Relation {
		return &metadata.Relation{Name: "r", Source: "post", Kind: metadata.ManyToMany, JoinTable: table, JoinForeignKey: metadata.ParseForeignKey(cols)}
	}

	t.Run("constraints place columns regardless of order", func(t *testing.T) {
		jm, err := r.ResolveJunction(ctx, post, tag, rel("post_tag", "tag_id, post_id"))
		require.NoError(t, err)
		assert.Equal(t, "post_tag", jm.Table)
		assert.Equal(t, FieldMap{{From: "id", To: "post_id"}}, jm.Owner)
		assert.Equal(t, FieldMap{{From: "id", To: "tag_id"}}, jm.Related)
		assert.Equal(t, []string{"post_id", "tag_id"}, jm.Columns())
	})

	t.Run("position without constraints", func(t *testing.T) {
		jm, err := r.ResolveJunction(ctx, post, tag, rel("post_label", "p, l"))
		require.NoError(t, err)
		assert.Equal(t, FieldMap{{From: "id", To: "p"}}, jm.Owner)
		assert.Equal(t, FieldMap{{From: "id", To: "l"}}, jm.Related)
	})

	t.Run("self reference fills owner first", func(t *testing.T) {
		jm, err := r.ResolveJunction(ctx, user, user, rel("friends", "user_id, friend_id"))
		require.NoError(t, err)
		assert.Equal(t, FieldMap{{From: "id", To: "user_id"}}, jm.Owner)
		assert.Equal(t, FieldMap{{From: "id", To: "friend_id"}}, jm.Related)
	})

	for name, tc := range map[string]*metadata.Relation{
		"missing join table": rel("nope", "a, b"),
		"undeclared table":   rel("", "a, b"),
		"missing column":     rel("post_tag", "post_id, label_id"),
		"one sided":          rel("post_only", "post_id"),
		"too many columns":   rel("post_label", "p, l, p"),
	} {
		t.Run(name, func(t *testing.T) {
			_, err := r.ResolveJunction(ctx, post, tag, tc)
			assert.True(t, IsSchemaError(err), "%v", err)
		})
	}
}
