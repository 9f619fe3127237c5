package exec

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/matthewbaird/smartquery/internal/plan"
	"github.com/matthewbaird/smartquery/internal/query"
	"github.com/matthewbaird/smartquery/internal/record"
	"github.com/matthewbaird/smartquery/internal/schema"
)

// testRegistry builds the user/post/comment graph the execution tests
// run against.
func testRegistry() *schema.Registry {
	r := schema.NewRegistry()

	user := &schema.EntitySchema{Name: "user", Table: "users"}
	user.AddField(&schema.FieldMeta{Name: "id", Type: schema.FieldInt, PrimaryKey: true})
	user.AddField(&schema.FieldMeta{Name: "name", Type: schema.FieldString})
	user.AddField(&schema.FieldMeta{Name: "age", Type: schema.FieldInt})
	user.AddField(&schema.FieldMeta{Name: "created_at", Type: schema.FieldTime, Optional: true})
	user.AddRelation(&schema.RelationMeta{Name: "posts", Target: "post", ToMany: true, OwnerColumn: "id", RefColumn: "user_id"})
	user.AddRelation(&schema.RelationMeta{Name: "comments", Target: "comment", ToMany: true, OwnerColumn: "id", RefColumn: "user_id"})
	user.AddHybrid(&schema.HybridMeta{
		Name: "is_adult",
		Expr: func(t plan.Target) plan.Expr {
			return plan.BoolExpr{Pred: plan.Comparison{Left: t.C("age"), Op: plan.OpGT, Value: 18}}
		},
	})
	user.AddMethod(&schema.HybridMethodMeta{
		Name: "older_than",
		Build: func(t plan.Target, arg any) plan.Predicate {
			return plan.Comparison{Left: t.C("age"), Op: plan.OpGT, Value: arg}
		},
	})
	r.Register(user)

	post := &schema.EntitySchema{Name: "post", Table: "posts"}
	post.AddField(&schema.FieldMeta{Name: "id", Type: schema.FieldInt, PrimaryKey: true})
	post.AddField(&schema.FieldMeta{Name: "title", Type: schema.FieldString})
	post.AddField(&schema.FieldMeta{Name: "body", Type: schema.FieldString, Optional: true})
	post.AddField(&schema.FieldMeta{Name: "rating", Type: schema.FieldInt})
	post.AddField(&schema.FieldMeta{Name: "user_id", Type: schema.FieldInt})
	post.AddRelation(&schema.RelationMeta{Name: "user", Target: "user", OwnerColumn: "user_id", RefColumn: "id"})
	post.AddRelation(&schema.RelationMeta{Name: "comments", Target: "comment", ToMany: true, OwnerColumn: "id", RefColumn: "post_id"})
	r.Register(post)

	comment := &schema.EntitySchema{Name: "comment", Table: "comments"}
	comment.AddField(&schema.FieldMeta{Name: "id", Type: schema.FieldInt, PrimaryKey: true})
	comment.AddField(&schema.FieldMeta{Name: "body", Type: schema.FieldString})
	comment.AddField(&schema.FieldMeta{Name: "post_id", Type: schema.FieldInt})
	comment.AddField(&schema.FieldMeta{Name: "user_id", Type: schema.FieldInt})
	comment.AddRelation(&schema.RelationMeta{Name: "post", Target: "post", OwnerColumn: "post_id", RefColumn: "id"})
	comment.AddRelation(&schema.RelationMeta{Name: "user", Target: "user", OwnerColumn: "user_id", RefColumn: "id"})
	r.Register(comment)

	return r
}

// setup opens an in-memory database, creates the tables and seeds the
// standard rows: three users aged 25/30/35 with posts and comments.
func setup(t *testing.T) (*Executor, *schema.Registry) {
	t.Helper()
	ctx := context.Background()

	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	reg := testRegistry()
	require.NoError(t, reg.Validate())
	ex := New(db, reg)
	require.NoError(t, ex.CreateTables(ctx, reg))

	users := []record.Record{
		{"id": 1, "name": "Alice", "age": 25, "created_at": "2021-03-01 09:00:00"},
		{"id": 2, "name": "Bob", "age": 30, "created_at": "2023-06-15 10:30:00"},
		{"id": 3, "name": "Carol", "age": 35, "created_at": "2023-11-02 18:45:00"},
	}
	posts := []record.Record{
		{"id": 1, "title": "Go Generics", "body": "long read", "rating": 5, "user_id": 1},
		{"id": 2, "title": "SQL Tricks", "body": "joins", "rating": 4, "user_id": 2},
		{"id": 3, "title": "CUE Basics", "body": "schemas", "rating": 4, "user_id": 3},
		{"id": 4, "title": "Draft", "rating": 2, "user_id": 2},
	}
	comments := []record.Record{
		{"id": 1, "body": "nice", "post_id": 1, "user_id": 2},
		{"id": 2, "body": "thanks", "post_id": 1, "user_id": 3},
		{"id": 3, "body": "agreed", "post_id": 2, "user_id": 1},
	}
	require.NoError(t, ex.InsertAll(ctx, reg.Entity("user"), users))
	require.NoError(t, ex.InsertAll(ctx, reg.Entity("post"), posts))
	require.NoError(t, ex.InsertAll(ctx, reg.Entity("comment"), comments))
	return ex, reg
}

func newQuery(t *testing.T, ex *Executor, reg *schema.Registry, entity string) *query.Query {
	t.Helper()
	q, err := query.New(reg, ex, entity)
	require.NoError(t, err)
	return q
}

func titles(recs []record.Record) []string {
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i] = r["title"].(string)
	}
	return out
}

func TestFilterRelatedPath(t *testing.T) {
	ex, reg := setup(t)

	recs, err := newQuery(t, ex, reg, "post").
		Where(query.F{"user___age__gte": 30}).
		OrderBy("id").
		All(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"SQL Tricks", "CUE Basics", "Draft"}, titles(recs))
}

func TestSortTieBreakAcrossJoin(t *testing.T) {
	ex, reg := setup(t)

	recs, err := newQuery(t, ex, reg, "post").
		OrderBy("-rating", "user___name").
		All(context.Background())
	require.NoError(t, err)
	// Rating descending; the 4-4 tie breaks on owner name ascending.
	assert.Equal(t, []string{"Go Generics", "SQL Tricks", "CUE Basics", "Draft"}, titles(recs))
}

func TestFilterOperatorsEndToEnd(t *testing.T) {
	ex, reg := setup(t)
	ctx := context.Background()

	t.Run("between", func(t *testing.T) {
		recs, err := newQuery(t, ex, reg, "user").
			Where(query.F{"age__between": []any{26, 34}}).
			All(ctx)
		require.NoError(t, err)
		require.Len(t, recs, 1)
		assert.Equal(t, "Bob", recs[0]["name"])
	})

	t.Run("in and notin", func(t *testing.T) {
		recs, err := newQuery(t, ex, reg, "user").
			Where(query.F{"age__in": []any{25, 35}}).
			OrderBy("age").
			All(ctx)
		require.NoError(t, err)
		require.Len(t, recs, 2)

		recs, err = newQuery(t, ex, reg, "user").
			Where(query.F{"age__notin": []any{25, 35}}).
			All(ctx)
		require.NoError(t, err)
		require.Len(t, recs, 1)
		assert.Equal(t, "Bob", recs[0]["name"])
	})

	t.Run("isnull", func(t *testing.T) {
		recs, err := newQuery(t, ex, reg, "post").
			Where(query.F{"body__isnull": true}).
			All(ctx)
		require.NoError(t, err)
		require.Len(t, recs, 1)
		assert.Equal(t, "Draft", recs[0]["title"])

		n, err := newQuery(t, ex, reg, "post").
			Where(query.F{"body__isnull": false}).
			Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 3, n)
	})

	t.Run("case-insensitive match", func(t *testing.T) {
		recs, err := newQuery(t, ex, reg, "post").
			Where(query.F{"title__icontains": "sql"}).
			All(ctx)
		require.NoError(t, err)
		require.Len(t, recs, 1)
		assert.Equal(t, "SQL Tricks", recs[0]["title"])

		recs, err = newQuery(t, ex, reg, "user").
			Where(query.F{"name__istartswith": "aLi"}).
			All(ctx)
		require.NoError(t, err)
		require.Len(t, recs, 1)
	})

	t.Run("startswith is case sensitive", func(t *testing.T) {
		n, err := newQuery(t, ex, reg, "user").
			Where(query.F{"name__startswith": "ali"}).
			Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 0, n)
	})

	t.Run("date parts", func(t *testing.T) {
		recs, err := newQuery(t, ex, reg, "user").
			Where(query.F{"created_at__year": 2023}).
			OrderBy("id").
			All(ctx)
		require.NoError(t, err)
		require.Len(t, recs, 2)

		recs, err = newQuery(t, ex, reg, "user").
			Where(query.F{"created_at__year": 2023, "created_at__month_ge": 7}).
			All(ctx)
		require.NoError(t, err)
		require.Len(t, recs, 1)
		assert.Equal(t, "Carol", recs[0]["name"])
	})

	t.Run("or combinator", func(t *testing.T) {
		recs, err := newQuery(t, ex, reg, "user").
			Where(query.F{
				query.OrKey: []query.F{
					{"age__lt": 26},
					{"name": "Carol"},
				},
			}).
			OrderBy("id").
			All(ctx)
		require.NoError(t, err)
		require.Len(t, recs, 2)
		assert.Equal(t, "Alice", recs[0]["name"])
		assert.Equal(t, "Carol", recs[1]["name"])
	})
}

func TestHybridAttributes(t *testing.T) {
	ex, reg := setup(t)
	ctx := context.Background()

	recs, err := newQuery(t, ex, reg, "user").
		Where(query.F{"is_adult": true}).
		All(ctx)
	require.NoError(t, err)
	assert.Len(t, recs, 3)

	recs, err = newQuery(t, ex, reg, "user").
		Where(query.F{"older_than": 30}).
		All(ctx)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "Carol", recs[0]["name"])

	// Hybrid across a relationship path.
	n, err := newQuery(t, ex, reg, "post").
		Where(query.F{"user___is_adult": true}).
		Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
}

func TestJoinedEagerLoad(t *testing.T) {
	ex, reg := setup(t)
	ctx := context.Background()

	t.Run("unique fetch folds duplicate parents", func(t *testing.T) {
		recs, err := newQuery(t, ex, reg, "user").
			WithSchema(query.Schema{"posts": query.Joined}).
			OrderBy("id").
			UniqueAll(ctx)
		require.NoError(t, err)
		require.Len(t, recs, 3, "Bob appears once despite two post rows")

		bob := recs[1]
		assert.EqualValues(t, 2, bob["id"])
		require.Len(t, bob.RelatedAll("posts"), 2)
	})

	t.Run("non-unique fetch is rejected", func(t *testing.T) {
		_, err := newQuery(t, ex, reg, "user").
			WithSchema(query.Schema{"posts": query.Joined}).
			All(ctx)
		require.ErrorIs(t, err, ErrNotUnique)
	})

	t.Run("to-one join needs no unique fetch", func(t *testing.T) {
		recs, err := newQuery(t, ex, reg, "post").
			WithSchema(query.Schema{"user": query.Joined}).
			OrderBy("id").
			All(ctx)
		require.NoError(t, err)
		require.Len(t, recs, 4)
		assert.Equal(t, "Alice", recs[0].Related("user")["name"])
		assert.Equal(t, "Bob", recs[3].Related("user")["name"])
	})
}

func TestSeparateEagerLoads(t *testing.T) {
	ex, reg := setup(t)
	ctx := context.Background()

	for _, strategy := range []plan.Strategy{plan.Subquery, plan.SelectIn} {
		t.Run(string(strategy), func(t *testing.T) {
			recs, err := newQuery(t, ex, reg, "user").
				WithSchema(query.Schema{"posts": strategy}).
				OrderBy("id").
				All(ctx)
			require.NoError(t, err)
			require.Len(t, recs, 3)
			assert.Len(t, recs[0].RelatedAll("posts"), 1)
			assert.Len(t, recs[1].RelatedAll("posts"), 2)
			assert.Len(t, recs[2].RelatedAll("posts"), 1)
		})
	}

	t.Run("subquery respects parent filters", func(t *testing.T) {
		recs, err := newQuery(t, ex, reg, "user").
			Where(query.F{"age__ge": 30}).
			WithSchema(query.Schema{"posts": query.Subquery}).
			OrderBy("id").
			All(ctx)
		require.NoError(t, err)
		require.Len(t, recs, 2)
		assert.Len(t, recs[0].RelatedAll("posts"), 2)
	})

	t.Run("empty collections materialize", func(t *testing.T) {
		recs, err := newQuery(t, ex, reg, "comment").
			Where(query.F{"id": 1}).
			WithSchema(query.Schema{"user": query.SelectIn}).
			All(ctx)
		require.NoError(t, err)
		require.Len(t, recs, 1)
		assert.Equal(t, "Bob", recs[0].Related("user")["name"])
	})
}

func TestNestedEagerSchema(t *testing.T) {
	ex, reg := setup(t)

	recs, err := newQuery(t, ex, reg, "user").
		WithSchema(query.Schema{
			"posts": query.With{
				Strategy: query.Subquery,
				Schema:   query.Schema{"comments": query.SelectIn},
			},
		}).
		OrderBy("id").
		All(context.Background())
	require.NoError(t, err)
	require.Len(t, recs, 3)

	alicePosts := recs[0].RelatedAll("posts")
	require.Len(t, alicePosts, 1)
	assert.Len(t, alicePosts[0].RelatedAll("comments"), 2)

	bobPosts := recs[1].RelatedAll("posts")
	require.Len(t, bobPosts, 2)
	total := 0
	for _, p := range bobPosts {
		total += len(p.RelatedAll("comments"))
	}
	assert.Equal(t, 1, total)
}

func TestJoinedChildUnderSeparateParent(t *testing.T) {
	ex, reg := setup(t)

	// comments load separately; each comment's post folds in via join.
	recs, err := newQuery(t, ex, reg, "user").
		Where(query.F{"id": 1}).
		WithSchema(query.Schema{
			"comments": query.With{
				Strategy: query.SelectIn,
				Schema:   query.Schema{"post": query.Joined},
			},
		}).
		All(context.Background())
	require.NoError(t, err)
	require.Len(t, recs, 1)

	comments := recs[0].RelatedAll("comments")
	require.Len(t, comments, 1)
	assert.Equal(t, "SQL Tricks", comments[0].Related("post")["title"])
}

func TestCountAndPagination(t *testing.T) {
	ex, reg := setup(t)
	ctx := context.Background()

	n, err := newQuery(t, ex, reg, "post").Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	n, err = newQuery(t, ex, reg, "post").
		Where(query.F{"rating__ge": 4}).
		Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	recs, err := newQuery(t, ex, reg, "post").
		OrderBy("id").
		Limit(2).
		Offset(1).
		All(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"SQL Tricks", "CUE Basics"}, titles(recs))
}

func TestSelectGroupBy(t *testing.T) {
	ex, reg := setup(t)

	recs, err := newQuery(t, ex, reg, "post").
		Select("user_id").
		GroupBy("user_id").
		All(context.Background())
	require.NoError(t, err)
	require.Len(t, recs, 3)
	for _, r := range recs {
		assert.Contains(t, r, "user_id")
		assert.NotContains(t, r, "title")
	}
}

func TestFirstAndOne(t *testing.T) {
	ex, reg := setup(t)
	ctx := context.Background()

	rec, err := newQuery(t, ex, reg, "user").
		OrderBy("-age").
		First(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Carol", rec["name"])

	_, err = newQuery(t, ex, reg, "user").One(ctx)
	assert.ErrorIs(t, err, query.ErrMultipleResults)

	rec, err = newQuery(t, ex, reg, "user").
		Where(query.F{"name": "Nobody"}).
		OneOrNone(ctx)
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestCRUD(t *testing.T) {
	ex, reg := setup(t)
	ctx := context.Background()
	users := reg.Entity("user")

	t.Run("insert assigns key", func(t *testing.T) {
		rec, err := ex.Insert(ctx, users, record.Record{"name": "Dave", "age": 41})
		require.NoError(t, err)
		assert.EqualValues(t, 4, rec["id"])
	})

	t.Run("update", func(t *testing.T) {
		require.NoError(t, ex.Update(ctx, users, record.Record{"id": 1, "age": 26}))
		rec, err := newQuery(t, ex, reg, "user").Where(query.F{"id": 1}).One(ctx)
		require.NoError(t, err)
		assert.EqualValues(t, 26, rec["age"])
		assert.Equal(t, "Alice", rec["name"], "unset columns stay put")
	})

	t.Run("update without key fails", func(t *testing.T) {
		err := ex.Update(ctx, users, record.Record{"age": 50})
		assert.ErrorContains(t, err, "primary key column 'id' is not set")
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, ex.Delete(ctx, users, record.Record{"id": 4}))
		rec, err := newQuery(t, ex, reg, "user").Where(query.F{"id": 4}).OneOrNone(ctx)
		require.NoError(t, err)
		assert.Nil(t, rec)
	})

	t.Run("batch insert rolls back on failure", func(t *testing.T) {
		before, err := newQuery(t, ex, reg, "user").Count(ctx)
		require.NoError(t, err)

		err = ex.InsertAll(ctx, users, []record.Record{
			{"id": 50, "name": "Eve", "age": 28},
			{"id": 1, "name": "Dup", "age": 99}, // duplicate primary key
		})
		require.Error(t, err)

		after, err := newQuery(t, ex, reg, "user").Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, before, after, "no partial batch survives")
	})
}
