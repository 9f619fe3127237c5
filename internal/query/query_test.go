package query

import (
	"github.com/matthewbaird/smartquery/internal/plan"
	"github.com/matthewbaird/smartquery/internal/schema"
)

// testRegistry builds the user/post/comment graph used across the query
// compiler tests.
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
	post.AddField(&schema.FieldMeta{Name: "created_at", Type: schema.FieldTime, Optional: true})
	post.AddRelation(&schema.RelationMeta{Name: "user", Target: "user", OwnerColumn: "user_id", RefColumn: "id"})
	post.AddRelation(&schema.RelationMeta{Name: "comments", Target: "comment", ToMany: true, OwnerColumn: "id", RefColumn: "post_id"})
	r.Register(post)

	comment := &schema.EntitySchema{Name: "comment", Table: "comments"}
	comment.AddField(&schema.FieldMeta{Name: "id", Type: schema.FieldInt, PrimaryKey: true})
	comment.AddField(&schema.FieldMeta{Name: "body", Type: schema.FieldString})
	comment.AddField(&schema.FieldMeta{Name: "rating", Type: schema.FieldInt})
	comment.AddField(&schema.FieldMeta{Name: "post_id", Type: schema.FieldInt})
	comment.AddField(&schema.FieldMeta{Name: "user_id", Type: schema.FieldInt})
	comment.AddRelation(&schema.RelationMeta{Name: "post", Target: "post", OwnerColumn: "post_id", RefColumn: "id"})
	comment.AddRelation(&schema.RelationMeta{Name: "user", Target: "user", OwnerColumn: "user_id", RefColumn: "id"})
	r.Register(comment)

	return r
}
