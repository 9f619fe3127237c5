package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matthewbaird/smartquery/internal/plan"
)

func TestFilterExpr(t *testing.T) {
	reg := testRegistry()

	preds, err := FilterExpr(reg, reg.Entity("user"), F{"age__between": []any{20, 30}})
	require.NoError(t, err)
	require.Len(t, preds, 1)
	assert.Equal(t, plan.Between{Left: plan.Column{Table: "users", Name: "age"}, Lo: 20, Hi: 30}, preds[0])
}

func TestFilterExprRejectsRelatedPaths(t *testing.T) {
	reg := testRegistry()
	_, err := FilterExpr(reg, reg.Entity("post"), F{"user___age__gt": 18})
	assert.ErrorContains(t, err, "related paths are not supported")
}

func TestOrderExpr(t *testing.T) {
	reg := testRegistry()

	specs, err := OrderExpr(reg, reg.Entity("post"), "-rating", "title")
	require.NoError(t, err)
	require.Len(t, specs, 2)
	assert.True(t, specs[0].Desc)
	assert.Equal(t, plan.Column{Table: "posts", Name: "title"}, specs[1].Expr)

	_, err = OrderExpr(reg, reg.Entity("post"), "-user___name")
	assert.ErrorContains(t, err, "related paths are not supported")
}

func TestColumnsExpr(t *testing.T) {
	reg := testRegistry()

	exprs, err := ColumnsExpr(reg, reg.Entity("post"), "user_id", "rating")
	require.NoError(t, err)
	require.Len(t, exprs, 2)
	assert.Equal(t, plan.Column{Table: "posts", Name: "user_id"}, exprs[0])
}

func TestEagerExpr(t *testing.T) {
	reg := testRegistry()

	opts, err := EagerExpr(reg, reg.Entity("user"), Schema{"posts": Joined})
	require.NoError(t, err)
	require.Len(t, opts, 1)
	assert.Equal(t, plan.Joined, opts[0].Strategy)
}
