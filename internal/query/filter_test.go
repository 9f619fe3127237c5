package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matthewbaird/smartquery/internal/plan"
)

func TestSplitOperator(t *testing.T) {
	cases := []struct {
		key   string
		path  string
		token string
	}{
		{"age", "age", "eq"},
		{"age__gt", "age", "gt"},
		{"created_at__year_ge", "created_at", "year_ge"},
		{"user___name__like", "user___name", "like"},
		{"user___name", "user___name", "eq"},
		// A suffix that is not an operator stays part of the path.
		{"first__name", "first__name", "eq"},
	}
	for _, tc := range cases {
		t.Run(tc.key, func(t *testing.T) {
			path, token := SplitOperator(tc.key)
			assert.Equal(t, tc.path, path)
			assert.Equal(t, tc.token, token)
		})
	}
}

func TestCompileFiltersSimple(t *testing.T) {
	reg := testRegistry()
	res := NewResolver(reg, reg.Entity("user"))

	preds, err := CompileFilters(res, F{"age__gt": 25, "name": "John"})
	require.NoError(t, err)
	require.Len(t, preds, 2)

	// Keys compile in sorted order for deterministic plans.
	assert.Equal(t, plan.Comparison{Left: plan.Column{Table: "users", Name: "age"}, Op: plan.OpGT, Value: 25}, preds[0])
	assert.Equal(t, plan.Comparison{Left: plan.Column{Table: "users", Name: "name"}, Op: plan.OpEQ, Value: "John"}, preds[1])
}

func TestCompileFiltersRelatedPath(t *testing.T) {
	reg := testRegistry()
	res := NewResolver(reg, reg.Entity("post"))

	preds, err := CompileFilters(res, F{"user___age__gte": 30})
	require.NoError(t, err)
	require.Len(t, preds, 1)
	assert.Equal(t, plan.Comparison{Left: plan.Column{Table: "users_1", Name: "age"}, Op: plan.OpGE, Value: 30}, preds[0])
	assert.Len(t, res.Joins(), 1)
}

func TestCompileFiltersOrGroup(t *testing.T) {
	reg := testRegistry()
	res := NewResolver(reg, reg.Entity("user"))

	preds, err := CompileFilters(res, F{
		OrKey: []F{
			{"age__lt": 18},
			{"age__gt": 65},
		},
	})
	require.NoError(t, err)
	require.Len(t, preds, 1)

	or, ok := preds[0].(plan.Or)
	require.True(t, ok)
	require.Len(t, or.Preds, 2)
	assert.Equal(t, plan.OpLT, or.Preds[0].(plan.Comparison).Op)
	assert.Equal(t, plan.OpGT, or.Preds[1].(plan.Comparison).Op)
}

func TestCompileFiltersNestedCombinators(t *testing.T) {
	reg := testRegistry()
	res := NewResolver(reg, reg.Entity("user"))

	preds, err := CompileFilters(res, F{
		AndKey: F{
			"name__startswith": "J",
			OrKey: []F{
				{"age__le": 20},
				{"age__ge": 60},
			},
		},
	})
	require.NoError(t, err)
	require.Len(t, preds, 1)

	and, ok := preds[0].(plan.And)
	require.True(t, ok)
	require.Len(t, and.Preds, 2)
	_, isMatch := and.Preds[0].(plan.Match)
	assert.True(t, isMatch, "name__startswith sorts before or_")
	_, isOr := and.Preds[1].(plan.Or)
	assert.True(t, isOr)
}

func TestCompileFiltersListOfGroups(t *testing.T) {
	reg := testRegistry()
	res := NewResolver(reg, reg.Entity("user"))

	preds, err := CompileFilters(res, []F{
		{"age__ge": 18},
		{"name__ne": "root"},
	})
	require.NoError(t, err)
	assert.Len(t, preds, 2)
}

func TestCompileFiltersHybridProperty(t *testing.T) {
	reg := testRegistry()
	res := NewResolver(reg, reg.Entity("user"))

	preds, err := CompileFilters(res, F{"is_adult": true})
	require.NoError(t, err)
	require.Len(t, preds, 1)

	cmp, ok := preds[0].(plan.Comparison)
	require.True(t, ok)
	_, isBool := cmp.Left.(plan.BoolExpr)
	assert.True(t, isBool)
	assert.Equal(t, true, cmp.Value)
}

func TestCompileFiltersHybridMethod(t *testing.T) {
	reg := testRegistry()
	res := NewResolver(reg, reg.Entity("user"))

	preds, err := CompileFilters(res, F{"older_than": 30})
	require.NoError(t, err)
	require.Len(t, preds, 1)
	assert.Equal(t, plan.Comparison{Left: plan.Column{Table: "users", Name: "age"}, Op: plan.OpGT, Value: 30}, preds[0])
}

func TestCompileFiltersErrors(t *testing.T) {
	reg := testRegistry()

	t.Run("unknown attribute", func(t *testing.T) {
		res := NewResolver(reg, reg.Entity("user"))
		_, err := CompileFilters(res, F{"nickname": "x"})
		var nf *NoFilterableError
		require.ErrorAs(t, err, &nf)
		assert.Equal(t, "user", nf.Entity)
		assert.Equal(t, "nickname", nf.Attr)
	})

	t.Run("unknown relation hop", func(t *testing.T) {
		res := NewResolver(reg, reg.Entity("post"))
		_, err := CompileFilters(res, F{"author___name": "x"})
		var re *RelationError
		require.ErrorAs(t, err, &re)
		assert.Equal(t, "author", re.Relation)
	})

	t.Run("malformed spec", func(t *testing.T) {
		res := NewResolver(reg, reg.Entity("user"))
		_, err := CompileFilters(res, 42)
		require.ErrorIs(t, err, ErrInvalidFilter)
	})

	t.Run("malformed combinator value", func(t *testing.T) {
		res := NewResolver(reg, reg.Entity("user"))
		_, err := CompileFilters(res, F{OrKey: "not a spec"})
		require.ErrorIs(t, err, ErrInvalidFilter)
	})
}

func TestFlattenFilterKeys(t *testing.T) {
	keys, err := FlattenFilterKeys(F{
		"age__gt": 1,
		OrKey: []F{
			{"name": "a"},
			{"name__ne": "b"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"age__gt", "name", "name__ne"}, keys)
}
