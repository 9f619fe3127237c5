package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matthewbaird/smartquery/internal/plan"
)

var opCol = plan.Column{Table: "users", Name: "age"}

func TestComparisonOperators(t *testing.T) {
	cases := []struct {
		token string
		want  plan.CompOp
	}{
		{"eq", plan.OpEQ},
		{"ne", plan.OpNE},
		{"gt", plan.OpGT},
		{"ge", plan.OpGE},
		{"gte", plan.OpGE},
		{"lt", plan.OpLT},
		{"le", plan.OpLE},
		{"lte", plan.OpLE},
	}
	for _, tc := range cases {
		t.Run(tc.token, func(t *testing.T) {
			fn, err := Operator(tc.token)
			require.NoError(t, err)
			pred, err := fn(opCol, 30)
			require.NoError(t, err)
			assert.Equal(t, plan.Comparison{Left: opCol, Op: tc.want, Value: 30}, pred)
		})
	}
}

func TestMembershipOperators(t *testing.T) {
	fn, err := Operator("in")
	require.NoError(t, err)
	pred, err := fn(opCol, []int{25, 30})
	require.NoError(t, err)
	assert.Equal(t, plan.In{Left: opCol, Values: []any{25, 30}}, pred)

	fn, err = Operator("notin")
	require.NoError(t, err)
	pred, err = fn(opCol, []any{25, 30})
	require.NoError(t, err)
	assert.Equal(t, plan.In{Left: opCol, Values: []any{25, 30}, Negate: true}, pred)

	_, err = fn(opCol, 25)
	assert.Error(t, err, "scalar value must be rejected")
}

func TestBetweenOperator(t *testing.T) {
	fn, err := Operator("between")
	require.NoError(t, err)

	pred, err := fn(opCol, []any{20, 30})
	require.NoError(t, err)
	assert.Equal(t, plan.Between{Left: opCol, Lo: 20, Hi: 30}, pred)

	_, err = fn(opCol, []any{20})
	assert.ErrorContains(t, err, "exactly 2 values")
	_, err = fn(opCol, []any{10, 20, 30})
	assert.ErrorContains(t, err, "exactly 2 values")
}

func TestIsNullOperator(t *testing.T) {
	fn, err := Operator("isnull")
	require.NoError(t, err)

	pred, err := fn(opCol, true)
	require.NoError(t, err)
	assert.Equal(t, plan.Null{Left: opCol, Null: true}, pred)

	pred, err = fn(opCol, false)
	require.NoError(t, err)
	assert.Equal(t, plan.Null{Left: opCol, Null: false}, pred)

	_, err = fn(opCol, 1)
	assert.ErrorContains(t, err, "expects a bool")
}

func TestMatchOperators(t *testing.T) {
	col := plan.Column{Table: "users", Name: "name"}
	cases := []struct {
		token       string
		value       string
		pattern     string
		insensitive bool
	}{
		{"like", "%Jo%", "%Jo%", false},
		{"ilike", "%jo%", "%jo%", true},
		{"startswith", "Jo", "Jo%", false},
		{"istartswith", "jo", "jo%", true},
		{"endswith", "hn", "%hn", false},
		{"iendswith", "HN", "%HN", true},
		{"contains", "oh", "%oh%", false},
		{"icontains", "OH", "%OH%", true},
	}
	for _, tc := range cases {
		t.Run(tc.token, func(t *testing.T) {
			fn, err := Operator(tc.token)
			require.NoError(t, err)
			pred, err := fn(col, tc.value)
			require.NoError(t, err)
			assert.Equal(t, plan.Match{Left: col, Pattern: tc.pattern, Insensitive: tc.insensitive}, pred)
		})
	}

	fn, _ := Operator("like")
	_, err := fn(col, 42)
	assert.ErrorContains(t, err, "expects a string")
}

func TestDatePartOperators(t *testing.T) {
	col := plan.Column{Table: "users", Name: "created_at"}
	cases := []struct {
		token string
		part  string
		op    plan.CompOp
	}{
		{"year", "year", plan.OpEQ},
		{"year_ne", "year", plan.OpNE},
		{"year_gt", "year", plan.OpGT},
		{"year_ge", "year", plan.OpGE},
		{"year_lt", "year", plan.OpLT},
		{"year_le", "year", plan.OpLE},
		{"month", "month", plan.OpEQ},
		{"month_ge", "month", plan.OpGE},
		{"day", "day", plan.OpEQ},
		{"day_le", "day", plan.OpLE},
	}
	for _, tc := range cases {
		t.Run(tc.token, func(t *testing.T) {
			fn, err := Operator(tc.token)
			require.NoError(t, err)
			pred, err := fn(col, 2024)
			require.NoError(t, err)
			assert.Equal(t, plan.Comparison{
				Left:  plan.DatePart{Part: tc.part, Of: col},
				Op:    tc.op,
				Value: 2024,
			}, pred)
		})
	}
}

func TestUnknownOperator(t *testing.T) {
	_, err := Operator("bogus")
	var opErr *UnknownOperatorError
	require.ErrorAs(t, err, &opErr)
	assert.Equal(t, "bogus", opErr.Token)

	assert.True(t, IsOperator("between"))
	assert.False(t, IsOperator("bogus"))
}
