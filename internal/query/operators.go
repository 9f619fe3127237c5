package query

import (
	"fmt"
	"reflect"

	"github.com/matthewbaird/smartquery/internal/plan"
)

// OperatorFunc builds a predicate from a resolved operand expression and
// the caller-supplied comparison value. Operator functions are pure.
type OperatorFunc func(left plan.Expr, value any) (plan.Predicate, error)

// DefaultOperator is applied when a filter key carries no suffix.
const DefaultOperator = "eq"

// operators is the fixed suffix-token table. Unknown tokens are a hard
// error (UnknownOperatorError), never silently ignored.
var operators = map[string]OperatorFunc{
	"eq": compareOp(plan.OpEQ),
	"ne": compareOp(plan.OpNE),
	"gt": compareOp(plan.OpGT),
	"ge": compareOp(plan.OpGE),
	"lt": compareOp(plan.OpLT),
	"le": compareOp(plan.OpLE),
	// Django-style spellings, accepted as aliases.
	"gte": compareOp(plan.OpGE),
	"lte": compareOp(plan.OpLE),

	"in":    membershipOp(false),
	"notin": membershipOp(true),

	"between": betweenOp,
	"isnull":  isNullOp,

	"like":        matchOp("%s", false),
	"ilike":       matchOp("%s", true),
	"startswith":  matchOp("%s%%", false),
	"istartswith": matchOp("%s%%", true),
	"endswith":    matchOp("%%%s", false),
	"iendswith":   matchOp("%%%s", true),
	"contains":    matchOp("%%%s%%", false),
	"icontains":   matchOp("%%%s%%", true),

	"year":     datePartOp("year", plan.OpEQ),
	"year_ne":  datePartOp("year", plan.OpNE),
	"year_gt":  datePartOp("year", plan.OpGT),
	"year_ge":  datePartOp("year", plan.OpGE),
	"year_lt":  datePartOp("year", plan.OpLT),
	"year_le":  datePartOp("year", plan.OpLE),
	"month":    datePartOp("month", plan.OpEQ),
	"month_ne": datePartOp("month", plan.OpNE),
	"month_gt": datePartOp("month", plan.OpGT),
	"month_ge": datePartOp("month", plan.OpGE),
	"month_lt": datePartOp("month", plan.OpLT),
	"month_le": datePartOp("month", plan.OpLE),
	"day":      datePartOp("day", plan.OpEQ),
	"day_ne":   datePartOp("day", plan.OpNE),
	"day_gt":   datePartOp("day", plan.OpGT),
	"day_ge":   datePartOp("day", plan.OpGE),
	"day_lt":   datePartOp("day", plan.OpLT),
	"day_le":   datePartOp("day", plan.OpLE),
}

// Operator resolves a suffix token to its predicate builder.
func Operator(token string) (OperatorFunc, error) {
	fn, ok := operators[token]
	if !ok {
		return nil, &UnknownOperatorError{Token: token}
	}
	return fn, nil
}

// IsOperator reports whether token names a registered operator.
func IsOperator(token string) bool {
	_, ok := operators[token]
	return ok
}

func compareOp(op plan.CompOp) OperatorFunc {
	return func(left plan.Expr, value any) (plan.Predicate, error) {
		return plan.Comparison{Left: left, Op: op, Value: value}, nil
	}
}

func membershipOp(negate bool) OperatorFunc {
	return func(left plan.Expr, value any) (plan.Predicate, error) {
		values, err := toValueList(value)
		if err != nil {
			return nil, err
		}
		return plan.In{Left: left, Values: values, Negate: negate}, nil
	}
}

func betweenOp(left plan.Expr, value any) (plan.Predicate, error) {
	values, err := toValueList(value)
	if err != nil {
		return nil, err
	}
	if len(values) != 2 {
		return nil, fmt.Errorf("between expects exactly 2 values, got %d", len(values))
	}
	return plan.Between{Left: left, Lo: values[0], Hi: values[1]}, nil
}

func isNullOp(left plan.Expr, value any) (plan.Predicate, error) {
	flag, ok := value.(bool)
	if !ok {
		return nil, fmt.Errorf("isnull expects a bool, got %T", value)
	}
	return plan.Null{Left: left, Null: flag}, nil
}

// matchOp builds LIKE-family operators. The format wraps the value in the
// appropriate wildcards; "%s" passes the caller's pattern through as-is.
func matchOp(format string, insensitive bool) OperatorFunc {
	return func(left plan.Expr, value any) (plan.Predicate, error) {
		s, ok := value.(string)
		if !ok {
			return nil, fmt.Errorf("string match expects a string, got %T", value)
		}
		return plan.Match{
			Left:        left,
			Pattern:     fmt.Sprintf(format, s),
			Insensitive: insensitive,
		}, nil
	}
}

func datePartOp(part string, op plan.CompOp) OperatorFunc {
	return func(left plan.Expr, value any) (plan.Predicate, error) {
		return plan.Comparison{
			Left:  plan.DatePart{Part: part, Of: left},
			Op:    op,
			Value: value,
		}, nil
	}
}

// toValueList expands a slice or array value of any element type into
// []any. Non-sequence values are rejected.
func toValueList(value any) ([]any, error) {
	if vs, ok := value.([]any); ok {
		return vs, nil
	}
	rv := reflect.ValueOf(value)
	if !rv.IsValid() || (rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array) {
		return nil, fmt.Errorf("expected a list of values, got %T", value)
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, nil
}
