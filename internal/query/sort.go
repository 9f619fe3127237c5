package query

import (
	"errors"
	"fmt"
	"strings"

	"github.com/matthewbaird/smartquery/internal/plan"
)

// CompileSort converts sort items into ORDER BY clauses. Each item is
// either a native plan.OrderSpec / plan.Expr (passed through unchanged)
// or a string attribute path where a leading "-" selects descending
// order. Output order matches input order exactly; nothing is
// deduplicated. Sortable attributes are columns and hybrid properties.
func CompileSort(res *Resolver, items []any) ([]plan.OrderSpec, error) {
	var out []plan.OrderSpec
	for _, item := range items {
		switch it := item.(type) {
		case plan.OrderSpec:
			out = append(out, it)
		case plan.Expr:
			out = append(out, plan.OrderSpec{Expr: it})
		case string:
			desc := strings.HasPrefix(it, "-")
			path := strings.TrimPrefix(it, "-")
			attr, err := res.Resolve(path)
			if err != nil {
				var missing *noAttrError
				if errors.As(err, &missing) {
					return nil, &NoSortableError{Entity: missing.Entity, Attr: missing.Attr}
				}
				return nil, err
			}
			if attr.Column == nil && attr.Hybrid == nil {
				return nil, &NoSortableError{Entity: attr.Entity.Name, Attr: attr.Name}
			}
			out = append(out, plan.OrderSpec{Expr: attr.Expr(), Desc: desc})
		default:
			return nil, fmt.Errorf("unexpected sort item of type %T", item)
		}
	}
	return out, nil
}

// CompileGroup converts group items into GROUP BY clauses. Items are
// native plan.Expr values or string attribute paths; no sign prefix is
// recognized. Output order matches input order exactly.
func CompileGroup(res *Resolver, items []any) ([]plan.Expr, error) {
	var out []plan.Expr
	for _, item := range items {
		switch it := item.(type) {
		case plan.Expr:
			out = append(out, it)
		case string:
			attr, err := res.Resolve(it)
			if err != nil {
				var missing *noAttrError
				if errors.As(err, &missing) {
					return nil, &NoColumnOrHybridPropertyError{Entity: missing.Entity, Attr: missing.Attr}
				}
				return nil, err
			}
			if attr.Column == nil && attr.Hybrid == nil {
				return nil, &NoColumnOrHybridPropertyError{Entity: attr.Entity.Name, Attr: attr.Name}
			}
			out = append(out, attr.Expr())
		default:
			return nil, fmt.Errorf("unexpected group item of type %T", item)
		}
	}
	return out, nil
}
