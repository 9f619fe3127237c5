package query

import (
	"fmt"

	"github.com/matthewbaird/smartquery/internal/plan"
	"github.com/matthewbaird/smartquery/internal/schema"
)

// Standalone compiler entry points for callers that want expressions
// without a query builder. These operate on the entity's own attributes;
// related paths need the alias management of a full builder and are
// rejected here.

// FilterExpr compiles one keyword filter group against the entity's own
// columns, hybrid properties and methods.
func FilterExpr(reg *schema.Registry, es *schema.EntitySchema, filters F) ([]plan.Predicate, error) {
	res := NewResolver(reg, es)
	preds, err := CompileFilters(res, filters)
	if err != nil {
		return nil, err
	}
	if len(res.Joins()) > 0 {
		return nil, fmt.Errorf("related paths are not supported by FilterExpr; build a query instead")
	}
	return preds, nil
}

// OrderExpr compiles prefix-signed sort attributes against the entity's
// own columns and hybrid properties.
func OrderExpr(reg *schema.Registry, es *schema.EntitySchema, attrs ...string) ([]plan.OrderSpec, error) {
	res := NewResolver(reg, es)
	items := make([]any, len(attrs))
	for i, a := range attrs {
		items[i] = a
	}
	specs, err := CompileSort(res, items)
	if err != nil {
		return nil, err
	}
	if len(res.Joins()) > 0 {
		return nil, fmt.Errorf("related paths are not supported by OrderExpr; build a query instead")
	}
	return specs, nil
}

// ColumnsExpr compiles attribute names into column expressions, for
// select-list or GROUP BY use.
func ColumnsExpr(reg *schema.Registry, es *schema.EntitySchema, attrs ...string) ([]plan.Expr, error) {
	res := NewResolver(reg, es)
	items := make([]any, len(attrs))
	for i, a := range attrs {
		items[i] = a
	}
	exprs, err := CompileGroup(res, items)
	if err != nil {
		return nil, err
	}
	if len(res.Joins()) > 0 {
		return nil, fmt.Errorf("related paths are not supported by ColumnsExpr; build a query instead")
	}
	return exprs, nil
}

// EagerExpr compiles an eager-load schema into loader options.
func EagerExpr(reg *schema.Registry, es *schema.EntitySchema, s Schema) ([]plan.LoaderOption, error) {
	return CompileEager(reg, es, s)
}
