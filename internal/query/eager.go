package query

import (
	"fmt"
	"sort"

	"github.com/matthewbaird/smartquery/internal/plan"
	"github.com/matthewbaird/smartquery/internal/schema"
)

// Eager-load strategy tags, re-exported for callers assembling schemas.
const (
	Joined   = plan.Joined
	Subquery = plan.Subquery
	SelectIn = plan.SelectIn
)

// Schema maps relationship attributes of an entity to how they should be
// eagerly loaded. Values may be:
//
//   - a strategy tag (Joined, Subquery, SelectIn);
//   - a With{Strategy, Schema} pair applying a nested schema to the
//     relationship's target entity;
//   - a bare nested Schema, which defaults to the Subquery strategy.
//
// Nesting depth is bounded only by the relationship graph, which may be
// cyclic (self-referential relations); no cycle detection is performed,
// so bounding depth on such graphs is the caller's responsibility.
type Schema map[string]any

// With pairs a loading strategy with a nested schema for the target
// entity.
type With struct {
	Strategy plan.Strategy
	Schema   Schema
}

// CompileEager walks an eager-load schema against an entity and produces
// the loader-option tree mirroring the relationship graph. Every key must
// be a direct relationship of the entity it is declared against
// (RelationError); strategy tags outside the recognized three fail with
// InvalidJoinMethodError. Keys are compiled in sorted order for
// deterministic plans.
func CompileEager(reg *schema.Registry, es *schema.EntitySchema, s Schema) ([]plan.LoaderOption, error) {
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var opts []plan.LoaderOption
	for _, rel := range keys {
		rm := es.Relations[rel]
		if rm == nil {
			return nil, &RelationError{Entity: es.Name, Relation: rel}
		}

		strategy, nested, err := classifyDirective(rel, s[rel])
		if err != nil {
			return nil, err
		}

		opt := plan.LoaderOption{
			Relation: rel,
			Target:   rm.Target,
			Strategy: strategy,
		}
		if nested != nil {
			children, err := CompileEager(reg, reg.Target(rm), nested)
			if err != nil {
				return nil, err
			}
			opt.Children = children
		}
		opts = append(opts, opt)
	}
	return opts, nil
}

// classifyDirective decides the strategy and nested schema for one
// schema value.
func classifyDirective(rel string, v any) (plan.Strategy, Schema, error) {
	switch d := v.(type) {
	case plan.Strategy:
		if !d.Valid() {
			return "", nil, &InvalidJoinMethodError{Relation: rel, Method: string(d)}
		}
		return d, nil, nil
	case string:
		s := plan.Strategy(d)
		if !s.Valid() {
			return "", nil, &InvalidJoinMethodError{Relation: rel, Method: d}
		}
		return s, nil, nil
	case With:
		if !d.Strategy.Valid() {
			return "", nil, &InvalidJoinMethodError{Relation: rel, Method: string(d.Strategy)}
		}
		return d.Strategy, d.Schema, nil
	case Schema:
		// Bare nested schema: separate-statement loading by default.
		return plan.Subquery, d, nil
	case map[string]any:
		return plan.Subquery, Schema(d), nil
	default:
		return "", nil, fmt.Errorf("eager schema for relation '%s': unexpected value of type %T", rel, v)
	}
}
