package query

import (
	"context"
	"fmt"

	"github.com/matthewbaird/smartquery/internal/plan"
	"github.com/matthewbaird/smartquery/internal/record"
	"github.com/matthewbaird/smartquery/internal/schema"
)

// Executor is the narrow execution interface the facade hands finished
// plans to. Implementations apply predicates, joins with aliasing,
// ordering, grouping, offset/limit, loader options and (when unique is
// set) row deduplication by identity.
type Executor interface {
	Run(ctx context.Context, p *plan.Plan, unique bool) ([]record.Record, error)
	Count(ctx context.Context, p *plan.Plan) (int, error)
}

// Query is the chainable builder composing the filter, sort/group and
// eager-load compilers into one query plan. Compilation errors stick to
// the builder and are returned by the first terminal fetch, always before
// the execution interface is called. A Query is built single-threaded;
// its compiled plan is immutable once a terminal fetcher submits it.
type Query struct {
	reg  *schema.Registry
	root *schema.EntitySchema
	exec Executor
	res  *Resolver

	columns []plan.Expr
	where   []plan.Predicate
	order   []plan.OrderSpec
	group   []plan.Expr
	loaders []plan.LoaderOption
	limit   int
	offset  int

	err error // first compilation error wins
}

// New starts a query over the named root entity.
func New(reg *schema.Registry, exec Executor, entity string) (*Query, error) {
	root := reg.Entity(entity)
	if root == nil {
		return nil, fmt.Errorf("unknown entity '%s'", entity)
	}
	return &Query{
		reg:    reg,
		root:   root,
		exec:   exec,
		res:    NewResolver(reg, root),
		limit:  -1,
		offset: -1,
	}, nil
}

// Err returns the first compilation error recorded on the builder.
func (q *Query) Err() error { return q.err }

func (q *Query) fail(err error) *Query {
	if q.err == nil {
		q.err = err
	}
	return q
}

// Where applies WHERE criteria. Each argument is either a native
// plan.Predicate or a Django-style filter specification (F, map, or a
// list of those); everything combines with AND.
func (q *Query) Where(specs ...any) *Query {
	if q.err != nil {
		return q
	}
	for _, spec := range specs {
		if pred, ok := spec.(plan.Predicate); ok {
			q.where = append(q.where, pred)
			continue
		}
		preds, err := CompileFilters(q.res, spec)
		if err != nil {
			return q.fail(err)
		}
		q.where = append(q.where, preds...)
	}
	return q
}

// Filter is a synonym for Where.
func (q *Query) Filter(specs ...any) *Query { return q.Where(specs...) }

// Find is a synonym for Where.
func (q *Query) Find(specs ...any) *Query { return q.Where(specs...) }

// OrderBy applies ORDER BY criteria: native expressions or string
// attribute paths, "-" prefix for descending.
func (q *Query) OrderBy(items ...any) *Query {
	if q.err != nil {
		return q
	}
	specs, err := CompileSort(q.res, items)
	if err != nil {
		return q.fail(err)
	}
	q.order = append(q.order, specs...)
	return q
}

// Sort is a synonym for OrderBy.
func (q *Query) Sort(items ...any) *Query { return q.OrderBy(items...) }

// GroupBy applies GROUP BY criteria: native expressions or string
// attribute paths.
func (q *Query) GroupBy(items ...any) *Query {
	if q.err != nil {
		return q
	}
	exprs, err := CompileGroup(q.res, items)
	if err != nil {
		return q.fail(err)
	}
	q.group = append(q.group, exprs...)
	return q
}

// Select replaces the selected column list. At least one column is
// required. This is the explicit, non-destructive way to re-scope the
// selection before grouping.
func (q *Query) Select(items ...any) *Query {
	if q.err != nil {
		return q
	}
	if len(items) == 0 {
		return q.fail(fmt.Errorf("at least one column must be selected"))
	}
	exprs, err := CompileGroup(q.res, items)
	if err != nil {
		return q.fail(err)
	}
	q.columns = exprs
	return q
}

// GroupBySelect re-scopes the selected columns and applies GROUP BY in
// one call. Re-scoping the selection this way discards any previously
// applied predicates and ordering; prefer Select followed by GroupBy
// unless that historical behavior is wanted.
func (q *Query) GroupBySelect(selectItems []any, groupItems ...any) *Query {
	if q.err != nil {
		return q
	}
	q.where = nil
	q.order = nil
	return q.Select(selectItems...).GroupBy(groupItems...)
}

// Join eagerly loads direct relationships of the root entity with the
// joined (single statement) strategy using LEFT OUTER JOIN. A []any tuple
// of (relation, true) upgrades that relation to an INNER JOIN; a
// non-boolean second element is a hard error.
func (q *Query) Join(paths ...any) *Query {
	return q.eagerPaths(paths, func(inner bool) (plan.Strategy, bool) {
		return plan.Joined, inner
	})
}

// WithSubquery eagerly loads direct relationships of the root entity in
// separate statements: the subquery strategy by default, or select-in
// when the (relation, true) tuple form is used.
func (q *Query) WithSubquery(paths ...any) *Query {
	return q.eagerPaths(paths, func(flag bool) (plan.Strategy, bool) {
		if flag {
			return plan.SelectIn, false
		}
		return plan.Subquery, false
	})
}

// eagerPaths validates (relation, flag) path arguments against the root
// entity's direct relationships and appends loader options.
func (q *Query) eagerPaths(paths []any, classify func(flag bool) (plan.Strategy, bool)) *Query {
	if q.err != nil {
		return q
	}
	for _, path := range paths {
		name := ""
		flag := false
		switch p := path.(type) {
		case string:
			name = p
		case []any:
			if len(p) != 2 {
				return q.fail(fmt.Errorf("eager path tuple must have exactly 2 elements, got %d", len(p)))
			}
			s, ok := p[0].(string)
			if !ok {
				return q.fail(fmt.Errorf("eager path tuple first element must be a relation name, got %T", p[0]))
			}
			b, ok := p[1].(bool)
			if !ok {
				return q.fail(fmt.Errorf("the second element of tuple '%v' is not boolean", p[1]))
			}
			name, flag = s, b
		default:
			return q.fail(fmt.Errorf("unexpected eager path of type %T", path))
		}

		rm := q.root.Relations[name]
		if rm == nil {
			return q.fail(&RelationError{Entity: q.root.Name, Relation: name})
		}
		strategy, inner := classify(flag)
		q.loaders = append(q.loaders, plan.LoaderOption{
			Relation: name,
			Target:   rm.Target,
			Strategy: strategy,
			Inner:    inner,
		})
	}
	return q
}

// WithSchema eagerly loads a nested schema of arbitrary depth.
func (q *Query) WithSchema(s Schema) *Query {
	if q.err != nil {
		return q
	}
	opts, err := CompileEager(q.reg, q.root, s)
	if err != nil {
		return q.fail(err)
	}
	q.loaders = append(q.loaders, opts...)
	return q
}

// Offset applies an OFFSET. Negative values are rejected.
func (q *Query) Offset(offset int) *Query {
	if q.err != nil {
		return q
	}
	if offset < 0 {
		return q.fail(fmt.Errorf("offset must not be negative, got %d", offset))
	}
	q.offset = offset
	return q
}

// Skip is a synonym for Offset.
func (q *Query) Skip(skip int) *Query { return q.Offset(skip) }

// Limit applies a LIMIT. Negative values are rejected.
func (q *Query) Limit(limit int) *Query {
	if q.err != nil {
		return q
	}
	if limit < 0 {
		return q.fail(fmt.Errorf("limit must not be negative, got %d", limit))
	}
	q.limit = limit
	return q
}

// Take is a synonym for Limit.
func (q *Query) Take(take int) *Query { return q.Limit(take) }

// Plan assembles the compiled, immutable query plan.
func (q *Query) Plan() (*plan.Plan, error) {
	if q.err != nil {
		return nil, q.err
	}
	return &plan.Plan{
		Entity:  q.root.Name,
		Table:   q.root.Table,
		Columns: append([]plan.Expr(nil), q.columns...),
		Joins:   q.res.Joins(),
		Where:   append([]plan.Predicate(nil), q.where...),
		Order:   append([]plan.OrderSpec(nil), q.order...),
		Group:   append([]plan.Expr(nil), q.group...),
		Loaders: append([]plan.LoaderOption(nil), q.loaders...),
		Limit:   q.limit,
		Offset:  q.offset,
	}, nil
}

// ── Terminal fetchers ───────────────────────────────────────────────────────

// All fetches all rows.
func (q *Query) All(ctx context.Context) ([]record.Record, error) {
	return q.run(ctx, false)
}

// UniqueAll fetches all rows deduplicated by identity. Required after a
// joined eager load of a to-many relationship.
func (q *Query) UniqueAll(ctx context.Context) ([]record.Record, error) {
	return q.run(ctx, true)
}

// First fetches the first row, or nil when no rows match.
func (q *Query) First(ctx context.Context) (record.Record, error) {
	return q.first(ctx, false)
}

// UniqueFirst fetches the first unique row, or nil when no rows match.
func (q *Query) UniqueFirst(ctx context.Context) (record.Record, error) {
	return q.first(ctx, true)
}

// One fetches exactly one row. It fails with ErrNoResult on zero rows and
// ErrMultipleResults on more than one.
func (q *Query) One(ctx context.Context) (record.Record, error) {
	return q.one(ctx, false, false)
}

// UniqueOne is One with identity deduplication.
func (q *Query) UniqueOne(ctx context.Context) (record.Record, error) {
	return q.one(ctx, true, false)
}

// OneOrNone fetches one row or nil when no rows match; more than one row
// fails with ErrMultipleResults.
func (q *Query) OneOrNone(ctx context.Context) (record.Record, error) {
	return q.one(ctx, false, true)
}

// UniqueOneOrNone is OneOrNone with identity deduplication.
func (q *Query) UniqueOneOrNone(ctx context.Context) (record.Record, error) {
	return q.one(ctx, true, true)
}

// Count fetches the number of matching rows via scalar aggregation.
func (q *Query) Count(ctx context.Context) (int, error) {
	p, err := q.Plan()
	if err != nil {
		return 0, err
	}
	return q.exec.Count(ctx, p)
}

func (q *Query) run(ctx context.Context, unique bool) ([]record.Record, error) {
	p, err := q.Plan()
	if err != nil {
		return nil, err
	}
	return q.exec.Run(ctx, p, unique)
}

func (q *Query) first(ctx context.Context, unique bool) (record.Record, error) {
	p, err := q.Limit(1).Plan()
	if err != nil {
		return nil, err
	}
	rows, err := q.exec.Run(ctx, p, unique)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

func (q *Query) one(ctx context.Context, unique, tolerateNone bool) (record.Record, error) {
	rows, err := q.run(ctx, unique)
	if err != nil {
		return nil, err
	}
	switch len(rows) {
	case 0:
		if tolerateNone {
			return nil, nil
		}
		return nil, ErrNoResult
	case 1:
		return rows[0], nil
	default:
		return nil, ErrMultipleResults
	}
}
