package exec

import (
	"fmt"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"

	"github.com/matthewbaird/smartquery/internal/plan"
	"github.com/matthewbaird/smartquery/internal/schema"
)

// selMode selects what a rendered selector returns.
type selMode int

const (
	modeRecords selMode = iota // entity rows (plus joined-loader columns)
	modeCount                  // COUNT(*) over the filtered query
	modeKeys                   // a single key column, for IN subqueries
)

// scanNode describes one entity's column block within a scanned row.
// The root node covers the base entity; children are joined-strategy
// loader nodes folded into the same statement.
type scanNode struct {
	entity   *schema.EntitySchema
	relation string // relation name on the parent ("" at the root)
	toMany   bool
	inner    bool
	start    int // index of this block's first column in the row
	width    int
	table    *entsql.SelectTable
	children []*scanNode
	// pending are separate-statement loaders (subquery/selectin) to run
	// after the base rows are assembled.
	pending []plan.LoaderOption
}

// renderer builds one SQL statement from a plan. It owns the alias
// namespace of the statement: resolver-assigned aliases come in through
// plan.Joins, loader joins get a distinct "<table>_j<n>" scheme so the
// two can never collide.
type renderer struct {
	reg       *schema.Registry
	tables    map[string]*entsql.SelectTable // table-or-alias name -> table view
	loaderSeq int
}

func newRenderer(reg *schema.Registry) *renderer {
	return &renderer{reg: reg, tables: make(map[string]*entsql.SelectTable)}
}

// selectorFor renders a plan into a parameterized selector. In
// modeRecords the returned scanNode describes the row layout; the other
// modes return a nil scanNode. keyColumn is used by modeKeys only.
func (r *renderer) selectorFor(p *plan.Plan, mode selMode, keyColumn string) (*entsql.Selector, *scanNode, error) {
	base := entsql.Table(p.Table)
	r.tables[p.Table] = base

	root := r.reg.Entity(p.Entity)
	if root == nil {
		return nil, nil, fmt.Errorf("unknown entity '%s'", p.Entity)
	}

	for _, j := range p.Joins {
		jt := entsql.Table(j.Table).As(j.Alias)
		r.tables[j.Alias] = jt
	}

	var (
		columns []string
		tree    *scanNode
		err     error
	)
	switch mode {
	case modeCount:
		columns = []string{entsql.Count("*")}
	case modeKeys:
		columns = []string{base.C(keyColumn)}
	default:
		if len(p.Columns) > 0 {
			for _, e := range p.Columns {
				s, err := r.exprString(e)
				if err != nil {
					return nil, nil, err
				}
				columns = append(columns, s)
			}
		} else {
			tree = &scanNode{entity: root, table: base}
			columns, err = r.layoutColumns(tree, p.Loaders, nil)
			if err != nil {
				return nil, nil, err
			}
		}
	}

	sel := entsql.Dialect(dialect.SQLite).Select(columns...).From(base)

	// Resolver-assigned joins from relationship hops in filter, sort and
	// group paths, in first-seen order.
	for _, j := range p.Joins {
		from := r.tables[j.FromTable]
		jt := r.tables[j.Alias]
		if from == nil || jt == nil {
			return nil, nil, fmt.Errorf("join references unknown table '%s'", j.FromTable)
		}
		if j.Inner {
			sel.Join(jt).On(from.C(j.OwnerColumn), jt.C(j.RefColumn))
		} else {
			sel.LeftJoin(jt).On(from.C(j.OwnerColumn), jt.C(j.RefColumn))
		}
	}

	// Joined-strategy loader edges, in the depth-first layout order.
	if tree != nil {
		r.attachLoaderJoins(sel, tree)
	}

	if len(p.Where) > 0 {
		preds := make([]*entsql.Predicate, 0, len(p.Where))
		for _, w := range p.Where {
			pr, err := r.predicate(w)
			if err != nil {
				return nil, nil, err
			}
			preds = append(preds, pr)
		}
		if len(preds) == 1 {
			sel.Where(preds[0])
		} else {
			sel.Where(entsql.And(preds...))
		}
	}

	if mode != modeCount {
		for _, g := range p.Group {
			s, err := r.exprString(g)
			if err != nil {
				return nil, nil, err
			}
			sel.GroupBy(s)
		}
		for _, o := range p.Order {
			s, err := r.exprString(o.Expr)
			if err != nil {
				return nil, nil, err
			}
			if o.Desc {
				sel.OrderBy(entsql.Desc(s))
			} else {
				sel.OrderBy(entsql.Asc(s))
			}
		}
		if p.Limit >= 0 {
			sel.Limit(p.Limit)
		}
		if p.Offset >= 0 {
			sel.Offset(p.Offset)
		}
	}

	return sel, tree, nil
}

// layoutColumns assigns column blocks for a node and every joined-strategy
// loader under it, depth first. Separate-statement loaders are parked on
// the owning node's pending list and run after assembly.
func (r *renderer) layoutColumns(node *scanNode, loaders []plan.LoaderOption, cols []string) ([]string, error) {
	node.start = len(cols)
	node.width = len(node.entity.FieldOrder)
	for _, c := range node.entity.FieldOrder {
		cols = append(cols, node.table.C(c))
	}

	for _, opt := range loaders {
		if opt.Strategy != plan.Joined {
			node.pending = append(node.pending, opt)
			continue
		}
		rm := node.entity.Relations[opt.Relation]
		if rm == nil {
			return nil, fmt.Errorf("entity '%s' has no relationship '%s'", node.entity.Name, opt.Relation)
		}
		target := r.reg.Target(rm)
		r.loaderSeq++
		alias := fmt.Sprintf("%s_j%d", target.Table, r.loaderSeq)
		jt := entsql.Table(target.Table).As(alias)
		r.tables[alias] = jt
		child := &scanNode{
			entity:   target,
			relation: opt.Relation,
			toMany:   rm.ToMany,
			inner:    opt.Inner,
			table:    jt,
		}
		node.children = append(node.children, child)
		var err error
		cols, err = r.layoutColumns(child, opt.Children, cols)
		if err != nil {
			return nil, err
		}
	}
	return cols, nil
}

// attachLoaderJoins adds the join clauses for every joined-strategy
// loader laid out by layoutColumns, in the same depth-first order.
func (r *renderer) attachLoaderJoins(sel *entsql.Selector, node *scanNode) {
	for _, child := range node.children {
		rm := node.entity.Relations[child.relation]
		if child.inner {
			sel.Join(child.table).On(node.table.C(rm.OwnerColumn), child.table.C(rm.RefColumn))
		} else {
			sel.LeftJoin(child.table).On(node.table.C(rm.OwnerColumn), child.table.C(rm.RefColumn))
		}
		r.attachLoaderJoins(sel, child)
	}
}
