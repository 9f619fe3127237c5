package exec

import (
	"context"
	"fmt"

	entsql "entgo.io/ent/dialect/sql"

	"github.com/matthewbaird/smartquery/internal/plan"
	"github.com/matthewbaird/smartquery/internal/record"
	"github.com/matthewbaird/smartquery/internal/schema"
)

// runPending executes every separate-statement loader hanging off a scan
// tree: the node's own pending options against its records, then the
// pending options of joined children against the records folded under
// them. parentPlan lets top-level subquery loaders constrain the child
// statement with the parent query itself; deeper levels fall back to key
// lists.
func (e *Executor) runPending(ctx context.Context, node *scanNode, recs []record.Record, parentPlan *plan.Plan) error {
	for _, opt := range node.pending {
		if err := e.loadSeparate(ctx, node.entity, recs, opt, parentPlan); err != nil {
			return err
		}
	}
	for _, child := range node.children {
		if len(childPendingTotal(child)) == 0 {
			continue
		}
		childRecs := collectRelated(recs, child.relation, child.toMany)
		if err := e.runPending(ctx, child, childRecs, nil); err != nil {
			return err
		}
	}
	return nil
}

func childPendingTotal(node *scanNode) []plan.LoaderOption {
	opts := append([]plan.LoaderOption(nil), node.pending...)
	for _, c := range node.children {
		opts = append(opts, childPendingTotal(c)...)
	}
	return opts
}

// collectRelated flattens the records attached under one relation.
func collectRelated(recs []record.Record, relation string, toMany bool) []record.Record {
	var out []record.Record
	for _, r := range recs {
		if toMany {
			if many, ok := r[relation].([]record.Record); ok {
				out = append(out, many...)
			}
			continue
		}
		if one, ok := r[relation].(record.Record); ok && one != nil {
			out = append(out, one)
		}
	}
	return out
}

// loadSeparate runs one subquery or select-in loader: a second statement
// over the target entity constrained to the parents' key set, assembled
// and attached under the relation name. Joined children of the loader
// fold into the same statement; separate children recurse.
func (e *Executor) loadSeparate(ctx context.Context, parentES *schema.EntitySchema, parents []record.Record, opt plan.LoaderOption, parentPlan *plan.Plan) error {
	rm := parentES.Relations[opt.Relation]
	if rm == nil {
		return fmt.Errorf("entity '%s' has no relationship '%s'", parentES.Name, opt.Relation)
	}
	target := e.reg.Target(rm)
	if target == nil {
		return fmt.Errorf("relationship '%s.%s' targets unknown entity '%s'", parentES.Name, opt.Relation, rm.Target)
	}

	// Materialize the attribute on every parent before fetching so a
	// loader over an empty parent set still leaves collections empty
	// rather than missing.
	for _, p := range parents {
		if rm.ToMany {
			p[opt.Relation] = []record.Record{}
		} else {
			p[opt.Relation] = nil
		}
	}
	if len(parents) == 0 {
		return nil
	}

	childPlan := &plan.Plan{
		Entity:  target.Name,
		Table:   target.Table,
		Loaders: opt.Children,
		Order:   deterministicOrder(target, rm.RefColumn),
		Limit:   -1,
		Offset:  -1,
	}
	rend := newRenderer(e.reg)
	sel, tree, err := rend.selectorFor(childPlan, modeRecords, "")
	if err != nil {
		return err
	}

	refCol := tree.table.C(rm.RefColumn)
	if opt.Strategy == plan.Subquery && parentPlan != nil {
		sub, _, err := newRenderer(e.reg).selectorFor(parentPlan, modeKeys, rm.OwnerColumn)
		if err != nil {
			return err
		}
		sel.Where(entsql.P(func(b *entsql.Builder) {
			b.WriteString(refCol).WriteString(" IN ")
			b.Wrap(func(b *entsql.Builder) {
				b.Join(sub)
			})
		}))
	} else {
		keys := parentKeys(parents, rm.OwnerColumn)
		if len(keys) == 0 {
			return nil
		}
		sel.Where(entsql.In(refCol, keys...))
	}

	query, args := sel.Query()
	raw, err := e.queryRows(ctx, query, args)
	if err != nil {
		return err
	}
	children := assembleRows(raw, tree, true)
	if err := e.runPending(ctx, tree, children, nil); err != nil {
		return err
	}

	// Attach by key: children grouped on the ref column, parents matched
	// on the owner column.
	grouped := map[string][]record.Record{}
	for _, c := range children {
		k := fmt.Sprintf("%v", c[rm.RefColumn])
		grouped[k] = append(grouped[k], c)
	}
	for _, p := range parents {
		v := p[rm.OwnerColumn]
		if v == nil {
			continue
		}
		matches := grouped[fmt.Sprintf("%v", v)]
		if rm.ToMany {
			p[opt.Relation] = append(p[opt.Relation].([]record.Record), matches...)
		} else if len(matches) > 0 {
			p[opt.Relation] = matches[0]
		}
	}
	return nil
}

// deterministicOrder keeps separate-statement loads stable: ref column
// first, then the target's primary key.
func deterministicOrder(target *schema.EntitySchema, refColumn string) []plan.OrderSpec {
	order := []plan.OrderSpec{{Expr: plan.Column{Table: target.Table, Name: refColumn}}}
	for _, pk := range target.PrimaryKeys() {
		if pk == refColumn {
			continue
		}
		order = append(order, plan.OrderSpec{Expr: plan.Column{Table: target.Table, Name: pk}})
	}
	return order
}

// parentKeys collects the distinct non-nil owner-column values.
func parentKeys(parents []record.Record, ownerColumn string) []any {
	var keys []any
	seen := map[string]bool{}
	for _, p := range parents {
		v := p[ownerColumn]
		if v == nil {
			continue
		}
		k := fmt.Sprintf("%v", v)
		if seen[k] {
			continue
		}
		seen[k] = true
		keys = append(keys, v)
	}
	return keys
}
