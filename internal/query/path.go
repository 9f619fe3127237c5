// Package query is the smart-query translation engine. It turns
// Django-style filter keys, prefix-signed sort attributes and nested
// eager-load schemas into an immutable query plan for an execution
// engine.
//
// Attribute paths traverse relationships with a "___" separator and may
// carry a "__"-separated operator suffix:
//
//	post___user___name__like = "%John%"
//
// All compilation state is local to one builder instance; concurrent
// builds never share mutable state.
package query

import (
	"fmt"
	"strings"

	"github.com/matthewbaird/smartquery/internal/plan"
	"github.com/matthewbaird/smartquery/internal/schema"
)

// RelationSeparator separates relationship hops in attribute paths.
const RelationSeparator = "___"

// OperatorSeparator separates the terminal attribute from its operator
// suffix in filter keys.
const OperatorSeparator = "__"

// aliasEntry is one memoized alias for a relationship path prefix.
type aliasEntry struct {
	Alias  string
	Entity *schema.EntitySchema
	Rel    *schema.RelationMeta
}

// Resolver parses attribute paths against a root entity, allocating one
// alias and one join edge per distinct relationship path prefix. Repeat
// resolutions of the same prefix reuse the existing alias, so a query
// never joins the same path twice. A Resolver belongs to a single query
// build and is not safe for concurrent use.
type Resolver struct {
	reg     *schema.Registry
	root    *schema.EntitySchema
	aliases map[string]*aliasEntry // path prefix -> alias
	order   []string               // prefixes in first-seen order
	joins   []plan.Join
	seq     map[string]int // per-table alias numbering
}

// NewResolver creates a resolver rooted at the given entity.
func NewResolver(reg *schema.Registry, root *schema.EntitySchema) *Resolver {
	return &Resolver{
		reg:     reg,
		root:    root,
		aliases: make(map[string]*aliasEntry),
		seq:     make(map[string]int),
	}
}

// Root returns the root entity descriptor.
func (r *Resolver) Root() *schema.EntitySchema { return r.root }

// Joins returns the accumulated join edges in first-seen order.
func (r *Resolver) Joins() []plan.Join {
	return append([]plan.Join(nil), r.joins...)
}

// Attr is a resolved terminal attribute: which entity and alias it lives
// on, and whether it is a column, a hybrid property or a hybrid method.
type Attr struct {
	Name   string
	Target plan.Target // qualifier: root table or join alias
	Entity *schema.EntitySchema
	Column *schema.FieldMeta
	Hybrid *schema.HybridMeta
	Method *schema.HybridMethodMeta
}

// Expr returns the attribute as a plan expression. Hybrid methods have no
// standalone expression and return nil.
func (a Attr) Expr() plan.Expr {
	switch {
	case a.Column != nil:
		return a.Target.C(a.Column.Name)
	case a.Hybrid != nil:
		return a.Hybrid.Expr(a.Target)
	default:
		return nil
	}
}

// noAttrError is the context-free "terminal segment not found" failure.
// Callers translate it into NoFilterableError, NoSortableError or
// NoColumnOrHybridPropertyError depending on what they were compiling.
type noAttrError struct {
	Entity string
	Attr   string
}

func (e *noAttrError) Error() string {
	return fmt.Sprintf("no such attribute '%s' on entity '%s'", e.Attr, e.Entity)
}

// Resolve walks an attribute path from the root entity. Every hop except
// the last must name a relationship of the entity reached so far
// (RelationError otherwise); aliases and LEFT OUTER JOIN edges are
// created lazily and memoized per path prefix. The terminal segment
// resolves against columns first, then hybrid properties, then hybrid
// methods.
func (r *Resolver) Resolve(path string) (Attr, error) {
	segments := strings.Split(path, RelationSeparator)
	terminal := segments[len(segments)-1]
	hops := segments[:len(segments)-1]

	cur := r.root
	target := plan.Target(r.root.Table)
	prefix := ""

	for _, hop := range hops {
		rel := cur.Relations[hop]
		if rel == nil {
			return Attr{}, &RelationError{Entity: cur.Name, Relation: hop}
		}
		if prefix == "" {
			prefix = hop
		} else {
			prefix += RelationSeparator + hop
		}

		entry := r.aliases[prefix]
		if entry == nil {
			targetEntity := r.reg.Target(rel)
			if targetEntity == nil {
				return Attr{}, &RelationError{Entity: cur.Name, Relation: hop}
			}
			entry = &aliasEntry{
				Alias:  r.nextAlias(targetEntity.Table),
				Entity: targetEntity,
				Rel:    rel,
			}
			r.aliases[prefix] = entry
			r.order = append(r.order, prefix)
			r.joins = append(r.joins, plan.Join{
				FromTable:   string(target),
				Relation:    hop,
				Table:       targetEntity.Table,
				Alias:       entry.Alias,
				OwnerColumn: rel.OwnerColumn,
				RefColumn:   rel.RefColumn,
			})
		}

		cur = entry.Entity
		target = plan.Target(entry.Alias)
	}

	attr := Attr{Name: terminal, Target: target, Entity: cur}
	switch {
	case cur.Fields[terminal] != nil:
		attr.Column = cur.Fields[terminal]
	case cur.Hybrids[terminal] != nil:
		attr.Hybrid = cur.Hybrids[terminal]
	case cur.Methods[terminal] != nil:
		attr.Method = cur.Methods[terminal]
	default:
		return Attr{}, &noAttrError{Entity: cur.Name, Attr: terminal}
	}
	return attr, nil
}

// Alias returns the alias assigned to a path prefix, or "" when the
// prefix has not been resolved yet.
func (r *Resolver) Alias(prefix string) string {
	if e := r.aliases[prefix]; e != nil {
		return e.Alias
	}
	return ""
}

// nextAlias allocates "table_1", "table_2", ... per target table.
func (r *Resolver) nextAlias(table string) string {
	r.seq[table]++
	return fmt.Sprintf("%s_%d", table, r.seq[table])
}
