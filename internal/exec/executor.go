// Package exec is the reference execution engine: it renders compiled
// query plans to SQL with the ent dialect builders and runs them against
// a database/sql connection.
package exec

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/matthewbaird/smartquery/internal/plan"
	"github.com/matthewbaird/smartquery/internal/record"
	"github.com/matthewbaird/smartquery/internal/schema"
)

// ErrNotUnique is returned when a non-unique fetch would return the
// multiplied rows of a joined eager load against a to-many relationship.
var ErrNotUnique = errors.New("a joined eager load against a collection requires a unique fetch")

// Executor runs plans over a single database handle. It satisfies the
// query package's execution interface.
type Executor struct {
	db  *sql.DB
	reg *schema.Registry
}

// New returns an executor over db for the entities in reg.
func New(db *sql.DB, reg *schema.Registry) *Executor {
	return &Executor{db: db, reg: reg}
}

// DB exposes the underlying handle for callers that manage transactions.
func (e *Executor) DB() *sql.DB { return e.db }

// Run executes a plan and returns its rows as records. With unique set,
// base rows are deduplicated by primary-key identity; without it, a plan
// carrying a joined to-many eager load is rejected up front because the
// join multiplies parent rows.
func (e *Executor) Run(ctx context.Context, p *plan.Plan, unique bool) ([]record.Record, error) {
	if !unique && p.HasJoinedToMany(e.toMany) {
		return nil, ErrNotUnique
	}

	rend := newRenderer(e.reg)
	sel, tree, err := rend.selectorFor(p, modeRecords, "")
	if err != nil {
		return nil, err
	}
	query, args := sel.Query()
	raw, err := e.queryRows(ctx, query, args)
	if err != nil {
		return nil, err
	}

	if tree == nil {
		// Re-scoped column list: plain tuples, no entity assembly and no
		// eager loading.
		return columnRecords(p.Columns, raw), nil
	}

	recs := assembleRows(raw, tree, unique)
	if err := e.runPending(ctx, tree, recs, p); err != nil {
		return nil, err
	}
	return recs, nil
}

// Count executes the plan's filters as a COUNT(*) aggregation.
func (e *Executor) Count(ctx context.Context, p *plan.Plan) (int, error) {
	rend := newRenderer(e.reg)
	sel, _, err := rend.selectorFor(p, modeCount, "")
	if err != nil {
		return 0, err
	}
	query, args := sel.Query()
	var n int
	if err := e.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count: %w", err)
	}
	return n, nil
}

func (e *Executor) toMany(entity, relation string) bool {
	es := e.reg.Entity(entity)
	if es == nil {
		return false
	}
	rm := es.Relations[relation]
	return rm != nil && rm.ToMany
}

// queryRows runs one statement and scans every row into a generic value
// slice. BLOB-typed text comes back as []byte from the driver and is
// normalized to string.
func (e *Executor) queryRows(ctx context.Context, query string, args []any) ([][]any, error) {
	rows, err := e.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	var out [][]any
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		for i, v := range vals {
			if b, ok := v.([]byte); ok {
				vals[i] = string(b)
			}
		}
		out = append(out, vals)
	}
	return out, rows.Err()
}

// columnRecords shapes re-scoped select rows. Columns are keyed by their
// attribute name; computed expressions fall back to positional names.
func columnRecords(columns []plan.Expr, raw [][]any) []record.Record {
	names := make([]string, len(columns))
	for i, e := range columns {
		if c, ok := e.(plan.Column); ok {
			names[i] = c.Name
		} else {
			names[i] = fmt.Sprintf("col_%d", i+1)
		}
	}
	out := make([]record.Record, 0, len(raw))
	for _, row := range raw {
		rec := record.Record{}
		for i, name := range names {
			if i < len(row) {
				rec[name] = row[i]
			}
		}
		out = append(out, rec)
	}
	return out
}

// ── Joined-row assembly ─────────────────────────────────────────────────────

// assembleRows folds scanned rows back into an entity tree. Each scan
// node's block becomes a record; child blocks attach under their relation
// name, deduplicated by primary-key identity within their parent. Root
// records deduplicate only when unique is set.
func assembleRows(raw [][]any, tree *scanNode, unique bool) []record.Record {
	out := []record.Record{}
	seen := map[string]record.Record{}
	for i, row := range raw {
		assembleNode(row, i, tree, "", nil, &out, seen, unique)
	}
	return out
}

func assembleNode(row []any, rowIdx int, node *scanNode, pathKey string, parent record.Record, out *[]record.Record, seen map[string]record.Record, unique bool) {
	block := row[node.start : node.start+node.width]
	if parent != nil && allNil(block) {
		// Outer join with no match on this branch.
		return
	}

	key := nodeKey(node, block, pathKey, rowIdx, parent == nil && !unique)
	rec, ok := seen[key]
	if !ok {
		rec = record.Record{}
		for i, col := range node.entity.FieldOrder {
			rec[col] = block[i]
		}
		// Joined children always materialize: empty collection or nil.
		for _, c := range node.children {
			if c.toMany {
				rec[c.relation] = []record.Record{}
			} else {
				rec[c.relation] = nil
			}
		}
		seen[key] = rec
		if parent == nil {
			*out = append(*out, rec)
		} else if node.toMany {
			parent[node.relation] = append(parent[node.relation].([]record.Record), rec)
		} else {
			parent[node.relation] = rec
		}
	}

	for _, child := range node.children {
		assembleNode(row, rowIdx, child, key+"|"+child.relation, rec, out, seen, unique)
	}
}

// nodeKey derives the dedup key for one block. Without a full primary
// key (or for non-unique root fetches) the row index keeps every row
// distinct.
func nodeKey(node *scanNode, block []any, pathKey string, rowIdx int, perRow bool) string {
	if perRow {
		return fmt.Sprintf("%s#%d", pathKey, rowIdx)
	}
	pks := node.entity.PrimaryKeys()
	if len(pks) == 0 {
		return fmt.Sprintf("%s#%d", pathKey, rowIdx)
	}
	key := pathKey
	for _, pk := range pks {
		i := fieldIndex(node.entity.FieldOrder, pk)
		if i < 0 || block[i] == nil {
			return fmt.Sprintf("%s#%d", pathKey, rowIdx)
		}
		key += fmt.Sprintf("/%v", block[i])
	}
	return key
}

func fieldIndex(fields []string, name string) int {
	for i, f := range fields {
		if f == name {
			return i
		}
	}
	return -1
}

func allNil(vals []any) bool {
	for _, v := range vals {
		if v != nil {
			return false
		}
	}
	return true
}
