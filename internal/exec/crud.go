package exec

import (
	"context"
	"database/sql"
	"fmt"
	"sort"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"

	"github.com/matthewbaird/smartquery/internal/record"
	"github.com/matthewbaird/smartquery/internal/schema"
)

// execer abstracts *sql.DB and *sql.Tx so single-row statements run the
// same inside and outside a transaction.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Insert writes one record and returns it with a driver-assigned integer
// primary key filled in when the record did not carry one.
func (e *Executor) Insert(ctx context.Context, es *schema.EntitySchema, rec record.Record) (record.Record, error) {
	return e.insertOn(ctx, e.db, es, rec)
}

func (e *Executor) insertOn(ctx context.Context, on execer, es *schema.EntitySchema, rec record.Record) (record.Record, error) {
	cols, vals := presentColumns(es, rec)
	if len(cols) == 0 {
		return nil, fmt.Errorf("insert into '%s': no columns set", es.Name)
	}
	b := entsql.Dialect(dialect.SQLite).Insert(es.Table).Columns(cols...).Values(vals...)
	query, args := b.Query()
	res, err := on.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("insert into '%s': %w", es.Name, err)
	}

	pks := es.PrimaryKeys()
	if len(pks) == 1 && rec[pks[0]] == nil {
		if fm := es.Fields[pks[0]]; fm != nil && (fm.Type == schema.FieldInt || fm.Type == schema.FieldInt64) {
			id, err := res.LastInsertId()
			if err == nil {
				rec[pks[0]] = id
			}
		}
	}
	return rec, nil
}

// Update rewrites every non-key column present on the record, matched by
// primary key.
func (e *Executor) Update(ctx context.Context, es *schema.EntitySchema, rec record.Record) error {
	return e.updateOn(ctx, e.db, es, rec)
}

func (e *Executor) updateOn(ctx context.Context, on execer, es *schema.EntitySchema, rec record.Record) error {
	pred, err := pkPredicate(es, rec)
	if err != nil {
		return err
	}
	b := entsql.Dialect(dialect.SQLite).Update(es.Table)
	pkSet := map[string]bool{}
	for _, pk := range es.PrimaryKeys() {
		pkSet[pk] = true
	}
	n := 0
	for _, col := range es.FieldOrder {
		if pkSet[col] {
			continue
		}
		if v, ok := rec[col]; ok {
			b.Set(col, v)
			n++
		}
	}
	if n == 0 {
		return nil
	}
	b.Where(pred)
	query, args := b.Query()
	if _, err := on.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("update '%s': %w", es.Name, err)
	}
	return nil
}

// Delete removes one record by primary key.
func (e *Executor) Delete(ctx context.Context, es *schema.EntitySchema, rec record.Record) error {
	return e.deleteOn(ctx, e.db, es, rec)
}

func (e *Executor) deleteOn(ctx context.Context, on execer, es *schema.EntitySchema, rec record.Record) error {
	pred, err := pkPredicate(es, rec)
	if err != nil {
		return err
	}
	b := entsql.Dialect(dialect.SQLite).Delete(es.Table).Where(pred)
	query, args := b.Query()
	if _, err := on.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("delete from '%s': %w", es.Name, err)
	}
	return nil
}

// InsertAll writes the records in one transaction; any failure rolls the
// whole batch back.
func (e *Executor) InsertAll(ctx context.Context, es *schema.EntitySchema, recs []record.Record) error {
	return e.WithTx(ctx, func(tx *sql.Tx) error {
		for _, rec := range recs {
			if _, err := e.insertOn(ctx, tx, es, rec); err != nil {
				return err
			}
		}
		return nil
	})
}

// DeleteAll removes the records in one transaction; any failure rolls
// the whole batch back.
func (e *Executor) DeleteAll(ctx context.Context, es *schema.EntitySchema, recs []record.Record) error {
	return e.WithTx(ctx, func(tx *sql.Tx) error {
		for _, rec := range recs {
			if err := e.deleteOn(ctx, tx, es, rec); err != nil {
				return err
			}
		}
		return nil
	})
}

// WithTx runs fn inside a transaction, committing on nil and rolling
// back on error or panic.
func (e *Executor) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if r := recover(); r != nil {
			_ = tx.Rollback()
			panic(r)
		}
	}()
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// presentColumns returns the schema columns the record actually carries,
// in sorted order so statements are deterministic.
func presentColumns(es *schema.EntitySchema, rec record.Record) ([]string, []any) {
	var cols []string
	for _, col := range es.FieldOrder {
		if _, ok := rec[col]; ok {
			cols = append(cols, col)
		}
	}
	sort.Strings(cols)
	vals := make([]any, len(cols))
	for i, c := range cols {
		vals[i] = rec[c]
	}
	return cols, vals
}

// pkPredicate builds the primary-key match for one record. Every key
// column must be set.
func pkPredicate(es *schema.EntitySchema, rec record.Record) (*entsql.Predicate, error) {
	pks := es.PrimaryKeys()
	if len(pks) == 0 {
		return nil, fmt.Errorf("entity '%s' has no primary key", es.Name)
	}
	preds := make([]*entsql.Predicate, 0, len(pks))
	for _, pk := range pks {
		v, ok := rec[pk]
		if !ok || v == nil {
			return nil, fmt.Errorf("entity '%s': primary key column '%s' is not set", es.Name, pk)
		}
		preds = append(preds, entsql.EQ(pk, v))
	}
	if len(preds) == 1 {
		return preds[0], nil
	}
	return entsql.And(preds...), nil
}
