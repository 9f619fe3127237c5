// Package repo provides the per-entity active-record facade: chainable
// query shortcuts plus CRUD against the execution engine.
package repo

import (
	"context"
	"fmt"

	"github.com/matthewbaird/smartquery/internal/exec"
	"github.com/matthewbaird/smartquery/internal/query"
	"github.com/matthewbaird/smartquery/internal/record"
	"github.com/matthewbaird/smartquery/internal/schema"
)

// Repo binds one entity to an executor.
type Repo struct {
	reg *schema.Registry
	ex  *exec.Executor
	es  *schema.EntitySchema
}

// New returns the repository for the named entity.
func New(reg *schema.Registry, ex *exec.Executor, entity string) (*Repo, error) {
	es := reg.Entity(entity)
	if es == nil {
		return nil, fmt.Errorf("unknown entity '%s'", entity)
	}
	return &Repo{reg: reg, ex: ex, es: es}, nil
}

// Schema returns the entity's descriptor.
func (r *Repo) Schema() *schema.EntitySchema { return r.es }

// Query starts a fresh chainable query over the entity.
func (r *Repo) Query() *query.Query {
	q, _ := query.New(r.reg, r.ex, r.es.Name)
	return q
}

// ── Query shortcuts ─────────────────────────────────────────────────────────

// Where starts a query filtered by the given criteria.
func (r *Repo) Where(specs ...any) *query.Query { return r.Query().Where(specs...) }

// Find is a synonym for Where.
func (r *Repo) Find(specs ...any) *query.Query { return r.Query().Where(specs...) }

// Sort starts a query ordered by the given attributes.
func (r *Repo) Sort(items ...any) *query.Query { return r.Query().OrderBy(items...) }

// Join starts a query with joined eager loads of direct relationships.
func (r *Repo) Join(paths ...any) *query.Query { return r.Query().Join(paths...) }

// WithSubquery starts a query with separate-statement eager loads of
// direct relationships.
func (r *Repo) WithSubquery(paths ...any) *query.Query { return r.Query().WithSubquery(paths...) }

// WithSchema starts a query with a nested eager-load schema.
func (r *Repo) WithSchema(s query.Schema) *query.Query { return r.Query().WithSchema(s) }

// All fetches every row of the entity.
func (r *Repo) All(ctx context.Context) ([]record.Record, error) { return r.Query().All(ctx) }

// First fetches the first row in primary-key order, or nil when the
// table is empty.
func (r *Repo) First(ctx context.Context) (record.Record, error) {
	q := r.Query()
	for _, pk := range r.es.PrimaryKeys() {
		q = q.OrderBy(pk)
	}
	return q.First(ctx)
}

// Count returns the number of rows.
func (r *Repo) Count(ctx context.Context) (int, error) { return r.Query().Count(ctx) }

// ── Primary-key fetchers ────────────────────────────────────────────────────

// Get fetches one row by primary key, or nil when it does not exist.
// Entities with composite primary keys are rejected.
func (r *Repo) Get(ctx context.Context, pk any) (record.Record, error) {
	name, err := r.es.PrimaryKeyName()
	if err != nil {
		return nil, err
	}
	return r.Query().Where(query.F{name: pk}).OneOrNone(ctx)
}

// GetOrFail fetches one row by primary key, failing with ErrNoResult
// when it does not exist.
func (r *Repo) GetOrFail(ctx context.Context, pk any) (record.Record, error) {
	name, err := r.es.PrimaryKeyName()
	if err != nil {
		return nil, err
	}
	return r.Query().Where(query.F{name: pk}).One(ctx)
}

// ── CRUD ────────────────────────────────────────────────────────────────────

// Create inserts a record, filling a driver-assigned integer primary key
// when the record did not carry one.
func (r *Repo) Create(ctx context.Context, rec record.Record) (record.Record, error) {
	return r.ex.Insert(ctx, r.es, rec)
}

// Update rewrites the record's non-key columns, matched by primary key.
func (r *Repo) Update(ctx context.Context, rec record.Record) error {
	return r.ex.Update(ctx, r.es, rec)
}

// Delete removes the record by primary key.
func (r *Repo) Delete(ctx context.Context, rec record.Record) error {
	return r.ex.Delete(ctx, r.es, rec)
}

// CreateAll inserts the records in one transaction.
func (r *Repo) CreateAll(ctx context.Context, recs []record.Record) error {
	return r.ex.InsertAll(ctx, r.es, recs)
}

// DeleteAll removes the records in one transaction.
func (r *Repo) DeleteAll(ctx context.Context, recs []record.Record) error {
	return r.ex.DeleteAll(ctx, r.es, recs)
}

// Destroy removes rows by primary key value in one transaction. Entities
// with composite primary keys are rejected.
func (r *Repo) Destroy(ctx context.Context, pks ...any) error {
	name, err := r.es.PrimaryKeyName()
	if err != nil {
		return err
	}
	recs := make([]record.Record, len(pks))
	for i, pk := range pks {
		recs[i] = record.Record{name: pk}
	}
	return r.ex.DeleteAll(ctx, r.es, recs)
}
