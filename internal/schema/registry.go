// Package schema provides the entity descriptor registry.
//
// The registry describes every mapped entity: its columns, primary key,
// relationships (with join columns and cardinality) and computed "hybrid"
// attributes. It is populated either programmatically or from CUE
// declarations (see Load) and consumed by the query compilers and the
// execution engine. A populated registry is read-only and safe for
// concurrent use.
package schema

import (
	"fmt"

	"github.com/matthewbaird/smartquery/internal/plan"
)

// FieldType classifies a column for value coercion and operator
// validation at the DSL boundary.
type FieldType int

const (
	FieldString FieldType = iota
	FieldInt
	FieldInt64
	FieldFloat
	FieldBool
	FieldTime
	FieldUUID
)

// String returns the schema-visible type name.
func (ft FieldType) String() string {
	switch ft {
	case FieldString:
		return "string"
	case FieldInt:
		return "int"
	case FieldInt64:
		return "int64"
	case FieldFloat:
		return "float"
	case FieldBool:
		return "bool"
	case FieldTime:
		return "time"
	case FieldUUID:
		return "uuid"
	default:
		return "unknown"
	}
}

// FieldMeta describes a single column on an entity.
type FieldMeta struct {
	Name       string // attribute name, also the column name
	Type       FieldType
	Optional   bool // nullable
	PrimaryKey bool
}

// RelationMeta describes a relationship attribute on an entity.
//
// The join condition is always owner.OwnerColumn = target.RefColumn. For a
// many-to-one relationship (post.user) OwnerColumn is the foreign key and
// RefColumn the target's primary key; for one-to-many (user.posts) the
// columns swap sides.
type RelationMeta struct {
	Name        string
	Target      string // target entity name; must be registered
	ToMany      bool
	ViewOnly    bool
	OwnerColumn string
	RefColumn   string
}

// HybridMeta is a computed property: an expression over the entity's
// columns that can be filtered and sorted like a column. The builder
// receives the qualifier of whichever alias the entity is reached under,
// so one definition serves every join path.
type HybridMeta struct {
	Name string
	Expr func(t plan.Target) plan.Expr
}

// HybridMethodMeta is a computed method: a predicate parameterized by a
// caller-supplied argument, usable in filters only.
type HybridMethodMeta struct {
	Name  string
	Build func(t plan.Target, arg any) plan.Predicate
}

// EntitySchema holds the complete descriptor for one entity.
type EntitySchema struct {
	Name  string // entity name (snake_case, e.g. "post")
	Table string // base table name (e.g. "posts")

	Fields     map[string]*FieldMeta
	FieldOrder []string // declaration order

	Relations     map[string]*RelationMeta
	RelationOrder []string

	Hybrids     map[string]*HybridMeta
	HybridOrder []string

	Methods     map[string]*HybridMethodMeta
	MethodOrder []string
}

// CompositePrimaryKeyError reports use of a single-primary-key accessor on
// an entity whose key spans multiple columns.
type CompositePrimaryKeyError struct {
	Entity string
}

func (e *CompositePrimaryKeyError) Error() string {
	return fmt.Sprintf("entity '%s' has a composite primary key", e.Entity)
}

// Columns returns the column names in declaration order.
func (es *EntitySchema) Columns() []string {
	return append([]string(nil), es.FieldOrder...)
}

// StringColumns returns the names of string-typed columns.
func (es *EntitySchema) StringColumns() []string {
	var out []string
	for _, name := range es.FieldOrder {
		if es.Fields[name].Type == FieldString {
			out = append(out, name)
		}
	}
	return out
}

// PrimaryKeys returns the primary key column names in declaration order.
func (es *EntitySchema) PrimaryKeys() []string {
	var out []string
	for _, name := range es.FieldOrder {
		if es.Fields[name].PrimaryKey {
			out = append(out, name)
		}
	}
	return out
}

// PrimaryKeyName returns the single primary key column name. It fails
// with CompositePrimaryKeyError when the key spans multiple columns.
func (es *EntitySchema) PrimaryKeyName() (string, error) {
	pks := es.PrimaryKeys()
	switch len(pks) {
	case 1:
		return pks[0], nil
	case 0:
		return "", fmt.Errorf("entity '%s' has no primary key", es.Name)
	default:
		return "", &CompositePrimaryKeyError{Entity: es.Name}
	}
}

// SettableRelations returns relationship names that are not view-only.
func (es *EntitySchema) SettableRelations() []string {
	var out []string
	for _, name := range es.RelationOrder {
		if !es.Relations[name].ViewOnly {
			out = append(out, name)
		}
	}
	return out
}

// FilterableAttributes returns every attribute usable in a filter:
// relations, columns, hybrid properties and hybrid methods.
func (es *EntitySchema) FilterableAttributes() []string {
	out := append([]string(nil), es.RelationOrder...)
	out = append(out, es.FieldOrder...)
	out = append(out, es.HybridOrder...)
	return append(out, es.MethodOrder...)
}

// SortableAttributes returns every attribute usable as a sort key:
// columns and hybrid properties.
func (es *EntitySchema) SortableAttributes() []string {
	out := append([]string(nil), es.FieldOrder...)
	return append(out, es.HybridOrder...)
}

// SearchableAttributes returns the attributes usable in text search,
// which are the string columns.
func (es *EntitySchema) SearchableAttributes() []string {
	return es.StringColumns()
}

// AddField appends a column descriptor, keeping declaration order.
func (es *EntitySchema) AddField(fm *FieldMeta) {
	if es.Fields == nil {
		es.Fields = make(map[string]*FieldMeta)
	}
	es.Fields[fm.Name] = fm
	es.FieldOrder = append(es.FieldOrder, fm.Name)
}

// AddRelation appends a relationship descriptor, keeping declaration order.
func (es *EntitySchema) AddRelation(rm *RelationMeta) {
	if es.Relations == nil {
		es.Relations = make(map[string]*RelationMeta)
	}
	es.Relations[rm.Name] = rm
	es.RelationOrder = append(es.RelationOrder, rm.Name)
}

// AddHybrid appends a computed property descriptor.
func (es *EntitySchema) AddHybrid(hm *HybridMeta) {
	if es.Hybrids == nil {
		es.Hybrids = make(map[string]*HybridMeta)
	}
	es.Hybrids[hm.Name] = hm
	es.HybridOrder = append(es.HybridOrder, hm.Name)
}

// AddMethod appends a computed method descriptor.
func (es *EntitySchema) AddMethod(mm *HybridMethodMeta) {
	if es.Methods == nil {
		es.Methods = make(map[string]*HybridMethodMeta)
	}
	es.Methods[mm.Name] = mm
	es.MethodOrder = append(es.MethodOrder, mm.Name)
}

// Registry holds the descriptors for all entities.
type Registry struct {
	entities    map[string]*EntitySchema
	entityOrder []string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{entities: make(map[string]*EntitySchema)}
}

// Register adds an entity descriptor to the registry.
func (r *Registry) Register(es *EntitySchema) {
	r.entities[es.Name] = es
	r.entityOrder = append(r.entityOrder, es.Name)
}

// Entity returns the descriptor for a named entity, or nil if not found.
func (r *Registry) Entity(name string) *EntitySchema {
	return r.entities[name]
}

// EntityNames returns all registered entity names in registration order.
func (r *Registry) EntityNames() []string {
	return append([]string(nil), r.entityOrder...)
}

// Target resolves the target descriptor of a relationship.
func (r *Registry) Target(rm *RelationMeta) *EntitySchema {
	return r.entities[rm.Target]
}

// Validate checks registry-wide invariants: every relationship names a
// registered target entity and its join columns exist on both sides.
func (r *Registry) Validate() error {
	for _, name := range r.entityOrder {
		es := r.entities[name]
		for _, rel := range es.RelationOrder {
			rm := es.Relations[rel]
			target := r.entities[rm.Target]
			if target == nil {
				return fmt.Errorf("entity '%s': relation '%s' targets unregistered entity '%s'", es.Name, rel, rm.Target)
			}
			if es.Fields[rm.OwnerColumn] == nil {
				return fmt.Errorf("entity '%s': relation '%s' owner column '%s' does not exist", es.Name, rel, rm.OwnerColumn)
			}
			if target.Fields[rm.RefColumn] == nil {
				return fmt.Errorf("entity '%s': relation '%s' ref column '%s' does not exist on '%s'", es.Name, rel, rm.RefColumn, rm.Target)
			}
		}
	}
	return nil
}
