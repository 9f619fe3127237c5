// Package record defines the row representation returned by the execution
// engine: a column map with related records attached under relationship
// names.
package record

import (
	"fmt"
	"strings"

	"github.com/matthewbaird/smartquery/internal/schema"
)

// Record is one fetched entity instance. Column values are keyed by column
// name; eagerly loaded relationships are attached under the relationship
// name as a Record (to-one) or []Record (to-many).
type Record map[string]any

// Get returns the value stored under name, or nil.
func (r Record) Get(name string) any {
	return r[name]
}

// Related returns the to-one record attached under the relationship name,
// or nil when absent or not loaded.
func (r Record) Related(name string) Record {
	rel, _ := r[name].(Record)
	return rel
}

// RelatedAll returns the to-many records attached under the relationship
// name. An unloaded relationship yields nil.
func (r Record) RelatedAll(name string) []Record {
	rels, _ := r[name].([]Record)
	return rels
}

// IdentityKey returns a string key identifying this record by primary key,
// suitable for deduplication. Composite keys join their parts with a
// hyphen. Records with any nil key part have no identity and return
// ("", false).
func (r Record) IdentityKey(es *schema.EntitySchema) (string, bool) {
	pks := es.PrimaryKeys()
	if len(pks) == 0 {
		return "", false
	}
	parts := make([]string, 0, len(pks))
	for _, pk := range pks {
		v, ok := r[pk]
		if !ok || v == nil {
			return "", false
		}
		parts = append(parts, fmt.Sprint(v))
	}
	return strings.Join(parts, "-"), true
}

// IDString renders the primary key in readable form: "1" for a single
// key, "1-2" for a composite key, "None" when the key is unset.
func (r Record) IDString(es *schema.EntitySchema) string {
	key, ok := r.IdentityKey(es)
	if !ok {
		return "None"
	}
	return key
}

// PKValue returns the value of the single primary key column. It fails
// with CompositePrimaryKeyError on composite-key entities.
func (r Record) PKValue(es *schema.EntitySchema) (any, error) {
	pk, err := es.PrimaryKeyName()
	if err != nil {
		return nil, err
	}
	return r[pk], nil
}

// ColumnsOnly returns a copy of the record holding only declared columns,
// dropping attached relationships. Used when building INSERT and UPDATE
// statements.
func (r Record) ColumnsOnly(es *schema.EntitySchema) Record {
	out := make(Record, len(es.FieldOrder))
	for _, col := range es.FieldOrder {
		if v, ok := r[col]; ok {
			out[col] = v
		}
	}
	return out
}
