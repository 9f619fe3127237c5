package exec

import (
	"context"
	"fmt"
	"strings"

	"github.com/matthewbaird/smartquery/internal/schema"
)

// CreateTables generates and runs CREATE TABLE IF NOT EXISTS statements
// for every registered entity, in registration-name order. Intended for
// the demo server and tests; production schemas are expected to be
// migrated outside this package.
func (e *Executor) CreateTables(ctx context.Context, reg *schema.Registry) error {
	for _, name := range reg.EntityNames() {
		es := reg.Entity(name)
		stmt := createTableSQL(es)
		if _, err := e.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create table '%s': %w", es.Table, err)
		}
	}
	return nil
}

func createTableSQL(es *schema.EntitySchema) string {
	pks := es.PrimaryKeys()
	singleIntPK := len(pks) == 1 && isIntegerField(es, pks[0])

	var defs []string
	for _, col := range es.FieldOrder {
		fm := es.Fields[col]
		def := fmt.Sprintf("`%s` %s", col, sqliteType(fm.Type))
		if singleIntPK && col == pks[0] {
			def += " PRIMARY KEY AUTOINCREMENT"
		} else if !fm.Optional && !fm.PrimaryKey {
			def += " NOT NULL"
		}
		defs = append(defs, def)
	}
	if !singleIntPK && len(pks) > 0 {
		quoted := make([]string, len(pks))
		for i, pk := range pks {
			quoted[i] = "`" + pk + "`"
		}
		defs = append(defs, "PRIMARY KEY ("+strings.Join(quoted, ", ")+")")
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS `%s` (%s)", es.Table, strings.Join(defs, ", "))
}

func isIntegerField(es *schema.EntitySchema, col string) bool {
	fm := es.Fields[col]
	return fm != nil && (fm.Type == schema.FieldInt || fm.Type == schema.FieldInt64)
}

// sqliteType maps field types to SQLite column affinities. Datetimes are
// stored as ISO-8601 text so the strftime date-part operators apply
// directly.
func sqliteType(t schema.FieldType) string {
	switch t {
	case schema.FieldInt, schema.FieldInt64, schema.FieldBool:
		return "INTEGER"
	case schema.FieldFloat:
		return "REAL"
	default:
		return "TEXT"
	}
}
