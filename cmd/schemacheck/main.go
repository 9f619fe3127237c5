// cmd/schemacheck validates consistency between a CUE entity schema and
// a live SQLite database: every declared entity must have its table, and
// every declared column must exist with a compatible affinity.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/matthewbaird/smartquery/internal/schema"

	_ "modernc.org/sqlite"
)

func main() {
	log.SetFlags(0)
	log.SetPrefix("schemacheck: ")

	var (
		schemaPath = flag.String("schema", "schema.cue", "path to the CUE entity schema")
		dsn        = flag.String("db", "", "database DSN (defaults to DATABASE_URL)")
	)
	flag.Parse()

	if *dsn == "" {
		*dsn = os.Getenv("DATABASE_URL")
	}
	if *dsn == "" {
		log.Fatal("no database given: set -db or DATABASE_URL")
	}

	reg, err := schema.LoadFile(*schemaPath)
	if err != nil {
		log.Fatalf("loading schema: %v", err)
	}

	db, err := sql.Open("sqlite", *dsn)
	if err != nil {
		log.Fatalf("opening database: %v", err)
	}
	defer db.Close()

	ctx := context.Background()
	drift := 0
	for _, name := range reg.EntityNames() {
		es := reg.Entity(name)
		cols, err := tableColumns(ctx, db, es.Table)
		if err != nil {
			log.Fatalf("inspecting table '%s': %v", es.Table, err)
		}
		if len(cols) == 0 {
			fmt.Printf("MISSING TABLE: '%s' (entity '%s')\n", es.Table, name)
			drift++
			continue
		}
		for _, col := range es.FieldOrder {
			declared, ok := cols[col]
			if !ok {
				fmt.Printf("MISSING COLUMN: %s.%s\n", es.Table, col)
				drift++
				continue
			}
			want := affinity(es.Fields[col].Type)
			if !strings.EqualFold(declared, want) {
				fmt.Printf("TYPE DRIFT: %s.%s is %s, schema wants %s\n", es.Table, col, declared, want)
				drift++
			}
		}
	}

	if drift > 0 {
		log.Fatalf("%d drift issue(s) found", drift)
	}
	fmt.Println("schemacheck: OK — database matches schema")
}

// tableColumns returns the declared type per column, empty when the
// table does not exist.
func tableColumns(ctx context.Context, db *sql.DB, table string) (map[string]string, error) {
	rows, err := db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(`%s`)", table))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols := map[string]string{}
	for rows.Next() {
		var (
			cid        int
			name, typ  string
			notnull    int
			dflt       sql.NullString
			pk         int
		)
		if err := rows.Scan(&cid, &name, &typ, &notnull, &dflt, &pk); err != nil {
			return nil, err
		}
		cols[name] = typ
	}
	return cols, rows.Err()
}

func affinity(t schema.FieldType) string {
	switch t {
	case schema.FieldInt, schema.FieldInt64, schema.FieldBool:
		return "INTEGER"
	case schema.FieldFloat:
		return "REAL"
	default:
		return "TEXT"
	}
}
