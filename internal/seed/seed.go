// Package seed loads demo rows from a YAML fixture into the database.
package seed

import (
	"context"
	"fmt"
	"log"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/matthewbaird/smartquery/internal/exec"
	"github.com/matthewbaird/smartquery/internal/record"
	"github.com/matthewbaird/smartquery/internal/schema"
)

// Fixture maps entity names to their seed rows.
type Fixture map[string][]map[string]any

// LoadFile parses a YAML fixture from disk.
func LoadFile(path string) (Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading fixture: %w", err)
	}
	var f Fixture
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing fixture: %w", err)
	}
	return f, nil
}

// Apply inserts the fixture's rows, entity by entity in registration
// order so parents land before the rows referencing them. Entities that
// already contain rows are skipped to keep seeding idempotent.
func Apply(ctx context.Context, ex *exec.Executor, reg *schema.Registry, f Fixture) error {
	for _, name := range reg.EntityNames() {
		rows := f[name]
		if len(rows) == 0 {
			continue
		}
		es := reg.Entity(name)
		var n int
		if err := ex.DB().QueryRowContext(ctx, "SELECT COUNT(*) FROM `"+es.Table+"`").Scan(&n); err != nil {
			return fmt.Errorf("checking '%s': %w", name, err)
		}
		if n > 0 {
			log.Printf("'%s' already seeded (%d rows found), skipping", name, n)
			continue
		}
		recs := make([]record.Record, len(rows))
		for i, row := range rows {
			recs[i] = record.Record(row)
		}
		if err := ex.InsertAll(ctx, es, recs); err != nil {
			return fmt.Errorf("seeding '%s': %w", name, err)
		}
		log.Printf("seeded %d '%s' rows", len(recs), name)
	}
	return nil
}
