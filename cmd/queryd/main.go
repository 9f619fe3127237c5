// Command queryd serves the smart-query engine over HTTP for every
// entity declared in a CUE schema file.
package main

import (
	"context"
	"database/sql"
	"flag"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/matthewbaird/smartquery/internal/exec"
	"github.com/matthewbaird/smartquery/internal/schema"
	"github.com/matthewbaird/smartquery/internal/seed"
	"github.com/matthewbaird/smartquery/internal/server"

	_ "modernc.org/sqlite"
)

func main() {
	var (
		schemaPath = flag.String("schema", "schema.cue", "path to the CUE entity schema")
		seedPath   = flag.String("seed", "", "optional YAML fixture to seed on startup")
	)
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		dsn = "file:smartquery.db?_pragma=foreign_keys(1)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		log.Fatalf("opening database: %v", err)
	}
	db.SetMaxOpenConns(1)

	// Enable foreign keys explicitly — required for SQLite.
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		log.Fatalf("enabling foreign keys: %v", err)
	}

	reg, err := schema.LoadFile(*schemaPath)
	if err != nil {
		log.Fatalf("loading schema: %v", err)
	}
	log.Printf("loaded %d entities from %s", len(reg.EntityNames()), *schemaPath)

	ex := exec.New(db, reg)
	if err := ex.CreateTables(ctx, reg); err != nil {
		log.Fatalf("creating tables: %v", err)
	}
	log.Println("database tables created")

	if *seedPath != "" {
		fixture, err := seed.LoadFile(*seedPath)
		if err != nil {
			log.Fatalf("loading seed fixture: %v", err)
		}
		if err := seed.Apply(ctx, ex, reg, fixture); err != nil {
			log.Fatalf("seeding database: %v", err)
		}
	}

	port := 8080
	if p := os.Getenv("PORT"); p != "" {
		if v, err := strconv.Atoi(p); err == nil {
			port = v
		}
	}

	if err := server.Run(ctx, server.Config{
		Port:     port,
		Registry: reg,
		Executor: ex,
	}); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
