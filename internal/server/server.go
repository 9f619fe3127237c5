// Package server assembles the HTTP routes and starts the server.
package server

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/matthewbaird/smartquery/internal/exec"
	"github.com/matthewbaird/smartquery/internal/handler"
	"github.com/matthewbaird/smartquery/internal/schema"
)

// Config holds server configuration.
type Config struct {
	Port     int
	Registry *schema.Registry
	Executor *exec.Executor
}

// Run starts the HTTP server with all routes registered.
func Run(ctx context.Context, cfg Config) error {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	eh := handler.NewEntityHandler(cfg.Registry, cfg.Executor)
	r.Get("/v1/entities", eh.ListEntities)
	r.Route("/v1/{entity}", func(r chi.Router) {
		r.Get("/", eh.List)
		r.Post("/", eh.Create)
		r.Get("/count", eh.Count)
		r.Get("/{id}", eh.Get)
		r.Patch("/{id}", eh.Update)
		r.Delete("/{id}", eh.Delete)
	})

	addr := fmt.Sprintf(":%d", cfg.Port)
	log.Printf("starting server on %s (%d entities registered)", addr, len(cfg.Registry.EntityNames()))

	server := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		<-ctx.Done()
		server.Shutdown(context.Background())
	}()

	return server.ListenAndServe()
}
