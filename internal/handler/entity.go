// Package handler exposes the query engine over HTTP: one generic
// handler serves every registered entity with Django-style filter
// parameters, sorting, pagination and eager-load schemas.
package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/matthewbaird/smartquery/internal/exec"
	"github.com/matthewbaird/smartquery/internal/query"
	"github.com/matthewbaird/smartquery/internal/record"
	"github.com/matthewbaird/smartquery/internal/repo"
	"github.com/matthewbaird/smartquery/internal/schema"
)

// Reserved query parameters; everything else is a filter expression.
var reservedParams = map[string]bool{
	"sort":   true,
	"limit":  true,
	"offset": true,
	"with":   true,
	"unique": true,
}

// EntityHandler serves CRUD plus smart queries for every entity in the
// registry.
type EntityHandler struct {
	reg *schema.Registry
	ex  *exec.Executor
}

// NewEntityHandler creates the handler.
func NewEntityHandler(reg *schema.Registry, ex *exec.Executor) *EntityHandler {
	return &EntityHandler{reg: reg, ex: ex}
}

func (h *EntityHandler) repo(w http.ResponseWriter, r *http.Request) (*repo.Repo, bool) {
	name := chi.URLParam(r, "entity")
	rp, err := repo.New(h.reg, h.ex, name)
	if err != nil {
		writeError(w, http.StatusNotFound, "UNKNOWN_ENTITY", "unknown entity: "+name)
		return nil, false
	}
	return rp, true
}

// ListEntities describes the registered entities.
func (h *EntityHandler) ListEntities(w http.ResponseWriter, r *http.Request) {
	out := []map[string]any{}
	for _, name := range h.reg.EntityNames() {
		es := h.reg.Entity(name)
		out = append(out, map[string]any{
			"name":      name,
			"table":     es.Table,
			"columns":   es.Columns(),
			"relations": es.RelationOrder,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// List runs a smart query over one entity. Every non-reserved query
// parameter is a Django-style filter expression; sort takes a comma list
// of prefix-signed attributes; with takes a JSON eager-load schema.
func (h *EntityHandler) List(w http.ResponseWriter, r *http.Request) {
	rp, ok := h.repo(w, r)
	if !ok {
		return
	}

	q := rp.Query()
	filters := filterParams(r)
	if len(filters) > 0 {
		q = q.Where(filters)
	}
	if s := r.URL.Query().Get("sort"); s != "" {
		items := []any{}
		for _, part := range strings.Split(s, ",") {
			items = append(items, strings.TrimSpace(part))
		}
		q = q.OrderBy(items...)
	}
	if raw := r.URL.Query().Get("with"); raw != "" {
		var s map[string]any
		if err := json.Unmarshal([]byte(raw), &s); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_QUERY", "with: "+err.Error())
			return
		}
		q = q.WithSchema(query.Schema(s))
	}
	p := parsePagination(r)
	q = q.Limit(p.Limit).Offset(p.Offset)

	var (
		recs []record.Record
		err  error
	)
	if r.URL.Query().Get("unique") == "true" {
		recs, err = q.UniqueAll(r.Context())
	} else {
		recs, err = q.All(r.Context())
	}
	if err != nil {
		queryErrorToHTTP(w, err)
		return
	}
	writeJSON(w, http.StatusOK, recs)
}

// Count returns the number of rows matching the filter parameters.
func (h *EntityHandler) Count(w http.ResponseWriter, r *http.Request) {
	rp, ok := h.repo(w, r)
	if !ok {
		return
	}
	filters := filterParams(r)
	q := rp.Query()
	if len(filters) > 0 {
		q = q.Where(filters)
	}
	n, err := q.Count(r.Context())
	if err != nil {
		queryErrorToHTTP(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"count": n})
}

// Get fetches one row by primary key.
func (h *EntityHandler) Get(w http.ResponseWriter, r *http.Request) {
	rp, ok := h.repo(w, r)
	if !ok {
		return
	}
	rec, err := rp.Get(r.Context(), coerceScalar(chi.URLParam(r, "id")))
	if err != nil {
		queryErrorToHTTP(w, err)
		return
	}
	if rec == nil {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "no such row")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// Create inserts one row from the JSON body.
func (h *EntityHandler) Create(w http.ResponseWriter, r *http.Request) {
	rp, ok := h.repo(w, r)
	if !ok {
		return
	}
	var body map[string]any
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error())
		return
	}
	rec, err := rp.Create(r.Context(), record.Record(body))
	if err != nil {
		queryErrorToHTTP(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

// Update rewrites columns of one row from the JSON body.
func (h *EntityHandler) Update(w http.ResponseWriter, r *http.Request) {
	rp, ok := h.repo(w, r)
	if !ok {
		return
	}
	pkName, err := rp.Schema().PrimaryKeyName()
	if err != nil {
		queryErrorToHTTP(w, err)
		return
	}
	var body map[string]any
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error())
		return
	}
	rec := record.Record(body)
	rec[pkName] = coerceScalar(chi.URLParam(r, "id"))
	if err := rp.Update(r.Context(), rec); err != nil {
		queryErrorToHTTP(w, err)
		return
	}
	updated, err := rp.Get(r.Context(), rec[pkName])
	if err != nil {
		queryErrorToHTTP(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// Delete removes one row by primary key.
func (h *EntityHandler) Delete(w http.ResponseWriter, r *http.Request) {
	rp, ok := h.repo(w, r)
	if !ok {
		return
	}
	pkName, err := rp.Schema().PrimaryKeyName()
	if err != nil {
		queryErrorToHTTP(w, err)
		return
	}
	rec := record.Record{pkName: coerceScalar(chi.URLParam(r, "id"))}
	if err := rp.Delete(r.Context(), rec); err != nil {
		queryErrorToHTTP(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// filterParams collects every non-reserved query parameter as a filter
// expression. List-valued operators split on commas.
func filterParams(r *http.Request) query.F {
	filters := query.F{}
	for key, vals := range r.URL.Query() {
		if reservedParams[key] || len(vals) == 0 {
			continue
		}
		_, op := query.SplitOperator(key)
		switch op {
		case "in", "notin", "between":
			parts := strings.Split(vals[0], ",")
			list := make([]any, len(parts))
			for i, p := range parts {
				list[i] = coerceScalar(strings.TrimSpace(p))
			}
			filters[key] = list
		case "isnull":
			filters[key] = vals[0] == "true"
		default:
			filters[key] = coerceScalar(vals[0])
		}
	}
	return filters
}

// coerceScalar guesses the Go type of a parameter value: integer, float,
// boolean, then string. UUIDs are normalized to their canonical lowercase
// form, matching their storage.
func coerceScalar(s string) any {
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	if s == "true" {
		return true
	}
	if s == "false" {
		return false
	}
	if id, err := uuid.Parse(s); err == nil && len(s) == 36 {
		return id.String()
	}
	return s
}
