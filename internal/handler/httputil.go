package handler

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/matthewbaird/smartquery/internal/exec"
	"github.com/matthewbaird/smartquery/internal/query"
	"github.com/matthewbaird/smartquery/internal/schema"
)

// writeJSON marshals v as JSON and writes it with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("writeJSON encode error: %v", err)
	}
}

// writeError writes a structured JSON error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{
		"error": message,
		"code":  code,
	})
}

// decodeJSON decodes the request body into v.
func decodeJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

// Pagination holds parsed pagination parameters.
type Pagination struct {
	Limit  int
	Offset int
}

// parsePagination extracts limit and offset from query params.
func parsePagination(r *http.Request) Pagination {
	p := Pagination{Limit: 20, Offset: 0}
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			p.Limit = n
		}
	}
	if p.Limit > 100 {
		p.Limit = 100
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			p.Offset = n
		}
	}
	return p
}

// queryErrorToHTTP maps compilation and fetch errors to HTTP responses.
func queryErrorToHTTP(w http.ResponseWriter, err error) {
	var (
		relErr  *query.RelationError
		filtErr *query.NoFilterableError
		sortErr *query.NoSortableError
		colErr  *query.NoColumnOrHybridPropertyError
		opErr   *query.UnknownOperatorError
		joinErr *query.InvalidJoinMethodError
		pkErr   *schema.CompositePrimaryKeyError
	)
	switch {
	case errors.As(err, &relErr), errors.As(err, &filtErr), errors.As(err, &sortErr),
		errors.As(err, &colErr), errors.As(err, &opErr), errors.As(err, &joinErr),
		errors.Is(err, query.ErrInvalidFilter):
		writeError(w, http.StatusBadRequest, "INVALID_QUERY", err.Error())
	case errors.As(err, &pkErr):
		writeError(w, http.StatusBadRequest, "COMPOSITE_PRIMARY_KEY", err.Error())
	case errors.Is(err, query.ErrNoResult):
		writeError(w, http.StatusNotFound, "NOT_FOUND", err.Error())
	case errors.Is(err, query.ErrMultipleResults):
		writeError(w, http.StatusConflict, "MULTIPLE_RESULTS", err.Error())
	case errors.Is(err, exec.ErrNotUnique):
		writeError(w, http.StatusBadRequest, "NOT_UNIQUE", err.Error())
	default:
		log.Printf("internal error: %v", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
	}
}
