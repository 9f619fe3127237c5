package query

import (
	"errors"
	"fmt"
)

// The compilation error taxonomy. Every error here is a usage error
// raised while the plan is being built, before the execution engine is
// ever called; none are transient and none are retried.

// RelationError reports a path hop or eager-schema key that names a
// relationship the entity does not have.
type RelationError struct {
	Entity   string
	Relation string
}

func (e *RelationError) Error() string {
	return fmt.Sprintf("no such relation '%s' on entity '%s'", e.Relation, e.Entity)
}

// NoFilterableError reports a terminal path segment that is not a column,
// hybrid property or hybrid method of the final entity.
type NoFilterableError struct {
	Entity string
	Attr   string
}

func (e *NoFilterableError) Error() string {
	return fmt.Sprintf("attribute '%s' of entity '%s' is not filterable", e.Attr, e.Entity)
}

// NoSortableError reports a sort key that is not a column or hybrid
// property of the final entity.
type NoSortableError struct {
	Entity string
	Attr   string
}

func (e *NoSortableError) Error() string {
	return fmt.Sprintf("attribute '%s' of entity '%s' is not sortable", e.Attr, e.Entity)
}

// NoColumnOrHybridPropertyError reports a group key that is not a column
// or hybrid property of the final entity.
type NoColumnOrHybridPropertyError struct {
	Entity string
	Attr   string
}

func (e *NoColumnOrHybridPropertyError) Error() string {
	return fmt.Sprintf("no column or hybrid property '%s' on entity '%s'", e.Attr, e.Entity)
}

// UnknownOperatorError reports a filter suffix that matches no registered
// operator token.
type UnknownOperatorError struct {
	Token string
}

func (e *UnknownOperatorError) Error() string {
	return fmt.Sprintf("unknown filter operator '%s'", e.Token)
}

// InvalidJoinMethodError reports an eager-schema strategy tag outside the
// three recognized values.
type InvalidJoinMethodError struct {
	Relation string
	Method   string
}

func (e *InvalidJoinMethodError) Error() string {
	return fmt.Sprintf("invalid join method '%s' for relation '%s'", e.Method, e.Relation)
}

// ErrInvalidFilter marks a malformed filter specification shape, such as
// a combinator whose value is not a map or list.
var ErrInvalidFilter = errors.New("invalid filter specification")

// ErrNoResult is returned by One and UniqueOne when the query matched no
// rows.
var ErrNoResult = errors.New("no result found")

// ErrMultipleResults is returned by the one-row fetchers when the query
// matched more than one row.
var ErrMultipleResults = errors.New("multiple results found")
