package query

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/matthewbaird/smartquery/internal/plan"
)

// F is one group of Django-style keyword filters. Keys are attribute
// paths with an optional operator suffix ("user___age__gte"); the special
// keys OrKey and AndKey hold a nested filter specification combined
// disjunctively or conjunctively. Keys within one group combine with AND.
type F map[string]any

// Combinator marker keys for explicit boolean grouping inside a filter
// specification.
const (
	OrKey  = "or_"
	AndKey = "and_"
)

// filterNode is the parsed form of a filter specification: raw map keys
// are parsed exactly once, then compiled recursively.
type filterNode interface{ filterNode() }

// leafNode is a single "path__operator" keyword entry.
type leafNode struct {
	Key   string
	Value any
}

func (leafNode) filterNode() {}

// groupNode combines child nodes with OR or AND.
type groupNode struct {
	Or       bool
	Children []filterNode
}

func (groupNode) filterNode() {}

// parseFilterSpec normalizes a filter specification into nodes. Accepted
// shapes: F / map[string]any, []F, []map[string]any, []any of those. The
// nodes of the returned slice combine with AND.
func parseFilterSpec(spec any) ([]filterNode, error) {
	switch s := spec.(type) {
	case F:
		return parseFilterMap(s)
	case map[string]any:
		return parseFilterMap(s)
	case []F:
		var nodes []filterNode
		for _, el := range s {
			children, err := parseFilterMap(el)
			if err != nil {
				return nil, err
			}
			nodes = append(nodes, children...)
		}
		return nodes, nil
	case []map[string]any:
		var nodes []filterNode
		for _, el := range s {
			children, err := parseFilterMap(el)
			if err != nil {
				return nil, err
			}
			nodes = append(nodes, children...)
		}
		return nodes, nil
	case []any:
		var nodes []filterNode
		for _, el := range s {
			children, err := parseFilterSpec(el)
			if err != nil {
				return nil, err
			}
			nodes = append(nodes, children...)
		}
		return nodes, nil
	default:
		return nil, fmt.Errorf("%w: unexpected node of type %T", ErrInvalidFilter, spec)
	}
}

// parseFilterMap parses one keyword group. Keys are visited in sorted
// order so that alias allocation and plan output are deterministic
// regardless of map iteration order.
func parseFilterMap(m map[string]any) ([]filterNode, error) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var nodes []filterNode
	for _, k := range keys {
		v := m[k]
		switch k {
		case OrKey, AndKey:
			children, err := parseFilterSpec(v)
			if err != nil {
				return nil, fmt.Errorf("combinator '%s': %w", k, err)
			}
			nodes = append(nodes, groupNode{Or: k == OrKey, Children: children})
		default:
			nodes = append(nodes, leafNode{Key: k, Value: v})
		}
	}
	return nodes, nil
}

// FlattenFilterKeys returns every leaf key of a filter specification,
// in compilation order. Useful for validating a spec without a resolver.
func FlattenFilterKeys(spec any) ([]string, error) {
	nodes, err := parseFilterSpec(spec)
	if err != nil {
		return nil, err
	}
	var keys []string
	var walk func(ns []filterNode)
	walk = func(ns []filterNode) {
		for _, n := range ns {
			switch n := n.(type) {
			case leafNode:
				keys = append(keys, n.Key)
			case groupNode:
				walk(n.Children)
			}
		}
	}
	walk(nodes)
	return keys, nil
}

// CompileFilters compiles a filter specification into predicates using
// the resolver's alias table. The returned predicates combine with AND;
// explicit OrKey/AndKey groups become nested Or/And predicates. One
// predicate is produced per leaf key.
func CompileFilters(res *Resolver, spec any) ([]plan.Predicate, error) {
	nodes, err := parseFilterSpec(spec)
	if err != nil {
		return nil, err
	}
	return compileNodes(res, nodes)
}

func compileNodes(res *Resolver, nodes []filterNode) ([]plan.Predicate, error) {
	var preds []plan.Predicate
	for _, n := range nodes {
		switch n := n.(type) {
		case leafNode:
			p, err := compileLeaf(res, n)
			if err != nil {
				return nil, err
			}
			preds = append(preds, p)
		case groupNode:
			children, err := compileNodes(res, n.Children)
			if err != nil {
				return nil, err
			}
			if n.Or {
				preds = append(preds, plan.Or{Preds: children})
			} else {
				preds = append(preds, plan.And{Preds: children})
			}
		}
	}
	return preds, nil
}

func compileLeaf(res *Resolver, n leafNode) (plan.Predicate, error) {
	path, token := SplitOperator(n.Key)

	opFn, err := Operator(token)
	if err != nil {
		return nil, err
	}

	attr, err := res.Resolve(path)
	if err != nil {
		var missing *noAttrError
		if errors.As(err, &missing) {
			return nil, &NoFilterableError{Entity: missing.Entity, Attr: missing.Attr}
		}
		return nil, err
	}

	if attr.Method != nil {
		return attr.Method.Build(attr.Target, n.Value), nil
	}
	return opFn(attr.Expr(), n.Value)
}

// SplitOperator splits a filter key into its attribute path and operator
// token. The split happens at the last double-underscore whose suffix
// names a registered operator; otherwise the whole key is the path and
// the operator defaults to equality.
func SplitOperator(key string) (path, token string) {
	if i := strings.LastIndex(key, OperatorSeparator); i > 0 {
		suffix := key[i+len(OperatorSeparator):]
		if IsOperator(suffix) {
			return key[:i], suffix
		}
	}
	return key, DefaultOperator
}
