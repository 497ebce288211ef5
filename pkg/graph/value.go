package graph

import (
	"fmt"

	"github.com/openfroyo/pathq/pkg/query"
)

// dataNode adapts decoded data (maps, slices and scalars) to Node so that
// remaining indices and sub-queries can be applied to fetched values.
type dataNode struct {
	v any
}

// Value wraps a fetched value as a Node. Values that already implement Node
// are returned unchanged.
//
// Supported shapes:
//
//	map[string]any    named children, STRING and GUID indices by key
//	map[any]any       named children, any index by key
//	[]any, []map[string]any, []string, []int
//	                  INT indices by position
//
// Every other value is a leaf.
func Value(v any) Node {
	if n, ok := v.(Node); ok {
		return n
	}
	return dataNode{v: v}
}

// Unwrap returns the data carried by a node created with Value. Other nodes
// are returned as is.
func Unwrap(n Node) any {
	if d, ok := n.(dataNode); ok {
		return d.v
	}
	return n
}

func (d dataNode) Child(name string) (Node, bool) {
	var (
		child any
		ok    bool
	)
	switch m := d.v.(type) {
	case map[string]any:
		child, ok = m[name]
	case map[any]any:
		child, ok = m[name]
	}
	if !ok || child == nil {
		return nil, false
	}
	return Value(child), true
}

func (d dataNode) AcceptsIndex(t query.IndexType) bool {
	switch d.v.(type) {
	case map[string]any:
		return t == query.TypeString || t == query.TypeGUID
	case map[any]any:
		return true
	case []any, []map[string]any, []string, []int:
		return t == query.TypeInt
	}
	return false
}

func (d dataNode) IndexedChild(t query.IndexType, value any) (Node, bool) {
	var (
		child any
		ok    bool
	)
	switch c := d.v.(type) {
	case map[string]any:
		child, ok = c[fmt.Sprint(value)]
	case map[any]any:
		if child, ok = c[value]; !ok {
			child, ok = c[fmt.Sprint(value)]
		}
	case []any:
		child, ok = at(c, value)
	case []map[string]any:
		var m map[string]any
		if m, ok = at(c, value); ok {
			child = m
		}
	case []string:
		child, ok = at(c, value)
	case []int:
		child, ok = at(c, value)
	}
	if !ok || child == nil {
		return nil, false
	}
	return Value(child), true
}

func at[T any](items []T, value any) (T, bool) {
	var zero T
	i, ok := value.(int)
	if !ok || i < 0 || i >= len(items) {
		return zero, false
	}
	return items[i], true
}
