package query

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/openfroyo/pathq/pkg/errdefs"
)

// IndexType identifies the value type accepted by an index.
type IndexType string

const (
	// TypeInt is a signed integer index.
	TypeInt IndexType = "int"

	// TypeString is a free-form string index.
	TypeString IndexType = "string"

	// TypeGUID is a UUID index.
	TypeGUID IndexType = "guid"
)

// Index is a single bracketed index of a part. It holds either a literal
// value of its declared type or the name of a variable, never both.
type Index struct {
	typ      IndexType
	value    any
	variable string
}

// Literal returns an index carrying a converted literal value.
func Literal(t IndexType, value any) Index {
	return Index{typ: t, value: value}
}

// Variable returns an index referring to a named variable.
func Variable(t IndexType, name string) Index {
	return Index{typ: t, variable: name}
}

// Type returns the declared index type.
func (i Index) Type() IndexType { return i.typ }

// IsVariable reports whether the index refers to a variable.
func (i Index) IsVariable() bool { return i.variable != "" }

// VariableName returns the referenced variable name, or "" for literals.
func (i Index) VariableName() string { return i.variable }

// Value returns the literal value, or nil for variables.
func (i Index) Value() any { return i.value }

// Equal reports structural equality.
func (i Index) Equal(o Index) bool {
	return i.typ == o.typ && i.variable == o.variable && i.value == o.value
}

// String renders the index with the default syntax.
func (i Index) String() string {
	var b strings.Builder
	defaultParser.writeIndex(&b, i)
	return b.String()
}

// Part is a named step of a query with zero or more indices.
type Part struct {
	name    string
	indices []Index
}

// NewPart creates a part. The indices slice is copied.
func NewPart(name string, indices ...Index) Part {
	return Part{name: name, indices: slices.Clone(indices)}
}

// Name returns the part name.
func (p Part) Name() string { return p.name }

// Indices returns a copy of the part's indices.
func (p Part) Indices() []Index { return slices.Clone(p.indices) }

// Index returns the i-th index.
func (p Part) Index(i int) Index { return p.indices[i] }

// NumIndices returns the number of indices.
func (p Part) NumIndices() int { return len(p.indices) }

// Enumerate reports whether the part carries indices.
func (p Part) Enumerate() bool { return len(p.indices) > 0 }

// WithIndices returns a copy of the part carrying the given indices instead.
func (p Part) WithIndices(indices ...Index) Part {
	return NewPart(p.name, indices...)
}

// Equal reports structural equality.
func (p Part) Equal(o Part) bool {
	return p.name == o.name && slices.EqualFunc(p.indices, o.indices, Index.Equal)
}

func (p Part) containsVariable() bool {
	return slices.ContainsFunc(p.indices, Index.IsVariable)
}

// Query is an ordered, non-empty sequence of parts.
type Query struct {
	parts []Part
}

// New creates a query from parts. It fails when no part is given or a part
// has an empty name.
func New(parts ...Part) (Query, error) {
	if len(parts) == 0 {
		return Query{}, errdefs.NewParseError("query has no parts", nil).
			WithCode(errdefs.ErrCodeEmptySegment)
	}
	for _, p := range parts {
		if p.name == "" {
			return Query{}, errdefs.NewParseError("query part has an empty name", nil).
				WithCode(errdefs.ErrCodeEmptySegment)
		}
	}
	return Query{parts: slices.Clone(parts)}, nil
}

// MustNew is like New but panics on error. Intended for tests and static tables.
func MustNew(parts ...Part) Query {
	q, err := New(parts...)
	if err != nil {
		panic(err)
	}
	return q
}

// Parts returns a copy of the query parts.
func (q Query) Parts() []Part { return slices.Clone(q.parts) }

// Part returns the i-th part.
func (q Query) Part(i int) Part { return q.parts[i] }

// Len returns the number of parts.
func (q Query) Len() int { return len(q.parts) }

// IsZero reports whether q is the zero Query.
func (q Query) IsZero() bool { return len(q.parts) == 0 }

// ContainsVariable reports whether any index refers to a variable.
func (q Query) ContainsVariable() bool {
	return slices.ContainsFunc(q.parts, Part.containsVariable)
}

// Names returns the part names in order.
func (q Query) Names() []string {
	names := make([]string, len(q.parts))
	for i, p := range q.parts {
		names[i] = p.name
	}
	return names
}

// Slice returns the sub-query of parts [from, to). The second result is false
// when the range is empty.
func (q Query) Slice(from, to int) (Query, bool) {
	if from < 0 || to > len(q.parts) || from >= to {
		return Query{}, false
	}
	return Query{parts: slices.Clone(q.parts[from:to])}, true
}

// Equal reports structural equality.
func (q Query) Equal(o Query) bool {
	return slices.EqualFunc(q.parts, o.parts, Part.Equal)
}

// String renders the query with the default syntax.
func (q Query) String() string {
	return defaultParser.Render(q)
}

// Key returns an unambiguous encoding of the query. Two queries have the same
// key exactly when they are Equal, which String does not guarantee once
// string values contain separator or bracket characters.
func (q Query) Key() string {
	var b strings.Builder
	for i, p := range q.parts {
		if i > 0 {
			b.WriteByte('/')
		}
		b.WriteString(strconv.Quote(p.name))
		for _, idx := range p.indices {
			b.WriteByte('[')
			b.WriteString(string(idx.typ))
			if idx.variable != "" {
				b.WriteString(":$")
				b.WriteString(strconv.Quote(idx.variable))
			} else {
				b.WriteByte(':')
				b.WriteString(strconv.Quote(fmt.Sprintf("%T %v", idx.value, idx.value)))
			}
			b.WriteByte(']')
		}
	}
	return b.String()
}

// VariableResolver supplies values for variable indices.
// ok is false when the variable is unknown to the resolver.
type VariableResolver interface {
	Resolve(ctx context.Context, name string) (value string, ok bool, err error)
}

// VariableResolverFunc adapts a function to VariableResolver.
type VariableResolverFunc func(ctx context.Context, name string) (string, bool, error)

// Resolve implements VariableResolver.
func (f VariableResolverFunc) Resolve(ctx context.Context, name string) (string, bool, error) {
	return f(ctx, name)
}
