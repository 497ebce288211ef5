// Package catalog holds the static descriptors of recognized remote endpoints
// and the capability requirements attached to them.
//
// An endpoint descriptor uses the query syntax with index type lists in place
// of index values:
//
//	Account.Bank[OPTIONAL:INT]
//	Characters[OPTIONAL:INT:STRING]
//	Guild[GUID]
//	Pvp.Stats
//
// A part without brackets is directly fetchable. A bracketed part is
// enumerable with the listed index types, and also directly fetchable when the
// list contains the optional tag.
package catalog

import (
	"fmt"
	"slices"
	"strings"

	"github.com/openfroyo/pathq/pkg/errdefs"
	"github.com/openfroyo/pathq/pkg/query"
)

// Part is one step of an endpoint descriptor.
type Part struct {
	Name              string
	DirectlyFetchable bool
	IndexTypes        []query.IndexType
}

// Enumerable reports whether the part accepts indices.
func (p Part) Enumerable() bool { return len(p.IndexTypes) > 0 }

// Accepts reports whether the part accepts indices of type t.
func (p Part) Accepts(t query.IndexType) bool { return slices.Contains(p.IndexTypes, t) }

// Validate checks that the part is usable.
func (p Part) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return errdefs.NewConfigurationError("endpoint part has an empty name", nil)
	}
	if !p.DirectlyFetchable && !p.Enumerable() {
		return errdefs.NewConfigurationError(
			fmt.Sprintf("endpoint part %s must be directly fetchable or enumerable", p.Name), nil)
	}
	return nil
}

// Supports reports whether a query part addresses this endpoint part. An
// indexed query part needs an enumerable endpoint part accepting the type of
// its first index. A plain query part needs a directly fetchable one.
func (p Part) Supports(qp query.Part) bool {
	if qp.Name() != p.Name {
		return false
	}
	if qp.Enumerate() {
		return p.Enumerable() && p.Accepts(qp.Index(0).Type())
	}
	return p.DirectlyFetchable
}

// Endpoint describes a recognized remote resource.
type Endpoint struct {
	Parts []Part

	// Public endpoints need no authorization.
	Public bool

	// Requires lists the capabilities a caller needs. Empty for public
	// endpoints and for authorized endpoints whose requirements are unknown.
	Requires []string
}

// Names returns the part names.
func (e Endpoint) Names() []string {
	names := make([]string, len(e.Parts))
	for i, p := range e.Parts {
		names[i] = p.Name
	}
	return names
}

// Supports reports whether q addresses this endpoint or something below it.
func (e Endpoint) Supports(q query.Query) bool {
	if q.Len() < len(e.Parts) {
		return false
	}
	for i, p := range e.Parts {
		if !p.Supports(q.Part(i)) {
			return false
		}
	}
	return true
}

// namesPrefix reports whether the endpoint's names prefix those of q.
func (e Endpoint) namesPrefix(q query.Query) bool {
	if q.Len() < len(e.Parts) {
		return false
	}
	for i, p := range e.Parts {
		if q.Part(i).Name() != p.Name {
			return false
		}
	}
	return true
}

// Format renders the descriptor with the given syntax and registry.
func (e Endpoint) Format(syntax query.Syntax, registry *query.Registry) string {
	var b strings.Builder
	for i, p := range e.Parts {
		if i > 0 {
			b.WriteString(syntax.Separator)
		}
		b.WriteString(p.Name)
		if !p.Enumerable() {
			continue
		}
		var tokens []string
		if p.DirectlyFetchable {
			tokens = append(tokens, syntax.OptionalTag)
		}
		for _, t := range p.IndexTypes {
			tag := string(t)
			if c, ok := registry.ForType(t); ok {
				tag = c.Tags()[0]
			}
			tokens = append(tokens, tag)
		}
		b.WriteString(syntax.IndexOpen)
		b.WriteString(strings.Join(tokens, syntax.TypeSeparator))
		b.WriteString(syntax.IndexClose)
	}
	return b.String()
}

// String renders the descriptor with the default syntax.
func (e Endpoint) String() string {
	p := query.DefaultParser()
	return e.Format(p.Syntax(), p.Registry())
}

// ParseEndpoint parses a descriptor using the parser's syntax and registry.
func ParseEndpoint(text string, parser *query.Parser) (Endpoint, error) {
	if parser == nil {
		parser = query.DefaultParser()
	}
	syn := parser.Syntax()

	if strings.TrimSpace(text) == "" {
		return Endpoint{}, errdefs.NewConfigurationError("endpoint descriptor is empty", nil)
	}

	var e Endpoint
	for _, raw := range strings.Split(text, syn.Separator) {
		part, err := parsePart(raw, parser)
		if err != nil {
			return Endpoint{}, errdefs.NewConfigurationError(
				fmt.Sprintf("invalid endpoint descriptor %q", text), err)
		}
		e.Parts = append(e.Parts, part)
	}
	return e, nil
}

func parsePart(raw string, parser *query.Parser) (Part, error) {
	syn := parser.Syntax()

	name, rest, bracketed := strings.Cut(raw, syn.IndexOpen)
	if !bracketed {
		if strings.Contains(raw, syn.IndexClose) {
			return Part{}, fmt.Errorf("unexpected %q in %q", syn.IndexClose, raw)
		}
		p := Part{Name: raw, DirectlyFetchable: true}
		return p, p.Validate()
	}

	body, ok := strings.CutSuffix(rest, syn.IndexClose)
	if !ok || strings.Contains(body, syn.IndexOpen) || strings.Contains(body, syn.IndexClose) {
		return Part{}, fmt.Errorf("unbalanced brackets in %q", raw)
	}
	if body == "" {
		return Part{}, fmt.Errorf("empty index list in %q", raw)
	}

	p := Part{Name: name}
	for _, tag := range strings.Split(body, syn.TypeSeparator) {
		if strings.EqualFold(tag, syn.OptionalTag) {
			p.DirectlyFetchable = true
			continue
		}
		conv, ok := parser.Registry().Lookup(tag)
		if !ok {
			return Part{}, fmt.Errorf("unknown index type %q in %q", tag, raw)
		}
		if !p.Accepts(conv.Type()) {
			p.IndexTypes = append(p.IndexTypes, conv.Type())
		}
	}
	if !p.Enumerable() {
		return Part{}, fmt.Errorf("index list of %q names no type", raw)
	}
	return p, p.Validate()
}

// Catalog is an immutable list of endpoint descriptors.
type Catalog struct {
	endpoints []Endpoint
}

// New creates a catalog after validating every endpoint.
func New(endpoints ...Endpoint) (*Catalog, error) {
	for _, e := range endpoints {
		if len(e.Parts) == 0 {
			return nil, errdefs.NewConfigurationError("endpoint has no parts", nil)
		}
		for _, p := range e.Parts {
			if err := p.Validate(); err != nil {
				return nil, err
			}
		}
	}
	return &Catalog{endpoints: slices.Clone(endpoints)}, nil
}

// Endpoints returns a copy of the descriptors.
func (c *Catalog) Endpoints() []Endpoint {
	if c == nil {
		return nil
	}
	return slices.Clone(c.endpoints)
}

// Len returns the number of descriptors.
func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.endpoints)
}

// Match returns the longest endpoint supporting q.
func (c *Catalog) Match(q query.Query) (Endpoint, bool) {
	return c.longest(q, Endpoint.Supports)
}

// Lookup returns the endpoint whose names equal names, ignoring indices.
func (c *Catalog) Lookup(names []string) (Endpoint, bool) {
	if c == nil {
		return Endpoint{}, false
	}
	for _, e := range c.endpoints {
		if slices.Equal(e.Names(), names) {
			return e, true
		}
	}
	return Endpoint{}, false
}

func (c *Catalog) longest(q query.Query, match func(Endpoint, query.Query) bool) (Endpoint, bool) {
	if c == nil {
		return Endpoint{}, false
	}
	best, found := Endpoint{}, false
	for _, e := range c.endpoints {
		if match(e, q) && (!found || len(e.Parts) > len(best.Parts)) {
			best, found = e, true
		}
	}
	return best, found
}

// ValidateIndices checks the index types of q against the longest endpoint
// whose names prefix q. Queries that no descriptor names are left to the live
// graph and pass.
func (c *Catalog) ValidateIndices(q query.Query) error {
	e, ok := c.longest(q, Endpoint.namesPrefix)
	if !ok || e.Supports(q) {
		return nil
	}
	for i, p := range e.Parts {
		qp := q.Part(i)
		if p.Supports(qp) {
			continue
		}
		if qp.Enumerate() {
			return errdefs.NewResolveError(
				fmt.Sprintf("%s does not accept a %s index", p.Name, qp.Index(0).Type()), nil).
				WithCode(errdefs.ErrCodeShapeMismatch).
				WithDetail("endpoint", e.String())
		}
		return errdefs.NewResolveError(
			fmt.Sprintf("%s requires an index", p.Name), nil).
			WithCode(errdefs.ErrCodeShapeMismatch).
			WithDetail("endpoint", e.String())
	}
	return nil
}
