package query

import (
	"errors"
	"fmt"
	"strings"

	"github.com/openfroyo/pathq/pkg/errdefs"
)

// Parser converts query text to Query values and back.
type Parser struct {
	syntax   Syntax
	registry *Registry
}

var defaultParser = MustNewParser(DefaultSyntax(), DefaultRegistry())

// NewParser creates a parser after validating the syntax against the registry.
func NewParser(syntax Syntax, registry *Registry) (*Parser, error) {
	if registry == nil {
		registry = DefaultRegistry()
	}
	if err := syntax.Validate(); err != nil {
		return nil, err
	}
	if err := syntax.checkTags(registry); err != nil {
		return nil, err
	}
	return &Parser{syntax: syntax, registry: registry}, nil
}

// MustNewParser is like NewParser but panics on error.
func MustNewParser(syntax Syntax, registry *Registry) *Parser {
	p, err := NewParser(syntax, registry)
	if err != nil {
		panic(err)
	}
	return p
}

// DefaultParser returns the parser using DefaultSyntax and DefaultRegistry.
func DefaultParser() *Parser { return defaultParser }

// Parse parses query text using the default parser.
func Parse(text string) (Query, error) { return defaultParser.Parse(text) }

// Syntax returns the parser's token set.
func (p *Parser) Syntax() Syntax { return p.syntax }

// Registry returns the parser's converter registry.
func (p *Parser) Registry() *Registry { return p.registry }

// Parse parses query text.
func (p *Parser) Parse(text string) (Query, error) {
	s := scanner{p: p, text: text}
	q, err := s.query()
	if err != nil {
		var e *errdefs.Error
		if errors.As(err, &e) {
			e.WithQuery(text)
		}
		return Query{}, err
	}
	return q, nil
}

// Render produces the canonical text of q. Aliased type tags are rendered
// with their primary tag.
func (p *Parser) Render(q Query) string {
	var b strings.Builder
	for i, part := range q.parts {
		if i > 0 {
			b.WriteString(p.syntax.Separator)
		}
		b.WriteString(part.name)
		for _, idx := range part.indices {
			p.writeIndex(&b, idx)
		}
	}
	return b.String()
}

func (p *Parser) writeIndex(b *strings.Builder, idx Index) {
	tag := string(idx.typ)
	conv, ok := p.registry.ForType(idx.typ)
	if ok {
		tag = conv.Tags()[0]
	}

	b.WriteString(p.syntax.IndexOpen)
	b.WriteString(tag)
	b.WriteString(p.syntax.TypeSeparator)
	switch {
	case idx.IsVariable():
		b.WriteString(p.syntax.VariableMarker)
		b.WriteString(idx.variable)
	case ok:
		b.WriteString(conv.Format(idx.value))
	default:
		fmt.Fprint(b, idx.value)
	}
	b.WriteString(p.syntax.IndexClose)
}

// scanner walks query text left to right.
type scanner struct {
	p    *Parser
	text string
	pos  int
}

func (s *scanner) rest() string { return s.text[s.pos:] }

func (s *scanner) errorf(code, format string, args ...any) error {
	return errdefs.NewParseError(fmt.Sprintf(format, args...), nil).
		WithCode(code).
		WithDetail("offset", s.pos)
}

func (s *scanner) query() (Query, error) {
	if s.text == "" {
		return Query{}, s.errorf(errdefs.ErrCodeEmptySegment, "query is empty")
	}

	var parts []Part
	for {
		part, err := s.part()
		if err != nil {
			return Query{}, err
		}
		parts = append(parts, part)

		if s.pos == len(s.text) {
			break
		}
		sep := s.p.syntax.Separator
		if !strings.HasPrefix(s.rest(), sep) {
			if strings.HasPrefix(s.rest(), s.p.syntax.IndexClose) {
				return Query{}, s.errorf(errdefs.ErrCodeUnbalancedBracket, "unexpected %q", s.p.syntax.IndexClose)
			}
			return Query{}, s.errorf(errdefs.ErrCodeUnexpectedToken, "expected %q after part %q", sep, part.name)
		}
		s.pos += len(sep)
		if s.pos == len(s.text) {
			return Query{}, s.errorf(errdefs.ErrCodeEmptySegment, "query ends with a separator")
		}
	}
	return Query{parts: parts}, nil
}

func (s *scanner) part() (Part, error) {
	syn := s.p.syntax
	end := len(s.text)
	for _, tok := range []string{syn.Separator, syn.IndexOpen} {
		if i := strings.Index(s.rest(), tok); i >= 0 && s.pos+i < end {
			end = s.pos + i
		}
	}
	name := s.text[s.pos:end]
	if strings.Contains(name, syn.IndexClose) {
		s.pos += strings.Index(name, syn.IndexClose)
		return Part{}, s.errorf(errdefs.ErrCodeUnbalancedBracket, "unexpected %q", syn.IndexClose)
	}
	if name == "" {
		return Part{}, s.errorf(errdefs.ErrCodeEmptySegment, "empty part name")
	}
	s.pos = end

	var indices []Index
	for strings.HasPrefix(s.rest(), syn.IndexOpen) {
		s.pos += len(syn.IndexOpen)
		closeAt := strings.Index(s.rest(), syn.IndexClose)
		if closeAt < 0 {
			return Part{}, s.errorf(errdefs.ErrCodeUnbalancedBracket, "missing %q in part %q", syn.IndexClose, name)
		}
		body := s.text[s.pos : s.pos+closeAt]
		if strings.Contains(body, syn.IndexOpen) {
			return Part{}, s.errorf(errdefs.ErrCodeUnbalancedBracket, "nested %q in part %q", syn.IndexOpen, name)
		}
		idx, err := s.index(body)
		if err != nil {
			return Part{}, err
		}
		indices = append(indices, idx)
		s.pos += closeAt + len(syn.IndexClose)
	}
	return Part{name: name, indices: indices}, nil
}

func (s *scanner) index(body string) (Index, error) {
	syn := s.p.syntax
	if body == "" {
		return Index{}, s.errorf(errdefs.ErrCodeEmptySegment, "empty index")
	}
	tag, value, found := strings.Cut(body, syn.TypeSeparator)
	if !found {
		return Index{}, s.errorf(errdefs.ErrCodeUnknownType, "index %q has no type tag", body)
	}
	if tag == "" {
		return Index{}, s.errorf(errdefs.ErrCodeEmptySegment, "index %q has an empty type tag", body)
	}
	if value == "" {
		return Index{}, s.errorf(errdefs.ErrCodeEmptySegment, "index %q has an empty value", body)
	}

	conv, ok := s.p.registry.Lookup(tag)
	if !ok {
		return Index{}, s.errorf(errdefs.ErrCodeUnknownType, "unknown type tag %q", tag)
	}

	if name, isVar := strings.CutPrefix(value, syn.VariableMarker); isVar {
		if name == "" {
			return Index{}, s.errorf(errdefs.ErrCodeEmptySegment, "index %q has an empty variable name", body)
		}
		return Variable(conv.Type(), name), nil
	}

	v, err := conv.Convert(value)
	if err != nil {
		return Index{}, errdefs.NewParseError(fmt.Sprintf("%q is not a valid %s literal", value, tag), err).
			WithCode(errdefs.ErrCodeBadLiteral).
			WithDetail("offset", s.pos)
	}
	return Literal(conv.Type(), v), nil
}
