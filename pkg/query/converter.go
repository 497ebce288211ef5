package query

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/openfroyo/pathq/pkg/errdefs"
)

// Converter turns index text into a typed value and back.
type Converter interface {
	// Type returns the index type produced by Convert.
	Type() IndexType

	// Tags returns the type tags accepted in query text. The first tag is
	// the primary one used when rendering.
	Tags() []string

	// Convert parses index text.
	Convert(text string) (any, error)

	// Format renders a value previously returned by Convert.
	Format(value any) string
}

type intConverter struct{}

func (intConverter) Type() IndexType { return TypeInt }
func (intConverter) Tags() []string  { return []string{"INTEGER", "INT"} }

func (intConverter) Convert(text string) (any, error) {
	return strconv.Atoi(text)
}

func (intConverter) Format(value any) string {
	return fmt.Sprint(value)
}

type stringConverter struct{}

func (stringConverter) Type() IndexType                  { return TypeString }
func (stringConverter) Tags() []string                   { return []string{"STRING", "STR"} }
func (stringConverter) Convert(text string) (any, error) { return text, nil }
func (stringConverter) Format(value any) string          { return fmt.Sprint(value) }

type guidConverter struct{}

func (guidConverter) Type() IndexType { return TypeGUID }
func (guidConverter) Tags() []string  { return []string{"GUID"} }

func (guidConverter) Convert(text string) (any, error) {
	return uuid.Parse(text)
}

func (guidConverter) Format(value any) string {
	if id, ok := value.(uuid.UUID); ok {
		return id.String()
	}
	return fmt.Sprint(value)
}

// IntConverter returns the converter for INTEGER/INT indices.
func IntConverter() Converter { return intConverter{} }

// StringConverter returns the converter for STRING/STR indices.
func StringConverter() Converter { return stringConverter{} }

// GUIDConverter returns the converter for GUID indices.
func GUIDConverter() Converter { return guidConverter{} }

// Registry holds the converters known to a parser.
type Registry struct {
	byTag  map[string]Converter
	byType map[IndexType]Converter
	order  []Converter
}

// NewRegistry creates a registry. Tags are matched case-insensitively and must
// be unique, and each index type may only be registered once.
func NewRegistry(converters ...Converter) (*Registry, error) {
	r := &Registry{
		byTag:  make(map[string]Converter),
		byType: make(map[IndexType]Converter),
	}
	for _, c := range converters {
		if _, dup := r.byType[c.Type()]; dup {
			return nil, errdefs.NewConfigurationError(
				fmt.Sprintf("duplicate converter for type %s", c.Type()), nil).
				WithCode(errdefs.ErrCodeInvalidSettings)
		}
		if len(c.Tags()) == 0 {
			return nil, errdefs.NewConfigurationError(
				fmt.Sprintf("converter for type %s has no tags", c.Type()), nil).
				WithCode(errdefs.ErrCodeInvalidSettings)
		}
		for _, tag := range c.Tags() {
			key := strings.ToUpper(tag)
			if key == "" {
				return nil, errdefs.NewConfigurationError("empty type tag", nil).
					WithCode(errdefs.ErrCodeInvalidSettings)
			}
			if _, dup := r.byTag[key]; dup {
				return nil, errdefs.NewConfigurationError(
					fmt.Sprintf("duplicate type tag %q", tag), nil).
					WithCode(errdefs.ErrCodeInvalidSettings)
			}
			r.byTag[key] = c
		}
		r.byType[c.Type()] = c
		r.order = append(r.order, c)
	}
	return r, nil
}

// DefaultRegistry returns a registry with the INT, STRING and GUID converters.
func DefaultRegistry() *Registry {
	r, err := NewRegistry(IntConverter(), StringConverter(), GUIDConverter())
	if err != nil {
		panic(err)
	}
	return r
}

// Lookup finds the converter registered for a type tag.
func (r *Registry) Lookup(tag string) (Converter, bool) {
	c, ok := r.byTag[strings.ToUpper(tag)]
	return c, ok
}

// ForType finds the converter registered for an index type.
func (r *Registry) ForType(t IndexType) (Converter, bool) {
	c, ok := r.byType[t]
	return c, ok
}

// Tags returns every registered tag in registration order.
func (r *Registry) Tags() []string {
	var tags []string
	for _, c := range r.order {
		tags = append(tags, c.Tags()...)
	}
	return tags
}

// Types returns the registered index types in registration order.
func (r *Registry) Types() []IndexType {
	types := make([]IndexType, len(r.order))
	for i, c := range r.order {
		types[i] = c.Type()
	}
	return types
}

// HasType reports whether t is registered.
func (r *Registry) HasType(t IndexType) bool {
	return slices.Contains(r.Types(), t)
}

// Value returns the concrete value of an index. Literals are returned as is.
// Variables are looked up through vars and converted with the registered
// converter. An unknown variable yields a resolve error and an unconvertible
// value yields a parse error. A nil vars with a variable index is a
// configuration error.
func (r *Registry) Value(ctx context.Context, idx Index, vars VariableResolver) (any, error) {
	if !idx.IsVariable() {
		return idx.Value(), nil
	}
	if vars == nil {
		return nil, errdefs.NewConfigurationError(
			fmt.Sprintf("variable %q used without a variable resolver", idx.VariableName()), nil).
			WithCode(errdefs.ErrCodeMissingResolver)
	}

	text, ok, err := vars.Resolve(ctx, idx.VariableName())
	if err != nil {
		return nil, errdefs.NewResolveError(
			fmt.Sprintf("failed to resolve variable %q", idx.VariableName()), err).
			WithCode(errdefs.ErrCodeUnresolvedVariable)
	}
	if !ok {
		return nil, errdefs.NewResolveError(
			fmt.Sprintf("variable %q could not be resolved", idx.VariableName()), nil).
			WithCode(errdefs.ErrCodeUnresolvedVariable)
	}

	conv, found := r.ForType(idx.Type())
	if !found {
		return nil, errdefs.NewParseError(
			fmt.Sprintf("no converter for index type %s", idx.Type()), nil).
			WithCode(errdefs.ErrCodeUnknownType)
	}
	v, err := conv.Convert(text)
	if err != nil {
		return nil, errdefs.NewParseError(
			fmt.Sprintf("variable %q value %q is not a valid %s", idx.VariableName(), text, idx.Type()), err).
			WithCode(errdefs.ErrCodeBadLiteral)
	}
	return v, nil
}
