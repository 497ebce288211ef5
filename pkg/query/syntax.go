package query

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/openfroyo/pathq/pkg/errdefs"
)

// Syntax holds the structural tokens of the query grammar.
type Syntax struct {
	Separator      string `yaml:"separator" json:"separator" validate:"required"`
	IndexOpen      string `yaml:"index_open" json:"index_open" validate:"required"`
	IndexClose     string `yaml:"index_close" json:"index_close" validate:"required"`
	TypeSeparator  string `yaml:"type_separator" json:"type_separator" validate:"required"`
	VariableMarker string `yaml:"variable_marker" json:"variable_marker" validate:"required"`
	OptionalTag    string `yaml:"optional_tag" json:"optional_tag" validate:"required"`
}

// DefaultSyntax returns the default token set.
func DefaultSyntax() Syntax {
	return Syntax{
		Separator:      ".",
		IndexOpen:      "[",
		IndexClose:     "]",
		TypeSeparator:  ":",
		VariableMarker: "$",
		OptionalTag:    "OPTIONAL",
	}
}

func (s Syntax) structural() map[string]string {
	return map[string]string{
		"separator":       s.Separator,
		"index_open":      s.IndexOpen,
		"index_close":     s.IndexClose,
		"type_separator":  s.TypeSeparator,
		"variable_marker": s.VariableMarker,
	}
}

// Validate checks that every token is set and that no two structural tokens
// overlap. The optional tag must not contain any structural token.
func (s Syntax) Validate() error {
	if err := validator.New().Struct(s); err != nil {
		return errdefs.NewConfigurationError("invalid query syntax", err).
			WithCode(errdefs.ErrCodeInvalidSettings)
	}

	tokens := s.structural()
	names := []string{"separator", "index_open", "index_close", "type_separator", "variable_marker"}
	for i, a := range names {
		for _, b := range names[i+1:] {
			if strings.Contains(tokens[a], tokens[b]) || strings.Contains(tokens[b], tokens[a]) {
				return errdefs.NewConfigurationError(
					fmt.Sprintf("syntax tokens %s (%q) and %s (%q) overlap", a, tokens[a], b, tokens[b]), nil).
					WithCode(errdefs.ErrCodeInvalidSettings)
			}
		}
	}
	for _, name := range names {
		if strings.Contains(s.OptionalTag, tokens[name]) {
			return errdefs.NewConfigurationError(
				fmt.Sprintf("optional tag %q contains %s token %q", s.OptionalTag, name, tokens[name]), nil).
				WithCode(errdefs.ErrCodeInvalidSettings)
		}
	}
	return nil
}

// checkTags verifies that the registry's type tags are usable with this syntax.
func (s Syntax) checkTags(r *Registry) error {
	for _, tag := range r.Tags() {
		if strings.EqualFold(tag, s.OptionalTag) {
			return errdefs.NewConfigurationError(
				fmt.Sprintf("type tag %q collides with the optional tag", tag), nil).
				WithCode(errdefs.ErrCodeInvalidSettings)
		}
		for name, tok := range s.structural() {
			if strings.Contains(tag, tok) {
				return errdefs.NewConfigurationError(
					fmt.Sprintf("type tag %q contains %s token %q", tag, name, tok), nil).
					WithCode(errdefs.ErrCodeInvalidSettings)
			}
		}
	}
	return nil
}
