// Package vars provides query.VariableResolver implementations: fixed
// values, environment variables, Starlark scripts and chains of those.
package vars

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/openfroyo/pathq/pkg/errdefs"
	"github.com/openfroyo/pathq/pkg/query"
)

// Static resolves variables from a fixed map.
type Static map[string]string

// Resolve implements query.VariableResolver.
func (s Static) Resolve(_ context.Context, name string) (string, bool, error) {
	v, ok := s[name]
	return v, ok, nil
}

// ParseAssignments builds a Static resolver from "name=value" pairs, as
// given on the command line.
func ParseAssignments(pairs []string) (Static, error) {
	s := make(Static, len(pairs))
	for _, pair := range pairs {
		name, value, ok := strings.Cut(pair, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, configError("variable assignment %q must have the form name=value", pair)
		}
		s[name] = value
	}
	return s, nil
}

// Env resolves a variable from the environment variable Prefix + upper-cased
// name, so with prefix "PATHQ_" the variable accountId reads PATHQ_ACCOUNTID.
type Env struct {
	Prefix string

	// Lookup defaults to os.LookupEnv.
	Lookup func(key string) (string, bool)
}

// Resolve implements query.VariableResolver.
func (e Env) Resolve(_ context.Context, name string) (string, bool, error) {
	lookup := e.Lookup
	if lookup == nil {
		lookup = os.LookupEnv
	}
	v, ok := lookup(e.Prefix + strings.ToUpper(name))
	return v, ok, nil
}

// Chain asks each resolver in order and returns the first value found.
// An error from any resolver stops the chain.
type Chain []query.VariableResolver

// Resolve implements query.VariableResolver.
func (c Chain) Resolve(ctx context.Context, name string) (string, bool, error) {
	for _, r := range c {
		if r == nil {
			continue
		}
		v, ok, err := r.Resolve(ctx, name)
		if err != nil {
			return "", false, err
		}
		if ok {
			return v, true, nil
		}
	}
	return "", false, nil
}

func configError(format string, args ...any) error {
	return errdefs.NewConfigurationError(fmt.Sprintf(format, args...), nil)
}
