package catalog

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/openfroyo/pathq/pkg/errdefs"
	"github.com/openfroyo/pathq/pkg/query"
)

//go:embed default.yaml
var defaultCatalog []byte

// File is the YAML form of a catalog.
type File struct {
	Endpoints []Entry `yaml:"endpoints"`
}

// Entry is one endpoint in a catalog file.
type Entry struct {
	Path     string   `yaml:"path"`
	Public   bool     `yaml:"public,omitempty"`
	Requires []string `yaml:"requires,omitempty"`
}

// Default returns the built-in catalog parsed with the default syntax.
func Default() *Catalog {
	c, err := Parse(defaultCatalog, nil)
	if err != nil {
		panic(fmt.Sprintf("built-in catalog is invalid: %v", err))
	}
	return c
}

// DefaultFor returns the built-in catalog parsed with a custom parser.
func DefaultFor(parser *query.Parser) (*Catalog, error) {
	return Parse(defaultCatalog, parser)
}

// Load reads a catalog file.
func Load(path string, parser *query.Parser) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errdefs.NewConfigurationError(fmt.Sprintf("failed to read catalog %s", path), err)
	}
	return Parse(data, parser)
}

// Parse decodes a catalog from YAML.
func Parse(data []byte, parser *query.Parser) (*Catalog, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, errdefs.NewConfigurationError("failed to parse catalog", err)
	}

	endpoints := make([]Endpoint, 0, len(f.Endpoints))
	for _, entry := range f.Endpoints {
		e, err := ParseEndpoint(entry.Path, parser)
		if err != nil {
			return nil, err
		}
		e.Public = entry.Public
		e.Requires = entry.Requires
		endpoints = append(endpoints, e)
	}
	return New(endpoints...)
}
