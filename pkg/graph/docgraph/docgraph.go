// Package docgraph builds an in-memory capability graph from a YAML document.
// It backs the command line tool and serves as a fixture in tests.
//
// Example document:
//
//	nodes:
//	  Account:
//	    fetch: one
//	    data: {Name: "Zed.1234"}
//	    children:
//	      Bank:
//	        fetch: all
//	        failures: [server_error]
//	        data: [{Id: 10}, {Id: 11}]
//	  Characters:
//	    fetch: all
//	    index: [string]
//	    data: {Zed: {Level: 80}}
//	    items:
//	      "*":
//	        fetch: one
//	        data: {Level: 80}
//
// fetch is one of "one", "all", "both" or "none". A node with fetch "none"
// is still an endpoint but cannot be cached. Nodes without a fetch key are
// plain nodes. authorized marks an endpoint as requiring an authorized
// caller. failures lists transport kinds returned by the first fetches
// before data is served.
package docgraph

import (
	"context"
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/openfroyo/pathq/pkg/errdefs"
	"github.com/openfroyo/pathq/pkg/graph"
	"github.com/openfroyo/pathq/pkg/query"
)

// Document is the root of a graph description.
type Document struct {
	Nodes map[string]*NodeSpec `yaml:"nodes"`
}

// NodeSpec describes one node.
type NodeSpec struct {
	Fetch      string               `yaml:"fetch,omitempty"`
	Authorized bool                 `yaml:"authorized,omitempty"`
	Data       any                  `yaml:"data,omitempty"`
	Failures   []string             `yaml:"failures,omitempty"`
	Children   map[string]*NodeSpec `yaml:"children,omitempty"`
	Index      []query.IndexType    `yaml:"index,omitempty"`
	Items      map[string]*NodeSpec `yaml:"items,omitempty"`
}

// Wildcard is the items key used for any index value without an explicit entry.
const Wildcard = "*"

// Load reads a graph description from a file.
func Load(path string) (graph.Node, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errdefs.NewConfigurationError(fmt.Sprintf("failed to read graph file %s", path), err)
	}
	return Parse(data)
}

// Parse builds a graph from YAML.
func Parse(data []byte) (graph.Node, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, errdefs.NewConfigurationError("failed to parse graph document", err)
	}
	return Build(&doc)
}

// Build builds a graph from a decoded document.
func Build(doc *Document) (graph.Node, error) {
	root := graph.NewObject()
	for name, spec := range doc.Nodes {
		node, err := build(name, spec)
		if err != nil {
			return nil, err
		}
		root.Set(name, node)
	}
	return root, nil
}

func build(path string, spec *NodeSpec) (graph.Node, error) {
	if spec == nil {
		spec = &NodeSpec{}
	}

	var obj *graph.Object
	var node graph.Node
	switch spec.Fetch {
	case "":
		obj = graph.NewObject()
		node = obj
	case "one", "all", "both", "none":
		src := &source{data: spec.Data}
		for _, f := range spec.Failures {
			kind := errdefs.TransportKind(f)
			switch kind {
			case errdefs.KindRateLimit, errdefs.KindServerError, errdefs.KindServiceUnavailable, errdefs.KindOther:
			default:
				return nil, errdefs.NewConfigurationError(fmt.Sprintf("node %s: unknown failure kind %q", path, f), nil)
			}
			src.failures = append(src.failures, kind)
		}
		var all, one graph.FetchFunc
		if spec.Fetch == "all" || spec.Fetch == "both" {
			all = src.fetch(path)
		}
		if spec.Fetch == "one" || spec.Fetch == "both" {
			one = src.fetch(path)
		}
		res := graph.NewResource(path, all, one)
		if spec.Authorized {
			res.RequireAuthorization()
		}
		obj = res.Object
		node = res
	default:
		return nil, errdefs.NewConfigurationError(fmt.Sprintf("node %s: unknown fetch mode %q", path, spec.Fetch), nil)
	}

	for name, childSpec := range spec.Children {
		child, err := build(path+"."+name, childSpec)
		if err != nil {
			return nil, err
		}
		obj.Set(name, child)
	}

	items := make(map[string]graph.Node, len(spec.Items))
	for key, itemSpec := range spec.Items {
		item, err := build(fmt.Sprintf("%s[%s]", path, key), itemSpec)
		if err != nil {
			return nil, err
		}
		items[key] = item
	}
	for _, t := range spec.Index {
		obj.Index(t, func(value any) (graph.Node, bool) {
			if n, ok := items[fmt.Sprint(value)]; ok {
				return n, true
			}
			n, ok := items[Wildcard]
			return n, ok
		})
	}
	return node, nil
}

// source serves data after replaying scripted failures.
type source struct {
	mu       sync.Mutex
	data     any
	failures []errdefs.TransportKind
}

func (s *source) fetch(path string) graph.FetchFunc {
	return func(ctx context.Context) (any, error) {
		if err := ctx.Err(); err != nil {
			return nil, errdefs.NewTransportError(errdefs.KindOther, "fetch cancelled", err).WithPath(path)
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		if len(s.failures) > 0 {
			kind := s.failures[0]
			s.failures = s.failures[1:]
			return nil, errdefs.NewTransportError(kind, "scripted failure", nil).WithPath(path)
		}
		return s.data, nil
	}
}
