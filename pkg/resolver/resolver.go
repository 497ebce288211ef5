// Package resolver walks the live capability graph along a parsed query and
// reports every fetchable endpoint met on the way.
package resolver

import (
	"context"
	"fmt"
	"slices"

	"github.com/rs/zerolog"

	"github.com/openfroyo/pathq/pkg/catalog"
	"github.com/openfroyo/pathq/pkg/errdefs"
	"github.com/openfroyo/pathq/pkg/graph"
	"github.com/openfroyo/pathq/pkg/query"
)

// Candidate is an endpoint reached while walking a query.
type Candidate struct {
	// Endpoint is the fetchable node.
	Endpoint graph.Endpoint

	// Path is the query prefix consumed to reach Endpoint, with variable
	// indices bound to their values. When indices of the last part were left
	// over, Path only carries the consumed ones.
	Path query.Query

	// SubQuery holds the parts after Path. Zero when there are none.
	SubQuery query.Query

	// Remaining holds indices of the last part that the graph could not take.
	Remaining []query.Index
}

// HasSubQuery reports whether parts follow the endpoint.
func (c Candidate) HasSubQuery() bool { return !c.SubQuery.IsZero() }

// ContainsVariable reports whether applying the candidate needs variables.
func (c Candidate) ContainsVariable() bool {
	return slices.ContainsFunc(c.Remaining, query.Index.IsVariable) ||
		(c.HasSubQuery() && c.SubQuery.ContainsVariable())
}

// Resolver walks capability graphs.
type Resolver struct {
	registry *query.Registry
	catalog  *catalog.Catalog
	logger   zerolog.Logger
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithCatalog enables index pre-validation against a catalog.
func WithCatalog(c *catalog.Catalog) Option {
	return func(r *Resolver) { r.catalog = c }
}

// WithRegistry sets the converters used for variable indices.
func WithRegistry(reg *query.Registry) Option {
	return func(r *Resolver) { r.registry = reg }
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(r *Resolver) { r.logger = l }
}

// New creates a resolver.
func New(opts ...Option) *Resolver {
	r := &Resolver{
		registry: query.DefaultRegistry(),
		logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With().Str("component", "resolver").Logger()
	return r
}

// Resolve walks q from root and returns the endpoints found, shallowest first.
//
// A missing child fails the walk only when no endpoint has been found yet;
// otherwise the walk stops and the endpoints found so far are returned. Indices
// are consumed left to right until the graph stops accepting their type. Left
// over indices end the walk at that part.
func (r *Resolver) Resolve(ctx context.Context, root graph.Node, q query.Query, vars query.VariableResolver) ([]Candidate, error) {
	if q.IsZero() {
		return nil, errdefs.NewResolveError("query is empty", nil)
	}
	if err := r.catalog.ValidateIndices(q); err != nil {
		return nil, withQuery(err, q)
	}

	var (
		candidates []Candidate
		traversed  []query.Part
		remaining  []query.Index
		node       = root
	)

	for i := 0; i < q.Len(); i++ {
		part := q.Part(i)

		child, ok := node.Child(part.Name())
		if !ok {
			if len(candidates) == 0 {
				return nil, errdefs.NewResolveError(
					fmt.Sprintf("no endpoint with this path exists (missing %q)", part.Name()), nil).
					WithCode(errdefs.ErrCodeNoEndpoint).
					WithQuery(q.String())
			}
			r.logger.Debug().
				Str("query", q.String()).
				Str("part", part.Name()).
				Msg("Walk stopped at missing child")
			break
		}
		node = child

		consumed := part
		if part.Enumerate() {
			next, used, rest, err := r.index(ctx, node, part.Indices(), vars)
			if err != nil {
				return nil, withQuery(err, q)
			}
			node, remaining = next, rest
			consumed = part.WithIndices(used...)
		}
		traversed = append(traversed, consumed)

		if ep, ok := graph.AsEndpoint(node); ok {
			path, err := query.New(traversed...)
			if err != nil {
				return nil, errdefs.NewInternalError("traversed path is invalid", err)
			}
			sub, _ := q.Slice(i+1, q.Len())
			candidates = append(candidates, Candidate{
				Endpoint:  ep,
				Path:      path,
				SubQuery:  sub,
				Remaining: slices.Clone(remaining),
			})
		}

		if len(remaining) > 0 {
			break
		}
	}

	r.logger.Debug().
		Str("query", q.String()).
		Int("candidates", len(candidates)).
		Msg("Query resolved")

	return candidates, nil
}

// Deepest returns the last candidate produced by Resolve.
func (r *Resolver) Deepest(ctx context.Context, root graph.Node, q query.Query, vars query.VariableResolver) (Candidate, error) {
	candidates, err := r.Resolve(ctx, root, q, vars)
	if err != nil {
		return Candidate{}, err
	}
	if len(candidates) == 0 {
		return Candidate{}, errdefs.NewResolveError("query does not address a fetchable endpoint", nil).
			WithCode(errdefs.ErrCodeNoEndpoint).
			WithQuery(q.String())
	}
	return candidates[len(candidates)-1], nil
}

// Apply navigates a fetched value along the candidate's remaining indices and
// sub-query. Shape mismatches are resolve errors.
func (r *Resolver) Apply(ctx context.Context, value any, c Candidate, vars query.VariableResolver) (any, error) {
	if value == nil {
		return nil, errdefs.NewResolveError("endpoint returned no data", nil).
			WithCode(errdefs.ErrCodeEmptyResult).
			WithPath(c.Path.String())
	}
	node := graph.Value(value)

	if len(c.Remaining) > 0 {
		next, _, rest, err := r.index(ctx, node, c.Remaining, vars)
		if err != nil {
			return nil, withPath(err, c.Path)
		}
		if len(rest) > 0 {
			return nil, shapeMismatch(c.Path, fmt.Sprintf("value has no %s index", rest[0].Type()))
		}
		node = next
	}

	if !c.HasSubQuery() {
		return graph.Unwrap(node), nil
	}

	for _, part := range c.SubQuery.Parts() {
		child, ok := node.Child(part.Name())
		if !ok {
			return nil, shapeMismatch(c.Path, fmt.Sprintf("value has no property %q", part.Name()))
		}
		node = child

		if part.Enumerate() {
			next, _, rest, err := r.index(ctx, node, part.Indices(), vars)
			if err != nil {
				return nil, withPath(err, c.Path)
			}
			if len(rest) > 0 {
				return nil, shapeMismatch(c.Path,
					fmt.Sprintf("property %q has no %s index", part.Name(), rest[0].Type()))
			}
			node = next
		}
	}
	return graph.Unwrap(node), nil
}

// index consumes indices until node stops accepting their type. The consumed
// indices are returned bound to their values.
func (r *Resolver) index(ctx context.Context, node graph.Node, indices []query.Index, vars query.VariableResolver) (graph.Node, []query.Index, []query.Index, error) {
	used := make([]query.Index, 0, len(indices))
	for k, idx := range indices {
		if !node.AcceptsIndex(idx.Type()) {
			return node, used, indices[k:], nil
		}
		v, err := r.registry.Value(ctx, idx, vars)
		if err != nil {
			return nil, nil, nil, err
		}
		child, ok := node.IndexedChild(idx.Type(), v)
		if !ok {
			return nil, nil, nil, errdefs.NewResolveError(
				fmt.Sprintf("index %s addresses nothing", idx), nil).
				WithCode(errdefs.ErrCodeShapeMismatch).
				WithDetail("value", v)
		}
		node = child
		used = append(used, query.Literal(idx.Type(), v))
	}
	return node, used, nil, nil
}

func shapeMismatch(path query.Query, msg string) error {
	return errdefs.NewResolveError(msg, nil).
		WithCode(errdefs.ErrCodeShapeMismatch).
		WithPath(path.String())
}

func withQuery(err error, q query.Query) error {
	if e, ok := err.(*errdefs.Error); ok && e.Query == "" {
		e.WithQuery(q.String())
	}
	return err
}

func withPath(err error, path query.Query) error {
	if e, ok := err.(*errdefs.Error); ok && e.Path == "" {
		e.WithPath(path.String())
	}
	return err
}
